package domain

import "time"

// EventType identifies a notification event.
type EventType string

const (
	EventClaimCreated    EventType = "ClaimCreated"
	EventClaimRemoved    EventType = "ClaimRemoved"
	EventDropOffReminder EventType = "DropOffReminder"
)

// ClaimEvent is the payload handed to the notification dispatcher after a
// claim transaction commits. Fields not relevant to Type are left empty.
type ClaimEvent struct {
	Type        EventType `json:"type"`
	ClaimID     string    `json:"claim_id,omitempty"`
	GiftID      string    `json:"gift_id,omitempty"`
	GiftName    string    `json:"gift_name,omitempty"`
	DonorEmail  string    `json:"donor_email,omitempty"`
	DonorName   string    `json:"donor_name,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	FamilyAlias string    `json:"family_alias,omitempty"`
	CampaignID  string    `json:"campaign_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`

	// Reminder-only fields.
	CampaignName    string         `json:"campaign_name,omitempty"`
	DropOffAddress  string         `json:"drop_off_address,omitempty"`
	DropOffDeadline *time.Time     `json:"drop_off_deadline,omitempty"`
	Items           []ReminderItem `json:"items,omitempty"`
}

// ReminderItem is one line of a drop-off reminder.
type ReminderItem struct {
	GiftName    string `json:"gift_name"`
	Quantity    int    `json:"quantity"`
	FamilyAlias string `json:"family_alias"`
}

// NewClaimCreated builds the event emitted for a committed claim on gift g.
func NewClaimCreated(c Claim, g Gift) ClaimEvent {
	return ClaimEvent{
		Type:        EventClaimCreated,
		ClaimID:     c.ID,
		GiftID:      c.GiftID,
		GiftName:    g.Name,
		DonorEmail:  c.DonorEmail,
		DonorName:   c.DonorName,
		Quantity:    c.Quantity,
		FamilyAlias: g.FamilyAlias,
		CampaignID:  g.CampaignID,
		OccurredAt:  c.CreatedAt,
	}
}

// NewClaimRemoved builds the event emitted when a claim is deleted.
func NewClaimRemoved(c Claim, at time.Time) ClaimEvent {
	return ClaimEvent{
		Type:       EventClaimRemoved,
		ClaimID:    c.ID,
		GiftID:     c.GiftID,
		DonorEmail: c.DonorEmail,
		DonorName:  c.DonorName,
		Quantity:   c.Quantity,
		OccurredAt: at,
	}
}
