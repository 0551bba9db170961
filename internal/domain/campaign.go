package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft    CampaignStatus = "DRAFT"
	CampaignActive   CampaignStatus = "ACTIVE"
	CampaignClosed   CampaignStatus = "CLOSED"
	CampaignArchived CampaignStatus = "ARCHIVED"
)

// Valid reports whether s is one of the known statuses.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignActive, CampaignClosed, CampaignArchived:
		return true
	}
	return false
}

// AcceptsClaims is true only for ACTIVE campaigns.
func (s CampaignStatus) AcceptsClaims() bool {
	return s == CampaignActive
}

// CanTransition reports whether an admin may move a campaign from s to next.
// The lifecycle is linear with a single restore edge from ARCHIVED to DRAFT.
func (s CampaignStatus) CanTransition(next CampaignStatus) bool {
	switch s {
	case CampaignDraft:
		return next == CampaignActive
	case CampaignActive:
		return next == CampaignClosed
	case CampaignClosed:
		return next == CampaignArchived
	case CampaignArchived:
		return next == CampaignDraft
	default:
		return false
	}
}

// Campaign is one holiday drive. It owns its families.
type Campaign struct {
	ID              string         `json:"id" db:"id"`
	Name            string         `json:"name" db:"name"`
	Description     string         `json:"description,omitempty" db:"description"`
	Status          CampaignStatus `json:"status" db:"status"`
	StartDate       *time.Time     `json:"start_date,omitempty" db:"start_date"`
	EndDate         *time.Time     `json:"end_date,omitempty" db:"end_date"`
	DropOffAddress  string         `json:"drop_off_address,omitempty" db:"drop_off_address"`
	DropOffDeadline *time.Time     `json:"drop_off_deadline,omitempty" db:"drop_off_deadline"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`

	// Populated only by graph loads.
	Families []Family `json:"families,omitempty" db:"-"`
}

// IsTerminal returns true if the campaign no longer accepts any activity
// short of an admin restore.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignArchived
}
