package domain

import "time"

// GiftStatus is derived from claimed vs requested quantity. It is never stored.
type GiftStatus string

const (
	GiftAvailable GiftStatus = "available"
	GiftPartial   GiftStatus = "partial"
	GiftClaimed   GiftStatus = "claimed"
)

// Gift is a wishlist line item. The sum of its claims' quantities never
// exceeds Quantity.
type Gift struct {
	ID          string    `json:"id" db:"id"`
	FamilyID    string    `json:"family_id" db:"family_id"`
	PersonID    *string   `json:"person_id,omitempty" db:"person_id"`
	Name        string    `json:"name" db:"name"`
	Quantity    int       `json:"quantity" db:"quantity"`
	Description string    `json:"description,omitempty" db:"description"`
	ProductURL  string    `json:"product_url,omitempty" db:"product_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`

	// CampaignID and FamilyAlias are denormalised by graph loads so claim
	// events can be built without another query.
	CampaignID  string `json:"campaign_id,omitempty" db:"-"`
	FamilyAlias string `json:"family_alias,omitempty" db:"-"`

	Claims []Claim `json:"claims,omitempty" db:"-"`
}

// Claim is a donor's commitment to bring some quantity of a gift.
// Claims are immutable; reversal is deletion.
type Claim struct {
	ID         string    `json:"id" db:"id"`
	GiftID     string    `json:"gift_id" db:"gift_id"`
	DonorName  string    `json:"donor_name" db:"donor_name"`
	DonorEmail string    `json:"donor_email" db:"donor_email"`
	Quantity   int       `json:"quantity" db:"quantity"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DonorClaim is a claim joined with the context a donor needs to see it:
// what the gift is, which family it is for and where to bring it.
type DonorClaim struct {
	Claim
	GiftName        string     `json:"gift_name"`
	FamilyID        string     `json:"family_id"`
	FamilyAlias     string     `json:"family_alias"`
	PersonName      string     `json:"person_name,omitempty"`
	CampaignID      string     `json:"campaign_id"`
	CampaignName    string     `json:"campaign_name"`
	DropOffAddress  string     `json:"drop_off_address,omitempty"`
	DropOffDeadline *time.Time `json:"drop_off_deadline,omitempty"`
}
