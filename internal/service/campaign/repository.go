package campaign

import (
	"context"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
)

// Repository defines the data access contract for campaign administration.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign without its families.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// GetGraph returns a campaign with families, persons, gifts and claims.
	GetGraph(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the given filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign. c.ID must be set.
	Create(ctx context.Context, c *domain.Campaign) error

	// Update modifies a campaign. Only non-nil fields are applied.
	Update(ctx context.Context, id string, u UpdateFields) error

	// UpdateStatus moves a campaign from one status to another. Returns
	// ErrInvalidTransition if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to domain.CampaignStatus) error

	// Delete removes a campaign and everything it owns.
	Delete(ctx context.Context, id string) error

	// ListDropOffDue returns ACTIVE campaigns whose drop-off deadline falls
	// in [from, until].
	ListDropOffDue(ctx context.Context, from, until time.Time) ([]domain.Campaign, error)

	// ListClaims returns every claim in a campaign with gift and family
	// context, ordered by family alias then gift name.
	ListClaims(ctx context.Context, campaignID string) ([]domain.DonorClaim, error)

	// CreateFamily inserts a family. Returns ErrNotFound if the campaign is missing.
	CreateFamily(ctx context.Context, f *domain.Family) error

	// GetFamily returns a family graph. Returns ErrFamilyNotFound.
	GetFamily(ctx context.Context, id string) (*domain.Family, error)

	// DeleteFamily removes a family and everything it owns.
	DeleteFamily(ctx context.Context, id string) error

	// CreatePerson inserts a person. Returns ErrFamilyNotFound.
	CreatePerson(ctx context.Context, p *domain.Person) error

	// DeletePerson removes a person. Their gifts become unassigned.
	DeletePerson(ctx context.Context, id string) error

	// CreateGift inserts a gift. Returns ErrFamilyNotFound.
	CreateGift(ctx context.Context, g *domain.Gift) error

	// DeleteGift removes a gift and its claims. Returns ErrGiftNotFound.
	DeleteGift(ctx context.Context, id string) error
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name            *string
	Description     *string
	StartDate       *time.Time
	EndDate         *time.Time
	DropOffAddress  *string
	DropOffDeadline *time.Time
}
