package claim

import (
	"context"
	"database/sql"

	"github.com/ignite/giftdrive/internal/domain"
)

// Repository defines the data access contract for claims.
// Implementations must be safe for concurrent use.
type Repository interface {
	// BeginTx opens a transaction at the given isolation level.
	BeginTx(ctx context.Context, isolation sql.IsolationLevel) (Tx, error)

	// GetGift returns an unlocked snapshot of a gift and its claims, with
	// CampaignID and FamilyAlias filled in. Returns ErrGiftNotFound.
	GetGift(ctx context.Context, giftID string) (*domain.Gift, error)

	// GetFamily returns an unlocked snapshot of a family graph.
	// Returns ErrFamilyNotFound.
	GetFamily(ctx context.Context, familyID string) (*domain.Family, error)

	// ListClaimsByDonor returns every claim made with the given normalised
	// email, newest first.
	ListClaimsByDonor(ctx context.Context, email string) ([]domain.DonorClaim, error)
}

// Tx is a single claim transaction. Reads through a Tx lock the gift rows
// they return until Commit or Rollback, so a quantity computed from them
// stays valid for the rest of the transaction.
//
// Storage conflicts (deadlock, serialization failure, lock timeout) must be
// returned wrapped in ErrTransientConflict.
type Tx interface {
	// GiftWithClaims locks and returns one gift with its claims.
	// Returns ErrGiftNotFound.
	GiftWithClaims(ctx context.Context, giftID string) (*domain.Gift, error)

	// FamilyWithGiftsAndClaims locks every gift row of the family, in id
	// order, and returns the family graph. Returns ErrFamilyNotFound.
	FamilyWithGiftsAndClaims(ctx context.Context, familyID string) (*domain.Family, error)

	// CampaignStatus reads the campaign status with a shared lock so an
	// admin cannot close the campaign underneath the transaction.
	CampaignStatus(ctx context.Context, campaignID string) (domain.CampaignStatus, error)

	// InsertClaim stores c. ID and CreatedAt are assigned by the caller.
	InsertClaim(ctx context.Context, c *domain.Claim) error

	// DeleteClaim removes a claim and returns what was deleted.
	// Returns ErrClaimNotFound.
	DeleteClaim(ctx context.Context, claimID string) (*domain.Claim, error)

	Commit() error
	Rollback() error
}

// Notifier receives events after a claim transaction commits.
// Notify must not block on delivery and has no failure result.
type Notifier interface {
	Notify(ctx context.Context, evt domain.ClaimEvent)
}
