package claim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/ledger"
	"github.com/ignite/giftdrive/internal/pkg/logger"
)

// Config tunes transaction behaviour.
type Config struct {
	// TxTimeout bounds a single transaction attempt.
	TxTimeout time.Duration
	// MaxRetries is how many times a transient conflict is retried after
	// the first attempt.
	MaxRetries int
	// RetryBackoff is the base delay between attempts; each retry waits
	// attempt*RetryBackoff plus up to RetryBackoff of jitter.
	RetryBackoff time.Duration
	Isolation    sql.IsolationLevel
}

// DefaultConfig is a 5s read-committed transaction with row locks and
// three retries.
func DefaultConfig() Config {
	return Config{
		TxTimeout:    5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 20 * time.Millisecond,
		Isolation:    sql.LevelReadCommitted,
	}
}

// Service implements the claim workflows. All public methods are safe for
// concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo     Repository
	notifier Notifier
	cfg      Config
	now      func() time.Time
}

// NewService creates a claim service. A nil notifier disables notifications.
func NewService(repo Repository, notifier Notifier, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = def.TxTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ClaimInput is a request to claim part of a single gift.
type ClaimInput struct {
	DonorName  string `json:"donor_name"`
	DonorEmail string `json:"donor_email"`
	Quantity   int    `json:"quantity"`
}

// AdoptionResult reports what an adoption claimed.
type AdoptionResult struct {
	FamilyID    string         `json:"family_id"`
	FamilyAlias string         `json:"family_alias"`
	PersonID    string         `json:"person_id,omitempty"`
	Claims      []domain.Claim `json:"claims"`
	Adopted     int            `json:"adopted"`
	Skipped     int            `json:"skipped"`
}

// ClaimGift claims in.Quantity of one gift. It fails with
// ErrInsufficientAvailability when less than that remains at commit time.
func (s *Service) ClaimGift(ctx context.Context, giftID string, in ClaimInput) (*domain.Claim, error) {
	donor := domain.Donor{Name: in.DonorName, Email: in.DonorEmail}
	if err := donor.Validate(); err != nil {
		return nil, err
	}
	if err := domain.ValidateQuantity("quantity", in.Quantity); err != nil {
		return nil, err
	}
	donor = donor.Normalize()

	var (
		claim domain.Claim
		gift  domain.Gift
	)
	err := s.inTx(ctx, "claim gift", func(ctx context.Context, tx Tx) error {
		g, err := tx.GiftWithClaims(ctx, giftID)
		if err != nil {
			return err
		}
		if err := s.requireActive(ctx, tx, g.CampaignID); err != nil {
			return err
		}
		if left := ledger.AvailableQuantity(*g); in.Quantity > left {
			return fmt.Errorf("%w: requested %d, %d remaining", ErrInsufficientAvailability, in.Quantity, left)
		}
		claim = s.newClaim(g.ID, donor, in.Quantity)
		if err := tx.InsertClaim(ctx, &claim); err != nil {
			return err
		}
		gift = *g
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("claim created", "claim_id", claim.ID, "gift_id", claim.GiftID,
		"quantity", claim.Quantity, "donor_email", claim.DonorEmail)
	s.notify(ctx, domain.NewClaimCreated(claim, gift))
	return &claim, nil
}

// ClaimFamily adopts the remaining quantity of every gift in the family.
// Gifts that are already fully claimed are skipped. If nothing at all is
// left it fails with ErrInsufficientAvailability.
func (s *Service) ClaimFamily(ctx context.Context, familyID string, donor domain.Donor) (*AdoptionResult, error) {
	return s.adopt(ctx, familyID, "", donor)
}

// ClaimPerson is ClaimFamily scoped to one person's gifts.
func (s *Service) ClaimPerson(ctx context.Context, familyID, personID string, donor domain.Donor) (*AdoptionResult, error) {
	if personID == "" {
		return nil, domain.Invalid("person_id", "is required")
	}
	return s.adopt(ctx, familyID, personID, donor)
}

func (s *Service) adopt(ctx context.Context, familyID, personID string, donor domain.Donor) (*AdoptionResult, error) {
	if err := donor.Validate(); err != nil {
		return nil, err
	}
	donor = donor.Normalize()

	var (
		res   *AdoptionResult
		gifts map[string]domain.Gift
	)
	err := s.inTx(ctx, "adopt", func(ctx context.Context, tx Tx) error {
		f, err := tx.FamilyWithGiftsAndClaims(ctx, familyID)
		if err != nil {
			return err
		}
		if err := s.requireActive(ctx, tx, f.CampaignID); err != nil {
			return err
		}

		scope := f.Gifts
		if personID != "" {
			p, ok := f.Person(personID)
			if !ok {
				return fmt.Errorf("%w: %s in family %s", ErrPersonNotFound, personID, familyID)
			}
			scope = p.Gifts
		}

		todo := ledger.ClaimableGifts(scope)
		if len(todo) == 0 {
			return fmt.Errorf("%w: nothing left to adopt", ErrInsufficientAvailability)
		}

		// Reset on every attempt so a retried transaction starts clean.
		res = &AdoptionResult{
			FamilyID:    f.ID,
			FamilyAlias: f.Alias,
			PersonID:    personID,
			Skipped:     len(scope) - len(todo),
		}
		gifts = make(map[string]domain.Gift, len(todo))
		for _, c := range todo {
			cl := s.newClaim(c.Gift.ID, donor, c.Remaining)
			if err := tx.InsertClaim(ctx, &cl); err != nil {
				return err
			}
			res.Claims = append(res.Claims, cl)
			g := c.Gift
			g.CampaignID, g.FamilyAlias = f.CampaignID, f.Alias
			gifts[g.ID] = g
		}
		res.Adopted = len(res.Claims)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("family adopted", "family_id", res.FamilyID, "person_id", res.PersonID,
		"adopted", res.Adopted, "skipped", res.Skipped, "donor_email", donor.Email)
	for _, c := range res.Claims {
		s.notify(ctx, domain.NewClaimCreated(c, gifts[c.GiftID]))
	}
	return res, nil
}

// RemoveClaim deletes a claim, returning its quantity to the gift.
// A second call for the same id fails with ErrClaimNotFound.
func (s *Service) RemoveClaim(ctx context.Context, claimID string) error {
	var removed *domain.Claim
	err := s.inTx(ctx, "remove claim", func(ctx context.Context, tx Tx) error {
		c, err := tx.DeleteClaim(ctx, claimID)
		if err != nil {
			return err
		}
		removed = c
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("claim removed", "claim_id", removed.ID, "gift_id", removed.GiftID, "quantity", removed.Quantity)
	s.notify(ctx, domain.NewClaimRemoved(*removed, s.now()))
	return nil
}

// GiftAvailability returns an unlocked view of a gift's quantities. It is
// for display only; claims always recompute inside their transaction.
func (s *Service) GiftAvailability(ctx context.Context, giftID string) (*ledger.GiftView, error) {
	g, err := s.repo.GetGift(ctx, giftID)
	if err != nil {
		return nil, err
	}
	v := ledger.ViewOf(*g)
	return &v, nil
}

// Preview lists what an adoption of the family (or one person, when
// personID is set) would claim right now.
func (s *Service) Preview(ctx context.Context, familyID, personID string) ([]ledger.Claimable, error) {
	f, err := s.repo.GetFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}
	scope := f.Gifts
	if personID != "" {
		p, ok := f.Person(personID)
		if !ok {
			return nil, fmt.Errorf("%w: %s in family %s", ErrPersonNotFound, personID, familyID)
		}
		scope = p.Gifts
	}
	out := ledger.ClaimableGifts(scope)
	for i := range out {
		out[i].Gift.Claims = nil
	}
	return out, nil
}

// ClaimsByDonor returns the claims made with email.
func (s *Service) ClaimsByDonor(ctx context.Context, email string) ([]domain.DonorClaim, error) {
	if err := domain.ValidateEmail("email", email); err != nil {
		return nil, err
	}
	return s.repo.ListClaimsByDonor(ctx, domain.NormalizeEmail(email))
}

func (s *Service) requireActive(ctx context.Context, tx Tx, campaignID string) error {
	status, err := tx.CampaignStatus(ctx, campaignID)
	if err != nil {
		return err
	}
	if !status.AcceptsClaims() {
		return fmt.Errorf("%w: campaign %s is %s", ErrCampaignNotActive, campaignID, status)
	}
	return nil
}

func (s *Service) newClaim(giftID string, d domain.Donor, qty int) domain.Claim {
	return domain.Claim{
		ID:         uuid.New().String(),
		GiftID:     giftID,
		DonorName:  d.Name,
		DonorEmail: d.Email,
		Quantity:   qty,
		CreatedAt:  s.now(),
	}
}

// notify hands evt to the notifier. It runs after commit only.
func (s *Service) notify(ctx context.Context, evt domain.ClaimEvent) {
	if s.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notifier panicked", "event", evt.Type, "claim_id", evt.ClaimID, "panic", r)
		}
	}()
	s.notifier.Notify(context.WithoutCancel(ctx), evt)
}

// inTx runs fn in a transaction, retrying transient conflicts. A timed-out
// attempt is not retried. Exhausted retries surface as
// ErrInsufficientAvailability wrapping the last conflict.
func (s *Service) inTx(ctx context.Context, op string, fn func(context.Context, Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransientConflict) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt >= s.cfg.MaxRetries {
			logger.Warn("claim retries exhausted", "op", op, "attempts", attempt+1, "error", err)
			return fmt.Errorf("%w: gave up after %d attempts: %w", ErrInsufficientAvailability, attempt+1, err)
		}
		logger.Debug("retrying claim transaction", "op", op, "attempt", attempt+1, "error", err)

		wait := time.Duration(attempt+1)*s.cfg.RetryBackoff + rand.N(s.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Service) attempt(parent context.Context, fn func(context.Context, Tx) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.TxTimeout)
	defer cancel()

	tx, err := s.repo.BeginTx(ctx, s.cfg.Isolation)
	if err != nil {
		return s.classify(ctx, parent, fmt.Errorf("begin claim tx: %w", err))
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Warn("claim tx rollback failed", "error", rbErr)
		}
		return s.classify(ctx, parent, err)
	}
	if err := tx.Commit(); err != nil {
		return s.classify(ctx, parent, fmt.Errorf("commit claim tx: %w", err))
	}
	return nil
}

// classify turns an attempt that ran out of time into a transient failure
// the caller may retry. Business failures and a cancelled parent context
// pass through unchanged.
func (s *Service) classify(ctx, parent context.Context, err error) error {
	if parent.Err() != nil || ctx.Err() == nil || isBusiness(err) {
		return err
	}
	return fmt.Errorf("%w: transaction exceeded %s (%v): %w",
		ErrTransientConflict, s.cfg.TxTimeout, err, context.DeadlineExceeded)
}

func isBusiness(err error) bool {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, ErrInsufficientAvailability),
		errors.Is(err, ErrCampaignNotActive),
		errors.Is(err, ErrGiftNotFound),
		errors.Is(err, ErrFamilyNotFound),
		errors.Is(err, ErrPersonNotFound),
		errors.Is(err, ErrClaimNotFound):
		return true
	}
	return false
}
