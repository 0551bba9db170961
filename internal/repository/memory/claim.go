package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/service/claim"
)

// ClaimRepo implements claim.Repository.
type ClaimRepo struct{ s *Store }

// BeginTx waits for exclusive access to the store or for ctx to end.
// The isolation level is ignored; every transaction is serialised.
func (r *ClaimRepo) BeginTx(ctx context.Context, _ sql.IsolationLevel) (claim.Tx, error) {
	select {
	case r.s.txSem <- struct{}{}:
		return &tx{s: r.s, deleted: make(map[string]bool)}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("begin tx: %w", ctx.Err())
	}
}

func (r *ClaimRepo) GetGift(_ context.Context, giftID string) (*domain.Gift, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.giftLocked(giftID)
	if !ok {
		return nil, claim.ErrGiftNotFound
	}
	return &g, nil
}

func (r *ClaimRepo) GetFamily(_ context.Context, familyID string) (*domain.Family, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.familyLocked(familyID)
	if !ok {
		return nil, claim.ErrFamilyNotFound
	}
	return &f, nil
}

func (r *ClaimRepo) ListClaimsByDonor(_ context.Context, email string) ([]domain.DonorClaim, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.DonorClaim
	for _, c := range r.s.claims {
		if domain.NormalizeEmail(c.DonorEmail) != email {
			continue
		}
		out = append(out, r.s.donorClaimLocked(c))
	}
	sort.Slice(out, func(i, j int) bool {
		return before(out[j].CreatedAt.UnixNano(), out[j].ID, out[i].CreatedAt.UnixNano(), out[i].ID)
	})
	return out, nil
}

// donorClaimLocked joins a claim with its gift, family and campaign.
// Caller holds s.mu.
func (s *Store) donorClaimLocked(c domain.Claim) domain.DonorClaim {
	dc := domain.DonorClaim{Claim: c}
	g, ok := s.gifts[c.GiftID]
	if !ok {
		return dc
	}
	dc.GiftName = g.Name
	dc.FamilyID = g.FamilyID
	if g.PersonID != nil {
		if p, ok := s.persons[*g.PersonID]; ok {
			dc.PersonName = p.DisplayName()
		}
	}
	f, ok := s.families[g.FamilyID]
	if !ok {
		return dc
	}
	dc.FamilyAlias = f.Alias
	dc.CampaignID = f.CampaignID
	if cp, ok := s.campaigns[f.CampaignID]; ok {
		dc.CampaignName = cp.Name
		dc.DropOffAddress = cp.DropOffAddress
		dc.DropOffDeadline = cp.DropOffDeadline
	}
	return dc
}

// tx buffers writes until Commit. Reads see committed state plus the
// transaction's own pending writes.
type tx struct {
	s        *Store
	inserted []domain.Claim
	deleted  map[string]bool
	done     bool
}

func (t *tx) overlay(g domain.Gift) domain.Gift {
	kept := g.Claims[:0:0]
	for _, c := range g.Claims {
		if !t.deleted[c.ID] {
			kept = append(kept, c)
		}
	}
	for _, c := range t.inserted {
		if c.GiftID == g.ID {
			kept = append(kept, c)
		}
	}
	g.Claims = kept
	return g
}

func (t *tx) GiftWithClaims(_ context.Context, giftID string) (*domain.Gift, error) {
	if t.done {
		return nil, sql.ErrTxDone
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	g, ok := t.s.giftLocked(giftID)
	if !ok {
		return nil, claim.ErrGiftNotFound
	}
	g = t.overlay(g)
	return &g, nil
}

func (t *tx) FamilyWithGiftsAndClaims(_ context.Context, familyID string) (*domain.Family, error) {
	if t.done {
		return nil, sql.ErrTxDone
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	f, ok := t.s.familyLocked(familyID)
	if !ok {
		return nil, claim.ErrFamilyNotFound
	}
	for i := range f.Gifts {
		f.Gifts[i] = t.overlay(f.Gifts[i])
	}
	f.LinkGifts()
	return &f, nil
}

func (t *tx) CampaignStatus(_ context.Context, campaignID string) (domain.CampaignStatus, error) {
	if t.done {
		return "", sql.ErrTxDone
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	c, ok := t.s.campaigns[campaignID]
	if !ok {
		return "", fmt.Errorf("campaign %s: %w", campaignID, claim.ErrCampaignNotActive)
	}
	return c.Status, nil
}

func (t *tx) InsertClaim(_ context.Context, c *domain.Claim) error {
	if t.done {
		return sql.ErrTxDone
	}
	if c.ID == "" {
		return fmt.Errorf("insert claim: id required")
	}
	t.s.mu.RLock()
	_, ok := t.s.gifts[c.GiftID]
	t.s.mu.RUnlock()
	if !ok {
		return claim.ErrGiftNotFound
	}
	t.inserted = append(t.inserted, *c)
	return nil
}

func (t *tx) DeleteClaim(_ context.Context, claimID string) (*domain.Claim, error) {
	if t.done {
		return nil, sql.ErrTxDone
	}
	for i, c := range t.inserted {
		if c.ID == claimID {
			t.inserted = append(t.inserted[:i], t.inserted[i+1:]...)
			return &c, nil
		}
	}
	t.s.mu.RLock()
	c, ok := t.s.claims[claimID]
	t.s.mu.RUnlock()
	if !ok || t.deleted[claimID] {
		return nil, claim.ErrClaimNotFound
	}
	t.deleted[claimID] = true
	return &c, nil
}

func (t *tx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.s.mu.Lock()
	for id := range t.deleted {
		delete(t.s.claims, id)
	}
	for _, c := range t.inserted {
		t.s.claims[c.ID] = c
	}
	t.s.mu.Unlock()
	t.finish()
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.finish()
	return nil
}

func (t *tx) finish() {
	t.done = true
	t.inserted, t.deleted = nil, nil
	<-t.s.txSem
}
