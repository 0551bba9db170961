package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository.
type CampaignRepo struct{ s *Store }

// write runs fn with exclusive access, waiting for any open claim
// transaction to finish first.
func (r *CampaignRepo) write(ctx context.Context, fn func() error) error {
	select {
	case r.s.txSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-r.s.txSem }()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return fn()
}

func (r *CampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	return &c, nil
}

func (r *CampaignRepo) GetGraph(_ context.Context, id string) (*domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	c.Families = nil
	for fid, f := range r.s.families {
		if f.CampaignID == id {
			full, _ := r.s.familyLocked(fid)
			c.Families = append(c.Families, full)
		}
	}
	sort.Slice(c.Families, func(i, j int) bool {
		return before(c.Families[i].CreatedAt.UnixNano(), c.Families[i].ID, c.Families[j].CreatedAt.UnixNano(), c.Families[j].ID)
	})
	return &c, nil
}

func (r *CampaignRepo) List(_ context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range r.s.campaigns {
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return before(out[j].CreatedAt.UnixNano(), out[j].ID, out[i].CreatedAt.UnixNano(), out[i].ID)
	})
	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(out) || f.Limit <= 0 {
		end = len(out)
	}
	return out[f.Offset:end], total, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		return fmt.Errorf("create campaign: id required")
	}
	return r.write(ctx, func() error {
		cp := *c
		cp.Families = nil
		r.s.campaigns[cp.ID] = cp
		return nil
	})
}

func (r *CampaignRepo) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	return r.write(ctx, func() error {
		c, ok := r.s.campaigns[id]
		if !ok {
			return campaign.ErrNotFound
		}
		if u.Name != nil {
			c.Name = *u.Name
		}
		if u.Description != nil {
			c.Description = *u.Description
		}
		if u.StartDate != nil {
			c.StartDate = u.StartDate
		}
		if u.EndDate != nil {
			c.EndDate = u.EndDate
		}
		if u.DropOffAddress != nil {
			c.DropOffAddress = *u.DropOffAddress
		}
		if u.DropOffDeadline != nil {
			c.DropOffDeadline = u.DropOffDeadline
		}
		c.UpdatedAt = time.Now().UTC()
		r.s.campaigns[id] = c
		return nil
	})
}

func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, from, to domain.CampaignStatus) error {
	return r.write(ctx, func() error {
		c, ok := r.s.campaigns[id]
		if !ok {
			return campaign.ErrNotFound
		}
		if c.Status != from {
			return fmt.Errorf("%w: status is now %s", campaign.ErrInvalidTransition, c.Status)
		}
		c.Status = to
		c.UpdatedAt = time.Now().UTC()
		r.s.campaigns[id] = c
		return nil
	})
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	return r.write(ctx, func() error {
		if _, ok := r.s.campaigns[id]; !ok {
			return campaign.ErrNotFound
		}
		for fid, f := range r.s.families {
			if f.CampaignID == id {
				r.s.deleteFamilyLocked(fid)
			}
		}
		delete(r.s.campaigns, id)
		return nil
	})
}

func (r *CampaignRepo) ListDropOffDue(_ context.Context, from, until time.Time) ([]domain.Campaign, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Campaign
	for _, c := range r.s.campaigns {
		if c.Status != domain.CampaignActive || c.DropOffDeadline == nil {
			continue
		}
		d := *c.DropOffDeadline
		if d.Before(from) || d.After(until) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DropOffDeadline.Before(*out[j].DropOffDeadline) })
	return out, nil
}

func (r *CampaignRepo) ListClaims(_ context.Context, campaignID string) ([]domain.DonorClaim, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.DonorClaim
	for _, c := range r.s.claims {
		dc := r.s.donorClaimLocked(c)
		if dc.CampaignID == campaignID {
			out = append(out, dc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FamilyAlias != b.FamilyAlias {
			return a.FamilyAlias < b.FamilyAlias
		}
		if a.GiftName != b.GiftName {
			return a.GiftName < b.GiftName
		}
		return before(a.CreatedAt.UnixNano(), a.ID, b.CreatedAt.UnixNano(), b.ID)
	})
	return out, nil
}

func (r *CampaignRepo) CreateFamily(ctx context.Context, f *domain.Family) error {
	return r.write(ctx, func() error {
		if _, ok := r.s.campaigns[f.CampaignID]; !ok {
			return campaign.ErrNotFound
		}
		cp := *f
		cp.Persons, cp.Gifts = nil, nil
		r.s.families[cp.ID] = cp
		return nil
	})
}

func (r *CampaignRepo) GetFamily(_ context.Context, id string) (*domain.Family, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.familyLocked(id)
	if !ok {
		return nil, campaign.ErrFamilyNotFound
	}
	return &f, nil
}

func (r *CampaignRepo) DeleteFamily(ctx context.Context, id string) error {
	return r.write(ctx, func() error {
		if _, ok := r.s.families[id]; !ok {
			return campaign.ErrFamilyNotFound
		}
		r.s.deleteFamilyLocked(id)
		return nil
	})
}

func (r *CampaignRepo) CreatePerson(ctx context.Context, p *domain.Person) error {
	return r.write(ctx, func() error {
		if _, ok := r.s.families[p.FamilyID]; !ok {
			return campaign.ErrFamilyNotFound
		}
		cp := *p
		cp.Gifts = nil
		r.s.persons[cp.ID] = cp
		return nil
	})
}

func (r *CampaignRepo) DeletePerson(ctx context.Context, id string) error {
	return r.write(ctx, func() error {
		if _, ok := r.s.persons[id]; !ok {
			return campaign.ErrPersonNotFound
		}
		for gid, g := range r.s.gifts {
			if g.PersonID != nil && *g.PersonID == id {
				g.PersonID = nil
				r.s.gifts[gid] = g
			}
		}
		delete(r.s.persons, id)
		return nil
	})
}

func (r *CampaignRepo) CreateGift(ctx context.Context, g *domain.Gift) error {
	return r.write(ctx, func() error {
		if _, ok := r.s.families[g.FamilyID]; !ok {
			return campaign.ErrFamilyNotFound
		}
		if g.PersonID != nil {
			if p, ok := r.s.persons[*g.PersonID]; !ok || p.FamilyID != g.FamilyID {
				return campaign.ErrPersonNotFound
			}
		}
		cp := *g
		cp.Claims, cp.CampaignID, cp.FamilyAlias = nil, "", ""
		r.s.gifts[cp.ID] = cp
		return nil
	})
}

func (r *CampaignRepo) DeleteGift(ctx context.Context, id string) error {
	return r.write(ctx, func() error {
		if _, ok := r.s.gifts[id]; !ok {
			return campaign.ErrGiftNotFound
		}
		r.s.deleteGiftLocked(id)
		return nil
	})
}

// deleteFamilyLocked cascades to persons, gifts and claims. Caller holds s.mu.
func (s *Store) deleteFamilyLocked(id string) {
	for gid, g := range s.gifts {
		if g.FamilyID == id {
			s.deleteGiftLocked(gid)
		}
	}
	for pid, p := range s.persons {
		if p.FamilyID == id {
			delete(s.persons, pid)
		}
	}
	delete(s.families, id)
}

func (s *Store) deleteGiftLocked(id string) {
	for cid, c := range s.claims {
		if c.GiftID == id {
			delete(s.claims, cid)
		}
	}
	delete(s.gifts, id)
}
