// Package memory is an in-process implementation of the campaign and claim
// repositories. Claim transactions are serialised by a store-wide
// semaphore, which gives the same guarantee as row locks in Postgres:
// a quantity read inside a transaction stays valid until it ends.
//
// It backs service tests and the server's -memory dev mode.
package memory

import (
	"sort"
	"sync"

	"github.com/ignite/giftdrive/internal/domain"
)

// Store holds all entities. The zero value is not usable; call NewStore.
type Store struct {
	mu sync.RWMutex
	// txSem is held for the lifetime of a claim transaction.
	txSem chan struct{}

	campaigns map[string]domain.Campaign
	families  map[string]domain.Family
	persons   map[string]domain.Person
	gifts     map[string]domain.Gift
	claims    map[string]domain.Claim
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		txSem:     make(chan struct{}, 1),
		campaigns: make(map[string]domain.Campaign),
		families:  make(map[string]domain.Family),
		persons:   make(map[string]domain.Person),
		gifts:     make(map[string]domain.Gift),
		claims:    make(map[string]domain.Claim),
	}
}

// Campaigns returns the campaign.Repository view of the store.
func (s *Store) Campaigns() *CampaignRepo { return &CampaignRepo{s: s} }

// Claims returns the claim.Repository view of the store.
func (s *Store) Claims() *ClaimRepo { return &ClaimRepo{s: s} }

// giftLocked returns a gift with its claims and family context.
// Caller holds s.mu.
func (s *Store) giftLocked(id string) (domain.Gift, bool) {
	g, ok := s.gifts[id]
	if !ok {
		return domain.Gift{}, false
	}
	if f, ok := s.families[g.FamilyID]; ok {
		g.CampaignID = f.CampaignID
		g.FamilyAlias = f.Alias
	}
	g.Claims = nil
	for _, c := range s.claims {
		if c.GiftID == id {
			g.Claims = append(g.Claims, c)
		}
	}
	sort.Slice(g.Claims, func(i, j int) bool {
		return before(g.Claims[i].CreatedAt.UnixNano(), g.Claims[i].ID, g.Claims[j].CreatedAt.UnixNano(), g.Claims[j].ID)
	})
	return g, true
}

// familyLocked builds a family graph. Caller holds s.mu.
func (s *Store) familyLocked(id string) (domain.Family, bool) {
	f, ok := s.families[id]
	if !ok {
		return domain.Family{}, false
	}
	f.Persons, f.Gifts = nil, nil
	for _, p := range s.persons {
		if p.FamilyID == id {
			p.Gifts = nil
			f.Persons = append(f.Persons, p)
		}
	}
	for gid, g := range s.gifts {
		if g.FamilyID == id {
			full, _ := s.giftLocked(gid)
			f.Gifts = append(f.Gifts, full)
		}
	}
	sort.Slice(f.Persons, func(i, j int) bool {
		return before(f.Persons[i].CreatedAt.UnixNano(), f.Persons[i].ID, f.Persons[j].CreatedAt.UnixNano(), f.Persons[j].ID)
	})
	sort.Slice(f.Gifts, func(i, j int) bool {
		return before(f.Gifts[i].CreatedAt.UnixNano(), f.Gifts[i].ID, f.Gifts[j].CreatedAt.UnixNano(), f.Gifts[j].ID)
	})
	f.LinkGifts()
	return f, true
}

func before(at1 int64, id1 string, at2 int64, id2 string) bool {
	if at1 != at2 {
		return at1 < at2
	}
	return id1 < id2
}
