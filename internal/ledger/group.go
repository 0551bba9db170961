package ledger

import "github.com/ignite/giftdrive/internal/domain"

// PersonGroup is one person with their own gifts.
type PersonGroup struct {
	Person        domain.Person `json:"person"`
	Gifts         []GiftView    `json:"gifts"`
	FullyClaimed  bool          `json:"fully_claimed"`
	ClaimableLeft int           `json:"claimable_left"`
}

// GiftView is a gift annotated with its derived quantities.
type GiftView struct {
	domain.Gift
	Claimed   int               `json:"claimed_quantity"`
	Available int               `json:"available_quantity"`
	Status    domain.GiftStatus `json:"status"`
}

// Grouping is a family's wishlist split by person.
type Grouping struct {
	Persons    []PersonGroup `json:"persons"`
	Unassigned []GiftView    `json:"unassigned"`
}

// ViewOf annotates g with its derived quantities. The claims themselves are
// dropped so donor details never reach a public view.
func ViewOf(g domain.Gift) GiftView {
	v := GiftView{
		Gift:      g,
		Claimed:   ClaimedQuantity(g),
		Available: AvailableQuantity(g),
		Status:    Status(g),
	}
	v.Gift.Claims = nil
	return v
}

// GroupGiftsByPerson returns persons in f.Persons order, each with the gifts
// assigned to them in f.Gifts order. Gifts with no person, or pointing at a
// person outside the family, go to Unassigned. A family without persons
// yields no groups and every gift unassigned.
func GroupGiftsByPerson(f domain.Family) Grouping {
	out := Grouping{
		Persons:    make([]PersonGroup, len(f.Persons)),
		Unassigned: []GiftView{},
	}
	idx := make(map[string]int, len(f.Persons))
	for i, p := range f.Persons {
		p.Gifts = nil
		out.Persons[i] = PersonGroup{Person: p, Gifts: []GiftView{}}
		idx[p.ID] = i
	}

	for _, g := range f.Gifts {
		i, ok := -1, false
		if g.PersonID != nil {
			i, ok = idx[*g.PersonID]
		}
		if !ok {
			out.Unassigned = append(out.Unassigned, ViewOf(g))
			continue
		}
		pg := &out.Persons[i]
		pg.Gifts = append(pg.Gifts, ViewOf(g))
		pg.Person.Gifts = append(pg.Person.Gifts, g)
	}

	for i := range out.Persons {
		pg := &out.Persons[i]
		pg.FullyClaimed = IsPersonFullyClaimed(pg.Person)
		pg.Person.Gifts = nil
		for _, v := range pg.Gifts {
			pg.ClaimableLeft += v.Available
		}
	}
	return out
}
