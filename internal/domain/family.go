package domain

import "time"

// Family is an anonymised household inside a campaign. Alias must never
// carry personally identifying information.
type Family struct {
	ID         string    `json:"id" db:"id"`
	CampaignID string    `json:"campaign_id" db:"campaign_id"`
	Alias      string    `json:"alias" db:"alias"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`

	Persons []Person `json:"persons,omitempty" db:"-"`
	// Gifts holds every gift of the family, assigned to a person or not.
	Gifts []Gift `json:"gifts,omitempty" db:"-"`
}

// Person is a member of a family that gifts can be assigned to.
type Person struct {
	ID        string    `json:"id" db:"id"`
	FamilyID  string    `json:"family_id" db:"family_id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name,omitempty" db:"last_name"`
	Role      string    `json:"role,omitempty" db:"role"`
	Age       *int      `json:"age,omitempty" db:"age"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Gifts []Gift `json:"gifts,omitempty" db:"-"`
}

// DisplayName is the name shown to donors.
func (p Person) DisplayName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// LinkGifts fills each person's Gifts from the family's flat gift list.
// Repositories call it after loading a family graph.
func (f *Family) LinkGifts() {
	idx := make(map[string]int, len(f.Persons))
	for i := range f.Persons {
		f.Persons[i].Gifts = nil
		idx[f.Persons[i].ID] = i
	}
	for _, g := range f.Gifts {
		if g.PersonID == nil {
			continue
		}
		if i, ok := idx[*g.PersonID]; ok {
			f.Persons[i].Gifts = append(f.Persons[i].Gifts, g)
		}
	}
}

// Person returns the family member with the given id.
func (f *Family) Person(id string) (*Person, bool) {
	for i := range f.Persons {
		if f.Persons[i].ID == id {
			return &f.Persons[i], true
		}
	}
	return nil, false
}
