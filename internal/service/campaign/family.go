package campaign

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/ledger"
	"github.com/ignite/giftdrive/internal/pkg/logger"
)

// CreateFamily adds a family to a campaign. The alias is shown to donors
// and must not identify the household.
func (s *Service) CreateFamily(ctx context.Context, campaignID, alias string) (*domain.Family, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return nil, domain.Invalid("alias", "is required")
	}
	f := &domain.Family{
		ID:         uuid.New().String(),
		CampaignID: campaignID,
		Alias:      alias,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateFamily(ctx, f); err != nil {
		return nil, err
	}
	logger.Info("family created", "campaign_id", campaignID, "family_id", f.ID)
	return f, nil
}

// GetFamily returns a family's gifts grouped by person, with progress.
func (s *Service) GetFamily(ctx context.Context, id string) (*FamilyView, error) {
	f, err := s.repo.GetFamily(ctx, id)
	if err != nil {
		return nil, err
	}
	g := ledger.GroupGiftsByPerson(*f)
	return &FamilyView{
		ID:         f.ID,
		CampaignID: f.CampaignID,
		Alias:      f.Alias,
		Persons:    g.Persons,
		Unassigned: g.Unassigned,
		Progress:   ledger.ProgressOfFamily(*f),
	}, nil
}

// DeleteFamily removes a family with its persons, gifts and claims.
func (s *Service) DeleteFamily(ctx context.Context, id string) error {
	return s.repo.DeleteFamily(ctx, id)
}

// PersonInput holds the fields for adding a family member.
type PersonInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Age       *int   `json:"age"`
}

// AddPerson adds a member to a family.
func (s *Service) AddPerson(ctx context.Context, familyID string, in PersonInput) (*domain.Person, error) {
	first := strings.TrimSpace(in.FirstName)
	if first == "" {
		return nil, domain.Invalid("first_name", "is required")
	}
	if in.Age != nil && (*in.Age < 0 || *in.Age > 130) {
		return nil, domain.Invalid("age", "must be between 0 and 130")
	}
	p := &domain.Person{
		ID:        uuid.New().String(),
		FamilyID:  familyID,
		FirstName: first,
		LastName:  strings.TrimSpace(in.LastName),
		Role:      in.Role,
		Age:       in.Age,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreatePerson(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RemovePerson deletes a person; their gifts stay with the family unassigned.
func (s *Service) RemovePerson(ctx context.Context, id string) error {
	return s.repo.DeletePerson(ctx, id)
}

// GiftInput holds the fields for adding a gift.
type GiftInput struct {
	PersonID    string `json:"person_id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Description string `json:"description"`
	ProductURL  string `json:"product_url"`
}

// AddGift adds a wishlist item to a family, optionally assigned to one of
// its persons.
func (s *Service) AddGift(ctx context.Context, familyID string, in GiftInput) (*domain.Gift, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.Invalid("name", "is required")
	}
	if err := domain.ValidateQuantity("quantity", in.Quantity); err != nil {
		return nil, err
	}

	g := &domain.Gift{
		ID:          uuid.New().String(),
		FamilyID:    familyID,
		Name:        name,
		Quantity:    in.Quantity,
		Description: in.Description,
		ProductURL:  strings.TrimSpace(in.ProductURL),
		CreatedAt:   time.Now().UTC(),
	}
	if in.PersonID != "" {
		f, err := s.repo.GetFamily(ctx, familyID)
		if err != nil {
			return nil, err
		}
		if _, ok := f.Person(in.PersonID); !ok {
			return nil, domain.Invalid("person_id", "person %s is not in family %s", in.PersonID, familyID)
		}
		pid := in.PersonID
		g.PersonID = &pid
	}
	if err := s.repo.CreateGift(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteGift removes a gift and its claims.
func (s *Service) DeleteGift(ctx context.Context, id string) error {
	return s.repo.DeleteGift(ctx, id)
}

// DueForReminder returns ACTIVE campaigns whose drop-off deadline is
// between now and now+lead.
func (s *Service) DueForReminder(ctx context.Context, now time.Time, lead time.Duration) ([]domain.Campaign, error) {
	return s.repo.ListDropOffDue(ctx, now, now.Add(lead))
}

// Claims returns every claim in a campaign with its gift and family context.
func (s *Service) Claims(ctx context.Context, campaignID string) ([]domain.DonorClaim, error) {
	if _, err := s.repo.Get(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.repo.ListClaims(ctx, campaignID)
}
