package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/ledger"
	"github.com/ignite/giftdrive/internal/pkg/logger"
)

// Service implements campaign administration. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CampaignView is a campaign graph with derived progress.
type CampaignView struct {
	domain.Campaign
	Families []FamilySummary        `json:"families"`
	Progress ledger.CampaignProgress `json:"progress"`
}

// FamilySummary is one family's line in a campaign overview.
type FamilySummary struct {
	ID       string                `json:"id"`
	Alias    string                `json:"alias"`
	Progress ledger.FamilyProgress `json:"progress"`
}

// FamilyView is a family with gifts grouped by person and its progress.
type FamilyView struct {
	ID         string                `json:"id"`
	CampaignID string                `json:"campaign_id"`
	Alias      string                `json:"alias"`
	Persons    []ledger.PersonGroup  `json:"persons"`
	Unassigned []ledger.GiftView     `json:"unassigned"`
	Progress   ledger.FamilyProgress `json:"progress"`
}

// Get returns a campaign with per-family and overall progress.
func (s *Service) Get(ctx context.Context, id string) (*CampaignView, error) {
	c, err := s.repo.GetGraph(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &CampaignView{
		Campaign: *c,
		Families: make([]FamilySummary, 0, len(c.Families)),
		Progress: ledger.ProgressOfCampaign(*c),
	}
	v.Campaign.Families = nil
	for _, f := range c.Families {
		v.Families = append(v.Families, FamilySummary{
			ID:       f.ID,
			Alias:    f.Alias,
			Progress: ledger.ProgressOfFamily(f),
		})
	}
	return v, nil
}

// Graph returns the full campaign graph including every claim. It is for
// admin exports and must not be served to donors.
func (s *Service) Graph(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.GetGraph(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	if f.Status != "" && !domain.CampaignStatus(f.Status).Valid() {
		return nil, 0, domain.Invalid("status", "unknown status %q", f.Status)
	}
	return s.repo.List(ctx, f)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	StartDate       *time.Time `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	DropOffAddress  string     `json:"drop_off_address"`
	DropOffDeadline *time.Time `json:"drop_off_deadline"`
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.Invalid("name", "is required")
	}
	if err := checkDates(input.StartDate, input.EndDate); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &domain.Campaign{
		ID:              uuid.New().String(),
		Name:            name,
		Description:     input.Description,
		Status:          domain.CampaignDraft,
		StartDate:       input.StartDate,
		EndDate:         input.EndDate,
		DropOffAddress:  input.DropOffAddress,
		DropOffDeadline: input.DropOffDeadline,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	logger.Info("campaign created", "campaign_id", c.ID, "name", c.Name)
	return c, nil
}

// Update modifies campaign settings. Status is changed only via Transition.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return domain.Invalid("name", "cannot be empty")
	}
	if u.StartDate != nil || u.EndDate != nil {
		cur, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		start, end := cur.StartDate, cur.EndDate
		if u.StartDate != nil {
			start = u.StartDate
		}
		if u.EndDate != nil {
			end = u.EndDate
		}
		if err := checkDates(start, end); err != nil {
			return err
		}
	}
	return s.repo.Update(ctx, id, u)
}

// Delete removes a campaign with all its families, gifts and claims.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Info("campaign deleted", "campaign_id", id)
	return nil
}

// Transition moves a campaign to status to if the lifecycle allows it.
func (s *Service) Transition(ctx context.Context, id string, to domain.CampaignStatus) (*domain.Campaign, error) {
	if !to.Valid() {
		return nil, domain.Invalid("status", "unknown status %q", to)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, id, c.Status, to); err != nil {
		return nil, fmt.Errorf("transition to %s: %w", to, err)
	}
	logger.Info("campaign status changed", "campaign_id", id, "from", c.Status, "to", to)
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	return c, nil
}

// Activate opens a draft campaign for claims.
func (s *Service) Activate(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.Transition(ctx, id, domain.CampaignActive)
}

// Close stops accepting claims.
func (s *Service) Close(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.Transition(ctx, id, domain.CampaignClosed)
}

// Archive retires a closed campaign.
func (s *Service) Archive(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.Transition(ctx, id, domain.CampaignArchived)
}

// Restore returns an archived campaign to draft so it can be reused.
func (s *Service) Restore(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.Transition(ctx, id, domain.CampaignDraft)
}

func checkDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return domain.Invalid("end_date", "must not be before start_date")
	}
	return nil
}
