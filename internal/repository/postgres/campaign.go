package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/service/campaign"
	"github.com/lib/pq"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, name, description, status, start_date, end_date,
		       drop_off_address, drop_off_deadline, created_at, updated_at`

func scanCampaign(s scanner) (domain.Campaign, error) {
	var (
		c                      domain.Campaign
		start, end, dropOffDue sql.NullTime
	)
	err := s.Scan(
		&c.ID, &c.Name, &c.Description, &c.Status, &start, &end,
		&c.DropOffAddress, &dropOffDue, &c.CreatedAt, &c.UpdatedAt,
	)
	c.StartDate = timePtr(start)
	c.EndDate = timePtr(end)
	c.DropOffDeadline = timePtr(dropOffDue)
	return c, err
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

func (r *CampaignRepo) GetGraph(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, alias, created_at
		FROM families
		WHERE campaign_id = $1
		ORDER BY created_at, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f domain.Family
		if err := rows.Scan(&f.ID, &f.CampaignID, &f.Alias, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		c.Families = append(c.Families, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list families: %w", err)
	}
	rows.Close()

	if err := loadFamilyChildren(ctx, r.db, c.Families, false); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ""
	args := []interface{}{}
	idx := 1
	if f.Status != "" {
		where = fmt.Sprintf(" WHERE status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		return fmt.Errorf("create campaign: id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, name, description, status, start_date, end_date,
			 drop_off_address, drop_off_deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.Name, c.Description, c.Status, nullTime(c.StartDate), nullTime(c.EndDate),
		c.DropOffAddress, nullTime(c.DropOffDeadline), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.StartDate != nil {
		add("start_date", *u.StartDate)
	}
	if u.EndDate != nil {
		add("end_date", *u.EndDate)
	}
	if u.DropOffAddress != nil {
		add("drop_off_address", *u.DropOffAddress)
	}
	if u.DropOffDeadline != nil {
		add("drop_off_deadline", *u.DropOffDeadline)
	}

	if len(sets) == 0 {
		return nil
	}

	sets = append(sets, "updated_at = NOW()")
	q := fmt.Sprintf("UPDATE campaigns SET %s WHERE id = $%d", strings.Join(sets, ", "), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// UpdateStatus is a compare-and-set on the status column, so two admins
// racing on the same campaign cannot both win.
func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, from, to domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	var current domain.CampaignStatus
	err = r.db.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id = $1`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return campaign.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return fmt.Errorf("%w: status is now %s", campaign.ErrInvalidTransition, current)
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "campaigns", id, campaign.ErrNotFound)
}

func (r *CampaignRepo) ListDropOffDue(ctx context.Context, from, until time.Time) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = $1 AND drop_off_deadline BETWEEN $2 AND $3
		ORDER BY drop_off_deadline
	`, domain.CampaignActive, from, until)
	if err != nil {
		return nil, fmt.Errorf("list drop-off due: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) ListClaims(ctx context.Context, campaignID string) ([]domain.DonorClaim, error) {
	rows, err := r.db.QueryContext(ctx, donorClaimSelect+`
		WHERE f.campaign_id = $1
		ORDER BY f.alias, g.name, c.created_at, c.id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign claims: %w", err)
	}
	return scanDonorClaims(rows)
}

func (r *CampaignRepo) CreateFamily(ctx context.Context, f *domain.Family) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO families (id, campaign_id, alias, created_at)
		VALUES ($1, $2, $3, $4)
	`, f.ID, f.CampaignID, f.Alias, f.CreatedAt)
	if pqCode(err) == codeForeignKeyViolation {
		return campaign.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("create family: %w", err)
	}
	return nil
}

func (r *CampaignRepo) GetFamily(ctx context.Context, id string) (*domain.Family, error) {
	f, ok, err := loadFamily(ctx, r.db, id, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, campaign.ErrFamilyNotFound
	}
	return f, nil
}

func (r *CampaignRepo) DeleteFamily(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "families", id, campaign.ErrFamilyNotFound)
}

func (r *CampaignRepo) CreatePerson(ctx context.Context, p *domain.Person) error {
	var age interface{}
	if p.Age != nil {
		age = *p.Age
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO persons (id, family_id, first_name, last_name, role, age, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.FamilyID, p.FirstName, p.LastName, p.Role, age, p.CreatedAt)
	if pqCode(err) == codeForeignKeyViolation {
		return campaign.ErrFamilyNotFound
	}
	if err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

func (r *CampaignRepo) DeletePerson(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "persons", id, campaign.ErrPersonNotFound)
}

func (r *CampaignRepo) CreateGift(ctx context.Context, g *domain.Gift) error {
	var personID interface{}
	if g.PersonID != nil {
		personID = *g.PersonID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gifts (id, family_id, person_id, name, quantity, description, product_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, g.ID, g.FamilyID, personID, g.Name, g.Quantity, g.Description, g.ProductURL, g.CreatedAt)
	if pqCode(err) == codeForeignKeyViolation {
		// The composite (person_id, family_id) key fails when the person
		// belongs to another family.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && strings.Contains(pqErr.Constraint, "person") {
			return campaign.ErrPersonNotFound
		}
		return campaign.ErrFamilyNotFound
	}
	if pqCode(err) == codeCheckViolation {
		return domain.Invalid("quantity", "must be at least 1")
	}
	if err != nil {
		return fmt.Errorf("create gift: %w", err)
	}
	return nil
}

func (r *CampaignRepo) DeleteGift(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "gifts", id, campaign.ErrGiftNotFound)
}

// deleteByID removes one row; child rows go with it through ON DELETE rules.
func (r *CampaignRepo) deleteByID(ctx context.Context, table, id string, notFound error) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return notFound
	}
	return nil
}
