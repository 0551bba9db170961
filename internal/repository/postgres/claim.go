package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/service/claim"
)

// ClaimRepo implements claim.Repository against PostgreSQL. Claim
// transactions lock gift rows with SELECT ... FOR UPDATE and read the
// campaign status FOR SHARE.
type ClaimRepo struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewClaimRepo creates a Postgres-backed claim repository. A positive
// lockTimeout bounds how long a transaction waits for a gift row lock
// before failing with a retryable conflict.
func NewClaimRepo(db *sql.DB, lockTimeout time.Duration) *ClaimRepo {
	return &ClaimRepo{db: db, lockTimeout: lockTimeout}
}

func (r *ClaimRepo) BeginTx(ctx context.Context, isolation sql.IsolationLevel) (claim.Tx, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return nil, wrapTx("begin tx", err)
	}
	if r.lockTimeout > 0 {
		// SET LOCAL takes no bind parameters.
		q := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return nil, wrapTx("set lock timeout", err)
		}
	}
	return &claimTx{tx: tx}, nil
}

func (r *ClaimRepo) GetGift(ctx context.Context, giftID string) (*domain.Gift, error) {
	return getGift(ctx, r.db, giftID, false)
}

func (r *ClaimRepo) GetFamily(ctx context.Context, familyID string) (*domain.Family, error) {
	f, ok, err := loadFamily(ctx, r.db, familyID, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, claim.ErrFamilyNotFound
	}
	return f, nil
}

func (r *ClaimRepo) ListClaimsByDonor(ctx context.Context, email string) ([]domain.DonorClaim, error) {
	rows, err := r.db.QueryContext(ctx, donorClaimSelect+`
		WHERE lower(c.donor_email) = $1
		ORDER BY c.created_at DESC, c.id DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("list donor claims: %w", err)
	}
	return scanDonorClaims(rows)
}

func getGift(ctx context.Context, q queryer, giftID string, lock bool) (*domain.Gift, error) {
	query := `
		SELECT ` + giftColumns + `, f.campaign_id, f.alias
		FROM gifts g
		JOIN families f ON f.id = g.family_id
		WHERE g.id = $1`
	if lock {
		query += `
		FOR UPDATE OF g`
	}

	var (
		g        domain.Gift
		personID sql.NullString
	)
	err := q.QueryRowContext(ctx, query, giftID).Scan(
		&g.ID, &g.FamilyID, &personID, &g.Name, &g.Quantity, &g.Description, &g.ProductURL, &g.CreatedAt,
		&g.CampaignID, &g.FamilyAlias,
	)
	if err == sql.ErrNoRows {
		return nil, claim.ErrGiftNotFound
	}
	if err != nil {
		return nil, wrapTx("get gift", err)
	}
	if personID.Valid {
		g.PersonID = &personID.String
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+claimColumns+`
		FROM claims c
		WHERE c.gift_id = $1
		ORDER BY c.created_at, c.id`, giftID)
	if err != nil {
		return nil, wrapTx("list gift claims", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		g.Claims = append(g.Claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapTx("list gift claims", err)
	}
	return &g, nil
}

// claimTx implements claim.Tx on a *sql.Tx.
type claimTx struct{ tx *sql.Tx }

func (t *claimTx) GiftWithClaims(ctx context.Context, giftID string) (*domain.Gift, error) {
	return getGift(ctx, t.tx, giftID, true)
}

func (t *claimTx) FamilyWithGiftsAndClaims(ctx context.Context, familyID string) (*domain.Family, error) {
	f, ok, err := loadFamily(ctx, t.tx, familyID, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, claim.ErrFamilyNotFound
	}
	return f, nil
}

func (t *claimTx) CampaignStatus(ctx context.Context, campaignID string) (domain.CampaignStatus, error) {
	var status domain.CampaignStatus
	err := t.tx.QueryRowContext(ctx,
		`SELECT status FROM campaigns WHERE id = $1 FOR SHARE`, campaignID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("campaign %s: %w", campaignID, claim.ErrCampaignNotActive)
	}
	if err != nil {
		return "", wrapTx("get campaign status", err)
	}
	return status, nil
}

func (t *claimTx) InsertClaim(ctx context.Context, c *domain.Claim) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO claims (id, gift_id, donor_name, donor_email, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.GiftID, c.DonorName, c.DonorEmail, c.Quantity, c.CreatedAt)
	if pqCode(err) == codeForeignKeyViolation {
		return claim.ErrGiftNotFound
	}
	if pqCode(err) == codeCheckViolation {
		return domain.Invalid("quantity", "must be at least 1")
	}
	if err != nil {
		return wrapTx("insert claim", err)
	}
	return nil
}

func (t *claimTx) DeleteClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	row := t.tx.QueryRowContext(ctx, `
		DELETE FROM claims c
		WHERE c.id = $1
		RETURNING `+claimColumns, claimID)
	c, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, claim.ErrClaimNotFound
	}
	if err != nil {
		return nil, wrapTx("delete claim", err)
	}
	return &c, nil
}

func (t *claimTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return wrapTx("commit", err)
	}
	return nil
}

func (t *claimTx) Rollback() error {
	return t.tx.Rollback()
}
