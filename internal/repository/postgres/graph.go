package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/lib/pq"
)

const giftColumns = `g.id, g.family_id, g.person_id, g.name, g.quantity, g.description, g.product_url, g.created_at`

const claimColumns = `c.id, c.gift_id, c.donor_name, c.donor_email, c.quantity, c.created_at`

const personColumns = `p.id, p.family_id, p.first_name, p.last_name, p.role, p.age, p.created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGift(s scanner) (domain.Gift, error) {
	var (
		g        domain.Gift
		personID sql.NullString
	)
	err := s.Scan(&g.ID, &g.FamilyID, &personID, &g.Name, &g.Quantity, &g.Description, &g.ProductURL, &g.CreatedAt)
	if personID.Valid {
		g.PersonID = &personID.String
	}
	return g, err
}

func scanClaim(s scanner) (domain.Claim, error) {
	var c domain.Claim
	err := s.Scan(&c.ID, &c.GiftID, &c.DonorName, &c.DonorEmail, &c.Quantity, &c.CreatedAt)
	return c, err
}

func scanPerson(s scanner) (domain.Person, error) {
	var (
		p   domain.Person
		age sql.NullInt64
	)
	err := s.Scan(&p.ID, &p.FamilyID, &p.FirstName, &p.LastName, &p.Role, &age, &p.CreatedAt)
	if age.Valid {
		n := int(age.Int64)
		p.Age = &n
	}
	return p, err
}

// loadFamilyChildren fills persons, gifts and claims of the given
// families. With lock set the gift rows are locked FOR UPDATE in id order,
// which is the order every transaction acquires them in.
func loadFamilyChildren(ctx context.Context, q queryer, families []domain.Family, lock bool) error {
	if len(families) == 0 {
		return nil
	}
	ids := make([]string, len(families))
	byID := make(map[string]*domain.Family, len(families))
	for i := range families {
		ids[i] = families[i].ID
		byID[families[i].ID] = &families[i]
		families[i].Persons, families[i].Gifts = nil, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+personColumns+`
		FROM persons p
		WHERE p.family_id = ANY($1)
		ORDER BY p.created_at, p.id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list persons: %w", err)
	}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan person: %w", err)
		}
		if f := byID[p.FamilyID]; f != nil {
			f.Persons = append(f.Persons, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("list persons: %w", err)
	}

	giftQ := `
		SELECT ` + giftColumns + `
		FROM gifts g
		WHERE g.family_id = ANY($1)
		ORDER BY g.created_at, g.id`
	if lock {
		giftQ = `
		SELECT ` + giftColumns + `
		FROM gifts g
		WHERE g.family_id = ANY($1)
		ORDER BY g.id
		FOR UPDATE`
	}
	rows, err = q.QueryContext(ctx, giftQ, pq.Array(ids))
	if err != nil {
		return wrapTx("list gifts", err)
	}
	giftIdx := make(map[string][2]int)
	for rows.Next() {
		g, err := scanGift(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("scan gift: %w", err)
		}
		f := byID[g.FamilyID]
		if f == nil {
			continue
		}
		g.CampaignID, g.FamilyAlias = f.CampaignID, f.Alias
		f.Gifts = append(f.Gifts, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return wrapTx("list gifts", err)
	}
	for fi := range families {
		for gi := range families[fi].Gifts {
			giftIdx[families[fi].Gifts[gi].ID] = [2]int{fi, gi}
		}
	}

	rows, err = q.QueryContext(ctx, `
		SELECT `+claimColumns+`
		FROM claims c
		JOIN gifts g ON g.id = c.gift_id
		WHERE g.family_id = ANY($1)
		ORDER BY c.created_at, c.id`, pq.Array(ids))
	if err != nil {
		return wrapTx("list claims", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return fmt.Errorf("scan claim: %w", err)
		}
		if at, ok := giftIdx[c.GiftID]; ok {
			g := &families[at[0]].Gifts[at[1]]
			g.Claims = append(g.Claims, c)
		}
	}
	if err := rows.Err(); err != nil {
		return wrapTx("list claims", err)
	}

	for i := range families {
		families[i].LinkGifts()
	}
	return nil
}

// loadFamily reads one family graph. lock adds FOR SHARE on the family row
// and FOR UPDATE on its gifts.
func loadFamily(ctx context.Context, q queryer, id string, lock bool) (*domain.Family, bool, error) {
	query := `SELECT id, campaign_id, alias, created_at FROM families WHERE id = $1`
	if lock {
		query += ` FOR SHARE`
	}
	var f domain.Family
	err := q.QueryRowContext(ctx, query, id).Scan(&f.ID, &f.CampaignID, &f.Alias, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapTx("get family", err)
	}
	fams := []domain.Family{f}
	if err := loadFamilyChildren(ctx, q, fams, lock); err != nil {
		return nil, false, err
	}
	return &fams[0], true, nil
}

const donorClaimSelect = `
	SELECT ` + claimColumns + `,
	       g.name, f.id, f.alias,
	       COALESCE(TRIM(p.first_name || ' ' || p.last_name), ''),
	       cp.id, cp.name, cp.drop_off_address, cp.drop_off_deadline
	FROM claims c
	JOIN gifts g ON g.id = c.gift_id
	JOIN families f ON f.id = g.family_id
	JOIN campaigns cp ON cp.id = f.campaign_id
	LEFT JOIN persons p ON p.id = g.person_id`

func scanDonorClaims(rows *sql.Rows) ([]domain.DonorClaim, error) {
	defer rows.Close()
	var out []domain.DonorClaim
	for rows.Next() {
		var (
			dc       domain.DonorClaim
			deadline sql.NullTime
		)
		if err := rows.Scan(
			&dc.ID, &dc.GiftID, &dc.DonorName, &dc.DonorEmail, &dc.Quantity, &dc.CreatedAt,
			&dc.GiftName, &dc.FamilyID, &dc.FamilyAlias, &dc.PersonName,
			&dc.CampaignID, &dc.CampaignName, &dc.DropOffAddress, &deadline,
		); err != nil {
			return nil, fmt.Errorf("scan donor claim: %w", err)
		}
		if deadline.Valid {
			t := deadline.Time
			dc.DropOffDeadline = &t
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
