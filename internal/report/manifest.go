// Package report builds the drop-off manifest volunteers use to check in
// gifts: one line per claim, plus one line per gift nobody has claimed.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/ledger"
)

// Row is one manifest line.
type Row struct {
	FamilyAlias   string
	Person        string
	Gift          string
	Quantity      int
	Claimed       int
	DonorName     string
	DonorEmail    string
	ClaimQuantity int
	ClaimedAt     *time.Time
}

var header = []string{
	"family", "person", "gift", "quantity", "claimed",
	"donor_name", "donor_email", "claim_quantity", "claimed_at",
}

// BuildManifest flattens a campaign graph into rows ordered by family
// alias, person, gift name and claim time.
func BuildManifest(c domain.Campaign) []Row {
	var rows []Row
	for _, f := range c.Families {
		persons := make(map[string]string, len(f.Persons))
		for _, p := range f.Persons {
			persons[p.ID] = p.DisplayName()
		}
		for _, g := range f.Gifts {
			base := Row{
				FamilyAlias: f.Alias,
				Gift:        g.Name,
				Quantity:    g.Quantity,
				Claimed:     ledger.ClaimedQuantity(g),
			}
			if g.PersonID != nil {
				base.Person = persons[*g.PersonID]
			}
			if len(g.Claims) == 0 {
				rows = append(rows, base)
				continue
			}
			claims := append([]domain.Claim(nil), g.Claims...)
			sort.SliceStable(claims, func(i, j int) bool { return claims[i].CreatedAt.Before(claims[j].CreatedAt) })
			for _, cl := range claims {
				r := base
				r.DonorName = cl.DonorName
				r.DonorEmail = cl.DonorEmail
				r.ClaimQuantity = cl.Quantity
				at := cl.CreatedAt
				r.ClaimedAt = &at
				rows = append(rows, r)
			}
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.FamilyAlias != b.FamilyAlias {
			return a.FamilyAlias < b.FamilyAlias
		}
		if a.Person != b.Person {
			return a.Person < b.Person
		}
		return a.Gift < b.Gift
	})
	return rows
}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		claimedAt, claimQty := "", ""
		if r.ClaimedAt != nil {
			claimedAt = r.ClaimedAt.UTC().Format(time.RFC3339)
			claimQty = strconv.Itoa(r.ClaimQuantity)
		}
		rec := []string{
			r.FamilyAlias, r.Person, r.Gift,
			strconv.Itoa(r.Quantity), strconv.Itoa(r.Claimed),
			r.DonorName, r.DonorEmail, claimQty, claimedAt,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
