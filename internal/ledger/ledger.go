// Package ledger derives claimed and available quantities from loaded
// gift/claim graphs. Every function here is pure and total: it never
// touches storage and never returns an error. Malformed quantities are
// rejected at the write boundary, not here.
package ledger

import (
	"math"

	"github.com/ignite/giftdrive/internal/domain"
)

// ClaimedQuantity is the sum of all claim quantities on g.
func ClaimedQuantity(g domain.Gift) int {
	n := 0
	for _, c := range g.Claims {
		n += c.Quantity
	}
	return n
}

// AvailableQuantity is what remains to be claimed on g, floored at zero
// even if the stored claims are inconsistent.
func AvailableQuantity(g domain.Gift) int {
	left := g.Quantity - ClaimedQuantity(g)
	if left < 0 {
		return 0
	}
	return left
}

// Status reports available, partial or claimed for g.
func Status(g domain.Gift) domain.GiftStatus {
	switch {
	case ClaimedQuantity(g) == 0:
		return domain.GiftAvailable
	case AvailableQuantity(g) == 0:
		return domain.GiftClaimed
	default:
		return domain.GiftPartial
	}
}

// PercentComplete rounds 100*claimed/total half away from zero. An empty
// scope (total == 0) is complete.
func PercentComplete(claimed, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(claimed) / float64(total)))
}

// IsPersonFullyClaimed is true when none of p's gifts has anything left.
// A person with no gifts is fully claimed.
func IsPersonFullyClaimed(p domain.Person) bool {
	for _, g := range p.Gifts {
		if AvailableQuantity(g) > 0 {
			return false
		}
	}
	return true
}

// Claimable pairs a gift with the quantity an adoption would take from it.
type Claimable struct {
	Gift      domain.Gift
	Remaining int
}

// ClaimableGifts returns gifts with something left, in input order.
// Fully claimed gifts are omitted.
func ClaimableGifts(gifts []domain.Gift) []Claimable {
	var out []Claimable
	for _, g := range gifts {
		if left := AvailableQuantity(g); left > 0 {
			out = append(out, Claimable{Gift: g, Remaining: left})
		}
	}
	return out
}
