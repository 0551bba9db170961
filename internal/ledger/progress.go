package ledger

import "github.com/ignite/giftdrive/internal/domain"

// FamilyProgress summarises one family's wishlist.
type FamilyProgress struct {
	TotalGifts      int `json:"total_gifts"`
	ClaimedGifts    int `json:"claimed_gifts"`
	TotalQuantity   int `json:"total_quantity"`
	ClaimedQuantity int `json:"claimed_quantity"`
	PercentComplete int `json:"percent_complete"`
}

// CampaignProgress summarises every family in a campaign.
type CampaignProgress struct {
	TotalFamilies   int `json:"total_families"`
	TotalGifts      int `json:"total_gifts"`
	TotalQuantity   int `json:"total_quantity"`
	ClaimedQuantity int `json:"claimed_quantity"`
	PercentComplete int `json:"percent_complete"`
}

// ProgressOfFamily counts over f.Gifts, which holds person-assigned and
// unassigned gifts alike.
func ProgressOfFamily(f domain.Family) FamilyProgress {
	var p FamilyProgress
	for _, g := range f.Gifts {
		p.TotalGifts++
		p.TotalQuantity += g.Quantity
		p.ClaimedQuantity += ClaimedQuantity(g)
		if AvailableQuantity(g) == 0 {
			p.ClaimedGifts++
		}
	}
	p.PercentComplete = PercentComplete(p.ClaimedQuantity, p.TotalQuantity)
	return p
}

// ProgressOfCampaign aggregates ProgressOfFamily over c.Families.
func ProgressOfCampaign(c domain.Campaign) CampaignProgress {
	var p CampaignProgress
	for _, f := range c.Families {
		fp := ProgressOfFamily(f)
		p.TotalFamilies++
		p.TotalGifts += fp.TotalGifts
		p.TotalQuantity += fp.TotalQuantity
		p.ClaimedQuantity += fp.ClaimedQuantity
	}
	p.PercentComplete = PercentComplete(p.ClaimedQuantity, p.TotalQuantity)
	return p
}
