package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/pkg/donorlink"
	"github.com/ignite/giftdrive/internal/pkg/httputil"
	"github.com/ignite/giftdrive/internal/pkg/logger"
	"github.com/ignite/giftdrive/internal/service/claim"
)

// GetCampaign returns a campaign with each family's progress.
//
//	GET /api/campaigns/{id}
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	v, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, v)
}

// GetFamily returns a family's wishlist grouped by person.
//
//	GET /api/families/{id}
func (h *Handlers) GetFamily(w http.ResponseWriter, r *http.Request) {
	v, err := h.campaigns.GetFamily(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, v)
}

// PreviewAdoption lists what adopting the family, or one person when
// ?person_id is set, would claim right now.
//
//	GET /api/families/{id}/preview
func (h *Handlers) PreviewAdoption(w http.ResponseWriter, r *http.Request) {
	items, err := h.claims.Preview(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("person_id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	out := make([]previewItem, 0, len(items))
	total := 0
	for _, it := range items {
		out = append(out, previewItem{
			GiftID:   it.Gift.ID,
			Name:     it.Gift.Name,
			PersonID: it.Gift.PersonID,
			Quantity: it.Remaining,
		})
		total += it.Remaining
	}
	httputil.OK(w, map[string]interface{}{
		"items":          out,
		"total_quantity": total,
	})
}

type previewItem struct {
	GiftID   string  `json:"gift_id"`
	Name     string  `json:"name"`
	PersonID *string `json:"person_id,omitempty"`
	Quantity int     `json:"quantity"`
}

// GetGift returns a gift's current availability.
//
//	GET /api/gifts/{id}
func (h *Handlers) GetGift(w http.ResponseWriter, r *http.Request) {
	v, err := h.claims.GiftAvailability(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, v)
}

// ClaimGift claims part of one gift.
//
//	POST /api/gifts/{id}/claims
func (h *Handlers) ClaimGift(w http.ResponseWriter, r *http.Request) {
	var in claim.ClaimInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.claims.ClaimGift(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, c)
}

// AdoptFamily claims everything still available for a family.
//
//	POST /api/families/{id}/adopt
func (h *Handlers) AdoptFamily(w http.ResponseWriter, r *http.Request) {
	var donor domain.Donor
	if !httputil.Decode(w, r, &donor) {
		return
	}
	res, err := h.claims.ClaimFamily(r.Context(), chi.URLParam(r, "id"), donor)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, res)
}

// AdoptPerson claims everything still available for one family member.
//
//	POST /api/families/{id}/persons/{personID}/adopt
func (h *Handlers) AdoptPerson(w http.ResponseWriter, r *http.Request) {
	var donor domain.Donor
	if !httputil.Decode(w, r, &donor) {
		return
	}
	res, err := h.claims.ClaimPerson(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "personID"), donor)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, res)
}

// DonorClaims lists the claims made with the email a signed link was
// issued for.
//
//	GET /api/donors/claims?token=
func (h *Handlers) DonorClaims(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.ErrorCode(w, http.StatusUnauthorized, "link_required", "a claims link is required")
		return
	}
	email, err := h.links.Verify(token)
	if errors.Is(err, donorlink.ErrExpiredToken) {
		httputil.ErrorCode(w, http.StatusUnauthorized, "link_expired", err.Error())
		return
	}
	if err != nil {
		logger.Warn("rejected donor claims link", "path", r.URL.Path, "remote", r.RemoteAddr)
		httputil.ErrorCode(w, http.StatusUnauthorized, "link_invalid", donorlink.ErrInvalidToken.Error())
		return
	}

	claims, err := h.claims.ClaimsByDonor(r.Context(), email)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if claims == nil {
		claims = []domain.DonorClaim{}
	}
	httputil.OK(w, map[string]interface{}{"claims": claims})
}
