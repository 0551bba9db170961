package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/pkg/httputil"
	"github.com/ignite/giftdrive/internal/service/campaign"
)

// ListCampaigns pages through campaigns, newest first.
//
//	GET /api/admin/campaigns?status=&page=&limit=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 50, 200)
	list, total, err := h.campaigns.List(r.Context(), campaign.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Campaign{}
	}
	httputil.OK(w, NewPaginatedResponse(list, p, total))
}

// CreateCampaign creates a draft campaign.
//
//	POST /api/admin/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.campaigns.Create(r.Context(), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, c)
}

// GetCampaignGraph returns the full campaign graph including donor details.
//
//	GET /api/admin/campaigns/{id}
func (h *Handlers) GetCampaignGraph(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Graph(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, c)
}

type updateCampaignRequest struct {
	Name            *string    `json:"name"`
	Description     *string    `json:"description"`
	StartDate       *time.Time `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
	DropOffAddress  *string    `json:"drop_off_address"`
	DropOffDeadline *time.Time `json:"drop_off_deadline"`
}

// UpdateCampaign changes campaign settings. Absent fields are left alone.
//
//	PATCH /api/admin/campaigns/{id}
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req updateCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	err := h.campaigns.Update(r.Context(), id, campaign.UpdateFields{
		Name:            req.Name,
		Description:     req.Description,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		DropOffAddress:  req.DropOffAddress,
		DropOffDeadline: req.DropOffDeadline,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	v, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, v)
}

// DeleteCampaign removes a campaign and everything it owns.
//
//	DELETE /api/admin/campaigns/{id}
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// SetCampaignStatus moves a campaign through its lifecycle.
//
//	POST /api/admin/campaigns/{id}/status {"status":"ACTIVE"}
func (h *Handlers) SetCampaignStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status domain.CampaignStatus `json:"status"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.campaigns.Transition(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.OK(w, c)
}

// ListCampaignClaims returns every claim in a campaign.
//
//	GET /api/admin/campaigns/{id}/claims
func (h *Handlers) ListCampaignClaims(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Claims on a missing campaign is an empty list in SQL; 404 instead.
	if _, err := h.campaigns.Get(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	claims, err := h.campaigns.Claims(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if claims == nil {
		claims = []domain.DonorClaim{}
	}
	httputil.OK(w, map[string]interface{}{"claims": claims})
}

// CreateFamily adds a family to a campaign.
//
//	POST /api/admin/campaigns/{id}/families {"alias":"Family 12"}
func (h *Handlers) CreateFamily(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Alias string `json:"alias"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	f, err := h.campaigns.CreateFamily(r.Context(), chi.URLParam(r, "id"), req.Alias)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, f)
}

// DeleteFamily removes a family with its persons, gifts and claims.
//
//	DELETE /api/admin/families/{id}
func (h *Handlers) DeleteFamily(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.DeleteFamily(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// AddPerson adds a member to a family.
//
//	POST /api/admin/families/{id}/persons
func (h *Handlers) AddPerson(w http.ResponseWriter, r *http.Request) {
	var in campaign.PersonInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	p, err := h.campaigns.AddPerson(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, p)
}

// DeletePerson removes a person; their gifts stay with the family.
//
//	DELETE /api/admin/persons/{id}
func (h *Handlers) DeletePerson(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.RemovePerson(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// AddGift adds a wishlist item to a family.
//
//	POST /api/admin/families/{id}/gifts
func (h *Handlers) AddGift(w http.ResponseWriter, r *http.Request) {
	var in campaign.GiftInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	g, err := h.campaigns.AddGift(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.Created(w, g)
}

// DeleteGift removes a gift and its claims.
//
//	DELETE /api/admin/gifts/{id}
func (h *Handlers) DeleteGift(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.DeleteGift(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// RemoveClaim deletes a claim, returning its quantity to the gift.
//
//	DELETE /api/admin/claims/{id}
func (h *Handlers) RemoveClaim(w http.ResponseWriter, r *http.Request) {
	if err := h.claims.RemoveClaim(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// DonorLink issues a claims link for a donor who lost their confirmation
// email. url is empty when no public URL is configured.
//
//	GET /api/admin/donors/link?email=
func (h *Handlers) DonorLink(w http.ResponseWriter, r *http.Request) {
	email := domain.NormalizeEmail(r.URL.Query().Get("email"))
	if err := domain.ValidateEmail("email", email); err != nil {
		respondServiceError(w, r, err)
		return
	}
	token, err := h.links.Token(email)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	link, err := h.links.URL(email)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"email": email, "token": token, "url": link})
}
