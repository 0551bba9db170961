package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/giftdrive/internal/pkg/donorlink"
	"github.com/ignite/giftdrive/internal/pkg/httputil"
	"github.com/ignite/giftdrive/internal/service/campaign"
	"github.com/ignite/giftdrive/internal/service/claim"
)

// ManifestArchiver stores a copy of each generated manifest.
type ManifestArchiver interface {
	Upload(ctx context.Context, campaignID string, csv []byte, at time.Time) (string, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	claims    *claim.Service
	campaigns *campaign.Service
	health    *HealthChecker
	archive   ManifestArchiver
	links     *donorlink.Signer
	now       func() time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(claims *claim.Service, campaigns *campaign.Service) *Handlers {
	return &Handlers{
		claims:    claims,
		campaigns: campaigns,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetHealthChecker enables /health/live and /health/ready.
func (h *Handlers) SetHealthChecker(hc *HealthChecker) {
	h.health = hc
}

// SetManifestArchiver archives every manifest download.
func (h *Handlers) SetManifestArchiver(a ManifestArchiver) {
	h.archive = a
}

// SetDonorLinks enables the signed donor claims lookup and the admin link
// endpoint. Without a signer neither route is mounted.
func (h *Handlers) SetDonorLinks(s *donorlink.Signer) {
	h.links = s
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.JSON(w, status, data)
}
