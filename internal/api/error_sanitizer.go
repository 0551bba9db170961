package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/pkg/httputil"
	"github.com/ignite/giftdrive/internal/pkg/logger"
	"github.com/ignite/giftdrive/internal/service/campaign"
	"github.com/ignite/giftdrive/internal/service/claim"
)

// errorRule maps a sentinel to a status. The public message is the
// sentinel's own text, never the wrapped error.
type errorRule struct {
	target error
	status int
	code   string
}

var errorRules = []errorRule{
	{claim.ErrInsufficientAvailability, http.StatusConflict, "insufficient_availability"},
	{claim.ErrCampaignNotActive, http.StatusLocked, "campaign_not_active"},
	{campaign.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{claim.ErrGiftNotFound, http.StatusNotFound, "not_found"},
	{claim.ErrFamilyNotFound, http.StatusNotFound, "not_found"},
	{claim.ErrPersonNotFound, http.StatusNotFound, "not_found"},
	{claim.ErrClaimNotFound, http.StatusNotFound, "not_found"},
	{campaign.ErrNotFound, http.StatusNotFound, "not_found"},
	{campaign.ErrFamilyNotFound, http.StatusNotFound, "not_found"},
	{campaign.ErrPersonNotFound, http.StatusNotFound, "not_found"},
	{campaign.ErrGiftNotFound, http.StatusNotFound, "not_found"},
}

// respondServiceError writes the response for an error returned by a
// service. Unknown errors are logged and answered with a generic 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		httputil.JSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error:   verr.Error(),
			Code:    "validation",
			Details: verr,
		})
		return
	}
	for _, rule := range errorRules {
		if errors.Is(err, rule.target) {
			httputil.ErrorCode(w, rule.status, rule.code, rule.target.Error())
			return
		}
	}
	switch {
	case errors.Is(err, claim.ErrTransientConflict):
		logger.Warn("claim conflict persisted after retries", "path", r.URL.Path, "error", err)
		httputil.Unavailable(w, time.Second, "the gift list is busy, please try again")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "path", r.URL.Path, "error", err)
		httputil.Unavailable(w, time.Second, "request timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads this.
		w.WriteHeader(499)
	default:
		httputil.InternalError(w, err)
	}
}
