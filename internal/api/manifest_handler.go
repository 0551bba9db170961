package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/giftdrive/internal/pkg/httputil"
	"github.com/ignite/giftdrive/internal/pkg/logger"
	"github.com/ignite/giftdrive/internal/report"
)

// DownloadManifest streams the drop-off manifest as CSV. When an archiver is
// configured a copy is uploaded first; an upload failure is logged and the
// download still succeeds.
//
//	GET /api/admin/campaigns/{id}/manifest.csv
func (h *Handlers) DownloadManifest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.campaigns.Graph(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, report.BuildManifest(*c)); err != nil {
		httputil.InternalError(w, err)
		return
	}

	now := h.now()
	if h.archive != nil {
		key, err := h.archive.Upload(r.Context(), id, buf.Bytes(), now)
		if err != nil {
			logger.Warn("manifest archive failed", "campaign_id", id, "error", err)
		} else {
			w.Header().Set("X-Manifest-Key", key)
		}
	}

	filename := fmt.Sprintf("manifest-%s-%s.csv", id, now.Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Warn("manifest write failed", "campaign_id", id, "error", err)
	}
}
