package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/pkg/donorlink"
	"github.com/ignite/giftdrive/internal/pkg/logger"
)

// Handler turns one event into emails.
type Handler struct {
	tpl        *Templates
	mailer     Mailer
	adminEmail string
	links      *donorlink.Signer
}

// NewHandler creates a handler. Admin alerts are skipped when adminEmail
// is empty.
func NewHandler(tpl *Templates, mailer Mailer, adminEmail string) *Handler {
	return &Handler{tpl: tpl, mailer: mailer, adminEmail: adminEmail}
}

// SetClaimsLinks makes donor emails carry a signed link to the donor's
// claims. A nil signer leaves the link out.
func (h *Handler) SetClaimsLinks(s *donorlink.Signer) {
	h.links = s
}

// Handle renders and sends the emails for evt.
func (h *Handler) Handle(ctx context.Context, evt domain.ClaimEvent) error {
	_, err := h.Deliver(ctx, evt, nil)
	return err
}

// part is one email produced by an event.
type part struct {
	tpl string
	to  string
}

func (h *Handler) parts(evt domain.ClaimEvent) ([]part, error) {
	switch evt.Type {
	case domain.EventClaimCreated:
		return []part{{TplClaimConfirmation, evt.DonorEmail}, {TplAdminClaimCreated, h.adminEmail}}, nil
	case domain.EventClaimRemoved:
		return []part{{TplAdminClaimRemoved, h.adminEmail}}, nil
	case domain.EventDropOffReminder:
		return []part{{TplDropOffReminder, evt.DonorEmail}}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", evt.Type)
	}
}

// Deliver sends the emails for evt whose template is not in done, in
// order, stopping at the first failure. It returns the templates it
// delivered, including when it also returns an error.
func (h *Handler) Deliver(ctx context.Context, evt domain.ClaimEvent, done []string) ([]string, error) {
	parts, err := h.parts(evt)
	if err != nil {
		return nil, err
	}
	data := vars(evt)
	if h.links != nil && evt.DonorEmail != "" {
		link, err := h.links.URL(evt.DonorEmail)
		if err != nil {
			logger.Warn("donor claims link not signed", "donor_email", evt.DonorEmail, "error", err)
		} else if link != "" {
			data["claims_url"] = link
		}
	}
	var sent []string
	for _, p := range parts {
		if slices.Contains(done, p.tpl) {
			continue
		}
		if err := h.send(ctx, p.tpl, p.to, evt, data); err != nil {
			return sent, fmt.Errorf("%s: %w", p.tpl, err)
		}
		sent = append(sent, p.tpl)
	}
	return sent, nil
}

func (h *Handler) send(ctx context.Context, tpl, to string, evt domain.ClaimEvent, data map[string]interface{}) error {
	if to == "" {
		return nil
	}
	subject, body, err := h.tpl.Render(tpl, data)
	if err != nil {
		return err
	}
	return h.mailer.Send(ctx, Message{
		To:      to,
		Subject: subject,
		Body:    body,
		Tags: map[string]string{
			"event":       string(evt.Type),
			"campaign_id": evt.CampaignID,
		},
	})
}

// WorkerConfig tunes the queue drainer.
type WorkerConfig struct {
	MaxAttempts int
	// PollTimeout bounds each BRPOP so Stop is noticed promptly.
	PollTimeout time.Duration
	SendTimeout time.Duration
	// RetryBackoff is the wait before retry n, multiplied by n.
	RetryBackoff time.Duration
}

// DefaultWorkerConfig returns the production settings.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		MaxAttempts:  5,
		PollTimeout:  2 * time.Second,
		SendTimeout:  15 * time.Second,
		RetryBackoff: 30 * time.Second,
	}
}

// Worker drains the notification queue.
type Worker struct {
	queue   *Queue
	handler *Handler
	cfg     WorkerConfig
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWorker creates a worker. Zero config fields take defaults.
func NewWorker(q *Queue, h *Handler, cfg WorkerConfig) *Worker {
	def := DefaultWorkerConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	return &Worker{queue: q, handler: h, cfg: cfg, now: time.Now}
}

// Start begins draining in the background.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	logger.Info("notification worker starting", "queue", w.queue.Key(), "max_attempts", w.cfg.MaxAttempts)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop waits for the in-flight event to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	logger.Info("notification worker stopped")
}

func (w *Worker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	for ctx.Err() == nil {
		if _, err := w.ProcessOne(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("notification worker", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// promoteBatch caps how many due retries one ProcessOne call moves back.
const promoteBatch = 100

// ProcessOne handles at most one queued event. It reports whether an
// event was taken. A failed send is scheduled for a retry after
// attempts*RetryBackoff until MaxAttempts, then buried on the dead-letter
// list. Parts already delivered are not sent again.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	if _, err := w.queue.PromoteDue(ctx, w.now(), promoteBatch); err != nil {
		return false, err
	}
	env, err := w.queue.Pop(ctx, w.cfg.PollTimeout)
	if err != nil || env == nil {
		return false, err
	}

	// Sending outlives Stop so an event is never half-handled.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.SendTimeout)
	defer cancel()

	sent, herr := w.handler.Deliver(sendCtx, env.Event, env.Sent)
	env.Sent = append(env.Sent, sent...)
	if herr == nil {
		logger.Debug("notification delivered", "type", env.Event.Type, "claim_id", env.Event.ClaimID)
		return true, nil
	}

	env.Attempts++
	env.LastError = herr.Error()
	if env.Attempts >= w.cfg.MaxAttempts {
		logger.Error("notification dead-lettered",
			"type", env.Event.Type, "claim_id", env.Event.ClaimID, "attempts", env.Attempts, "error", herr)
		return true, w.queue.Bury(sendCtx, *env)
	}
	retryAt := w.now().Add(time.Duration(env.Attempts) * w.cfg.RetryBackoff)
	logger.Warn("notification failed, retry scheduled",
		"type", env.Event.Type, "claim_id", env.Event.ClaimID, "attempts", env.Attempts,
		"retry_at", retryAt.UTC().Format(time.RFC3339), "error", herr)
	return true, w.queue.Defer(sendCtx, *env, retryAt)
}
