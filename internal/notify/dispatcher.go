package notify

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/pkg/logger"
)

const defaultPushTimeout = 5 * time.Second

// Dispatcher implements claim.Notifier by queueing events on Redis from a
// background goroutine. Notify returns immediately.
type Dispatcher struct {
	queue   *Queue
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher that enqueues onto q.
func NewDispatcher(q *Queue) *Dispatcher {
	return &Dispatcher{queue: q, timeout: defaultPushTimeout}
}

// Notify enqueues evt. Errors are logged and dropped.
func (d *Dispatcher) Notify(ctx context.Context, evt domain.ClaimEvent) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.queue.Push(pushCtx, Envelope{Event: evt}); err != nil {
			logger.Warn("notification not queued",
				"type", evt.Type, "claim_id", evt.ClaimID, "donor_email", evt.DonorEmail, "error", err)
			return
		}
		logger.Debug("notification queued", "type", evt.Type, "claim_id", evt.ClaimID)
	}()
}

// Wait blocks until all pending pushes finish. Call it on shutdown.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Inline implements claim.Notifier without a queue: each event is rendered
// and sent from its own goroutine. It backs the dev server when Redis is
// disabled.
type Inline struct {
	handler *Handler
	wg      sync.WaitGroup
}

// NewInline creates an inline notifier around h.
func NewInline(h *Handler) *Inline { return &Inline{handler: h} }

func (n *Inline) Notify(ctx context.Context, evt domain.ClaimEvent) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultPushTimeout)
		defer cancel()
		if err := n.handler.Handle(sendCtx, evt); err != nil {
			logger.Warn("notification failed", "type", evt.Type, "claim_id", evt.ClaimID, "error", err)
		}
	}()
}

// Wait blocks until in-flight sends finish.
func (n *Inline) Wait() { n.wg.Wait() }

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.ClaimEvent) {}
