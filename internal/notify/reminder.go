package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/pkg/distlock"
	"github.com/ignite/giftdrive/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const reminderDedupeTTL = 48 * time.Hour

// CampaignSource is the slice of campaign.Service the sweep needs.
type CampaignSource interface {
	DueForReminder(ctx context.Context, now time.Time, lead time.Duration) ([]domain.Campaign, error)
	Claims(ctx context.Context, campaignID string) ([]domain.DonorClaim, error)
}

// ReminderConfig tunes the sweep.
type ReminderConfig struct {
	Lead     time.Duration
	Interval time.Duration
}

// ReminderSweep periodically queues drop-off reminders for donors of
// campaigns whose deadline is near. Each donor gets at most one reminder
// per campaign per day.
type ReminderSweep struct {
	campaigns CampaignSource
	queue     *Queue
	rdb       *redis.Client
	lock      distlock.Locker
	cfg       ReminderConfig
	now       func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReminderSweep wires a sweep. rdb holds the de-duplication keys and is
// usually the queue's client.
func NewReminderSweep(src CampaignSource, q *Queue, rdb *redis.Client, lock distlock.Locker, cfg ReminderConfig) *ReminderSweep {
	if cfg.Lead <= 0 {
		cfg.Lead = 3 * 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &ReminderSweep{
		campaigns: src,
		queue:     q,
		rdb:       rdb,
		lock:      lock,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the sweep immediately and then every Interval.
func (s *ReminderSweep) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	logger.Info("reminder sweep starting", "interval", s.cfg.Interval.String(), "lead", s.cfg.Lead.String())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			s.tick(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the loop and waits for a running sweep.
func (s *ReminderSweep) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *ReminderSweep) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Interval)
	defer cancel()
	n, err := s.RunOnce(runCtx)
	if err != nil {
		logger.Error("reminder sweep failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("reminders queued", "count", n)
	}
}

// RunOnce performs one sweep under the distributed lock and returns the
// number of reminders queued. It queues nothing if another process holds
// the lock.
func (s *ReminderSweep) RunOnce(ctx context.Context) (int, error) {
	queued := 0
	ran, err := distlock.Run(ctx, s.lock, func(ctx context.Context) error {
		now := s.now()
		due, err := s.campaigns.DueForReminder(ctx, now, s.cfg.Lead)
		if err != nil {
			return fmt.Errorf("list due campaigns: %w", err)
		}
		for _, c := range due {
			n, err := s.remindCampaign(ctx, c, now)
			queued += n
			if err != nil {
				return fmt.Errorf("campaign %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if !ran && err == nil {
		logger.Debug("reminder sweep skipped, lock held elsewhere")
	}
	return queued, err
}

func (s *ReminderSweep) remindCampaign(ctx context.Context, c domain.Campaign, now time.Time) (int, error) {
	claims, err := s.campaigns.Claims(ctx, c.ID)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, evt := range ReminderEvents(c, claims, now) {
		key := fmt.Sprintf("giftdrive:reminded:%s:%s:%s", c.ID, evt.DonorEmail, now.Format("2006-01-02"))
		first, err := s.rdb.SetNX(ctx, key, 1, reminderDedupeTTL).Result()
		if err != nil {
			return queued, fmt.Errorf("dedupe %s: %w", key, err)
		}
		if !first {
			continue
		}
		if err := s.queue.Push(ctx, Envelope{Event: evt}); err != nil {
			// Let the next sweep retry this donor.
			s.rdb.Del(context.WithoutCancel(ctx), key)
			return queued, err
		}
		queued++
	}
	return queued, nil
}

// ReminderEvents groups a campaign's claims by donor email into one
// DropOffReminder event per donor, ordered by email.
func ReminderEvents(c domain.Campaign, claims []domain.DonorClaim, at time.Time) []domain.ClaimEvent {
	byEmail := make(map[string]*domain.ClaimEvent)
	var order []string
	for _, dc := range claims {
		email := domain.NormalizeEmail(dc.DonorEmail)
		evt, ok := byEmail[email]
		if !ok {
			evt = &domain.ClaimEvent{
				Type:            domain.EventDropOffReminder,
				DonorEmail:      email,
				DonorName:       dc.DonorName,
				CampaignID:      c.ID,
				CampaignName:    c.Name,
				DropOffAddress:  c.DropOffAddress,
				DropOffDeadline: c.DropOffDeadline,
				OccurredAt:      at,
			}
			byEmail[email] = evt
			order = append(order, email)
		}
		evt.Quantity += dc.Quantity
		evt.Items = append(evt.Items, domain.ReminderItem{
			GiftName:    dc.GiftName,
			Quantity:    dc.Quantity,
			FamilyAlias: dc.FamilyAlias,
		})
	}
	sort.Strings(order)
	out := make([]domain.ClaimEvent, 0, len(order))
	for _, email := range order {
		out = append(out, *byEmail[email])
	}
	return out
}
