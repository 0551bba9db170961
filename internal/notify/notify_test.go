package notify

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/ignite/giftdrive/internal/domain"
	"github.com/ignite/giftdrive/internal/pkg/distlock"
	"github.com/ignite/giftdrive/internal/pkg/donorlink"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// fakeMailer records messages. It fails the first failN sends, and every
// send to failTo.
type fakeMailer struct {
	mu     sync.Mutex
	sent   []Message
	failN  int
	failTo string
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTo != "" && msg.To == m.failTo {
		return errors.New("mailbox unavailable")
	}
	if m.failN > 0 {
		m.failN--
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func mustTemplates(t *testing.T) *Templates {
	t.Helper()
	tpl, err := NewTemplates(nil)
	require.NoError(t, err)
	return tpl
}

func createdEvent() domain.ClaimEvent {
	return domain.ClaimEvent{
		Type:        domain.EventClaimCreated,
		ClaimID:     "k1",
		GiftID:      "g1",
		GiftName:    "Bike",
		DonorEmail:  "ann@example.com",
		DonorName:   "Ann",
		Quantity:    2,
		FamilyAlias: "Family 12",
		CampaignID:  "c1",
		OccurredAt:  time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_QueuesEvent(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewQueue(client, "")
	d := NewDispatcher(q)

	d.Notify(context.Background(), createdEvent())
	d.Wait()

	env, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "k1", env.Event.ClaimID)
	assert.Equal(t, 0, env.Attempts)
	assert.False(t, env.EnqueuedAt.IsZero())
}

func TestDispatcher_RedisDownDoesNotPanic(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	d := NewDispatcher(NewQueue(client, ""))
	d.timeout = 200 * time.Millisecond
	d.Notify(context.Background(), createdEvent())
	d.Wait()
}

func TestQueue_FIFO(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewQueue(client, "test:q")
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, Envelope{Event: domain.ClaimEvent{ClaimID: id}}))
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	for _, want := range []string{"a", "b", "c"} {
		env, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, env.Event.ClaimID)
	}
}

func TestTemplates_Render(t *testing.T) {
	tpl := mustTemplates(t)

	subject, body, err := tpl.Render(TplClaimConfirmation, vars(createdEvent()))
	require.NoError(t, err)
	assert.Equal(t, "Thank you for giving Bike", subject)
	assert.Contains(t, body, "Hi Ann,")
	assert.Contains(t, body, `claiming 2 items of "Bike" for Family 12`)

	evt := createdEvent()
	evt.DonorName = ""
	evt.Quantity = 1
	_, body, err = tpl.Render(TplClaimConfirmation, vars(evt))
	require.NoError(t, err)
	assert.Contains(t, body, "Hi friend,")
	assert.Contains(t, body, "1 item of")

	_, _, err = tpl.Render("nope", nil)
	assert.Error(t, err)
}

func TestTemplates_Reminder(t *testing.T) {
	tpl := mustTemplates(t)
	deadline := time.Date(2026, 12, 20, 17, 0, 0, 0, time.UTC)
	evt := domain.ClaimEvent{
		Type:            domain.EventDropOffReminder,
		DonorName:       "Ann",
		CampaignName:    "Winter Drive",
		DropOffAddress:  "12 Main St",
		DropOffDeadline: &deadline,
		Items: []domain.ReminderItem{
			{GiftName: "Bike", Quantity: 1, FamilyAlias: "Family 12"},
			{GiftName: "Scarf", Quantity: 2, FamilyAlias: "Family 7"},
		},
	}
	subject, body, err := tpl.Render(TplDropOffReminder, vars(evt))
	require.NoError(t, err)
	assert.Equal(t, "Reminder: Winter Drive gifts are due Sunday, December 20 at 5:00 PM", subject)
	assert.Contains(t, body, "WINTER DRIVE")
	assert.Contains(t, body, "Please bring your gifts to: 12 Main St")
	assert.Contains(t, body, "1 x Bike for Family 12")
	assert.Contains(t, body, "2 x Scarf for Family 7")
}

func TestTemplates_Overrides(t *testing.T) {
	tpl, err := NewTemplates(map[string][2]string{
		TplClaimConfirmation: {"Got it: {{ gift_name | upcase }}", "ok"},
	})
	require.NoError(t, err)
	subject, body, err := tpl.Render(TplClaimConfirmation, vars(createdEvent()))
	require.NoError(t, err)
	assert.Equal(t, "Got it: BIKE", subject)
	assert.Equal(t, "ok", body)

	_, err = NewTemplates(map[string][2]string{"bogus": {"", ""}})
	assert.Error(t, err)
	_, err = NewTemplates(map[string][2]string{TplClaimConfirmation: {"{% for x in items %}", ""}})
	assert.Error(t, err)
}

func TestLoadTemplateDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TplDropOffReminder+".subject.liquid"),
		[]byte("Bring gifts to {{ drop_off_address }}"), 0o644))

	overrides, err := LoadTemplateDir(dir)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Contains(t, overrides[TplDropOffReminder][1], "You claimed:", "body keeps the built-in")

	tpl, err := NewTemplates(overrides)
	require.NoError(t, err)
	subject, _, err := tpl.Render(TplDropOffReminder, map[string]interface{}{"drop_off_address": "Gym"})
	require.NoError(t, err)
	assert.Equal(t, "Bring gifts to Gym", subject)

	empty, err := LoadTemplateDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHandler_Routes(t *testing.T) {
	m := &fakeMailer{}
	h := NewHandler(mustTemplates(t), m, "admin@drive.org")
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, createdEvent()))
	require.Len(t, m.sent, 2)
	assert.Equal(t, "ann@example.com", m.sent[0].To)
	assert.Equal(t, "admin@drive.org", m.sent[1].To)
	assert.Equal(t, "[Family 12] Bike claimed", m.sent[1].Subject)
	assert.Equal(t, "ClaimCreated", m.sent[0].Tags["event"])

	removed := domain.NewClaimRemoved(domain.Claim{ID: "k1", GiftID: "g1", DonorEmail: "ann@example.com", Quantity: 2}, time.Now())
	require.NoError(t, h.Handle(ctx, removed))
	require.Len(t, m.sent, 3)
	assert.Equal(t, "admin@drive.org", m.sent[2].To)

	assert.Error(t, h.Handle(ctx, domain.ClaimEvent{Type: "Bogus"}))
}

func TestHandler_NoAdminEmail(t *testing.T) {
	m := &fakeMailer{}
	h := NewHandler(mustTemplates(t), m, "")
	require.NoError(t, h.Handle(context.Background(), createdEvent()))
	assert.Len(t, m.sent, 1)
}

func TestHandler_ClaimsLink(t *testing.T) {
	m := &fakeMailer{}
	h := NewHandler(mustTemplates(t), m, "")
	signer := donorlink.NewSigner("secret", time.Hour, "https://gifts.example.org")
	h.SetClaimsLinks(signer)

	require.NoError(t, h.Handle(context.Background(), createdEvent()))
	require.Len(t, m.sent, 1)
	body := m.sent[0].Body
	i := strings.Index(body, "https://gifts.example.org/api/donors/claims?token=")
	require.GreaterOrEqual(t, i, 0, body)

	link := strings.Fields(body[i:])[0]
	u, err := url.Parse(link)
	require.NoError(t, err)
	email, err := signer.Verify(u.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", email)

	m.sent = nil
	h.SetClaimsLinks(nil)
	require.NoError(t, h.Handle(context.Background(), createdEvent()))
	assert.NotContains(t, m.sent[0].Body, "token=")
}

// testClock is a settable clock for the worker's retry schedule.
type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestWorker(t *testing.T, q *Queue, h *Handler, cfg WorkerConfig) (*Worker, *testClock) {
	t.Helper()
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 100 * time.Millisecond
	}
	w := NewWorker(q, h, cfg)
	clock := &testClock{t: time.Date(2026, 12, 1, 9, 0, 0, 0, time.UTC)}
	w.now = clock.now
	return w, clock
}

func (m *fakeMailer) sentTo(addr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.sent {
		if msg.To == addr {
			n++
		}
	}
	return n
}

func TestWorker_DeliversAndRetries(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewQueue(client, "")
	m := &fakeMailer{failN: 1}
	w, clock := newTestWorker(t, q, NewHandler(mustTemplates(t), m, ""),
		WorkerConfig{MaxAttempts: 3, RetryBackoff: time.Minute})
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, Envelope{Event: createdEvent()}))

	took, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, took)
	assert.Empty(t, m.sent)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a failed event must not go straight back on the queue")
	waiting, err := q.Waiting(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), waiting)

	took, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.False(t, took, "retry is not due yet")

	clock.advance(time.Minute)
	took, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, took)
	assert.Len(t, m.sent, 1)

	took, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.False(t, took, "queue should be empty")
}

func TestWorker_BackoffGrowsWithAttempts(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewQueue(client, "")
	m := &fakeMailer{failN: 100}
	w, clock := newTestWorker(t, q, NewHandler(mustTemplates(t), m, ""),
		WorkerConfig{MaxAttempts: 5, RetryBackoff: time.Minute})
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, Envelope{Event: createdEvent()}))
	_, err := w.ProcessOne(ctx)
	require.NoError(t, err)

	// First retry after 1m.
	clock.advance(time.Minute)
	took, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, took)

	// Second retry after 2m, not 1m.
	clock.advance(time.Minute)
	took, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.False(t, took)

	clock.advance(time.Minute)
	took, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, took)
}

func TestWorker_DeadLetters(t *testing.T) {
	client, mr := setupTestRedis(t)
	q := NewQueue(client, "")
	m := &fakeMailer{failN: 100}
	w, clock := newTestWorker(t, q, NewHandler(mustTemplates(t), m, ""),
		WorkerConfig{MaxAttempts: 2, RetryBackoff: time.Second})
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, Envelope{Event: createdEvent()}))
	for i := 0; i < 2; i++ {
		took, err := w.ProcessOne(ctx)
		require.NoError(t, err)
		require.True(t, took)
		clock.advance(time.Minute)
	}

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	waiting, err := q.Waiting(ctx)
	require.NoError(t, err)
	assert.Zero(t, waiting)

	dead, err := mr.List(q.DeadKey())
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0], `"attempts":2`)
}

func TestWorker_AdminFailureDoesNotResendDonorMail(t *testing.T) {
	client, mr := setupTestRedis(t)
	q := NewQueue(client, "")
	m := &fakeMailer{failTo: "admin@example.org"}
	w, clock := newTestWorker(t, q, NewHandler(mustTemplates(t), m, "admin@example.org"),
		WorkerConfig{MaxAttempts: 5, RetryBackoff: time.Second})
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, Envelope{Event: createdEvent()}))
	for i := 0; i < 5; i++ {
		took, err := w.ProcessOne(ctx)
		require.NoError(t, err)
		require.True(t, took, "attempt %d", i+1)
		clock.advance(time.Hour)
	}

	assert.Equal(t, 1, m.sentTo("ann@example.com"))
	dead, err := mr.List(q.DeadKey())
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0], `"sent":["`+TplClaimConfirmation+`"]`)
}

func TestQueue_UndecodableGoesToDeadLetters(t *testing.T) {
	client, mr := setupTestRedis(t)
	q := NewQueue(client, "")
	ctx := context.Background()

	_, err := mr.Lpush(q.Key(), "{not json")
	require.NoError(t, err)

	env, err := q.Pop(ctx, 100*time.Millisecond)
	assert.Error(t, err)
	assert.Nil(t, env)

	dead, err := mr.List(q.DeadKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"{not json"}, dead)
}

func TestWorker_StartStop(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewQueue(client, "")
	m := &fakeMailer{}
	w := NewWorker(q, NewHandler(mustTemplates(t), m, ""), WorkerConfig{PollTimeout: 50 * time.Millisecond})

	w.Start()
	w.Start()
	require.NoError(t, q.Push(context.Background(), Envelope{Event: createdEvent()}))

	assert.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.sent) == 1
	}, 2*time.Second, 10*time.Millisecond)
	w.Stop()
	w.Stop()
}

func TestInline_SendsWithoutQueue(t *testing.T) {
	m := &fakeMailer{}
	n := NewInline(NewHandler(mustTemplates(t), m, ""))
	n.Notify(context.Background(), createdEvent())
	n.Wait()
	assert.Len(t, m.sent, 1)
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESMailer_Send(t *testing.T) {
	api := &fakeSES{}
	m := &SESMailer{client: api, from: "Gift Drive <drive@example.org>"}

	err := m.Send(context.Background(), Message{
		To: "ann@example.com", Subject: "Hi", Body: "Thanks",
		Tags: map[string]string{"event": "ClaimCreated", "campaign_id": ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "Gift Drive <drive@example.org>", aws.ToString(api.in.FromEmailAddress))
	assert.Equal(t, []string{"ann@example.com"}, api.in.Destination.ToAddresses)
	assert.Equal(t, "Thanks", aws.ToString(api.in.Content.Simple.Body.Text.Data))
	require.Len(t, api.in.EmailTags, 1, "empty tag values are dropped")

	api.err = errors.New("throttled")
	assert.ErrorContains(t, m.Send(context.Background(), Message{To: "x@example.com"}), "throttled")

	_, err = NewSESMailer(context.Background(), SESConfig{})
	assert.Error(t, err)
}

type fakeCampaigns struct {
	due    []domain.Campaign
	claims map[string][]domain.DonorClaim
}

func (f *fakeCampaigns) DueForReminder(context.Context, time.Time, time.Duration) ([]domain.Campaign, error) {
	return f.due, nil
}

func (f *fakeCampaigns) Claims(_ context.Context, id string) ([]domain.DonorClaim, error) {
	return f.claims[id], nil
}

func donorClaim(email, gift string, qty int) domain.DonorClaim {
	return domain.DonorClaim{
		Claim:       domain.Claim{DonorEmail: email, DonorName: strings.Split(email, "@")[0], Quantity: qty},
		GiftName:    gift,
		FamilyAlias: "Family 12",
	}
}

func TestReminderEvents_GroupsByDonor(t *testing.T) {
	deadline := time.Date(2026, 12, 20, 17, 0, 0, 0, time.UTC)
	c := domain.Campaign{ID: "c1", Name: "Winter Drive", DropOffDeadline: &deadline}
	events := ReminderEvents(c, []domain.DonorClaim{
		donorClaim("bob@example.com", "Scarf", 1),
		donorClaim("Ann@Example.com", "Bike", 1),
		donorClaim("ann@example.com", "Ball", 2),
	}, time.Now())

	require.Len(t, events, 2)
	assert.Equal(t, "ann@example.com", events[0].DonorEmail)
	assert.Len(t, events[0].Items, 2)
	assert.Equal(t, 3, events[0].Quantity)
	assert.Equal(t, domain.EventDropOffReminder, events[0].Type)
	assert.Equal(t, "Winter Drive", events[1].CampaignName)
}

func TestReminderSweep_DedupesPerDay(t *testing.T) {
	client, mr := setupTestRedis(t)
	q := NewQueue(client, "")
	src := &fakeCampaigns{
		due: []domain.Campaign{{ID: "c1", Name: "Winter Drive"}},
		claims: map[string][]domain.DonorClaim{
			"c1": {donorClaim("ann@example.com", "Bike", 1), donorClaim("bob@example.com", "Ball", 1)},
		},
	}
	sweep := NewReminderSweep(src, q, client, distlock.NewRedisLock(client, "reminders", time.Minute), ReminderConfig{})
	day := time.Date(2026, 12, 18, 9, 0, 0, 0, time.UTC)
	sweep.now = func() time.Time { return day }
	ctx := context.Background()

	n, err := sweep.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("giftdrive:reminded:c1:ann@example.com:2026-12-18"))

	n, err = sweep.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "same day must not re-send")

	day = day.Add(24 * time.Hour)
	n, err = sweep.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	length, _ := q.Len(ctx)
	assert.EqualValues(t, 4, length)
}

func TestReminderSweep_SkipsWhenLocked(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewQueue(client, "")
	src := &fakeCampaigns{
		due:    []domain.Campaign{{ID: "c1"}},
		claims: map[string][]domain.DonorClaim{"c1": {donorClaim("ann@example.com", "Bike", 1)}},
	}
	other := distlock.NewRedisLock(client, "reminders", time.Minute)
	ok, err := other.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	sweep := NewReminderSweep(src, q, client, distlock.NewRedisLock(client, "reminders", time.Minute), ReminderConfig{})
	n, err := sweep.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
