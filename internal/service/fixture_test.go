package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/alert"
	"github.com/unclebandit/outreach-engine/internal/channel"
	"github.com/unclebandit/outreach-engine/internal/detector"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/sequence"
)

const day = 24 * time.Hour

const testSequences = `
templates:
  intro:
    subject: "Hello {first_name}"
    body: "Hi {first_name} from {company}{missing}. Book {booking_url} or leave {optout_url}"
  bump:
    subject: "Again, {first_name}"
    body: "Book {booking_url} / {optout_url}"
sequences:
  outreach:
    - {template: intro, delay: 0d}
    - {template: bump, delay: 3d}
    - {template: bump, delay: 5d}
  nurture:
    - {template: bump, delay: 1d}
`

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

var linkPattern = regexp.MustCompile(`https://out\.example\.com/t/([A-Za-z0-9_-]+)`)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type sentMessage struct {
	To, Subject, Body string
}

// fakeSender records sends. Addresses in fail get that error; when block is
// set, Send waits for it to close and ignores its context.
type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	fail    map[string]error
	block   chan struct{}
	started chan string
}

func newFakeSender() *fakeSender {
	return &fakeSender{fail: make(map[string]error)}
}

func (s *fakeSender) Send(ctx context.Context, to, subject, body string) error {
	if s.started != nil {
		s.started <- to
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[to]; err != nil {
		return err
	}
	s.sent = append(s.sent, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (s *fakeSender) setFailure(to string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, to)
		return
	}
	s.fail[to] = err
}

func (s *fakeSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

// links returns the booking and opt-out tokens of the last message to addr.
func (s *fakeSender) links(t *testing.T, to string) (booking, optout string) {
	t.Helper()
	msgs := s.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].To != to {
			continue
		}
		m := linkPattern.FindAllStringSubmatch(msgs[i].Body, -1)
		require.Len(t, m, 2)
		return m[0][1], m[1][1]
	}
	t.Fatalf("no message sent to %s", to)
	return "", ""
}

type fixture struct {
	clock    *testClock
	sender   *fakeSender
	entities *repository.MemoryEntityRepository
	registry *sequence.Registry
	svc      *CampaignService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := sequence.Parse([]byte(testSequences))
	require.NoError(t, err)
	det, err := detector.Default(detector.DefaultThreshold)
	require.NoError(t, err)

	clock := &testClock{t: t0}
	sender := newFakeSender()
	log := zap.NewNop()
	entities := repository.NewMemoryEntityRepository(repository.Rules{Schedule: reg, MaxFailures: 3})
	tokens := NewTokenRegistry(repository.NewMemoryTokenRepository(), clock.Now)

	dispatcher := &Dispatcher{
		Entities:    entities,
		Templates:   reg,
		Tokens:      tokens,
		Senders:     map[string]channel.Sender{"email": sender},
		Gates:       NewRateGates(0),
		LinkBaseURL: "https://out.example.com/",
		Log:         log,
	}
	q := queue.NewInMemoryQueue(log)
	queue.LogSink(q, "hot_leads", log)

	svc := &CampaignService{
		Entities:  entities,
		Sequences: reg,
		Tokens:    tokens,
		Scorer:    det,
		Scheduler: &Scheduler{Entities: entities, Sequences: reg, Dispatcher: dispatcher, Workers: 4, Log: log},
		Alerts: &alert.Notifier{
			Claims:         repository.NewMemoryAlertRepository(),
			Scorer:         det,
			Sessions:       &channel.LinkSessionCreator{BaseURL: "https://meet.example.com"},
			Publisher:      q,
			Topic:          "hot_leads",
			SessionMinutes: 30,
			Now:            clock.Now,
			Log:            log,
		},
		Now:          clock.Now,
		Log:          log,
		MaxBatch:     100,
		CallDeadline: time.Second,
	}
	return &fixture{clock: clock, sender: sender, entities: entities, registry: reg, svc: svc}
}

func (f *fixture) dispatcher() *Dispatcher {
	return f.svc.Scheduler.Dispatcher.(*Dispatcher)
}
