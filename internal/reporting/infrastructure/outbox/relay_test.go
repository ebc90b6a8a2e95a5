package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/fundreporting/internal/reporting/domain"
	"github.com/wyfcoding/fundreporting/pkg/logger"
)

type fakeStore struct {
	mu     sync.Mutex
	events map[string]*Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[string]*Event)}
}

func (s *fakeStore) Add(_ context.Context, events ...*Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		c := *e
		s.events[e.ID] = &c
	}
	return nil
}

func (s *fakeStore) FetchPending(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Event
	for _, e := range s.events {
		if e.Status == StatusPending {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) MarkPublished(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id].Status = StatusPublished
	s.events[id].PublishedAt = &at
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id string, attempts int, lastErr string, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.events[id]
	e.Attempts = attempts
	e.LastError = lastErr
	if final {
		e.Status = StatusFailed
	}
	return nil
}

func (s *fakeStore) byStatus(status string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Status == status {
			n++
		}
	}
	return n
}

type published struct {
	topic, key string
	payload    []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	failFor  map[string]bool
	failAll  bool
	messages []published
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll || p.failFor[topic] {
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, published{topic: topic, key: key, payload: payload})
	return nil
}

func seed(t *testing.T, store *fakeStore, events ...domain.DomainEvent) {
	t.Helper()
	w := NewWriter(store)
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	for i, e := range events {
		w.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		require.NoError(t, w.Append(context.Background(), e))
	}
}

func TestWriter_Append(t *testing.T) {
	store := newFakeStore()
	seed(t, store, &domain.RecordSubmittedEvent{RecordID: 3, Kind: domain.KindPredict})

	events, err := store.FetchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventRecordSubmitted, events[0].EventType)
	assert.Equal(t, "period_record:3", events[0].AggregateID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[0].Payload), &payload))
	assert.Equal(t, "predict", payload["kind"])
}

func TestRelay_Flush(t *testing.T) {
	store := newFakeStore()
	seed(t, store,
		&domain.RecordSubmittedEvent{RecordID: 1},
		&domain.WithdrawalEvent{Name: domain.EventWithdrawalRequested, RecordID: 1},
		&domain.AuditCompletedEvent{RecordID: 2},
	)
	pub := &fakePublisher{failFor: map[string]bool{domain.EventAuditCompleted: true}}
	relay := NewRelay(store, pub, RelayConfig{BatchSize: 10, MaxAttempts: 2}, nil, logger.Discard())
	ctx := context.Background()

	res, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Published)
	assert.Equal(t, 1, res.Retrying)
	require.Len(t, pub.messages, 2)
	assert.Equal(t, domain.EventRecordSubmitted, pub.messages[0].topic)
	assert.Equal(t, "period_record:1", pub.messages[0].key)
	assert.Equal(t, domain.EventWithdrawalRequested, pub.messages[1].topic)

	res, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, store.byStatus(StatusPublished))
	assert.Equal(t, 1, store.byStatus(StatusFailed))

	res, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, FlushResult{}, res)
}

func TestRelay_BreakerDefersRemaining(t *testing.T) {
	store := newFakeStore()
	var events []domain.DomainEvent
	for i := 1; i <= 8; i++ {
		events = append(events, &domain.RecordSubmittedEvent{RecordID: uint(i)})
	}
	seed(t, store, events...)

	pub := &fakePublisher{failAll: true}
	relay := NewRelay(store, pub, RelayConfig{BatchSize: 10, MaxAttempts: 100, PollInterval: time.Minute}, nil, logger.Discard())

	res, err := relay.Flush(context.Background())
	require.NoError(t, err)
	// 连续 5 次失败后熔断，其余事件留待下一轮
	assert.Equal(t, 5, res.Retrying)
	assert.Equal(t, 3, res.Deferred)
	assert.Equal(t, 8, store.byStatus(StatusPending))
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := newFakeStore()
	seed(t, store, &domain.RecordSubmittedEvent{RecordID: 1})
	pub := &fakePublisher{}
	relay := NewRelay(store, pub, RelayConfig{PollInterval: 10 * time.Millisecond}, nil, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return store.byStatus(StatusPublished) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
