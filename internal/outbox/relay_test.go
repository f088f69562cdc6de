package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/centaur-backend/internal/models"
)

// memoryStore хранит события в памяти и повторяет семантику ProcessBatch.
type memoryStore struct {
	events    []models.OutboxEvent
	published map[uuid.UUID]bool
	lastErr   map[uuid.UUID]string
}

func newMemoryStore(events ...models.OutboxEvent) *memoryStore {
	return &memoryStore{events: events, published: map[uuid.UUID]bool{}, lastErr: map[uuid.UUID]string{}}
}

func (s *memoryStore) ProcessBatch(_ context.Context, limit int, fn func([]models.OutboxEvent) ([]uuid.UUID, map[uuid.UUID]error)) (int, error) {
	batch := make([]models.OutboxEvent, 0, limit)
	for _, e := range s.events {
		if !s.published[e.ID] && len(batch) < limit {
			batch = append(batch, e)
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}
	ok, failed := fn(batch)
	for _, id := range ok {
		s.published[id] = true
	}
	for i := range s.events {
		if cause, bad := failed[s.events[i].ID]; bad {
			s.events[i].Attempts++
			s.lastErr[s.events[i].ID] = cause.Error()
		}
	}
	return len(ok), nil
}

func (s *memoryStore) CountPending(context.Context) (int, error) {
	n := 0
	for _, e := range s.events {
		if !s.published[e.ID] {
			n++
		}
	}
	return n, nil
}

type fakePublisher struct {
	sent    []string
	failFor map[string]bool
}

func (p *fakePublisher) Publish(_ context.Context, event models.OutboxEvent) error {
	if p.failFor[event.EventType] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, event.EventType)
	return nil
}

type fakeMetrics struct {
	published, failed, pending int
}

func (m *fakeMetrics) OutboxPublished(published, failed int) {
	m.published += published
	m.failed += failed
}

func (m *fakeMetrics) OutboxPending(n int) { m.pending = n }

func event(eventType string) models.OutboxEvent {
	return *models.NewOutboxEvent("order", uuid.New(), eventType, map[string]string{"k": "v"})
}

func TestRelay_Tick_DrainsAllBatches(t *testing.T) {
	store := newMemoryStore(event("order.created"), event("order.funded"), event("order.released"))
	pub := &fakePublisher{}
	m := &fakeMetrics{}
	relay := NewRelay(store, pub, m, 0, 2)

	n, err := relay.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"order.created", "order.funded", "order.released"}, pub.sent)
	assert.Equal(t, 3, m.published)
	assert.Equal(t, 0, m.pending)
}

func TestRelay_Tick_FailedEventStaysPending(t *testing.T) {
	bad := event("dispute.opened")
	store := newMemoryStore(event("order.created"), bad)
	pub := &fakePublisher{failFor: map[string]bool{"dispute.opened": true}}
	m := &fakeMetrics{}
	relay := NewRelay(store, pub, m, 0, 10)

	n, err := relay.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, m.failed)
	assert.Equal(t, 1, m.pending)
	assert.Equal(t, "broker unavailable", store.lastErr[bad.ID])

	pub.failFor = nil
	n, err = relay.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, m.pending)
}

func TestEncode_Envelope(t *testing.T) {
	e := event("order.funded")
	raw, err := encode(e)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event_type":"order.funded"`)
	assert.Contains(t, string(raw), `"payload":{"k":"v"}`)
	assert.Contains(t, string(raw), e.AggregateID.String())
}
