package opmon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]Snapshot
	err     error
}

func (f *fakePublisher) Name() string { return "fake" }

func (f *fakePublisher) Publish(_ context.Context, batch []Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	copied := make([]Snapshot, len(batch))
	copy(copied, batch)
	f.batches = append(f.batches, copied)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeSource struct {
	name    string
	counter *Counter
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) CollectOpmon() Snapshot { return SnapshotOf(s.name, s.counter) }

func (s *fakeSource) RestoreOpmon(n int64) { s.counter.Restore(n) }

type fakeJournal struct {
	mu      sync.Mutex
	entries []Snapshot
}

func (j *fakeJournal) Append(s Snapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
	return nil
}

func TestCollector_Flush_StampsAndPublishes(t *testing.T) {
	src := &fakeSource{name: "mod-a", counter: NewCounter()}
	src.counter.Add(4)
	pub := &fakePublisher{}

	c := NewCollector("session-1", time.Second, []Collectable{src}, pub, nil)
	c.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, c.Flush(context.Background()))
	require.Equal(t, 1, pub.count())

	got := pub.batches[0][0]
	assert.Equal(t, "mod-a", got.Module)
	assert.Equal(t, "session-1", got.Session)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), got.CollectedAt)
	assert.Equal(t, int64(4), got.TotalAmount)
	assert.Equal(t, int64(4), got.AmountSinceLastCall)

	assert.Equal(t, int64(0), src.counter.Window(), "flush consumes the window")
	assert.Equal(t, int64(4), src.counter.Total())
}

func TestCollector_Flush_RestoresWindowOnFailure(t *testing.T) {
	src := &fakeSource{name: "mod-a", counter: NewCounter()}
	src.counter.Add(9)
	pub := &fakePublisher{err: errors.New("broker down")}

	c := NewCollector("s", time.Second, []Collectable{src}, pub, nil)
	assert.Error(t, c.Flush(context.Background()))

	assert.Equal(t, int64(9), src.counter.Window(), "failed publish must not lose the window")
	assert.Equal(t, int64(9), src.counter.Total())
}

func TestCollector_Flush_AppendsToJournal(t *testing.T) {
	src := &fakeSource{name: "mod-a", counter: NewCounter()}
	src.counter.Add(2)
	pub := &fakePublisher{}
	j := &fakeJournal{}

	c := NewCollector("s", time.Second, []Collectable{src}, pub, j)
	require.NoError(t, c.Flush(context.Background()))

	j.mu.Lock()
	defer j.mu.Unlock()
	require.Len(t, j.entries, 1)
	assert.Equal(t, int64(2), j.entries[0].AmountSinceLastCall)
}

func TestCollector_Run_FlushesOnTickAndShutdown(t *testing.T) {
	src := &fakeSource{name: "mod-a", counter: NewCounter()}
	src.counter.Add(1)
	pub := &fakePublisher{}

	c := NewCollector("s", 20*time.Millisecond, []Collectable{src}, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return pub.count() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	// The shutdown path performs one final flush.
	assert.GreaterOrEqual(t, pub.count(), 2)
}

func TestCollector_NoSourcesIsNoop(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector("s", time.Second, nil, pub, nil)
	require.NoError(t, c.Flush(context.Background()))
	assert.Zero(t, pub.count())
}
