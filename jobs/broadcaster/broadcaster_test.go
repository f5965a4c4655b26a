package broadcaster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"lockfree/infra/logging"
	"lockfree/infra/report"
)

type fakePublisher struct {
	mu     sync.Mutex
	fail   bool
	keys   []string
	closed bool
}

func (f *fakePublisher) Publish(_ context.Context, key, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.keys = append(f.keys, string(key))
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func (f *fakePublisher) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func openStore(t *testing.T) *report.Store {
	t.Helper()
	s, err := report.Open("reports", report.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func state(t *testing.T, s *report.Store, id uint64) report.Entry {
	t.Helper()
	e, err := s.Get(id)
	require.NoError(t, err)
	return e
}

func TestReplayPublishesNewEntries(t *testing.T) {
	store := openStore(t)
	pub := &fakePublisher{}
	b := New(store, pub, time.Hour, 3, logging.Discard())

	a, err := store.Put(report.Report{Container: "stack"})
	require.NoError(t, err)
	c, err := store.Put(report.Report{Container: "queue"})
	require.NoError(t, err)

	n, err := b.replayOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"1", "2"}, pub.published())
	require.Equal(t, report.StateAcked, state(t, store, a).State)
	require.Equal(t, report.StateAcked, state(t, store, c).State)

	n, err = b.replayOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestReplayRetriesFailedUpToLimit(t *testing.T) {
	store := openStore(t)
	pub := &fakePublisher{fail: true}
	b := New(store, pub, time.Hour, 2, logging.Discard())

	id, err := store.Put(report.Report{Container: "stack"})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := b.replayOnce(context.Background())
		require.NoError(t, err)
	}
	e := state(t, store, id)
	require.Equal(t, report.StateFailed, e.State)
	require.Equal(t, uint32(2), e.Retries)

	pub.fail = false
	n, err := b.replayOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestReplayRecoversAfterFailure(t *testing.T) {
	store := openStore(t)
	pub := &fakePublisher{fail: true}
	b := New(store, pub, time.Hour, 5, logging.Discard())

	id, err := store.Put(report.Report{Container: "queue"})
	require.NoError(t, err)

	_, err = b.replayOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, report.StateFailed, state(t, store, id).State)

	pub.mu.Lock()
	pub.fail = false
	pub.mu.Unlock()

	n, err := b.replayOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	e := state(t, store, id)
	require.Equal(t, report.StateAcked, e.State)
	require.Equal(t, uint32(1), e.Retries)
	require.NotZero(t, e.LastAttempt)
}

func TestRequeueMovesSentToFailed(t *testing.T) {
	store := openStore(t)
	b := New(store, &fakePublisher{}, time.Hour, 5, logging.Discard())

	id, err := store.Put(report.Report{})
	require.NoError(t, err)
	require.NoError(t, store.MarkSent(id))

	n, err := b.Requeue()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, report.StateFailed, state(t, store, id).State)
}

func TestRunDeliversOnTicker(t *testing.T) {
	store := openStore(t)
	pub := &fakePublisher{}
	b := New(store, pub, time.Millisecond, 5, logging.Discard())

	_, err := store.Put(report.Report{Container: "stack"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(pub.published()) == 1
	}, time.Second, time.Millisecond)

	cancel()
	<-done
	require.NoError(t, b.Close())
	require.True(t, pub.closed)
}

func TestRunPublishesEntriesAddedAfterStart(t *testing.T) {
	store := openStore(t)
	pub := &fakePublisher{}
	b := New(store, pub, time.Millisecond, 5, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Let a few empty scans pass first.
	time.Sleep(10 * time.Millisecond)
	require.Empty(t, pub.published())

	for i := 0; i < 3; i++ {
		_, err := store.Put(report.Report{Container: "queue"})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return len(pub.published()) == 3
	}, time.Second, time.Millisecond)
	require.ElementsMatch(t, []string{"1", "2", "3"}, pub.published())
}
