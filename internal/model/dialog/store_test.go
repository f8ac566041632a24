package dialog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initFor(key, invoiceID string) func() *Session {
	return func() *Session { return NewSession(key, invoiceID, t0) }
}

func TestAcquireCreatesOnceAndReuses(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	lease, err := store.Acquire(ctx, "k", initFor("k", "INV-1"))
	require.NoError(t, err)
	assert.True(t, lease.Created())
	lease.Release()
	lease.Release()

	lease, err = store.Acquire(ctx, "k", initFor("k", "INV-2"))
	require.NoError(t, err)
	defer lease.Release()
	assert.False(t, lease.Created())
	assert.Equal(t, "INV-1", lease.Session().InvoiceID)
	assert.Equal(t, 1, store.Len())
}

func TestRemoveStartsFreshSession(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	lease, err := store.Acquire(ctx, "k", initFor("k", "INV-1"))
	require.NoError(t, err)
	lease.Remove()
	lease.Release()

	_, ok := store.Peek("k")
	assert.False(t, ok)
	assert.Zero(t, store.Len())

	lease, err = store.Acquire(ctx, "k", initFor("k", "INV-2"))
	require.NoError(t, err)
	defer lease.Release()
	assert.True(t, lease.Created())
	assert.Equal(t, "INV-2", lease.Session().InvoiceID)
}

func TestAcquireWaitsForHolder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Acquire(ctx, "k", initFor("k", "INV-1"))
	require.NoError(t, err)

	acquired := make(chan Lease)
	go func() {
		l, err := store.Acquire(ctx, "k", initFor("k", "INV-X"))
		if err == nil {
			acquired <- l
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire must block while the first lease is held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()
	select {
	case l := <-acquired:
		assert.Equal(t, "INV-1", l.Session().InvoiceID)
		l.Release()
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed")
	}
}

func TestWaiterOnRemovedSessionGetsNewOne(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Acquire(ctx, "k", initFor("k", "INV-1"))
	require.NoError(t, err)

	acquired := make(chan Lease, 1)
	go func() {
		l, err := store.Acquire(ctx, "k", initFor("k", "INV-2"))
		if err == nil {
			acquired <- l
		}
	}()
	time.Sleep(20 * time.Millisecond)

	first.Remove()
	first.Release()

	l := <-acquired
	defer l.Release()
	assert.True(t, l.Created())
	assert.Equal(t, "INV-2", l.Session().InvoiceID)
}

func TestAcquireTimesOutAsBusy(t *testing.T) {
	store := NewMemoryStore()

	held, err := store.Acquire(context.Background(), "k", initFor("k", "INV-1"))
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = store.Acquire(ctx, "k", initFor("k", "INV-2"))
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLeasesSerializeMutations(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	lease, err := store.Acquire(ctx, "k", initFor("k", "INV-1"))
	require.NoError(t, err)
	questions := make([]string, 50)
	for i := range questions {
		questions[i] = "q"
	}
	require.NoError(t, lease.Session().BeginQuestions("ctx", questions, t0))
	lease.Release()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := store.Acquire(ctx, "k", initFor("k", "unused"))
			if err != nil {
				return
			}
			defer l.Release()
			_ = l.Session().RecordAnswer("a", t0)
		}()
	}
	wg.Wait()

	snap, ok := store.Peek("k")
	require.True(t, ok)
	assert.Equal(t, 50, snap.Cursor)
	assert.Equal(t, 50, snap.AnsweredCount)
}

func TestPeekReflectsLastRelease(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	lease, err := store.Acquire(ctx, "k", initFor("k", "INV-1"))
	require.NoError(t, err)
	require.NoError(t, lease.Session().BeginQuestions("ctx", []string{"q1", "q2"}, t0))

	snap, ok := store.Peek("k")
	require.True(t, ok)
	assert.Equal(t, PhaseAwaitingFirstInput, snap.Phase)

	lease.Release()
	snap, _ = store.Peek("k")
	assert.Equal(t, PhaseAwaitingAnswer, snap.Phase)
	assert.Equal(t, 2, snap.TotalQuestions)
}

func TestDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.Delete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	lease, err := store.Acquire(ctx, "k", initFor("k", "INV-1"))
	require.NoError(t, err)
	lease.Release()

	ok, err = store.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, store.Len())
}

func TestSweepEvictsOnlyIdleUnleased(t *testing.T) {
	now := t0
	store := NewMemoryStore(WithIdleTTL(time.Minute), WithStoreClock(func() time.Time { return now }))
	ctx := context.Background()

	idle, err := store.Acquire(ctx, "idle", initFor("idle", "INV-1"))
	require.NoError(t, err)
	idle.Release()

	busy, err := store.Acquire(ctx, "busy", initFor("busy", "INV-2"))
	require.NoError(t, err)

	now = t0.Add(30 * time.Second)
	fresh, err := store.Acquire(ctx, "fresh", initFor("fresh", "INV-3"))
	require.NoError(t, err)
	fresh.Release()

	evicted := store.Sweep(t0.Add(80 * time.Second))
	assert.Equal(t, []string{"idle"}, evicted)

	_, ok := store.Peek("busy")
	assert.True(t, ok)
	_, ok = store.Peek("fresh")
	assert.True(t, ok)

	busy.Release()
	evicted = store.Sweep(t0.Add(10 * time.Minute))
	assert.ElementsMatch(t, []string{"busy", "fresh"}, evicted)
	assert.Zero(t, store.Len())
}

func TestRunJanitorStopsWithContext(t *testing.T) {
	now := t0
	var mu sync.Mutex
	store := NewMemoryStore(WithIdleTTL(time.Millisecond), WithStoreClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}))

	lease, err := store.Acquire(context.Background(), "k", initFor("k", "INV-1"))
	require.NoError(t, err)
	lease.Release()

	mu.Lock()
	now = t0.Add(time.Hour)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	evictedCh := make(chan []string, 1)
	done := make(chan struct{})
	go func() {
		store.RunJanitor(ctx, 5*time.Millisecond, func(keys []string) {
			select {
			case evictedCh <- keys:
			default:
			}
		})
		close(done)
	}()

	select {
	case keys := <-evictedCh:
		assert.Equal(t, []string{"k"}, keys)
	case <-time.After(time.Second):
		t.Fatal("janitor never evicted the idle session")
	}

	cancel()
	<-done
}
