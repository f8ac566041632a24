package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/zhouzirui/z-invoice/backend/internal/logging"
)

// ErrSessionBusy is returned when the lease for a session could not be
// obtained before the caller's context ended.
var ErrSessionBusy = errors.New("session is busy")

// Store maps session keys to sessions. Every read-modify-write of a session
// happens under a Lease, which serializes turns per key.
type Store interface {
	// Acquire blocks until the caller holds the session for key, creating it
	// with init when the key is unknown.
	Acquire(ctx context.Context, key string, init func() *Session) (Lease, error)
	// Peek returns the state recorded at the last lease release.
	Peek(key string) (Snapshot, bool)
	// Delete evicts key once its current holder (if any) releases it.
	Delete(ctx context.Context, key string) (bool, error)
	// Sweep evicts sessions idle since before now-ttl that nobody holds.
	Sweep(now time.Time) []string
	Len() int
}

// Lease is exclusive access to one live session.
type Lease interface {
	Session() *Session
	// Created reports whether Acquire minted the session.
	Created() bool
	// Remove evicts the session; later Acquire calls on the key start fresh.
	Remove()
	// Release gives up the lease. Safe to call more than once.
	Release()
}

type entry struct {
	sem      *semaphore.Weighted
	session  *Session
	snapshot Snapshot
	lastSeen time.Time
	removed  bool
}

// MemoryStore is a process-lifetime Store with per-key semaphores.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
	log     *logging.Logger
}

type StoreOption func(*MemoryStore)

// WithIdleTTL sets how long an unleased session may sit idle before Sweep evicts it.
func WithIdleTTL(ttl time.Duration) StoreOption {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

// WithStoreClock overrides time.Now.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

func WithStoreLogger(log *logging.Logger) StoreOption {
	return func(s *MemoryStore) {
		s.log = log
	}
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		ttl:     30 * time.Minute,
		now:     time.Now,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Acquire(ctx context.Context, key string, init func() *Session) (Lease, error) {
	for {
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			session := init()
			e = &entry{
				sem:      semaphore.NewWeighted(1),
				session:  session,
				snapshot: session.Snapshot(),
				lastSeen: s.now(),
			}
			// Fresh semaphore, cannot fail.
			e.sem.TryAcquire(1)
			s.entries[key] = e
			s.mu.Unlock()
			return &lease{store: s, key: key, e: e, created: true}, nil
		}
		s.mu.Unlock()

		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionBusy, err)
		}

		s.mu.Lock()
		removed := e.removed
		s.mu.Unlock()
		if removed {
			// The previous holder finished the dialog; start over on the live map.
			e.sem.Release(1)
			continue
		}
		return &lease{store: s, key: key, e: e}, nil
	}
}

func (s *MemoryStore) Peek(key string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot, true
}

func (s *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("%w: %w", ErrSessionBusy, err)
	}
	defer e.sem.Release(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.removed {
		return false, nil
	}
	s.evictLocked(key, e)
	return true, nil
}

func (s *MemoryStore) Sweep(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for key, e := range s.entries {
		if now.Sub(e.lastSeen) <= s.ttl {
			continue
		}
		if !e.sem.TryAcquire(1) {
			continue
		}
		s.evictLocked(key, e)
		e.sem.Release(1)
		evicted = append(evicted, key)
	}
	return evicted
}

// RunJanitor sweeps every interval until ctx is done. onEvict, if set,
// receives the keys removed by each sweep.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration, onEvict func(keys []string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := s.Sweep(s.now())
			if len(evicted) == 0 {
				continue
			}
			s.log.Info().Int("count", len(evicted)).Strs("sessions", evicted).Msg("evicted idle sessions")
			if onEvict != nil {
				onEvict(evicted)
			}
		}
	}
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) evictLocked(key string, e *entry) {
	e.removed = true
	if cur, ok := s.entries[key]; ok && cur == e {
		delete(s.entries, key)
	}
}

type lease struct {
	store    *MemoryStore
	key      string
	e        *entry
	created  bool
	released bool
}

func (l *lease) Session() *Session { return l.e.session }

func (l *lease) Created() bool { return l.created }

func (l *lease) Remove() {
	l.store.mu.Lock()
	l.store.evictLocked(l.key, l.e)
	l.store.mu.Unlock()
}

func (l *lease) Release() {
	if l.released {
		return
	}
	l.released = true

	l.store.mu.Lock()
	if !l.e.removed {
		l.e.snapshot = l.e.session.Snapshot()
		l.e.lastSeen = l.store.now()
	}
	l.store.mu.Unlock()
	l.e.sem.Release(1)
}

var _ Store = (*MemoryStore)(nil)
