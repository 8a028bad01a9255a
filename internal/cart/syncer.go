package cart

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-checkout/pkg/logger"
)

const (
	// DefaultDebounce coalesces bursts of edits into one push.
	DefaultDebounce = 450 * time.Millisecond
	// DefaultMinInterval is the minimum spacing between two pushes.
	DefaultMinInterval = 300 * time.Millisecond

	defaultPushTimeout = 10 * time.Second
)

// SyncerOptions tunes a Syncer; zero values take the defaults.
type SyncerOptions struct {
	Debounce    time.Duration
	MinInterval time.Duration
	PushTimeout time.Duration
	Logger      *logger.Logger
}

// Syncer pushes a Store's contents to a Remote after edits settle. Push
// failures are logged and dropped; the next edit retries with fresh state.
type Syncer struct {
	store  *Store
	remote Remote
	logg   *logger.Logger

	debounce    time.Duration
	minInterval time.Duration
	pushTimeout time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	pending  bool
	lastPush time.Time
	closed   bool
	unsub    func()

	pushMu sync.Mutex
}

// NewSyncer wires a syncer to store. Call Start to begin watching edits.
func NewSyncer(store *Store, remote Remote, opts SyncerOptions) *Syncer {
	s := &Syncer{
		store:       store,
		remote:      remote,
		logg:        opts.Logger,
		debounce:    opts.Debounce,
		minInterval: opts.MinInterval,
		pushTimeout: opts.PushTimeout,
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}
	if s.minInterval <= 0 {
		s.minInterval = DefaultMinInterval
	}
	if s.pushTimeout <= 0 {
		s.pushTimeout = defaultPushTimeout
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	return s
}

// Start pulls the server cart, merges it into the store (local wins), and
// subscribes to store edits. The hydrated cart is scheduled for a push so
// local-only lines reach the server. A failed pull keeps the local cart and
// waits for the next edit.
func (s *Syncer) Start(ctx context.Context) {
	server, err := s.remote.Pull(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart.pull_failed")
	} else {
		s.store.MergeOnPull(server)
	}

	unsub := s.store.Subscribe(func([]Item) { s.Notify() })
	s.mu.Lock()
	s.unsub = unsub
	s.mu.Unlock()

	if err == nil {
		s.Notify()
	}
}

// Notify marks the cart dirty and (re)arms the debounce timer.
func (s *Syncer) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = true
	s.armLocked(s.debounce)
}

// Pending reports whether edits are waiting to be pushed.
func (s *Syncer) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Flush pushes the current state immediately, bypassing debounce and spacing.
func (s *Syncer) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.push(ctx)
}

// Close stops timers and unsubscribes from the store. Pending edits are not pushed.
func (s *Syncer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

func (s *Syncer) armLocked(delay time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, s.fire)
}

func (s *Syncer) fire() {
	s.mu.Lock()
	if s.closed || !s.pending {
		s.mu.Unlock()
		return
	}
	if wait := s.minInterval - time.Since(s.lastPush); !s.lastPush.IsZero() && wait > 0 {
		s.armLocked(wait)
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
	defer cancel()
	if err := s.push(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart.push_failed")
	}
}

func (s *Syncer) push(ctx context.Context) error {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	s.mu.Lock()
	s.pending = false
	s.lastPush = time.Now()
	s.mu.Unlock()

	return s.remote.Push(ctx, s.store.Items())
}
