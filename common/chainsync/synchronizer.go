// Package chainsync mirrors the ledger's event streams into a bounded,
// queryable local history and fans normalized events out to observers.
package chainsync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/farmtrace/provenance/common/cache"
	"github.com/farmtrace/provenance/common/journal"
	"github.com/farmtrace/provenance/common/ledger"
	"github.com/farmtrace/provenance/common/models"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// LogSource delivers raw contract logs per event kind. *ledger.Client
// satisfies it.
type LogSource interface {
	WatchEvents(ctx context.Context, kind models.EventKind) (<-chan ledger.RawLog, func(), error)
}

// TimestampSource resolves block numbers to timestamps. *ledger.Client
// satisfies it.
type TimestampSource interface {
	BlockTimestamp(ctx context.Context, blockNumber uint64) (time.Time, error)
}

// Observer receives normalized events. A failing or panicking observer is
// isolated and logged; it never blocks delivery to other observers.
type Observer func(event models.DomainEvent) error

// Metrics is the instrumentation hook the synchronizer reports into.
type Metrics interface {
	EventRecorded(kind string)
	DuplicateDiscarded(kind string)
	ObserverFailure(kind string)
}

type noopMetrics struct{}

func (noopMetrics) EventRecorded(string)      {}
func (noopMetrics) DuplicateDiscarded(string) {}
func (noopMetrics) ObserverFailure(string)    {}

type state int

const (
	stateStopped state = iota
	stateStarting
	stateListening
)

type observerEntry struct {
	id uint64
	fn Observer
}

// Synchronizer subscribes to every event kind, deduplicates redelivered
// logs by sequence key, keeps a bounded newest-first history, and invokes
// registered observers synchronously. Kinds deliver concurrently, one
// goroutine per kind; order within a kind's stream is preserved.
type Synchronizer struct {
	source LogSource
	clock  TimestampSource
	log    Logger

	capacity int
	journal  *journal.Store
	metrics  Metrics
	tsCache  *cache.BlockTimestamps

	mu     sync.Mutex
	st     state
	cancel context.CancelFunc
	unsubs []func()

	// checked before every observer invocation so Stop can cut delivery
	// off without waiting on in-flight work
	listening atomic.Bool

	histMu  sync.Mutex
	history []models.DomainEvent
	seen    map[models.SequenceKey]struct{}

	obsMu     sync.RWMutex
	observers map[models.EventKind][]observerEntry
	nextObsID uint64
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithJournal persists events so dedup and history survive restarts.
func WithJournal(store *journal.Store) Option {
	return func(s *Synchronizer) {
		s.journal = store
	}
}

// WithMetrics wires the synchronizer's counters.
func WithMetrics(m Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

// New creates a stopped synchronizer with the given history capacity.
func New(source LogSource, clock TimestampSource, capacity int, log Logger, opts ...Option) *Synchronizer {
	if capacity < 1 {
		capacity = 1
	}
	s := &Synchronizer{
		source:    source,
		clock:     clock,
		log:       log,
		capacity:  capacity,
		metrics:   noopMetrics{},
		tsCache:   cache.NewBlockTimestamps(capacity),
		seen:      make(map[models.SequenceKey]struct{}),
		observers: make(map[models.EventKind][]observerEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to every event kind. Idempotent: calling it while
// already listening is a no-op. With a journal configured, recent events
// are warm-loaded so restarts do not re-deliver or forget them.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st != stateStopped {
		return nil
	}
	s.st = stateStarting

	if s.journal != nil {
		if err := s.warmLoad(); err != nil {
			s.log.Warn("journal warm-load failed, starting cold", "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, kind := range models.EventKinds() {
		logs, unsub, err := s.source.WatchEvents(runCtx, kind)
		if err != nil {
			for _, u := range s.unsubs {
				u()
			}
			s.unsubs = nil
			cancel()
			s.cancel = nil
			s.st = stateStopped
			return fmt.Errorf("failed to watch %s events: %w", kind, err)
		}
		s.unsubs = append(s.unsubs, unsub)

		go s.consume(runCtx, kind, logs)
	}

	s.listening.Store(true)
	s.st = stateListening
	s.log.Info("event synchronizer listening",
		"kinds", len(models.EventKinds()),
		"history_capacity", s.capacity,
		"journaled", s.journal != nil,
	)
	return nil
}

// Stop unsubscribes every kind and transitions to stopped. Safe to call
// from any point and when already stopped. It does not wait on in-flight
// deliveries; the listening gate guarantees no observer invocation begins
// after Stop returns, even if the provider redelivers buffered events.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if s.st == stateStopped {
		s.mu.Unlock()
		return
	}

	s.listening.Store(false)
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.st = stateStopped
	s.mu.Unlock()

	s.log.Info("event synchronizer stopped")
}

// Listening reports whether the synchronizer is delivering events.
func (s *Synchronizer) Listening() bool {
	return s.listening.Load()
}

// Subscribe registers an observer for one event kind, or for every kind
// via models.EventKindWildcard. The returned func unregisters it. New
// observers see only events recorded after registration; there is no
// replay.
func (s *Synchronizer) Subscribe(kind models.EventKind, fn Observer) (func(), error) {
	if kind != models.EventKindWildcard && !models.KnownKind(kind) {
		return nil, fmt.Errorf("cannot subscribe to unknown kind %q", kind)
	}

	s.obsMu.Lock()
	s.nextObsID++
	id := s.nextObsID
	s.observers[kind] = append(s.observers[kind], observerEntry{id: id, fn: fn})
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		entries := s.observers[kind]
		for i, e := range entries {
			if e.id == id {
				s.observers[kind] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		s.obsMu.Unlock()
	}, nil
}

// History returns a snapshot of the accumulated events, newest first in
// sequence-key order, optionally narrowed by filter predicates. The
// snapshot is finite and restartable; reading never drains state.
func (s *Synchronizer) History(filters ...func(models.DomainEvent) bool) []models.DomainEvent {
	s.histMu.Lock()
	snapshot := make([]models.DomainEvent, len(s.history))
	copy(snapshot, s.history)
	s.histMu.Unlock()

	if len(filters) == 0 {
		return snapshot
	}

	var out []models.DomainEvent
	for _, event := range snapshot {
		keep := true
		for _, filter := range filters {
			if !filter(event) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, event)
		}
	}
	return out
}

// warmLoad seeds history and dedup state from the journal. Caller holds s.mu.
func (s *Synchronizer) warmLoad() error {
	events, err := s.journal.Recent(s.capacity)
	if err != nil {
		return err
	}

	s.histMu.Lock()
	for _, event := range events {
		s.seen[event.SequenceKey] = struct{}{}
	}
	// Recent returns newest first, which is history's order.
	s.history = events
	s.histMu.Unlock()

	s.log.Info("journal warm-loaded", "events", len(events))
	return nil
}

func (s *Synchronizer) consume(ctx context.Context, kind models.EventKind, logs <-chan ledger.RawLog) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-logs:
			if !ok {
				return
			}
			s.handle(ctx, kind, raw)
		}
	}
}

func (s *Synchronizer) handle(ctx context.Context, kind models.EventKind, raw ledger.RawLog) {
	if !s.listening.Load() {
		return
	}

	key := models.SequenceKey{BlockNumber: raw.BlockNumber, LogIndex: raw.LogIndex}
	if s.isDuplicate(key) {
		s.metrics.DuplicateDiscarded(string(kind))
		s.log.Debug("duplicate event discarded", "kind", kind, "sequence_key", key.String())
		return
	}

	event, err := s.normalize(ctx, kind, raw)
	if err != nil {
		s.log.Warn("dropping malformed event",
			"kind", kind,
			"sequence_key", key.String(),
			"tx_ref", raw.TxHash,
			"error", err,
		)
		return
	}

	if !s.record(event) {
		// lost a race with a concurrent redelivery
		s.metrics.DuplicateDiscarded(string(kind))
		return
	}

	if s.journal != nil {
		if err := s.journal.Append(event); err != nil {
			s.log.Error("failed to journal event", "sequence_key", key.String(), "error", err)
		}
	}

	s.metrics.EventRecorded(string(kind))
	s.deliver(event)
}

func (s *Synchronizer) isDuplicate(key models.SequenceKey) bool {
	s.histMu.Lock()
	_, dup := s.seen[key]
	s.histMu.Unlock()
	if dup {
		return true
	}

	if s.journal != nil {
		if found, err := s.journal.Has(key); err == nil && found {
			return true
		}
	}
	return false
}

// record inserts the event into history at its sequence-key position and
// marks it seen. Returns false if the key was recorded concurrently.
func (s *Synchronizer) record(event models.DomainEvent) bool {
	s.histMu.Lock()
	defer s.histMu.Unlock()

	if _, dup := s.seen[event.SequenceKey]; dup {
		return false
	}
	s.seen[event.SequenceKey] = struct{}{}

	// Usually the newest event: insertion point is almost always 0.
	pos := sort.Search(len(s.history), func(i int) bool {
		return s.history[i].SequenceKey.Before(event.SequenceKey)
	})
	s.history = append(s.history, models.DomainEvent{})
	copy(s.history[pos+1:], s.history[pos:])
	s.history[pos] = event

	if len(s.history) > s.capacity {
		evicted := s.history[len(s.history)-1]
		delete(s.seen, evicted.SequenceKey)
		s.history = s.history[:len(s.history)-1]
	}
	return true
}

func (s *Synchronizer) deliver(event models.DomainEvent) {
	s.obsMu.RLock()
	kindObs := s.observers[event.Kind]
	wildObs := s.observers[models.EventKindWildcard]
	entries := make([]observerEntry, 0, len(kindObs)+len(wildObs))
	entries = append(entries, kindObs...)
	entries = append(entries, wildObs...)
	s.obsMu.RUnlock()

	for _, entry := range entries {
		if !s.listening.Load() {
			return
		}
		s.invoke(entry, event)
	}
}

func (s *Synchronizer) invoke(entry observerEntry, event models.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.ObserverFailure(string(event.Kind))
			s.log.Error("observer panicked",
				"kind", event.Kind,
				"observer_id", entry.id,
				"sequence_key", event.SequenceKey.String(),
				"panic", r,
			)
		}
	}()

	if err := entry.fn(event); err != nil {
		s.metrics.ObserverFailure(string(event.Kind))
		s.log.Warn("observer failed",
			"kind", event.Kind,
			"observer_id", entry.id,
			"sequence_key", event.SequenceKey.String(),
			"error", err,
		)
	}
}
