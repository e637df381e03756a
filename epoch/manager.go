// Package epoch implements epoch-based reclamation: contexts pin the
// current epoch while they might be reading table memory, writers defer
// freeing anything a pinned context could still see, and a background
// goroutine periodically advances the epoch and runs whatever deferred
// actions are now safe.
package epoch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/l4kv/l4kv/perf"
)

// OverflowPolicy controls what happens when AddRef is called while the
// reference-count ring is entirely full of unreclaimed epochs — meaning
// some context has held a reference across the whole queue's lifetime and
// the oldest epoch can't be reclaimed.
type OverflowPolicy int

const (
	// OverflowBlock stalls AddRef until the advancer reclaims room. This
	// is the default: it trades latency for never losing a registered
	// action.
	OverflowBlock OverflowPolicy = iota
	// OverflowAbort makes AddRef return ErrQueueExhausted immediately.
	OverflowAbort
)

// ErrQueueExhausted is returned by AddRef under OverflowAbort when the
// reference-count ring has no room for a new epoch.
var ErrQueueExhausted = errors.New("epoch: reference count queue exhausted")

// Server-level performance counters, tracked by Manager.
const (
	OldestEpochCounterInQueue = iota
	LatestEpochCounterInQueue
	PendingActionsCount
	LastPerformedActionsCount
	serverCounterCount
)

var serverCounterNames = []string{
	"OldestEpochCounterInQueue",
	"LatestEpochCounterInQueue",
	"PendingActionsCount",
	"LastPerformedActionsCount",
}

// Config configures a Manager.
type Config struct {
	// QueueSize bounds how many distinct epochs can be outstanding at
	// once; it must be large enough that no context's pin realistically
	// outlives QueueSize advancer cycles.
	QueueSize uint32
	// ProcessingInterval is how often the background goroutine advances
	// the epoch and performs due actions.
	ProcessingInterval time.Duration
	// NumActionQueues shards the registered-action map for throughput;
	// zero means "pick one based on runtime.NumCPU()".
	NumActionQueues uint8
	// Overflow selects what AddRef does when the ring is full.
	Overflow OverflowPolicy
}

// DefaultConfig mirrors the defaults this package was translated from:
// a queue of 1000 epochs, processed once a second, with minimal sharding.
func DefaultConfig() Config {
	return Config{
		QueueSize:          1000,
		ProcessingInterval: time.Second,
		NumActionQueues:    1,
		Overflow:           OverflowBlock,
	}
}

// Manager owns the epoch counter, the per-epoch reference queue, and the
// deferred action registry, and runs the background goroutine that
// advances the epoch and performs due actions.
type Manager struct {
	config   Config
	queue    *queue
	actions  *actionManager
	counters *perf.Counters

	notFull sync.Cond
	notFullMu sync.Mutex

	stop     chan struct{}
	done     chan struct{}
	fatalErr error
	fatalMu  sync.Mutex
}

// NewManager constructs and starts a Manager's background advancer.
func NewManager(config Config) *Manager {
	if config.QueueSize == 0 {
		config.QueueSize = 1000
	}
	if config.ProcessingInterval <= 0 {
		config.ProcessingInterval = time.Second
	}

	m := &Manager{
		config:   config,
		queue:    newQueue(config.QueueSize),
		actions:  newActionManager(config.NumActionQueues),
		counters: perf.New(serverCounterNames),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.notFull.L = &m.notFullMu

	go m.run()
	return m
}

// Counters returns the manager's server-level performance counters.
func (m *Manager) Counters() *perf.Counters { return m.counters }

// AddRef pins the current epoch on behalf of a new context and returns
// the pinned value, to be passed back to RemoveRef once the context is
// done. Under OverflowBlock (the default) this blocks while the ring is
// full; under OverflowAbort it returns ErrQueueExhausted instead.
func (m *Manager) AddRef() (uint64, error) {
	for {
		epoch := m.queue.addRef()
		if epoch-m.oldestEpoch() < uint64(m.config.QueueSize) {
			return epoch, nil
		}

		// Release the ref we just took: it was speculative, the ring
		// was already full when we looked.
		_ = m.queue.removeRef(epoch)

		if m.config.Overflow == OverflowAbort {
			return 0, ErrQueueExhausted
		}

		m.notFullMu.Lock()
		m.notFull.Wait()
		m.notFullMu.Unlock()
	}
}

func (m *Manager) oldestEpoch() uint64 {
	return uint64(m.counters.Get(OldestEpochCounterInQueue))
}

// RemoveRef drops a context's pin on epochCounter, the value returned by
// its AddRef call.
func (m *Manager) RemoveRef(epochCounter uint64) error {
	return m.queue.removeRef(epochCounter)
}

// RegisterAction defers action until no context can still be pinned at or
// before the epoch current when RegisterAction was called. It implements
// store.ActionRegistrar.
func (m *Manager) RegisterAction(action func()) {
	m.actions.register(m.queue.current(), action)
	m.counters.Increment(PendingActionsCount)
}

// FatalErr returns the error that stopped the background advancer, if
// any. A nil result means the advancer is still running (or Close()
// already shut it down cleanly).
func (m *Manager) FatalErr() error {
	m.fatalMu.Lock()
	defer m.fatalMu.Unlock()
	return m.fatalErr
}

// Close stops the background advancer and waits for it to exit. Actions
// still pending are performed unconditionally as part of shutdown,
// regardless of whether their epoch is provably unreferenced, since no
// context can observe anything after Close returns. If the advancer has
// already stopped because an action panicked (see FatalErr), Close runs
// no further actions.
func (m *Manager) Close() {
	close(m.stop)
	<-m.done
}

func (m *Manager) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.config.ProcessingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.safeCycle(); err != nil {
				m.fatalMu.Lock()
				m.fatalErr = err
				m.fatalMu.Unlock()
				return
			}
		case <-m.stop:
			m.actions.performUpTo(m.queue.current() + 1)
			return
		}
	}
}

// safeCycle recovers a panicking action so one bad deferred cleanup
// doesn't take down the advancer goroutine silently; the manager still
// stops, but FatalErr reports why.
func (m *Manager) safeCycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("epoch: action panicked: %v", r)
		}
	}()
	m.cycle()
	return nil
}

// cycle is one pass of the advancer: reclaim every epoch whose reference
// count has dropped to zero, perform whatever actions that frees up, then
// advance the epoch. This order matters — reclaiming before advancing
// means an action registered "now" is always associated with an epoch
// still in the future from any context's perspective.
func (m *Manager) cycle() {
	oldest := m.queue.reclaimFrontier()
	performed := m.actions.performUpTo(oldest)

	m.counters.Subtract(PendingActionsCount, int64(performed))
	m.counters.Set(LastPerformedActionsCount, int64(performed))
	m.counters.Set(OldestEpochCounterInQueue, int64(oldest))

	m.queue.tryAddNewEpoch()
	m.counters.Set(LatestEpochCounterInQueue, int64(m.queue.current()))

	m.notFullMu.Lock()
	m.notFull.Broadcast()
	m.notFullMu.Unlock()
}
