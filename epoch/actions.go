package epoch

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
)

// Action is a unit of deferred cleanup work, run only once no context can
// still be pinned at or before the epoch it was registered at.
type Action func()

// actionShard holds one of the action manager's independent epoch-to-
// actions maps; sharding spreads RegisterAction contention across
// multiple mutexes instead of funneling every table's retirements through
// one lock.
type actionShard struct {
	mu      sync.Mutex
	actions map[uint64][]Action
}

// actionManager buckets registered actions by the epoch they were
// registered at, and performs every bucket at or before a given epoch
// once that epoch is known unreferenced.
type actionManager struct {
	shards  []actionShard
	counter atomic.Uint32
}

func newActionManager(numQueues uint8) *actionManager {
	n := nextPowerOfTwo(numQueues)
	shards := make([]actionShard, n)
	for i := range shards {
		shards[i].actions = make(map[uint64][]Action)
	}
	return &actionManager{shards: shards}
}

// nextPowerOfTwo rounds n up to the next power of two. A zero n means
// "pick one based on hardware concurrency," matching the original's
// NumActionQueues default.
func nextPowerOfTwo(n uint8) uint32 {
	v := uint32(n)
	if v == 0 {
		v = uint32(runtime.NumCPU())
	}
	if v <= 1 {
		return 1
	}
	p := uint32(1)
	for p < v {
		p <<= 1
	}
	return p
}

// register adds action at epochCounter, round-robining across shards so
// concurrent registrations from different tables don't serialize on one
// mutex.
func (m *actionManager) register(epochCounter uint64, action Action) {
	idx := m.counter.Add(1) & uint32(len(m.shards)-1)
	shard := &m.shards[idx]

	shard.mu.Lock()
	shard.actions[epochCounter] = append(shard.actions[epochCounter], action)
	shard.mu.Unlock()
}

// performUpTo runs every action registered at an epoch strictly less
// than epochCounter, across all shards, and returns how many it ran.
func (m *actionManager) performUpTo(epochCounter uint64) uint64 {
	var performed uint64

	for i := range m.shards {
		shard := &m.shards[i]

		shard.mu.Lock()
		var due []uint64
		for epoch := range shard.actions {
			if epoch < epochCounter {
				due = append(due, epoch)
			}
		}
		sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })

		var toRun []Action
		for _, epoch := range due {
			toRun = append(toRun, shard.actions[epoch]...)
			delete(shard.actions, epoch)
		}
		shard.mu.Unlock()

		for _, action := range toRun {
			action()
			performed++
		}
	}

	return performed
}
