// Package store implements the chained hash table, its lock-free read
// path and striped write path, the cache overlay with CLOCK eviction, and
// the table snapshot codec. Every table is independently named and owned
// by a manager one layer up (see the root l4kv package); this package
// only knows about a single table's own memory.
package store

import (
	"bytes"
	"fmt"
	"sync"
	"unsafe"

	"github.com/l4kv/l4kv/perf"
)

// Setting is a table's immutable configuration, fixed at creation.
type Setting struct {
	NumBuckets         uint32
	NumBucketsPerMutex uint32
	FixedKeySize       uint16
	FixedValueSize     uint32
}

// ActionRegistrar defers a cleanup action until it is safe to run — until
// no context pinned at or before the record's retirement epoch can still
// observe it. epoch.Manager implements this; the snapshot restore path
// wires in a registrar that rejects registration outright, since every
// key read back from a stream produced by WriteSnapshot is guaranteed
// unique and so should never need to retire an overwritten record.
type ActionRegistrar interface {
	RegisterAction(action func())
}

// RecordIterator walks a table's records in bucket/chain order. It is
// only valid while the context that produced it (via AddRef/RemoveRef in
// the epoch manager) is still live: the chain it walks can be mutated
// concurrently, and memory it references is only guaranteed to exist
// while some context still pins the epoch it was published under.
type RecordIterator interface {
	MoveNext() bool
	Key() []byte
	Value() []byte
	Reset()
}

// Table is the plain read/write chained hash table: C3 (shared layout),
// C4 (lock-free read path), and C5 (striped write path) from the design.
type Table struct {
	setting   Setting
	buckets   []entry
	mutexes   []mutexStripe
	codec     recordCodec
	counters  *perf.Counters
	registrar ActionRegistrar
}

// NewTable allocates a table with the given setting. registrar may be nil,
// in which case retired records are simply dropped for the Go garbage
// collector to reclaim once no slot references them — appropriate for
// callers that don't need deferred-action semantics (e.g. snapshot
// restore already guards against any retirement happening at all).
func NewTable(setting Setting, registrar ActionRegistrar) (*Table, error) {
	if setting.NumBuckets == 0 {
		return nil, fmt.Errorf("store: numBuckets must be greater than zero")
	}

	bucketsPerMutex := setting.NumBucketsPerMutex
	if bucketsPerMutex == 0 {
		bucketsPerMutex = 1
	}
	numMutexes := setting.NumBuckets / bucketsPerMutex
	if numMutexes == 0 {
		numMutexes = 1
	}

	t := &Table{
		setting:   setting,
		buckets:   make([]entry, setting.NumBuckets),
		mutexes:   make([]mutexStripe, numMutexes),
		codec:     newRecordCodec(setting.FixedKeySize, setting.FixedValueSize, 0),
		counters:  newHashTableCounters(),
		registrar: registrar,
	}

	t.counters.Set(BucketsCount, int64(len(t.buckets)))
	t.counters.Set(TotalIndexSize,
		int64(len(t.buckets))*int64(unsafe.Sizeof(entry{}))+
			int64(len(t.mutexes))*int64(unsafe.Sizeof(mutexStripe{}))+
			int64(unsafe.Sizeof(Table{})))

	return t, nil
}

// Setting returns the table's immutable configuration.
func (t *Table) Setting() Setting { return t.setting }

// Counters returns the table's performance counter block.
func (t *Table) Counters() *perf.Counters { return t.counters }

func (t *Table) mutexFor(bucketIdx uint32) *sync.RWMutex {
	return &t.mutexes[bucketIdx%uint32(len(t.mutexes))].mu
}

// bucketInfo hashes key with MurmurHash3 x64 128: the low word modulo the
// bucket count selects the bucket, the high word's low byte becomes the
// slot tag.
func (t *Table) bucketInfo(key []byte) (bucketIdx uint32, tag uint8) {
	h1, h2 := murmur3x64128(key, 0)
	return uint32(h1 % uint64(len(t.buckets))), uint8(h2)
}

// Get performs a lock-free lookup: tag-first scan, acquire loads on data
// and chain pointers, key comparison as the sole authority on a hit.
func (t *Table) Get(key []byte) ([]byte, bool) {
	bucketIdx, tag := t.bucketInfo(key)
	e := &t.buckets[bucketIdx]

	for e != nil {
		for i := 0; i < entriesPerBucket; i++ {
			if e.tag(i) != tag {
				continue
			}
			data := e.data[i].Load()
			if data == nil {
				continue
			}
			rec := t.codec.decode(*data)
			if bytes.Equal(rec.key, key) {
				return rec.value, true
			}
		}
		e = e.next.Load()
	}

	return nil, false
}

// Add inserts or overwrites the record for key.
func (t *Table) Add(key, value []byte) error {
	buf, err := t.codec.encode(key, value, nil)
	if err != nil {
		return err
	}
	return t.addBuffer(key, buf, len(key), len(value))
}

// addBuffer runs the write path's chain walk against an already-encoded
// buffer, so the cache overlay can reuse it after prepending its own
// metadata. keyLen/valueLen are the *user-visible* sizes counted into the
// size counters (for a cache table, valueLen already includes the
// metadata prefix, matching how the original records TotalValueSize).
func (t *Table) addBuffer(key []byte, buf recordBuffer, keyLen, valueLen int) error {
	bucketIdx, tag := t.bucketInfo(key)
	mu := t.mutexFor(bucketIdx)
	mu.Lock()

	cur := &t.buckets[bucketIdx]
	var updateEntry *entry
	updateIdx := 0
	chainIndex := 0
	newEntryAdded := false
	oldValueSize := -1

	for cur != nil {
		chainIndex++

		for i := 0; i < entriesPerBucket; i++ {
			data := cur.data[i].Load()
			if data == nil {
				if updateEntry == nil {
					updateEntry = cur
					updateIdx = i
				}
				continue
			}
			if cur.tag(i) == tag {
				old := t.codec.decode(*data)
				if bytes.Equal(old.key, key) {
					updateEntry = cur
					updateIdx = i
					oldValueSize = len(old.value)
					break
				}
			}
		}

		if oldValueSize >= 0 {
			break
		}

		if updateEntry == nil && cur.next.Load() == nil {
			newEntry := &entry{}
			cur.next.Store(newEntry)
			newEntryAdded = true
		}

		cur = cur.next.Load()
	}

	old := updateEntry.data[updateIdx].Swap(&buf)
	updateEntry.setTag(updateIdx, tag)

	mu.Unlock()

	if oldValueSize >= 0 {
		t.counters.Add(TotalValueSize, int64(valueLen)-int64(oldValueSize))
	} else {
		t.counters.Add(TotalKeySize, int64(keyLen))
		t.counters.Add(TotalValueSize, int64(valueLen))
		overhead := int64(t.codec.recordOverhead())
		if newEntryAdded {
			overhead += int64(unsafe.Sizeof(entry{}))
		}
		t.counters.Add(TotalIndexSize, overhead)
		t.counters.Min(MinKeySize, int64(keyLen))
		t.counters.Max(MaxKeySize, int64(keyLen))
		t.counters.Increment(RecordsCount)
		if newEntryAdded {
			t.counters.Increment(ChainingEntriesCount)
			if chainIndex > 1 {
				t.counters.Max(MaxBucketChainLength, int64(chainIndex))
			}
		}
	}
	t.counters.Min(MinValueSize, int64(valueLen))
	t.counters.Max(MaxValueSize, int64(valueLen))

	if old != nil {
		t.retire(*old)
	}
	return nil
}

// Remove deletes the record for key, if present, and reports whether it
// was. Min-size counters are intentionally not restored: they are
// monotonic by design (see spec.md §4.4).
func (t *Table) Remove(key []byte) bool {
	bucketIdx, tag := t.bucketInfo(key)
	mu := t.mutexFor(bucketIdx)
	mu.Lock()

	cur := &t.buckets[bucketIdx]
	for cur != nil {
		for i := 0; i < entriesPerBucket; i++ {
			if cur.tag(i) != tag {
				continue
			}
			data := cur.data[i].Load()
			if data == nil {
				continue
			}
			rec := t.codec.decode(*data)
			if !bytes.Equal(rec.key, key) {
				continue
			}

			old := cur.data[i].Swap(nil)
			cur.setTag(i, 0)
			mu.Unlock()

			t.counters.Decrement(RecordsCount)
			t.counters.Subtract(TotalKeySize, int64(len(rec.key)))
			t.counters.Subtract(TotalValueSize, int64(len(rec.value)))
			t.counters.Subtract(TotalIndexSize, int64(t.codec.recordOverhead()))

			if old != nil {
				t.retire(*old)
			}
			return true
		}
		cur = cur.next.Load()
	}

	mu.Unlock()
	return false
}

// retire hands buf to the registrar so it is freed only once no reader
// could still be observing it — see epoch.Manager for the safety argument.
// Go's GC reclaims the bytes themselves; what actually needs deferring is
// any caller-supplied action that depends on no concurrent reader still
// holding a reference (tests hook this to assert the epoch-safety
// invariant).
func (t *Table) retire(buf recordBuffer) {
	if t.registrar == nil {
		return
	}
	t.registrar.RegisterAction(func() {
		_ = buf
	})
}

// Iterator returns a RecordIterator over the table's current contents, in
// bucket/chain order with no further ordering guarantee.
func (t *Table) Iterator() RecordIterator {
	return &tableIterator{table: t, bucketIdx: -1}
}
