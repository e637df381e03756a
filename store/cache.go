package store

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/l4kv/l4kv/perf"
)

// metadataSize is the width of the per-record cache metadata prefix: bits
// 0-30 hold the creation epoch time in seconds, bit 31 is the CLOCK access
// bit.
const metadataSize = 4

const epochSecondsMask = 0x7FFFFFFF

// CacheSetting configures the TTL/eviction overlay layered on a plain
// Table.
type CacheSetting struct {
	// MaxBytes bounds TotalKeySize+TotalValueSize+TotalIndexSize; Evict
	// runs a CLOCK sweep once an Add would exceed it.
	MaxBytes uint64
	// TTL is the record time-to-live. A zero TTL means records never
	// expire (see SPEC_FULL.md §5).
	TTL time.Duration
	// ForceTimeBasedEviction, when true, eagerly drops expired records in
	// the target bucket on every Add, bounding the cost to one bucket.
	ForceTimeBasedEviction bool
}

// CacheTable composes a plain Table with a CLOCK eviction policy and a
// metadata prefix, rather than subclassing Table: the cache behavior is a
// codec-level and policy-level concern layered over the same shared hash
// table, not a distinct hash table implementation (see spec.md §9's
// replace-inheritance-with-composition note).
type CacheTable struct {
	table       *Table
	setting     CacheSetting
	evictMu     sync.Mutex
	evictCursor uint32
	now         func() time.Time
}

// NewCacheTable allocates a cache-overlaid table.
func NewCacheTable(tableSetting Setting, cacheSetting CacheSetting, registrar ActionRegistrar) (*CacheTable, error) {
	t, err := NewTable(tableSetting, registrar)
	if err != nil {
		return nil, err
	}
	t.codec = newRecordCodec(tableSetting.FixedKeySize, tableSetting.FixedValueSize, metadataSize)

	return &CacheTable{
		table:   t,
		setting: cacheSetting,
		now:     time.Now,
	}, nil
}

// Setting returns the underlying table's immutable configuration.
func (c *CacheTable) Setting() Setting { return c.table.Setting() }

// Counters returns the underlying table's performance counter block,
// including the cache-specific CacheHitCount/CacheMissCount/
// EvictedRecordsCount entries.
func (c *CacheTable) Counters() *perf.Counters { return c.table.Counters() }

func metaEpochSeconds(meta []byte) uint32 {
	return binary.LittleEndian.Uint32(meta) & epochSecondsMask
}

func metaIsAccessed(meta []byte) bool {
	// The access bit is the most significant bit of the little-endian
	// word's high byte. Reading/writing this single byte without an
	// atomic op is a deliberate, spec-documented benign race (spec.md
	// §4.2/§5): a torn read costs at most one extra CLOCK pass.
	return meta[3]&0x80 != 0
}

// metaSetAccessed sets or clears the access bit and returns whether it was
// set beforehand.
func metaSetAccessed(meta []byte, set bool) bool {
	was := metaIsAccessed(meta)
	if set {
		meta[3] |= 0x80
	} else {
		meta[3] &^= 0x80
	}
	return was
}

func newMetadata(now time.Time) [metadataSize]byte {
	var m [metadataSize]byte
	binary.LittleEndian.PutUint32(m[:], uint32(now.Unix())&epochSecondsMask)
	return m
}

func isExpired(meta []byte, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	created := time.Unix(int64(metaEpochSeconds(meta)), 0)
	return now.Sub(created) > ttl
}

// Get returns the record for key, or a miss if it is absent or expired.
// A hit sets the record's CLOCK access bit.
func (c *CacheTable) Get(key []byte) ([]byte, bool) {
	raw, ok := c.table.Get(key)
	if !ok {
		c.table.counters.Increment(CacheMissCount)
		return nil, false
	}

	meta := raw[:metadataSize]
	if isExpired(meta, c.now(), c.setting.TTL) {
		c.table.counters.Increment(CacheMissCount)
		return nil, false
	}

	metaSetAccessed(meta, true)
	c.table.counters.Increment(CacheHitCount)
	return raw[metadataSize:], true
}

// Add inserts or overwrites the record for key, evicting as needed to
// stay within CacheSetting.MaxBytes.
func (c *CacheTable) Add(key, value []byte) error {
	if c.setting.ForceTimeBasedEviction {
		c.evictExpiredInBucket(key)
	}

	required := uint64(len(key) + len(value) + metadataSize)
	c.evict(required)

	meta := newMetadata(c.now())
	buf, err := c.table.codec.encode(key, value, meta[:])
	if err != nil {
		return err
	}
	return c.table.addBuffer(key, buf, len(key), len(value)+metadataSize)
}

// Remove deletes the record for key, if present.
func (c *CacheTable) Remove(key []byte) bool {
	return c.table.Remove(key)
}

// Iterator returns a RecordIterator that skips expired records and hides
// the metadata prefix.
func (c *CacheTable) Iterator() RecordIterator {
	return &cacheIterator{
		base: &tableIterator{table: c.table, bucketIdx: -1},
		ttl:  c.setting.TTL,
		now:  c.now(),
	}
}

// evictExpiredInBucket scans only key's target bucket under its stripe
// lock, retiring every expired record it finds. This bounds the cost of
// strict, eager TTL enforcement to one bucket.
func (c *CacheTable) evictExpiredInBucket(key []byte) {
	t := c.table
	bucketIdx, _ := t.bucketInfo(key)
	mu := t.mutexFor(bucketIdx)
	mu.Lock()
	defer mu.Unlock()

	now := c.now()
	cur := &t.buckets[bucketIdx]
	for cur != nil {
		for i := 0; i < entriesPerBucket; i++ {
			data := cur.data[i].Load()
			if data == nil {
				continue
			}
			rec := t.codec.decode(*data)
			if !isExpired(rec.value[:metadataSize], now, c.setting.TTL) {
				continue
			}
			c.retireSlot(cur, i, rec)
		}
		cur = cur.next.Load()
	}
}

// evict runs the CLOCK sweep bounded by CacheSetting.MaxBytes, described
// in spec.md §4.7: up to 2*numBuckets buckets are visited from a
// persistent cursor. In each visited bucket every expired or unaccessed
// record is evicted, and every accessed record has its access bit cleared
// and is kept, so it is evicted on the cursor's next visit unless it is
// accessed again in between. The sweep stops after the first bucket that
// brings the deficit to zero.
func (c *CacheTable) evict(required uint64) {
	if c.bytesNeeded(required) == 0 {
		return
	}

	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	needed := c.bytesNeeded(required)
	if needed == 0 {
		return
	}

	t := c.table
	now := c.now()
	numBuckets := uint32(len(t.buckets))
	maxIterations := uint64(numBuckets) * 2

	for iter := uint64(0); needed > 0 && iter < maxIterations; iter++ {
		idx := c.evictCursor % numBuckets
		c.evictCursor++

		mu := t.mutexFor(idx)
		mu.Lock()
		cur := &t.buckets[idx]
		for cur != nil {
			for i := 0; i < entriesPerBucket; i++ {
				data := cur.data[i].Load()
				if data == nil {
					continue
				}
				rec := t.codec.decode(*data)
				meta := rec.value[:metadataSize]

				expired := isExpired(meta, now, c.setting.TTL)
				wasAccessed := metaSetAccessed(meta, false)
				if !expired && wasAccessed {
					continue
				}

				freed := uint64(len(rec.key) + len(rec.value))
				if freed >= needed {
					needed = 0
				} else {
					needed -= freed
				}
				c.retireSlot(cur, i, rec)
			}
			cur = cur.next.Load()
		}
		mu.Unlock()

		if needed == 0 {
			break
		}
	}
}

// retireSlot clears a slot and retires its buffer, updating the same
// counters Table.Remove would. Callers must hold the slot's stripe lock.
func (c *CacheTable) retireSlot(e *entry, i int, rec decodedRecord) {
	t := c.table
	old := e.data[i].Swap(nil)
	e.setTag(i, 0)

	t.counters.Decrement(RecordsCount)
	t.counters.Subtract(TotalKeySize, int64(len(rec.key)))
	t.counters.Subtract(TotalValueSize, int64(len(rec.value)))
	t.counters.Subtract(TotalIndexSize, int64(t.codec.recordOverhead()))
	t.counters.Increment(EvictedRecordsCount)

	if old != nil {
		t.retire(*old)
	}
}

// bytesNeeded returns how many bytes Evict must free to fit required more
// bytes within CacheSetting.MaxBytes, or zero if there's already room.
func (c *CacheTable) bytesNeeded(required uint64) uint64 {
	t := c.table
	total := uint64(t.counters.Get(TotalKeySize)) +
		uint64(t.counters.Get(TotalValueSize)) +
		uint64(t.counters.Get(TotalIndexSize))

	if required < c.setting.MaxBytes && total+required <= c.setting.MaxBytes {
		return 0
	}
	if total > c.setting.MaxBytes {
		return total - c.setting.MaxBytes + required
	}
	return required
}

// cacheIterator wraps a plain tableIterator, skipping expired records and
// stripping the metadata prefix from the returned value.
type cacheIterator struct {
	base *tableIterator
	ttl  time.Duration
	now  time.Time
}

func (it *cacheIterator) MoveNext() bool {
	for it.base.MoveNext() {
		value := it.base.Value()
		if !isExpired(value[:metadataSize], it.now, it.ttl) {
			return true
		}
	}
	return false
}

func (it *cacheIterator) Key() []byte { return it.base.Key() }

func (it *cacheIterator) Value() []byte {
	return it.base.Value()[metadataSize:]
}

func (it *cacheIterator) Reset() { it.base.Reset() }
