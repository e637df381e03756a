package store

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheTable_ExpiresByTTL(t *testing.T) {
	ct, err := NewCacheTable(
		Setting{NumBuckets: 4},
		CacheSetting{MaxBytes: 1 << 20, TTL: time.Minute},
		nil)
	if err != nil {
		t.Fatalf("NewCacheTable: %v", err)
	}

	now := time.Unix(1_000_000, 0)
	ct.now = func() time.Time { return now }

	if err := ct.Add([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if value, ok := ct.Get([]byte("k")); !ok || string(value) != "v" {
		t.Fatalf("Get before expiry: got (%q, %v), want (%q, true)", value, ok, "v")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := ct.Get([]byte("k")); ok {
		t.Fatalf("Get after expiry: expected miss")
	}

	if got := ct.Counters().Get(CacheHitCount); got != 1 {
		t.Fatalf("CacheHitCount: got %d, want 1", got)
	}
	if got := ct.Counters().Get(CacheMissCount); got != 1 {
		t.Fatalf("CacheMissCount: got %d, want 1", got)
	}
}

func TestCacheTable_TTLFiveRecords(t *testing.T) {
	ct, err := NewCacheTable(
		Setting{NumBuckets: 8},
		CacheSetting{MaxBytes: 1 << 20, TTL: 20 * time.Second},
		nil)
	if err != nil {
		t.Fatalf("NewCacheTable: %v", err)
	}

	base := time.Unix(0, 0)
	clock := base
	ct.now = func() time.Time { return clock }

	keys := []string{"r1", "r2", "r3", "r4", "r5"}
	createdAt := []int{10, 20, 30, 40, 50}
	for i, k := range keys {
		clock = base.Add(time.Duration(createdAt[i]) * time.Second)
		if err := ct.Add([]byte(k), []byte("v")); err != nil {
			t.Fatalf("Add(%s): %v", k, err)
		}
	}

	clock = base.Add(50 * time.Second)
	wantHit := map[string]bool{"r1": false, "r2": false, "r3": true, "r4": true, "r5": true}
	for _, k := range keys {
		_, ok := ct.Get([]byte(k))
		if ok != wantHit[k] {
			t.Fatalf("Get(%s) at clock=50s: got hit=%v, want %v", k, ok, wantHit[k])
		}
	}

	clock = base.Add(150 * time.Second)
	for _, k := range keys {
		if _, ok := ct.Get([]byte(k)); ok {
			t.Fatalf("Get(%s) at clock=150s: expected miss, everything should have expired", k)
		}
	}
}

func TestCacheTable_EvictionPrefersUnaccessedRecords(t *testing.T) {
	// A single, unchained bucket keeps every resident record in one
	// entry, so one CLOCK sweep scans all of them exactly once before
	// the outer loop has a chance to revisit any bucket a second time.
	ct, err := NewCacheTable(
		Setting{NumBuckets: 1},
		CacheSetting{MaxBytes: 1 << 30},
		nil)
	if err != nil {
		t.Fatalf("NewCacheTable: %v", err)
	}

	value := make([]byte, 16)
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key%02d", i)
		if err := ct.Add([]byte(key), value); err != nil {
			t.Fatalf("Add(%s): %v", key, err)
		}
	}

	if _, ok := ct.Get([]byte("key01")); !ok {
		t.Fatalf("Get(key01): expected hit before the eviction-triggering Add")
	}

	// Tighten the budget to exactly the current footprint, so the next
	// Add must free space: evicting any one of the nine untouched
	// records covers the deficit, leaving key01 alone.
	c := ct.Counters()
	ct.setting.MaxBytes = uint64(c.Get(TotalKeySize) + c.Get(TotalValueSize) + c.Get(TotalIndexSize))

	if err := ct.Add([]byte("key10"), value); err != nil {
		t.Fatalf("Add(key10): %v", err)
	}

	if _, ok := ct.Get([]byte("key01")); !ok {
		t.Fatalf("key01 was evicted despite being accessed just before the triggering Add")
	}
	if got := ct.Counters().Get(EvictedRecordsCount); got < 1 {
		t.Fatalf("EvictedRecordsCount: got %d, want at least 1", got)
	}
}

func TestCacheTable_EvictsUnderByteBudget(t *testing.T) {
	// The bucket/mutex array itself is counted into TotalIndexSize and
	// never shrinks, so the budget has to be measured relative to that
	// fixed baseline rather than an arbitrary constant: a table's own
	// structural footprint can dwarf a naively small MaxBytes.
	ct, err := NewCacheTable(
		Setting{NumBuckets: 8},
		CacheSetting{MaxBytes: 1 << 30},
		nil)
	if err != nil {
		t.Fatalf("NewCacheTable: %v", err)
	}
	baseline := uint64(ct.Counters().Get(TotalIndexSize))

	const perRecord = 7 + 16 // "key-%03d" + 16-byte value
	const budgetRecords = 10
	ct.setting.MaxBytes = baseline + perRecord*budgetRecords

	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("key-%03d", i))
		value := make([]byte, 16)
		if err := ct.Add(key, value); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}

	if got := ct.Counters().Get(EvictedRecordsCount); got == 0 {
		t.Fatalf("EvictedRecordsCount: got 0, want some eviction to have happened")
	}

	c := ct.Counters()
	total := uint64(c.Get(TotalKeySize) + c.Get(TotalValueSize) + c.Get(TotalIndexSize))
	if total > ct.setting.MaxBytes+perRecord {
		t.Fatalf("total bytes %d grossly exceed MaxBytes %d after eviction", total, ct.setting.MaxBytes)
	}
}

func TestMetaAccessBit(t *testing.T) {
	meta := newMetadata(time.Unix(12345, 0))

	if metaIsAccessed(meta[:]) {
		t.Fatalf("newMetadata: access bit set, want clear")
	}
	if got := metaEpochSeconds(meta[:]); got != 12345 {
		t.Fatalf("metaEpochSeconds: got %d, want 12345", got)
	}

	was := metaSetAccessed(meta[:], true)
	if was {
		t.Fatalf("metaSetAccessed(true): previous state got true, want false")
	}
	if !metaIsAccessed(meta[:]) {
		t.Fatalf("metaSetAccessed(true): access bit not set afterward")
	}
	// Setting the access bit must not disturb the epoch seconds packed
	// into the lower 31 bits.
	if got := metaEpochSeconds(meta[:]); got != 12345 {
		t.Fatalf("metaEpochSeconds after setting access bit: got %d, want 12345", got)
	}

	was = metaSetAccessed(meta[:], false)
	if !was {
		t.Fatalf("metaSetAccessed(false): previous state got false, want true")
	}
	if metaIsAccessed(meta[:]) {
		t.Fatalf("metaSetAccessed(false): access bit still set afterward")
	}
}

func TestIsExpired(t *testing.T) {
	created := time.Unix(1_000_000, 0)
	meta := newMetadata(created)

	if isExpired(meta[:], created, 0) {
		t.Fatalf("isExpired: TTL of zero must mean never expires")
	}
	if isExpired(meta[:], created.Add(30*time.Second), time.Minute) {
		t.Fatalf("isExpired: record within TTL reported expired")
	}
	if !isExpired(meta[:], created.Add(2*time.Minute), time.Minute) {
		t.Fatalf("isExpired: record past TTL reported live")
	}
}

func TestCacheTable_Iterator_SkipsExpired(t *testing.T) {
	ct, err := NewCacheTable(
		Setting{NumBuckets: 4},
		CacheSetting{MaxBytes: 1 << 20, TTL: time.Minute},
		nil)
	if err != nil {
		t.Fatalf("NewCacheTable: %v", err)
	}

	now := time.Unix(1_000_000, 0)
	ct.now = func() time.Time { return now }

	if err := ct.Add([]byte("stale"), []byte("v")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := ct.Add([]byte("fresh"), []byte("v")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	it := ct.Iterator()
	seen := map[string]bool{}
	for it.MoveNext() {
		seen[string(it.Key())] = true
	}

	if seen["stale"] {
		t.Fatalf("Iterator: expected expired key %q to be skipped", "stale")
	}
	if !seen["fresh"] {
		t.Fatalf("Iterator: expected live key %q to be present", "fresh")
	}
}
