package store

import "github.com/l4kv/l4kv/perf"

// Per-table performance counter indices, in the order the original L4
// HashTablePerfCounter enum defines them.
const (
	RecordsCount = iota
	BucketsCount
	TotalKeySize
	TotalValueSize
	TotalIndexSize
	ChainingEntriesCount

	// Min/Max counters are monotonic: removing the record holding a
	// current minimum/maximum never restores a prior one.
	MinKeySize
	MaxKeySize
	MinValueSize
	MaxValueSize
	MaxBucketChainLength

	RecordsCountLoadedFromSerializer
	RecordsCountSavedFromSerializer

	// Cache-table specific counters; zero on plain tables.
	CacheHitCount
	CacheMissCount
	EvictedRecordsCount

	hashTableCounterCount
)

var hashTableCounterNames = []string{
	"RecordsCount", "BucketsCount", "TotalKeySize", "TotalValueSize",
	"TotalIndexSize", "ChainingEntriesCount", "MinKeySize", "MaxKeySize",
	"MinValueSize", "MaxValueSize", "MaxBucketChainLength",
	"RecordsCountLoadedFromSerializer", "RecordsCountSavedFromSerializer",
	"CacheHitCount", "CacheMissCount", "EvictedRecordsCount",
}

func newHashTableCounters() *perf.Counters {
	c := perf.New(hashTableCounterNames)
	c.Set(MinKeySize, maxInt64)
	c.Set(MinValueSize, maxInt64)
	// MaxBucketChainLength starts at 1: the bucket's head entry already
	// counts as the first link in its own chain.
	c.Set(MaxBucketChainLength, 1)
	return c
}

const maxInt64 = 1<<63 - 1
