package l4kv

import (
	"io"
	"time"

	"github.com/l4kv/l4kv/epoch"
)

// EpochManagerConfig configures the Service-wide epoch reclamation
// background goroutine. It is a direct alias of epoch.Config so callers
// never need to import the epoch package themselves.
type EpochManagerConfig = epoch.Config

// DefaultEpochManagerConfig returns the same defaults epoch.DefaultConfig
// does.
func DefaultEpochManagerConfig() EpochManagerConfig {
	return epoch.DefaultConfig()
}

// TableSetting is a table's fixed shape: bucket count, striping, and
// optional fixed key/value sizes.
type TableSetting struct {
	NumBuckets         uint32
	NumBucketsPerMutex uint32
	FixedKeySize       uint16
	FixedValueSize     uint32
}

// CacheSetting, when non-nil on a TableConfig, turns a table into a
// TTL/eviction-bounded cache instead of a plain unbounded table.
type CacheSetting struct {
	MaxBytes               uint64
	RecordTimeToLive       time.Duration
	ForceTimeBasedEviction bool
}

// TableConfig describes one table to add to a Service.
type TableConfig struct {
	Name    string
	Setting TableSetting
	Cache   *CacheSetting
	// Reader, when non-nil, restores the table's initial contents from a
	// stream produced by a prior snapshot instead of starting empty.
	// Combining Reader with Cache is rejected with ErrUnsupported: cache
	// tables are never snapshotted (spec.md §4.8/§7).
	Reader io.Reader
}
