package l4kv

import (
	"io"

	"github.com/l4kv/l4kv/perf"
	"github.com/l4kv/l4kv/store"
)

// TableRef is the uniform surface a Context exposes for a table,
// regardless of whether it's a plain table or a cache-overlaid one.
type TableRef interface {
	Get(key []byte) ([]byte, bool)
	Add(key, value []byte) error
	Remove(key []byte) bool
	Iterator() store.RecordIterator
	Counters() *perf.Counters
	// Snapshot writes the table's current contents to w. Cache-overlaid
	// tables return ErrUnsupported: a snapshot can't capture per-record
	// TTL metadata and recreate it meaningfully on restore.
	Snapshot(w io.Writer) error
}

// plainTableRef adapts *store.Table to TableRef.
type plainTableRef struct {
	table *store.Table
}

func (r *plainTableRef) Get(key []byte) ([]byte, bool) { return r.table.Get(key) }
func (r *plainTableRef) Add(key, value []byte) error   { return r.table.Add(key, value) }
func (r *plainTableRef) Remove(key []byte) bool        { return r.table.Remove(key) }
func (r *plainTableRef) Iterator() store.RecordIterator { return r.table.Iterator() }
func (r *plainTableRef) Counters() *perf.Counters      { return r.table.Counters() }

func (r *plainTableRef) Snapshot(w io.Writer) error {
	return store.WriteSnapshot(r.table, w)
}

// cacheTableRef adapts *store.CacheTable to TableRef.
type cacheTableRef struct {
	table *store.CacheTable
}

func (r *cacheTableRef) Get(key []byte) ([]byte, bool) { return r.table.Get(key) }
func (r *cacheTableRef) Add(key, value []byte) error   { return r.table.Add(key, value) }
func (r *cacheTableRef) Remove(key []byte) bool        { return r.table.Remove(key) }
func (r *cacheTableRef) Iterator() store.RecordIterator { return r.table.Iterator() }
func (r *cacheTableRef) Counters() *perf.Counters      { return r.table.Counters() }

func (r *cacheTableRef) Snapshot(io.Writer) error {
	return ErrUnsupported
}
