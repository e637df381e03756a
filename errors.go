package l4kv

import (
	"errors"

	"github.com/l4kv/l4kv/epoch"
	"github.com/l4kv/l4kv/store"
)

// ErrInvalidSize is returned when a key or value's length mismatches a
// fixed size configured for its table.
var ErrInvalidSize = store.ErrInvalidSize

// ErrInvalidRefCount is returned when a context's epoch reference is
// dropped more than once.
var ErrInvalidRefCount = epoch.ErrInvalidRefCount

// ErrEpochQueueExhausted is returned by Context when the epoch manager's
// reference queue has no room and its OverflowPolicy is OverflowAbort.
var ErrEpochQueueExhausted = epoch.ErrQueueExhausted

// ErrDuplicateTable is returned by Service.AddTable when a table with the
// given name already exists.
var ErrDuplicateTable = errors.New("l4kv: table name already exists")

// ErrUnsupported is returned for operations a table configuration doesn't
// support, such as snapshotting a cache-overlaid table.
var ErrUnsupported = errors.New("l4kv: unsupported operation")

// ErrUnknownTable is returned when a context or service is asked for a
// table name or index that doesn't exist.
var ErrUnknownTable = errors.New("l4kv: unknown table")
