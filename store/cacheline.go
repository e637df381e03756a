package store

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used to pad the stripe-mutex array so that adjacent
// stripes don't false-share a cache line under concurrent writers. Mirrors
// the teacher's own use of golang.org/x/sys/cpu for the same purpose.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})

// mutexStripe pads a sync.RWMutex out to a full cache line, one per group
// of buckets sharing a writer lock.
type mutexStripe struct {
	mu sync.RWMutex
	_  [(CacheLineSize - unsafe.Sizeof(sync.RWMutex{})%CacheLineSize) % CacheLineSize]byte
}
