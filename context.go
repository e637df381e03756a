package l4kv

import (
	"sync"

	"github.com/l4kv/l4kv/epoch"
)

// Context pins the epoch current when it was obtained from a Service, so
// a table lookup made through it can safely read memory that a
// concurrent writer retires after the lookup starts: the epoch manager
// won't run any action registered at or after this pin until the pin is
// released.
//
// A Context is not safe for concurrent use by multiple goroutines; each
// goroutine that needs one should obtain its own from the Service.
type Context struct {
	tables       *tableManager
	epochManager *epoch.Manager
	epochCounter uint64

	closeOnce sync.Once
}

// Table returns the table registered under name.
func (c *Context) Table(name string) (TableRef, error) {
	ref, ok := c.tables.byName(name)
	if !ok {
		return nil, ErrUnknownTable
	}
	return ref, nil
}

// TableAt returns the table at the index AddTable returned when it was
// created.
func (c *Context) TableAt(index int) (TableRef, error) {
	ref, ok := c.tables.byIndex(index)
	if !ok {
		return nil, ErrUnknownTable
	}
	return ref, nil
}

// Close releases this Context's epoch pin. It is safe to call more than
// once; only the first call has any effect.
func (c *Context) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.epochManager.RemoveRef(c.epochCounter)
	})
	return err
}
