package epoch

import (
	"sync"
	"testing"
	"time"
)

func newTestManager(t *testing.T, interval time.Duration) *Manager {
	t.Helper()
	m := NewManager(Config{
		QueueSize:          8,
		ProcessingInterval: interval,
		NumActionQueues:    2,
	})
	t.Cleanup(m.Close)
	return m
}

func TestManager_RegisteredActionRunsAfterRefDropped(t *testing.T) {
	m := newTestManager(t, 10*time.Millisecond)

	epoch, err := m.AddRef()
	if err != nil {
		t.Fatalf("AddRef: %v", err)
	}

	done := make(chan struct{})
	m.RegisterAction(func() { close(done) })

	select {
	case <-done:
		t.Fatalf("action ran while its epoch was still referenced")
	case <-time.After(50 * time.Millisecond):
	}

	if err := m.RemoveRef(epoch); err != nil {
		t.Fatalf("RemoveRef: %v", err)
	}

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("action never ran after its epoch's reference was dropped")
	}
}

func TestManager_RemoveRefTwiceErrors(t *testing.T) {
	m := newTestManager(t, time.Second)

	epoch, err := m.AddRef()
	if err != nil {
		t.Fatalf("AddRef: %v", err)
	}
	if err := m.RemoveRef(epoch); err != nil {
		t.Fatalf("RemoveRef: %v", err)
	}
	if err := m.RemoveRef(epoch); err != ErrInvalidRefCount {
		t.Fatalf("second RemoveRef: got %v, want ErrInvalidRefCount", err)
	}
}

func TestManager_CloseRunsPendingActions(t *testing.T) {
	m := NewManager(Config{
		QueueSize:          8,
		ProcessingInterval: time.Hour,
		NumActionQueues:    1,
	})

	var ran bool
	m.RegisterAction(func() { ran = true })
	m.Close()

	if !ran {
		t.Fatalf("Close did not run a pending action on shutdown")
	}
}

func TestManager_ConcurrentAddRefRemoveRef(t *testing.T) {
	m := newTestManager(t, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				epoch, err := m.AddRef()
				if err != nil {
					t.Errorf("AddRef: %v", err)
					return
				}
				if err := m.RemoveRef(epoch); err != nil {
					t.Errorf("RemoveRef: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
