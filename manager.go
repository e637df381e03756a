package l4kv

import (
	"strings"
	"sync"

	"github.com/l4kv/l4kv/epoch"
	"github.com/l4kv/l4kv/store"
)

// tableManager owns every table a Service has created and the name index
// into them. Names are matched case-insensitively: every name is
// lower-cased before it is stored or looked up.
type tableManager struct {
	mu        sync.RWMutex
	nameIndex map[string]int
	refs      []TableRef
}

func newTableManager() *tableManager {
	return &tableManager{
		nameIndex: make(map[string]int),
	}
}

// add constructs and registers a table per config, returning its index.
func (m *tableManager) add(config TableConfig, epochManager *epoch.Manager) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(config.Name)
	if _, exists := m.nameIndex[key]; exists {
		return 0, ErrDuplicateTable
	}

	if config.Cache != nil && config.Reader != nil {
		return 0, ErrUnsupported
	}

	setting := store.Setting{
		NumBuckets:         config.Setting.NumBuckets,
		NumBucketsPerMutex: config.Setting.NumBucketsPerMutex,
		FixedKeySize:       config.Setting.FixedKeySize,
		FixedValueSize:     config.Setting.FixedValueSize,
	}

	var ref TableRef
	if config.Cache != nil {
		t, err := store.NewCacheTable(setting, store.CacheSetting{
			MaxBytes:               config.Cache.MaxBytes,
			TTL:                    config.Cache.RecordTimeToLive,
			ForceTimeBasedEviction: config.Cache.ForceTimeBasedEviction,
		}, epochManager)
		if err != nil {
			return 0, err
		}
		ref = &cacheTableRef{table: t}
	} else if config.Reader != nil {
		t, err := store.ReadSnapshot(config.Reader, epochManager)
		if err != nil {
			return 0, err
		}
		ref = &plainTableRef{table: t}
	} else {
		t, err := store.NewTable(setting, epochManager)
		if err != nil {
			return 0, err
		}
		ref = &plainTableRef{table: t}
	}

	index := len(m.refs)
	m.refs = append(m.refs, ref)
	m.nameIndex[key] = index
	return index, nil
}

func (m *tableManager) byName(name string) (TableRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.nameIndex[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return m.refs[idx], true
}

func (m *tableManager) byIndex(index int) (TableRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index < 0 || index >= len(m.refs) {
		return nil, false
	}
	return m.refs[index], true
}
