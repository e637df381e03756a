package l4kv

import "github.com/l4kv/l4kv/epoch"

// Service owns a set of named tables and the single epoch manager they
// all share for safe concurrent reclamation. One Service is meant to be
// constructed once at startup and shared by every Context taken from it.
type Service struct {
	tables       *tableManager
	epochManager *epoch.Manager
}

// NewService starts a Service's background epoch advancer and returns it
// ready to have tables added.
func NewService(epochManagerConfig EpochManagerConfig) *Service {
	return &Service{
		tables:       newTableManager(),
		epochManager: epoch.NewManager(epochManagerConfig),
	}
}

// AddTable constructs and registers a new table, returning its stable
// index (also usable via Context.TableAt). Table names are matched
// case-insensitively and must be unique within the Service.
func (s *Service) AddTable(config TableConfig) (int, error) {
	return s.tables.add(config, s.epochManager)
}

// Context returns a new handle pinning the current epoch. Callers must
// call Context.Close when done to release the pin; holding a Context open
// across a long operation delays reclamation of every table's retired
// records, not just the one being read.
func (s *Service) Context() (*Context, error) {
	epochCounter, err := s.epochManager.AddRef()
	if err != nil {
		return nil, err
	}
	return &Context{
		tables:       s.tables,
		epochManager: s.epochManager,
		epochCounter: epochCounter,
	}, nil
}

// Counters returns the shared epoch manager's server-level performance
// counters (pending actions, oldest/latest epoch in queue, and so on).
func (s *Service) Counters() map[string]int64 {
	return s.epochManager.Counters().Snapshot()
}

// Err returns the error that stopped the background epoch advancer, if
// it has stopped itself because a deferred action panicked (see
// epoch.Manager.FatalErr). A nil result means the advancer is still
// running.
func (s *Service) Err() error {
	return s.epochManager.FatalErr()
}

// Close stops the background epoch advancer, running any actions still
// pending for tables that were never explicitly torn down. Close does not
// close any Context obtained before it: callers are expected to have
// dropped every outstanding Context first.
func (s *Service) Close() {
	s.epochManager.Close()
}
