package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)
	Migrate(ctx context.Context) error

	// Scenario model related methods.
	CreateScenario(ctx context.Context, create *Scenario) (*Scenario, error)
	ListScenarios(ctx context.Context, find *FindScenario) ([]*Scenario, error)
	UpdateScenario(ctx context.Context, update *UpdateScenario) error
	DeleteScenario(ctx context.Context, delete *DeleteScenario) error

	// CallRecord model related methods.
	CreateCallRecord(ctx context.Context, create *CallRecord) (*CallRecord, error)
	ListCallRecords(ctx context.Context, find *FindCallRecord) ([]*CallRecord, error)
	DeleteCallRecord(ctx context.Context, delete *DeleteCallRecord) error
}
