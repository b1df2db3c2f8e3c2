package store

import (
	"context"
	"time"

	"github.com/voxmate/voxmate/internal/profile"
	"github.com/voxmate/voxmate/store/cache"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache settings
	cacheConfig cache.Config

	// Scenario content is immutable between admin edits, so reads are cached.
	scenarioCache *cache.Cache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:        driver,
		profile:       profile,
		cacheConfig:   cacheConfig,
		scenarioCache: cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Migrate brings the database schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	s.scenarioCache.Close()
	return s.driver.Close()
}

func (s *Store) CreateScenario(ctx context.Context, create *Scenario) (*Scenario, error) {
	scenario, err := s.driver.CreateScenario(ctx, create)
	if err != nil {
		return nil, err
	}
	s.scenarioCache.Set(scenario.UID, scenario, 0)
	return scenario, nil
}

func (s *Store) ListScenarios(ctx context.Context, find *FindScenario) ([]*Scenario, error) {
	return s.driver.ListScenarios(ctx, find)
}

// GetScenarioByUID returns one scenario, served from cache when possible.
func (s *Store) GetScenarioByUID(ctx context.Context, uid string) (*Scenario, error) {
	if v, ok := s.scenarioCache.Get(uid); ok {
		if scenario, ok := v.(*Scenario); ok {
			return scenario, nil
		}
	}

	list, err := s.driver.ListScenarios(ctx, &FindScenario{UID: &uid})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	s.scenarioCache.Set(uid, list[0], 0)
	return list[0], nil
}

func (s *Store) UpdateScenario(ctx context.Context, update *UpdateScenario) error {
	if err := s.driver.UpdateScenario(ctx, update); err != nil {
		return err
	}
	// The UID is not part of the update; drop the whole cache instead of
	// tracking the id to uid mapping.
	s.scenarioCache.Clear()
	return nil
}

func (s *Store) DeleteScenario(ctx context.Context, delete *DeleteScenario) error {
	if err := s.driver.DeleteScenario(ctx, delete); err != nil {
		return err
	}
	s.scenarioCache.Clear()
	return nil
}

func (s *Store) CreateCallRecord(ctx context.Context, create *CallRecord) (*CallRecord, error) {
	return s.driver.CreateCallRecord(ctx, create)
}

func (s *Store) ListCallRecords(ctx context.Context, find *FindCallRecord) ([]*CallRecord, error) {
	return s.driver.ListCallRecords(ctx, find)
}

func (s *Store) DeleteCallRecord(ctx context.Context, delete *DeleteCallRecord) error {
	return s.driver.DeleteCallRecord(ctx, delete)
}
