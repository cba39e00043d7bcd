package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/attendance-sync/internal/application"
	"github.com/example/attendance-sync/internal/device"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Store       *MemoryStore
	Fleet       *DriverFleet
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory backed by an in-memory store
// and a scripted driver fleet.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("sync"),
		Store:       NewMemoryStore(),
		Fleet:       NewDriverFleet(),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		if clock != nil {
			factory.Clock = clock
		}
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		if generator != nil {
			factory.IDGenerator = generator
		}
	}
}

// SyncServiceDeps captures optional overrides for a sync service.
type SyncServiceDeps struct {
	Store   application.SyncStore
	Drivers device.Factory
	Options application.SyncOptions
	Logger  *slog.Logger
}

// NewSyncService builds a sync service over the factory store and fleet
// unless deps overrides them.
func (f *ServiceFactory) NewSyncService(deps SyncServiceDeps) *application.SyncService {
	store := deps.Store
	if store == nil {
		store = f.Store
	}
	drivers := deps.Drivers
	if drivers == nil {
		drivers = f.Fleet.Factory()
	}
	return application.NewSyncServiceWithLogger(
		store,
		drivers,
		deps.Options,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	)
}

// NewOrchestrator builds an orchestrator whose backoff waits go through the
// factory clock.
func (f *ServiceFactory) NewOrchestrator(syncer application.DeviceSyncer, opts application.OrchestratorOptions, logger *slog.Logger) *application.Orchestrator {
	return application.NewOrchestratorWithLogger(syncer, opts, f.Clock.Wait, logger)
}
