package di

import "github.com/google/wire"

// SuperSet combines all provider sets for the complete application.
var SuperSet = wire.NewSet(
	ConfigProviders,
	InfrastructureProviders,
	DomainProviders,
	InterfaceProviders,
	provideContainer,
)

// ConfigProviders provides logging and the values derived from config.
var ConfigProviders = wire.NewSet(
	provideLogLevel,
	provideLogger,
)

// InfrastructureProviders provides storage, caches, telemetry and the
// event publisher.
var InfrastructureProviders = wire.NewSet(
	provideAWSConfig,
	provideMetricsCollector,
	provideTracerProvider,
	provideStore,
	provideDraftStore,
	providePublisher,
)

// DomainProviders provides the record workflow and the read services.
var DomainProviders = wire.NewSet(
	provideWorkflowService,
	provideHistoryReader,
	provideLibraryService,
)

// InterfaceProviders provides auth and the HTTP layer.
var InterfaceProviders = wire.NewSet(
	provideTokenVerifier,
	provideGate,
	provideAuthProvider,
	provideHandler,
	provideRouter,
)
