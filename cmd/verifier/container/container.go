// Package container wires the verifier's dependencies bottom-up: ledger
// client, synchronizer, repositories, then services. Handlers only ever
// see the container, never construction details.
package container

import (
	"fmt"

	"github.com/farmtrace/provenance/cmd/verifier/repository"
	"github.com/farmtrace/provenance/cmd/verifier/service"
	"github.com/farmtrace/provenance/common/bootstrap"
	"github.com/farmtrace/provenance/common/chainsync"
	"github.com/farmtrace/provenance/common/clients"
	"github.com/farmtrace/provenance/common/identifier"
	"github.com/farmtrace/provenance/common/journal"
	"github.com/farmtrace/provenance/common/ledger"
	"github.com/farmtrace/provenance/common/models"
	"github.com/farmtrace/provenance/common/ratelimit"
)

// Container holds all initialized services and components
type Container struct {
	Components *bootstrap.Components

	// Ledger access
	Ledger       *ledger.Client
	Synchronizer *chainsync.Synchronizer

	// Off-chain repositories
	CropRepo       *repository.CropRepository
	BatchRepo      *repository.BatchRepository
	AnchorRepo     *repository.AnchorRepository
	IdentifierRepo *repository.IdentifierRepository

	// Services
	VerificationService *service.VerificationService
	RegistryService     *service.RegistryService
	IssuanceService     *service.IssuanceService
	EventService        *service.EventService
	Recorder            *service.AnchorRecorder

	// Public route protection
	RateLimiter *ratelimit.RateLimiter
}

// NewContainer creates and initializes all services. The ledger provider
// and contract binding are supplied by the composition root so deployments
// choose their own transport.
func NewContainer(components *bootstrap.Components, provider ledger.Provider, bind ledger.BindFunc) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	// Ledger client, one shared contract binding per process
	ledgerClient := ledger.New(provider, bind, cfg.Ledger, log)

	// Event synchronizer, journaled when a path is configured so dedup
	// and recent history survive restarts
	syncOpts := []chainsync.Option{chainsync.WithMetrics(components.Metrics)}
	if cfg.Sync.JournalPath != "" {
		store, err := journal.Open(cfg.Sync.JournalPath, cfg.Sync.HistoryCapacity)
		if err != nil {
			return nil, fmt.Errorf("failed to open event journal: %w", err)
		}
		components.AddCleanup(store.Close)
		syncOpts = append(syncOpts, chainsync.WithJournal(store))
	}
	synchronizer := chainsync.New(ledgerClient, ledgerClient, cfg.Sync.HistoryCapacity, log, syncOpts...)

	// Mirror every recorded event to redis: pub/sub channels for the feed
	// service, the capped stream for the anchor recorder
	if cfg.Sync.PublishEvents {
		sink := chainsync.NewRedisSink(components.Redis, cfg.Sync.Stream, cfg.Sync.StreamMaxLen)
		if _, err := synchronizer.Subscribe(models.EventKindWildcard, sink.Observe); err != nil {
			return nil, fmt.Errorf("failed to register redis sink: %w", err)
		}
	}

	// Repositories
	cropRepo := repository.NewCropRepository(components.DB)
	batchRepo := repository.NewBatchRepository(components.DB)
	anchorRepo := repository.NewAnchorRepository(components.DB)
	identifierRepo := repository.NewIdentifierRepository(components.DB)

	// Identifier codec for the configured QR base URL
	codec := identifier.New(cfg.Issuance.BaseURL)

	// Optional crop-price advisor; a nil predictor disables advisories
	var pricing service.PricePredictor
	if cfg.Pricing.URL != "" {
		pricing = clients.NewPricingClient(cfg.Pricing.URL, cfg.Pricing.Timeout, log)
	}

	// Services
	verificationService := service.NewVerificationService(
		ledgerClient,
		synchronizer,
		cropRepo,
		batchRepo,
		anchorRepo,
		pricing,
		components.Metrics,
		log,
	)

	registryService := service.NewRegistryService(ledgerClient, cropRepo, batchRepo, components.Metrics, log)

	issuanceService := service.NewIssuanceService(
		codec,
		ledgerClient,
		synchronizer,
		batchRepo,
		anchorRepo,
		identifierRepo,
		components.Redis,
		cfg.Issuance.NonceClaimTTL,
		components.Metrics,
		log,
	)

	eventService, err := service.NewEventService(synchronizer, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build event service: %w", err)
	}

	recorder := service.NewAnchorRecorder(components.Redis, cropRepo, batchRepo, anchorRepo, log, cfg.Sync.Stream)

	rateLimiter := ratelimit.NewRateLimiter(components.Redis.Raw(), log)

	log.Info("container initialized",
		"journaled", cfg.Sync.JournalPath != "",
		"publish_events", cfg.Sync.PublishEvents,
		"pricing_enabled", pricing != nil,
		"rate_limit_enabled", cfg.RateLimit.Enabled,
	)

	return &Container{
		Components:          components,
		Ledger:              ledgerClient,
		Synchronizer:        synchronizer,
		CropRepo:            cropRepo,
		BatchRepo:           batchRepo,
		AnchorRepo:          anchorRepo,
		IdentifierRepo:      identifierRepo,
		VerificationService: verificationService,
		RegistryService:     registryService,
		IssuanceService:     issuanceService,
		EventService:        eventService,
		Recorder:            recorder,
		RateLimiter:         rateLimiter,
	}, nil
}
