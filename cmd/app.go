package cmd

import (
	"os"
	"time"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/config"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/cache"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier/expedo"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/database"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/messaging"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/metrics"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/repositories"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/search"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/postal"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/shipments"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/synclog"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/services/tracking"
	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// app bundles the wired components every subcommand starts from.
type app struct {
	cfg config.Config
	db  *gorm.DB

	courier   courier.Client
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	tracer    tracing.Tracer

	orders    *repositories.OrderRepository
	shipments *repositories.ShipmentRepository
	history   *repositories.HistoryRepository
	companies *repositories.CompanyRepository
	sessions  *repositories.SyncSessionRepository

	tenantResolver  *shipments.Resolver
	shipmentService *shipments.Service
	syncEngine      *tracking.Engine
	postalBackfill  *postal.Backfill
}

// newApp loads configuration and wires the full dependency graph.
// Optional backends (Redis, Elasticsearch, tracing, service bus)
// degrade to no-ops with a warning instead of failing startup.
func newApp() (*app, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}

	var tokenStore expedo.TokenStore
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, falling back to in-process token caching")
		tokenStore = cache.NewMemoryStore()
	} else {
		tokenStore = redisCache
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer, _ = tracing.NewTracer(config.TracingConfig{})
	}

	publisher, err := messaging.NewPublisher(cfg.Azure)
	if err != nil {
		return nil, err
	}

	metricsCollector := metrics.NewMetrics()
	metricsCollector.SetHealth("database", true)

	courierClient := expedo.New(expedo.Config{
		BaseURL:        cfg.Courier.BaseURL,
		RequestTimeout: cfg.Courier.RequestTimeout,
		TokenTTL:       cfg.Courier.TokenTTL,
	}, tokenStore)

	a := &app{
		cfg:       cfg,
		db:        db,
		courier:   courierClient,
		publisher: publisher,
		metrics:   metricsCollector,
		tracer:    tracer,

		orders:    repositories.NewOrderRepository(db),
		shipments: repositories.NewShipmentRepository(db),
		history:   repositories.NewHistoryRepository(db),
		companies: repositories.NewCompanyRepository(db),
		sessions:  repositories.NewSyncSessionRepository(db),
	}

	a.tenantResolver = shipments.NewResolver(cfg.Sender)
	a.shipmentService = shipments.NewService(shipments.NewStore(db), a.tenantResolver, courierClient, publisher, metricsCollector, tracer)

	sessionLogger := synclog.New(a.sessions)
	if cfg.Elastic.Enabled {
		elasticClient, err := search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without log mirroring")
		} else {
			sessionLogger = sessionLogger.WithIndexer(elasticClient)
		}
	}

	retention := time.Duration(cfg.Sync.RetentionDays) * 24 * time.Hour
	a.syncEngine = tracking.NewEngine(
		a.shipments,
		a.orders,
		a.history,
		a.companies,
		a.tenantResolver,
		courierClient,
		sessionLogger,
		publisher,
		metricsCollector,
		tracer,
	).WithRetention(retention)

	postalResolver := postal.NewResolver(courierClient)
	a.postalBackfill = postal.NewBackfill(a.orders, postalResolver, a.tenantResolver)

	return a, nil
}

// close releases the app's long-lived resources.
func (a *app) close() {
	if err := a.publisher.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close event publisher")
	}
	if err := database.Close(a.db); err != nil {
		log.Warn().Err(err).Msg("Failed to close database connection")
	}
	a.tracer.Close()
}
