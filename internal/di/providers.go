package di

import (
	"context"
	"fmt"
	"time"

	"StratGov/internal/domain/repository"
	"StratGov/internal/handler/api"
	"StratGov/internal/registry"
	internalrepo "StratGov/internal/repository"
	"StratGov/internal/service/loader"
	"StratGov/internal/service/metricfeed"
	"StratGov/internal/services/regime"
	"StratGov/internal/usecase"
	pkgcache "StratGov/pkg/cache"
	pkgch "StratGov/pkg/clickhouse"
	"StratGov/pkg/config"
	xhttp "StratGov/pkg/http"
	applogger "StratGov/pkg/logger"
	"StratGov/pkg/metrics"
	"StratGov/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClock provides the wall clock.
func ProvideClock() repository.Clock {
	return repository.SystemClock{}
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when no
// component is configured to use one.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Audit.Backend != "clickhouse" && cfg.ClickHouse.Host == "" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCache creates the resolver cache backend.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	switch cfg.Resolver.CacheBackend {
	case "redis":
		return pkgcache.NewRedisCache(
			pkgcache.WithRedisHost(cfg.Redis.Host),
			pkgcache.WithRedisPort(cfg.Redis.Port),
			pkgcache.WithRedisPassword(cfg.Redis.Password),
			pkgcache.WithRedisDB(cfg.Redis.DB),
		)
	default:
		return pkgcache.NewMemoryCache(), nil
	}
}

// ProvideDefinitions loads and validates every governance document.
func ProvideDefinitions(cfg *config.Config, log *applogger.Logger) (*loader.Definitions, error) {
	return loader.New(log).LoadAll(cfg)
}

// ProvideRegistry builds the registry store, publishes the loaded
// definitions as its first snapshot, and replays lifecycle state from
// the audit log. Documents always load as DRAFT; the log carries
// approvals and sunsets across restarts.
func ProvideRegistry(defs *loader.Definitions, audit repository.AuditStore, clock repository.Clock, log *applogger.Logger) (*registry.Store, error) {
	store := registry.NewStore(log)
	if err := store.Load(defs.Hypotheses, defs.Constraints, defs.Factors); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := usecase.NewLifecycle(store, audit, clock, log).Replay(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ProvideAuditStore selects the configured audit backend.
func ProvideAuditStore(cfg *config.Config, chClient *pkgch.Client, log *applogger.Logger) (repository.AuditStore, error) {
	if cfg.Audit.Backend == "clickhouse" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return internalrepo.NewCHAuditStore(ctx, chClient, log)
	}
	return internalrepo.NewMemoryAuditStore(), nil
}

// ProvideAlertSink selects the configured alert sink.
func ProvideAlertSink(cfg *config.Config, log *applogger.Logger) (repository.AlertSink, error) {
	switch cfg.Alerts.Sink {
	case "kafka":
		return internalrepo.NewKafkaSink(cfg.Alerts.Brokers, cfg.Alerts.Topic)
	case "webhook":
		return internalrepo.NewWebhookSink(cfg.Alerts.WebhookURL), nil
	default:
		return internalrepo.NewLogSink(log), nil
	}
}

// ProvideMetricStore creates the live metric window store.
func ProvideMetricStore(clock repository.Clock) *metricfeed.Store {
	return metricfeed.NewStore(clock, 0)
}

// ProvideMetricFeed creates the WebSocket feed client, or nil when the
// feed is disabled.
func ProvideMetricFeed(cfg *config.Config, store *metricfeed.Store, log *applogger.Logger) *metricfeed.Client {
	if !cfg.MetricFeed.Enabled {
		return nil
	}
	return metricfeed.NewClient(
		cfg.MetricFeed.APIKey,
		cfg.MetricFeed.WebSocketURL,
		cfg.MetricFeed.Metrics,
		cfg.MetricFeed.ReconnectDelay,
		cfg.MetricFeed.PingInterval,
		store,
		log,
	)
}

// ProvideMetricProvider chains the live window in front of the
// historical ClickHouse series when one is configured.
func ProvideMetricProvider(cfg *config.Config, store *metricfeed.Store, chClient *pkgch.Client, log *applogger.Logger) (repository.MetricProvider, error) {
	if chClient == nil {
		return store, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	historical, err := internalrepo.NewCHMetricProvider(ctx, chClient, log)
	if err != nil {
		return nil, err
	}
	return internalrepo.NewFallbackMetricProvider(store, historical), nil
}

// ProvideLifecycle creates the hypothesis lifecycle service.
func ProvideLifecycle(
	store *registry.Store,
	audit repository.AuditStore,
	clock repository.Clock,
	log *applogger.Logger,
) *usecase.Lifecycle {
	return usecase.NewLifecycle(store, audit, clock, log)
}

// ProvideResolver creates the constraint resolver.
func ProvideResolver(
	store *registry.Store,
	c pkgcache.Service,
	cfg *config.Config,
	audit repository.AuditStore,
	m repository.Metrics,
	clock repository.Clock,
	log *applogger.Logger,
) *usecase.Resolver {
	return usecase.NewResolver(store, c, cfg.Resolver.CacheTTL, audit, m, clock, log)
}

// ProvidePoolBuilder creates the pool builder over the loaded universe.
func ProvidePoolBuilder(
	store *registry.Store,
	defs *loader.Definitions,
	audit repository.AuditStore,
	alerts repository.AlertSink,
	m repository.Metrics,
	clock repository.Clock,
	log *applogger.Logger,
) *usecase.PoolBuilder {
	return usecase.NewPoolBuilder(store, audit, alerts, m, clock, log, defs.Universe, defs.Filters)
}

// ProvideFalsifierMonitor creates the falsifier monitor.
func ProvideFalsifierMonitor(
	store *registry.Store,
	provider repository.MetricProvider,
	audit repository.AuditStore,
	alerts repository.AlertSink,
	m repository.Metrics,
	clock repository.Clock,
	cfg *config.Config,
	log *applogger.Logger,
) *usecase.FalsifierMonitor {
	return usecase.NewFalsifierMonitor(store, provider, audit, alerts, m, clock, log,
		cfg.Monitor.DefaultInterval, cfg.Monitor.Tick)
}

// ProvideRegimeDetector creates the regime detector over the loaded
// thresholds.
func ProvideRegimeDetector(
	provider repository.MetricProvider,
	defs *loader.Definitions,
	audit repository.AuditStore,
	m repository.Metrics,
	clock repository.Clock,
	cfg *config.Config,
	log *applogger.Logger,
) *regime.Detector {
	return regime.NewDetector(provider, audit, m, clock, log, defs.Regime, cfg.Regime.Window)
}

// ProvideHandler creates the HTTP handler.
func ProvideHandler(
	log *applogger.Logger,
	store *registry.Store,
	resolver *usecase.Resolver,
	pool *usecase.PoolBuilder,
	detector *regime.Detector,
	audit repository.AuditStore,
) xhttp.Handler {
	return api.NewGovernanceHandler(log, store, resolver, pool, detector, audit)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	monitor *usecase.FalsifierMonitor,
	detector *regime.Detector,
	feed *metricfeed.Client,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, log, handler, monitor, detector, feed, chClient)
}
