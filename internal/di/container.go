package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/devscan/linkshield/internal/adapters/backend"
	"github.com/devscan/linkshield/internal/adapters/nativemsg"
	"github.com/devscan/linkshield/internal/adapters/settings"
	"github.com/devscan/linkshield/internal/clickguard"
	"github.com/devscan/linkshield/internal/collector"
	"github.com/devscan/linkshield/internal/config"
	"github.com/devscan/linkshield/internal/connection"
	"github.com/devscan/linkshield/internal/core"
	"github.com/devscan/linkshield/internal/delivery"
	"github.com/devscan/linkshield/internal/factory"
	"github.com/devscan/linkshield/internal/logging"
	"github.com/devscan/linkshield/internal/navigation"
	"github.com/devscan/linkshield/internal/ports"
	"github.com/devscan/linkshield/internal/session"
	"github.com/devscan/linkshield/internal/urlid"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return nil, err
	}

	// Register verdict cache
	if err := container.Provide(func(f *factory.CacheFactory) (core.VerdictCache, error) {
		return f.CreateVerdictCache()
	}); err != nil {
		return nil, err
	}

	// Register settings store seeded with the configured policy
	if err := container.Provide(func(cfg *config.Config) core.SettingsStore {
		return settings.NewMemoryStore(core.UserPolicy{
			EnableBlocking:          cfg.GetBool("policy.enable_blocking"),
			ShowWarningsOnly:        cfg.GetBool("policy.show_warnings_only"),
			StrictMaliciousBlocking: cfg.GetBool("policy.strict_malicious_blocking"),
		})
	}); err != nil {
		return nil, err
	}

	// Register connection manager
	if err := container.Provide(func(cfg *config.Config, store core.SettingsStore, logger *zap.Logger) *connection.Manager {
		return connection.NewManager(cfg.GetStringSlice("backend.candidates"), store, logger)
	}); err != nil {
		return nil, err
	}

	// Register scanner client
	if err := container.Provide(func(cfg *config.Config, conn *connection.Manager, logger *zap.Logger) (core.ScannerClient, error) {
		analyzeTimeout, err := cfg.GetDuration("backend.analyze_timeout")
		if err != nil {
			return nil, err
		}
		auxTimeout, err := cfg.GetDuration("backend.aux_timeout")
		if err != nil {
			return nil, err
		}
		return backend.NewClient(
			conn,
			logger,
			analyzeTimeout,
			auxTimeout,
			cfg.GetString("backend.browser_info"),
			cfg.GetString("server.engine_version"),
		), nil
	}); err != nil {
		return nil, err
	}

	// Register session manager
	if err := container.Provide(func(scanner core.ScannerClient, store core.SettingsStore, logger *zap.Logger) core.SessionManager {
		return session.NewManager(scanner, store, logger)
	}); err != nil {
		return nil, err
	}

	// Register identity resolver
	if err := container.Provide(func(scanner core.ScannerClient, logger *zap.Logger) core.IdentityResolver {
		return urlid.NewResolver(scanner, logger)
	}); err != nil {
		return nil, err
	}

	// Register delivery diagnostics
	if err := container.Provide(delivery.NewDiagnostics); err != nil {
		return nil, err
	}

	// Register the native messaging host and its engine-facing ports
	if err := container.Provide(factory.NewHost); err != nil {
		return nil, err
	}
	if err := container.Provide(func(host *nativemsg.Host) core.PageMessenger {
		return host
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(host *nativemsg.Host) core.TabController {
		return host
	}); err != nil {
		return nil, err
	}

	// Register verdict deliverer
	if err := container.Provide(func(messenger core.PageMessenger, diag *delivery.Diagnostics, logger *zap.Logger) core.VerdictDeliverer {
		return delivery.NewDeliverer(messenger, diag, logger)
	}); err != nil {
		return nil, err
	}

	// Register analysis service
	if err := container.Provide(func(
		cfg *config.Config,
		scanner core.ScannerClient,
		cache core.VerdictCache,
		deliverer core.VerdictDeliverer,
		store core.SettingsStore,
		diag *delivery.Diagnostics,
		logger *zap.Logger,
	) *core.AnalysisService {
		service := core.NewAnalysisService(scanner, cache, deliverer, store, diag, logger)
		service.UseLegacyBulk(cfg.GetBool("backend.legacy_bulk"))
		return service
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(service *core.AnalysisService) core.Analyzer {
		return service
	}); err != nil {
		return nil, err
	}

	// Register link collector
	if err := container.Provide(collector.NewCollector); err != nil {
		return nil, err
	}

	// Register navigation interceptor
	if err := container.Provide(navigation.NewBypassList); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config) navigation.Pages {
		return navigation.Pages{
			Scanning:         cfg.GetString("pages.scanning"),
			WarningStandard:  cfg.GetString("pages.warning_standard"),
			WarningStrict:    cfg.GetString("pages.warning_strict"),
			WarningAnomalous: cfg.GetString("pages.warning_anomalous"),
		}
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(service *core.AnalysisService) navigation.FlagChecker {
		return service
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(navigation.NewInterceptor); err != nil {
		return nil, err
	}

	// Register click guard
	if err := container.Provide(clickguard.NewGuard); err != nil {
		return nil, err
	}

	// Register the engine bundle the host dispatches into
	if err := container.Provide(func(
		coll *collector.Collector,
		interceptor *navigation.Interceptor,
		guard *clickguard.Guard,
		sessions core.SessionManager,
		cache core.VerdictCache,
		conn *connection.Manager,
		diag *delivery.Diagnostics,
	) nativemsg.Engine {
		return nativemsg.Engine{
			Collector:   coll,
			Interceptor: interceptor,
			Guard:       guard,
			Sessions:    sessions,
			Cache:       cache,
			Connection:  conn,
			Diagnostics: diag,
		}
	}); err != nil {
		return nil, err
	}

	// Register link filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.LinkFilter, error) {
		return f.CreateLinkFilter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}
