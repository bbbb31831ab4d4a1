package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/opsai-platform/analytics-backend-go/internal/api"
	"github.com/opsai-platform/analytics-backend-go/internal/api/handlers"
	"github.com/opsai-platform/analytics-backend-go/internal/config"
	"github.com/opsai-platform/analytics-backend-go/internal/core/dashboard"
	"github.com/opsai-platform/analytics-backend-go/internal/core/export"
	"github.com/opsai-platform/analytics-backend-go/internal/core/insights"
	"github.com/opsai-platform/analytics-backend-go/internal/core/query"
	"github.com/opsai-platform/analytics-backend-go/internal/core/sources"
	"github.com/opsai-platform/analytics-backend-go/internal/database"
	"github.com/opsai-platform/analytics-backend-go/internal/database/sqlite"
	"github.com/opsai-platform/analytics-backend-go/internal/events"
	"github.com/opsai-platform/analytics-backend-go/internal/websocket"
	"github.com/opsai-platform/analytics-backend-go/pkg/logger"
)

// changeChannel is the bus channel carrying data-change notifications that
// invalidate dashboard caches.
const changeChannel = "analytics.changes"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Logging.Level)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	// Create repositories
	repos := sqlite.NewRepositories(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics registry
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	promRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Data source adapters
	srcRegistry := sources.NewRegistry(log)
	srcRegistry.Register(sources.NewDatabaseAdapter(db))
	srcRegistry.Register(sources.NewAPIAdapter(cfg.Sources.APIToken, time.Duration(cfg.Sources.APITimeoutSeconds)*time.Second))
	srcRegistry.Register(sources.NewFileAdapter(repos.File))
	srcRegistry.Register(sources.NewIntegrationAdapter(nil))

	// Dashboard cache + data service
	cache := dashboard.NewCacheService(
		time.Duration(cfg.Cache.DefaultTTLSeconds)*time.Second,
		time.Duration(cfg.Cache.CleanupInterval)*time.Second,
		promRegistry,
		log,
	)
	defer cache.Stop()
	dashboards := dashboard.NewService(repos.Dashboard, srcRegistry, cache, log)

	// Query executor
	executor := query.NewExecutor(repos.Query, srcRegistry, db, log)
	executor.RegisterMetrics(promRegistry)

	// Event bus
	var bus events.Bus
	if cfg.Events.Backend == "redis" {
		redisBus, err := events.NewRedisBus(ctx, cfg.Events.RedisAddr, cfg.Events.RedisDB, log)
		if err != nil {
			log.Fatal("Failed to connect to redis event bus: ", err)
		}
		bus = redisBus
	} else {
		bus = events.NewMemoryBus(log)
	}
	defer bus.Close()

	// WebSocket hub
	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	// Subscription bridge: change events invalidate dashboard caches and
	// push refresh hints to connected clients.
	bridge := events.NewBridge(bus, cache, log)
	defer bridge.Close()
	if rows, err := repos.Dashboard.ListAll(ctx); err != nil {
		log.WithError(err).Warn("Failed to preload dashboards for event bridge")
	} else {
		for _, row := range rows {
			dashboardID, tenantID := row.ID, row.TenantID
			err := bridge.WatchDashboard(ctx, changeChannel, dashboardID, tenantID, func(payload []byte) {
				hub.NotifyDashboardInvalidated(dashboardID, tenantID, payload)
			})
			if err != nil {
				log.WithError(err).WithField("dashboard_id", dashboardID).Warn("Failed to watch dashboard")
			}
		}
	}

	// Scheduler publishes completion events so dashboards depending on
	// scheduled queries refresh.
	scheduler := query.NewScheduler(executor, repos.Query, &busNotifier{bus: bus}, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start query scheduler: ", err)
	}
	defer scheduler.Stop()

	// Insight generator
	catalog, err := insights.LoadCatalog(cfg.Insights.CatalogPath)
	if err != nil {
		log.Fatal("Failed to load insight catalog: ", err)
	}
	insightGen := insights.NewGenerator(executor, catalog, log)

	// Export engine. Excel/PDF need an external converter; none is wired in
	// this build, so those formats return unsupported.
	exporter := export.NewEngine(executor, nil, cfg.Export.Compression, log)

	h := handlers.NewHandlers(cfg, repos, db, executor, scheduler, dashboards, insightGen, exporter, hub, log)
	router := api.NewRouter(cfg, h, hub, promRegistry, log)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("Analytics backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}
}

// busNotifier publishes scheduled-query completions on the change channel.
type busNotifier struct {
	bus events.Bus
}

func (n *busNotifier) QueryCompleted(tenantID, queryID string, rowCount int) {
	payload, _ := json.Marshal(map[string]interface{}{
		"tenantId": tenantID,
		"queryId":  queryID,
		"rowCount": rowCount,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = n.bus.Publish(ctx, changeChannel, payload)
}
