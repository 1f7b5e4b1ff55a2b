// Package app wires every component into a running monitor engine:
// config/fleet loading, the optional Redis connection, the probe/
// reconcile/alert pipeline, the HTTP+WS server, and graceful shutdown.
// Components connect in dependency order. On a signal (signal.NotifyContext)
// the scheduler and stats collector stop first, then the HTTP server,
// tracer and Redis client close in parallel under a bounded shutdown
// context.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fleetwatch/monitor/internal/alertengine"
	"github.com/fleetwatch/monitor/internal/auth"
	"github.com/fleetwatch/monitor/internal/broadcaster"
	"github.com/fleetwatch/monitor/internal/config"
	"github.com/fleetwatch/monitor/internal/containerdriver"
	"github.com/fleetwatch/monitor/internal/dispatcher"
	"github.com/fleetwatch/monitor/internal/domain"
	"github.com/fleetwatch/monitor/internal/httpserver"
	"github.com/fleetwatch/monitor/internal/httpserver/deps"
	"github.com/fleetwatch/monitor/internal/logger"
	"github.com/fleetwatch/monitor/internal/metrics"
	"github.com/fleetwatch/monitor/internal/prober"
	"github.com/fleetwatch/monitor/internal/reconciler"
	"github.com/fleetwatch/monitor/internal/redis"
	"github.com/fleetwatch/monitor/internal/registry"
	"github.com/fleetwatch/monitor/internal/scheduler"
	redisstore "github.com/fleetwatch/monitor/internal/store/redis"
	"github.com/fleetwatch/monitor/internal/statscollector"
	"github.com/fleetwatch/monitor/internal/tracing"
	"github.com/fleetwatch/monitor/internal/version"
	"github.com/fleetwatch/monitor/internal/wsgateway"
)

// App bundles every started component so Run can start/stop them in a
// known order.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	tracer      *tracing.Provider

	services    []domain.Service
	scheduler   *scheduler.Scheduler
	reconciler  *reconciler.Reconciler
	alertengine *alertengine.AlertEngine
	broadcast   *broadcaster.Broadcaster
	metrics     *metrics.Metrics
	statscoll   *statscollector.Collector
}

// serviceNamer adapts *registry.Registry to alertengine.ServiceNamer.
type serviceNamer struct{ reg *registry.Registry }

func (n serviceNamer) Get(serviceID string) (string, bool) {
	view, ok := n.reg.Get(serviceID)
	if !ok {
		return "", false
	}
	return view.Service.Name, true
}

// New loads configuration and assembles every component. It does not
// start anything background — that happens in Run.
func New() *App {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)

	fleet, services, err := config.LoadFleet(cfg.ServicesFile)
	if err != nil {
		log.Errorf("failed to load fleet definition: %v", err)
		os.Exit(1)
	}
	log.Info("fleet definition loaded",
		logger.Int("service_count", len(services)))

	var redisClient *goredis.Client
	if cfg.RedisAddr != "" {
		log.Infof("connecting to redis at %s", cfg.RedisAddr)
		redisClient, err = redis.New(redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDialTimeout,
			ReadTimeout:    cfg.RedisReadTimeout,
			WriteTimeout:   cfg.RedisWriteTimeout,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, log)
		if err != nil {
			log.Errorf("failed to connect to redis, continuing single-instance: %v", err)
			redisClient = nil
		} else {
			log.Info("redis initialized successfully")
		}
	} else {
		log.Info("redis address not configured, running single-instance")
	}

	var distStore *redisstore.Store
	if redisClient != nil {
		distStore = redisstore.NewStore(redisClient)
	}

	tracer, err := tracing.New(context.Background(), "monitor", cfg.OTelEndpoint)
	if err != nil {
		log.Errorf("failed to initialize tracing, continuing without: %v", err)
		tracer = nil
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	svcRegistry := registry.New(services)
	bc := broadcaster.New(256, log)

	p := prober.New(prober.Config{
		Timeout:       fleet.Monitoring.Timeout(),
		RetryAttempts: fleet.Monitoring.RetryAttempts,
	}, log)

	rec := reconciler.New(reconciler.Config{
		ConsecutiveFailuresThreshold: fleet.Alerts.ConsecutiveFailuresThreshold,
		HighLatencyThresholdMs:       fleet.Alerts.HighLatencyThresholdMs,
	}, svcRegistry, bc, m, log, len(services)*8)

	sched := scheduler.New(scheduler.Config{
		CheckInterval: fleet.Monitoring.CheckInterval(),
		BatchSize:     int64(fleet.Monitoring.BatchSize),
	}, p, rec, log)

	driver := containerdriver.New()
	authz := auth.New(auth.Config{
		APIKey:       cfg.APIKey,
		TokenSecret:  cfg.TokenSecret,
		AllowedRoles: cfg.AllowedRoles,
	})

	var distLock dispatcher.DistLock
	if distStore != nil {
		distLock = distStore
	}
	dispatch := dispatcher.New(authz, driver, svcRegistry, rec, bc, m, m, distLock, log)

	var dedupStore alertengine.DedupStore
	if distStore != nil {
		dedupStore = distStore
	}
	engine := alertengine.New(alertengine.Config{
		Enabled:                fleet.Alerts.EnableNotifications,
		WebhookURL:             fleet.Alerts.WebhookURL,
		HighLatencyThresholdMs: fleet.Alerts.HighLatencyThresholdMs,
	}, serviceNamer{reg: svcRegistry}, dedupStore, log)

	var statscoll *statscollector.Collector
	if fleet.Monitoring.EnableDockerStats {
		statscoll = statscollector.New(15*time.Second, services, driver, m, bc, log)
	}

	gateway := wsgateway.New(svcRegistry, bc, dispatch, m, log)

	d := deps.Deps{
		Logger:       log,
		StartTime:    time.Now(),
		Version:      version.Version,
		Commit:       version.Commit,
		BuildDate:    version.BuildDate,
		GoVersion:    version.GoVersion,
		AllowedHosts: cfg.AllowedHosts,
		AllowedCIDRS: cfg.AllowedCIDRS,
		TrustProxy:   cfg.TrustProxy,
		CORSOrigins:  cfg.CORSOrigins,
		Registry:     svcRegistry,
		Dispatcher:   dispatch,
		Broadcast:    bc,
		Metrics:      m,
		WSGateway:    gateway,
		PromHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	server := httpserver.New(cfg, log, d)

	return &App{
		cfg:         cfg,
		logger:      log,
		server:      server,
		redisClient: redisClient,
		tracer:      tracer,
		services:    services,
		scheduler:   sched,
		reconciler:  rec,
		alertengine: engine,
		broadcast:   bc,
		metrics:     m,
		statscoll:   statscoll,
	}
}

// Run starts every background component and blocks until the process is
// signaled to stop or the HTTP server fails.
func (a *App) Run() error {
	a.logger.Infof("starting monitor %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})

	a.scheduler.Start(ctx, a.services)
	a.logger.Info("scheduler started")

	go a.reconciler.Run(done)
	go a.alertengine.Run(a.broadcast.Subscribe(a.alertengine.Filter()), done)
	go a.metrics.RunUptimeCounter(done)

	if a.statscoll != nil {
		a.statscoll.Start(ctx)
		a.logger.Info("stats collector started")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	a.scheduler.Stop()
	if a.statscoll != nil {
		a.statscoll.Stop()
	}
	close(done)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return a.server.Stop(shutdownCtx) })
	if a.tracer != nil {
		g.Go(func() error { return a.tracer.Shutdown(shutdownCtx) })
	}
	if a.redisClient != nil {
		g.Go(func() error { return a.redisClient.Close() })
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	a.logger.Info("monitor stopped cleanly")
	return nil
}
