// Package server wires the identity store: storage, services, the webhook,
// tracing, metrics and the gRPC and HTTP front ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/okaeri/internal/cryptox"
	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/metrics"
	"github.com/dmitrijs2005/okaeri/internal/platform/otel"
	"github.com/dmitrijs2005/okaeri/internal/server/config"
	"github.com/dmitrijs2005/okaeri/internal/server/hooks"
	"github.com/dmitrijs2005/okaeri/internal/server/httpapi"
	"github.com/dmitrijs2005/okaeri/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/okaeri/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/okaeri/internal/server/grpc"
)

const (
	serviceName     = "okaeri"
	shutdownTimeout = 10 * time.Second
)

// openRepositories is a seam for tests; it connects, pings and migrates.
var openRepositories = func(ctx context.Context, dsn string) (repomanager.RepositoryManager, error) {
	db, err := repomanager.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	m := repomanager.NewPostgresRepositoryManager(db)
	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    repomanager.RepositoryManager
	tracing  otel.Shutdown
	notifier *hooks.WebhookNotifier
	grpc     *gs.GRPCServer
	http     *http.Server
}

// Services builds the three stores over repos.
func Services(cfg *config.Config, repos repomanager.RepositoryManager, notifier services.AccountNotifier, m services.Metrics, logger logging.Logger) (*services.AccountService, *services.GroupService, *services.MembershipService, error) {
	hasher, err := cryptox.NewHasher(cfg.PasswordIterations, cfg.HashConcurrency)
	if err != nil {
		return nil, nil, nil, err
	}
	accounts, err := services.NewAccountService(repos, hasher, services.AccountOptions{
		LoginKeyField: cfg.LoginKeyField,
		ProfileFields: cfg.ProfileFields,
		Notifier:      notifier,
		Metrics:       m,
	}, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	groups, err := services.NewGroupService(repos, m, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return accounts, groups, services.NewMembershipService(repos, m, logger), nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.NewFromConfig(c.LogLevel, c.LogFormat, os.Stdout)
	if err != nil {
		return nil, err
	}

	tracing, err := otel.Setup(ctx, serviceName, c.OtelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}

	repos, err := openRepositories(ctx, c.DatabaseDSN)
	if err != nil {
		_ = tracing(ctx)
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, repos: repos, tracing: tracing}
	if err := app.build(); err != nil {
		app.close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) build() error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	var notifier services.AccountNotifier
	if app.config.WebhookOnCreateAccount != "" {
		n, err := hooks.NewWebhookNotifier(hooks.Options{
			URL:           app.config.WebhookOnCreateAccount,
			LoginKeyField: app.config.LoginKeyField,
			Timeout:       app.config.WebhookTimeout,
			AllowPrivate:  app.config.WebhookAllowPrivate,
		}, app.logger)
		if err != nil {
			return err
		}
		app.notifier = n
		notifier = n
	}

	accounts, groups, membership, err := Services(app.config, app.repos, notifier, collector, app.logger)
	if err != nil {
		return err
	}

	app.grpc = gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, gs.Services{
		Accounts:   accounts,
		Groups:     groups,
		Membership: membership,
	}, gs.Options{
		IdentityHeader: app.config.IdentityHeader,
		Metrics:        collector,
	})

	deps := httpapi.Deps{
		Accounts:       accounts,
		Groups:         groups,
		Membership:     membership,
		IdentityHeader: app.config.IdentityHeader,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
		Logger:         app.logger,
	}
	if p, ok := app.repos.(pinger); ok {
		deps.Ping = p.Ping
	}
	app.http = &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

func (app *App) runHTTP(ctx context.Context) error {
	lis, err := net.Listen("tcp", app.http.Addr)
	if err != nil {
		return err
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		stopped <- app.http.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())
	if err := app.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-stopped
}

// close releases everything NewApp acquired. Pending webhook deliveries are
// awaited first.
func (app *App) close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if app.notifier != nil {
		app.notifier.Wait()
	}
	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
	sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := app.tracing(sctx); err != nil {
		app.logger.Error(ctx, "flushing traces", "error", err)
	}
}

// Run serves both APIs until ctx is done or one of them fails, then stops
// the other one and releases the database and tracing.
func (app *App) Run(ctx context.Context) error {
	defer app.close(ctx)

	app.logger.Info(ctx, "Starting app...")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpc.Run(gctx) })
	g.Go(func() error { return app.runHTTP(gctx) })

	err := g.Wait()
	app.logger.Info(ctx, "App stopped")
	return err
}
