// Package main starts the session broker: the privileged process that owns
// the session record, talks to the vault backend and answers envelopes from
// page agents, control panels and the session bridge over mutual TLS.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/keeperbridge/internal/broker"
	"github.com/atinyakov/keeperbridge/internal/certgen"
	"github.com/atinyakov/keeperbridge/internal/config"
	"github.com/atinyakov/keeperbridge/internal/db"
	"github.com/atinyakov/keeperbridge/internal/gateway"
	"github.com/atinyakov/keeperbridge/internal/logger"
	"github.com/atinyakov/keeperbridge/internal/message"
	"github.com/atinyakov/keeperbridge/internal/repository"
	"github.com/atinyakov/keeperbridge/internal/server"
	"github.com/atinyakov/keeperbridge/internal/server/handler/http"
	"github.com/atinyakov/keeperbridge/internal/service"
	"github.com/atinyakov/keeperbridge/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	options := config.Parse()

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options, log); err != nil {
		zapLogger.Fatal("broker stopped", zap.Error(err))
	}
}

func run(ctx context.Context, options *config.Options, log *logger.Logger) error {
	zapLogger := log.Log

	repo, closeRepo, err := openRepository(ctx, options)
	if err != nil {
		return err
	}
	defer closeRepo()

	codec, err := session.CodecFor(options.SecretMode)
	if err != nil {
		return err
	}
	store := session.NewStore(repo, codec, log.Named("session"))

	scope, err := gateway.NewScope(options.SensitiveScopes...)
	if err != nil {
		return fmt.Errorf("sensitive scopes: %w", err)
	}
	backend := gateway.NewClient(options.BackendURL, store,
		gateway.WithScope(scope),
		gateway.WithHTTPClient(&nethttp.Client{Timeout: options.RequestTimeout.Duration}),
		gateway.WithLogger(log.Named("gateway")),
	)

	svc := service.NewService(backend, store, log.Named("service"))
	service.StartExpiryWatcher(ctx, svc, options.CleanInterval.Duration, log.Named("expiry"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	b := broker.New(svc,
		broker.WithLogger(log.Named("broker")),
		broker.WithMetrics(broker.NewMetrics(reg)),
		broker.WithTimeout(options.RequestTimeout.Duration),
	)

	messageHandler := &http.MessageHandler{
		Dispatcher: b,
		Policy: http.Policy{
			message.ActionSyncLogin: {certgen.ContextBridge, certgen.ContextControlPanel},
		},
		Log: zapLogger,
	}
	eventsHandler := &http.EventsHandler{Source: store, Log: zapLogger}
	router := http.NewRouter(messageHandler, eventsHandler,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), options.AllowedContexts, zapLogger)

	tlsConfig, err := server.TLSConfig(options.CertDir)
	if err != nil {
		return err
	}

	srv := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Info("starting HTTPS server",
			zap.String("addr", options.Addr),
			zap.String("store", options.Store),
			zap.Strings("allowed", options.AllowedContexts),
		)
		if err := srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zapLogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		b.Wait()
		return err
	})
	return g.Wait()
}

// openRepository selects the session persistence named by the store option.
func openRepository(ctx context.Context, options *config.Options) (session.Repository, func(), error) {
	switch options.Store {
	case "postgres":
		pg, err := db.InitPostgres(ctx, options.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot init database: %w", err)
		}
		return repository.NewPostgresSessionRepository(pg, options.Profile), func() { _ = pg.Close() }, nil
	default:
		return repository.NewFileSessionRepository(options.StoreFile), func() {}, nil
	}
}
