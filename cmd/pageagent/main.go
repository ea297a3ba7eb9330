// Package main starts the page agent: a browser window whose pages are
// watched for login submissions, a terminal overlay offering to save the
// captured credentials, and a small HTTPS endpoint the control panel asks
// whether the current page has a login form.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atinyakov/keeperbridge/internal/bridge"
	"github.com/atinyakov/keeperbridge/internal/certgen"
	"github.com/atinyakov/keeperbridge/internal/client"
	"github.com/atinyakov/keeperbridge/internal/config"
	"github.com/atinyakov/keeperbridge/internal/logger"
	"github.com/atinyakov/keeperbridge/internal/pageagent"
	"github.com/atinyakov/keeperbridge/internal/pageagent/browser"
	"github.com/atinyakov/keeperbridge/internal/pageagent/detector"
	"github.com/atinyakov/keeperbridge/internal/pageagent/overlay"
	"github.com/atinyakov/keeperbridge/internal/pageagent/tui"
	"github.com/atinyakov/keeperbridge/internal/server"
	handler "github.com/atinyakov/keeperbridge/internal/server/handler/http"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	version   string
	buildDate string
)

func main() {
	options := config.Parse()

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options, log); err != nil {
		log.Log.Fatal("page agent stopped", zap.Error(err))
	}
}

func run(ctx context.Context, options *config.Options, log *logger.Logger) error {
	zapLogger := log.Log

	brokerHTTP, err := channelClient(options.CertDir, cmp.Or(options.Context, certgen.ContextPageAgent))
	if err != nil {
		return err
	}
	bridgeHTTP, err := channelClient(options.CertDir, certgen.ContextBridge)
	if err != nil {
		return err
	}
	brokerChannel := client.NewChannel(options.BrokerURL, brokerHTTP)

	renderer := tui.NewRenderer(os.Stdin, os.Stdout, log.Named("tui"))
	defer renderer.Close()
	ov := overlay.New(brokerChannel, renderer,
		overlay.WithToastTTL(options.ToastTTL.Duration),
		overlay.WithSaveTimeout(options.RequestTimeout.Duration),
		overlay.WithLogger(log.Named("overlay")),
	)
	det := detector.New(ov.Show,
		detector.WithDelay(options.PromptDelay.Duration),
		detector.WithLogger(log.Named("detector")),
	)
	agent := pageagent.New(det, log.Named("agent"))

	relay := bridge.NewRelay(bridge.NewWindow(""), options.TrustedOrigins,
		client.NewChannel(options.BrokerURL, bridgeHTTP), log.Named("bridge"))

	sess, err := browser.Launch(agent, browser.Options{
		Headless: options.Headless,
		Install:  options.InstallBrowser,
		Timeout:  float64(options.RequestTimeout.Milliseconds()),
		Messages: relay,
	}, log.Named("browser"))
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			zapLogger.Warn("close browser", zap.Error(err))
		}
	}()
	if options.StartURL != "" {
		if err := sess.Navigate(options.StartURL); err != nil {
			return err
		}
	}

	tlsConfig, err := server.TLSConfig(options.CertDir)
	if err != nil {
		return err
	}
	router := handler.NewRouter(&handler.MessageHandler{Dispatcher: agent, Log: zapLogger},
		nil, nil, []string{certgen.ContextControlPanel}, zapLogger)
	srv := &http.Server{
		Addr:              options.AgentAddr,
		Handler:           router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Info("page agent listening", zap.String("addr", options.AgentAddr))
		if err := srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-sess.Closed():
			zapLogger.Info("browser closed")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func channelClient(dir, name string) (*http.Client, error) {
	certFile, keyFile, caFile := client.CertPaths(dir, name)
	return client.LoadClientCertificate(certFile, keyFile, caFile)
}
