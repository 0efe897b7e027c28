// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/formgate/formgate/internal/auth"
	"github.com/formgate/formgate/internal/broadcast"
	"github.com/formgate/formgate/internal/config"
	"github.com/formgate/formgate/internal/httpapi"
	"github.com/formgate/formgate/internal/logging"
	"github.com/formgate/formgate/internal/notify"
	"github.com/formgate/formgate/internal/observability"
	"github.com/formgate/formgate/internal/workflow"
)

const serviceName = "formgate"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return newServeCmdWithDeps(nil)
}

func newServeCmdWithDeps(deps *ServeDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API serving signup, login, email verification and
password reset, plus the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, deps)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})

	logger.Info("starting formgate",
		"addr", cfg.HTTP.Addr,
		"storage", cfg.Storage.Backend,
		"tokens", cfg.Tokens.Backend,
		"notify", cfg.Notify.Backend,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openBackends(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	creds, err := auth.NewCredentialStore(stores.accounts, auth.NewArgon2idHasher())
	if err != nil {
		return err
	}
	issuer, err := auth.NewTokenIssuer(stores.tokens, stores.accounts, auth.WithPolicy(auth.TokenPolicy{
		VerificationTTL: cfg.Tokens.VerificationTTL,
		ResetTTL:        cfg.Tokens.ResetTTL,
	}))
	if err != nil {
		return err
	}

	dispatcher, err := buildDispatcher(cfg, logger)
	if err != nil {
		return err
	}

	hub := broadcast.NewHub(logger)
	controller, err := workflow.NewController(
		workflow.Config{
			BaseURL:           cfg.App.BaseURL,
			MinPasswordLength: cfg.Password.MinLength,
			DispatchTimeout:   cfg.Notify.Timeout,
			AllowedDomains:    cfg.Signup.AllowedDomains,
			BlockedDomains:    cfg.Signup.BlockedDomains,
		},
		creds,
		issuer,
		dispatcher,
		broadcast.NewSessionAnnouncer(hub, logger),
		workflow.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiOpts := []httpapi.Option{httpapi.WithLogger(logger)}

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsOpts := []observability.ServerOption{
			observability.WithRegistration(workflow.RegisterMetrics),
			observability.WithBuildInfo(version, commit),
			observability.WithLogger(logger),
		}
		for _, check := range stores.checks {
			obsOpts = append(obsOpts, observability.WithCheck(check.Name, check.Probe))
		}
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, obsOpts...)
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		apiOpts = append(apiOpts, httpapi.WithMetrics(obsServer.Metrics()))
	}

	api := httpapi.NewServer(controller, hub, apiOpts...)
	httpSrv := &http.Server{
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	httpSrv.RegisterOnShutdown(api.CloseStreams)

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		stopObservability(obsServer, cfg.HTTP.ShutdownTimeout)
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	cmd.Println("formgate listening on", listener.Addr().String())
	logger.Info("api ready", "addr", listener.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr := <-errChan:
		runErr = oops.Code("SERVE_FAILED").Wrap(serveErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	stopObservability(obsServer, cfg.HTTP.ShutdownTimeout)

	logger.Info("shutdown complete")
	return runErr
}

// buildDispatcher returns the notification backend named in cfg.
func buildDispatcher(cfg *config.Config, logger *slog.Logger) (notify.Dispatcher, error) {
	switch cfg.Notify.Backend {
	case config.NotifySMTP:
		smtp, err := notify.NewSMTPDispatcher(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			TLS:      cfg.SMTP.TLS,
		})
		if err != nil {
			return nil, err
		}
		return notify.NewRetrying(smtp, cfg.Notify.Retries, notify.DefaultRetryBase, logger), nil
	default:
		if cfg.Notify.LogURLs {
			logger.Warn("log notifications include token links, do not use in production")
		}
		return notify.NewLogDispatcher(logger, cfg.Notify.LogURLs), nil
	}
}

func stopObservability(srv ObservabilityServer, timeout time.Duration) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
