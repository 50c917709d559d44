package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"matrix-zabbix-bridge/internal/config"
	"matrix-zabbix-bridge/internal/domain/ports/repository"
	"matrix-zabbix-bridge/internal/infra/api"
	"matrix-zabbix-bridge/internal/infra/i18n"
	"matrix-zabbix-bridge/internal/infra/logging"
	"matrix-zabbix-bridge/internal/infra/matrix"
	"matrix-zabbix-bridge/internal/infra/metrics"
	red "matrix-zabbix-bridge/internal/infra/redis"
	"matrix-zabbix-bridge/internal/infra/worker"
	"matrix-zabbix-bridge/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

const shutdownGrace = 5 * time.Second

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", config.DefaultConfigPath, "path to YAML config file (optional)")
	mintFor := flag.String("mint-token", "", "print an API bearer token for this subject and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if *mintFor != "" {
		if cfg.API.JWTSecret == "" {
			log.Fatalf("mint-token: API_JWT_SECRET is not set")
		}
		token, err := api.NewAuthManager(cfg.API.JWTSecret, cfg.API.TokenTTL).Mint(*mintFor)
		if err != nil {
			log.Fatalf("mint-token: %v", err)
		}
		fmt.Fprintln(os.Stdout, token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Redis (optional) ----
	var (
		repo    repository.StateRepository
		limiter matrix.RateLimiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Str("url", logging.Redact(cfg.Redis.URL, cfg.Runtime.Dev)).Msg("redis")
		}
		defer redisClient.Close()
		repo = red.NewStateRepo(redisClient, cfg.Redis.KeyPrefix)
		limiter = red.NewRateLimiter(redisClient, cfg.Redis.KeyPrefix)
		logger.Info().Str("prefix", cfg.Redis.KeyPrefix).Msg("redis persistence enabled")
	}

	// ---- State ----
	state := usecase.NewBotState(cfg.History.Size, repo, logger)
	if err := state.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("restore bot state failed, starting fresh")
	}

	translator, err := i18n.Default()
	if err != nil {
		logger.Fatal().Err(err).Msg("i18n")
	}

	// ---- Matrix ----
	session, err := matrix.NewSession(cfg.Matrix, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("matrix session")
	}
	client := matrix.NewClient(cfg.Matrix.Homeserver, session, cfg.Delivery.Timeout, logger)

	// ---- Use cases ----
	notifUC := usecase.NewNotificationUseCase(state, client, cfg.Matrix.DefaultRoom, logger)
	cmdUC := usecase.NewCommandUseCase(state, translator, logger)

	acks := worker.NewPool(cfg.Matrix.AckWorkers, logger)
	acks.Start(ctx)

	listener := matrix.NewListener(cfg.Matrix, cmdUC, client, acks, translator, logger)
	if limiter != nil {
		listener.WithRateLimiter(limiter)
	}
	listener.Attach(session)

	metrics.RegisterStateGauges(state.Enabled, state.HistoryCount, session.LoggedIn)

	// ---- HTTP ----
	apiSrv := api.NewServer(notifUC, state, session, logger).
		WithRequestTimeout(cfg.Delivery.Timeout + shutdownGrace)
	if cfg.API.JWTSecret != "" {
		apiSrv.WithAuth(api.NewAuthManager(cfg.API.JWTSecret, cfg.API.TokenTTL))
		logger.Info().Msg("bearer auth enabled for the HTTP API")
	}
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           apiSrv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("matrix session: %w", err)
		}
	}()
	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// ---- Graceful shutdown ----
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errCh:
		logger.Error().Err(err).Msg("component failed, shutting down")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	acks.Stop()
	logger.Info().Msg("bye")
}
