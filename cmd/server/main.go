package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/shopkeeper/internal/config"
	"github.com/iudanet/shopkeeper/internal/server/auth"
	"github.com/iudanet/shopkeeper/internal/server/cache"
	"github.com/iudanet/shopkeeper/internal/server/handlers"
	"github.com/iudanet/shopkeeper/internal/server/middleware"
	"github.com/iudanet/shopkeeper/internal/server/permissions"
	"github.com/iudanet/shopkeeper/internal/server/storage/sqlite"
	"github.com/iudanet/shopkeeper/internal/server/tokens"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Открываем SQLite storage (миграции выполняются при старте)
	store, err := sqlite.New(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	// Общий кеш процесса; закрывается владеющим процессом при завершении
	redisCache, err := cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() {
		if err := redisCache.Close(); err != nil {
			logger.Error("failed to close cache", slog.Any("error", err))
		}
	}()

	tokenService := tokens.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	permissionService := permissions.NewService(logger, store, redisCache)
	authService := auth.NewService(logger, store, store, permissionService, tokenService)

	authHandler := handlers.NewAuthHandler(logger, authService, permissionService)
	healthHandler := handlers.NewHealthHandler(logger, store.DB(), Version)

	requireAuth := middleware.AuthMiddleware(logger, tokenService)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)
	mux.HandleFunc("POST /api/v1/auth/oauth/{provider}", authHandler.OAuthRegister)
	mux.HandleFunc("POST /api/v1/auth/refresh", authHandler.Refresh)
	mux.Handle("POST /api/v1/auth/logout", requireAuth(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/v1/auth/me/permissions", requireAuth(http.HandlerFunc(authHandler.Permissions)))

	// Эндпоинты аутентификации лимитируются строже остальных
	authLimits := []middleware.PathRateLimit{
		{Path: "/api/v1/auth/refresh", Rate: 30, Window: time.Minute},
		{Path: "/api/v1/auth/oauth/github", Rate: 10, Window: time.Minute},
		{Path: "/api/v1/auth/oauth/discord", Rate: 10, Window: time.Minute},
		{Path: "/api/v1/auth/oauth/google", Rate: 10, Window: time.Minute},
	}

	var handler http.Handler = mux
	handler = middleware.RateLimitMiddleware(authLimits, 100, time.Minute, logger)(handler)
	handler = middleware.LoggingWithSkip(logger, []string{"/api/v1/health"})(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errC := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", server.Addr), slog.String("version", Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

func printVersion() {
	fmt.Printf("Shopkeeper Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
