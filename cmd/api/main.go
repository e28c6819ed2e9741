//	@title			elimage API
//	@version		1.0
//	@description	Content-addressed image hosting: upload, delivery and caller administration.
//
//	@host		localhost:8888
//	@BasePath	/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Admin JWT (HS256, role=admin). Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/elimage/service/internal/account"
	"github.com/elimage/service/internal/canonical"
	"github.com/elimage/service/internal/config"
	"github.com/elimage/service/internal/db"
	"github.com/elimage/service/internal/delivery"
	"github.com/elimage/service/internal/executor"
	"github.com/elimage/service/internal/inspect"
	"github.com/elimage/service/internal/logger"
	"github.com/elimage/service/internal/sniff"
	"github.com/elimage/service/internal/storage"
	"github.com/elimage/service/internal/transcode"
	"github.com/elimage/service/internal/upload"

	_ "github.com/elimage/service/docs/swagger"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		log.Fatal("content store init failed", zap.String("dir", cfg.DataDir), zap.Error(err))
	}

	// external processes share one bounded pool
	pool := executor.NewPool(cfg.ProcessWorkers, cfg.ProcessTimeout)

	var oracle sniff.Oracle = sniff.MimetypeOracle{}
	if fo := sniff.NewFileOracle(cfg.FileCommand, pool); fo.Available() {
		oracle = fo
	} else {
		log.Warn("file command not found, using built-in type detection", zap.String("command", cfg.FileCommand))
	}
	types := sniff.NewCache(sniff.NewClassifier(oracle))

	transcoder := transcode.NewWorker(transcode.NewCommandConverter(cfg.TranscodeCommand), pool, log)

	// Wire accounting: repository → service → handler
	var accounts upload.Accounting = account.Open{}
	var accountHandler *account.Handler
	if cfg.DatabaseURL != "" {
		dbPool, err := db.Connect(context.Background(), cfg.DatabaseURL, log)
		if err != nil {
			log.Fatal("database connection failed", zap.Error(err))
		}
		defer dbPool.Close()

		if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
			log.Fatal("database migration failed", zap.Error(err))
		}

		accountSvc := account.NewService(account.NewRepository(dbPool))
		accountHandler = account.NewHandler(accountSvc, log)
		accounts = accountSvc
	} else {
		log.Warn("DATABASE_URL not set, accounting disabled")
	}

	var hook inspect.Hook = inspect.Nop{}
	if cfg.InspectWebhookURL != "" {
		hook = inspect.NewWebhook(cfg.InspectWebhookURL, cfg.ProcessTimeout)
	}
	inspector := inspect.NewDispatcher(hook, cfg.InspectWorkers, cfg.ProcessTimeout, log)

	uploadSvc := upload.NewService(store, types, accounts, inspector, log)
	uploadHandler := upload.NewHandler(uploadSvc, upload.Options{
		PublicHost:     cfg.PublicHost,
		BasePath:       cfg.BasePath,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, log)

	redirects := canonical.NewHandler(cfg.BasePath, int(cfg.NotFoundMaxAge/time.Second))
	objects := delivery.NewServer(store, types, transcoder, delivery.Options{
		Bots:           cfg.Bots,
		LegacyEngines:  cfg.LegacyEngines,
		MaxAge:         cfg.CacheMaxAge,
		NotFoundMaxAge: cfg.NotFoundMaxAge,
		Fallback:       redirects,
	}, log)

	handler := newRouter(routes{
		basePath:    cfg.BasePath,
		adminSecret: cfg.AdminSecret,
		uploads:     uploadHandler,
		objects:     objects,
		redirects:   redirects,
		accounts:    accountHandler,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.AppEnv),
			zap.String("dataDir", store.Root()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	log.Info("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
	inspector.Wait()

	log.Info("server stopped")
}
