package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mvillegas/fincore/pkg/config"
	"github.com/mvillegas/fincore/pkg/ledger"
	"github.com/mvillegas/fincore/pkg/logging"
	"github.com/mvillegas/fincore/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	var st store.Store
	if cfg.Mongo.URI != "" {
		st, err = store.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			logger.Fatal("connect store", zap.Error(err))
		}
		logger.Info("using mongo store", zap.String("database", cfg.Mongo.Database))
	} else {
		st = store.NewMemoryStore()
		logger.Warn("MONGO_URI not set, using in-memory store")
	}
	defer st.Close(ctx)

	server := NewServer(ledger.NewLedger(st, logger), logger)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("serve", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
