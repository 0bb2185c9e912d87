package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tiffinbill/internal/config"
	"tiffinbill/internal/httpapi"
	"tiffinbill/internal/logger"
	"tiffinbill/internal/persistence"
	"tiffinbill/internal/qr"
	"tiffinbill/internal/service"
	"tiffinbill/internal/store"
	"tiffinbill/internal/store/memory"
	"tiffinbill/internal/store/redisstore"
	"tiffinbill/internal/store/sqlstore"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Logger, cfg.Development())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	loc, err := cfg.Location()
	if err != nil {
		zlog.Fatal("load timezone", zap.String("timezone", cfg.TimeZone), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := openStore(ctx, cfg)
	if err != nil {
		zlog.Fatal("storage unavailable", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	closers := []func() error{kv.Close}
	zlog.Info("storage ready", zap.String("driver", cfg.StorageDriver))

	gateway := persistence.New(kv, zlog.Named("persistence"), loc)
	svc := service.New(ctx, gateway, zlog.Named("service"),
		service.WithLocation(loc),
		service.WithReceiptWidth(cfg.ReceiptWidth),
	)
	api := httpapi.New(svc, qr.NewPNGEncoder(), zlog.Named("http"), cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zlog.Info("billing backend listening", zap.String("addr", cfg.Address()), zap.String("timezone", loc.String()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			zlog.Warn("close error", zap.Error(err))
		}
	}

	zlog.Info("server stopped")
}

// openStore connects the key-value backend selected by STORAGE_DRIVER.
func openStore(ctx context.Context, cfg config.Config) (store.KV, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return memory.New(), nil
	case config.StorageSQLite:
		db, err := sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.StoragePostgres:
		db, err := sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.StorageRedis:
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
