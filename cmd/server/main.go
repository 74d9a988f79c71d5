package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"nestegg/internal/api"
	"nestegg/internal/auth"
	"nestegg/internal/config"
	"nestegg/internal/db"
	"nestegg/internal/rate"
	"nestegg/internal/service"
	"nestegg/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	sqlDB, err := db.OpenSQLite(cfg.DBPath, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer sqlDB.Close()

	if err := db.ApplyMigrationFile(sqlDB, "migrations/001_init.sql"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	st := store.New(sqlDB)

	if cfg.BootstrapAdminUserName != "" && cfg.BootstrapAdminPassword != "" {
		hash, err := auth.HashPassword(cfg.BootstrapAdminPassword)
		if err != nil {
			log.Fatalf("hash bootstrap admin password: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := st.EnsureAdmin(ctx, cfg.BootstrapAdminUserName, cfg.BootstrapAdminEmail, hash); err != nil {
			cancel()
			log.Fatalf("bootstrap admin: %v", err)
		}
		cancel()
		log.Printf("bootstrap admin ensured user=%s", cfg.BootstrapAdminUserName)
	}

	var market *store.MarketData
	var stocks service.StockSource
	if cfg.MarketDBDriver != "" {
		ext, err := db.OpenExternal(cfg.MarketDBDriver, cfg.MarketDBDSN)
		if err != nil {
			log.Fatalf("open market db driver=%s: %v", cfg.MarketDBDriver, err)
		}
		defer ext.Close()
		market = store.NewMarketData(ext, cfg.MarketDBDriver)
		stocks = market
		log.Printf("market data source connected driver=%s", cfg.MarketDBDriver)
	}

	var limiter rate.Limiter
	if cfg.RateRedisAddr != "" {
		rl, err := rate.NewRedisLimiter(cfg.RateRedisAddr)
		if err != nil {
			log.Fatalf("connect redis limiter addr=%s: %v", cfg.RateRedisAddr, err)
		}
		limiter = rl
		log.Printf("rate limiter backend=redis addr=%s", cfg.RateRedisAddr)
	} else {
		limiter = rate.NewMemoryLimiter()
		log.Printf("rate limiter backend=memory")
	}

	svc := service.New(cfg, st, stocks)
	handler := api.NewRouter(cfg, svc, limiter, market)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	log.Printf("listening addr=%s dev_mode=%t", cfg.ListenAddr, cfg.DevMode)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server: %v", err)
	}
}
