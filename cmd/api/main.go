package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tariffio/tariff-import/internal/bootstrap"
	"github.com/tariffio/tariff-import/internal/config"
	"github.com/tariffio/tariff-import/internal/infrastructure/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	gormDB, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to create pgx pool: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(gormDB); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	server := bootstrap.NewServer(cfg, gormDB, pool)

	if cfg.ProvidersFile != "" {
		seeds, err := config.LoadProviderSeeds(cfg.ProvidersFile)
		if err != nil {
			log.Fatalf("failed to load providers file: %v", err)
		}
		n, err := server.Seeder.Execute(context.Background(), seeds)
		if err != nil {
			log.Fatalf("failed to seed providers: %v", err)
		}
		if n > 0 {
			log.Printf("seeded %d providers from %s", n, cfg.ProvidersFile)
		}
	}

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()

	if err := server.Scheduler.Start(schedCtx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	go func() {
		if err := server.HTTP.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Interrupted runs are re-driven from their checkpoint by the
	// stale-job sweep after restart, so the wait here is bounded.
	stopScheduler()
	select {
	case <-server.Scheduler.Stop().Done():
	case <-time.After(30 * time.Second):
		log.Printf("scheduler jobs still running, shutting down anyway")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.HTTP.Shutdown(ctx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
}
