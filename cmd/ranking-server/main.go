package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reservations/db"
	"reservations/db/migrations"
	"reservations/internal/config"
	"reservations/internal/handlers"
	"reservations/internal/metrics"
	"reservations/internal/notify"
	"reservations/internal/ranking"
	"reservations/internal/scheduler"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Cannot load config: %v", err)
	}
	log := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := db.Open(ctx, cfg.PostgresConn)
	if err != nil {
		log.Fatalf("Cannot connect to DB: %v", err)
	}
	defer dbConn.Close()

	if cfg.MigrationsEnabled {
		if err := migrations.Run(dbConn.DB, log); err != nil {
			log.Fatalf("Migrations failed: %v", err)
		}
	}

	store := db.NewStorage(dbConn)

	dispatchers := notify.Fanout{notify.NewLog(log)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Cannot connect to Redis: %v", err)
		}
		dispatchers = append(dispatchers, notify.NewRedisStream(rdb, cfg.RedisStream, 100000))
	}
	var dispatcher ranking.Dispatcher = dispatchers
	if cfg.NotifyRatePerSec > 0 {
		dispatcher = notify.NewRateLimited(dispatchers, cfg.NotifyRatePerSec, int(cfg.NotifyRatePerSec))
	}

	collector := metrics.NewCollector("reservations")
	orchestrator := ranking.NewOrchestrator(store, dispatcher, log, ranking.Config{
		Workers:             cfg.Workers,
		RankChangeThreshold: cfg.RankChangeThreshold,
		OnReport:            collector.Observe,
	})

	sched, err := scheduler.New(orchestrator, cfg.Schedule, cfg.DryRun, log)
	if err != nil {
		log.Fatalf("Cannot create scheduler: %v", err)
	}
	sched.Start()
	if cfg.RunOnStart {
		go sched.RunNow()
	}

	h := handlers.NewHandler(orchestrator, store, log)
	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           handlers.NewRouter(h, log, collector.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.ServerAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown")
	}
	sched.Stop()
}
