package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paypertask/taskhub/internal/config"
	"github.com/paypertask/taskhub/internal/db"
	"github.com/paypertask/taskhub/internal/notifications"
	"github.com/paypertask/taskhub/internal/observability"
	"github.com/paypertask/taskhub/internal/queue/redisclient"
	"github.com/paypertask/taskhub/internal/queue/worker"
	"github.com/paypertask/taskhub/internal/repo/postgres"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	prom := observability.NewProm(prometheus.NewRegistry())
	jobsRepo := postgres.NewJobsRepo(pool, prom)

	var waker worker.Waker

	if cfg.RedisAddr != "" {
		redis := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := config.WithTimeout(2 * time.Second)
		err := redis.Ping(pingCtx)
		cancel()

		if err != nil {
			log.Warn("redis unavailable, polling only", "err", err)
			_ = redis.Close()
		} else {
			defer redis.Close()

			listener := redis.Listen(ctx)
			defer listener.Close()

			waker = listener
		}
	}

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		PollInterval: 2 * time.Second,
		WorkerID:     workerID,
	}, jobsRepo, notifications.NewLogNotifier(), waker, prom, log)

	log.Info("worker has started", "worker_id", workerID)

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	log.Info("worker shutdown complete")
}
