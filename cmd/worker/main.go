package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/suPer8Hu/healthyai/internal/account"
	"github.com/suPer8Hu/healthyai/internal/config"
	"github.com/suPer8Hu/healthyai/internal/db"
	"github.com/suPer8Hu/healthyai/internal/logger"
	"github.com/suPer8Hu/healthyai/internal/notify"
	"github.com/suPer8Hu/healthyai/internal/reminder"
	"github.com/suPer8Hu/healthyai/internal/store/rabbitmq"
	"github.com/suPer8Hu/healthyai/internal/store/redisstore"
)

const pollerLeaseKey = "healthyai:lease:reminder-poller"

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.L.Warn("load .env", "err", err)
	}
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.L.Error("db connect", "err", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb, &account.User{}, &account.Settings{}, &reminder.Reminder{}); err != nil {
		logger.L.Error("db migrate", "err", err)
		os.Exit(1)
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.L.Error("rabbit connect", "err", err)
		os.Exit(1)
	}
	defer pub.Close()

	// only NotificationPrefs is used here
	accounts := account.NewService(account.NewRepo(gdb), cfg.JWTSecret, nil, nil)

	// the lease outlives one interval so a healthy holder keeps it across ticks
	lease := rds.NewLease(pollerLeaseKey, leaseOwner(), 2*cfg.ReminderPollInterval+30*time.Second)
	poller := &reminder.Poller{
		Repo:     reminder.NewRepo(gdb),
		Notifier: &notify.Gate{Prefs: accounts, Next: pub},
		Leader:   lease,
		Interval: cfg.ReminderPollInterval,
		Location: cfg.ReminderLocation,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	concurrency := workerConcurrency()
	logger.L.Info("worker started",
		"queue", cfg.RabbitQueue,
		"concurrency", concurrency,
		"poll_interval", cfg.ReminderPollInterval.String(),
		"tz", cfg.ReminderLocation.String(),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L.Error("reminder poller stopped", "err", err)
		}
	}()
	go func() {
		defer wg.Done()
		deliver := notify.LogNotifier{}
		err := pub.Consume(ctx, rabbitmq.ConsumerConfig{
			Queue:       cfg.RabbitQueue,
			Concurrency: concurrency,
		}, deliver.Notify)
		if err != nil {
			logger.L.Error("notification consumer stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.L.Info("worker shutting down")
	wg.Wait()

	releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := lease.Release(releaseCtx); err != nil {
		logger.L.Warn("release poller lease", "err", err)
	}
}
