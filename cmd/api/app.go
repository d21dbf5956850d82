package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/segmentio/kafka-go"

	"github.com/earnhub/backend/internal/auth"
	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/events"
	"github.com/earnhub/backend/internal/execution"
	"github.com/earnhub/backend/internal/jobs"
	"github.com/earnhub/backend/internal/ledger"
	"github.com/earnhub/backend/internal/notify"
	"github.com/earnhub/backend/internal/realtime"
	"github.com/earnhub/backend/internal/referral"
	"github.com/earnhub/backend/internal/repository"
	"github.com/earnhub/backend/internal/wallet"
	"github.com/earnhub/backend/internal/works"
)

// app is the wired service graph. serve runs all of it; the maintenance
// commands only call into the services.
type app struct {
	cfg    config.Config
	log    *slog.Logger
	pool   *pgxpool.Pool
	river  *river.Client[pgx.Tx]
	redis  *redis.Client
	bridge *realtime.RedisBridge
	kafka  *kafka.Writer
	hub    *realtime.Hub

	feed  *repository.FeedRepo
	stats *repository.StatsRepo

	auth      auth.Service
	jobs      jobs.Service
	works     works.Service
	referrals referral.Service
	wallet    wallet.Service
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reach postgres: %w", err)
	}
	a := &app{cfg: cfg, log: log, pool: pool, hub: realtime.NewHub(log)}

	users := repository.NewUserRepo(pool)
	txns := repository.NewTransactionRepo(pool)
	a.feed = repository.NewFeedRepo(pool)
	a.stats = repository.NewStatsRepo(pool)

	// Pushes go through Redis when configured so every replica's sockets
	// see them; otherwise straight to the local hub.
	var pusher realtime.Pusher = a.hub
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.bridge = realtime.NewRedisBridge(a.redis, a.hub, cfg.Redis.Channel, log)
		pusher = a.bridge
	}

	var publisher events.Publisher = events.NewLogPublisher(log)
	if len(cfg.Kafka.Brokers) > 0 {
		a.kafka = events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publisher = events.NewKafkaPublisher(a.kafka)
	}

	queue := execution.NewQueue(log)
	led := ledger.NewService(users, txns, queue)
	dispatcher := notify.NewDispatcher(a.feed, pusher, log)

	refSvc := referral.NewService(referral.Deps{
		DB:        pool,
		Users:     users,
		Referrals: repository.NewReferralRepo(pool),
		Ledger:    led,
		Notifier:  dispatcher,
		Rate:      cfg.Ledger.CommissionRate,
		Logger:    log,
	})
	a.referrals = refSvc
	a.auth = auth.NewService(auth.Deps{
		Users:     users,
		Referrals: refSvc,
		Secret:    []byte(cfg.Auth.JWTSecret),
		TTL:       cfg.Auth.TTL(),
		Logger:    log,
	})
	jobRepo := repository.NewJobRepo(pool)
	workRepo := repository.NewWorkRepo(pool)
	a.jobs = jobs.NewService(jobs.Deps{
		DB:       pool,
		Jobs:     jobRepo,
		Works:    workRepo,
		Users:    users,
		Ledger:   led,
		Notifier: dispatcher,
		Stats:    queue,
		MinSpend: cfg.Ledger.MinSpend,
		Logger:   log,
	})
	a.works = works.NewService(works.Deps{
		DB:          pool,
		Works:       workRepo,
		Jobs:        jobRepo,
		Users:       users,
		Ledger:      led,
		Commissions: queue,
		Notifier:    dispatcher,
		Logger:      log,
	})
	a.wallet = wallet.NewService(wallet.Deps{
		DB:            pool,
		Ledger:        led,
		Transactions:  txns,
		Users:         users,
		Subscriptions: repository.NewSubscriptionRepo(pool),
		Commissions:   queue,
		Stats:         queue,
		Notifier:      dispatcher,
		Rules:         cfg.Ledger,
		Logger:        log,
	})

	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewCommissionWorker(refSvc, log))
	river.AddWorker(workers, execution.NewLedgerEventWorker(publisher))
	river.AddWorker(workers, execution.NewBroadcastStatsWorker(notify.NewStatsBroadcaster(a.stats, pusher), log))

	a.river, err = river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.Queue.MaxWorkers},
		},
		Workers: workers,
		Logger:  log,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create river client: %w", err)
	}
	queue.SetClient(a.river)
	return a, nil
}

func (a *app) close() {
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.log.Warn("close kafka writer", "error", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.pool.Close()
}
