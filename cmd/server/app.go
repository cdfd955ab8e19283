package main

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/performance-engine/api"
	"github.com/warp/performance-engine/cache"
	"github.com/warp/performance-engine/config"
	"github.com/warp/performance-engine/events"
	"github.com/warp/performance-engine/store/sqlite"
)

// app holds the wired services and everything that needs closing.
type app struct {
	cfg        config.Config
	log        *logrus.Logger
	store      *sqlite.Store
	handler    *api.Handler
	scheduler  *api.AggregationScheduler
	subscriber *events.Subscriber

	rdb       *redis.Client
	psClient  *pubsub.Client
	publisher *events.Publisher
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logg, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, log: logg}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a.store, err = sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	opts := api.Options{
		Location:  loc,
		WeekStart: cfg.WeekStart(),
		Tiers:     cfg.Tiers(),
	}

	if cfg.PubSub.Enabled {
		a.psClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic, err := events.EnsureTopic(ctx, a.psClient, cfg.PubSub.Topic)
		if err != nil {
			a.close()
			return nil, err
		}
		a.publisher = events.NewPublisher(topic)
		opts.Dispatcher = a.publisher
	}

	a.handler = api.NewHandler(a.store, logg, opts)

	if a.psClient != nil {
		topic := a.psClient.Topic(cfg.PubSub.Topic)
		sub, err := events.EnsureSubscription(ctx, a.psClient, cfg.PubSub.Subscription, topic)
		if err != nil {
			a.close()
			return nil, err
		}
		a.subscriber = events.NewSubscriber(sub, a.handler.Goals, logg)
	}

	if cfg.Redis.Enabled {
		a.rdb, err = cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// the cache is advisory; run without it
			logg.WithError(err).Warn("redis unavailable; leaderboard cache disabled")
		} else {
			lc := cache.NewLeaderboardCache(a.rdb, cfg.Redis.KeyPrefix)
			a.handler.Cache = lc
			a.handler.Aggregator.Publisher = lc
			if cfg.Aggregator.Exclusive {
				a.handler.Aggregator.Guard = cache.NewRedisGuard(a.rdb, cfg.Redis.KeyPrefix, cfg.Aggregator.LockTTL.Duration)
			}
		}
	}

	a.scheduler = api.NewAggregationScheduler(a.handler.Aggregator, cfg.Aggregator.Interval.Duration, logg)
	a.scheduler.Enabled = cfg.Aggregator.Enabled
	a.handler.Scheduler = a.scheduler

	return a, nil
}

func (a *app) close() {
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.psClient != nil {
		a.psClient.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}
