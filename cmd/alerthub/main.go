package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/omarbridgetech/AlertHub/internal/action"
	"github.com/omarbridgetech/AlertHub/internal/api"
	"github.com/omarbridgetech/AlertHub/internal/condition"
	"github.com/omarbridgetech/AlertHub/internal/config"
	"github.com/omarbridgetech/AlertHub/internal/database"
	"github.com/omarbridgetech/AlertHub/internal/delivery"
	"github.com/omarbridgetech/AlertHub/internal/lock"
	"github.com/omarbridgetech/AlertHub/internal/message"
	"github.com/omarbridgetech/AlertHub/internal/metricclient"
	"github.com/omarbridgetech/AlertHub/internal/notify"
	"github.com/omarbridgetech/AlertHub/internal/processor"
	"github.com/omarbridgetech/AlertHub/internal/queue"
	"github.com/omarbridgetech/AlertHub/internal/retention"
	"github.com/omarbridgetech/AlertHub/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// worker is a long running loop supervised by the errgroup.
type worker struct {
	name string
	run  func(ctx context.Context) error
}

func run() error {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment, cfg.InstanceID)
	slog.SetDefault(logger)

	logger.Info("starting AlertHub",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("timezone", cfg.SchedulerTimezone),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return err
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.New(registry)

	publisher := queue.NewPublisher(pool)

	workers, err := buildWorkers(ctx, cfg, pool, publisher, metrics, logger)
	if err != nil {
		return err
	}

	router := api.NewRouter(logger, &api.Dependencies{DB: pool, Gatherer: registry})
	router.Setup()

	g, gctx := errgroup.WithContext(ctx)

	for _, w := range workers {
		g.Go(func() error {
			if err := w.run(gctx); err != nil {
				return fmt.Errorf("%s: %w", w.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := router.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("AlertHub stopped")
	return nil
}

// buildWorkers wires the enabled roles. Every consumer group is subscribed
// before any worker starts, whichever roles this replica runs, so a
// scheduler-only replica never publishes to a topic with no groups.
func buildWorkers(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, publisher *queue.Publisher, metrics *telemetry.Metrics, logger *slog.Logger) ([]worker, error) {
	var workers []worker

	consumerCfg := func(topic, group string) queue.ConsumerConfig {
		return queue.ConsumerConfig{
			Topic:        topic,
			Group:        group,
			PollInterval: cfg.QueuePollInterval,
			BatchSize:    cfg.QueueBatchSize,
			Lease:        cfg.QueueLease,
			MaxAttempts:  cfg.QueueMaxAttempts,
		}
	}

	channels := []struct {
		channel string
		topic   string
		url     string
	}{
		{message.ChannelEmail, cfg.TopicEmail, cfg.EmailShoutrrrURL},
		{message.ChannelSMS, cfg.TopicSMS, cfg.SMSShoutrrrURL},
	}

	subscriptions := [][2]string{{cfg.TopicActions, processor.ConsumerGroup}}
	for _, ch := range channels {
		subscriptions = append(subscriptions, [2]string{ch.topic, delivery.ConsumerGroup(ch.channel)})
	}
	for _, sub := range subscriptions {
		if err := publisher.Subscribe(ctx, sub[0], sub[1]); err != nil {
			return nil, err
		}
	}

	if cfg.ProcessorEnabled {
		client := metricclient.New(metricclient.Config{
			MetricsBaseURL: cfg.MetricsBaseURL,
			LoaderBaseURL:  cfg.LoaderBaseURL,
			CacheTTL:       cfg.MetricCacheTTL,
		}, logger.With("component", "metricclient"))

		evaluator := condition.NewEvaluator(client, client, cfg.EvaluatorCallTimeout)
		handler := processor.NewHandler(
			evaluator,
			notify.NewRouter(cfg.TopicEmail, cfg.TopicSMS),
			publisher,
			metrics,
			logger.With("component", "processor"),
		)

		consumer := queue.NewConsumer(pool, consumerCfg(cfg.TopicActions, processor.ConsumerGroup), handler, metrics, logger)
		workers = append(workers, worker{name: "processor", run: consumer.Run})
	}

	if cfg.DeliveryEnabled {
		for _, ch := range channels {
			group := delivery.ConsumerGroup(ch.channel)

			var sender delivery.Sender
			if ch.url != "" {
				s, err := delivery.NewShoutrrrSender(ch.url, cfg.DeliveryTitle)
				if err != nil {
					return nil, fmt.Errorf("%s sender: %w", ch.channel, err)
				}
				sender = s
			} else {
				logger.Warn("no delivery url configured, notifications will be dead-lettered", "channel", ch.channel)
			}

			handler := delivery.NewHandler(ch.channel, sender, metrics, logger.With("component", "delivery"))
			consumer := queue.NewConsumer(pool, consumerCfg(ch.topic, group), handler, metrics, logger)
			workers = append(workers, worker{name: group, run: consumer.Run})
		}
	}

	claimer := lock.NewMinuteLock(pool, cfg.InstanceID)

	if cfg.SchedulerEnabled {
		detector := action.NewDetector(
			action.NewRepository(pool),
			claimer,
			publisher,
			action.DetectorConfig{
				Topic:    cfg.TopicActions,
				Interval: cfg.SchedulerInterval,
				Location: cfg.Location(),
			},
			metrics,
			logger.With("component", "detector"),
		)
		workers = append(workers, worker{name: "detector", run: detector.Run})
	}

	janitor := retention.NewJanitor(cfg.RetentionInterval, logger.With("component", "retention"),
		retention.Target{Name: "queue", Pruner: publisher, Keep: cfg.QueueRetention},
		retention.Target{Name: "ticks", Pruner: claimer, Keep: cfg.TickRetention},
	)
	workers = append(workers, worker{name: "retention", run: janitor.Run})

	return workers, nil
}
