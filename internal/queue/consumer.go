package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omarbridgetech/AlertHub/internal/database"
	"github.com/omarbridgetech/AlertHub/internal/telemetry"
)

const ackTimeout = 5 * time.Second

type ConsumerConfig struct {
	Topic        string
	Group        string
	PollInterval time.Duration
	BatchSize    int
	Lease        time.Duration
	MaxAttempts  int
}

func (c *ConsumerConfig) setDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.Lease <= 0 {
		c.Lease = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
}

type Consumer struct {
	db      database.DB
	cfg     ConsumerConfig
	handler Handler
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

func NewConsumer(db database.DB, cfg ConsumerConfig, handler Handler, metrics *telemetry.Metrics, logger *slog.Logger) *Consumer {
	cfg.setDefaults()
	return &Consumer{
		db:      db,
		cfg:     cfg,
		handler: handler,
		metrics: metrics,
		logger:  logger.With("topic", cfg.Topic, "group", cfg.Group),
	}
}

// Run registers the subscription and polls until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if err := NewPublisher(c.db).Subscribe(ctx, c.cfg.Topic, c.cfg.Group); err != nil {
		return err
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	c.logger.Info("queue consumer started", "poll_interval", c.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("queue consumer stopped")
			return nil
		case <-ticker.C:
			c.drain(ctx)
		}
	}
}

// drain keeps polling while batches come back full.
func (c *Consumer) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := c.Poll(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.logger.Error("failed to poll queue", "error", err)
			}
			return
		}
		if n < c.cfg.BatchSize {
			return
		}
	}
}

// Poll claims one batch and handles it. It returns the number of deliveries
// claimed.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	deliveries, err := c.claim(ctx)
	if err != nil {
		return 0, err
	}

	for _, d := range deliveries {
		c.process(ctx, d)
	}

	return len(deliveries), nil
}

func (c *Consumer) claim(ctx context.Context) ([]Delivery, error) {
	query := `
		WITH ready AS (
			SELECT d.id
			FROM queue_deliveries d
			JOIN queue_messages m ON m.id = d.message_id
			WHERE d.consumer_group = $1
			  AND m.topic = $2
			  AND (
				(d.status = 'pending' AND d.next_retry_at <= NOW())
				OR (d.status = 'processing' AND d.locked_until < NOW())
			  )
			  AND NOT EXISTS (
				SELECT 1
				FROM queue_deliveries prev
				JOIN queue_messages pm ON pm.id = prev.message_id
				WHERE prev.consumer_group = d.consumer_group
				  AND pm.topic = m.topic
				  AND pm.partition_key = m.partition_key
				  AND pm.seq < m.seq
				  AND prev.status IN ('pending', 'processing')
			  )
			ORDER BY m.seq
			LIMIT $3
			FOR UPDATE OF d SKIP LOCKED
		)
		UPDATE queue_deliveries d
		SET status = 'processing',
		    attempts = d.attempts + 1,
		    locked_until = NOW() + $4 * INTERVAL '1 millisecond',
		    updated_at = NOW()
		FROM ready, queue_messages m
		WHERE d.id = ready.id AND m.id = d.message_id
		RETURNING d.id, d.message_id, m.topic, m.partition_key, COALESCE(m.dedup_key, ''),
		          m.payload, d.attempts, m.created_at
	`

	rows, err := c.db.Query(ctx, query, c.cfg.Group, c.cfg.Topic, c.cfg.BatchSize, c.cfg.Lease.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("claim deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(
			&d.ID, &d.MessageID, &d.Topic, &d.Key, &d.DedupKey,
			&d.Payload, &d.Attempt, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, rows.Err()
}

func (c *Consumer) process(ctx context.Context, d Delivery) {
	handleCtx, cancel := context.WithTimeout(ctx, c.cfg.Lease)
	err := c.handler.Handle(handleCtx, d)
	cancel()

	// Settle even when ctx was cancelled mid-handle so the row does not sit
	// in processing until the lease runs out.
	ackCtx, ackCancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer ackCancel()

	outcome, ackErr := c.settle(ackCtx, d, err)
	if errors.Is(ackErr, ErrLeaseLost) {
		c.logger.Warn("delivery lease lost before settling, result discarded",
			"delivery_id", d.ID,
			"key", d.Key,
			"attempt", d.Attempt,
			"outcome", outcome,
		)
		return
	}
	if ackErr != nil {
		c.logger.Error("failed to settle delivery",
			"delivery_id", d.ID,
			"key", d.Key,
			"error", ackErr,
		)
		return
	}
	c.metrics.QueueHandled(c.cfg.Topic, c.cfg.Group, outcome)

	switch outcome {
	case StatusDelivered:
		c.logger.Debug("delivery handled", "delivery_id", d.ID, "key", d.Key)
	case StatusDead:
		c.logger.Error("delivery dead-lettered",
			"delivery_id", d.ID,
			"key", d.Key,
			"attempt", d.Attempt,
			"error", err,
		)
	default:
		c.logger.Warn("delivery failed, will retry",
			"delivery_id", d.ID,
			"key", d.Key,
			"attempt", d.Attempt,
			"retry_in", Backoff(d.Attempt),
			"error", err,
		)
	}
}

func (c *Consumer) settle(ctx context.Context, d Delivery, handleErr error) (string, error) {
	if handleErr == nil {
		return StatusDelivered, c.markDelivered(ctx, d)
	}

	if IsPermanent(handleErr) || d.Attempt >= c.cfg.MaxAttempts {
		return StatusDead, c.markDead(ctx, d, handleErr.Error())
	}

	return "retry", c.scheduleRetry(ctx, d, handleErr.Error())
}

// markDelivered, markDead and scheduleRetry only touch the row while it still
// carries this claim. A consumer whose lease expired and whose delivery was
// re-claimed gets ErrLeaseLost.
func (c *Consumer) markDelivered(ctx context.Context, d Delivery) error {
	query := `
		UPDATE queue_deliveries
		SET status = 'delivered', locked_until = NULL, last_error = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND attempts = $2
	`
	result, err := c.db.Exec(ctx, query, d.ID, d.Attempt)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return claimHeld(result.RowsAffected())
}

func (c *Consumer) markDead(ctx context.Context, d Delivery, reason string) error {
	query := `
		UPDATE queue_deliveries
		SET status = 'dead', locked_until = NULL, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND attempts = $2
	`
	result, err := c.db.Exec(ctx, query, d.ID, d.Attempt, reason)
	if err != nil {
		return fmt.Errorf("mark dead: %w", err)
	}
	return claimHeld(result.RowsAffected())
}

func (c *Consumer) scheduleRetry(ctx context.Context, d Delivery, reason string) error {
	query := `
		UPDATE queue_deliveries
		SET status = 'pending',
		    locked_until = NULL,
		    next_retry_at = $3,
		    last_error = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND attempts = $2
	`
	next := time.Now().Add(Backoff(d.Attempt))
	result, err := c.db.Exec(ctx, query, d.ID, d.Attempt, next, reason)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	return claimHeld(result.RowsAffected())
}

func claimHeld(rows int64) error {
	if rows == 0 {
		return ErrLeaseLost
	}
	return nil
}
