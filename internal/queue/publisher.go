package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/omarbridgetech/AlertHub/internal/database"
)

type Publisher struct {
	db database.DB
}

func NewPublisher(db database.DB) *Publisher {
	return &Publisher{db: db}
}

// Publish stores the message and creates one pending delivery per consumer
// group subscribed to the topic, in one statement. It returns false when the
// dedup key was already used on the topic, and ErrNoSubscribers without
// storing anything when no group is subscribed.
func (p *Publisher) Publish(ctx context.Context, env Envelope) (bool, error) {
	if env.Topic == "" {
		return false, fmt.Errorf("publish: topic is required")
	}

	query := `
		WITH subs AS (
			SELECT consumer_group FROM queue_subscriptions WHERE topic = $1
		), msg AS (
			INSERT INTO queue_messages (topic, partition_key, dedup_key, payload)
			SELECT $1, $2::text, NULLIF($3::text, ''), $4::jsonb
			WHERE EXISTS (SELECT 1 FROM subs)
			ON CONFLICT (topic, dedup_key) DO NOTHING
			RETURNING id
		), fanout AS (
			INSERT INTO queue_deliveries (message_id, consumer_group)
			SELECT msg.id, subs.consumer_group
			FROM msg CROSS JOIN subs
			RETURNING id
		)
		SELECT (SELECT COUNT(*) FROM subs), (SELECT COUNT(*) FROM msg), (SELECT COUNT(*) FROM fanout)
	`

	var subscribers, inserted, fanout int64
	err := p.db.QueryRow(ctx, query, env.Topic, env.Key, env.DedupKey, env.Payload).Scan(&subscribers, &inserted, &fanout)
	if err != nil {
		return false, fmt.Errorf("publish to %s: %w", env.Topic, err)
	}
	if subscribers == 0 {
		return false, fmt.Errorf("publish to %s: %w", env.Topic, ErrNoSubscribers)
	}

	return inserted > 0, nil
}

// Subscribe registers a consumer group on a topic. Only messages published
// after the subscription exists are delivered to the group.
func (p *Publisher) Subscribe(ctx context.Context, topic, group string) error {
	query := `
		INSERT INTO queue_subscriptions (topic, consumer_group)
		VALUES ($1, $2)
		ON CONFLICT (topic, consumer_group) DO NOTHING
	`

	if _, err := p.db.Exec(ctx, query, topic, group); err != nil {
		return fmt.Errorf("subscribe %s to %s: %w", group, topic, err)
	}
	return nil
}

// Prune removes messages older than before whose deliveries are all settled.
func (p *Publisher) Prune(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM queue_messages m
		WHERE m.created_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM queue_deliveries d
			WHERE d.message_id = m.id AND d.status IN ('pending', 'processing')
		  )
	`

	result, err := p.db.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("prune queue: %w", err)
	}
	return result.RowsAffected(), nil
}
