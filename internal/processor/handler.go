// Package processor consumes execution messages, evaluates their conditions
// and publishes the resulting notification.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/omarbridgetech/AlertHub/internal/condition"
	"github.com/omarbridgetech/AlertHub/internal/message"
	"github.com/omarbridgetech/AlertHub/internal/notify"
	"github.com/omarbridgetech/AlertHub/internal/queue"
	"github.com/omarbridgetech/AlertHub/internal/telemetry"
)

// ConsumerGroup is the group the processor reads the dispatch topic as.
const ConsumerGroup = "processor-group"

type Evaluator interface {
	Explain(ctx context.Context, ownerID string, cond condition.Condition) (condition.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, env queue.Envelope) (bool, error)
}

type Handler struct {
	evaluator Evaluator
	router    *notify.Router
	publisher Publisher
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

func NewHandler(evaluator Evaluator, router *notify.Router, publisher Publisher, metrics *telemetry.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		evaluator: evaluator,
		router:    router,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Handle implements queue.Handler. Undecodable payloads, malformed
// conditions and permanent lookup failures are returned as queue.Permanent.
// Transient failures are returned unchanged so the queue retries them.
func (h *Handler) Handle(ctx context.Context, d queue.Delivery) error {
	msg, err := message.DecodeExecution(d.Payload)
	if err != nil {
		h.metrics.Evaluation("undecodable")
		return queue.Permanent(err)
	}

	logger := h.logger.With(
		"action_id", msg.ActionID,
		"owner_id", msg.OwnerID,
		"triggered_at", msg.TriggeredAt,
		"attempt", d.Attempt,
	)

	cond, err := condition.Parse(msg.Condition)
	if err != nil {
		h.metrics.Evaluation("malformed")
		logger.Error("malformed condition", "condition", msg.Condition, "error", err)
		return queue.Permanent(err)
	}

	res, err := h.evaluator.Explain(ctx, msg.OwnerID, cond)
	if err != nil {
		if condition.IsRetryable(err) {
			h.metrics.Evaluation("retryable")
			return fmt.Errorf("evaluate condition: %w", err)
		}
		h.metrics.Evaluation("permanent")
		logger.Error("condition cannot be evaluated", "error", err)
		return queue.Permanent(fmt.Errorf("evaluate condition: %w", err))
	}

	if !res.Satisfied {
		h.metrics.Evaluation("false")
		logger.Info("condition not satisfied", "checked", res.Checked)
		return nil
	}
	h.metrics.Evaluation("true")

	notification, topic := h.router.Route(msg)

	payload, err := json.Marshal(notification)
	if err != nil {
		return queue.Permanent(fmt.Errorf("marshal notification: %w", err))
	}

	published, err := h.publisher.Publish(ctx, queue.Envelope{
		Topic:    topic,
		Key:      msg.ActionID.String(),
		DedupKey: msg.DedupKey(),
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	if !published {
		logger.Info("notification already enqueued", "topic", topic)
		return nil
	}

	h.metrics.NotificationRouted(topic)
	logger.Info("condition satisfied, notification enqueued",
		"topic", topic,
		"group", res.Group,
	)

	return nil
}
