package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omarbridgetech/AlertHub/internal/message"
	"github.com/omarbridgetech/AlertHub/internal/queue"
	"github.com/omarbridgetech/AlertHub/internal/telemetry"
)

const (
	EmailConsumerGroup = "email-consumer-group"
	SMSConsumerGroup   = "sms-consumer-group"
)

// ErrNotConfigured is returned when a channel has no sender.
var ErrNotConfigured = errors.New("delivery channel not configured")

// ConsumerGroup returns the group a channel's delivery worker reads as.
func ConsumerGroup(channel string) string {
	if channel == message.ChannelEmail {
		return EmailConsumerGroup
	}
	return SMSConsumerGroup
}

// Handler sends every notification of one channel topic through a Sender.
type Handler struct {
	channel string
	sender  Sender
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewHandler builds the handler for channel. A nil sender dead-letters every
// notification with ErrNotConfigured.
func NewHandler(channel string, sender Sender, metrics *telemetry.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		channel: channel,
		sender:  sender,
		metrics: metrics,
		logger:  logger.With("channel", channel),
	}
}

func (h *Handler) Handle(ctx context.Context, d queue.Delivery) error {
	msg, err := message.DecodeNotification(d.Payload)
	if err != nil {
		h.metrics.Delivery(h.channel, "undecodable")
		return queue.Permanent(err)
	}

	if h.sender == nil {
		h.metrics.Delivery(h.channel, "unconfigured")
		h.logger.Error("no sender configured, dropping notification", "delivery_id", d.ID)
		return queue.Permanent(ErrNotConfigured)
	}

	if err := h.sender.Send(ctx, msg.Destination, msg.Body); err != nil {
		if errors.Is(err, ErrInvalidURL) {
			h.metrics.Delivery(h.channel, "invalid")
			h.logger.Error("sender misconfigured", "delivery_id", d.ID, "error", err)
			return queue.Permanent(err)
		}
		h.metrics.Delivery(h.channel, "failed")
		h.logger.Warn("notification send failed",
			"delivery_id", d.ID,
			"attempt", d.Attempt,
			"error", err,
		)
		return fmt.Errorf("deliver %s: %w", h.channel, err)
	}

	h.metrics.Delivery(h.channel, "sent")
	h.logger.Info("notification sent", "delivery_id", d.ID, "attempt", d.Attempt)
	return nil
}
