package action

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/omarbridgetech/AlertHub/internal/message"
	"github.com/omarbridgetech/AlertHub/internal/queue"
	"github.com/omarbridgetech/AlertHub/internal/telemetry"
)

// Store is the part of Repository the detector needs.
type Store interface {
	ListEligible(ctx context.Context) ([]*Action, error)
	RecordRun(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// TickClaimer grants a minute to a single replica.
type TickClaimer interface {
	Claim(ctx context.Context, bucket time.Time) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, env queue.Envelope) (bool, error)
}

type DetectorConfig struct {
	Topic    string
	Interval time.Duration
	Location *time.Location
	Clock    func() time.Time
}

// TickResult summarizes one tick.
type TickResult struct {
	At        time.Time
	Skipped   bool
	Due       int
	Published int
	Duplicate int
	Failed    int
}

type Detector struct {
	store     Store
	claimer   TickClaimer
	publisher Publisher
	topic     string
	interval  time.Duration
	location  *time.Location
	clock     func() time.Time
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

func NewDetector(store Store, claimer TickClaimer, publisher Publisher, cfg DetectorConfig, metrics *telemetry.Metrics, logger *slog.Logger) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Detector{
		store:     store,
		claimer:   claimer,
		publisher: publisher,
		topic:     cfg.Topic,
		interval:  cfg.Interval,
		location:  cfg.Location,
		clock:     cfg.Clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run ticks every interval until ctx is done. The first tick is aligned to
// the next interval boundary. Ticks that fail are not made up.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("action detector started",
		"interval", d.interval,
		"timezone", d.location.String(),
		"topic", d.topic,
	)

	align := time.NewTimer(d.untilNextBoundary())
	defer align.Stop()

	select {
	case <-ctx.Done():
		d.logger.Info("action detector stopped")
		return nil
	case <-align.C:
		d.tick(ctx)
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("action detector stopped")
			return nil
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Detector) tick(ctx context.Context) {
	if _, err := d.Tick(ctx, d.clock()); err != nil {
		d.logger.Error("scheduler tick failed", "error", err)
	}
}

// untilNextBoundary lands a second past the boundary so clock skew between
// replicas does not put a tick in the previous minute.
func (d *Detector) untilNextBoundary() time.Duration {
	now := d.clock()
	next := now.Truncate(d.interval).Add(d.interval + time.Second)
	return next.Sub(now)
}

// Tick fires every eligible action due in the minute containing at.
func (d *Detector) Tick(ctx context.Context, at time.Time) (TickResult, error) {
	start := time.Now()
	now := at.In(d.location).Truncate(time.Minute)
	res := TickResult{At: now}

	if d.claimer != nil {
		claimed, err := d.claimer.Claim(ctx, now)
		if err != nil {
			d.metrics.Tick("failed", time.Since(start))
			return res, fmt.Errorf("claim tick: %w", err)
		}
		if !claimed {
			res.Skipped = true
			d.metrics.Tick("skipped", time.Since(start))
			d.logger.Debug("tick claimed by another replica", "at", now)
			return res, nil
		}
	}

	actions, err := d.store.ListEligible(ctx)
	if err != nil {
		d.metrics.Tick("failed", time.Since(start))
		return res, fmt.Errorf("list eligible actions: %w", err)
	}

	for _, a := range actions {
		if !IsDue(a, now) {
			continue
		}
		res.Due++

		published, err := d.fire(ctx, a, now)
		if err != nil {
			res.Failed++
			d.metrics.PublishFailed()
			d.logger.Error("failed to dispatch action",
				"action_id", a.ID,
				"owner_id", a.OwnerID,
				"error", err,
			)
			continue
		}

		if published {
			res.Published++
			d.metrics.ActionFired()
		} else {
			res.Duplicate++
		}
	}

	d.metrics.Tick("completed", time.Since(start))
	d.logger.Info("scheduler tick completed",
		"at", now,
		"eligible", len(actions),
		"due", res.Due,
		"published", res.Published,
		"duplicate", res.Duplicate,
		"failed", res.Failed,
	)

	return res, nil
}

// fire publishes the execution message and records the run. A duplicate
// publish still records the run so last_run reflects the firing.
func (d *Detector) fire(ctx context.Context, a *Action, now time.Time) (bool, error) {
	msg := a.ExecutionMessage(now)

	payload, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("marshal execution message: %w", err)
	}

	published, err := d.publisher.Publish(ctx, queue.Envelope{
		Topic:    d.topic,
		Key:      a.ID.String(),
		DedupKey: message.DedupKey(a.ID, now),
		Payload:  payload,
	})
	if err != nil {
		return false, err
	}

	recorded, err := d.store.RecordRun(ctx, a.ID, now)
	if err != nil {
		// Already published; the dedup key absorbs a second publish this minute.
		d.logger.Warn("failed to record action run", "action_id", a.ID, "error", err)
	} else if !recorded {
		d.logger.Debug("action run already recorded", "action_id", a.ID, "at", now)
	}

	return published, nil
}
