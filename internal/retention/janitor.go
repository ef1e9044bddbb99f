// Package retention periodically deletes settled queue messages and old
// scheduler tick claims.
package retention

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes rows created before a cutoff and reports how many went.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type PrunerFunc func(ctx context.Context, before time.Time) (int64, error)

func (f PrunerFunc) Prune(ctx context.Context, before time.Time) (int64, error) {
	return f(ctx, before)
}

// Target is one table kept to a retention window.
type Target struct {
	Name   string
	Pruner Pruner
	Keep   time.Duration
}

// Janitor runs every target on a fixed interval.
type Janitor struct {
	targets  []Target
	interval time.Duration
	clock    func() time.Time
	logger   *slog.Logger
}

func NewJanitor(interval time.Duration, logger *slog.Logger, targets ...Target) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}

	return &Janitor{
		targets:  targets,
		interval: interval,
		clock:    time.Now,
		logger:   logger,
	}
}

// Run sweeps once immediately, then on every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("retention janitor started", "interval", j.interval, "targets", len(j.targets))
	j.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("retention janitor stopped")
			return nil
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep prunes every target once. A failing target does not stop the others.
func (j *Janitor) Sweep(ctx context.Context) map[string]int64 {
	now := j.clock()
	deleted := make(map[string]int64, len(j.targets))

	for _, t := range j.targets {
		n, err := t.Pruner.Prune(ctx, now.Add(-t.Keep))
		if err != nil {
			j.logger.Error("retention prune failed", "target", t.Name, "error", err)
			continue
		}
		deleted[t.Name] = n
		if n > 0 {
			j.logger.Info("pruned expired rows", "target", t.Name, "count", n)
		}
	}

	return deleted
}
