// Package lock coordinates scheduler replicas sharing one database.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/omarbridgetech/AlertHub/internal/database"
)

// MinuteLock hands each minute bucket to exactly one replica.
type MinuteLock struct {
	db    database.DB
	owner string
}

func NewMinuteLock(db database.DB, owner string) *MinuteLock {
	return &MinuteLock{
		db:    db,
		owner: owner,
	}
}

// Claim reports whether this replica won the bucket. bucket is truncated to
// the minute.
func (l *MinuteLock) Claim(ctx context.Context, bucket time.Time) (bool, error) {
	query := `
		INSERT INTO scheduler_ticks (bucket, owner)
		VALUES ($1, $2)
		ON CONFLICT (bucket) DO NOTHING
	`

	result, err := l.db.Exec(ctx, query, bucket.Truncate(time.Minute).UTC(), l.owner)
	if err != nil {
		return false, fmt.Errorf("claim tick %s: %w", bucket.Format(time.RFC3339), err)
	}

	return result.RowsAffected() == 1, nil
}

// Prune deletes claims for buckets before olderThan.
func (l *MinuteLock) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := l.db.Exec(ctx, `DELETE FROM scheduler_ticks WHERE bucket < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune ticks: %w", err)
	}
	return result.RowsAffected(), nil
}
