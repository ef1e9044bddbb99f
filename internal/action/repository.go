package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/omarbridgetech/AlertHub/internal/database"
	"github.com/omarbridgetech/AlertHub/internal/domain"
)

const actionColumns = `
	id, owner_id, name, channel, destination, message_template, condition,
	to_char(schedule_time, 'HH24:MI:SS'), schedule_day, enabled, deleted,
	last_run, last_update, created_at
`

type Repository struct {
	db database.DB
}

func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, ownerID string, spec Spec) (*Action, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("owner id is required"))
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO actions (
			id, owner_id, name, channel, destination, message_template, condition,
			schedule_time, schedule_day
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::time, $9)
		RETURNING ` + actionColumns

	a, err := scanAction(r.db.QueryRow(ctx, query,
		uuid.New(), ownerID, spec.Name, string(spec.Channel), spec.Destination,
		spec.MessageTemplate, spec.Condition, spec.ScheduleTime.String(), string(spec.ScheduleDay),
	))
	if err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}

	return a, nil
}

// Update replaces the user supplied fields. Owner, creation time, enabled,
// deleted and last run are left alone.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, spec Spec) (*Action, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	query := `
		UPDATE actions
		SET name = $2, channel = $3, destination = $4, message_template = $5,
		    condition = $6, schedule_time = $7::time, schedule_day = $8,
		    last_update = NOW()
		WHERE id = $1 AND deleted = FALSE
		RETURNING ` + actionColumns

	a, err := scanAction(r.db.QueryRow(ctx, query,
		id, spec.Name, string(spec.Channel), spec.Destination, spec.MessageTemplate,
		spec.Condition, spec.ScheduleTime.String(), string(spec.ScheduleDay),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrActionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update action: %w", err)
	}

	return a, nil
}

func (r *Repository) Enable(ctx context.Context, id uuid.UUID) error {
	return r.setEnabled(ctx, id, true)
}

func (r *Repository) Disable(ctx context.Context, id uuid.UUID) error {
	return r.setEnabled(ctx, id, false)
}

func (r *Repository) setEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `UPDATE actions SET enabled = $2, last_update = NOW() WHERE id = $1 AND deleted = FALSE`

	result, err := r.db.Exec(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("set action enabled: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrActionNotFound
	}

	return nil
}

// SoftDelete marks the action deleted. Deleting it again is a no-op.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE actions SET deleted = TRUE, last_update = NOW() WHERE id = $1 AND deleted = FALSE`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}

	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM actions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	if !exists {
		return domain.ErrActionNotFound
	}

	return nil
}

// GetByID returns deleted actions too.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE id = $1`

	a, err := scanAction(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrActionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}

	return a, nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]*Action, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM actions
		WHERE owner_id = $1 AND deleted = FALSE
		ORDER BY created_at, id
	`

	actions, err := r.list(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list actions by owner: %w", err)
	}
	return actions, nil
}

func (r *Repository) ListEligible(ctx context.Context) ([]*Action, error) {
	query := `
		SELECT ` + actionColumns + `
		FROM actions
		WHERE enabled = TRUE AND deleted = FALSE
		ORDER BY created_at, id
	`

	actions, err := r.list(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list eligible actions: %w", err)
	}
	return actions, nil
}

// RecordRun stores at as the last run if the action is still eligible and has
// not already run at or after at. It reports whether the row changed.
func (r *Repository) RecordRun(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE actions
		SET last_run = $2, last_update = NOW()
		WHERE id = $1
		  AND enabled = TRUE AND deleted = FALSE
		  AND (last_run IS NULL OR last_run < $2)
	`

	result, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("record action run: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*Action, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, a)
	}

	return actions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAction(row rowScanner) (*Action, error) {
	var a Action
	var channel, scheduleTime, scheduleDay string

	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Name, &channel, &a.Destination, &a.MessageTemplate,
		&a.Condition, &scheduleTime, &scheduleDay, &a.Enabled, &a.Deleted,
		&a.LastRun, &a.LastUpdate, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Channel = Channel(channel)
	a.ScheduleDay = ScheduleDay(scheduleDay)
	if a.ScheduleTime, err = ParseScheduleTime(scheduleTime); err != nil {
		return nil, err
	}

	return &a, nil
}
