package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinuteLock_Claim(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 42, 500, time.UTC)
	bucket := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		mockSetup func(mock pgxmock.PgxPoolIface)
		want      bool
		wantErr   bool
	}{
		{
			name: "first claim wins",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO scheduler_ticks").
					WithArgs(bucket, "replica-a").
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
			want: true,
		},
		{
			name: "second claim of same bucket loses",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO scheduler_ticks").
					WithArgs(bucket, "replica-a").
					WillReturnResult(pgxmock.NewResult("INSERT", 0))
			},
			want: false,
		},
		{
			name: "database error",
			mockSetup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec("INSERT INTO scheduler_ticks").
					WithArgs(bucket, "replica-a").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			tt.mockSetup(mock)

			got, err := NewMinuteLock(mock, "replica-a").Claim(context.Background(), at)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "claim tick")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestMinuteLock_Prune(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM scheduler_ticks").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 1440))

	l := NewMinuteLock(mock, "replica-a")
	n, err := l.Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1440), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}
