package action

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarbridgetech/AlertHub/internal/condition"
	"github.com/omarbridgetech/AlertHub/internal/domain"
)

func TestParseScheduleTime(t *testing.T) {
	tests := []struct {
		in      string
		want    ScheduleTime
		wantErr bool
	}{
		{in: "09:15", want: ScheduleTime{Hour: 9, Minute: 15}},
		{in: "09:15:45", want: ScheduleTime{Hour: 9, Minute: 15, Second: 45}},
		{in: "00:00:00", want: ScheduleTime{}},
		{in: "23:59:59", want: ScheduleTime{Hour: 23, Minute: 59, Second: 59}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "9", wantErr: true},
		{in: "aa:bb", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScheduleTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "09:05:07", ScheduleTime{Hour: 9, Minute: 5, Second: 7}.String())
}

func TestParseScheduleDay(t *testing.T) {
	for _, d := range ScheduleDays {
		got, err := ParseScheduleDay(string(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}

	got, err := ParseScheduleDay("  friday ")
	require.NoError(t, err)
	assert.Equal(t, Friday, got)

	got, err = ParseScheduleDay("ALL")
	require.NoError(t, err)
	assert.Equal(t, All, got)

	_, err = ParseScheduleDay("Weekend")
	assert.Error(t, err)
}

func TestParseChannel(t *testing.T) {
	got, err := ParseChannel("email")
	require.NoError(t, err)
	assert.Equal(t, ChannelEmail, got)

	got, err = ParseChannel("SMS")
	require.NoError(t, err)
	assert.Equal(t, ChannelSMS, got)

	_, err = ParseChannel("fax")
	assert.Error(t, err)
}

func validSpec() Spec {
	return Spec{
		Name:            "Bug spike",
		Channel:         ChannelEmail,
		Destination:     "ops@example.com",
		MessageTemplate: "Bug reports are piling up",
		Condition:       `[["m1","m2"],["m3"]]`,
		ScheduleTime:    ScheduleTime{Hour: 10},
		ScheduleDay:     All,
	}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Spec)
		wantErr error
	}{
		{name: "valid", mutate: func(s *Spec) {}},
		{name: "lower case enums are canonicalized", mutate: func(s *Spec) {
			s.Channel = "sms"
			s.ScheduleDay = "monday"
		}},
		{name: "blank name", mutate: func(s *Spec) { s.Name = "  " }, wantErr: domain.ErrValidationFailed},
		{name: "blank destination", mutate: func(s *Spec) { s.Destination = "" }, wantErr: domain.ErrValidationFailed},
		{name: "blank template", mutate: func(s *Spec) { s.MessageTemplate = "" }, wantErr: domain.ErrValidationFailed},
		{name: "unknown channel", mutate: func(s *Spec) { s.Channel = "PAGER" }, wantErr: domain.ErrValidationFailed},
		{name: "unknown day", mutate: func(s *Spec) { s.ScheduleDay = "Someday" }, wantErr: domain.ErrValidationFailed},
		{name: "hour out of range", mutate: func(s *Spec) { s.ScheduleTime.Hour = 25 }, wantErr: domain.ErrValidationFailed},
		{name: "malformed condition", mutate: func(s *Spec) { s.Condition = "not-json" }, wantErr: domain.ErrInvalidCondition},
		{name: "empty condition", mutate: func(s *Spec) { s.Condition = "[]" }, wantErr: domain.ErrInvalidCondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSpec()
			tt.mutate(&s)

			err := s.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSpec_ValidateWrapsParseError(t *testing.T) {
	s := validSpec()
	s.Condition = `[["m1"],[]]`

	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, condition.ErrMalformed))
}

func TestAction_ExecutionMessage(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	a := &Action{
		ID:              uuid.New(),
		OwnerID:         "owner-1",
		Channel:         ChannelSMS,
		Destination:     "+972500000000",
		MessageTemplate: "hello",
		Condition:       `[["m1"]]`,
	}

	msg := a.ExecutionMessage(at)
	assert.Equal(t, a.ID, msg.ActionID)
	assert.Equal(t, "owner-1", msg.OwnerID)
	assert.Equal(t, "SMS", msg.Channel)
	assert.Equal(t, "+972500000000", msg.Destination)
	assert.Equal(t, "hello", msg.MessageTemplate)
	assert.Equal(t, `[["m1"]]`, msg.Condition)
	assert.Equal(t, at, msg.TriggeredAt)
}
