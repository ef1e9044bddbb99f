package processor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarbridgetech/AlertHub/internal/action"
	"github.com/omarbridgetech/AlertHub/internal/condition"
	"github.com/omarbridgetech/AlertHub/internal/message"
	"github.com/omarbridgetech/AlertHub/internal/queue"
)

type listStore struct {
	actions []*action.Action
}

func (s *listStore) ListEligible(ctx context.Context) ([]*action.Action, error) {
	return s.actions, nil
}

func (s *listStore) RecordRun(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return true, nil
}

// runPipeline ticks the detector at 10:00 and feeds every dispatched message
// to the processor, returning the handler errors.
func runPipeline(t *testing.T, a *action.Action, oracle *stubOracle, bus *memoryBus) []error {
	t.Helper()

	detector := action.NewDetector(&listStore{actions: []*action.Action{a}}, nil, bus, action.DetectorConfig{
		Topic: "alert.actions",
	}, nil, discardLogger())

	_, err := detector.Tick(context.Background(), time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	metrics := stubMetrics{"m1": {ID: "m1", Label: "bug", ThresholdCount: 5, TimeFrameHours: 12}}
	h := newHandler(metrics, oracle, bus)

	var errs []error
	for _, env := range bus.topic("alert.actions") {
		errs = append(errs, h.Handle(context.Background(), queue.Delivery{
			ID:       uuid.New(),
			Topic:    env.Topic,
			Key:      env.Key,
			DedupKey: env.DedupKey,
			Payload:  env.Payload,
			Attempt:  1,
		}))
	}
	return errs
}

func scheduledAction(channel action.Channel, cond string) *action.Action {
	return &action.Action{
		ID:              uuid.New(),
		OwnerID:         "owner-7",
		Name:            "bugs at ten",
		Channel:         channel,
		Destination:     "+972500000000",
		MessageTemplate: "Bug threshold reached",
		Condition:       cond,
		ScheduleTime:    action.ScheduleTime{Hour: 10},
		ScheduleDay:     action.All,
		Enabled:         true,
	}
}

func TestPipeline_ConditionTrueRoutesOneNotification(t *testing.T) {
	for _, tc := range []struct {
		channel    action.Channel
		wantTopic  string
		otherTopic string
	}{
		{action.ChannelEmail, "email", "sms"},
		{action.ChannelSMS, "sms", "email"},
	} {
		t.Run(string(tc.channel), func(t *testing.T) {
			a := scheduledAction(tc.channel, `[["m1"]]`)
			oracle := &stubOracle{answer: map[string]bool{"bug": true}}
			bus := newMemoryBus()

			errs := runPipeline(t, a, oracle, bus)

			require.Len(t, bus.topic("alert.actions"), 1, "exactly one execution message")
			for _, err := range errs {
				require.NoError(t, err)
			}

			require.Len(t, oracle.calls, 1)
			assert.Equal(t, oracleCall{OwnerID: "owner-7", Label: "bug", Hours: 12, Threshold: 5}, oracle.calls[0])

			notifications := bus.topic(tc.wantTopic)
			require.Len(t, notifications, 1, "exactly one notification")
			assert.Empty(t, bus.topic(tc.otherTopic))

			n, err := message.DecodeNotification(notifications[0].Payload)
			require.NoError(t, err)
			assert.Equal(t, message.NotificationMessage{Destination: a.Destination, Body: a.MessageTemplate}, n)
		})
	}
}

func TestPipeline_ConditionFalseRoutesNothing(t *testing.T) {
	a := scheduledAction(action.ChannelEmail, `[["m1"]]`)
	oracle := &stubOracle{answer: map[string]bool{"bug": false}}
	bus := newMemoryBus()

	errs := runPipeline(t, a, oracle, bus)

	require.Len(t, bus.topic("alert.actions"), 1, "the execution message is still dispatched")
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Empty(t, bus.topic("email"))
	assert.Empty(t, bus.topic("sms"))
}

func TestPipeline_MalformedConditionIsNotRetried(t *testing.T) {
	a := scheduledAction(action.ChannelEmail, "not-json")
	oracle := &stubOracle{answer: map[string]bool{"bug": true}}
	bus := newMemoryBus()

	errs := runPipeline(t, a, oracle, bus)

	require.Len(t, errs, 1)
	require.Error(t, errs[0])
	assert.True(t, queue.IsPermanent(errs[0]), "the queue dead-letters instead of retrying")
	assert.ErrorIs(t, errs[0], condition.ErrMalformed)
	assert.Empty(t, oracle.calls)
	assert.Empty(t, bus.topic("email"))
	assert.Empty(t, bus.topic("sms"))
}
