package processor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarbridgetech/AlertHub/internal/condition"
	"github.com/omarbridgetech/AlertHub/internal/message"
	"github.com/omarbridgetech/AlertHub/internal/notify"
	"github.com/omarbridgetech/AlertHub/internal/queue"
)

type stubMetrics map[condition.MetricRef]condition.Metric

func (s stubMetrics) GetMetric(ctx context.Context, id condition.MetricRef) (condition.Metric, error) {
	m, ok := s[id]
	if !ok {
		return condition.Metric{}, condition.ErrMetricNotFound
	}
	return m, nil
}

type oracleCall struct {
	OwnerID   string
	Label     string
	Hours     int
	Threshold int
}

type stubOracle struct {
	mu     sync.Mutex
	answer map[string]bool
	err    error
	calls  []oracleCall
}

func (s *stubOracle) CheckThreshold(ctx context.Context, ownerID, label string, hours, threshold int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, oracleCall{ownerID, label, hours, threshold})
	if s.err != nil {
		return false, s.err
	}
	return s.answer[label], nil
}

// memoryBus keeps published envelopes per topic and applies dedup keys the way
// the database does.
type memoryBus struct {
	mu      sync.Mutex
	dedup   map[string]bool
	byTopic map[string][]queue.Envelope
	err     error
}

func newMemoryBus() *memoryBus {
	return &memoryBus{dedup: map[string]bool{}, byTopic: map[string][]queue.Envelope{}}
}

func (b *memoryBus) Publish(ctx context.Context, env queue.Envelope) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return false, b.err
	}
	key := env.Topic + "|" + env.DedupKey
	if env.DedupKey != "" && b.dedup[key] {
		return false, nil
	}
	b.dedup[key] = true
	b.byTopic[env.Topic] = append(b.byTopic[env.Topic], env)
	return true, nil
}

func (b *memoryBus) topic(name string) []queue.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]queue.Envelope(nil), b.byTopic[name]...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func executionDelivery(t *testing.T, msg message.ExecutionMessage) queue.Delivery {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	return queue.Delivery{
		ID:       uuid.New(),
		Topic:    "alert.actions",
		Key:      msg.ActionID.String(),
		DedupKey: msg.DedupKey(),
		Payload:  payload,
		Attempt:  1,
	}
}

func newHandler(metrics condition.MetricLookup, oracle condition.ThresholdOracle, bus Publisher) *Handler {
	evaluator := condition.NewEvaluator(metrics, oracle, time.Second)
	return NewHandler(evaluator, notify.NewRouter("email", "sms"), bus, nil, discardLogger())
}

func sampleMessage(channel, cond string) message.ExecutionMessage {
	return message.ExecutionMessage{
		ActionID:        uuid.New(),
		OwnerID:         "owner-1",
		Channel:         channel,
		Destination:     "ops@example.com",
		MessageTemplate: "Too many bugs",
		Condition:       cond,
		TriggeredAt:     time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestHandler_Handle(t *testing.T) {
	metrics := stubMetrics{
		"m1": {ID: "m1", Label: "bug", ThresholdCount: 5, TimeFrameHours: 12},
		"m2": {ID: "m2", Label: "question", ThresholdCount: 2, TimeFrameHours: 1},
	}

	tests := []struct {
		name          string
		msg           message.ExecutionMessage
		answers       map[string]bool
		oracleErr     error
		wantTopic     string
		wantErr       bool
		wantPermanent bool
	}{
		{
			name:      "satisfied email action routes to email",
			msg:       sampleMessage("EMAIL", `[["m1"]]`),
			answers:   map[string]bool{"bug": true},
			wantTopic: "email",
		},
		{
			name:      "satisfied sms action routes to sms",
			msg:       sampleMessage("SMS", `[["m2"],["m1"]]`),
			answers:   map[string]bool{"bug": true},
			wantTopic: "sms",
		},
		{
			name:    "unsatisfied condition routes nothing",
			msg:     sampleMessage("EMAIL", `[["m1","m2"]]`),
			answers: map[string]bool{"bug": false, "question": true},
		},
		{
			name:          "malformed condition is permanent",
			msg:           sampleMessage("EMAIL", `not-json`),
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:          "unknown metric is permanent",
			msg:           sampleMessage("EMAIL", `[["missing"]]`),
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:      "oracle outage is retried",
			msg:       sampleMessage("EMAIL", `[["m1"]]`),
			oracleErr: errors.New("loader unavailable"),
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newMemoryBus()
			h := newHandler(metrics, &stubOracle{answer: tt.answers, err: tt.oracleErr}, bus)

			err := h.Handle(context.Background(), executionDelivery(t, tt.msg))

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantPermanent, queue.IsPermanent(err))
				assert.Empty(t, bus.topic("email"))
				assert.Empty(t, bus.topic("sms"))
				return
			}
			require.NoError(t, err)

			if tt.wantTopic == "" {
				assert.Empty(t, bus.topic("email"))
				assert.Empty(t, bus.topic("sms"))
				return
			}

			envs := bus.topic(tt.wantTopic)
			require.Len(t, envs, 1)
			assert.Equal(t, tt.msg.ActionID.String(), envs[0].Key)
			assert.Equal(t, tt.msg.DedupKey(), envs[0].DedupKey)

			n, err := message.DecodeNotification(envs[0].Payload)
			require.NoError(t, err)
			assert.Equal(t, tt.msg.Destination, n.Destination)
			assert.Equal(t, tt.msg.MessageTemplate, n.Body)
		})
	}
}

func TestHandler_UndecodablePayloadIsPermanent(t *testing.T) {
	h := newHandler(stubMetrics{}, &stubOracle{}, newMemoryBus())

	err := h.Handle(context.Background(), queue.Delivery{Payload: []byte(`{{`)})
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}

func TestHandler_RedeliveryDoesNotEnqueueTwice(t *testing.T) {
	metrics := stubMetrics{"m1": {ID: "m1", Label: "bug", ThresholdCount: 5, TimeFrameHours: 12}}
	bus := newMemoryBus()
	h := newHandler(metrics, &stubOracle{answer: map[string]bool{"bug": true}}, bus)

	d := executionDelivery(t, sampleMessage("EMAIL", `[["m1"]]`))
	require.NoError(t, h.Handle(context.Background(), d))
	d.Attempt = 2
	require.NoError(t, h.Handle(context.Background(), d))

	assert.Len(t, bus.topic("email"), 1)
}

func TestHandler_PublishFailureIsRetried(t *testing.T) {
	metrics := stubMetrics{"m1": {ID: "m1", Label: "bug", ThresholdCount: 5, TimeFrameHours: 12}}
	bus := newMemoryBus()
	bus.err = errors.New("database is shutting down")
	h := newHandler(metrics, &stubOracle{answer: map[string]bool{"bug": true}}, bus)

	err := h.Handle(context.Background(), executionDelivery(t, sampleMessage("SMS", `[["m1"]]`)))
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))
}
