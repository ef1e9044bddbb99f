// Package message holds the payloads exchanged between the scheduler, the
// processor and the delivery consumers.
package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ChannelEmail = "EMAIL"
	ChannelSMS   = "SMS"
)

// ExecutionMessage is published once per tick for every due action.
type ExecutionMessage struct {
	ActionID        uuid.UUID `json:"actionId"`
	OwnerID         string    `json:"ownerId"`
	Channel         string    `json:"channel"`
	Destination     string    `json:"destination"`
	MessageTemplate string    `json:"messageTemplate"`
	Condition       string    `json:"condition"`
	TriggeredAt     time.Time `json:"triggeredAt"`
}

// NotificationMessage carries no reference back to the action that produced it.
type NotificationMessage struct {
	Destination string `json:"destination"`
	Body        string `json:"body"`
}

// DedupKey identifies one firing of an action.
func DedupKey(actionID uuid.UUID, triggeredAt time.Time) string {
	return actionID.String() + "@" + triggeredAt.UTC().Format(time.RFC3339)
}

func (m ExecutionMessage) DedupKey() string {
	return DedupKey(m.ActionID, m.TriggeredAt)
}

func DecodeExecution(payload []byte) (ExecutionMessage, error) {
	var msg ExecutionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ExecutionMessage{}, fmt.Errorf("decode execution message: %w", err)
	}
	if msg.ActionID == uuid.Nil {
		return ExecutionMessage{}, fmt.Errorf("decode execution message: missing actionId")
	}
	return msg, nil
}

func DecodeNotification(payload []byte) (NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return NotificationMessage{}, fmt.Errorf("decode notification message: %w", err)
	}
	if msg.Destination == "" {
		return NotificationMessage{}, fmt.Errorf("decode notification message: missing destination")
	}
	return msg, nil
}
