// Package action stores scheduled actions and detects which of them are due.
package action

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omarbridgetech/AlertHub/internal/condition"
	"github.com/omarbridgetech/AlertHub/internal/domain"
	"github.com/omarbridgetech/AlertHub/internal/message"
)

type Channel string

const (
	ChannelEmail Channel = message.ChannelEmail
	ChannelSMS   Channel = message.ChannelSMS
)

func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToUpper(strings.TrimSpace(s))) {
	case ChannelEmail:
		return ChannelEmail, nil
	case ChannelSMS:
		return ChannelSMS, nil
	default:
		return "", fmt.Errorf("unknown channel %q", s)
	}
}

// ScheduleDay is a weekday name or All, which matches every day.
type ScheduleDay string

const (
	Monday    ScheduleDay = "Monday"
	Tuesday   ScheduleDay = "Tuesday"
	Wednesday ScheduleDay = "Wednesday"
	Thursday  ScheduleDay = "Thursday"
	Friday    ScheduleDay = "Friday"
	Saturday  ScheduleDay = "Saturday"
	Sunday    ScheduleDay = "Sunday"
	All       ScheduleDay = "All"
)

var ScheduleDays = []ScheduleDay{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday, All}

func ParseScheduleDay(s string) (ScheduleDay, error) {
	s = strings.TrimSpace(s)
	for _, d := range ScheduleDays {
		if strings.EqualFold(s, string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown schedule day %q", s)
}

// ScheduleTime is a time of day in the scheduler's reference timezone.
// Seconds are kept but never take part in matching.
type ScheduleTime struct {
	Hour   int
	Minute int
	Second int
}

// ParseScheduleTime accepts HH:MM or HH:MM:SS.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return ScheduleTime{}, fmt.Errorf("invalid schedule time %q", s)
	}

	limits := []int{23, 59, 59}
	values := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return ScheduleTime{}, fmt.Errorf("invalid schedule time %q", s)
		}
		values[i] = n
	}

	return ScheduleTime{Hour: values[0], Minute: values[1], Second: values[2]}, nil
}

func (t ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

type Action struct {
	ID              uuid.UUID    `json:"id"`
	OwnerID         string       `json:"owner_id"`
	Name            string       `json:"name"`
	Channel         Channel      `json:"channel"`
	Destination     string       `json:"destination"`
	MessageTemplate string       `json:"message_template"`
	Condition       string       `json:"condition"`
	ScheduleTime    ScheduleTime `json:"schedule_time"`
	ScheduleDay     ScheduleDay  `json:"schedule_day"`
	Enabled         bool         `json:"enabled"`
	Deleted         bool         `json:"deleted"`
	LastRun         *time.Time   `json:"last_run,omitempty"`
	LastUpdate      time.Time    `json:"last_update"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Eligible reports whether the detector may fire the action.
func (a *Action) Eligible() bool {
	return a.Enabled && !a.Deleted
}

// ExecutionMessage builds the dispatch payload for a firing at triggeredAt.
func (a *Action) ExecutionMessage(triggeredAt time.Time) message.ExecutionMessage {
	return message.ExecutionMessage{
		ActionID:        a.ID,
		OwnerID:         a.OwnerID,
		Channel:         string(a.Channel),
		Destination:     a.Destination,
		MessageTemplate: a.MessageTemplate,
		Condition:       a.Condition,
		TriggeredAt:     triggeredAt,
	}
}

// Spec holds the user supplied fields of an action.
type Spec struct {
	Name            string
	Channel         Channel
	Destination     string
	MessageTemplate string
	Condition       string
	ScheduleTime    ScheduleTime
	ScheduleDay     ScheduleDay
}

// Validate canonicalizes channel and day names in place. Text fields are kept
// as given. Errors are domain.ErrValidationFailed or domain.ErrInvalidCondition.
func (s *Spec) Validate() error {
	var errs []error

	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}

	if strings.TrimSpace(s.Destination) == "" {
		errs = append(errs, errors.New("destination is required"))
	}

	if strings.TrimSpace(s.MessageTemplate) == "" {
		errs = append(errs, errors.New("message template is required"))
	}

	channel, err := ParseChannel(string(s.Channel))
	if err != nil {
		errs = append(errs, err)
	}
	s.Channel = channel

	day, err := ParseScheduleDay(string(s.ScheduleDay))
	if err != nil {
		errs = append(errs, err)
	}
	s.ScheduleDay = day

	if _, err := ParseScheduleTime(s.ScheduleTime.String()); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return domain.ErrValidationFailed.WithError(errors.Join(errs...))
	}

	if _, err := condition.Parse(s.Condition); err != nil {
		return domain.ErrInvalidCondition.WithError(err)
	}

	return nil
}
