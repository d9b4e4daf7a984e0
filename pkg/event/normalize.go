package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/booking-feed/internal/model"
	apperrors "github.com/jwalitptl/booking-feed/pkg/errors"
	"github.com/jwalitptl/booking-feed/pkg/validator"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
}

// Decoder normalizes raw inbound payloads into notifications. Live events and
// backlog replay go through the same Decoder.
type Decoder struct {
	validate validator.Validator
}

func NewDecoder() *Decoder {
	return &Decoder{validate: validator.New()}
}

// Decode returns a MalformedEvent AppError for anything that cannot be
// normalized; callers drop those payloads.
func (d *Decoder) Decode(raw []byte) (model.Notification, error) {
	body, err := unwrap(raw)
	if err != nil {
		return model.Notification{}, apperrors.MalformedEvent(err)
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return model.Notification{}, apperrors.MalformedEvent(fmt.Errorf("decode payload: %w", err))
	}
	if err := d.validate.Validate(&p); err != nil {
		return model.Notification{}, apperrors.MalformedEvent(err)
	}

	n, err := toNotification(&p)
	if err != nil {
		return model.Notification{}, apperrors.MalformedEvent(fmt.Errorf("event %s: %w", p.ID, err))
	}
	return n, nil
}

func toNotification(p *Payload) (model.Notification, error) {
	createdAt, err := parseTime(p.CreatedAt)
	if err != nil {
		return model.Notification{}, fmt.Errorf("createdAt: %w", err)
	}

	n := model.Notification{
		ID:            string(p.ID),
		Type:          model.NotificationType(p.Type),
		CustomerID:    string(p.CustomerID),
		CustomerName:  p.CustomerName,
		CustomerPhone: nonEmpty(p.CustomerPhone),
		CustomerCode:  nonEmpty(p.CustomerCode),
		BookingTime:   p.BookingTime,
		Duration:      p.Duration,
		CreatedAt:     createdAt,
		Metadata: model.Metadata{
			BookingID:      string(p.Metadata.BookingID),
			FormattedDate:  p.Metadata.FormattedDate,
			NumberOfPeople: int(p.Metadata.NumberOfPeople),
			BookingType:    p.Metadata.BookingType,
		},
	}
	if p.Bay != nil {
		bay := string(*p.Bay)
		n.Bay = nonEmpty(&bay)
	}

	if n.Type == model.NotificationTypeModified {
		changes, err := ExtractChanges(p.Metadata.Changes)
		if err != nil {
			return model.Notification{}, err
		}
		n.Metadata.Changes = changes
	}

	if p.Read != nil && *p.Read {
		if p.AcknowledgedAt == nil {
			return model.Notification{}, fmt.Errorf("read without acknowledgedAt")
		}
		at, err := parseTime(*p.AcknowledgedAt)
		if err != nil {
			return model.Notification{}, fmt.Errorf("acknowledgedAt: %w", err)
		}
		n.Read = true
		n.AcknowledgedAt = &at
		n.AcknowledgedBy = nonEmpty(p.AcknowledgedBy)
		n.AcknowledgedByDisplayName = nonEmpty(p.AcknowledgedByDisplayName)
	}

	if err := n.Validate(); err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

// unwrap strips the broker envelope if there is one. The envelope payload may
// itself be a JSON-encoded string.
func unwrap(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("payload must be a JSON object")
	}

	var probe struct {
		ID      json.RawMessage `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if len(probe.ID) > 0 || len(probe.Payload) == 0 {
		return raw, nil
	}

	inner := bytes.TrimSpace(probe.Payload)
	if len(inner) > 0 && inner[0] == '"' {
		var s string
		if err := json.Unmarshal(inner, &s); err != nil {
			return nil, fmt.Errorf("decode envelope payload: %w", err)
		}
		inner = []byte(s)
	}
	return unwrap(inner)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := *s
	return &v
}
