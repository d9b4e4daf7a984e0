package model

import (
	"errors"
	"fmt"
	"time"
)

type NotificationType string

const (
	NotificationTypeCreated   NotificationType = "created"
	NotificationTypeCancelled NotificationType = "cancelled"
	NotificationTypeModified  NotificationType = "modified"
)

// Valid reports whether t belongs to the closed set of booking lifecycle types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationTypeCreated, NotificationTypeCancelled, NotificationTypeModified:
		return true
	}
	return false
}

// Change is one field-level difference carried by a modified booking.
type Change struct {
	Field string      `json:"field"`
	Old   interface{} `json:"old"`
	New   interface{} `json:"new"`
}

type Metadata struct {
	BookingID      string   `json:"bookingId,omitempty"`
	FormattedDate  string   `json:"formattedDate,omitempty"`
	NumberOfPeople int      `json:"numberOfPeople,omitempty"`
	BookingType    string   `json:"bookingType,omitempty"`
	Changes        []Change `json:"changes,omitempty"`
}

// Notification is one booking lifecycle event plus its acknowledgment state.
type Notification struct {
	ID            string           `json:"id"`
	Type          NotificationType `json:"type"`
	CustomerID    string           `json:"customerId"`
	CustomerName  string           `json:"customerName"`
	CustomerPhone *string          `json:"customerPhone,omitempty"`
	CustomerCode  *string          `json:"customerCode,omitempty"`
	BookingTime   string           `json:"bookingTime"`
	Bay           *string          `json:"bay,omitempty"`
	Duration      *float64         `json:"duration,omitempty"`
	Metadata      Metadata         `json:"metadata"`
	CreatedAt     time.Time        `json:"createdAt"`

	Read                      bool       `json:"read"`
	AcknowledgedAt            *time.Time `json:"acknowledgedAt"`
	AcknowledgedBy            *string    `json:"acknowledgedBy"`
	AcknowledgedByDisplayName *string    `json:"acknowledgedByDisplayName"`
}

var (
	ErrInvalidType       = errors.New("notification type must be one of created, cancelled, modified")
	ErrAckInconsistent   = errors.New("acknowledgment fields must be set iff read is true")
	ErrChangesNotAllowed = errors.New("changes are only allowed on modified notifications")
)

// Validate checks the entity invariants. Required-field checks on inbound
// payloads happen in the wire decoder.
func (n *Notification) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("notification id is required")
	}
	if !n.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, n.Type)
	}
	if n.Read != (n.AcknowledgedAt != nil) {
		return ErrAckInconsistent
	}
	if !n.Read && (n.AcknowledgedBy != nil || n.AcknowledgedByDisplayName != nil) {
		return ErrAckInconsistent
	}
	if n.Type != NotificationTypeModified && len(n.Metadata.Changes) > 0 {
		return ErrChangesNotAllowed
	}
	return nil
}

// Acknowledgment returns the canonical record held by n, or nil while unread.
func (n *Notification) Acknowledgment() *Acknowledgment {
	if !n.Read || n.AcknowledgedAt == nil {
		return nil
	}
	ack := &Acknowledgment{
		ID:             n.ID,
		Read:           true,
		AcknowledgedAt: *n.AcknowledgedAt,
	}
	if n.AcknowledgedBy != nil {
		ack.AcknowledgedBy = *n.AcknowledgedBy
	}
	if n.AcknowledgedByDisplayName != nil {
		ack.AcknowledgedByDisplayName = *n.AcknowledgedByDisplayName
	}
	return ack
}

// Acknowledgment is the server's authoritative record of who confirmed a notification.
type Acknowledgment struct {
	ID                        string    `json:"id"`
	Read                      bool      `json:"read"`
	AcknowledgedAt            time.Time `json:"acknowledgedAt"`
	AcknowledgedBy            string    `json:"acknowledgedBy"`
	AcknowledgedByDisplayName string    `json:"acknowledgedByDisplayName,omitempty"`
}

// Validate rejects records that cannot be applied to notification id.
func (a *Acknowledgment) Validate(id string) error {
	switch {
	case a.ID != id:
		return fmt.Errorf("acknowledgment is for %q, expected %q", a.ID, id)
	case !a.Read:
		return fmt.Errorf("acknowledgment for %q is not marked read", id)
	case a.AcknowledgedAt.IsZero():
		return fmt.Errorf("acknowledgment for %q has no acknowledgedAt", id)
	case a.AcknowledgedBy == "":
		return fmt.Errorf("acknowledgment for %q has no acknowledgedBy", id)
	}
	return nil
}

// AckRequest is the body sent to the acknowledgment endpoint.
type AckRequest struct {
	StaffID string `json:"staffId" validate:"required"`
}
