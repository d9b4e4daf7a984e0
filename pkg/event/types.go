package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Envelope is the broker message wrapper. Producers may publish either a bare
// notification payload or this envelope around it.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Payload is the inbound wire shape of one booking lifecycle event.
type Payload struct {
	ID            flexString   `json:"id" validate:"required"`
	Type          string       `json:"type" validate:"required,oneof=created cancelled modified"`
	CustomerID    flexString   `json:"customerId" validate:"required"`
	CustomerName  string       `json:"customerName" validate:"required"`
	CustomerPhone *string      `json:"customerPhone"`
	CustomerCode  *string      `json:"customerCode"`
	BookingTime   string       `json:"bookingTime" validate:"required"`
	Bay           *flexString  `json:"bay"`
	Duration      *float64     `json:"duration"`
	Metadata      wireMetadata `json:"metadata"`
	CreatedAt     string       `json:"createdAt" validate:"required"`

	// Present on history items only.
	Read                      *bool   `json:"read"`
	AcknowledgedAt            *string `json:"acknowledgedAt"`
	AcknowledgedBy            *string `json:"acknowledgedBy"`
	AcknowledgedByDisplayName *string `json:"acknowledgedByDisplayName"`
}

type wireMetadata struct {
	BookingID      flexString      `json:"bookingId"`
	FormattedDate  string          `json:"formattedDate"`
	NumberOfPeople flexInt         `json:"numberOfPeople"`
	BookingType    string          `json:"bookingType"`
	Changes        json.RawMessage `json:"changes"`
}

// flexString accepts both JSON strings and numbers; producers are not
// consistent about identifier types.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*s = flexString(n.String())
	return nil
}

type flexInt int

func (i *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("expected integer, got %q", v)
		}
		*i = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected integer, got %s", b)
	}
	*i = flexInt(n)
	return nil
}
