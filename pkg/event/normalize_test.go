package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-feed/internal/model"
	apperrors "github.com/jwalitptl/booking-feed/pkg/errors"
)

const createdPayload = `{
	"id": "e1",
	"type": "created",
	"customerId": 42,
	"customerName": "Somchai P.",
	"customerPhone": "0812345678",
	"customerCode": "",
	"bookingTime": "18:00",
	"bay": "Bay 2",
	"duration": 1.5,
	"metadata": {"bookingId": "BK-100", "formattedDate": "Fri 3 May", "numberOfPeople": "4", "bookingType": "Normal"},
	"createdAt": "2024-05-01T10:00:00.123+07:00"
}`

func TestDecodeCreated(t *testing.T) {
	n, err := NewDecoder().Decode([]byte(createdPayload))
	require.NoError(t, err)

	assert.Equal(t, "e1", n.ID)
	assert.Equal(t, model.NotificationTypeCreated, n.Type)
	assert.Equal(t, "42", n.CustomerID)
	assert.Equal(t, "Somchai P.", n.CustomerName)
	require.NotNil(t, n.CustomerPhone)
	assert.Equal(t, "0812345678", *n.CustomerPhone)
	assert.Nil(t, n.CustomerCode, "blank optional fields are dropped")
	require.NotNil(t, n.Bay)
	assert.Equal(t, "Bay 2", *n.Bay)
	require.NotNil(t, n.Duration)
	assert.Equal(t, 1.5, *n.Duration)
	assert.Equal(t, model.Metadata{
		BookingID: "BK-100", FormattedDate: "Fri 3 May", NumberOfPeople: 4, BookingType: "Normal",
	}, n.Metadata)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 0, 0, 123000000, time.UTC), n.CreatedAt)
	assert.False(t, n.Read)
	assert.Nil(t, n.AcknowledgedAt)
}

func TestDecodeEnvelope(t *testing.T) {
	d := NewDecoder()

	t.Run("object payload", func(t *testing.T) {
		n, err := d.Decode([]byte(`{"type":"BOOKING_CREATED","payload":` + createdPayload + `}`))
		require.NoError(t, err)
		assert.Equal(t, "e1", n.ID)
	})

	t.Run("string payload", func(t *testing.T) {
		raw := `{"type":"BOOKING_CREATED","payload":"{\"id\":\"e9\",\"type\":\"cancelled\",\"customerId\":\"c1\",\"customerName\":\"A\",\"bookingTime\":\"09:00\",\"createdAt\":\"2024-05-01 10:00:00+00\"}"}`
		n, err := d.Decode([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, "e9", n.ID)
		assert.Equal(t, model.NotificationTypeCancelled, n.Type)
		assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), n.CreatedAt)
	})
}

func TestDecodeModifiedChanges(t *testing.T) {
	d := NewDecoder()

	t.Run("ordered list", func(t *testing.T) {
		raw := `{"id":"e2","type":"modified","customerId":"c1","customerName":"A","bookingTime":"09:00",
			"createdAt":"2024-05-01T10:00:00Z",
			"metadata":{"changes":[{"field":"time","old":"09:00","new":"10:00"},{"field":"bay","old":"1","new":"3"}]}}`
		n, err := d.Decode([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, []model.Change{
			{Field: "time", Old: "09:00", New: "10:00"},
			{Field: "bay", Old: "1", New: "3"},
		}, n.Metadata.Changes)
	})

	t.Run("object keyed by field", func(t *testing.T) {
		raw := `{"id":"e2","type":"modified","customerId":"c1","customerName":"A","bookingTime":"09:00",
			"createdAt":"2024-05-01T10:00:00Z",
			"metadata":{"changes":{"time":{"old":"09:00","new":"10:00"},"bay":{"old":"1","new":"3"}}}}`
		n, err := d.Decode([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, []model.Change{
			{Field: "bay", Old: "1", New: "3"},
			{Field: "time", Old: "09:00", New: "10:00"},
		}, n.Metadata.Changes)
	})

	t.Run("changes dropped for other types", func(t *testing.T) {
		raw := `{"id":"e3","type":"cancelled","customerId":"c1","customerName":"A","bookingTime":"09:00",
			"createdAt":"2024-05-01T10:00:00Z",
			"metadata":{"changes":[{"field":"time","old":"09:00","new":"10:00"}]}}`
		n, err := d.Decode([]byte(raw))
		require.NoError(t, err)
		assert.Empty(t, n.Metadata.Changes)
	})
}

func TestDecodeHistoryItemWithAcknowledgment(t *testing.T) {
	raw := `{"id":"e4","type":"created","customerId":"c1","customerName":"A","bookingTime":"09:00",
		"createdAt":"2024-05-01T10:00:00Z","read":true,"acknowledgedAt":"2024-05-01T10:05:00Z",
		"acknowledgedBy":"staff-7","acknowledgedByDisplayName":"Nok"}`
	n, err := NewDecoder().Decode([]byte(raw))
	require.NoError(t, err)

	assert.True(t, n.Read)
	require.NotNil(t, n.AcknowledgedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC), *n.AcknowledgedAt)
	require.NotNil(t, n.AcknowledgedBy)
	assert.Equal(t, "staff-7", *n.AcknowledgedBy)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `not json`},
		{"array", `[1,2]`},
		{"missing id", `{"type":"created","customerId":"c1","customerName":"A","bookingTime":"09:00","createdAt":"2024-05-01T10:00:00Z"}`},
		{"missing customer", `{"id":"e1","type":"created","bookingTime":"09:00","createdAt":"2024-05-01T10:00:00Z"}`},
		{"unknown type", `{"id":"e1","type":"deleted","customerId":"c1","customerName":"A","bookingTime":"09:00","createdAt":"2024-05-01T10:00:00Z"}`},
		{"bad timestamp", `{"id":"e1","type":"created","customerId":"c1","customerName":"A","bookingTime":"09:00","createdAt":"yesterday"}`},
		{"read without timestamp", `{"id":"e1","type":"created","customerId":"c1","customerName":"A","bookingTime":"09:00","createdAt":"2024-05-01T10:00:00Z","read":true}`},
		{"bad changes", `{"id":"e1","type":"modified","customerId":"c1","customerName":"A","bookingTime":"09:00","createdAt":"2024-05-01T10:00:00Z","metadata":{"changes":"bay"}}`},
		{"empty envelope", `{"type":"BOOKING_CREATED","payload":{}}`},
	}

	d := NewDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrMalformedEvent), "got %v", err)
		})
	}
}

func TestExtractChangesEmpty(t *testing.T) {
	changes, err := ExtractChanges(nil)
	require.NoError(t, err)
	assert.Nil(t, changes)

	changes, err = ExtractChanges([]byte("null"))
	require.NoError(t, err)
	assert.Nil(t, changes)

	_, err = ExtractChanges([]byte(`[{"old":1,"new":2}]`))
	assert.Error(t, err)
}
