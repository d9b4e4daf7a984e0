package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("booking_feed", reg)

	m.EventsReceived.WithLabelValues("live").Inc()
	m.AckOutcomes.WithLabelValues("confirmed").Add(2)
	m.Unread.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsReceived.WithLabelValues("live")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AckOutcomes.WithLabelValues("confirmed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Unread))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "booking_feed_source_events_received_total")
	assert.Contains(t, names, "booking_feed_log_unread")
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New("booking_feed", prometheus.NewRegistry())
		New("booking_feed", prometheus.NewRegistry())
	})
}
