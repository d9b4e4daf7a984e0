package redisstream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeRequiresReachableServer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: time.Second})
	defer client.Close()

	b, err := NewBroker(client, Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, 15*time.Second, b.healthInterval)
	assert.Equal(t, 100, b.buffer)

	_, err = b.Subscribe(context.Background(), "bookings:venue-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe bookings:venue-1")
}
