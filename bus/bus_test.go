package bus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podolsknews/config"
)

func TestSleepBackoffReturnsFalseOnStop(t *testing.T) {
	s := &Subscriber{
		cfg:  &config.BusConfig{MinBackoff: 5000, MaxBackoff: 10000},
		stop: make(chan struct{}),
	}

	done := make(chan bool, 1)
	go func() { done <- s.sleepBackoff() }()

	time.Sleep(50 * time.Millisecond)
	close(s.stop)

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("sleepBackoff did not observe stop signal promptly")
	}
}

func TestSleepBackoffCompletesWithinConfiguredWindow(t *testing.T) {
	s := &Subscriber{
		cfg:  &config.BusConfig{MinBackoff: 10, MaxBackoff: 20},
		stop: make(chan struct{}),
	}

	start := time.Now()
	ok := s.sleepBackoff()
	elapsed := time.Since(start)

	assert.True(t, ok)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func busConfigFromEnv() *config.BusConfig {
	raw := os.Getenv("REDIS_URL")
	if raw == "" {
		return nil
	}
	addr, password, db, err := config.ParseBusURL(raw)
	if err != nil {
		return nil
	}
	return &config.BusConfig{
		Addr: addr, Password: password, DB: db,
		InChannel: "bus_test_in", OutChannel: "bus_test_out",
		MinBackoff: 500, MaxBackoff: 5000,
	}
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	cfg := busConfigFromEnv()
	if cfg == nil {
		t.Skip("REDIS_URL not set, skipping integration test")
	}

	received := make(chan string, 1)
	sub := NewSubscriber(cfg, func(_ context.Context, payload []byte) error {
		received <- string(payload)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Start(ctx)
	defer sub.Stop()

	time.Sleep(200 * time.Millisecond)

	pub := NewPublisher(cfg)
	defer pub.Close()
	require.NoError(t, pub.Publish(ctx, map[string]int{"source_id": 1}))

	select {
	case msg := <-received:
		assert.Contains(t, msg, "source_id")
	case <-time.After(3 * time.Second):
		t.Fatal("did not receive published message")
	}
}
