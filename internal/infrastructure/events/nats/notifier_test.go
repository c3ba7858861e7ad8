package nats_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unifiedui/session-service/internal/core/events"
	natsevents "github.com/unifiedui/session-service/internal/infrastructure/events/nats"
)

func TestDefaultConfig(t *testing.T) {
	cfg := natsevents.DefaultConfig()

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, events.DefaultChannel, cfg.Subject)
	assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
	assert.Equal(t, -1, cfg.MaxReconnects)
}

func TestNewNotifier_ConnectionFailure(t *testing.T) {
	n, err := natsevents.NewNotifier(natsevents.Config{URL: "nats://127.0.0.1:1"})

	assert.Error(t, err)
	assert.Nil(t, n)
	assert.Contains(t, err.Error(), "nats connect")
}
