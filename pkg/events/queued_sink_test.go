package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQueuedSinkDelivers(t *testing.T) {
	inner := newMockSink("inner")
	qs := NewQueuedSink(inner, QueuedSinkConfig{QueueSize: 10}, zap.NewNop())

	for i := 0; i < 5; i++ {
		require.NoError(t, qs.Write(context.Background(), testEvent()))
	}
	require.NoError(t, qs.Close())

	assert.Equal(t, 5, inner.count())
	assert.True(t, inner.closed)

	h := qs.Health()
	assert.Equal(t, int64(5), h.ProcessedEvents)
	assert.Zero(t, h.DroppedEvents)
	assert.Equal(t, "closed", h.CircuitState)
}

func TestQueuedSinkDropsWhenFull(t *testing.T) {
	inner := newMockSink("slow")
	inner.block = make(chan struct{})
	qs := NewQueuedSink(inner, QueuedSinkConfig{QueueSize: 2, WorkerCount: 1}, zap.NewNop())

	// The first event is taken by the worker and blocks there.
	require.NoError(t, qs.Write(context.Background(), testEvent()))
	require.Eventually(t, func() bool { return qs.Health().QueueLength == 0 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 4; i++ {
		require.NoError(t, qs.Write(context.Background(), testEvent()))
	}
	assert.Equal(t, int64(2), qs.Health().DroppedEvents)

	close(inner.block)
	require.NoError(t, qs.Close())
	assert.Equal(t, 3, inner.count())
}

func TestQueuedSinkCircuitDropsEvents(t *testing.T) {
	inner := newMockSink("broken")
	inner.setFail(true)
	qs := NewQueuedSink(inner, QueuedSinkConfig{
		QueueSize:      10,
		CircuitBreaker: CircuitBreakerConfig{FailureThreshold: 2, OpenTimeout: time.Hour},
	}, zap.NewNop())

	for i := 0; i < 5; i++ {
		require.NoError(t, qs.Write(context.Background(), testEvent()))
	}
	require.NoError(t, qs.Close())

	h := qs.Health()
	assert.Equal(t, int64(2), h.FailedEvents)
	assert.Equal(t, int64(3), h.DroppedEvents)
	assert.Equal(t, "open", h.CircuitState)
	assert.False(t, h.Healthy)
	assert.Equal(t, "simulated failure", h.LastError)
}

func TestQueuedSinkWriteAfterClose(t *testing.T) {
	qs := NewQueuedSink(newMockSink("inner"), QueuedSinkConfig{}, zap.NewNop())
	require.NoError(t, qs.Close())
	require.NoError(t, qs.Close())

	err := qs.Write(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
	assert.Equal(t, "inner", qs.Name())
}
