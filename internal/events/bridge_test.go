package events

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type recordingInvalidator struct {
	mu       sync.Mutex
	prefixes []string
}

func (r *recordingInvalidator) InvalidatePrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes = append(r.prefixes, prefix)
	return 1
}

func (r *recordingInvalidator) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.prefixes))
	copy(out, r.prefixes)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(quietLogger())
	defer bus.Close()

	var received atomic.Int64
	sub, err := bus.Subscribe(context.Background(), "updates", func(_ string, payload []byte) {
		assert.Equal(t, []byte("hello"), payload)
		received.Add(1)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "updates", []byte("hello")))
	waitFor(t, func() bool { return received.Load() == 1 })

	// Other channels do not deliver.
	require.NoError(t, bus.Publish(context.Background(), "other", []byte("x")))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), received.Load())

	require.NoError(t, sub.Close())
	require.NoError(t, bus.Publish(context.Background(), "updates", []byte("late")))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int64(1), received.Load())
}

func TestBridge_InvalidatesPrefixThenDelivers(t *testing.T) {
	bus := NewMemoryBus(quietLogger())
	defer bus.Close()

	invalidator := &recordingInvalidator{}
	bridge := NewBridge(bus, invalidator, quietLogger())
	defer bridge.Close()

	var payloads atomic.Int64
	err := bridge.WatchDashboard(context.Background(), "tenant.t1.changes", "d1", "t1", func(payload []byte) {
		assert.Equal(t, []byte(`{"table":"orders"}`), payload)
		payloads.Add(1)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "tenant.t1.changes", []byte(`{"table":"orders"}`)))
	waitFor(t, func() bool { return payloads.Load() == 1 })

	assert.Equal(t, []string{"d1:t1:"}, invalidator.calls())
}

func TestBridge_CloseUnsubscribesAll(t *testing.T) {
	bus := NewMemoryBus(quietLogger())
	defer bus.Close()

	invalidator := &recordingInvalidator{}
	bridge := NewBridge(bus, invalidator, quietLogger())

	require.NoError(t, bridge.WatchDashboard(context.Background(), "ch1", "d1", "t1", nil))
	require.NoError(t, bridge.WatchDashboard(context.Background(), "ch2", "d2", "t1", nil))

	require.NoError(t, bridge.Close())

	require.NoError(t, bus.Publish(context.Background(), "ch1", []byte("x")))
	require.NoError(t, bus.Publish(context.Background(), "ch2", []byte("y")))
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, invalidator.calls())
}
