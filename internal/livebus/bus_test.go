package livebus_test

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrusso/whatsapp-relay/internal/livebus"
)

// safeBuffer serializes writes the way an HTTP connection would.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingWriter struct {
	mu       sync.Mutex
	failures int
	writes   int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.writes > w.failures {
		return 0, errors.New("connection reset")
	}
	return len(p), nil
}

func TestBus_SubscribeEmitsRetryDirective(t *testing.T) {
	bus := livebus.NewBus(zap.NewNop(), time.Hour, 5000*time.Millisecond)

	buf := &safeBuffer{}
	sub, err := bus.Subscribe(buf)
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, "retry: 5000\n\n", buf.String())
	assert.Equal(t, 1, bus.Count())
}

func TestBus_BroadcastReachesAllSubscribers(t *testing.T) {
	bus := livebus.NewBus(zap.NewNop(), time.Hour, time.Second)

	buffers := make([]*safeBuffer, 3)
	for i := range buffers {
		buffers[i] = &safeBuffer{}
		sub, err := bus.Subscribe(buffers[i])
		require.NoError(t, err)
		defer sub.Close()
	}

	bus.Broadcast(map[string]string{"type": "message", "conversationId": "conv-1"})

	for i, buf := range buffers {
		out := buf.String()
		assert.Contains(t, out, "data: ", "subscriber %d", i)
		assert.Contains(t, out, `"conversationId":"conv-1"`, "subscriber %d", i)
		assert.True(t, strings.HasSuffix(out, "\n\n"), "frames must be double-newline terminated")
	}
}

func TestBus_BroadcastNilEvent(t *testing.T) {
	bus := livebus.NewBus(zap.NewNop(), time.Hour, time.Second)

	buf := &safeBuffer{}
	sub, err := bus.Subscribe(buf)
	require.NoError(t, err)
	defer sub.Close()

	before := buf.String()
	bus.Broadcast(nil)
	assert.Equal(t, before, buf.String())
}

func TestBus_FailingSubscriberIsPruned(t *testing.T) {
	bus := livebus.NewBus(zap.NewNop(), time.Hour, time.Second)

	// Lets the retry directive through, then fails.
	w := &failingWriter{failures: 1}
	sub, err := bus.Subscribe(w)
	require.NoError(t, err)
	defer sub.Close()

	healthy := &safeBuffer{}
	healthySub, err := bus.Subscribe(healthy)
	require.NoError(t, err)
	defer healthySub.Close()

	require.Equal(t, 2, bus.Count())

	bus.Broadcast(map[string]string{"type": "status"})

	assert.Equal(t, 1, bus.Count(), "the dead subscriber must be removed")
	assert.Contains(t, healthy.String(), `"type":"status"`, "the healthy subscriber still receives events")
}

func TestBus_SubscribeFailsWhenFirstWriteFails(t *testing.T) {
	bus := livebus.NewBus(zap.NewNop(), time.Hour, time.Second)

	_, err := bus.Subscribe(&failingWriter{failures: 0})
	assert.Error(t, err)
	assert.Zero(t, bus.Count())
}

func TestBus_KeepAlivePing(t *testing.T) {
	bus := livebus.NewBus(zap.NewNop(), 20*time.Millisecond, time.Second)

	buf := &safeBuffer{}
	sub, err := bus.Subscribe(buf)
	require.NoError(t, err)
	defer sub.Close()

	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), ": ping\n\n")
	}, time.Second, 10*time.Millisecond)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := livebus.NewBus(zap.NewNop(), time.Hour, time.Second)

	sub, err := bus.Subscribe(&safeBuffer{})
	require.NoError(t, err)

	sub.Close()
	sub.Close()
	assert.Zero(t, bus.Count())

	select {
	case <-sub.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}
}

func TestBus_Shutdown(t *testing.T) {
	bus := livebus.NewBus(zap.NewNop(), time.Hour, time.Second)

	sub, err := bus.Subscribe(&safeBuffer{})
	require.NoError(t, err)

	bus.Shutdown()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("shutdown must tear down existing subscribers")
	}
	assert.Zero(t, bus.Count())

	_, err = bus.Subscribe(&safeBuffer{})
	assert.Error(t, err, "a shut down bus rejects new subscribers")
}
