// Package livebus fans structured events out to the connected dashboard
// clients over Server-Sent Events. Delivery is best effort, at most once
// per currently connected subscriber, no replay: clients reconcile with a
// full pull on reconnect.
package livebus

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Flusher is satisfied by http.ResponseWriter implementations that can
// push buffered bytes to the client.
type Flusher interface {
	Flush()
}

// Bus holds the process-scoped subscriber registry.
type Bus struct {
	logger    *zap.Logger
	keepAlive time.Duration
	retry     time.Duration

	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	closed      bool
}

// Subscriber is one connected event stream. Closing it stops the
// keep-alive timer and removes it from the registry; both are safe to
// trigger from any goroutine and idempotent.
type Subscriber struct {
	bus  *Bus
	done chan struct{}

	writeMu sync.Mutex
	w       io.Writer

	closeOnce sync.Once
}

func NewBus(logger *zap.Logger, keepAlive, retry time.Duration) *Bus {
	return &Bus{
		logger:      logger,
		keepAlive:   keepAlive,
		retry:       retry,
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers w as a new event stream, emits the reconnect-backoff
// directive and starts the keep-alive ticker. The caller must Close the
// returned subscriber when the connection goes away.
func (b *Bus) Subscribe(w io.Writer) (*Subscriber, error) {
	s := &Subscriber{
		bus:  b,
		done: make(chan struct{}),
		w:    w,
	}

	if err := s.write([]byte(fmt.Sprintf("retry: %d\n\n", b.retry.Milliseconds()))); err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("bus is shut down")
	}
	b.subscribers[s] = struct{}{}
	b.mu.Unlock()

	go s.keepAlive(b.keepAlive)
	return s, nil
}

// Broadcast serializes event once and writes it to every subscriber
// connected right now. A failing subscriber is torn down and the
// broadcast continues; failures are never reported to the producer.
func (b *Bus) Broadcast(event interface{}) {
	if event == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to encode live event", zap.Error(err))
		return
	}
	frame := []byte("data: " + string(payload) + "\n\n")

	for _, s := range b.snapshot() {
		if err := s.write(frame); err != nil {
			b.logger.Warn("Dropping dead event subscriber", zap.Error(err))
			s.Close()
		}
	}
}

// Count returns the number of connected subscribers.
func (b *Bus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Shutdown closes every subscriber and rejects new ones.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	for _, s := range b.snapshot() {
		s.Close()
	}
}

// snapshot copies the registry so broadcast iteration tolerates
// concurrent removal.
func (b *Bus) snapshot() []*Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := make([]*Subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	return subs
}

func (b *Bus) remove(s *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, s)
	b.mu.Unlock()
}

// Close deregisters the subscriber and stops its keep-alive timer.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.bus.remove(s)
	})
}

// Done is closed when the subscriber is torn down; the HTTP handler
// blocks on it to keep the connection open.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.write([]byte(": ping\n\n")); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Subscriber) write(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if f, ok := s.w.(Flusher); ok {
		f.Flush()
	}
	return nil
}
