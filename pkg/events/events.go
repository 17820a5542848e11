// Package events pushes engine events outward: alerts from the
// poller, task progress from the executor, session lifecycle from the
// session manager. Publishing is fire and forget; a sink that fails
// or stalls never fails the operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// Event types emitted by the engine.
const (
	TypeAlert         = "alert"
	TypeAlertResolved = "alert_resolved"
	TypeDeviceOffline = "device_offline"
	TypeTaskProgress  = "task_progress"
	TypeTaskComplete  = "task_complete"
	TypeSessionOpened = "session_opened"
	TypeSessionClosed = "session_closed"
)

// Event is one outbound notification.
type Event struct {
	Type      string                 `json:"type"`
	DeviceID  string                 `json:"device_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// New builds an event stamped with the current time.
func New(eventType, deviceID string, payload map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Sink receives events. Implementations must not block for long;
// slow transports belong behind an AsyncPublisher.
type Sink interface {
	Publish(event Event)
}

// LogSink writes events to the engine log. Useful as a default sink
// and in tests.
type LogSink struct{}

// Publish logs the event at info level.
func (LogSink) Publish(event Event) {
	util.Logger.WithField("event", event.Type).
		WithField("device", event.DeviceID).
		Info("event published")
}

// RedisSink publishes events as JSON to a Redis pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
	timeout time.Duration
}

// NewRedisSink connects a sink to the given Redis server and channel.
func NewRedisSink(addr, password string, db int, channel string) *RedisSink {
	return &RedisSink{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		channel: channel,
		timeout: 5 * time.Second,
	}
}

// Publish marshals the event and PUBLISHes it. Failures are logged
// and dropped.
func (s *RedisSink) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		util.Errorf("marshal event %s: %v", event.Type, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		util.Warnf("publish event %s to redis: %v", event.Type, err)
	}
}

// Close releases the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// AsyncPublisher decouples event producers from the sink with a
// buffered channel drained by one goroutine. When the buffer is full
// the event is dropped with a warning rather than blocking the
// producer.
type AsyncPublisher struct {
	sink Sink
	ch   chan Event

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewAsyncPublisher starts the drain goroutine. A buffer size of zero
// defaults to 256.
func NewAsyncPublisher(sink Sink, buffer int) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	p := &AsyncPublisher{
		sink: sink,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.drain()
	return p
}

// Publish enqueues the event, dropping it if the buffer is full.
func (p *AsyncPublisher) Publish(event Event) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.ch <- event:
	default:
		util.Warnf("event buffer full, dropping %s event for %s", event.Type, event.DeviceID)
	}
}

// Close stops accepting events, flushes the buffer, and waits for the
// drain goroutine to finish. Safe to call more than once.
func (p *AsyncPublisher) Close() {
	p.once.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

func (p *AsyncPublisher) drain() {
	defer p.wg.Done()
	for {
		select {
		case ev := <-p.ch:
			p.sink.Publish(ev)
		case <-p.done:
			// Flush whatever is already buffered, then stop.
			for {
				select {
				case ev := <-p.ch:
					p.sink.Publish(ev)
				default:
					return
				}
			}
		}
	}
}
