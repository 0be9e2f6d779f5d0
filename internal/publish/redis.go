package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/ellentanhsuling/scribe-bot/internal/pipeline"
)

// Channel suffixes appended to the configured prefix.
const (
	EntriesChannel     = "entries"
	EscalationsChannel = "escalations"
	DropsChannel       = "drops"
)

// sessionTTL bounds how long a session status hash outlives its last update.
const sessionTTL = 24 * time.Hour

// redisClient is the subset of *redis.Client the publisher needs.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Message is the JSON payload published for each pipeline event.
type Message struct {
	Kind      string `json:"kind"`
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Speaker   string `json:"speaker,omitempty"`
	Text      string `json:"text,omitempty"`
	Risk      string `json:"risk,omitempty"`
	Keyword   string `json:"keyword,omitempty"`
	Action    string `json:"action,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// NewMessage converts a pipeline event to its wire form.
func NewMessage(e pipeline.Event) Message {
	m := Message{
		Kind:      string(e.Kind),
		SessionID: e.SessionID,
		Seq:       e.Seq,
		Keyword:   e.Keyword,
		Action:    e.Action,
		Reason:    e.Reason,
	}
	if e.Kind != pipeline.EventSegmentDropped {
		m.Timestamp = e.Entry.Timestamp.Format(time.RFC3339Nano)
		m.Speaker = e.Entry.Speaker
		m.Text = e.Entry.Text
		m.Risk = string(e.Entry.Risk)
	}
	return m
}

// Redis publishes pipeline events to Redis pub/sub channels and keeps a
// per-session status hash. Publish never blocks the pipeline: events are
// queued and sent by a background goroutine, and dropped when the queue is full.
type Redis struct {
	client  redisClient
	prefix  string
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	queue   chan pipeline.Event
	done    chan struct{}
	dropped atomic.Uint64
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// NewRedis creates a publisher. queueSize <= 0 selects 64.
func NewRedis(client redisClient, prefix string, queueSize int) *Redis {
	if queueSize <= 0 {
		queueSize = 64
	}
	r := &Redis{
		client:  client,
		prefix:  prefix,
		timeout: 800 * time.Millisecond,
		queue:   make(chan pipeline.Event, queueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Channel returns the full channel name for a suffix.
func (r *Redis) Channel(suffix string) string {
	return r.prefix + suffix
}

// Publish queues an event for delivery.
func (r *Redis) Publish(e pipeline.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- e:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to a full queue.
func (r *Redis) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops intake and waits for queued events to be sent.
func (r *Redis) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

func (r *Redis) run() {
	defer close(r.done)
	for e := range r.queue {
		if err := r.send(e); err != nil {
			log.Printf("Session %s: redis publish failed: %v", e.SessionID, err)
		}
	}
}

func (r *Redis) send(e pipeline.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	payload, err := json.Marshal(NewMessage(e))
	if err != nil {
		return err
	}

	var channel string
	switch e.Kind {
	case pipeline.EventEntryReady:
		channel = r.Channel(EntriesChannel)
	case pipeline.EventEscalation:
		channel = r.Channel(EscalationsChannel)
	case pipeline.EventSegmentDropped:
		channel = r.Channel(DropsChannel)
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("PUBLISH %s: %w", channel, err)
	}

	if e.Kind != pipeline.EventEntryReady {
		return nil
	}
	key := r.prefix + "session:" + e.SessionID
	if err := r.client.HSet(ctx, key,
		"entries", e.Seq,
		"last_speaker", e.Entry.Speaker,
		"last_risk", string(e.Entry.Risk),
		"updated", time.Now().Format(time.RFC3339),
	).Err(); err != nil {
		return fmt.Errorf("HSET %s: %w", key, err)
	}
	if err := r.client.Expire(ctx, key, sessionTTL).Err(); err != nil {
		return fmt.Errorf("EXPIRE %s: %w", key, err)
	}
	return nil
}
