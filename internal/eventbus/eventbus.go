// Package eventbus publishes engine events to Redis pub/sub so dashboards
// and the WebSocket gateway can subscribe without touching the engine
// directly. It mirrors the teacher's Redis writer: a thin wrapper around a
// single *redis.Client doing one JSON-encoded PUBLISH call per event; there
// is no batched or pipelined publish.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"barlang/internal/events"
)

const publishTimeout = 2 * time.Second

// Config configures the Redis connection backing the bus.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Bus publishes BarEvent/TradeEvent values to Redis pub/sub channels,
// namespaced by script id. It implements events.Publisher. Publishes run
// through a circuit breaker; while the breaker is open, bar events are
// buffered locally and replayed when Redis recovers (trade events are not
// buffered — they are rare enough, and important enough, to surface the
// publish error directly to the caller instead).
type Bus struct {
	client *goredis.Client
	cb     *CircuitBreaker

	mu     sync.Mutex
	buffer []events.BarEvent
	maxBuf int
}

// New connects to Redis and pings it once before returning. stateGauge, if
// non-nil, is updated with the circuit breaker's numeric state (0/1/2) on
// every transition -- pass metrics.Metrics.EventBusCircuitState in
// production, nil in tests that don't care about it.
func New(cfg Config, stateGauge StateGauge) (*Bus, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("eventbus: redis ping: %w", err)
	}

	bus := &Bus{
		client: client,
		cb:     NewCircuitBreaker(5, 10*time.Second, stateGauge),
		maxBuf: 10000,
	}
	bus.cb.OnStateChange = func(from, to State) {
		if to == StateClosed {
			go bus.flush()
		}
	}
	return bus, nil
}

// flush replays buffered bar events after the breaker closes again.
func (b *Bus) flush() {
	b.mu.Lock()
	pending := b.buffer
	b.buffer = nil
	b.mu.Unlock()

	for _, e := range pending {
		_ = b.PublishBar(e)
	}
}

// Client exposes the underlying Redis client for health checks.
func (b *Bus) Client() *goredis.Client { return b.client }

func barChannel(scriptID string) string   { return "bar:" + scriptID }
func tradeChannel(scriptID string) string { return "trade:" + scriptID }

// PublishBar publishes one BarEvent as JSON on "bar:<script_id>". While the
// circuit breaker is open the event is buffered locally instead of dropped.
func (b *Bus) PublishBar(e events.BarEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventbus: marshal bar event: %w", err)
	}
	pubErr := b.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		return b.client.Publish(ctx, barChannel(e.ScriptID), data).Err()
	})
	if pubErr == ErrCircuitOpen {
		b.bufferBar(e)
		return nil
	}
	return pubErr
}

func (b *Bus) bufferBar(e events.BarEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buffer) >= b.maxBuf {
		b.buffer = b.buffer[1:]
	}
	b.buffer = append(b.buffer, e)
}

// PublishTrade publishes one TradeEvent as JSON on "trade:<script_id>".
func (b *Bus) PublishTrade(e events.TradeEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("eventbus: marshal trade event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return b.client.Publish(ctx, tradeChannel(e.ScriptID), data).Err()
}

// Subscribe returns a Redis pub/sub subscription to a script's bar and trade
// channels,
// used by the WebSocket gateway to fan events out to browser clients.
func (b *Bus) Subscribe(ctx context.Context, scriptID string) *goredis.PubSub {
	return b.client.Subscribe(ctx, barChannel(scriptID), tradeChannel(scriptID))
}

// Close closes the Redis client.
func (b *Bus) Close() error { return b.client.Close() }
