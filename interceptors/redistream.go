package interceptors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/farolabs/beacon/core"
)

// RedisStream publishes events to a Redis Stream with XADD, trimming the
// stream to an approximate maximum length so it cannot grow unbounded.
// Consumers tail the stream with XREAD or consumer groups.
type RedisStream struct {
	client     *redis.Client
	stream     string
	maxLen     int64
	ownsClient bool

	// connection settings applied when the constructor dials
	password string
	db       int
}

// RedisStreamOption configures a RedisStream interceptor.
type RedisStreamOption func(*RedisStream)

// WithRedisStreamMaxLen sets the approximate stream length to trim to
// (default 10000). Zero disables trimming.
func WithRedisStreamMaxLen(maxLen int64) RedisStreamOption {
	return func(r *RedisStream) {
		r.maxLen = maxLen
	}
}

// WithRedisStreamClient uses an existing client instead of dialing a new
// connection. The caller remains responsible for closing it.
func WithRedisStreamClient(client *redis.Client) RedisStreamOption {
	return func(r *RedisStream) {
		r.client = client
	}
}

// WithRedisStreamAuth sets the password and database used when dialing.
func WithRedisStreamAuth(password string, db int) RedisStreamOption {
	return func(r *RedisStream) {
		r.password = password
		r.db = db
	}
}

// NewRedisStream creates an interceptor publishing to the named stream on
// the Redis server at addr.
func NewRedisStream(addr, stream string, opts ...RedisStreamOption) *RedisStream {
	r := &RedisStream{
		stream: stream,
		maxLen: 10000,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: r.password,
			DB:       r.db,
		})
		r.ownsClient = true
	}
	return r
}

// Name identifies the interceptor in health reports.
func (r *RedisStream) Name() string {
	return "redis-stream"
}

// Intercept appends the event to the stream.
func (r *RedisStream) Intercept(ctx context.Context, event *core.Event) error {
	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: streamValues(event),
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis stream publish failed: %w", err)
	}
	return nil
}

// HealthCheck pings the server.
func (r *RedisStream) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the connection if this interceptor dialed it.
func (r *RedisStream) Close() error {
	if r.ownsClient {
		return r.client.Close()
	}
	return nil
}

// streamValues flattens an event into stream field-value pairs. The payload
// map is carried as a single JSON field since stream entries are flat.
func streamValues(e *core.Event) map[string]interface{} {
	values := map[string]interface{}{
		"id":        e.ID.String(),
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
		"severity":  e.Severity.String(),
		"purpose":   e.Purpose.String(),
		"event":     e.EventID(),
		"message":   e.Message,
	}
	if len(e.Payload) > 0 {
		if data, err := json.Marshal(e.Payload); err == nil {
			values["payload"] = string(data)
		}
	}
	if e.Critical {
		values["critical"] = "true"
	}
	if e.CorrelationID != nil {
		values["correlationId"] = e.CorrelationID.String()
	}
	return values
}
