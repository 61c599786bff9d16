package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRunStream receives one entry per finished source run
const DefaultRunStream = "volleysync.runs"

// RedisStreamPublisher publishes run reports to a Redis stream
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher creates a publisher from an existing client
func NewRedisStreamPublisher(client *redis.Client, stream string) *RedisStreamPublisher {
	if stream == "" {
		stream = DefaultRunStream
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: 10000}
}

// Stream returns the target stream name
func (rsp *RedisStreamPublisher) Stream() string {
	return rsp.stream
}

// Values builds the stream entry for a report
func Values(report interface{}, now time.Time) (map[string]interface{}, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"data":      string(data),
		"timestamp": now.Unix(),
	}, nil
}

// PublishRun appends a run report to the stream
func (rsp *RedisStreamPublisher) PublishRun(ctx context.Context, report interface{}) error {
	values, err := Values(report, time.Now())
	if err != nil {
		return err
	}

	return rsp.client.XAdd(ctx, &redis.XAddArgs{
		Stream: rsp.stream,
		MaxLen: rsp.maxLen,
		Approx: true,
		Values: values,
	}).Err()
}
