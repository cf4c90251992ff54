// Package stream wraps a Redis/Valkey stream with a consumer group into
// the at-least-once, explicit-ack, approximate-trim shape both
// IngressStream and EgressStream need: group creation tolerant of a
// pre-existing group, a long-block read loop, and ack-then-trim per
// read batch (the batch's ids are acked together, then the stream is
// trimmed up to the last acked id).
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream is a thin, typed-nothing wrapper; IngressStream and
// EgressStream layer spotmodel conversions on top of it.
type Stream struct {
	client   *redis.Client
	name     string
	group    string
	consumer string
}

// New wraps an existing client. name is the stream key, group the
// consumer group, consumer this process's unique reader identity
// within that group.
func New(client *redis.Client, name, group, consumer string) *Stream {
	return &Stream{client: client, name: name, group: group, consumer: consumer}
}

// EnsureGroup creates the consumer group starting from the end of the
// stream, creating the stream itself if absent. A "group already
// exists" (BUSYGROUP) reply is not an error.
func (s *Stream) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.name, s.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("stream: ensure group %s/%s: %w", s.name, s.group, err)
	}
	return nil
}

// Publish appends one entry and returns its stream-assigned ID.
func (s *Stream) Publish(ctx context.Context, fields map[string]interface{}) (string, error) {
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.name,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("stream: xadd %s: %w", s.name, err)
	}
	return id, nil
}

// ReadBatch blocks up to block waiting for up to count new entries for
// this consumer group. An empty, non-error result just means nothing
// arrived in time; callers loop.
func (s *Stream) ReadBatch(ctx context.Context, count int64, block time.Duration) ([]redis.XMessage, error) {
	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.name, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("stream: xreadgroup %s: %w", s.name, err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res[0].Messages, nil
}

// Ack acknowledges ids as processed.
func (s *Stream) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, s.name, s.group, ids...).Err(); err != nil {
		return fmt.Errorf("stream: xack %s: %w", s.name, err)
	}
	return nil
}

// TrimMinID approximately trims entries below id, bounding stream
// growth once they have been acked.
func (s *Stream) TrimMinID(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.XTrimMinIDApprox(ctx, s.name, id, 100).Err(); err != nil {
		return fmt.Errorf("stream: xtrim %s: %w", s.name, err)
	}
	return nil
}
