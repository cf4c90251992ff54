package stream

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"holycluster/internal/spotmodel"
)

const (
	ingressStreamName = "stream-telnet"
	ingressGroupName  = "enricher"

	readBatchCount = 32
	readBlock      = 60 * time.Second
)

// RawSpotHandler processes one RawSpot off IngressStream. A
// spotmodel.ErrTransient return leaves the message unacked for
// redelivery; any other return (including nil) results in an ack.
type RawSpotHandler func(ctx context.Context, spot spotmodel.RawSpot) error

// IngressStream carries RawSpots from ClusterSessions (after
// deduplication) to the Enricher.
type IngressStream struct {
	s   *Stream
	log *zap.SugaredLogger
}

// NewIngress wraps client as IngressStream for one named consumer.
func NewIngress(client *redis.Client, consumer string, log *zap.SugaredLogger) *IngressStream {
	return &IngressStream{s: New(client, ingressStreamName, ingressGroupName, consumer), log: log}
}

// Publish appends one RawSpot.
func (i *IngressStream) Publish(ctx context.Context, spot spotmodel.RawSpot) error {
	_, err := i.s.Publish(ctx, spot.ToFields())
	return err
}

// Run ensures the consumer group exists, then loops reading, handling,
// and acking entries until ctx is cancelled.
func (i *IngressStream) Run(ctx context.Context, handle RawSpotHandler) error {
	if err := i.s.EnsureGroup(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := i.s.ReadBatch(ctx, readBatchCount, readBlock)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			i.log.Warnw("ingress read failed", "error", err)
			continue
		}

		var acked []string
		for _, msg := range messages {
			fields := toStringFields(msg.Values)
			spot, err := spotmodel.RawSpotFromFields(fields)
			if err != nil {
				i.log.Warnw("ingress: malformed entry, acking and dropping", "id", msg.ID, "error", err)
				acked = append(acked, msg.ID)
				continue
			}
			if err := handle(ctx, spot); err != nil && errors.Is(err, spotmodel.ErrTransient) {
				i.log.Warnw("ingress: transient handler error, leaving unacked", "id", msg.ID, "error", err)
				continue
			}
			acked = append(acked, msg.ID)
		}
		if len(acked) == 0 {
			continue
		}
		if err := i.s.Ack(ctx, acked...); err != nil {
			i.log.Warnw("ingress ack failed", "error", err)
			continue
		}
		if err := i.s.TrimMinID(ctx, acked[len(acked)-1]); err != nil {
			i.log.Warnw("ingress trim failed", "error", err)
		}
	}
}

func toStringFields(values map[string]interface{}) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
