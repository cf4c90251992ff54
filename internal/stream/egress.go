package stream

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"holycluster/internal/spotmodel"
)

const (
	egressStreamName = "stream-api"
	egressGroupName  = "broadcaster"
)

// EnrichedBatchHandler receives one batch of EnrichedSpots read from
// EgressStream; it should not block longer than necessary since the
// ack/trim for the batch waits on its return.
type EnrichedBatchHandler func(ctx context.Context, spots []spotmodel.EnrichedSpot)

// EgressStream carries EnrichedSpots from the Enricher to the
// Broadcaster.
type EgressStream struct {
	s   *Stream
	log *zap.SugaredLogger
}

// NewEgress wraps client as EgressStream for one named consumer.
func NewEgress(client *redis.Client, consumer string, log *zap.SugaredLogger) *EgressStream {
	return &EgressStream{s: New(client, egressStreamName, egressGroupName, consumer), log: log}
}

// Publish appends one EnrichedSpot.
func (e *EgressStream) Publish(ctx context.Context, spot spotmodel.EnrichedSpot) error {
	_, err := e.s.Publish(ctx, spot.ToFields())
	return err
}

// Run ensures the consumer group exists, then loops reading a batch,
// handing it to handle, and acking/trimming the whole batch until ctx
// is cancelled.
func (e *EgressStream) Run(ctx context.Context, handle EnrichedBatchHandler) error {
	if err := e.s.EnsureGroup(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := e.s.ReadBatch(ctx, readBatchCount, readBlock)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			e.log.Warnw("egress read failed", "error", err)
			continue
		}
		if len(messages) == 0 {
			continue
		}

		spots := make([]spotmodel.EnrichedSpot, 0, len(messages))
		ids := make([]string, 0, len(messages))
		for _, msg := range messages {
			fields := toStringFields(msg.Values)
			spot, err := spotmodel.EnrichedSpotFromFields(fields)
			if err != nil {
				e.log.Warnw("egress: malformed entry, acking and dropping", "id", msg.ID, "error", err)
				ids = append(ids, msg.ID)
				continue
			}
			spots = append(spots, spot)
			ids = append(ids, msg.ID)
		}

		handle(ctx, spots)

		if err := e.s.Ack(ctx, ids...); err != nil {
			e.log.Warnw("egress ack failed", "error", err)
			continue
		}
		if err := e.s.TrimMinID(ctx, ids[len(ids)-1]); err != nil {
			e.log.Warnw("egress trim failed", "error", err)
		}
	}
}
