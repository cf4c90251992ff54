package supervisor

import (
	"context"

	"holycluster/internal/metrics"
	"holycluster/internal/persist"
	"holycluster/internal/spotmodel"
	"holycluster/internal/stream"
)

// pipelineSink implements enrich.Sink: persistence goes to Postgres via
// the batched queue, broadcast goes onto EgressStream for the
// Broadcaster to pick up. A spot with no locator on either side never
// reaches Broadcast at all (Enricher only calls it when
// EnrichedSpot.ReadyForBroadcast is true).
type pipelineSink struct {
	store  *persist.Store
	egress *stream.EgressStream
	reg    *metrics.Registry
}

func newPipelineSink(store *persist.Store, egress *stream.EgressStream, reg *metrics.Registry) *pipelineSink {
	return &pipelineSink{store: store, egress: egress, reg: reg}
}

func (s *pipelineSink) Persist(ctx context.Context, spot spotmodel.EnrichedSpot) error {
	s.reg.SpotsByMode.WithLabelValues(spot.Mode).Inc()
	s.reg.SpotsBySource.WithLabelValues(spot.SourceEndpoint).Inc()
	if !spot.Spotter.HasLocator() || !spot.DX.HasLocator() {
		s.reg.GeoUnresolvable.Inc()
	}
	if err := s.store.Persist(ctx, spot); err != nil {
		s.reg.PersistQueueDropped.Inc()
		return err
	}
	return nil
}

func (s *pipelineSink) Broadcast(ctx context.Context, spot spotmodel.EnrichedSpot) error {
	s.reg.SpotsBroadcastReady.Inc()
	return s.egress.Publish(ctx, spot)
}
