package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"holycluster/internal/dedup"
	"holycluster/internal/spotmodel"
	"holycluster/internal/stream"
)

// ingressForwarder implements clustersession.Forwarder: every
// ClusterSession on the process shares one instance, so the short-TTL
// dedup window is enforced across sources, not per-endpoint.
type ingressForwarder struct {
	dedup   dedup.Deduplicator
	ttl     time.Duration
	ingress *stream.IngressStream
	log     *zap.SugaredLogger
}

func newIngressForwarder(d dedup.Deduplicator, ttl time.Duration, ingress *stream.IngressStream, log *zap.SugaredLogger) *ingressForwarder {
	return &ingressForwarder{dedup: d, ttl: ttl, ingress: ingress, log: log}
}

func (f *ingressForwarder) Forward(ctx context.Context, spot spotmodel.RawSpot) error {
	allowed, err := f.dedup.Allow(ctx, spot.DedupeKey(), f.ttl)
	if err != nil {
		return fmt.Errorf("%w: dedup check: %v", spotmodel.ErrTransient, err)
	}
	if !allowed {
		return nil
	}
	if err := f.ingress.Publish(ctx, spot); err != nil {
		f.log.Warnw("ingress publish failed", "dx", spot.DXCallsign, "error", err)
	}
	return nil
}
