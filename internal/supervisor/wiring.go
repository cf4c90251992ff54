package supervisor

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"holycluster/internal/appconfig"
	"holycluster/internal/broadcast"
	"holycluster/internal/classify"
	"holycluster/internal/clustersession"
	"holycluster/internal/dedup"
	"holycluster/internal/enrich"
	"holycluster/internal/geo"
	"holycluster/internal/httpapi"
	"holycluster/internal/metrics"
	"holycluster/internal/persist"
	"holycluster/internal/qrzsession"
	"holycluster/internal/stream"
)

// Build constructs every component from cfg and wires them into a
// Supervisor, but starts nothing — call Run to launch the process.
func Build(ctx context.Context, cfg appconfig.Config, log *zap.SugaredLogger) (*Supervisor, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.ValkeyAddr(),
		DB:   cfg.ValkeyDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("supervisor: connect valkey: %w", err)
	}

	reg := metrics.New(prometheus.DefaultRegisterer)

	prefixTable, err := appconfig.LoadPrefixes(cfg.PrefixesFile)
	if err != nil {
		return nil, fmt.Errorf("supervisor: load prefixes: %w", err)
	}
	prefixStore := geo.NewStore()
	prefixStore.Set(prefixTable)

	bands, err := appconfig.LoadBands(cfg.BandsFile)
	if err != nil {
		return nil, fmt.Errorf("supervisor: load bands: %w", err)
	}
	modeRanges, err := appconfig.LoadModeRanges(cfg.ModesFile)
	if err != nil {
		return nil, fmt.Errorf("supervisor: load mode ranges: %w", err)
	}
	classifier := classify.New()
	classifier.Load(bands, modeRanges)

	endpoints, err := appconfig.LoadClusters(cfg.ClustersFile)
	if err != nil {
		return nil, fmt.Errorf("supervisor: load cluster endpoints: %w", err)
	}

	qrz := qrzsession.New(cfg.QrzUser, cfg.QrzPassword, cfg.QrzAPIKey, cfg.QrzSessionRefresh, log.Named("qrzsession"))
	qrz.SetOnRefreshFailure(reg.QrzRefreshFailures.Inc)

	cache := countingCache{RedisCache: geo.NewRedisCache(redisClient), reg: reg}
	resolver := geo.New(cache, qrz, prefixStore, cfg.ValkeyGeoExpiration, log.Named("geo"))

	persistCfg := persist.DefaultConfig(cfg.PostgresDSN())
	persistCfg.RetentionDays = cfg.PostgresRetentionDays
	persistStore, err := persist.Open(ctx, persistCfg, log.Named("persist"))
	if err != nil {
		return nil, fmt.Errorf("supervisor: open persistence store: %w", err)
	}

	ingress := stream.NewIngress(redisClient, "enricher-1", log.Named("stream.ingress"))
	egress := stream.NewEgress(redisClient, "broadcaster-1", log.Named("stream.egress"))

	sink := newPipelineSink(persistStore, egress, reg)
	enricher := enrich.New(classifier, resolver, sink, log.Named("enrich"))
	enricher.SetOnDrop(func(reason string) {
		if reason == "classification" {
			reg.SpotsClassifyDropped.Inc()
		}
	})

	dedupImpl := countingDedup{Deduplicator: dedup.NewRedis(redisClient), reg: reg}
	forwarder := newIngressForwarder(dedupImpl, cfg.ValkeySpotExpiration, ingress, log.Named("forwarder"))

	clusterSessions := make([]*clustersession.Session, 0, len(endpoints))
	for _, endpoint := range endpoints {
		clusterSessions = append(clusterSessions, clustersession.New(endpoint, cfg.TelnetUsername, forwarder, log.Named("clustersession")))
	}

	broadcaster := broadcast.New(persistStore, log.Named("broadcast"))
	httpServer := httpapi.New(cache, resolver, persistStore, log.Named("httpapi"))

	return &Supervisor{
		log:             log,
		httpAddr:        cfg.HTTPAddr,
		qrz:             qrz,
		clusterSessions: clusterSessions,
		ingress:         ingress,
		enricher:        enricher,
		persistStore:    persistStore,
		egress:          egress,
		broadcaster:     broadcaster,
		httpServer:      httpServer,
		reg:             reg,
		closers: []func(){
			persistStore.Close,
			func() { _ = redisClient.Close() },
		},
	}, nil
}
