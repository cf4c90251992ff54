// Package supervisor wires every component into one running process and
// owns its lifecycle: launch each long-running task on its own
// goroutine behind a shared context, recover panics so one task cannot
// poison its neighbours, and drain everything in order on shutdown.
// The goroutine-per-task-plus-signal-driven-shutdown shape mirrors the
// teacher's own main.go.
package supervisor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"holycluster/internal/broadcast"
	"holycluster/internal/clustersession"
	"holycluster/internal/enrich"
	"holycluster/internal/httpapi"
	"holycluster/internal/metrics"
	"holycluster/internal/persist"
	"holycluster/internal/qrzsession"
	"holycluster/internal/stream"
)

const subscriberGaugeInterval = 5 * time.Second

// Supervisor holds every wired component and drives their goroutines.
type Supervisor struct {
	log     *zap.SugaredLogger
	httpAddr string

	closers []func()

	qrz             *qrzsession.Session
	clusterSessions []*clustersession.Session
	ingress         *stream.IngressStream
	enricher        *enrich.Enricher
	persistStore    *persist.Store
	egress          *stream.EgressStream
	broadcaster     *broadcast.Broadcaster
	httpServer      *httpapi.Server
	reg             *metrics.Registry
}

// Run launches every task and blocks until ctx is cancelled, then drains
// them in order: stop accepting new work, wait for in-flight tasks,
// close the persistence store, close the key-value client.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	// guard runs fn once behind a recover; a panicking one-shot
	// initializer simply exits rather than taking the process down.
	guard := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.recoverPanic(name)
			fn(ctx)
		}()
	}
	// guardLoop restarts fn if it returns early (including via a
	// recovered panic) while ctx is still live, so a consumer task
	// survives a single bad iteration instead of dying for good.
	guardLoop := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				s.runOnceRecovered(name, fn, ctx)
			}
		}()
	}

	guard("qrz-session", func(ctx context.Context) {
		s.qrz.Start(ctx)
		s.qrz.RefreshLoop(ctx)
	})

	for _, cs := range s.clusterSessions {
		cs := cs
		guard("cluster-session", cs.Run)
	}

	guardLoop("ingress-consumer", func(ctx context.Context) {
		if err := s.ingress.Run(ctx, s.enricher.Process); err != nil {
			s.log.Warnw("ingress consumer stopped", "error", err)
		}
	})

	guardLoop("persist-store", s.persistStore.Run)

	guardLoop("broadcast-consumer", func(ctx context.Context) {
		if err := s.broadcaster.Run(ctx, s.egress); err != nil {
			s.log.Warnw("broadcast consumer stopped", "error", err)
		}
	})

	guard("subscriber-gauge", s.runSubscriberGauge)

	mux := http.NewServeMux()
	s.httpServer.Register(mux)
	mux.HandleFunc("/spots_ws", s.broadcaster.ServeSpotsWS)
	mux.HandleFunc("/radio", s.broadcaster.ServeRadio)
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{Addr: s.httpAddr, Handler: mux}
	guard("http-server", func(ctx context.Context) {
		s.log.Infow("http server listening", "addr", s.httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorw("http server stopped", "error", err)
		}
	})

	<-ctx.Done()
	s.log.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		s.log.Warnw("http server shutdown error", "error", err)
	}

	wg.Wait()

	for _, closeFn := range s.closers {
		closeFn()
	}
	s.log.Info("shutdown complete")
}

func (s *Supervisor) runSubscriberGauge(ctx context.Context) {
	ticker := time.NewTicker(subscriberGaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reg.BroadcastActiveSubscribers.Set(float64(s.broadcaster.SubscriberCount()))
		}
	}
}

func (s *Supervisor) recoverPanic(name string) {
	if r := recover(); r != nil {
		s.log.Errorw("recovered panic in background task", "task", name, "panic", r)
	}
}

func (s *Supervisor) runOnceRecovered(name string, fn func(context.Context), ctx context.Context) {
	defer s.recoverPanic(name)
	fn(ctx)
}
