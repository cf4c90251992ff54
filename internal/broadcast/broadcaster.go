package broadcast

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"holycluster/internal/spotmodel"
	"holycluster/internal/stream"
)

const (
	writeDeadline = 10 * time.Second
	readDeadline  = 30 * time.Second

	backlogLimit  = 500
	backlogWindow = time.Hour
)

// Backlog serves the opening-message catch-up query; internal/persist's
// Store satisfies it via Recent.
type Backlog interface {
	Recent(ctx context.Context, sinceUnix int64, limit int) ([]spotmodel.EnrichedSpot, error)
}

// subscriber is one accepted WebSocket connection. Each subscriber owns
// its own write mutex so the fanout loop and the per-connection backlog
// send never race on the connection's writes.
type subscriber struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *subscriber) send(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return s.conn.WriteJSON(v)
}

// Broadcaster maintains the active subscriber set and fans out batches
// consumed from EgressStream.
type Broadcaster struct {
	upgrader websocket.Upgrader
	backlog  Backlog
	log      *zap.SugaredLogger

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

// New constructs a Broadcaster. backlog may be nil if catch-up queries
// are not needed (e.g. in tests).
func New(backlog Backlog, log *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{
		backlog: backlog,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subscribers: make(map[*subscriber]struct{}),
	}
}

// SubscriberCount reports the current active subscriber set size, for metrics.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// ServeSpotsWS upgrades the request, registers the connection, sends the
// requested backlog, then blocks reading (and discarding) client text
// until the connection closes.
func (b *Broadcaster) ServeSpotsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	sub := &subscriber{conn: conn}

	b.register(sub)
	defer b.unregister(sub)

	b.sendBacklog(r.Context(), sub)
	b.readLoop(sub)
}

func (b *Broadcaster) register(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[sub] = struct{}{}
}

func (b *Broadcaster) unregister(sub *subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
	_ = sub.conn.Close()
}

type openingMessage struct {
	Initial  bool  `json:"initial"`
	LastTime int64 `json:"last_time"`
}

func (b *Broadcaster) sendBacklog(ctx context.Context, sub *subscriber) {
	if b.backlog == nil {
		return
	}
	_ = sub.conn.SetReadDeadline(time.Now().Add(readDeadline))
	var opening openingMessage
	if err := sub.conn.ReadJSON(&opening); err != nil {
		return
	}
	// The deadline covers only the opening message; readLoop waits for
	// disconnect with no deadline.
	_ = sub.conn.SetReadDeadline(time.Time{})

	var since int64
	var kind string
	switch {
	case opening.Initial:
		since = time.Now().Add(-backlogWindow).Unix()
		kind = "initial"
	case opening.LastTime > 0:
		since = opening.LastTime
		kind = "update"
	default:
		return
	}

	spots, err := b.backlog.Recent(ctx, since, backlogLimit)
	if err != nil {
		b.log.Warnw("backlog query failed", "error", err)
		return
	}
	_ = sub.send(map[string]interface{}{
		"type":  kind,
		"spots": transformBatch(spots),
	})
}

func (b *Broadcaster) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Run consumes batches from egress and fans each out to a snapshot of
// the active subscriber set, removing any subscriber whose send failed
// after the snapshot iteration completes (snapshot-iterate-then-remove:
// a concurrent disconnect during fanout never invalidates the
// iteration).
func (b *Broadcaster) Run(ctx context.Context, egress *stream.EgressStream) error {
	return egress.Run(ctx, b.broadcastBatch)
}

func (b *Broadcaster) broadcastBatch(_ context.Context, spots []spotmodel.EnrichedSpot) {
	wire := transformBatch(spots)
	if len(wire) == 0 {
		return
	}
	payload := map[string]interface{}{"type": "update", "spots": wire}

	b.mu.Lock()
	snapshot := make([]*subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		snapshot = append(snapshot, sub)
	}
	b.mu.Unlock()

	// Each subscriber is sent to concurrently: every subscriber owns its
	// own write mutex, so one slow or dead connection's write-deadline
	// wait no longer delays delivery to the rest of the snapshot.
	var mu sync.Mutex
	var failed []*subscriber
	var wg sync.WaitGroup
	wg.Add(len(snapshot))
	for _, sub := range snapshot {
		sub := sub
		go func() {
			defer wg.Done()
			if err := sub.send(payload); err != nil {
				mu.Lock()
				failed = append(failed, sub)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(failed) == 0 {
		return
	}
	b.mu.Lock()
	for _, sub := range failed {
		delete(b.subscribers, sub)
	}
	b.mu.Unlock()
	for _, sub := range failed {
		_ = sub.conn.Close()
	}
}

// ServeRadio implements the out-of-core /radio endpoint: every request
// is answered with an immediate "unavailable" status, since no
// radio-control sidecar is wired into this core.
func (b *Broadcaster) ServeRadio(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	_ = conn.WriteJSON(map[string]string{"status": "unavailable"})
}
