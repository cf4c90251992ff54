// Package clustersession maintains one long-lived telnet connection to
// a remote DX cluster server: connect, log in, read lines, parse spots,
// forward them downstream, and reconnect with the fixed backoff table
// on any failure. The goroutine/backoff/shutdown shape is modeled on
// the teacher's rbn.Client connection supervisor, generalized from
// RBN's framing to the plain "DX de" line grammar and from a doubling
// backoff to the fixed delay table this protocol specifies.
package clustersession

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"holycluster/internal/spotmodel"
)

// Endpoint identifies one configured cluster server.
type Endpoint struct {
	Host string
	Port string

	// RequestBacklog, when set, sends "show/dx <n>" right after login
	// and parses the reply with parseShowDxLine before switching to live
	// "DX de" lines at the first blank line or prompt. Disabled by
	// default; enabling it is additive and does not change live-line
	// behavior.
	RequestBacklog bool
	BacklogCount   int
}

// Address returns the "host:port" form used as RawSpot.SourceEndpoint.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, e.Port)
}

// Forwarder receives parsed spots. The Supervisor wires this to the
// Deduplicator-then-IngressStream chain; ClusterSession itself knows
// nothing about deduplication or streams.
type Forwarder interface {
	Forward(ctx context.Context, spot spotmodel.RawSpot) error
}

const (
	dialTimeout     = 10 * time.Second
	loginDelay      = 2 * time.Second
	readIdleTimeout = 5 * time.Minute
)

// Session owns one endpoint's socket and parser state exclusively.
type Session struct {
	endpoint Endpoint
	login    string
	forward  Forwarder
	log      *zap.SugaredLogger
}

// New constructs a Session for the given endpoint.
func New(endpoint Endpoint, login string, forward Forwarder, log *zap.SugaredLogger) *Session {
	return &Session{endpoint: endpoint, login: login, forward: forward, log: log.With("endpoint", endpoint.Address())}
}

// Run is the reconnect supervisor: Idle -> Connecting -> Connected ->
// Cooldown -> Connecting ..., until ctx is cancelled. It never returns
// except on cancellation; all errors are logged and retried.
func (s *Session) Run(ctx context.Context) {
	var bo backoff
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.connectAndServe(ctx, &bo)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// connectAndServe only returns nil on cancellation, handled above.
			bo.Reset()
			continue
		}

		delay := bo.Next()
		s.log.Warnw("cluster session cooldown", "error", err, "retry_in", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connectAndServe dials once, logs in, and reads lines until the
// connection drops or ctx is cancelled. Connected -> Cooldown on any
// read/write error; Connected -> terminal on cancellation.
func (s *Session) connectAndServe(ctx context.Context, bo *backoff) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.endpoint.Address())
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", spotmodel.ErrTransient, s.endpoint.Address(), err)
	}
	defer conn.Close()
	// Connecting -> Connected: the next failure starts from the first delay.
	bo.Reset()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.log.Infow("connected to cluster", "login", s.login)

	select {
	case <-time.After(loginDelay):
	case <-ctx.Done():
		return nil
	}
	if _, err := fmt.Fprintf(conn, "%s\n", s.login); err != nil {
		return fmt.Errorf("%w: send login: %v", spotmodel.ErrTransient, err)
	}

	inBacklog := s.endpoint.RequestBacklog
	if inBacklog {
		n := s.endpoint.BacklogCount
		if n <= 0 {
			n = 100
		}
		if _, err := fmt.Fprintf(conn, "show/dx %d\n", n); err != nil {
			s.log.Warnw("backlog request failed", "error", err)
			inBacklog = false
		}
	}

	reader := bufio.NewReader(newTelnetFilterReader(conn))
	for {
		if err := conn.SetReadDeadline(time.Now().Add(readIdleTimeout)); err != nil {
			return fmt.Errorf("%w: set read deadline: %v", spotmodel.ErrTransient, err)
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: read: %v", spotmodel.ErrTransient, err)
		}
		line = strings.TrimRight(line, "\r\n")

		if inBacklog {
			// The backlog reply ends at a blank line or the server's
			// prompt; either one hands control back to the live feed.
			// Reply lines themselves end in "<spotter>", so they are
			// matched first.
			if !showDxLine.MatchString(line) && (line == "" || strings.Contains(line, ">")) {
				inBacklog = false
				continue
			}
			s.handleBacklogLine(ctx, line)
			continue
		}
		s.handleLine(ctx, line)
	}
}

func (s *Session) handleLine(ctx context.Context, line string) {
	spot, ok, err := ParseLine(line, s.endpoint.Address())
	if err != nil {
		s.log.Debugw("dropped unparseable line", "line", line, "error", err)
		return
	}
	if !ok {
		return
	}
	if err := s.forward.Forward(ctx, spot); err != nil {
		s.log.Warnw("failed to forward spot", "error", err)
	}
}

func (s *Session) handleBacklogLine(ctx context.Context, line string) {
	spot, ok, err := parseShowDxLine(line, s.endpoint.Address())
	if err != nil {
		s.log.Debugw("dropped unparseable backlog line", "line", line, "error", err)
		return
	}
	if !ok {
		return
	}
	if err := s.forward.Forward(ctx, spot); err != nil {
		s.log.Warnw("failed to forward backlog spot", "error", err)
	}
}
