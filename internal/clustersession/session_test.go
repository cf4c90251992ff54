package clustersession

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"holycluster/internal/spotmodel"
)

type captureForwarder struct {
	mu    sync.Mutex
	spots []spotmodel.RawSpot
}

func (c *captureForwarder) Forward(_ context.Context, s spotmodel.RawSpot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spots = append(c.spots, s)
	return nil
}

func (c *captureForwarder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.spots)
}

func TestSessionParsesAndForwardsLiveLine(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Drain the login line.
		bufio.NewReader(conn).ReadString('\n')
		conn.Write([]byte("DX de K5TR-7:    14056.0  VE2PID    CW 17 dB 22 WPM CQ             2010Z\n"))
		// Keep the connection open so Run doesn't immediately cooldown/reconnect.
		time.Sleep(2 * time.Second)
	}()

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	forwarder := &captureForwarder{}
	logger := zap.NewNop().Sugar()
	sess := New(Endpoint{Host: host, Port: port}, "TESTCALL", forwarder, logger)

	ctx, cancel := context.WithTimeout(context.Background(), loginDelay+3*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()

	// The login (and so the server's spot line) only goes out after loginDelay.
	deadline := time.Now().Add(loginDelay + 2*time.Second)
	for forwarder.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if forwarder.count() != 1 {
		t.Fatalf("expected 1 forwarded spot, got %d", forwarder.count())
	}
}

func TestSessionStopsOnCancellationWithoutEndpoint(t *testing.T) {
	forwarder := &captureForwarder{}
	logger := zap.NewNop().Sugar()
	// Nothing listens on localhost port 1, so the dial fails and Run
	// sits in its 60s cooldown; Run must still return promptly once ctx
	// is cancelled.
	sess := New(Endpoint{Host: "127.0.0.1", Port: "1"}, "TESTCALL", forwarder, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
