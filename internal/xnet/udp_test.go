package xnet

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jabolina/go-core/pkg/core/types"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

func TestUDPTransportRoundTrip(t *testing.T) {
	defer func() {
		time.Sleep(50 * time.Millisecond)
		goleak.VerifyNone(t)
	}()

	a, err := Listen("127.0.0.1:0", nopLogger{})
	if err != nil {
		t.Fatalf("listen a: %v", err)
	}
	defer a.Close()

	b, err := Listen("127.0.0.1:0", nopLogger{})
	if err != nil {
		t.Fatalf("listen b: %v", err)
	}
	defer b.Close()

	peerA := types.PeerID{1}
	peerB := types.PeerID{2}

	if err := a.RegisterPeerAddress(peerB, b.conn.LocalAddr().String()); err != nil {
		t.Fatalf("register b's address on a: %v", err)
	}
	if err := b.RegisterPeerAddress(peerA, a.conn.LocalAddr().String()); err != nil {
		t.Fatalf("register a's address on b: %v", err)
	}

	a.NotifyTransmitReady(peerB, 1500, time.Now().Add(time.Second), func(maxSize int) []byte {
		return []byte("hello from a")
	})

	select {
	case msg := <-b.Received():
		if msg.Peer != peerA {
			t.Fatalf("expected datagram tagged with peerA, got %v", msg.Peer)
		}
		if string(msg.Data) != "hello from a" {
			t.Fatalf("expected payload round-tripped, got %q", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for datagram")
	}
}

func TestNotifyTransmitReadySkipsEmptyPayload(t *testing.T) {
	a, err := Listen("127.0.0.1:0", nopLogger{})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer a.Close()

	peer := types.PeerID{3}
	if err := a.RegisterPeerAddress(peer, a.conn.LocalAddr().String()); err != nil {
		t.Fatalf("register: %v", err)
	}

	called := false
	a.NotifyTransmitReady(peer, 100, time.Now(), func(maxSize int) []byte {
		called = true
		return nil
	})
	if !called {
		t.Fatalf("expected cb invoked even when it declines to send")
	}
	select {
	case msg := <-a.Received():
		t.Fatalf("expected nothing sent for an empty payload, got %q", msg.Data)
	case <-time.After(100 * time.Millisecond):
	}
}
