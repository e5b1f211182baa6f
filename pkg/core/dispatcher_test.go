package core

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/jabolina/go-core/pkg/core/types"
)

// capturingTransport implements types.Transport by recording whatever the
// scheduler hands it on NotifyTransmitReady, letting the test shuttle bytes
// between two Core instances by hand (mirrors kx_test.go's fakeScheduler).
type capturingTransport struct {
	sent     map[types.PeerID][][]byte
	received chan types.Inbound
}

func newCapturingTransport() *capturingTransport {
	return &capturingTransport{
		sent:     make(map[types.PeerID][][]byte),
		received: make(chan types.Inbound, 16),
	}
}

func (c *capturingTransport) NotifyTransmitReady(peer types.PeerID, maxSize int, deadline time.Time, cb types.TransmitReadyFunc) {
	b := cb(maxSize)
	if len(b) > 0 {
		c.sent[peer] = append(c.sent[peer], b)
	}
}

func (c *capturingTransport) SetQuota(types.PeerID, uint64, uint64) {}
func (c *capturingTransport) RequestConnect(types.PeerID)           {}
func (c *capturingTransport) Received() <-chan types.Inbound        { return c.received }

func (c *capturingTransport) pop(peer types.PeerID) []byte {
	q := c.sent[peer]
	if len(q) == 0 {
		return nil
	}
	b := q[0]
	c.sent[peer] = q[1:]
	return b
}

type directResolver struct {
	key types.PublicKey
}

func (d directResolver) Lookup(ctx context.Context, peer types.PeerID, cb func(types.PublicKey, bool)) {
	cb(d.key, true)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

func genHost(t *testing.T, id byte) types.HostIdentity {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	var pid types.PeerID
	pid[0] = id
	return types.HostIdentity{Private: priv, Public: types.PublicKey{Key: &priv.PublicKey}, ID: pid}
}

func testConfig() types.Config {
	return types.Config{TotalQuotaIn: 1 << 20, TotalQuotaOut: 1 << 20, HostKeyPath: "test"}
}

// pump drains every framed datagram currently sitting in fromTransport's
// outbox for 'to' and dispatches it directly into dst, repeating until both
// sides go quiet. This stands in for a real network shuttling bytes between
// two dispatchers.
func pump(t *testing.T, a *Core, ta *capturingTransport, peerOfB types.PeerID, b *Core, tb *capturingTransport, peerOfA types.PeerID) {
	t.Helper()
	for i := 0; i < 10; i++ {
		progressed := false
		for {
			msg := ta.pop(peerOfB)
			if msg == nil {
				break
			}
			b.dispatch(types.Inbound{Peer: peerOfA, Data: msg})
			progressed = true
		}
		for {
			msg := tb.pop(peerOfA)
			if msg == nil {
				break
			}
			a.dispatch(types.Inbound{Peer: peerOfB, Data: msg})
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

// TestConnectHandshakeAndClientSend drives two Core dispatchers through the
// full SET_KEY/PING/PONG exchange via Connect, then exercises a
// client-originated SEND once both sides reach KEY_CONFIRMED.
func TestConnectHandshakeAndClientSend(t *testing.T) {
	hostA := genHost(t, 0xA1)
	hostB := genHost(t, 0xB2)

	ta := newCapturingTransport()
	tb := newCapturingTransport()

	a, err := New(testConfig(), hostA, ta, directResolver{key: hostB.Public}, nopLogger{}, types.NopRecorder{})
	if err != nil {
		t.Fatalf("New(a): %v", err)
	}
	b, err := New(testConfig(), hostB, tb, directResolver{key: hostA.Public}, nopLogger{}, types.NopRecorder{})
	if err != nil {
		t.Fatalf("New(b): %v", err)
	}

	a.Connect(hostB.ID)
	b.Connect(hostA.ID)
	pump(t, a, ta, hostB.ID, b, tb, hostA.ID)

	nA := a.neighbors[hostB.ID]
	nB := b.neighbors[hostA.ID]
	if nA == nil || nA.State != types.KeyConfirmed {
		t.Fatalf("expected A's neighbor KEY_CONFIRMED, got %+v", nA)
	}
	if nB == nil || nB.State != types.KeyConfirmed {
		t.Fatalf("expected B's neighbor KEY_CONFIRMED, got %+v", nB)
	}

	var gotPayload []byte
	clientID := b.RegisterClient(types.SendFullInbound, map[uint16]bool{42: true}, func(n types.Notification) {
		gotPayload = n.Payload
	})
	_ = clientID

	senderID := a.RegisterClient(0, nil, nil)
	if err := a.ClientSend(senderID, hostB.ID, 1, time.Now().Add(time.Second), 42, []byte("hello")); err != nil {
		t.Fatalf("ClientSend: %v", err)
	}

	a.scheduler.Process(nA)
	pump(t, a, ta, hostB.ID, b, tb, hostA.ID)

	if string(gotPayload) != "hello" {
		t.Fatalf("expected B's client to receive %q, got %q", "hello", gotPayload)
	}
}

func TestClientSendUnknownNeighbor(t *testing.T) {
	host := genHost(t, 1)
	tr := newCapturingTransport()
	c, err := New(testConfig(), host, tr, directResolver{}, nopLogger{}, types.NopRecorder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id := c.RegisterClient(0, nil, nil)
	if err := c.ClientSend(id, types.PeerID{9, 9}, 0, time.Now(), 1, []byte("x")); err != types.ErrUnknownNeighbor {
		t.Fatalf("expected ErrUnknownNeighbor, got %v", err)
	}
}

func TestClientRequestInfoUnknownNeighbor(t *testing.T) {
	host := genHost(t, 4)
	tr := newCapturingTransport()
	c, err := New(testConfig(), host, tr, directResolver{}, nopLogger{}, types.NopRecorder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.ClientRequestInfo(types.PeerID{9, 9}, 0, 0, 0); err != types.ErrUnknownNeighbor {
		t.Fatalf("expected ErrUnknownNeighbor, got %v", err)
	}
}

func TestClientRequestInfoAppliesPreferenceAndTracksSum(t *testing.T) {
	hostA := genHost(t, 5)
	hostB := genHost(t, 6)
	tr := newCapturingTransport()
	c, err := New(testConfig(), hostA, tr, directResolver{key: hostB.Public}, nopLogger{}, types.NopRecorder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Connect(hostB.ID)

	info, err := c.ClientRequestInfo(hostB.ID, 4096, 0, 10)
	if err != nil {
		t.Fatalf("ClientRequestInfo: %v", err)
	}
	if info.Preference != 10 || c.preferenceSum != 10 {
		t.Fatalf("expected preference 10 tracked in both neighbor and sum, got info=%d sum=%d", info.Preference, c.preferenceSum)
	}

	n := c.neighbors[hostB.ID]
	if n.InternalOutCap != 4096 {
		t.Fatalf("expected outbound limit applied, got %d", n.InternalOutCap)
	}
}

func TestApplyPreferenceDeltaHalvesOnOverflow(t *testing.T) {
	host := genHost(t, 7)
	tr := newCapturingTransport()
	c, err := New(testConfig(), host, tr, directResolver{}, nopLogger{}, types.NopRecorder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n1 := types.NewNeighbor(types.PeerID{10})
	n1.CurrentPreference = 6
	n2 := types.NewNeighbor(types.PeerID{11})
	n2.CurrentPreference = 4
	c.neighbors[n1.Identity] = n1
	c.neighbors[n2.Identity] = n2
	c.preferenceSum = ^uint64(0) // max uint64: any positive delta overflows

	c.applyPreferenceDelta(n1, 3)

	if n1.CurrentPreference != 3+3 || n2.CurrentPreference != 2 {
		t.Fatalf("expected existing preferences halved before applying delta, got n1=%d n2=%d", n1.CurrentPreference, n2.CurrentPreference)
	}
	if c.preferenceSum != n1.CurrentPreference+n2.CurrentPreference {
		t.Fatalf("expected preference_sum recomputed to match P6, got %d", c.preferenceSum)
	}
}

func TestDisconnectRemovesNeighborAndNotifies(t *testing.T) {
	hostA := genHost(t, 2)
	hostB := genHost(t, 3)
	tr := newCapturingTransport()
	c, err := New(testConfig(), hostA, tr, directResolver{key: hostB.Public}, nopLogger{}, types.NopRecorder{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var disconnected bool
	c.RegisterClient(types.SendDisconnect, nil, func(n types.Notification) {
		if n.Kind == types.NotifyDisconnect {
			disconnected = true
		}
	})

	c.Connect(hostB.ID)
	c.Disconnect(hostB.ID)

	if _, ok := c.neighbors[hostB.ID]; ok {
		t.Fatalf("expected neighbor removed after Disconnect")
	}
	if !disconnected {
		t.Fatalf("expected DISCONNECT notification fired")
	}
}
