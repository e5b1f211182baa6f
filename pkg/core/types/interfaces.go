package types

import (
	"context"
	"time"
)

// Logger is the logging contract every core component is handed (§ AMBIENT
// STACK). Mirrors the teacher's definition.Logger shape.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Recorder is the client side of the out-of-scope statistics service named
// in §1 ("statistics counters"). Core code only ever calls into this
// interface; it never implements a counters backend itself.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	SetGauge(name string, labels map[string]string, value float64)
}

// NopRecorder discards everything; used where no Recorder is configured.
type NopRecorder struct{}

func (NopRecorder) IncCounter(string, map[string]string)          {}
func (NopRecorder) SetGauge(string, map[string]string, float64) {}

// Transport is the external, unreliable/unauthenticated delivery layer
// (§1, out of scope). The core depends only on this interface; a concrete
// implementation (internal/xnet, or any other) is injected by the caller.
type Transport interface {
	// NotifyTransmitReady requests to be invoked once up to maxSize bytes
	// can be handed to peer, no later than deadline. At most one request
	// may be outstanding per peer at a time (§3 invariant, §5).
	NotifyTransmitReady(peer PeerID, maxSize int, deadline time.Time, cb TransmitReadyFunc)

	// SetQuota informs the transport of the current inbound/outbound
	// byte-per-minute quotas for peer (§4.5).
	SetQuota(peer PeerID, bpmIn, bpmOut uint64)

	// RequestConnect asks the transport to establish a connection to peer,
	// as an address hint with zero size/priority (§4.6).
	RequestConnect(peer PeerID)

	// Received returns the channel the transport delivers raw inbound
	// datagrams on, tagged with the sending peer.
	Received() <-chan Inbound
}

// OutboundNotifier is how the scheduler (§4.3 "Notification fan-out") tells
// the client multiplexer about a plaintext entry selected for
// transmission, before it is encrypted.
type OutboundNotifier interface {
	NotifyOutbound(peer PeerID, entry *PlaintextEntry)
}

// InboundNotifier is how the inbound pipeline (§4.4) tells the client
// multiplexer about a decrypted inner message.
type InboundNotifier interface {
	NotifyInbound(peer PeerID, msgType uint16, payload []byte)
}

// TransmitReadyFunc is called back by the Transport once it can accept up
// to maxSize bytes for peer; the callback returns the bytes actually sent
// (nil/empty to decline) (§4.3 "Transport kick").
type TransmitReadyFunc func(maxSize int) []byte

// Inbound is one opaque datagram delivered by the transport, tagged with
// its sender.
type Inbound struct {
	Peer PeerID
	Data []byte
}

// PeerInfoResolver is the external peer-info directory (§1, out of scope):
// maps a PeerID to its long-term public key via a signed advertisement. At
// most one lookup may be outstanding per neighbor (§3 invariant, P8).
type PeerInfoResolver interface {
	// Lookup resolves peer's long-term public key asynchronously; cb is
	// invoked exactly once, with ok=false on failure or context
	// cancellation. Lookups carry an implicit 20s deadline (§5).
	Lookup(ctx context.Context, peer PeerID, cb func(key PublicKey, ok bool))
}
