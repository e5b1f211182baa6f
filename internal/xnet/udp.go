// Package xnet supplies the default types.Transport implementation: a
// plain UDP socket. The teacher's own Transport (pkg/mcast/core) wraps
// github.com/jabolina/relt, a private reliable-multicast library that
// cannot be fetched outside its author's machine (its go.mod carries a
// local filesystem replace directive); the core module's Transport is
// explicitly out-of-scope/pluggable, so this package replaces it with a
// plain net.UDPConn while keeping the teacher's shape: a context+cancel
// pair, a buffered producer channel, and a background poll goroutine
// (mirrors ReliableTransport.poll/consume in pkg/mcast/core/transport.go).
package xnet

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/jabolina/go-core/pkg/core/types"
)

// UDPTransport implements types.Transport over a single UDP socket,
// demultiplexing peers by their last-known address.
type UDPTransport struct {
	log types.Logger

	conn *net.UDPConn

	producer chan types.Inbound

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	addrOf    map[types.PeerID]*net.UDPAddr
	peerOf    map[string]types.PeerID
	quotaOut  map[types.PeerID]uint64
}

// Listen opens a UDP socket on addr and starts polling it.
func Listen(addr string, log types.Logger) (*UDPTransport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &UDPTransport{
		log:      log,
		conn:     conn,
		producer: make(chan types.Inbound, 256),
		ctx:      ctx,
		cancel:   cancel,
		addrOf:   make(map[types.PeerID]*net.UDPAddr),
		peerOf:   make(map[string]types.PeerID),
		quotaOut: make(map[types.PeerID]uint64),
	}
	go t.poll()
	return t, nil
}

// RegisterPeerAddress records the UDP address a PeerID is reachable at,
// learned out-of-band (e.g. from a peer-info directory lookup) before
// the first datagram from that peer arrives.
func (t *UDPTransport) RegisterPeerAddress(peer types.PeerID, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addrOf[peer] = udpAddr
	t.peerOf[udpAddr.String()] = peer
	return nil
}

// NotifyTransmitReady implements types.Transport. The UDP socket has no
// inherent flow control, so readiness is immediate: cb is invoked
// synchronously and whatever bytes it returns are written straight to
// the peer's last-known address. deadline is advisory only — a plain
// UDP socket cannot itself guarantee a send-by time.
func (t *UDPTransport) NotifyTransmitReady(peer types.PeerID, maxSize int, deadline time.Time, cb types.TransmitReadyFunc) {
	data := cb(maxSize)
	if len(data) == 0 {
		return
	}
	if err := t.send(peer, data); err != nil {
		t.log.Warnf("xnet: sending to %s: %v", peer, err)
	}
}

func (t *UDPTransport) SetQuota(peer types.PeerID, bpmIn, bpmOut uint64) {
	t.mu.Lock()
	t.quotaOut[peer] = bpmOut
	t.mu.Unlock()
}

func (t *UDPTransport) RequestConnect(peer types.PeerID) {
	t.mu.Lock()
	addr, ok := t.addrOf[peer]
	t.mu.Unlock()
	if !ok {
		t.log.Warnf("xnet: RequestConnect for %s with no known address", peer)
		return
	}
	// A UDP "connect" is just sending the first datagram; the scheduler's
	// own kick drives that once the neighbor is in KEY_SENT, so this is a
	// no-op beyond confirming the address is known.
	_ = addr
}

func (t *UDPTransport) Received() <-chan types.Inbound {
	return t.producer
}

// Close stops polling and closes the socket.
func (t *UDPTransport) Close() error {
	t.cancel()
	return t.conn.Close()
}

func (t *UDPTransport) poll() {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.ctx.Done():
				return
			default:
				t.log.Warnf("xnet: read error: %v", err)
				continue
			}
		}

		t.mu.Lock()
		peer, known := t.peerOf[addr.String()]
		t.mu.Unlock()
		if !known {
			t.log.Warnf("xnet: datagram from unregistered address %s, dropping", addr)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case t.producer <- types.Inbound{Peer: peer, Data: data}:
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *UDPTransport) send(peer types.PeerID, data []byte) error {
	t.mu.Lock()
	addr, ok := t.addrOf[peer]
	t.mu.Unlock()
	if !ok {
		t.log.Warnf("xnet: send to %s with no known address", peer)
		return nil
	}
	_, err := t.conn.WriteToUDP(data, addr)
	return err
}
