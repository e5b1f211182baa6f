// Package client implements Component F (§4.6): the local-client
// multiplexer. It tracks registered clients and their subscription
// filters, accepts SEND/REQUEST_CONNECT requests on their behalf, and
// fans out connect/disconnect/inbound/outbound notifications subject to
// each client's options and a bounded, oldest-drop delivery queue.
package client

import (
	"time"

	"github.com/jabolina/go-core/pkg/core/types"
)

// Multiplexer is the registry of locally-connected clients.
type Multiplexer struct {
	scheduler types.Scheduler
	transport types.Transport
	log       types.Logger
	rec       types.Recorder

	clients map[types.ClientID]*types.Client
	nextID  types.ClientID

	// Now is overridable for deterministic tests.
	Now func() time.Time
}

// New constructs an empty Multiplexer.
func New(scheduler types.Scheduler, transport types.Transport, log types.Logger, rec types.Recorder) *Multiplexer {
	if rec == nil {
		rec = types.NopRecorder{}
	}
	return &Multiplexer{
		scheduler: scheduler,
		transport: transport,
		log:       log,
		rec:       rec,
		clients:   make(map[types.ClientID]*types.Client),
		Now:       time.Now,
	}
}

// SetScheduler wires the scheduler in after construction, breaking the
// construction cycle between the scheduler (which needs the multiplexer
// as its OutboundNotifier) and the multiplexer (which needs the
// scheduler for Send).
func (m *Multiplexer) SetScheduler(s types.Scheduler) {
	m.scheduler = s
}

// Register handles a client's INIT request, returning the assigned
// ClientID (§4.6).
func (m *Multiplexer) Register(opts types.ClientOption, msgTypes map[uint16]bool, deliver func(types.Notification)) types.ClientID {
	m.nextID++
	id := m.nextID
	m.clients[id] = &types.Client{ID: id, Options: opts, Types: msgTypes, Deliver: deliver}
	m.rec.SetGauge("core_clients_registered", nil, float64(len(m.clients)))
	return id
}

// Unregister removes a client and scrubs every neighbor back-reference to
// it (§5 P5 "Cyclic references" / "dangling back-reference").
func (m *Multiplexer) Unregister(id types.ClientID, neighbors map[types.PeerID]*types.Neighbor) {
	delete(m.clients, id)
	for _, n := range neighbors {
		n.ForgetClient(id)
	}
	m.rec.SetGauge("core_clients_registered", nil, float64(len(m.clients)))
}

// Send handles a client's SEND request: it remembers the client as a
// back-reference on the neighbor (§5, §9) and admits the plaintext entry
// into the scheduler.
func (m *Multiplexer) Send(id types.ClientID, n *types.Neighbor, entry *types.PlaintextEntry) {
	n.RememberClient(id)
	m.scheduler.Enqueue(n, entry)
}

// RequestConnect handles a client's REQUEST_CONNECT: an address hint with
// zero size/priority toward the transport (§4.6).
func (m *Multiplexer) RequestConnect(peer types.PeerID) {
	if m.transport != nil {
		m.transport.RequestConnect(peer)
	}
}

// RequestInfo handles a client's REQUEST_INFO (§4.6, §4.5 "Inbound
// reservation"): an outbound limit, a reserve_inbound amount, and a
// preference delta all apply directly to n. The preference delta is
// routed through applyPreference since the running preference_sum (and
// its overflow-halving, P6) is shared dispatcher state, not something
// the multiplexer owns. This is a point-to-point reply, not a
// subscription broadcast, so it bypasses the notification queue.
func (m *Multiplexer) RequestInfo(n *types.Neighbor, outboundLimit uint64, reserveAmount int64, preferenceDelta int64, applyPreference func(*types.Neighbor, int64)) types.ConfigurationInfo {
	if outboundLimit != 0 {
		n.InternalOutCap = outboundLimit
	}
	reserved := n.ReserveInbound(m.Now(), reserveAmount)
	if applyPreference != nil {
		applyPreference(n, preferenceDelta)
	}
	return types.ConfigurationInfo{
		Peer:           n.Identity,
		ReservedAmount: reserved,
		QuotaIn:        n.TargetQuotaIn,
		QuotaOut:       n.OutboundQuota(),
		Preference:     n.CurrentPreference,
	}
}

// NotifyPreConnect, NotifyConnect, and NotifyDisconnect broadcast neighbor
// lifecycle events to subscribed clients (§4.6). These are mandatory:
// never subject to the bounded-queue drop policy.
func (m *Multiplexer) NotifyPreConnect(peer types.PeerID) {
	m.broadcastLifecycle(types.NotifyPreConnect, types.SendPreConnect, peer)
}

func (m *Multiplexer) NotifyConnect(peer types.PeerID) {
	m.broadcastLifecycle(types.NotifyConnect, types.SendConnect, peer)
}

func (m *Multiplexer) NotifyDisconnect(peer types.PeerID) {
	m.broadcastLifecycle(types.NotifyDisconnect, types.SendDisconnect, peer)
}

func (m *Multiplexer) broadcastLifecycle(kind types.NotificationKind, flag types.ClientOption, peer types.PeerID) {
	for _, c := range m.clients {
		if c.Options.Has(flag) {
			m.deliver(c, types.Notification{Kind: kind, Peer: peer, Mandatory: true})
		}
	}
}

// NotifyOutbound implements types.OutboundNotifier (§4.3 "Notification
// fan-out"): every client subscribed to entry's type, with
// SEND_FULL_OUTBOUND or SEND_HDR_OUTBOUND, gets a notification — full
// body under the per-notification cap, header-only above it.
func (m *Multiplexer) NotifyOutbound(peer types.PeerID, entry *types.PlaintextEntry) {
	for _, c := range m.clients {
		if !c.Subscribes(entry.Type) {
			continue
		}
		notif, ok := buildNotification(c, types.SendFullOutbound, types.SendHdrOutbound,
			types.NotifyOutbound, types.NotifyOutboundHeader, peer, entry.Type, entry.Payload)
		if ok {
			m.deliver(c, notif)
		}
	}
}

// NotifyInbound implements types.InboundNotifier (§4.4): mirrors
// NotifyOutbound for SEND_FULL_INBOUND/SEND_HDR_INBOUND.
func (m *Multiplexer) NotifyInbound(peer types.PeerID, msgType uint16, payload []byte) {
	for _, c := range m.clients {
		if !c.Subscribes(msgType) {
			continue
		}
		notif, ok := buildNotification(c, types.SendFullInbound, types.SendHdrInbound,
			types.NotifyInbound, types.NotifyInboundHeader, peer, msgType, payload)
		if ok {
			m.deliver(c, notif)
		}
	}
}

// buildNotification picks between full-body and header-only delivery: a
// full subscriber still falls back to headers-only once payload exceeds
// NotifyHeaderCap (§4.3 "Headers-only is used when the message exceeds a
// per-notification cap").
func buildNotification(c *types.Client, full, hdr types.ClientOption, fullKind, hdrKind types.NotificationKind, peer types.PeerID, msgType uint16, payload []byte) (types.Notification, bool) {
	switch {
	case c.Options.Has(full) && len(payload) <= types.NotifyHeaderCap:
		return types.Notification{Kind: fullKind, Peer: peer, Type: msgType, Payload: payload}, true
	case c.Options.Has(full) || c.Options.Has(hdr):
		return types.Notification{Kind: hdrKind, Peer: peer, Type: msgType}, true
	default:
		return types.Notification{}, false
	}
}

// deliver applies the bounded, oldest-drop queue policy (§4.6) before
// invoking the client's Deliver callback.
func (m *Multiplexer) deliver(c *types.Client, notif types.Notification) {
	if !notif.Mandatory && len(c.Queue) >= types.MaxClientQueueSize {
		c.Queue = c.Queue[1:]
		m.rec.IncCounter("core_client_notify_dropped_total", nil)
	}
	c.Queue = append(c.Queue, notif)
	if c.Deliver != nil {
		c.Deliver(notif)
	}
}
