// Package core implements Component G (§4.7): the dispatcher that binds
// key-exchange, scheduling, inbound decryption, bandwidth allocation, and
// the client multiplexer to one neighbor table, in a single cooperative
// loop with no internal locking (§5).
package core

import (
	"context"
	"time"

	"github.com/jabolina/go-core/pkg/core/bandwidth"
	"github.com/jabolina/go-core/pkg/core/client"
	"github.com/jabolina/go-core/pkg/core/inbound"
	"github.com/jabolina/go-core/pkg/core/kx"
	"github.com/jabolina/go-core/pkg/core/scheduler"
	"github.com/jabolina/go-core/pkg/core/types"
	"github.com/jabolina/go-core/pkg/core/wire"
)

// DefaultTargetBatchSize is the nominal ENCRYPTED_MESSAGE payload size
// the scheduler aims to fill per neighbor (§4.3), comfortably under
// types.MaxEncryptedMessageSize.
const DefaultTargetBatchSize = 32 * 1024

// Core is the single dispatcher instance for one host identity. It owns
// the neighbor table exclusively; every other component only ever
// touches a *types.Neighbor handed to it by Core.
type Core struct {
	identity  types.HostIdentity
	transport types.Transport
	resolver  types.PeerInfoResolver
	log       types.Logger
	rec       types.Recorder

	scheduler *scheduler.Scheduler
	kx        *kx.KX
	inbound   *inbound.Pipeline
	bandwidth *bandwidth.Allocator
	clients   *client.Multiplexer

	neighbors map[types.PeerID]*types.Neighbor

	// preferenceSum is the running total of every neighbor's
	// CurrentPreference (§4.5, P6 "Sum of per-neighbor current_preference
	// equals preference_sum"). It is dispatcher-owned shared state, like
	// the neighbor map and client list (§5 "Shared resources").
	preferenceSum uint64
}

// New wires every component together (§4.7 "construction order") and
// validates cfg (§6 "absence of any is a fatal startup error").
func New(cfg types.Config, identity types.HostIdentity, transport types.Transport, resolver types.PeerInfoResolver, log types.Logger, rec types.Recorder) (*Core, error) {
	if err := types.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = types.NopRecorder{}
	}

	c := &Core{
		identity:  identity,
		transport: transport,
		resolver:  resolver,
		log:       log,
		rec:       rec,
		neighbors: make(map[types.PeerID]*types.Neighbor),
	}

	clients := client.New(nil, transport, log, rec)
	sched := scheduler.New(transport, clients, log, rec, DefaultTargetBatchSize)
	clients.SetScheduler(sched)

	kxDriver := kx.New(identity, resolver, sched, log, rec)
	kxDriver.OnSessionEstablished = func(n *types.Neighbor) {
		clients.NotifyConnect(n.Identity)
	}

	alloc := bandwidth.New(cfg.TotalQuotaIn, cfg.TotalQuotaOut, transport, log, rec)
	alloc.OnIdleDisconnect = func(n *types.Neighbor) {
		c.Disconnect(n.Identity)
	}

	c.clients = clients
	c.scheduler = sched
	c.kx = kxDriver
	c.inbound = inbound.New(clients, log, rec)
	c.bandwidth = alloc

	return c, nil
}

// Run is the single dispatcher loop (§5): it arms the bandwidth
// recompute tick and drains the transport's inbound channel until ctx is
// canceled or the channel closes.
func (c *Core) Run(ctx context.Context) {
	c.bandwidth.Start(c.neighborSnapshot)
	defer c.bandwidth.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.transport.Received():
			if !ok {
				return
			}
			c.dispatch(msg)
		}
	}
}

func (c *Core) neighborSnapshot() []*types.Neighbor {
	out := make([]*types.Neighbor, 0, len(c.neighbors))
	for _, n := range c.neighbors {
		out = append(out, n)
	}
	return out
}

// dispatch routes one raw datagram by peeking its header type (§4.7):
// SET_KEY/PING/PONG go to kx, ENCRYPTED_MESSAGE goes to inbound once the
// neighbor is KEY_CONFIRMED, and anything else is dropped and logged.
func (c *Core) dispatch(msg types.Inbound) {
	n, ok := c.neighbors[msg.Peer]
	if !ok {
		c.log.Warnf("core: datagram from unknown neighbor %s, dropping", msg.Peer)
		return
	}

	typ, err := wire.PeekMessageType(msg.Data)
	if err != nil {
		c.log.Warnf("core: %v", err)
		return
	}

	var handleErr error
	switch typ {
	case types.SetKey:
		handleErr = c.kx.HandleSetKey(n, msg.Data)
	case types.Ping:
		handleErr = c.kx.HandlePing(n, msg.Data)
	case types.Pong:
		handleErr = c.kx.HandlePong(n, msg.Data)
	case types.EncryptedMessage:
		if n.State != types.KeyConfirmed {
			c.log.Warnf("core: ENCRYPTED_MESSAGE from %s before KEY_CONFIRMED, dropping", n.Identity)
			return
		}
		handleErr = c.inbound.HandleEncrypted(n, msg.Data)
	default:
		handleErr = types.ErrUnknownMessageType
	}

	if handleErr != nil {
		c.rec.IncCounter("core_dispatch_error_total", map[string]string{"type": typ.String()})
		c.log.Warnf("core: handling %s from %s: %v", typ, n.Identity, handleErr)
	}
}

// Connect creates (or returns the existing) Neighbor for peer, notifies
// PRE_CONNECT subscribers, and kicks off the key exchange (§3
// "Lifecycle", §4.2). Called once the transport reports a new
// connection.
func (c *Core) Connect(peer types.PeerID) *types.Neighbor {
	if n, ok := c.neighbors[peer]; ok {
		return n
	}
	n := types.NewNeighbor(peer)
	c.neighbors[peer] = n
	c.clients.NotifyPreConnect(peer)
	c.kx.SendKey(n)
	return n
}

// Disconnect tears a neighbor down (§3 "Lifecycle: destroyed on
// transport-disconnect") and notifies DISCONNECT subscribers. Called
// both by the transport's disconnect callback and by the bandwidth
// allocator's idle cutoff.
func (c *Core) Disconnect(peer types.PeerID) {
	n, ok := c.neighbors[peer]
	if !ok {
		return
	}
	n.Teardown()
	delete(c.neighbors, peer)
	c.clients.NotifyDisconnect(peer)
}

// RegisterClient handles a client's INIT request (§4.6).
func (c *Core) RegisterClient(opts types.ClientOption, msgTypes map[uint16]bool, deliver func(types.Notification)) types.ClientID {
	return c.clients.Register(opts, msgTypes, deliver)
}

// UnregisterClient handles a client disconnecting, scrubbing it from
// every neighbor's back-reference array (§5 P5).
func (c *Core) UnregisterClient(id types.ClientID) {
	c.clients.Unregister(id, c.neighbors)
}

// ClientSend handles a client's SEND request for an established peer
// (§4.6).
func (c *Core) ClientSend(id types.ClientID, peer types.PeerID, priority uint32, deadline time.Time, msgType uint16, payload []byte) error {
	n, ok := c.neighbors[peer]
	if !ok {
		return types.ErrUnknownNeighbor
	}
	c.clients.Send(id, n, &types.PlaintextEntry{
		Deadline: deadline,
		Priority: priority,
		Size:     len(payload) + types.InnerHeaderSize,
		Payload:  payload,
		Type:     msgType,
	})
	return nil
}

// ClientRequestConnect handles a client's REQUEST_CONNECT (§4.6).
func (c *Core) ClientRequestConnect(peer types.PeerID) {
	c.clients.RequestConnect(peer)
}

// ClientRequestInfo handles a client's REQUEST_INFO (§4.6, §6): applies an
// outbound limit, a reserve_inbound amount, and a preference delta to
// peer's neighbor, reporting back what happened via CONFIGURATION_INFO.
func (c *Core) ClientRequestInfo(peer types.PeerID, outboundLimit uint64, reserveAmount int64, preferenceDelta int64) (types.ConfigurationInfo, error) {
	n, ok := c.neighbors[peer]
	if !ok {
		return types.ConfigurationInfo{}, types.ErrUnknownNeighbor
	}
	return c.clients.RequestInfo(n, outboundLimit, reserveAmount, preferenceDelta, c.applyPreferenceDelta), nil
}

// applyPreferenceDelta accumulates delta into n.CurrentPreference and the
// dispatcher-level preference_sum (§4.5 "current_preference accumulates
// from clients' REQUEST_INFO calls; a running preference_sum tracks the
// total"). A positive delta that would overflow preference_sum instead
// halves every neighbor's preference first (§4.5 "On overflow... halved
// and the sum recomputed", P6). A negative delta lowers the neighbor's
// preference and the sum, each floored at zero.
func (c *Core) applyPreferenceDelta(n *types.Neighbor, delta int64) {
	switch {
	case delta > 0:
		d := uint64(delta)
		if c.preferenceSum+d < c.preferenceSum {
			c.halvePreferences()
		}
		n.CurrentPreference += d
		c.preferenceSum += d
	case delta < 0:
		d := uint64(-delta)
		if d > n.CurrentPreference {
			d = n.CurrentPreference
		}
		n.CurrentPreference -= d
		if d > c.preferenceSum {
			c.preferenceSum = 0
		} else {
			c.preferenceSum -= d
		}
	}
}

func (c *Core) halvePreferences() {
	var sum uint64
	for _, n := range c.neighbors {
		n.CurrentPreference /= 2
		sum += n.CurrentPreference
	}
	c.preferenceSum = sum
}
