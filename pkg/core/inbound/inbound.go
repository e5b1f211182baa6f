// Package inbound implements Component D (§4.4): the inbound pipeline
// that turns a raw datagram from a KEY_CONFIRMED neighbor into decrypted
// inner messages, applying the replay window and refreshing the receive
// window before fanning them out to the client multiplexer.
package inbound

import (
	"time"

	"github.com/jabolina/go-core/pkg/core/types"
	"github.com/jabolina/go-core/pkg/core/wire"
)

// Pipeline decrypts and dispatches ENCRYPTED_MESSAGE datagrams.
type Pipeline struct {
	notifier types.InboundNotifier
	log      types.Logger
	rec      types.Recorder

	// Now is overridable for deterministic tests.
	Now func() time.Time
}

// New constructs a Pipeline.
func New(notifier types.InboundNotifier, log types.Logger, rec types.Recorder) *Pipeline {
	if rec == nil {
		rec = types.NopRecorder{}
	}
	return &Pipeline{notifier: notifier, log: log, rec: rec, Now: time.Now}
}

// HandleEncrypted processes one ENCRYPTED_MESSAGE datagram from n
// (§4.4). It is only called once n has reached KEY_CONFIRMED; PING/PONG/
// SET_KEY are routed to pkg/core/kx instead (§4.7).
func (p *Pipeline) HandleEncrypted(n *types.Neighbor, raw []byte) error {
	envelope, err := wire.UnmarshalEncryptedEnvelope(raw)
	if err != nil {
		return err
	}

	plaintext, err := wire.DecryptBody(n.PeerSessionKey, envelope.BodyHash, envelope.Body)
	if err != nil {
		p.rec.IncCounter("core_inbound_decrypt_failed_total", nil)
		return err
	}

	body, err := wire.UnmarshalEncryptedBody(plaintext)
	if err != nil {
		return err
	}

	now := p.Now()
	age := now.Sub(body.Timestamp)
	if age > types.MaxMessageAge || age < -types.PastExpirationTolerance {
		p.rec.IncCounter("core_inbound_stale_total", nil)
		return types.ErrStaleTimestamp
	}

	if !n.CheckAndAdvanceReplay(body.Sequence) {
		p.rec.IncCounter("core_inbound_replay_total", nil)
		return types.ErrDuplicateOrOld
	}

	messages, err := wire.WalkInner(body.InnerBytes)
	if err != nil {
		return err
	}

	n.LastActivity = now
	p.refreshRecvWindow(n, now, len(raw))

	if body.QuotaHint != 0 {
		n.ExternalOutCap = uint64(body.QuotaHint)
	}

	for _, msg := range messages {
		if p.notifier != nil {
			p.notifier.NotifyInbound(n.Identity, msg.Type, msg.Payload)
		}
	}
	p.rec.IncCounter("core_inbound_messages_total", nil)
	return nil
}

// refreshRecvWindow accounts the datagram against the neighbor's receive
// window, replenishing it by elapsed time at the current inbound quota
// first (§4.4, mirrors the outbound window bookkeeping in §4.3).
func (p *Pipeline) refreshRecvWindow(n *types.Neighbor, now time.Time, size int) {
	n.RefreshRecvWindow(now)
	n.AvailableRecvWindow -= int64(size)
}
