// Package kx implements Component B (§4.2): the per-neighbor key-exchange
// state machine. It drives a Neighbor through DOWN → KEY_SENT →
// KEY_RECEIVED → KEY_CONFIRMED by building and verifying signed SET_KEY
// envelopes and sealed PING/PONG challenges, all handed to the scheduler
// as already-framed encrypted entries (§4.2, §4.3).
package kx

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/jabolina/go-core/pkg/core/types"
	"github.com/jabolina/go-core/pkg/core/wire"
)

// KX drives the key-exchange state machine for every neighbor sharing one
// host identity.
type KX struct {
	identity  types.HostIdentity
	resolver  types.PeerInfoResolver
	scheduler types.Scheduler
	log       types.Logger
	rec       types.Recorder

	// OnSessionEstablished fires once a neighbor reaches KEY_CONFIRMED
	// (§4.2 "PONG confirms the session"), so the client multiplexer can
	// emit NOTIFY_CONNECT.
	OnSessionEstablished func(*types.Neighbor)

	// Now is overridable for deterministic tests.
	Now func() time.Time
}

// New constructs a KX driver.
func New(identity types.HostIdentity, resolver types.PeerInfoResolver, scheduler types.Scheduler, log types.Logger, rec types.Recorder) *KX {
	if rec == nil {
		rec = types.NopRecorder{}
	}
	return &KX{
		identity:  identity,
		resolver:  resolver,
		scheduler: scheduler,
		log:       log,
		rec:       rec,
		Now:       time.Now,
	}
}

func newChallenge() uint32 {
	var buf [4]byte
	rand.Read(buf[:])
	return binary.BigEndian.Uint32(buf[:])
}

// SendKey (re)sends our SET_KEY to n, generating our session key on first
// use (§4.2 "on neighbor creation, or SET_KEY retry"). If n's long-term
// public key has not been resolved yet, this triggers an async lookup
// (at most one outstanding per neighbor, §3 P8) and defers.
func (k *KX) SendKey(n *types.Neighbor) {
	if !n.PeerKey.Valid() {
		k.triggerPeerInfoLookup(n, func() { k.SendKey(n) })
		return
	}

	if !n.OwnSessionKey.Valid {
		key, err := wire.GenerateSessionKey()
		if err != nil {
			k.log.Errorf("kx: generating session key for %s: %v", n.Identity, err)
			return
		}
		n.OwnSessionKey = key
		n.OwnKeyCreated = k.Now()
	}

	encKey, err := wire.EncryptSessionKeyRSA(n.PeerKey.Key, n.OwnSessionKey)
	if err != nil {
		k.log.Errorf("kx: encrypting session key for %s: %v", n.Identity, err)
		return
	}

	env := types.SetKeyEnvelope{
		SenderState:  n.State,
		PurposeSize:  1,
		Purpose:      types.SetKeyPurpose,
		Created:      n.OwnKeyCreated,
		EncryptedKey: encKey,
		Target:       n.Identity,
	}
	sig, err := wire.SignSetKeyEnvelope(k.identity.Private, env)
	if err != nil {
		k.log.Errorf("kx: signing SET_KEY for %s: %v", n.Identity, err)
		return
	}
	env.Signature = sig

	framed := wire.MarshalSetKey(env)
	k.enqueueFramed(n, framed)
	k.rec.IncCounter("core_kx_setkey_sent_total", nil)

	if n.State == types.Down {
		n.State = types.KeySent
	}

	k.rescheduleRetry(n)
}

func (k *KX) rescheduleRetry(n *types.Neighbor) {
	types.CancelAll(n.KeyRetryTask)
	n.KeyRetryTask = types.AfterFunc(n.SetKeyRetryFrequency, func() {
		n.SetKeyRetryFrequency *= 2
		if n.SetKeyRetryFrequency > types.MaxSetKeyRetry {
			n.SetKeyRetryFrequency = types.MaxSetKeyRetry
		}
		k.SendKey(n)
	})
}

func (k *KX) enqueueFramed(n *types.Neighbor, data []byte) {
	k.scheduler.EnqueueFramed(n, &types.EncryptedEntry{
		Deadline: k.Now().Add(types.InitialSetKeyRetry),
		Priority: types.MaxPriority,
		Size:     len(data),
		Bytes:    data,
	})
}

// triggerPeerInfoLookup asks the peer-info directory for n's long-term
// public key, honoring the at-most-one-outstanding invariant (§3 P8).
// onResolved runs once the key arrives, so either SendKey or the
// HandleSetKey call that triggered the lookup can resume.
func (k *KX) triggerPeerInfoLookup(n *types.Neighbor, onResolved func()) {
	if n.PeerInfoLookupInFlight {
		return
	}
	n.PeerInfoLookupInFlight = true
	ctx, cancel := context.WithTimeout(context.Background(), types.PeerInfoLookupTimeout)
	n.PeerInfoLookupCancel = cancel

	k.resolver.Lookup(ctx, n.Identity, func(key types.PublicKey, ok bool) {
		n.PeerInfoLookupInFlight = false
		n.PeerInfoLookupCancel = nil
		if !ok {
			k.log.Warnf("kx: peer-info lookup failed for %s", n.Identity)
			return
		}
		n.PeerKey = key
		onResolved()
	})
}

// HandleSetKey processes an inbound SET_KEY envelope (§4.2 rules 1-5,
// §4.1 rules 1-5).
func (k *KX) HandleSetKey(n *types.Neighbor, raw []byte) error {
	env, err := wire.UnmarshalSetKey(raw)
	if err != nil {
		return err
	}
	// SendKey always writes PurposeSize 1.
	if env.PurposeSize != 1 || env.Purpose != types.SetKeyPurpose {
		return types.ErrBadPurposeSize
	}
	if env.Target != k.identity.ID {
		return types.ErrWrongTarget
	}

	if !n.PeerKey.Valid() {
		k.triggerPeerInfoLookup(n, func() {
			if err := k.HandleSetKey(n, raw); err != nil {
				k.log.Warnf("kx: reprocessing SET_KEY from %s after peer-info resolution: %v", n.Identity, err)
			}
		})
		return nil
	}

	if err := wire.VerifySetKeyEnvelope(n.PeerKey.Key, env); err != nil {
		return types.ErrBadSignature
	}

	if n.SetKeySeenOnce && !env.Created.After(n.PeerKeyCreated) {
		return types.ErrReplayedSetKey
	}

	peerSessionKey, err := wire.DecryptSessionKeyRSA(k.identity.Private, env.EncryptedKey)
	if err != nil {
		return err
	}

	// §4.2 transition table: DOWN and KEY_SENT move to KEY_RECEIVED;
	// KEY_RECEIVED stays put but re-validates with a fresh timestamp;
	// KEY_CONFIRMED regresses to KEY_RECEIVED ("fresh handshake") on a
	// rekey. Every row that lands in/through KEY_RECEIVED resets inbound
	// sequence tracking.
	priorState := n.State
	switch priorState {
	case types.Down, types.KeySent, types.KeyConfirmed:
		n.State = types.KeyReceived
		n.ResetInboundSequence()
	case types.KeyReceived:
		n.ResetInboundSequence()
	}

	n.PeerSessionKey = peerSessionKey
	n.PeerKeyCreated = env.Created
	n.SetKeySeenOnce = true
	n.LastActivity = k.Now()

	// Reply with our own SET_KEY: unconditionally from DOWN (we have never
	// sent one), otherwise only if the peer's self-reported state shows it
	// hasn't received ours yet (KEY_SENT and KEY_CONFIRMED-rekey rows).
	switch priorState {
	case types.Down:
		k.SendKey(n)
	case types.KeySent, types.KeyConfirmed:
		if env.SenderState < types.KeyReceived {
			k.SendKey(n)
		}
	}

	if pending := n.PendingPing; pending != nil {
		n.PendingPing = nil
		if err := k.HandlePing(n, pending); err != nil {
			k.log.Warnf("kx: replaying deferred PING from %s: %v", n.Identity, err)
		}
	}

	return k.sendPing(n)
}

// sendPing seals a fresh challenge PING to n, used to confirm the session
// once both sides hold each other's session key (§4.2 "PING confirms the
// peer can decrypt").
func (k *KX) sendPing(n *types.Neighbor) error {
	n.PingChallenge = newChallenge()
	body := wire.MarshalPingPong(types.PingPongBody{Challenge: n.PingChallenge, Target: n.Identity})
	sealed, err := wire.SealMessage(types.Ping, n.OwnSessionKey, body)
	if err != nil {
		return err
	}
	k.enqueueFramed(n, sealed)
	return nil
}

// HandlePing processes an inbound PING (§4.2 "Deferred PING"). If the
// neighbor has not reached KEY_RECEIVED yet (no PeerSessionKey to decrypt
// with), the raw ciphertext is buffered — capacity exactly one. A second
// PING arriving while one is already buffered is discarded; the first
// buffered PING is kept.
func (k *KX) HandlePing(n *types.Neighbor, raw []byte) error {
	if n.State < types.KeyReceived {
		if n.PendingPing == nil {
			n.PendingPing = raw
		} else {
			k.rec.IncCounter("core_kx_ping_buffer_dropped_total", nil)
		}
		return nil
	}

	typ, plaintext, err := wire.OpenMessage(n.PeerSessionKey, raw)
	if err != nil {
		return err
	}
	if typ != types.Ping {
		return types.ErrUnknownMessageType
	}
	body, err := wire.UnmarshalPingPong(plaintext)
	if err != nil {
		return err
	}
	if body.Target != k.identity.ID {
		return types.ErrWrongTarget
	}

	n.LastActivity = k.Now()

	pong := wire.MarshalPingPong(types.PingPongBody{Challenge: body.Challenge, Target: n.Identity})
	sealed, err := wire.SealMessage(types.Pong, n.OwnSessionKey, pong)
	if err != nil {
		return err
	}
	k.enqueueFramed(n, sealed)
	return nil
}

// HandlePong processes an inbound PONG. A matching challenge confirms the
// session (§4.2: KEY_RECEIVED → KEY_CONFIRMED). A PONG that arrives before
// KEY_RECEIVED is rejected with ErrNoSessionKey, since there is no peer
// session key to open it with; it does not confirm the session.
func (k *KX) HandlePong(n *types.Neighbor, raw []byte) error {
	if n.State < types.KeyReceived {
		return types.ErrNoSessionKey
	}

	typ, plaintext, err := wire.OpenMessage(n.PeerSessionKey, raw)
	if err != nil {
		return err
	}
	if typ != types.Pong {
		return types.ErrUnknownMessageType
	}
	body, err := wire.UnmarshalPingPong(plaintext)
	if err != nil {
		return err
	}
	if body.Target != k.identity.ID || body.Challenge != n.PingChallenge {
		return types.ErrWrongTarget
	}

	n.LastActivity = k.Now()
	types.CancelAll(n.KeyRetryTask)
	n.KeyRetryTask = nil

	if n.State != types.KeyConfirmed {
		n.State = types.KeyConfirmed
		n.SessionEstablished = n.LastActivity
		k.rec.IncCounter("core_kx_confirmed_total", nil)
		if k.OnSessionEstablished != nil {
			k.OnSessionEstablished(n)
		}
	}
	return nil
}
