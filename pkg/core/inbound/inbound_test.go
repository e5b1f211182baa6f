package inbound

import (
	"testing"
	"time"

	"github.com/jabolina/go-core/pkg/core/types"
	"github.com/jabolina/go-core/pkg/core/wire"
)

type capturingNotifier struct {
	peer types.PeerID
	typ  uint16
	body []byte
	n    int
}

func (c *capturingNotifier) NotifyInbound(peer types.PeerID, msgType uint16, payload []byte) {
	c.peer = peer
	c.typ = msgType
	c.body = payload
	c.n++
}

func confirmedNeighborWithPeerKey() (*types.Neighbor, types.SessionKey) {
	n := types.NewNeighbor(types.PeerID{7})
	n.State = types.KeyConfirmed
	key, _ := wire.GenerateSessionKey()
	n.PeerSessionKey = key
	return n, key
}

func buildEncryptedEnvelope(t *testing.T, key types.SessionKey, seq uint32, ts time.Time, inner []byte) []byte {
	t.Helper()
	body := types.EncryptedBody{Sequence: seq, QuotaHint: 65536, Timestamp: ts, InnerBytes: inner}
	plaintext := wire.MarshalEncryptedBody(body)
	ciphertext, hash, err := wire.EncryptBody(key, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	return wire.MarshalEncryptedEnvelope(types.EncryptedEnvelope{
		Header:   types.MessageHeader{Type: types.EncryptedMessage},
		BodyHash: hash,
		Body:     ciphertext,
	})
}

func TestHandleEncryptedDispatchesInnerMessages(t *testing.T) {
	n, key := confirmedNeighborWithPeerKey()
	notifier := &capturingNotifier{}
	p := New(notifier, nopLogger{}, types.NopRecorder{})

	inner := wire.AppendInner(nil, 42, []byte("payload"))
	raw := buildEncryptedEnvelope(t, key, 1, time.Now(), inner)

	if err := p.HandleEncrypted(n, raw); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if notifier.n != 1 || notifier.typ != 42 || string(notifier.body) != "payload" {
		t.Fatalf("unexpected notification: %+v", notifier)
	}
	if n.HighestInboundSeq != 1 {
		t.Fatalf("expected sequence tracked, got %d", n.HighestInboundSeq)
	}
}

func TestHandleEncryptedRejectsReplayedSequence(t *testing.T) {
	n, key := confirmedNeighborWithPeerKey()
	p := New(nil, nopLogger{}, types.NopRecorder{})

	raw1 := buildEncryptedEnvelope(t, key, 5, time.Now(), nil)
	if err := p.HandleEncrypted(n, raw1); err != nil {
		t.Fatalf("first message: %v", err)
	}

	raw2 := buildEncryptedEnvelope(t, key, 5, time.Now(), nil)
	if err := p.HandleEncrypted(n, raw2); err != types.ErrDuplicateOrOld {
		t.Fatalf("expected ErrDuplicateOrOld, got %v", err)
	}
}

func TestHandleEncryptedRejectsStaleTimestamp(t *testing.T) {
	n, key := confirmedNeighborWithPeerKey()
	p := New(nil, nopLogger{}, types.NopRecorder{})

	raw := buildEncryptedEnvelope(t, key, 1, time.Now().Add(-2*types.MaxMessageAge), nil)
	if err := p.HandleEncrypted(n, raw); err != types.ErrStaleTimestamp {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}
}

func TestHandleEncryptedRejectsTamperedCiphertext(t *testing.T) {
	n, key := confirmedNeighborWithPeerKey()
	p := New(nil, nopLogger{}, types.NopRecorder{})

	raw := buildEncryptedEnvelope(t, key, 1, time.Now(), nil)
	raw[len(raw)-1] ^= 0xFF

	if err := p.HandleEncrypted(n, raw); err != types.ErrHashMismatch {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
