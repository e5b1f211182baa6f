package wire

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/jabolina/go-core/pkg/core/types"
)

func TestEncryptDecryptBodyRoundTrip(t *testing.T) {
	key, err := GenerateSessionKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	ciphertext, hash, err := EncryptBody(key, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(ciphertext) != len(plaintext) {
		t.Fatalf("ciphertext length %d != plaintext length %d", len(ciphertext), len(plaintext))
	}

	got, err := DecryptBody(key, hash, ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestDecryptBodyRejectsTamperedHash(t *testing.T) {
	key, _ := GenerateSessionKey()
	ciphertext, hash, _ := EncryptBody(key, []byte("hello"))
	hash[0] ^= 0xFF
	if _, err := DecryptBody(key, hash, ciphertext); err != types.ErrHashMismatch {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
}

func TestSealOpenMessageRoundTrip(t *testing.T) {
	key, _ := GenerateSessionKey()
	var target types.PeerID
	copy(target[:], []byte("target-peer-identity-bytes-pad!"))
	body := MarshalPingPong(types.PingPongBody{Challenge: 0xdeadbeef, Target: target})

	sealed, err := SealMessage(types.Ping, key, body)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	typ, plaintext, err := OpenMessage(key, sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if typ != types.Ping {
		t.Fatalf("expected type PING, got %s", typ)
	}

	got, err := UnmarshalPingPong(plaintext)
	if err != nil {
		t.Fatalf("unmarshal ping/pong: %v", err)
	}
	if got.Challenge != 0xdeadbeef || got.Target != target {
		t.Fatalf("ping/pong round trip mismatch: %+v", got)
	}
}

func TestSetKeyEnvelopeRoundTripAndSignature(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	sessionKey, _ := GenerateSessionKey()
	encKey, err := EncryptSessionKeyRSA(&priv.PublicKey, sessionKey)
	if err != nil {
		t.Fatalf("encrypt session key: %v", err)
	}

	var target types.PeerID
	copy(target[:], []byte("0123456789abcdef0123456789abcde"))

	env := types.SetKeyEnvelope{
		SenderState:  types.KeySent,
		PurposeSize:  1,
		Purpose:      types.SetKeyPurpose,
		Created:      time.Now().Truncate(time.Second).UTC(),
		EncryptedKey: encKey,
		Target:       target,
	}
	env.Signature, err = SignPurpose(priv, purposeBytes(env))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	wireBytes := MarshalSetKey(env)
	parsed, err := UnmarshalSetKey(wireBytes)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if parsed.SenderState != env.SenderState || parsed.Purpose != env.Purpose || parsed.Target != env.Target {
		t.Fatalf("round trip mismatch: %+v vs %+v", parsed, env)
	}
	if !parsed.Created.Equal(env.Created) {
		t.Fatalf("created mismatch: %v vs %v", parsed.Created, env.Created)
	}

	if err := VerifyPurpose(&priv.PublicKey, purposeBytes(parsed), parsed.Signature); err != nil {
		t.Fatalf("signature failed to verify after round trip: %v", err)
	}

	// Tampering with the target after signing must break verification.
	parsed.Target[0] ^= 0xFF
	if err := VerifyPurpose(&priv.PublicKey, purposeBytes(parsed), parsed.Signature); err == nil {
		t.Fatalf("expected signature verification to fail after tampering")
	}

	decrypted, err := DecryptSessionKeyRSA(priv, parsed.EncryptedKey)
	if err != nil {
		t.Fatalf("decrypt session key: %v", err)
	}
	if decrypted.Bytes != sessionKey.Bytes {
		t.Fatalf("session key round trip mismatch")
	}
}

func TestWalkInnerSplitsBatch(t *testing.T) {
	var batch []byte
	batch = AppendInner(batch, 10, []byte("first"))
	batch = AppendInner(batch, 20, []byte("second-message"))
	batch = AppendInner(batch, 30, nil)

	msgs, err := WalkInner(batch)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 inner messages, got %d", len(msgs))
	}
	if msgs[0].Type != 10 || string(msgs[0].Payload) != "first" {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Type != 20 || string(msgs[1].Payload) != "second-message" {
		t.Fatalf("unexpected second message: %+v", msgs[1])
	}
	if msgs[2].Type != 30 || len(msgs[2].Payload) != 0 {
		t.Fatalf("unexpected third message: %+v", msgs[2])
	}
}

func TestWalkInnerRejectsTruncation(t *testing.T) {
	batch := AppendInner(nil, 1, []byte("hello"))
	if _, err := WalkInner(batch[:len(batch)-1]); err == nil {
		t.Fatalf("expected error for truncated batch")
	}
}

func TestEncryptedBodyRoundTrip(t *testing.T) {
	inner := AppendInner(nil, 5, []byte("payload"))
	body := types.EncryptedBody{
		Sequence:   42,
		QuotaHint:  65536,
		Timestamp:  time.Now().Truncate(time.Second).UTC(),
		InnerBytes: inner,
	}
	data := MarshalEncryptedBody(body)
	parsed, err := UnmarshalEncryptedBody(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Sequence != body.Sequence || parsed.QuotaHint != body.QuotaHint {
		t.Fatalf("mismatch: %+v vs %+v", parsed, body)
	}
	if !parsed.Timestamp.Equal(body.Timestamp) {
		t.Fatalf("timestamp mismatch: %v vs %v", parsed.Timestamp, body.Timestamp)
	}
	if string(parsed.InnerBytes) != string(inner) {
		t.Fatalf("inner bytes mismatch")
	}
}
