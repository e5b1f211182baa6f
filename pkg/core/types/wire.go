package types

import "time"

// Envelope types carried on the wire, §6 "Wire protocol". All multi-byte
// integers are network byte order; every envelope starts with
// { u16 size; u16 type; }.
type MessageType uint16

const (
	SetKey            MessageType = 1
	Ping              MessageType = 2
	Pong              MessageType = 3
	EncryptedMessage  MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case SetKey:
		return "SET_KEY"
	case Ping:
		return "PING"
	case Pong:
		return "PONG"
	case EncryptedMessage:
		return "ENCRYPTED_MESSAGE"
	default:
		return "UNKNOWN"
	}
}

// MessageHeader is the unencrypted { u16 size; u16 type; } prefix common to
// every envelope on the wire.
type MessageHeader struct {
	Size uint16
	Type MessageType
}

// HashSize is the size in bytes of the plaintext hash that both provides
// integrity (MAC-by-hash, §4.1) and doubles as the symmetric cipher IV.
const HashSize = 32

// Hash is the SHA-256 digest of an encrypted envelope's plaintext body. It
// is carried unencrypted in the envelope prefix and reused as the AES-CTR
// IV — see pkg/core/wire.
type Hash [HashSize]byte

// SetKeyPurpose is the fixed purpose tag signed inside a SET_KEY envelope,
// binding the signature to this specific use (§4.1).
const SetKeyPurpose uint32 = 0x434f5245 // "CORE"

// SetKeyEnvelope is the wire shape of a SET_KEY message (§4.1, §6).
type SetKeyEnvelope struct {
	Header MessageHeader

	// SenderState is the sender's current KX state machine value, used by
	// the receiver to decide whether to reply (§4.2).
	SenderState KXState

	// PurposeSize must equal the expected fixed value for the envelope to
	// validate.
	PurposeSize uint32

	// Purpose is the fixed SetKeyPurpose tag.
	Purpose uint32

	// Created is the session key's creation timestamp, used for the
	// strict-monotonic replay guard (§4.1 rule 4).
	Created time.Time

	// EncryptedKey is the RSA-OAEP encrypted session key blob.
	EncryptedKey []byte

	// Target is the identity this envelope is addressed to; must equal the
	// receiver's own identity (§4.1 rule 2).
	Target PeerID

	// Signature covers the purpose region (PurposeSize, Purpose, Created,
	// EncryptedKey, Target) under the sender's long-term private key.
	Signature []byte
}

// EncryptedEnvelope is the wire shape of an ENCRYPTED_MESSAGE (§4.1, §6).
// Header/Reserved/BodyHash are the unencrypted prefix; Body is the
// encrypted region starting at sequence number.
type EncryptedEnvelope struct {
	Header   MessageHeader
	Reserved uint32
	BodyHash Hash

	// Body holds the plaintext (pre-encryption) or ciphertext
	// (post-encryption) bytes, depending on which side of the
	// encrypt/decrypt boundary this value represents.
	Body []byte
}

// EncryptedBody is the plaintext layout encrypted inside an
// EncryptedEnvelope.Body (§4.1): sequence number, quota hint, timestamp,
// followed by the concatenated inner messages.
type EncryptedBody struct {
	Sequence   uint32
	QuotaHint  uint32
	Timestamp  time.Time
	InnerBytes []byte
}

// PingPongBody is the 36-byte plaintext body of a PING or PONG (§4.1, §6):
// a 4-byte challenge followed by the 32-byte target PeerID.
type PingPongBody struct {
	Challenge uint32
	Target    PeerID
}

// InnerHeader prefixes every message batched inside an encrypted body
// (§4.4): a length-prefixed frame so the receiver can walk the batch.
// Potentially-unaligned headers must be copied to aligned scratch before
// the size field is read (§4.4) — see WalkInner in pkg/core/wire.
type InnerHeader struct {
	Size uint16
	Type uint16
}

const InnerHeaderSize = 4 // sizeof(uint16) + sizeof(uint16)

// EncryptedHeaderOffset is the unencrypted prefix length: header + reserved
// + hash (§6 "Encrypted header offset").
const EncryptedHeaderOffset = 2 + 2 + 4 + HashSize // Size+Type + Reserved + Hash

// MaxEncryptedMessageSize bounds a single encrypted datagram (§4.1).
const MaxEncryptedMessageSize = 63 * 1024

// MaxMessageAge is the maximum tolerated skew between an envelope's
// timestamp and local receipt time (§4.1).
const MaxMessageAge = 24 * time.Hour

// PastExpirationTolerance is how far in the future an inbound envelope's
// timestamp may lie (clock skew) before the inbound pipeline rejects it.
const PastExpirationTolerance = 1 * time.Second
