package types

import "errors"

// Protocol-violation and transient sentinels shared across components,
// following the teacher's package-level var Err... pattern
// (ErrUnsupportedProtocol, ErrCommandUnknown in pkg/mcast/protocol.go).
var (
	// ErrBadSignature: SET_KEY signature does not verify under the
	// peer-info-provided public key (§4.1 rule 3).
	ErrBadSignature = errors.New("core: set-key signature verification failed")

	// ErrWrongTarget: a SET_KEY, PING or PONG target does not match our
	// identity (§4.1 rule 2), or a PONG does not echo our current
	// challenge.
	ErrWrongTarget = errors.New("core: target or challenge mismatch")

	// ErrBadPurposeSize: SET_KEY purpose size or purpose tag does not
	// match the expected fixed value (§4.1 rule 1).
	ErrBadPurposeSize = errors.New("core: set-key purpose size mismatch")

	// ErrReplayedSetKey: SET_KEY creation time not strictly newer than the
	// cached one (§4.1 rule 4).
	ErrReplayedSetKey = errors.New("core: set-key replay (non-increasing creation time)")

	// ErrHashMismatch: recomputed plaintext hash does not match the
	// envelope header hash (§4.1 "recompute plaintext hash...reject").
	ErrHashMismatch = errors.New("core: encrypted envelope hash mismatch")

	// ErrDuplicateOrOld: sequence number is a duplicate, equals the
	// current highest, or lies too far behind it (§4.1).
	ErrDuplicateOrOld = errors.New("core: sequence number duplicate or too old")

	// ErrStaleTimestamp: envelope timestamp exceeds MaxMessageAge (§4.1).
	ErrStaleTimestamp = errors.New("core: encrypted envelope timestamp too old")

	// ErrNoSessionKey: attempted encrypt/decrypt before a session key is
	// available.
	ErrNoSessionKey = errors.New("core: no valid session key")

	// ErrTooLarge: a message exceeds MaxEncryptedMessageSize (§4.1).
	ErrTooLarge = errors.New("core: encrypted message exceeds maximum size")

	// ErrUnknownMessageType: transport delivered a type the dispatcher
	// does not recognize (§4.2 "Unknown message types from transport:
	// drop and continue").
	ErrUnknownMessageType = errors.New("core: unknown message type")

	// ErrUnknownNeighbor: a client operation or inbound datagram referenced
	// a peer with no live Neighbor entry.
	ErrUnknownNeighbor = errors.New("core: unknown neighbor")
)
