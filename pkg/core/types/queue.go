package types

import "time"

// PlaintextEntry is one message awaiting transmission to a neighbor (§3
// "Plaintext-queue entry"). The plaintext queue holds these sorted by
// deadline ascending; selection for a batch is EDF-with-slack (§4.3).
type PlaintextEntry struct {
	Deadline time.Time
	Priority uint32
	Size     int
	Payload  []byte
	Type     uint16

	// DoTransmit is reset to false on every selected entry when slack
	// deferral postpones a batch (§4.3 step 3). The scheduler keeps the
	// current selection and the entries discarded as infeasible in local
	// state during its feasibility walk; it does not set this flag.
	DoTransmit bool

	// GotSlack guards against granting the same entry slack more than
	// once across scheduling rounds (§4.3 step 2).
	GotSlack bool
}

// EncryptedEntry is one already-framed datagram awaiting transport,
// FIFO-ordered (§3 "Encrypted-queue entry").
type EncryptedEntry struct {
	Deadline time.Time
	Priority uint32
	Size     int
	Bytes    []byte
}
