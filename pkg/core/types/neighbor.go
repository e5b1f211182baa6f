package types

import (
	"container/list"
	"time"
)

// Neighbor is the per-connected-peer state the entire core operates on
// (§3 "Neighbor"). It exists only between a transport-connect and its
// matching disconnect (§3 invariant); the neighbor table is its sole
// owner, and its queues are exclusively owned by it in turn.
type Neighbor struct {
	Identity  PeerID
	PeerKey   PublicKey

	State KXState

	// OwnSessionKey/PeerSessionKey are value-typed (§3 "Ownership").
	OwnSessionKey   SessionKey
	OwnKeyCreated   time.Time
	PeerSessionKey  SessionKey
	PeerKeyCreated  time.Time

	NextOutboundSeq uint32

	HighestInboundSeq uint32
	ReplayBitmap      uint32
	seenAnySeq        bool

	Plaintext  *list.List // of *PlaintextEntry, insertion order, deadline-ascending maintained by scheduler
	Encrypted  *list.List // of *EncryptedEntry, strict FIFO

	PendingPing []byte // raw sealed PING bytes, buffered until a session key can decrypt them (§4.2)
	PingChallenge uint32

	LastActivity        time.Time
	SessionEstablished  time.Time

	TargetQuotaIn  uint64
	TargetQuotaOut uint64

	InternalOutCap uint64
	ExternalOutCap uint64

	AvailableSendWindow int64
	AvailableRecvWindow int64
	SendWindowUpdated   time.Time
	RecvWindowUpdated   time.Time

	CurrentPreference uint64

	SetKeyRetryFrequency time.Duration

	KeyRetryTask     TaskHandle
	PlaintextRetry   TaskHandle
	QuotaUpdateTask  TaskHandle

	// TransmitInFlight is true while a NotifyTransmitReady request is
	// outstanding (§3 invariant, P7).
	TransmitInFlight bool

	// PeerInfoLookupInFlight is true while an async peer-info lookup is
	// outstanding (§3 invariant, P8).
	PeerInfoLookupInFlight bool
	PeerInfoLookupCancel   func()

	// SetKeySeenOnce records whether a SET_KEY has ever been accepted
	// from this peer, so the replay guard (§4.1 rule 4) only applies from
	// the second one onward.
	SetKeySeenOnce bool

	// LastClients is the bounded ring of client back-references (§5, §9):
	// the clients that most recently submitted a SEND to this neighbor.
	// Scrubbed on client disconnect (P5).
	LastClients [BackReferenceSlots]ClientID
	lastClientsValid [BackReferenceSlots]bool
	lastClientsNext   int
}

// NewNeighbor creates a fresh Neighbor in state DOWN (§3 "Lifecycle").
func NewNeighbor(id PeerID) *Neighbor {
	return &Neighbor{
		Identity:             id,
		State:                Down,
		Plaintext:            list.New(),
		Encrypted:            list.New(),
		SetKeyRetryFrequency: InitialSetKeyRetry,
		TargetQuotaIn:        DefaultBpmInOut,
		TargetQuotaOut:       DefaultBpmInOut,
		InternalOutCap:       DefaultBpmInOut,
		ExternalOutCap:       DefaultBpmInOut,
	}
}

// OutboundQuota is bpm_out = max(internal, external) (§4.4).
func (n *Neighbor) OutboundQuota() uint64 {
	if n.InternalOutCap > n.ExternalOutCap {
		return n.InternalOutCap
	}
	return n.ExternalOutCap
}

// WindowCap returns the 5-minute cap for a given quota (§3 invariant P1).
func WindowCap(quotaBpm uint64) int64 {
	minutes := WindowCapFactor.Minutes()
	return int64(float64(quotaBpm) * minutes)
}

// RememberClient records client as the most recent back-reference,
// evicting the oldest slot (§5 "bounded array, size 8 per neighbor").
func (n *Neighbor) RememberClient(id ClientID) {
	n.LastClients[n.lastClientsNext] = id
	n.lastClientsValid[n.lastClientsNext] = true
	n.lastClientsNext = (n.lastClientsNext + 1) % BackReferenceSlots
}

// ForgetClient scrubs every back-reference to id (P5, called on client
// disconnect).
func (n *Neighbor) ForgetClient(id ClientID) {
	for i, valid := range n.lastClientsValid {
		if valid && n.LastClients[i] == id {
			n.lastClientsValid[i] = false
		}
	}
}

// BackReferencedClients returns every client currently remembered as a
// recent sender of traffic to this neighbor (§5, §9).
func (n *Neighbor) BackReferencedClients() []ClientID {
	var out []ClientID
	for i, valid := range n.lastClientsValid {
		if valid {
			out = append(out, n.LastClients[i])
		}
	}
	return out
}

// HasClientBackReference reports whether id is currently remembered.
func (n *Neighbor) HasClientBackReference(id ClientID) bool {
	for i, valid := range n.lastClientsValid {
		if valid && n.LastClients[i] == id {
			return true
		}
	}
	return false
}

// ResetInboundSequence clears the replay window and highest-seen sequence
// (§4.1 "a freshly (re)confirmed peer key resets inbound sequence
// tracking" — a new SET_KEY means the peer may legitimately restart its
// outbound sequence counter).
func (n *Neighbor) ResetInboundSequence() {
	n.HighestInboundSeq = 0
	n.ReplayBitmap = 0
	n.seenAnySeq = false
}

// CheckAndAdvanceReplay applies the sliding replay window (§3, §4.1,
// §4.4) to an inbound sequence number. It returns false for a duplicate
// or too-old sequence, updating the window on acceptance.
func (n *Neighbor) CheckAndAdvanceReplay(seq uint32) bool {
	if !n.seenAnySeq {
		n.seenAnySeq = true
		n.HighestInboundSeq = seq
		n.ReplayBitmap = 1
		return true
	}
	if seq == n.HighestInboundSeq {
		return false
	}
	if seq > n.HighestInboundSeq {
		shift := seq - n.HighestInboundSeq
		if shift >= ReplayWindowBits {
			n.ReplayBitmap = 1
		} else {
			n.ReplayBitmap = (n.ReplayBitmap << shift) | 1
		}
		n.HighestInboundSeq = seq
		return true
	}
	back := n.HighestInboundSeq - seq
	if back >= ReplayWindowBits {
		return false
	}
	bit := uint32(1) << back
	if n.ReplayBitmap&bit != 0 {
		return false
	}
	n.ReplayBitmap |= bit
	return true
}

// RefreshRecvWindow replenishes the receive window by elapsed time at the
// current inbound quota, capped at the 5-minute window (§4.4, §4.5).
func (n *Neighbor) RefreshRecvWindow(now time.Time) {
	if n.RecvWindowUpdated.IsZero() {
		n.RecvWindowUpdated = now
		return
	}
	elapsed := now.Sub(n.RecvWindowUpdated)
	n.AvailableRecvWindow += int64(elapsed.Minutes() * float64(n.TargetQuotaIn))
	n.RecvWindowUpdated = now
	if cap := WindowCap(n.TargetQuotaIn); n.AvailableRecvWindow > cap {
		n.AvailableRecvWindow = cap
	}
}

// ReserveInbound applies a client REQUEST_INFO's reserve_inbound request
// (§4.5 "Inbound reservation"): refresh the window, clamp the requested
// amount to what remains, then subtract. A non-positive amount restores
// budget instead of reserving any. Returns the amount actually reserved.
func (n *Neighbor) ReserveInbound(now time.Time, amount int64) int64 {
	n.RefreshRecvWindow(now)
	if amount <= 0 {
		n.AvailableRecvWindow -= amount
		return amount
	}
	if amount > n.AvailableRecvWindow {
		amount = n.AvailableRecvWindow
	}
	if amount < 0 {
		amount = 0
	}
	n.AvailableRecvWindow -= amount
	return amount
}

// Teardown cancels every scheduled task the neighbor holds and drains both
// queues (§3 "Lifecycle: Neighbor ... destroyed on transport-disconnect
// (cancels all tasks, drains both queues...)").
func (n *Neighbor) Teardown() {
	CancelAll(n.KeyRetryTask, n.PlaintextRetry, n.QuotaUpdateTask)
	if n.PeerInfoLookupCancel != nil {
		n.PeerInfoLookupCancel()
	}
	n.Plaintext.Init()
	n.Encrypted.Init()
}
