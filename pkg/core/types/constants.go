package types

import "time"

// Bit-exact constants, §4.1.
const (
	// DefaultBpmInOut is the default per-peer quota in bytes/minute,
	// applied before the bandwidth allocator's first recompute tick.
	DefaultBpmInOut uint64 = 65536

	// MaxPriority is the fixed priority used for SET_KEY/PING/PONG
	// traffic (§4.1, §4.3) — "all 0xFFFFFF (maximum)".
	MaxPriority uint32 = 0xFFFFFF

	// InitialSetKeyRetry is the first key-retry delay; it doubles on each
	// attempt (§4.1, §4.2).
	InitialSetKeyRetry = 3 * time.Second

	// QuotaRecomputePeriod is how often the bandwidth allocator's
	// per-neighbor task fires (§4.1, §4.5).
	QuotaRecomputePeriod = 1 * time.Second

	// WindowCapFactor expresses the 5-minute window cap (§3, §4.1): a
	// neighbor's available_send_window/available_recv_window is capped at
	// WindowCapFactor * current quota (bytes/minute).
	WindowCapFactor = 5 * time.Minute

	// MaxPeerQueueSize is the plaintext queue's per-neighbor capacity
	// (§4.3).
	MaxPeerQueueSize = 16

	// ReplayWindowBits is the width of the replay bitmap (§3, §4.1).
	ReplayWindowBits = 32

	// PastExpirationDiscardTime bounds how far in the past a plaintext
	// entry's deadline may be before §4.3 step 1 discards it.
	PastExpirationDiscardTime = 1 * time.Second

	// MinBpmPerPeer is the bandwidth floor every connected neighbor
	// receives before the remainder is distributed by preference share
	// (§4.5).
	MinBpmPerPeer uint64 = 1024

	// MinBpmChange is the minimum quota delta that triggers a
	// transport.SetQuota call (§4.5).
	MinBpmChange uint64 = 32

	// IdleConnectionTimeout bounds how long a neighbor may go without
	// activity before the bandwidth allocator forces a disconnect (§4.5).
	IdleConnectionTimeout = 45 * time.Minute

	// MaxClientQueueSize bounds a client's non-mandatory notification
	// queue (§4.6).
	MaxClientQueueSize = 32

	// BackReferenceSlots is the size of a neighbor's bounded array of weak
	// client back-references (§5, §9).
	BackReferenceSlots = 8

	// PeerInfoLookupTimeout is the implicit deadline on a peer-info
	// lookup (§5).
	PeerInfoLookupTimeout = 20 * time.Second

	// SlackDeferralThreshold: if computed slack exceeds this, emission may
	// be deferred (§4.3 step 3).
	SlackDeferralThreshold = 1 * time.Second

	// SlackDeferralFillRatio: deferral only happens if marked bytes fill
	// less than this fraction of the target batch size (§4.3 step 3).
	SlackDeferralFillRatio = 0.25

	// SlackDeferralRetry is how far in the future the deferred-batch retry
	// task is scheduled (§4.3 step 3).
	SlackDeferralRetry = 1 * time.Second

	// SchedulerHorizonFactor bounds how far the feasibility/slack walk
	// looks into the queue, expressed as a multiple of the target batch
	// size (§4.3 step 2, "horizon").
	SchedulerHorizonFactor = 2

	// MaxSetKeyRetry bounds the exponential key-retry backoff (§4.1, §4.2:
	// "doubles on each attempt") so a long-unreachable peer doesn't end up
	// retried once an hour.
	MaxSetKeyRetry = 5 * time.Minute
)

// ClientOption is a bitmask of delivery options a client subscribes with
// on INIT (§4.6).
type ClientOption uint32

const (
	SendConnect ClientOption = 1 << iota
	SendPreConnect
	SendDisconnect
	SendFullInbound
	SendHdrInbound
	SendFullOutbound
	SendHdrOutbound
)

func (o ClientOption) Has(flag ClientOption) bool {
	return o&flag != 0
}

// NotifyHeaderCap is the per-notification size cap above which a
// full-body subscription falls back to headers-only (§4.3 "Headers-only
// is used when the message exceeds a per-notification cap", §9 REDESIGN
// FLAGS: "mandates explicit header-only fallback").
const NotifyHeaderCap = 4096
