// Package bandwidth implements Component E (§4.5): the per-neighbor
// fair-share bandwidth allocator. A single recurring task recomputes
// every connected neighbor's inbound/outbound byte-per-minute quota from
// the host's total budget, each neighbor's preference weight, and an
// idle-connection cutoff.
package bandwidth

import (
	"time"

	"github.com/jabolina/go-core/pkg/core/types"
)

// Allocator owns the host-wide quota recompute loop.
type Allocator struct {
	transport types.Transport
	log       types.Logger
	rec       types.Recorder

	totalQuotaIn  uint64
	totalQuotaOut uint64

	// OnIdleDisconnect fires for a neighbor that exceeded
	// types.IdleConnectionTimeout without activity, so the dispatcher can
	// tear it down (§4.5 "forces a disconnect").
	OnIdleDisconnect func(*types.Neighbor)

	// Now is overridable for deterministic tests.
	Now func() time.Time

	recomputeTask types.TaskHandle
}

// New constructs an Allocator from the host's total quota budget (§6
// "Configuration" TOTAL_QUOTA_IN/TOTAL_QUOTA_OUT).
func New(totalQuotaIn, totalQuotaOut uint64, transport types.Transport, log types.Logger, rec types.Recorder) *Allocator {
	if rec == nil {
		rec = types.NopRecorder{}
	}
	return &Allocator{
		transport:     transport,
		log:           log,
		rec:           rec,
		totalQuotaIn:  totalQuotaIn,
		totalQuotaOut: totalQuotaOut,
		Now:           time.Now,
	}
}

// Start runs an immediate recompute and arms the recurring
// QuotaRecomputePeriod tick (§4.1, §4.5). snapshot is called fresh on
// every tick so newly connected/disconnected neighbors are picked up.
func (a *Allocator) Start(snapshot func() []*types.Neighbor) {
	a.tick(snapshot)
}

// Stop cancels the recompute loop (dispatcher shutdown).
func (a *Allocator) Stop() {
	types.CancelAll(a.recomputeTask)
}

func (a *Allocator) tick(snapshot func() []*types.Neighbor) {
	a.Recompute(snapshot())
	a.recomputeTask = types.AfterFunc(types.QuotaRecomputePeriod, func() {
		a.tick(snapshot)
	})
}

// Recompute runs one allocation pass over neighbors (§4.5). Idle
// neighbors are forced to q_in=0 and excluded from the active share;
// everyone else receives MinBpmPerPeer plus a preference-weighted slice
// of whatever total quota remains.
func (a *Allocator) Recompute(neighbors []*types.Neighbor) {
	now := a.Now()
	active := make([]*types.Neighbor, 0, len(neighbors))

	for _, n := range neighbors {
		if !n.LastActivity.IsZero() && now.Sub(n.LastActivity) > types.IdleConnectionTimeout {
			a.rec.IncCounter("core_bandwidth_idle_disconnect_total", nil)
			a.applyQuota(n, 0, n.TargetQuotaOut)
			if a.OnIdleDisconnect != nil {
				a.OnIdleDisconnect(n)
			}
			continue
		}
		active = append(active, n)
	}
	if len(active) == 0 {
		return
	}

	in := allocate(active, a.totalQuotaIn)
	out := allocate(active, a.totalQuotaOut)

	for i, n := range active {
		a.applyQuota(n, in[i], out[i])
	}
}

// applyQuota updates a neighbor's target quotas and pushes them to the
// transport only once the change clears MinBpmChange (§4.5 "avoid
// churning the transport layer on tiny deltas").
func (a *Allocator) applyQuota(n *types.Neighbor, newIn, newOut uint64) {
	changed := false
	if absDelta(n.TargetQuotaIn, newIn) >= types.MinBpmChange {
		n.TargetQuotaIn = newIn
		changed = true
	}
	if absDelta(n.TargetQuotaOut, newOut) >= types.MinBpmChange {
		n.TargetQuotaOut = newOut
		changed = true
	}
	if changed && a.transport != nil {
		a.transport.SetQuota(n.Identity, n.TargetQuotaIn, n.TargetQuotaOut)
		a.rec.SetGauge("core_bandwidth_quota_in_bpm", map[string]string{"peer": n.Identity.String()}, float64(n.TargetQuotaIn))
		a.rec.SetGauge("core_bandwidth_quota_out_bpm", map[string]string{"peer": n.Identity.String()}, float64(n.TargetQuotaOut))
	}
}

func absDelta(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// allocate splits total bytes/minute across neighbors: each gets a
// guaranteed floor (MinBpmPerPeer, halved repeatedly if the floors alone
// would overflow the budget — §4.5 "overflow halving"), then the
// remainder is split by preference weight.
func allocate(neighbors []*types.Neighbor, total uint64) []uint64 {
	n := uint64(len(neighbors))
	floor := uint64(types.MinBpmPerPeer)
	for floor > 0 && floor*n > total {
		floor /= 2
	}

	shares := make([]uint64, len(neighbors))
	for i := range shares {
		shares[i] = floor
	}

	remainder := total - floor*n
	if remainder == 0 {
		return shares
	}

	var totalPreference uint64
	for _, nb := range neighbors {
		totalPreference += preferenceWeight(nb)
	}
	if totalPreference == 0 {
		return shares
	}

	var distributed uint64
	for i, nb := range neighbors {
		share := remainder * preferenceWeight(nb) / totalPreference
		shares[i] += share
		distributed += share
	}
	// Any remainder lost to integer division goes to the
	// highest-preference neighbor rather than being silently dropped.
	if leftover := remainder - distributed; leftover > 0 {
		shares[highestPreferenceIndex(neighbors)] += leftover
	}
	return shares
}

func preferenceWeight(n *types.Neighbor) uint64 {
	if n.CurrentPreference == 0 {
		return 1
	}
	return n.CurrentPreference
}

func highestPreferenceIndex(neighbors []*types.Neighbor) int {
	best := 0
	for i, nb := range neighbors {
		if preferenceWeight(nb) > preferenceWeight(neighbors[best]) {
			best = i
		}
	}
	return best
}
