package bandwidth

import (
	"testing"
	"time"

	"github.com/jabolina/go-core/pkg/core/types"
)

type recordingTransport struct {
	setQuota map[types.PeerID][2]uint64
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{setQuota: map[types.PeerID][2]uint64{}}
}

func (r *recordingTransport) NotifyTransmitReady(types.PeerID, int, time.Time, types.TransmitReadyFunc) {}
func (r *recordingTransport) SetQuota(peer types.PeerID, bpmIn, bpmOut uint64) {
	r.setQuota[peer] = [2]uint64{bpmIn, bpmOut}
}
func (r *recordingTransport) RequestConnect(types.PeerID)    {}
func (r *recordingTransport) Received() <-chan types.Inbound { return nil }

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

func TestRecomputeSplitsByPreference(t *testing.T) {
	transport := newRecordingTransport()
	a := New(1_000_000, 1_000_000, transport, nopLogger{}, types.NopRecorder{})

	n1 := types.NewNeighbor(types.PeerID{1})
	n1.LastActivity = time.Now()
	n1.CurrentPreference = 1

	n2 := types.NewNeighbor(types.PeerID{2})
	n2.LastActivity = time.Now()
	n2.CurrentPreference = 3

	a.Recompute([]*types.Neighbor{n1, n2})

	if n2.TargetQuotaOut <= n1.TargetQuotaOut {
		t.Fatalf("expected n2 (preference 3) to outweigh n1 (preference 1): n1=%d n2=%d", n1.TargetQuotaOut, n2.TargetQuotaOut)
	}
	if n1.TargetQuotaOut < types.MinBpmPerPeer {
		t.Fatalf("expected n1 to retain at least the floor, got %d", n1.TargetQuotaOut)
	}
	if _, ok := transport.setQuota[n1.Identity]; !ok {
		t.Fatalf("expected SetQuota called for n1")
	}
}

func TestRecomputeForcesIdleDisconnect(t *testing.T) {
	transport := newRecordingTransport()
	var disconnected *types.Neighbor
	a := New(1_000_000, 1_000_000, transport, nopLogger{}, types.NopRecorder{})
	a.OnIdleDisconnect = func(n *types.Neighbor) { disconnected = n }

	n := types.NewNeighbor(types.PeerID{9})
	n.LastActivity = time.Now().Add(-2 * types.IdleConnectionTimeout)
	n.TargetQuotaIn = types.DefaultBpmInOut

	a.Recompute([]*types.Neighbor{n})

	if disconnected != n {
		t.Fatalf("expected idle neighbor to trigger OnIdleDisconnect")
	}
	if n.TargetQuotaIn != 0 {
		t.Fatalf("expected inbound quota forced to zero, got %d", n.TargetQuotaIn)
	}
}

func TestAllocateFloorHalvesOnOverflow(t *testing.T) {
	neighbors := make([]*types.Neighbor, 100)
	for i := range neighbors {
		neighbors[i] = types.NewNeighbor(types.PeerID{byte(i)})
	}
	// Budget far too small for 100 neighbors at the normal floor.
	shares := allocate(neighbors, 50)
	var total uint64
	for _, s := range shares {
		total += s
	}
	if total > 50 {
		t.Fatalf("allocation exceeded total budget: %d > 50", total)
	}
}
