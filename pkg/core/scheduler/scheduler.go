// Package scheduler implements Component C (§4.3): the per-neighbor
// outbound scheduler. It admits client-submitted plaintext into a
// deadline-ordered queue, selects a batch via earliest-deadline-first with
// slack-based deferral and age-based discard, and hands the batch to
// Component A for encryption before pushing the framed result onto the
// neighbor's encrypted FIFO.
package scheduler

import (
	"container/list"
	"math"
	"time"

	"github.com/jabolina/go-core/pkg/core/types"
	"github.com/jabolina/go-core/pkg/core/wire"
)

// Scheduler implements types.Scheduler.
type Scheduler struct {
	transport types.Transport
	notifier  types.OutboundNotifier
	log       types.Logger
	rec       types.Recorder

	// TargetBatchSize is the nominal encrypted-datagram payload size the
	// batch-selection algorithm aims to fill (§4.3 steps 2–4).
	TargetBatchSize int

	// Now is overridable for deterministic tests.
	Now func() time.Time
}

// New constructs a Scheduler. targetBatchSize should be comfortably under
// types.MaxEncryptedMessageSize.
func New(transport types.Transport, notifier types.OutboundNotifier, log types.Logger, rec types.Recorder, targetBatchSize int) *Scheduler {
	if rec == nil {
		rec = types.NopRecorder{}
	}
	return &Scheduler{
		transport:       transport,
		notifier:        notifier,
		log:             log,
		rec:             rec,
		TargetBatchSize: targetBatchSize,
		Now:             time.Now,
	}
}

func quotaBytesPerSecond(quotaBpm uint64) float64 {
	return float64(quotaBpm) / 60.0
}

// Enqueue admits a client-submitted plaintext entry (§4.3 "On every client
// SEND request"). The queue is kept sorted by deadline ascending; if it is
// already full, the lowest-priority existing entry is compared against the
// incoming one.
func (s *Scheduler) Enqueue(n *types.Neighbor, entry *types.PlaintextEntry) {
	if n.Plaintext.Len() >= types.MaxPeerQueueSize {
		minEl := minPriorityElement(n.Plaintext)
		minEntry := minEl.Value.(*types.PlaintextEntry)
		if entry.Priority <= minEntry.Priority {
			s.rec.IncCounter("core_plaintext_rejected_total", map[string]string{"reason": "priority"})
			return
		}
		n.Plaintext.Remove(minEl)
		s.rec.IncCounter("core_plaintext_evicted_total", nil)
	}
	insertByDeadline(n.Plaintext, entry)
	s.rec.SetGauge("core_plaintext_queue_depth", map[string]string{"peer": n.Identity.String()}, float64(n.Plaintext.Len()))

	s.Process(n)
}

// EnqueueFramed pushes an already-framed envelope (SET_KEY, PING, PONG —
// §4.2) directly onto the neighbor's encrypted FIFO, bypassing batching.
func (s *Scheduler) EnqueueFramed(n *types.Neighbor, entry *types.EncryptedEntry) {
	n.Encrypted.PushBack(entry)
	s.kick(n)
}

func minPriorityElement(l *list.List) *list.Element {
	var min *list.Element
	var minPriority uint32 = math.MaxUint32
	for e := l.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*types.PlaintextEntry)
		if min == nil || entry.Priority < minPriority {
			min = e
			minPriority = entry.Priority
		}
	}
	return min
}

func insertByDeadline(l *list.List, entry *types.PlaintextEntry) {
	for e := l.Front(); e != nil; e = e.Next() {
		existing := e.Value.(*types.PlaintextEntry)
		if entry.Deadline.Before(existing.Deadline) {
			l.InsertBefore(entry, e)
			return
		}
	}
	l.PushBack(entry)
}

// Process runs the batch-selection algorithm for n if it is currently
// eligible (§4.3: "When the neighbor is KEY_CONFIRMED and no encrypted
// datagram is queued, process_plaintext() runs"). It is safe to call
// opportunistically — from Enqueue, from the transmit-ready drain, and
// from the slack-deferral retry task — since it no-ops when the
// precondition does not hold.
func (s *Scheduler) Process(n *types.Neighbor) {
	if n.State != types.KeyConfirmed || n.Encrypted.Len() != 0 {
		return
	}

	now := s.Now()
	s.discardExpired(n, now)
	if n.Plaintext.Len() == 0 {
		return
	}

	quota := n.OutboundQuota()
	s.refreshSendWindow(n, now, quota)

	horizon := s.TargetBatchSize * types.SchedulerHorizonFactor
	discarded := make(map[*types.PlaintextEntry]bool)

	var selected []*types.PlaintextEntry
	var slack time.Duration

	for {
		selected = selected[:0]
		slack = time.Duration(math.MaxInt64)
		walked := 0
		off := 0

		var infeasible *types.PlaintextEntry
		rate := quotaBytesPerSecond(quota)

		for e := n.Plaintext.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*types.PlaintextEntry)
			if discarded[entry] {
				continue
			}
			if walked >= horizon {
				break
			}
			walked += entry.Size
			off += entry.Size

			// Availability accumulator: the window plus however much the
			// quota rate would replenish between now and this entry's
			// deadline, checked against everything committed ahead of and
			// including it in queue order (§4.3 step 2).
			avail := float64(n.AvailableSendWindow) + entry.Deadline.Sub(now).Seconds()*rate
			if avail < float64(off) {
				if infeasible == nil || entry.Priority < infeasible.Priority {
					infeasible = entry
				}
				continue
			}

			selected = append(selected, entry)

			// An entry already held back by an earlier deferral gets no
			// further slack.
			if entry.GotSlack {
				slack = 0
			} else {
				entrySlack := time.Duration(avail / rate * float64(time.Second))
				if d := entry.Deadline.Sub(now); d < entrySlack {
					entrySlack = d
				}
				if entrySlack < slack {
					slack = entrySlack
				}
			}
		}

		if infeasible == nil {
			break
		}
		discarded[infeasible] = true
		s.rec.IncCounter("core_plaintext_discard_infeasible_total", nil)
	}

	if len(selected) == 0 {
		return
	}

	marked := 0
	for _, entry := range selected {
		marked += entry.Size
	}

	if slack > types.SlackDeferralThreshold && float64(marked) < types.SlackDeferralFillRatio*float64(s.TargetBatchSize) {
		for _, entry := range selected {
			entry.DoTransmit = false
			entry.GotSlack = true
		}
		n.PlaintextRetry = types.AfterFunc(types.SlackDeferralRetry, func() {
			s.Process(n)
		})
		return
	}

	s.emit(n, now, selected)
}

// discardExpired drops entries whose deadline is more than
// PastExpirationDiscardTime in the past (§4.3 step 1).
func (s *Scheduler) discardExpired(n *types.Neighbor, now time.Time) {
	for e := n.Plaintext.Front(); e != nil; {
		next := e.Next()
		entry := e.Value.(*types.PlaintextEntry)
		if now.Sub(entry.Deadline) > types.PastExpirationDiscardTime {
			n.Plaintext.Remove(e)
			s.rec.IncCounter("core_plaintext_expired_total", nil)
		}
		e = next
	}
}

func (s *Scheduler) refreshSendWindow(n *types.Neighbor, now time.Time, quota uint64) {
	if n.SendWindowUpdated.IsZero() {
		n.SendWindowUpdated = now
		return
	}
	elapsed := now.Sub(n.SendWindowUpdated)
	n.AvailableSendWindow += int64(elapsed.Minutes() * float64(quota))
	if cap := types.WindowCap(quota); n.AvailableSendWindow > cap {
		n.AvailableSendWindow = cap
	}
	n.SendWindowUpdated = now
}

// emit packs the selected entries into one encrypted batch, fans out
// outbound notifications, encrypts, and pushes the framed envelope onto
// the encrypted queue (§4.3 steps 4–5).
func (s *Scheduler) emit(n *types.Neighbor, now time.Time, selected []*types.PlaintextEntry) {
	var inner []byte
	earliest := selected[0].Deadline
	var totalPriority uint64

	for _, entry := range selected {
		if len(inner)+types.InnerHeaderSize+len(entry.Payload) > s.TargetBatchSize {
			break
		}
		if entry.Deadline.Before(earliest) {
			earliest = entry.Deadline
		}
		totalPriority += uint64(entry.Priority)
		if s.notifier != nil {
			s.notifier.NotifyOutbound(n.Identity, entry)
		}
		inner = wire.AppendInner(inner, entry.Type, entry.Payload)
		n.Plaintext.Remove(findElement(n.Plaintext, entry))
	}

	n.NextOutboundSeq++
	body := types.EncryptedBody{
		Sequence:   n.NextOutboundSeq,
		QuotaHint:  uint32(n.TargetQuotaIn),
		Timestamp:  now,
		InnerBytes: inner,
	}
	plaintext := wire.MarshalEncryptedBody(body)
	if len(plaintext)+types.EncryptedHeaderOffset > types.MaxEncryptedMessageSize {
		s.log.Errorf("batch for %s exceeds max encrypted size, dropping", n.Identity)
		return
	}

	ciphertext, hash, err := wire.EncryptBody(n.OwnSessionKey, plaintext)
	if err != nil {
		s.log.Errorf("failed encrypting batch for %s: %v", n.Identity, err)
		return
	}

	envelope := types.EncryptedEnvelope{
		Header:   types.MessageHeader{Type: types.EncryptedMessage},
		BodyHash: hash,
		Body:     ciphertext,
	}
	framed := wire.MarshalEncryptedEnvelope(envelope)

	priority := types.MaxPriority
	if totalPriority < uint64(types.MaxPriority) {
		priority = uint32(totalPriority)
	}

	n.Encrypted.PushBack(&types.EncryptedEntry{
		Deadline: earliest,
		Priority: priority,
		Size:     len(framed),
		Bytes:    framed,
	})
	s.rec.IncCounter("core_batches_emitted_total", nil)
	s.kick(n)
}

func findElement(l *list.List, entry *types.PlaintextEntry) *list.Element {
	for e := l.Front(); e != nil; e = e.Next() {
		if e.Value.(*types.PlaintextEntry) == entry {
			return e
		}
	}
	return nil
}

// kick requests the transport hand the encrypted queue's head to the
// peer, honoring "only one in-flight transport-transmit request per
// neighbor" (§3 invariant, P7) and recursing to drain the queue (§4.3
// step 5).
func (s *Scheduler) kick(n *types.Neighbor) {
	if n.TransmitInFlight || n.Encrypted.Len() == 0 {
		return
	}
	head := n.Encrypted.Front().Value.(*types.EncryptedEntry)
	n.TransmitInFlight = true
	s.transport.NotifyTransmitReady(n.Identity, head.Size, head.Deadline, func(maxSize int) []byte {
		n.TransmitInFlight = false
		front := n.Encrypted.Front()
		if front == nil {
			return nil
		}
		entry := front.Value.(*types.EncryptedEntry)
		if entry.Size > maxSize {
			return nil
		}
		n.Encrypted.Remove(front)
		n.AvailableSendWindow -= int64(entry.Size)
		s.kick(n)
		s.Process(n)
		return entry.Bytes
	})
}
