package types

// Scheduler is Component C's interface as seen by the rest of the core
// (§4.3). Enqueue accepts a client-submitted plaintext message for EDF
// batching; EnqueueFramed accepts an already-framed envelope (SET_KEY,
// PING, PONG — §4.2) that bypasses batching and goes straight onto the
// neighbor's encrypted FIFO; Process runs the batch-selection algorithm
// for a neighbor that may have plaintext ready to send.
type Scheduler interface {
	Enqueue(neighbor *Neighbor, entry *PlaintextEntry)
	EnqueueFramed(neighbor *Neighbor, entry *EncryptedEntry)
	Process(neighbor *Neighbor)
}
