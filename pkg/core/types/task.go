package types

import "time"

// TaskHandle is a cancellation handle for a scheduled callback (§9
// "Task IDs as cancellation handles"). Every task a neighbor schedules
// (key-retry, plaintext-retry, quota-update) is stored behind this
// interface so neighbor teardown can cancel exhaustively without knowing
// which concrete timer implementation backs it.
type TaskHandle interface {
	Cancel()
}

type timerTask struct {
	timer *time.Timer
}

func (t *timerTask) Cancel() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

// AfterFunc schedules fn to run after d and returns a cancellable handle.
// All single-shot delayed work in this module (key retry, plaintext
// retry, scheduler slack deferral) goes through this so teardown paths
// have one cancellation idiom.
func AfterFunc(d time.Duration, fn func()) TaskHandle {
	return &timerTask{timer: time.AfterFunc(d, fn)}
}

// CancelAll is a small helper neighbor teardown uses to cancel every
// handle it is holding, tolerating nils.
func CancelAll(handles ...TaskHandle) {
	for _, h := range handles {
		if h != nil {
			h.Cancel()
		}
	}
}
