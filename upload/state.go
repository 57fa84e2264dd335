package upload

import (
	"time"

	"github.com/google/uuid"
)

// State is a step of the upload state machine.
type State string

const (
	StateIdle         State = "idle"
	StateQuerying     State = "querying"
	StatePlanning     State = "planning"
	StateTransferring State = "transferring"
	StateVerifying    State = "verifying"
	StateFinalizing   State = "finalizing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// TransferSession is the mutable progress of one upload. It is owned by a
// single Upload call and discarded when that call returns.
type TransferSession struct {
	ID           string
	Slot         int
	State        State
	BytesSent    int
	TotalBytes   int
	Chunks       int
	Retries      int
	StartedAt    time.Time
	LastActivity time.Time

	now func() time.Time
}

func newTransferSession(slot int, now func() time.Time) *TransferSession {
	t := now()
	return &TransferSession{
		ID:           uuid.NewString(),
		Slot:         slot,
		State:        StateIdle,
		StartedAt:    t,
		LastActivity: t,
		now:          now,
	}
}

func (s *TransferSession) enter(state State) {
	s.State = state
	s.LastActivity = s.now()
}

// begin resets the byte counters for a new payload.
func (s *TransferSession) begin(total int) {
	s.TotalBytes = total
	s.BytesSent = 0
	s.Chunks = 0
	s.LastActivity = s.now()
}

// advance records an acknowledged chunk. BytesSent never exceeds TotalBytes.
func (s *TransferSession) advance(n, attempts int) {
	s.BytesSent = min(s.BytesSent+n, s.TotalBytes)
	s.Chunks++
	s.Retries += attempts - 1
	s.LastActivity = s.now()
}
