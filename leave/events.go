package leave

import "time"

// =============================================================================
// DOMAIN EVENTS - Consumed by the external notification collaborator
// =============================================================================

// StatusChanged is emitted on every leave entry transition. The engine
// itself sends no notifications; delivery is the consumer's job.
type StatusChanged struct {
	EntryID    EntryID
	EmployeeID EmployeeID
	From       EntryStatus
	To         EntryStatus
	ActorID    EmployeeID
	At         time.Time
}

// RolloverCompleted is emitted after a successful year rollover.
type RolloverCompleted struct {
	FromYearID LeaveYearID
	ToYearID   LeaveYearID
	Employees  int
	At         time.Time
}

// EventSink receives domain events. Implementations must not block;
// the emitting operation has already committed when the sink is called.
type EventSink interface {
	EntryStatusChanged(e StatusChanged)
	RolloverDone(e RolloverCompleted)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) EntryStatusChanged(StatusChanged) {}
func (NopSink) RolloverDone(RolloverCompleted) {}
