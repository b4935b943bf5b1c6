// Package ticket defines the reward ticket lifecycle: statuses, the edges
// that move a ticket between them, and the transition table that decides
// whether an edge is legal from a given state.
package ticket

import "fmt"

// Status is the persisted lifecycle status of a reward purchase.
type Status string

const (
	StatusActive       Status = "active"
	StatusUseRequested Status = "use_requested"
	StatusInUse        Status = "in_use"
	StatusUsed         Status = "used"
	StatusFulfilled    Status = "fulfilled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusActive, StatusUseRequested, StatusInUse, StatusUsed, StatusFulfilled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusUseRequested, StatusInUse, StatusUsed, StatusFulfilled:
		return true
	}
	return false
}

// Terminal reports whether no edge leaves s.
func (s Status) Terminal() bool {
	return s == StatusUsed || s == StatusFulfilled
}

// Edge is a requested lifecycle transition.
type Edge string

const (
	EdgeRequestUse   Edge = "request_use"
	EdgeApprove      Edge = "approve"
	EdgeFulfill      Edge = "fulfill"
	EdgePause        Edge = "pause"
	EdgeResume       Edge = "resume"
	EdgeSaveProgress Edge = "save_progress"
	EdgeComplete     Edge = "complete"
)

// Edges lists every edge.
var Edges = []Edge{EdgeRequestUse, EdgeApprove, EdgeFulfill, EdgePause, EdgeResume, EdgeSaveProgress, EdgeComplete}

// ParentOnly reports whether the edge may only be taken by a parent. All
// other edges are taken by the child that owns the ticket.
func (e Edge) ParentOnly() bool {
	return e == EdgeApprove || e == EdgeFulfill
}

// Rejection messages surfaced to clients.
const (
	MsgWrongState        = "Ticket is not in the correct state"
	MsgAlreadyFulfilled  = "Reward already fulfilled"
	MsgAlreadyPaused     = "Ticket is already paused"
	MsgNotPaused         = "Ticket is not paused"
	MsgNotScreenTime     = "Only screen time rewards can be requested for use"
	MsgScreenTimeFulfill = "Screen time rewards are used, not fulfilled"
)

// State is the part of a ticket the transition table looks at.
type State struct {
	Status     Status
	Paused     bool
	ScreenTime bool
}

// TransitionError reports an edge that is not legal from the current state.
// Message is safe to show to the caller.
type TransitionError struct {
	Edge    Edge
	From    Status
	Message string
}

func (e *TransitionError) Error() string {
	return e.Message
}

func reject(from State, edge Edge, msg string) (State, error) {
	return from, &TransitionError{Edge: edge, From: from.Status, Message: msg}
}

// Transition returns the state reached by taking edge from `from`, or a
// *TransitionError when the edge is not legal. Every (state, edge) pair has
// a defined outcome.
func Transition(from State, edge Edge) (State, error) {
	if !from.Status.Valid() {
		return from, fmt.Errorf("unknown ticket status %q", from.Status)
	}

	switch edge {
	case EdgeRequestUse:
		if from.Status != StatusActive {
			return reject(from, edge, MsgWrongState)
		}
		if !from.ScreenTime {
			return reject(from, edge, MsgNotScreenTime)
		}
		return State{Status: StatusUseRequested, ScreenTime: true}, nil

	case EdgeApprove:
		if from.Status != StatusUseRequested {
			return reject(from, edge, MsgWrongState)
		}
		return State{Status: StatusInUse, ScreenTime: from.ScreenTime}, nil

	case EdgeFulfill:
		if from.Status == StatusFulfilled {
			return reject(from, edge, MsgAlreadyFulfilled)
		}
		if from.ScreenTime {
			return reject(from, edge, MsgScreenTimeFulfill)
		}
		if from.Status != StatusActive {
			return reject(from, edge, MsgWrongState)
		}
		return State{Status: StatusFulfilled}, nil

	case EdgePause:
		if from.Status != StatusInUse {
			return reject(from, edge, MsgWrongState)
		}
		if from.Paused {
			return reject(from, edge, MsgAlreadyPaused)
		}
		return State{Status: StatusInUse, Paused: true, ScreenTime: from.ScreenTime}, nil

	case EdgeResume:
		if from.Status != StatusInUse {
			return reject(from, edge, MsgWrongState)
		}
		if !from.Paused {
			return reject(from, edge, MsgNotPaused)
		}
		return State{Status: StatusInUse, ScreenTime: from.ScreenTime}, nil

	case EdgeSaveProgress:
		if from.Status != StatusInUse {
			return reject(from, edge, MsgWrongState)
		}
		return from, nil

	case EdgeComplete:
		if from.Status != StatusInUse {
			return reject(from, edge, MsgWrongState)
		}
		return State{Status: StatusUsed, ScreenTime: from.ScreenTime}, nil
	}

	return from, fmt.Errorf("unknown ticket edge %q", edge)
}
