// internal shared types for the phonepilot agent.
package schemas

import "time"

// ActionKind enumerates every operation the model may request. The string
// values match the action grammar exactly ("Long Press", not "LongPress"),
// so a kind can be serialized back into a call expression without a lookup
// table.
type ActionKind string

const (
	ActionLaunch    ActionKind = "Launch"
	ActionTap       ActionKind = "Tap"
	ActionSwipe     ActionKind = "Swipe"
	ActionTypeText  ActionKind = "Type"
	ActionBack      ActionKind = "Back"
	ActionHome      ActionKind = "Home"
	ActionLongPress ActionKind = "Long Press"
	ActionDoubleTap ActionKind = "Double Tap"
	ActionWait      ActionKind = "Wait"
	ActionTakeOver  ActionKind = "Take_over"
	ActionFinish    ActionKind = "Finish"
)

// Point is a screen coordinate on the model's normalized 1000x1000 grid.
// Both axes are expected in [0,999] relative to the top-left corner; values
// outside that range are clamped at execution time, never rejected.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Action is the closed variant type produced by the grammar parser and
// consumed by the executor. Only the fields relevant to Kind are populated;
// the executor switches exhaustively on Kind so a new action kind is a
// compile-time-checked extension.
type Action struct {
	Kind ActionKind `json:"kind"`

	// Launch
	App string `json:"app,omitempty"`

	// Tap / Long Press / Double Tap
	Element *Point `json:"element,omitempty"`

	// Swipe
	Start *Point `json:"start,omitempty"`
	End   *Point `json:"end,omitempty"`

	// Type
	Text string `json:"text,omitempty"`

	// Wait
	Duration time.Duration `json:"duration,omitempty"`

	// Rationale for a sensitive gesture (triggers confirmation), or the
	// user-facing message for Take_over and Finish.
	Message string `json:"message,omitempty"`
}

// Mutating reports whether executing the action touches the device screen.
// Wait, Take_over and Finish never do, so they are exempt from the
// sensitive-screen gate.
func (a *Action) Mutating() bool {
	switch a.Kind {
	case ActionWait, ActionTakeOver, ActionFinish:
		return false
	default:
		return true
	}
}

// NeedsConfirmation reports whether the executor must ask the human before
// performing the gesture. The model flags a sensitive gesture by attaching a
// message to it (e.g. "confirm payment").
func (a *Action) NeedsConfirmation() bool {
	switch a.Kind {
	case ActionTap, ActionSwipe, ActionLongPress, ActionDoubleTap:
		return a.Message != ""
	default:
		return false
	}
}
