package schemas

import "context"

// Planner produces the next action given the conversation so far. The one
// production implementation streams from a vision-language model endpoint;
// tests substitute scripted planners.
type Planner interface {
	Plan(ctx context.Context, conversation []Turn) (*ModelResponse, error)
}

// SensitivityClassifier decides whether acting on the current frame is
// allowed. Implementations look at the frame only, never at the action.
type SensitivityClassifier interface {
	IsSensitive(frame *Frame) bool
}

// ConfirmationFunc is called synchronously before a message-bearing gesture
// runs. Returning false declines the action without failing the task.
// Implementations may block on a human answer; they must honor ctx.
type ConfirmationFunc func(ctx context.Context, action *Action) (bool, error)

// TakeoverFunc hands the device to the human and blocks until they signal
// the agent may resume. The message comes from the model or from the
// sensitivity gate.
type TakeoverFunc func(ctx context.Context, message string) error
