package schemas

import "time"

// StreamMetrics captures the latency profile of one streamed model call.
// Zero durations mean the corresponding event never happened (e.g. the
// stream produced no thinking section).
type StreamMetrics struct {
	TimeToFirstToken  time.Duration `json:"time_to_first_token"`
	TimeToThinkingEnd time.Duration `json:"time_to_thinking_end"`
	TotalTime         time.Duration `json:"total_time"`
}

// ModelResponse is the parsed result of one planning call.
type ModelResponse struct {
	// Thinking is the text between the think markers, trimmed.
	Thinking string

	// Action is the parsed gesture, nil when parsing failed.
	Action *Action

	// RawAction is the unparsed answer-section text, kept for the
	// assistant echo and for diagnostics on parse failure.
	RawAction string

	// RawText is the full model output as received.
	RawText string

	Metrics StreamMetrics
}

// AssistantEcho renders the turn written back into context after a
// successful step, preserving the marker format the model was trained on.
func (r *ModelResponse) AssistantEcho() string {
	return "<think>" + r.Thinking + "</think><answer>" + r.RawAction + "</answer>"
}
