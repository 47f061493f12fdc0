package llmutil

import (
	"strings"
	"time"

	"github.com/xkilldash9x/phonepilot/api/schemas"
)

// timeNow is swapped out by tests that assert on metric values.
var timeNow = time.Now

// StreamState tracks which marker boundaries the stream has crossed.
type StreamState int

const (
	StateBeforeThink StreamState = iota
	StateInThink
	StateBeforeAction
	StateInAction
	StateDone
)

func (s StreamState) String() string {
	switch s {
	case StateBeforeThink:
		return "before_think"
	case StateInThink:
		return "in_think"
	case StateBeforeAction:
		return "before_action"
	case StateInAction:
		return "in_action"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Assembler accumulates streamed chunks and advances a marker state machine
// so latency metrics are captured at the moment each boundary is crossed.
// It is transport-agnostic: callers feed it text chunks from whatever wire
// protocol delivered them.
//
// Not safe for concurrent use; one assembler serves one model call.
type Assembler struct {
	buf     strings.Builder
	state   StreamState
	scanned int

	started     time.Time
	firstToken  time.Time
	thinkingEnd time.Time
}

// NewAssembler starts the clock for one streamed response.
func NewAssembler() *Assembler {
	return &Assembler{started: timeNow()}
}

// Feed appends one chunk and advances the state machine.
func (a *Assembler) Feed(chunk string) {
	if chunk == "" {
		return
	}
	if a.firstToken.IsZero() {
		a.firstToken = timeNow()
	}
	a.buf.WriteString(chunk)
	a.advance()
}

// advance re-scans the unconsumed tail of the buffer for the next expected
// marker. Markers split across chunk boundaries are found once the closing
// chunk arrives because scanning resumes behind the longest marker length.
func (a *Assembler) advance() {
	text := a.buf.String()
	for {
		switch a.state {
		case StateBeforeThink:
			if i := strings.Index(text[a.scanned:], ThinkOpen); i >= 0 {
				a.scanned += i + len(ThinkOpen)
				a.state = StateInThink
				continue
			}
			// A response may skip thinking entirely.
			if i := strings.Index(text[a.scanned:], AnswerOpen); i >= 0 {
				a.scanned += i + len(AnswerOpen)
				a.state = StateInAction
				continue
			}
		case StateInThink:
			if i := strings.Index(text[a.scanned:], ThinkClose); i >= 0 {
				a.scanned += i + len(ThinkClose)
				a.thinkingEnd = timeNow()
				a.state = StateBeforeAction
				continue
			}
		case StateBeforeAction:
			if i := strings.Index(text[a.scanned:], AnswerOpen); i >= 0 {
				a.scanned += i + len(AnswerOpen)
				a.state = StateInAction
				continue
			}
		case StateInAction:
			if i := strings.Index(text[a.scanned:], AnswerClose); i >= 0 {
				a.scanned += i + len(AnswerClose)
				a.state = StateDone
				continue
			}
		case StateDone:
		}
		return
	}
}

// State reports the current position in the marker structure.
func (a *Assembler) State() StreamState { return a.state }

// Text returns everything received so far.
func (a *Assembler) Text() string { return a.buf.String() }

// Finalize stops the clock and deterministically re-parses the full
// accumulated text. The incremental state machine only drives metrics;
// the returned response comes from the full-text parse, so a stream that
// arrived in one chunk and one that arrived byte-by-byte produce identical
// results.
func (a *Assembler) Finalize() (*schemas.ModelResponse, error) {
	end := timeNow()
	resp, err := ParseResponse(a.buf.String())
	resp.Metrics = schemas.StreamMetrics{TotalTime: end.Sub(a.started)}
	if !a.firstToken.IsZero() {
		resp.Metrics.TimeToFirstToken = a.firstToken.Sub(a.started)
	}
	if !a.thinkingEnd.IsZero() {
		resp.Metrics.TimeToThinkingEnd = a.thinkingEnd.Sub(a.started)
	}
	return resp, err
}
