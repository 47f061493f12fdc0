package llmutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/phonepilot/api/schemas"
)

// fakeClock advances a fixed amount per reading so metric ordering is
// deterministic.
type fakeClock struct {
	now  time.Time
	tick time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(c.tick)
	return c.now
}

func withFakeClock(t *testing.T, tick time.Duration) *fakeClock {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0), tick: tick}
	orig := timeNow
	timeNow = clock.Now
	t.Cleanup(func() { timeNow = orig })
	return clock
}

func TestAssemblerStateProgression(t *testing.T) {
	withFakeClock(t, time.Millisecond)

	a := NewAssembler()
	assert.Equal(t, StateBeforeThink, a.State())

	a.Feed("<think>the button ")
	assert.Equal(t, StateInThink, a.State())

	a.Feed("is bottom right</think>")
	assert.Equal(t, StateBeforeAction, a.State())

	a.Feed("<answer>do(action=\"Tap\", ")
	assert.Equal(t, StateInAction, a.State())

	a.Feed("element=[900,900])</answer>")
	assert.Equal(t, StateDone, a.State())

	resp, err := a.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "the button is bottom right", resp.Thinking)
	require.NotNil(t, resp.Action)
	assert.Equal(t, schemas.ActionTap, resp.Action.Kind)
}

func TestAssemblerMarkerSplitAcrossChunks(t *testing.T) {
	withFakeClock(t, time.Millisecond)

	a := NewAssembler()
	a.Feed("<thi")
	a.Feed("nk>short</th")
	assert.Equal(t, StateInThink, a.State())
	a.Feed("ink><ans")
	assert.Equal(t, StateBeforeAction, a.State())
	a.Feed("wer>do(action=\"Home\")</answer>")
	assert.Equal(t, StateDone, a.State())

	resp, err := a.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "short", resp.Thinking)
	assert.Equal(t, schemas.ActionHome, resp.Action.Kind)
}

func TestAssemblerMetrics(t *testing.T) {
	clock := withFakeClock(t, 0)

	a := NewAssembler() // t0
	clock.now = clock.now.Add(100 * time.Millisecond)
	a.Feed("<think>x") // first token at t0+100ms
	clock.now = clock.now.Add(150 * time.Millisecond)
	a.Feed("</think>") // thinking end at t0+250ms
	clock.now = clock.now.Add(50 * time.Millisecond)
	a.Feed("<answer>do(action=\"Back\")</answer>")
	clock.now = clock.now.Add(25 * time.Millisecond)

	resp, err := a.Finalize() // total at t0+325ms
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, resp.Metrics.TimeToFirstToken)
	assert.Equal(t, 250*time.Millisecond, resp.Metrics.TimeToThinkingEnd)
	assert.Equal(t, 325*time.Millisecond, resp.Metrics.TotalTime)
}

func TestAssemblerNoThinkingSection(t *testing.T) {
	withFakeClock(t, time.Millisecond)

	a := NewAssembler()
	a.Feed("<answer>do(action=\"Back\")</answer>")
	assert.Equal(t, StateDone, a.State())

	resp, err := a.Finalize()
	require.NoError(t, err)
	assert.Empty(t, resp.Thinking)
	assert.Zero(t, resp.Metrics.TimeToThinkingEnd)
	assert.Equal(t, schemas.ActionBack, resp.Action.Kind)
}

func TestAssemblerDeterministicReparse(t *testing.T) {
	withFakeClock(t, time.Millisecond)

	raw := `<think>swipe up to scroll</think><answer>do(action="Swipe", start=[500,800], end=[500,200])</answer>`

	// Byte-by-byte delivery.
	byByte := NewAssembler()
	for i := 0; i < len(raw); i++ {
		byByte.Feed(raw[i : i+1])
	}
	respA, errA := byByte.Finalize()

	// Single-chunk delivery.
	oneShot := NewAssembler()
	oneShot.Feed(raw)
	respB, errB := oneShot.Finalize()

	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, respA.Thinking, respB.Thinking)
	assert.Equal(t, respA.Action, respB.Action)
	assert.Equal(t, respA.RawText, respB.RawText)
}

func TestAssemblerParseFailure(t *testing.T) {
	withFakeClock(t, time.Millisecond)

	a := NewAssembler()
	a.Feed("<think>unsure</think><answer>maybe tap something?</answer>")

	resp, err := a.Finalize()
	assert.ErrorIs(t, err, ErrNoAction)
	assert.Nil(t, resp.Action)
	// Metrics are still recorded for failed parses.
	assert.NotZero(t, resp.Metrics.TotalTime)
}
