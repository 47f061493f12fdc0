package cmd

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/phonepilot/api/schemas"
)

func newTestUI(input string) (*consoleUI, *bytes.Buffer) {
	var out bytes.Buffer
	return &consoleUI{
		in:   bufio.NewReader(strings.NewReader(input)),
		out:  &out,
		lang: "en",
	}, &out
}

func TestConsoleUIConfirm(t *testing.T) {
	action := &schemas.Action{
		Kind:    schemas.ActionTap,
		Element: &schemas.Point{X: 1, Y: 1},
		Message: "pay 9.99",
	}

	t.Run("yes", func(t *testing.T) {
		ui, out := newTestUI("y\n")
		ok, err := ui.confirm(context.Background(), action)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Contains(t, out.String(), "pay 9.99")
	})

	t.Run("no", func(t *testing.T) {
		ui, _ := newTestUI("n\n")
		ok, err := ui.confirm(context.Background(), action)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("anything but yes declines", func(t *testing.T) {
		ui, _ := newTestUI("maybe\n")
		ok, err := ui.confirm(context.Background(), action)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ui, _ := newTestUI("")
		_, err := ui.confirm(ctx, action)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestConsoleUITakeover(t *testing.T) {
	ui, out := newTestUI("\n")
	err := ui.takeover(context.Background(), "enter your password")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "enter your password")
	assert.Contains(t, out.String(), "Manual Operation Required")
}

func TestConsoleUIStep(t *testing.T) {
	ui, out := newTestUI("")
	ui.step(&schemas.StepRecord{
		StepNumber: 3,
		Thinking:   "the icon is at the bottom",
		Action: &schemas.Action{
			Kind:    schemas.ActionTap,
			Element: &schemas.Point{X: 500, Y: 900},
		},
		Success: true,
		Metrics: schemas.StreamMetrics{TimeToFirstToken: 250 * time.Millisecond},
	})

	s := out.String()
	assert.Contains(t, s, "Step 3")
	assert.Contains(t, s, "the icon is at the bottom")
	assert.Contains(t, s, `do(action="Tap", element=[500,900])`)
	assert.Contains(t, s, "250ms")
}

func TestConsoleUIStepQuiet(t *testing.T) {
	ui, out := newTestUI("")
	ui.quiet = true
	ui.step(&schemas.StepRecord{StepNumber: 1})
	assert.Empty(t, out.String())
}
