package hdc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/phonepilot/api/schemas"
)

func TestParseFocusedBundle(t *testing.T) {
	dump := `
WindowManagerService
  Focus window: 12
  WindowName: pointer window
  bundleName: com.huawei.hmos.settings
`
	assert.Equal(t, "com.huawei.hmos.settings", parseFocusedBundle(dump))

	t.Run("focus line fallback", func(t *testing.T) {
		dump := "Focus window: [com.huawei.hmos.camera] id=7"
		assert.Equal(t, "com.huawei.hmos.camera", parseFocusedBundle(dump))
	})

	t.Run("no focus info", func(t *testing.T) {
		assert.Equal(t, "", parseFocusedBundle("WindowManagerService\n  windows: 0"))
	})
}

func TestParseTargetList(t *testing.T) {
	out := `FMR0223C13000649        USB     Connected       localhost       hdc
127.0.0.1:5555  TCP     Offline localhost       hdc
`
	devices := parseTargetList(out)
	assert.Equal(t, []schemas.DeviceInfo{
		{Serial: "FMR0223C13000649", Transport: "usb", State: "connected"},
		{Serial: "127.0.0.1:5555", Transport: "tcp", State: "offline"},
	}, devices)
}

func TestParseTargetListEmpty(t *testing.T) {
	assert.Empty(t, parseTargetList("[Empty]\n"))
}

func TestSwipeVelocity(t *testing.T) {
	// 1000px over 500ms is 2000px/s.
	assert.Equal(t, 2000, swipeVelocity(0, 0, 0, 1000, 500*time.Millisecond))
	// Slow swipes clamp at the minimum velocity uitest accepts.
	assert.Equal(t, 600, swipeVelocity(0, 0, 0, 10, time.Second))
	// Fast swipes clamp at the maximum.
	assert.Equal(t, 4000, swipeVelocity(0, 0, 0, 3000, 100*time.Millisecond))
	// Zero duration falls back to the default 500ms.
	assert.Equal(t, 2000, swipeVelocity(0, 0, 0, 1000, 0))
}

func TestArgsPrependsTarget(t *testing.T) {
	c := &Controller{id: "FMR0223C13000649"}
	assert.Equal(t, []string{"-t", "FMR0223C13000649", "shell", "uitest"},
		c.args("shell", "uitest"))

	anon := &Controller{}
	assert.Equal(t, []string{"list", "targets"}, anon.args("list", "targets"))
}
