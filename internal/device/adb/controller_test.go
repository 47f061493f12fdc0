package adb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/phonepilot/api/schemas"
)

func TestParseFocusedPackage(t *testing.T) {
	dump := `
  mGlobalConfiguration={1.0 310mcc260mnc [en_US]}
  mCurrentFocus=Window{8f4c2d1 u0 com.android.settings/com.android.settings.Settings}
  mFocusApp=ActivityRecord{...}
`
	assert.Equal(t, "com.android.settings", parseFocusedPackage(dump))

	t.Run("focused window fallback", func(t *testing.T) {
		dump := "mFocusedWindow=Window{abc u0 com.tencent.mm/com.tencent.mm.ui.LauncherUI}"
		assert.Equal(t, "com.tencent.mm", parseFocusedPackage(dump))
	})

	t.Run("no focus line", func(t *testing.T) {
		assert.Equal(t, "", parseFocusedPackage("mGlobalConfiguration={}"))
	})

	t.Run("window without package", func(t *testing.T) {
		assert.Equal(t, "", parseFocusedPackage("mCurrentFocus=Window{abc u0 StatusBar}"))
	})
}

func TestParseDeviceList(t *testing.T) {
	out := `List of devices attached
emulator-5554          device product:sdk_gphone64_x86_64 model:sdk_gphone64_x86_64 transport_id:1
192.168.1.5:5555       offline transport_id:2
R58M123ABC             unauthorized usb:1-2

`
	devices := parseDeviceList(out)
	assert.Equal(t, []schemas.DeviceInfo{
		{Serial: "emulator-5554", State: "device", Model: "sdk_gphone64_x86_64", Transport: "usb"},
		{Serial: "192.168.1.5:5555", State: "offline", Transport: "tcp"},
		{Serial: "R58M123ABC", State: "unauthorized", Transport: "usb"},
	}, devices)
}

func TestParseDeviceListEmpty(t *testing.T) {
	assert.Empty(t, parseDeviceList("List of devices attached\n\n"))
}

func TestSwipeDuration(t *testing.T) {
	// Short swipes clamp to the floor, long ones to the ceiling.
	assert.Equal(t, 500*time.Millisecond, swipeDuration(0, 0, 10, 10))
	assert.Equal(t, time.Second, swipeDuration(0, 0, 0, 2000))
	// A mid-length swipe scales with distance squared.
	assert.Equal(t, 640*time.Millisecond, swipeDuration(0, 0, 0, 800))
}

func TestArgsPrependsSerial(t *testing.T) {
	c := &Controller{id: "emulator-5554"}
	assert.Equal(t, []string{"-s", "emulator-5554", "shell", "input", "tap"},
		c.args("shell", "input", "tap"))

	anon := &Controller{}
	assert.Equal(t, []string{"devices"}, anon.args("devices"))
}
