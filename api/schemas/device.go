package schemas

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceUnreachable aborts the task. Any device command whose transport
// failed (device offline, adb/hdc server gone) wraps this sentinel so the
// loop can distinguish a dead device from an action that merely did nothing.
var ErrDeviceUnreachable = errors.New("device unreachable")

// Frame is one captured screenshot plus everything the planner needs to
// reason about it.
type Frame struct {
	// PNGBase64 is the raw screenshot, base64-encoded, no data-URL prefix.
	PNGBase64 string

	// Physical pixel dimensions of the capture.
	Width  int
	Height int

	// Sensitive marks a capture the OS blacked out (payment sheets, password
	// prompts with FLAG_SECURE). The executor refuses to act on these.
	Sensitive bool

	// ForegroundApp is the package or bundle name in the foreground at
	// capture time, empty when the probe failed.
	ForegroundApp string
}

// DataURL renders the frame as an inline image URL for a multimodal turn.
func (f *Frame) DataURL() string {
	return "data:image/png;base64," + f.PNGBase64
}

// DeviceInfo describes one attached device as reported by `adb devices -l`
// or `hdc list targets`.
type DeviceInfo struct {
	Serial    string
	State     string
	Model     string
	Transport string
}

// DeviceController is the full surface the agent needs from a phone. The
// adb and hdc packages each provide one; everything above them is
// platform-agnostic.
type DeviceController interface {
	// CaptureFrame takes a screenshot and probes the foreground app.
	CaptureFrame(ctx context.Context) (*Frame, error)

	// Tap and friends take physical pixel coordinates, already converted
	// and clamped by the executor.
	Tap(ctx context.Context, x, y int) error
	DoubleTap(ctx context.Context, x, y int) error
	LongPress(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error

	// TypeText replaces the current field content. Implementations clear
	// the field first; callers never see partial composition.
	TypeText(ctx context.Context, text string) error
	ClearText(ctx context.Context) error

	Back(ctx context.Context) error
	Home(ctx context.Context) error

	// Launch starts the app identified by a platform package/bundle id.
	Launch(ctx context.Context, pkg string) error

	// Cleanup removes temp artifacts the controller left on the device.
	// Called on every task exit path, including cancellation.
	Cleanup(ctx context.Context) error
}
