package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/config"
)

// mockDevice records every call and replays scripted frames and errors.
type mockDevice struct {
	mu       sync.Mutex
	calls    []string
	frames   []*schemas.Frame
	frameErr error
	cmdErr   error
	cleanups int
}

var _ schemas.DeviceController = (*mockDevice)(nil)

func (d *mockDevice) record(format string, args ...any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
	return d.cmdErr
}

func (d *mockDevice) CaptureFrame(ctx context.Context) (*schemas.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "capture")
	if d.frameErr != nil {
		return nil, d.frameErr
	}
	if len(d.frames) == 0 {
		return &schemas.Frame{PNGBase64: "ZnJhbWU=", Width: 1080, Height: 2400}, nil
	}
	frame := d.frames[0]
	if len(d.frames) > 1 {
		d.frames = d.frames[1:]
	}
	return frame, nil
}

func (d *mockDevice) Tap(ctx context.Context, x, y int) error { return d.record("tap %d %d", x, y) }
func (d *mockDevice) DoubleTap(ctx context.Context, x, y int) error {
	return d.record("doubletap %d %d", x, y)
}
func (d *mockDevice) LongPress(ctx context.Context, x, y int) error {
	return d.record("longpress %d %d", x, y)
}
func (d *mockDevice) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	return d.record("swipe %d %d %d %d", x1, y1, x2, y2)
}
func (d *mockDevice) TypeText(ctx context.Context, text string) error {
	return d.record("type %s", text)
}
func (d *mockDevice) ClearText(ctx context.Context) error { return d.record("clear") }
func (d *mockDevice) Back(ctx context.Context) error      { return d.record("back") }
func (d *mockDevice) Home(ctx context.Context) error      { return d.record("home") }
func (d *mockDevice) Launch(ctx context.Context, pkg string) error {
	return d.record("launch %s", pkg)
}
func (d *mockDevice) Cleanup(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanups++
	return nil
}

func (d *mockDevice) callList() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// flagClassifier trusts the frame's own flag, avoiding PNG decoding in
// tests.
type flagClassifier struct{}

func (flagClassifier) IsSensitive(frame *schemas.Frame) bool {
	return frame == nil || frame.Sensitive
}

func testFrame() *schemas.Frame {
	return &schemas.Frame{PNGBase64: "ZnJhbWU=", Width: 1080, Height: 2400}
}

func newTestExecutor(d *mockDevice, confirm schemas.ConfirmationFunc, takeover schemas.TakeoverFunc) *Executor {
	return NewExecutor(d, flagClassifier{}, confirm, takeover,
		config.DeviceADB, 50*time.Millisecond, zap.NewNop())
}

func TestScaleCoord(t *testing.T) {
	assert.Equal(t, 0, scaleCoord(0, 1080))
	assert.Equal(t, 1079, scaleCoord(999, 1080))
	assert.Equal(t, 541, scaleCoord(500, 1080))
	assert.Equal(t, 0, scaleCoord(-5, 1080))
	assert.Equal(t, 1079, scaleCoord(1500, 1080))
}

func TestExecuteTapConvertsCoordinates(t *testing.T) {
	d := &mockDevice{}
	e := newTestExecutor(d, nil, nil)

	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind:    schemas.ActionTap,
		Element: &schemas.Point{X: 500, Y: 500},
	}, testFrame())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"tap 541 1201"}, d.callList())
}

func TestExecuteSwipe(t *testing.T) {
	d := &mockDevice{}
	e := newTestExecutor(d, nil, nil)

	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind:  schemas.ActionSwipe,
		Start: &schemas.Point{X: 500, Y: 800},
		End:   &schemas.Point{X: 500, Y: 200},
	}, testFrame())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"swipe 541 1922 541 480"}, d.callList())
}

func TestExecuteFinish(t *testing.T) {
	e := newTestExecutor(&mockDevice{}, nil, nil)
	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind:    schemas.ActionFinish,
		Message: "all done",
	}, testFrame())
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.Equal(t, "all done", res.Message)
}

func TestExecuteConfirmationDeclined(t *testing.T) {
	d := &mockDevice{}
	declined := func(ctx context.Context, a *schemas.Action) (bool, error) { return false, nil }
	e := newTestExecutor(d, declined, nil)

	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind:    schemas.ActionTap,
		Element: &schemas.Point{X: 10, Y: 10},
		Message: "pay 9.99",
	}, testFrame())
	require.NoError(t, err)
	assert.True(t, res.Declined)
	assert.Equal(t, ErrCodeUserDeclined, res.Code)
	assert.Empty(t, d.callList(), "a declined gesture must not reach the device")
}

func TestExecuteConfirmationAccepted(t *testing.T) {
	d := &mockDevice{}
	accepted := func(ctx context.Context, a *schemas.Action) (bool, error) { return true, nil }
	e := newTestExecutor(d, accepted, nil)

	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind:    schemas.ActionTap,
		Element: &schemas.Point{X: 10, Y: 10},
		Message: "pay 9.99",
	}, testFrame())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, d.callList(), 1)
}

func TestExecuteSensitiveScreenForcesTakeover(t *testing.T) {
	d := &mockDevice{}
	var handedOver string
	takeover := func(ctx context.Context, message string) error {
		handedOver = message
		return nil
	}
	e := newTestExecutor(d, nil, takeover)

	frame := testFrame()
	frame.Sensitive = true
	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind:    schemas.ActionTap,
		Element: &schemas.Point{X: 10, Y: 10},
	}, frame)
	require.NoError(t, err)
	assert.True(t, res.TookOver)
	assert.Equal(t, ErrCodeSensitiveScreen, res.Code)
	assert.NotEmpty(t, handedOver)
	assert.Empty(t, d.callList(), "no gesture may land on a sensitive screen")
}

func TestExecuteWaitIsExemptFromSensitiveGate(t *testing.T) {
	e := newTestExecutor(&mockDevice{}, nil, nil)
	frame := testFrame()
	frame.Sensitive = true

	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind:     schemas.ActionWait,
		Duration: time.Millisecond,
	}, frame)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.TookOver)
}

func TestExecuteWaitCapped(t *testing.T) {
	e := newTestExecutor(&mockDevice{}, nil, nil)

	start := time.Now()
	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind:     schemas.ActionWait,
		Duration: time.Hour,
	}, testFrame())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Less(t, time.Since(start), time.Second, "wait must be capped")
}

func TestExecuteLaunchResolvesApp(t *testing.T) {
	d := &mockDevice{}
	e := newTestExecutor(d, nil, nil)

	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind: schemas.ActionLaunch,
		App:  "Settings",
	}, testFrame())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"launch com.android.settings"}, d.callList())
}

func TestExecuteUnknownAppShortCircuits(t *testing.T) {
	d := &mockDevice{}
	e := newTestExecutor(d, nil, nil)

	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind: schemas.ActionLaunch,
		App:  "definitely not installed",
	}, testFrame())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrCodeUnknownApp, res.Code)
	assert.Empty(t, d.callList(), "an unresolvable name must not reach the device")
}

func TestExecuteLaunchRawPackageID(t *testing.T) {
	d := &mockDevice{}
	e := newTestExecutor(d, nil, nil)

	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind: schemas.ActionLaunch,
		App:  "com.example.demo",
	}, testFrame())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"launch com.example.demo"}, d.callList())
}

func TestExecuteUnknownAppCodeOnLaunchFailure(t *testing.T) {
	d := &mockDevice{cmdErr: errors.New("no activities found")}
	e := newTestExecutor(d, nil, nil)

	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind: schemas.ActionLaunch,
		App:  "com.example.notinstalled",
	}, testFrame())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrCodeUnknownApp, res.Code)
	assert.Len(t, d.callList(), 1, "a package-shaped id is attempted before failing")
}

func TestExecuteDeviceUnreachable(t *testing.T) {
	d := &mockDevice{cmdErr: fmt.Errorf("adb: %w", schemas.ErrDeviceUnreachable)}
	e := newTestExecutor(d, nil, nil)

	_, err := e.Execute(context.Background(), &schemas.Action{
		Kind:    schemas.ActionTap,
		Element: &schemas.Point{X: 1, Y: 1},
	}, testFrame())
	require.ErrorIs(t, err, schemas.ErrDeviceUnreachable)
}

func TestExecuteTakeoverWithoutHandler(t *testing.T) {
	e := newTestExecutor(&mockDevice{}, nil, nil)
	res, err := e.Execute(context.Background(), &schemas.Action{
		Kind:    schemas.ActionTakeOver,
		Message: "enter your password",
	}, testFrame())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrCodeTakeoverFailed, res.Code)
}
