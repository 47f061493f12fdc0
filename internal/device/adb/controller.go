// Package adb drives Android devices through the adb binary.
package adb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/config"
	"github.com/xkilldash9x/phonepilot/internal/device/shell"
)

// Android key codes.
const (
	keyHome = "3"
	keyBack = "4"
)

const (
	longPressMillis   = 800
	doubleTapInterval = 100 * time.Millisecond
)

// Controller implements schemas.DeviceController for Android.
type Controller struct {
	id      string
	run     *shell.Runner
	cfg     config.DeviceConfig
	cleanup *CleanupManager
	logger  *zap.Logger
}

var _ schemas.DeviceController = (*Controller)(nil)

// New builds a controller bound to one device (empty id means the only
// attached device).
func New(cfg config.DeviceConfig, logger *zap.Logger) *Controller {
	log := logger.Named("device.adb")
	runner := shell.NewRunner("adb", cfg.CommandRate, cfg.CommandTimeout, log)
	return &Controller{
		id:      cfg.ID,
		run:     runner,
		cfg:     cfg,
		cleanup: NewCleanupManager(runner, cfg.ID, log),
		logger:  log,
	}
}

// args prepends the device selector.
func (c *Controller) args(rest ...string) []string {
	if c.id == "" {
		return rest
	}
	return append([]string{"-s", c.id}, rest...)
}

func (c *Controller) Tap(ctx context.Context, x, y int) error {
	_, err := c.run.Run(ctx, c.args("shell", "input", "tap", itoa(x), itoa(y))...)
	return err
}

// DoubleTap sends two taps separated by a short pause; Android has no
// native double-tap injection.
func (c *Controller) DoubleTap(ctx context.Context, x, y int) error {
	if err := c.Tap(ctx, x, y); err != nil {
		return err
	}
	if err := sleepCtx(ctx, doubleTapInterval); err != nil {
		return err
	}
	return c.Tap(ctx, x, y)
}

// LongPress is a zero-distance swipe held for the press duration.
func (c *Controller) LongPress(ctx context.Context, x, y int) error {
	_, err := c.run.Run(ctx, c.args("shell", "input", "swipe",
		itoa(x), itoa(y), itoa(x), itoa(y), itoa(longPressMillis))...)
	return err
}

func (c *Controller) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	if duration <= 0 {
		duration = swipeDuration(x1, y1, x2, y2)
	}
	_, err := c.run.Run(ctx, c.args("shell", "input", "swipe",
		itoa(x1), itoa(y1), itoa(x2), itoa(y2),
		itoa(int(duration.Milliseconds())))...)
	return err
}

// swipeDuration scales with distance, clamped to [500ms,1000ms].
func swipeDuration(x1, y1, x2, y2 int) time.Duration {
	distSq := (x1-x2)*(x1-x2) + (y1-y2)*(y1-y2)
	ms := distSq / 1000
	if ms < 500 {
		ms = 500
	} else if ms > 1000 {
		ms = 1000
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Controller) Back(ctx context.Context) error {
	_, err := c.run.Run(ctx, c.args("shell", "input", "keyevent", keyBack)...)
	return err
}

func (c *Controller) Home(ctx context.Context) error {
	_, err := c.run.Run(ctx, c.args("shell", "input", "keyevent", keyHome)...)
	return err
}

// Launch starts the package's launcher activity.
func (c *Controller) Launch(ctx context.Context, pkg string) error {
	out, err := c.run.Run(ctx, c.args("shell", "monkey", "-p", pkg,
		"-c", "android.intent.category.LAUNCHER", "1")...)
	if err != nil {
		return err
	}
	// monkey exits zero even when the package does not exist.
	if strings.Contains(out, "No activities found") ||
		strings.Contains(out, "monkey aborted") {
		return fmt.Errorf("failed to launch %q: %s", pkg, strings.TrimSpace(out))
	}
	return nil
}

// ForegroundApp parses the focused window out of the window manager dump.
func (c *Controller) ForegroundApp(ctx context.Context) (string, error) {
	out, err := c.run.Run(ctx, c.args("shell", "dumpsys", "window")...)
	if err != nil {
		return "", err
	}
	if app := parseFocusedPackage(out); app != "" {
		return app, nil
	}
	return "", fmt.Errorf("no focused window in dumpsys output")
}

// parseFocusedPackage extracts "com.pkg" from a line like
// "mCurrentFocus=Window{abc u0 com.pkg/com.pkg.MainActivity}".
func parseFocusedPackage(dump string) string {
	for _, line := range strings.Split(dump, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "mCurrentFocus=") && !strings.HasPrefix(line, "mFocusedWindow=") {
			continue
		}
		open := strings.Index(line, "{")
		close_ := strings.LastIndex(line, "}")
		if open < 0 || close_ <= open {
			continue
		}
		fields := strings.Fields(line[open+1 : close_])
		if len(fields) == 0 {
			continue
		}
		token := fields[len(fields)-1]
		if slash := strings.Index(token, "/"); slash > 0 {
			return token[:slash]
		}
	}
	return ""
}

// Cleanup removes the remote screenshot temp file.
func (c *Controller) Cleanup(ctx context.Context) error {
	return c.cleanup.Cleanup(ctx)
}

// SweepStale removes a leftover temp file from a previous run if it is
// older than maxAge. Called at task start.
func (c *Controller) SweepStale(ctx context.Context, maxAge time.Duration) error {
	return c.cleanup.SweepStale(ctx, maxAge)
}

func itoa(n int) string { return strconv.Itoa(n) }

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
