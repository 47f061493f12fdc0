// Package hdc drives HarmonyOS devices through the hdc binary.
package hdc

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

// HarmonyOS key codes used by uitest keyEvent.
const (
	keyEnter  = "2054"
	keyCtrl   = "2072"
	keyA      = "2017"
	keyDelete = "2055"
)

const defaultAbility = "EntryAbility"

// uitest swipe takes a velocity in px/s rather than a duration.
const (
	minSwipeVelocity = 600
	maxSwipeVelocity = 4000
)

// Controller implements schemas.DeviceController for HarmonyOS.
type Controller struct {
	id     string
	run    *shell.Runner
	cfg    config.DeviceConfig
	logger *zap.Logger
}

var _ schemas.DeviceController = (*Controller)(nil)

// New builds a controller bound to one connect key (empty id means the only
// attached target).
func New(cfg config.DeviceConfig, logger *zap.Logger) *Controller {
	log := logger.Named("device.hdc")
	return &Controller{
		id:     cfg.ID,
		run:    shell.NewRunner("hdc", cfg.CommandRate, cfg.CommandTimeout, log),
		cfg:    cfg,
		logger: log,
	}
}

// args prepends the target selector.
func (c *Controller) args(rest ...string) []string {
	if c.id == "" {
		return rest
	}
	return append([]string{"-t", c.id}, rest...)
}

func (c *Controller) Tap(ctx context.Context, x, y int) error {
	_, err := c.run.Run(ctx, c.args("shell", "uitest", "uiInput", "click", itoa(x), itoa(y))...)
	return err
}

func (c *Controller) DoubleTap(ctx context.Context, x, y int) error {
	_, err := c.run.Run(ctx, c.args("shell", "uitest", "uiInput", "doubleClick", itoa(x), itoa(y))...)
	return err
}

func (c *Controller) LongPress(ctx context.Context, x, y int) error {
	_, err := c.run.Run(ctx, c.args("shell", "uitest", "uiInput", "longClick", itoa(x), itoa(y))...)
	return err
}

func (c *Controller) Swipe(ctx context.Context, x1, y1, x2, y2 int, duration time.Duration) error {
	_, err := c.run.Run(ctx, c.args("shell", "uitest", "uiInput", "swipe",
		itoa(x1), itoa(y1), itoa(x2), itoa(y2),
		itoa(swipeVelocity(x1, y1, x2, y2, duration)))...)
	return err
}

// swipeVelocity converts a distance and duration into the px/s figure
// uitest expects, clamped to the range the tool accepts.
func swipeVelocity(x1, y1, x2, y2 int, duration time.Duration) int {
	dx, dy := x2-x1, y2-y1
	dist := intSqrt(dx*dx + dy*dy)
	if duration <= 0 {
		duration = 500 * time.Millisecond
	}
	v := int(float64(dist) / duration.Seconds())
	if v < minSwipeVelocity {
		v = minSwipeVelocity
	} else if v > maxSwipeVelocity {
		v = maxSwipeVelocity
	}
	return v
}

func intSqrt(n int) int {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

func (c *Controller) Back(ctx context.Context) error {
	_, err := c.run.Run(ctx, c.args("shell", "uitest", "uiInput", "keyEvent", "Back")...)
	return err
}

func (c *Controller) Home(ctx context.Context) error {
	_, err := c.run.Run(ctx, c.args("shell", "uitest", "uiInput", "keyEvent", "Home")...)
	return err
}

// Launch starts the bundle's entry ability.
func (c *Controller) Launch(ctx context.Context, bundle string) error {
	out, err := c.run.Run(ctx, c.args("shell", "aa", "start", "-b", bundle, "-a", defaultAbility)...)
	if err != nil {
		return err
	}
	// aa exits zero with an error message when the bundle is missing.
	if strings.Contains(out, "error") || strings.Contains(out, "failed") {
		return fmt.Errorf("failed to launch %q: %s", bundle, strings.TrimSpace(out))
	}
	return nil
}

// ForegroundApp parses the focused window's bundle out of the window
// manager dump.
func (c *Controller) ForegroundApp(ctx context.Context) (string, error) {
	out, err := c.run.Run(ctx, c.args("shell", "hidumper", "-s", "WindowManagerService", "-a", "-a")...)
	if err != nil {
		return "", err
	}
	if app := parseFocusedBundle(out); app != "" {
		return app, nil
	}
	return "", fmt.Errorf("no focused window in hidumper output")
}

// parseFocusedBundle looks for the focus line and then the window entry
// carrying its bundle name, e.g. "WindowName: com.huawei.hmos.settings0".
func parseFocusedBundle(dump string) string {
	for _, line := range strings.Split(dump, "\n") {
		line = strings.TrimSpace(line)
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key != "bundleName" && key != "bundle name" && key != "Focus window bundle" {
			continue
		}
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	// Fall back to the first token that looks like a bundle id on the
	// focus line itself.
	for _, line := range strings.Split(dump, "\n") {
		if !strings.Contains(line, "Focus window") {
			continue
		}
		for _, tok := range strings.Fields(line) {
			if strings.Count(tok, ".") >= 2 {
				return strings.Trim(tok, "[]")
			}
		}
	}
	return ""
}

func itoa(n int) string { return strconv.Itoa(n) }
