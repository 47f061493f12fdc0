package adb

import (
	"context"
	"encoding/base64"
	"strings"

	"go.uber.org/zap"
)

// The ADB Keyboard IME (github.com/senzhk/ADBKeyBoard) receives text over
// broadcast intents, which is the only reliable way to inject non-ASCII
// text on Android.
const adbKeyboardIME = "com.android.adbkeyboard/.AdbIME"

// TypeText replaces the focused field's content with text. The field is
// cleared first, unconditionally, so repeated typing is idempotent. The
// previously active IME is restored afterwards even when injection fails.
func (c *Controller) TypeText(ctx context.Context, text string) error {
	restore, err := c.ensureADBKeyboard(ctx)
	if err != nil {
		return err
	}
	defer restore()

	if err := c.broadcastClear(ctx); err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(text))
	_, err = c.run.Run(ctx, c.args("shell", "am", "broadcast",
		"-a", "ADB_INPUT_B64", "--es", "msg", encoded)...)
	return err
}

// ClearText empties the focused field without typing anything.
func (c *Controller) ClearText(ctx context.Context) error {
	restore, err := c.ensureADBKeyboard(ctx)
	if err != nil {
		return err
	}
	defer restore()
	return c.broadcastClear(ctx)
}

func (c *Controller) broadcastClear(ctx context.Context) error {
	_, err := c.run.Run(ctx, c.args("shell", "am", "broadcast", "-a", "ADB_CLEAR_TEXT")...)
	return err
}

// ensureADBKeyboard switches the active IME to the ADB keyboard and returns
// a restore func for the previous one. A no-op restore is returned when the
// ADB keyboard was already active.
func (c *Controller) ensureADBKeyboard(ctx context.Context) (func(), error) {
	out, err := c.run.Run(ctx, c.args("shell", "settings", "get", "secure", "default_input_method")...)
	if err != nil {
		return nil, err
	}
	current := strings.TrimSpace(out)
	if current == adbKeyboardIME {
		return func() {}, nil
	}

	if _, err := c.run.Run(ctx, c.args("shell", "ime", "enable", adbKeyboardIME)...); err != nil {
		return nil, err
	}
	if _, err := c.run.Run(ctx, c.args("shell", "ime", "set", adbKeyboardIME)...); err != nil {
		return nil, err
	}

	return func() {
		if current == "" || current == "null" {
			return
		}
		// Restoration runs on a fresh context; the caller's may be done.
		restoreCtx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
		defer cancel()
		if _, err := c.run.Run(restoreCtx, c.args("shell", "ime", "set", current)...); err != nil {
			c.logger.Warn("Failed to restore input method", zap.String("ime", current), zap.Error(err))
		}
	}, nil
}

// KeyboardInstalled reports whether the ADB keyboard IME is available on
// the device. Used by the doctor command.
func (c *Controller) KeyboardInstalled(ctx context.Context) (bool, error) {
	out, err := c.run.Run(ctx, c.args("shell", "ime", "list", "-a")...)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, adbKeyboardIME), nil
}
