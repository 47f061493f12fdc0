package adb

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/device/screen"
)

// remoteScreenshotPath is where screencap writes on the device; the
// cleanup manager owns its removal.
const remoteScreenshotPath = "/sdcard/phonepilot_tmp.png"

const captureRetryDelay = 200 * time.Millisecond

// CaptureFrame screenshots the device. Black captures are retried a few
// times (they usually mean the capture raced an animation); if every
// attempt is black the last frame is returned with Sensitive set only when
// the failure pattern indicates an OS-blocked surface. Capture failures
// degrade to a black fallback frame rather than an error, so the agent can
// still reason about "the screen is unreadable".
func (c *Controller) CaptureFrame(ctx context.Context) (*schemas.Frame, error) {
	retries := c.cfg.ScreenshotRetries
	if retries < 1 {
		retries = 1
	}

	var frame *schemas.Frame
	for attempt := 1; attempt <= retries; attempt++ {
		var err error
		frame, err = c.captureOnce(ctx)
		if err != nil {
			if errors.Is(err, schemas.ErrDeviceUnreachable) {
				return nil, err
			}
			c.logger.Warn("Screenshot attempt failed",
				zap.Int("attempt", attempt), zap.Int("retries", retries), zap.Error(err))
			if permissionDenied(err) {
				frame = screen.FallbackFrame(true)
				break
			}
			frame = nil
		} else if !frame.Sensitive {
			break
		}
		if attempt < retries {
			if serr := sleepCtx(ctx, captureRetryDelay); serr != nil {
				return nil, serr
			}
		}
	}
	if frame == nil {
		frame = screen.FallbackFrame(false)
	}

	// Foreground probe is best effort; a frame without it is still usable.
	if app, err := c.ForegroundApp(ctx); err == nil {
		frame.ForegroundApp = app
	}
	return frame, nil
}

func (c *Controller) captureOnce(ctx context.Context) (*schemas.Frame, error) {
	timeout := c.cfg.ScreenshotTimeout
	if _, err := c.run.RunTimeout(ctx, timeout,
		c.args("shell", "screencap", "-p", remoteScreenshotPath)...); err != nil {
		return nil, err
	}

	localPath := filepath.Join(os.TempDir(), fmt.Sprintf("phonepilot_%s.png", uuid.NewString()))
	defer os.Remove(localPath)
	if _, err := c.run.RunTimeout(ctx, timeout,
		c.args("pull", remoteScreenshotPath, localPath)...); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read pulled screenshot: %w", err)
	}
	img, err := screen.Decode(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	frame := &schemas.Frame{
		PNGBase64: base64.StdEncoding.EncodeToString(data),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Sensitive: screen.IsBlack(img),
	}
	return frame, nil
}

func permissionDenied(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "permission denied")
}
