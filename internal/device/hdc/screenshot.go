package hdc

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

const remoteScreenshotPath = "/data/local/tmp/phonepilot_tmp.png"

const captureRetryDelay = 200 * time.Millisecond

// CaptureFrame screenshots the device via snapshot_display and file recv.
// Black captures are retried; capture failures degrade to a black fallback
// frame rather than an error.
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

	if app, err := c.ForegroundApp(ctx); err == nil {
		frame.ForegroundApp = app
	}
	return frame, nil
}

func (c *Controller) captureOnce(ctx context.Context) (*schemas.Frame, error) {
	timeout := c.cfg.ScreenshotTimeout
	out, err := c.run.RunTimeout(ctx, timeout,
		c.args("shell", "snapshot_display", "-f", remoteScreenshotPath)...)
	if err != nil {
		return nil, err
	}
	if strings.Contains(out, "error") {
		return nil, fmt.Errorf("snapshot_display failed: %s", strings.TrimSpace(out))
	}

	localPath := filepath.Join(os.TempDir(), fmt.Sprintf("phonepilot_%s.png", uuid.NewString()))
	defer os.Remove(localPath)
	if _, err := c.run.RunTimeout(ctx, timeout,
		c.args("file", "recv", remoteScreenshotPath, localPath)...); err != nil {
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
	return &schemas.Frame{
		PNGBase64: base64.StdEncoding.EncodeToString(data),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Sensitive: screen.IsBlack(img),
	}, nil
}

// Cleanup removes the remote screenshot temp file.
func (c *Controller) Cleanup(ctx context.Context) error {
	_, err := c.run.Run(ctx, c.args("shell", "rm", "-f", remoteScreenshotPath)...)
	return err
}

// ListDevices enumerates attached targets via `hdc list targets -v`.
func (c *Controller) ListDevices(ctx context.Context) ([]schemas.DeviceInfo, error) {
	out, err := c.run.Run(ctx, "list", "targets", "-v")
	if err != nil {
		return nil, err
	}
	return parseTargetList(out), nil
}

// parseTargetList handles lines of the form:
//
//	FMR0223C13000649        USB     Connected       localhost       hdc
func parseTargetList(out string) []schemas.DeviceInfo {
	var devices []schemas.DeviceInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "Empty") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		devices = append(devices, schemas.DeviceInfo{
			Serial:    fields[0],
			Transport: strings.ToLower(fields[1]),
			State:     strings.ToLower(fields[2]),
		})
	}
	return devices
}

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
