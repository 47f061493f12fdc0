package adb

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/phonepilot/api/schemas"
)

// ListDevices enumerates attached devices via `adb devices -l`.
func (c *Controller) ListDevices(ctx context.Context) ([]schemas.DeviceInfo, error) {
	out, err := c.run.Run(ctx, "devices", "-l")
	if err != nil {
		return nil, err
	}
	return parseDeviceList(out), nil
}

// parseDeviceList handles output of the form:
//
//	List of devices attached
//	emulator-5554  device product:sdk model:sdk_gphone64 transport_id:1
//	192.168.1.5:5555  offline transport_id:2
func parseDeviceList(out string) []schemas.DeviceInfo {
	var devices []schemas.DeviceInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		info := schemas.DeviceInfo{
			Serial:    fields[0],
			State:     fields[1],
			Transport: "usb",
		}
		if strings.Contains(info.Serial, ":") {
			info.Transport = "tcp"
		}
		for _, kv := range fields[2:] {
			if v, ok := strings.CutPrefix(kv, "model:"); ok {
				info.Model = v
			}
		}
		devices = append(devices, info)
	}
	return devices
}

// Connect attaches a device over TCP (adb connect host:port).
func (c *Controller) Connect(ctx context.Context, endpoint string) error {
	out, err := c.run.Run(ctx, "connect", endpoint)
	if err != nil {
		return err
	}
	// adb connect exits zero even on refusal.
	lower := strings.ToLower(out)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "cannot") {
		return fmt.Errorf("failed to connect to %s: %s", endpoint, strings.TrimSpace(out))
	}
	return nil
}

// Disconnect detaches a TCP device.
func (c *Controller) Disconnect(ctx context.Context, endpoint string) error {
	_, err := c.run.Run(ctx, "disconnect", endpoint)
	return err
}
