// Package device selects the platform bridge for the configured device type.
package device

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/phonepilot/api/schemas"
	"github.com/xkilldash9x/phonepilot/internal/config"
	"github.com/xkilldash9x/phonepilot/internal/device/adb"
	"github.com/xkilldash9x/phonepilot/internal/device/hdc"
)

// Lister is the device enumeration surface shared by both bridges, used by
// the devices and doctor commands.
type Lister interface {
	ListDevices(ctx context.Context) ([]schemas.DeviceInfo, error)
}

// New builds the controller for the configured bridge.
func New(cfg config.DeviceConfig, logger *zap.Logger) (schemas.DeviceController, error) {
	switch cfg.Type {
	case config.DeviceADB:
		return adb.New(cfg, logger), nil
	case config.DeviceHDC:
		return hdc.New(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported device type %q", cfg.Type)
	}
}

// NewLister builds the enumeration surface for the configured bridge.
func NewLister(cfg config.DeviceConfig, logger *zap.Logger) (Lister, error) {
	switch cfg.Type {
	case config.DeviceADB:
		return adb.New(cfg, logger), nil
	case config.DeviceHDC:
		return hdc.New(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported device type %q", cfg.Type)
	}
}
