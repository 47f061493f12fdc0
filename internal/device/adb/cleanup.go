package adb

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/phonepilot/internal/device/shell"
)

const cleanupRetries = 3

// CleanupManager removes the screenshot temp file left on the device. The
// remote path is fixed, so a crashed run's leftover is found by the next
// run's stale sweep.
type CleanupManager struct {
	run    *shell.Runner
	id     string
	logger *zap.Logger
}

func NewCleanupManager(run *shell.Runner, id string, logger *zap.Logger) *CleanupManager {
	return &CleanupManager{run: run, id: id, logger: logger}
}

func (m *CleanupManager) args(rest ...string) []string {
	if m.id == "" {
		return rest
	}
	return append([]string{"-s", m.id}, rest...)
}

// exists checks the remote file with test -f. adb propagates the shell's
// exit status, so a missing file surfaces as a command error.
func (m *CleanupManager) exists(ctx context.Context) bool {
	_, err := m.run.Run(ctx, m.args("shell", "test", "-f", remoteScreenshotPath)...)
	return err == nil
}

// Cleanup deletes the remote temp file, retrying with verification. Failure
// is logged and returned but callers treat it as non-fatal; a stranded
// screenshot is a hygiene problem, not a task failure.
func (m *CleanupManager) Cleanup(ctx context.Context) error {
	if !m.exists(ctx) {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= cleanupRetries; attempt++ {
		if _, err := m.run.Run(ctx, m.args("shell", "rm", "-f", remoteScreenshotPath)...); err != nil {
			lastErr = err
		} else if !m.exists(ctx) {
			return nil
		} else {
			lastErr = fmt.Errorf("file still present after rm")
		}
		m.logger.Warn("Remote cleanup attempt failed",
			zap.Int("attempt", attempt), zap.Error(lastErr))
	}
	return fmt.Errorf("failed to remove %s: %w", remoteScreenshotPath, lastErr)
}

// SweepStale removes a leftover temp file older than maxAge. Files younger
// than that may belong to a concurrent run against the same device.
func (m *CleanupManager) SweepStale(ctx context.Context, maxAge time.Duration) error {
	if !m.exists(ctx) {
		return nil
	}
	out, err := m.run.Run(ctx, m.args("shell", "stat", "-c", "%Y", remoteScreenshotPath)...)
	if err != nil {
		return err
	}
	mtime, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		// Unparseable mtime means toybox stat quirks; remove anyway, the
		// file is ours by path.
		m.logger.Warn("Unparseable mtime for stale temp file, removing",
			zap.String("output", strings.TrimSpace(out)))
		return m.Cleanup(ctx)
	}
	age := time.Since(time.Unix(mtime, 0))
	if age < maxAge {
		return nil
	}
	m.logger.Info("Removing stale screenshot temp file", zap.Duration("age", age))
	return m.Cleanup(ctx)
}
