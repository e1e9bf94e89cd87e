package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReapStaleAssets deletes asset files older than maxAgeHours. It is a safety
// net for assets orphaned by a crash mid-run, independent of the per-run
// cleanup in Run.
func (r *Runner) ReapStaleAssets(maxAgeHours int) error {
	entries, err := os.ReadDir(r.assetsDir)
	if err != nil {
		return fmt.Errorf("reading assets directory: %w", err)
	}
	threshold := r.now().Add(-time.Duration(maxAgeHours) * time.Hour)

	var reaped int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(threshold) {
			path := filepath.Join(r.assetsDir, entry.Name())
			if err := os.Remove(path); err == nil {
				reaped++
			} else {
				r.logger.Warn("reaping stale asset", "path", path, "error", err)
			}
		}
	}
	if reaped > 0 {
		r.logger.Info("reaped stale assets", "count", reaped, "max_age_hours", maxAgeHours)
	}
	return nil
}
