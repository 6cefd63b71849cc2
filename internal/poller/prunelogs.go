package poller

import (
	"os"
	"path/filepath"
	"time"
)

// PruneLogs removes regular files under dir whose modification time predates
// the cutoff. A missing directory is not an error; there is simply nothing to
// prune.
func PruneLogs(dir string, cutoff time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(filepath.Join(dir, entry.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}
