package observers

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Retention extensions for the two kinds of files a long session leaves
// behind: observability traces and synthesized or published speech.
var (
	TraceExts = []string{".jsonl", ".json"}
	AudioExts = []string{".mp3", ".wav", ".pcm"}
)

// PurgeArtifacts removes files under dir, including nested directories,
// whose modification time is older than maxAge. When exts is not empty only
// files with one of those extensions are considered. Directories left empty by
// the purge are removed too, dir itself excepted. Returns the deleted count.
func PurgeArtifacts(dir string, maxAge time.Duration, exts ...string) (int, error) {
	if dir == "" || maxAge <= 0 {
		return 0, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	var removed int
	var errs error
	var dirs []string
	cutoff := time.Now().Add(-maxAge)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = errors.Join(errs, err)
			return nil
		}
		if d.IsDir() {
			if path != dir {
				dirs = append(dirs, path)
			}
			return nil
		}
		if !matchExt(d.Name(), exts) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			errs = errors.Join(errs, err)
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			errs = errors.Join(errs, err)
			return nil
		}
		removed++
		return nil
	})
	errs = errors.Join(errs, walkErr)

	// Deepest first so parents empty out after their children.
	slices.Reverse(dirs)
	for _, d := range dirs {
		if entries, err := os.ReadDir(d); err == nil && len(entries) == 0 {
			_ = os.Remove(d)
		}
	}
	return removed, errs
}

func matchExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
