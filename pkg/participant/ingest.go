package participant

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harunnryd/roundtable/pkg/errorsx"
)

// ErrNoChatLog is returned when the chat log directory holds no recognized file.
var ErrNoChatLog = errors.New("no chat log found")

// LatestLog returns the path and content of the most recently modified file
// in dir whose extension is one of exts (".log" when empty).
func LatestLog(dir string, exts []string) (string, string, error) {
	if len(exts) == 0 {
		exts = []string{".log"}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", errorsx.Wrap(fmt.Errorf("read chat log dir: %w", err), errorsx.ReasonIngest)
	}
	var newest string
	var newestAt time.Time
	for _, e := range entries {
		if e.IsDir() || !hasExt(e.Name(), exts) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestAt) {
			newest = e.Name()
			newestAt = info.ModTime()
		}
	}
	if newest == "" {
		return "", "", errorsx.Wrap(fmt.Errorf("%w in %s", ErrNoChatLog, dir), errorsx.ReasonIngest)
	}
	path := filepath.Join(dir, newest)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", errorsx.Wrap(fmt.Errorf("read chat log: %w", err), errorsx.ReasonIngest)
	}
	return path, string(data), nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range exts {
		want = strings.ToLower(want)
		if !strings.HasPrefix(want, ".") {
			want = "." + want
		}
		if ext == want {
			return true
		}
	}
	return false
}
