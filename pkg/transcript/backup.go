package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// FileBackup keeps one JSON file per participant in Dir.
type FileBackup struct {
	Dir string
}

func NewFileBackup(dir string) (*FileBackup, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &FileBackup{Dir: dir}, nil
}

// Path returns the backup file for owner.
func (b *FileBackup) Path(owner string) string {
	return filepath.Join(b.Dir, "backup_history_"+unsafeName.ReplaceAllString(owner, "_")+".json")
}

func (b *FileBackup) Load(_ context.Context, owner string) ([]Message, error) {
	data, err := os.ReadFile(b.Path(owner))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoBackup
	}
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", b.Path(owner), err)
	}
	return msgs, nil
}

// Save overwrites the backup atomically through a temp file and rename.
func (b *FileBackup) Save(_ context.Context, owner string, messages []Message) error {
	if messages == nil {
		messages = []Message{}
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(b.Dir, ".backup-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), b.Path(owner))
}
