package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/harunnryd/roundtable/pkg/speech"
)

// DefaultPrefix is where viewers fetch locally served audio.
const DefaultPrefix = "static/msg"

// Local publishes audio by placing it in the directory the hub serves and
// returning a viewer-relative reference such as static/msg/<file>.
type Local struct {
	Dir    string
	Prefix string
}

func NewLocal(dir, prefix string) (*Local, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &Local{Dir: dir, Prefix: prefix}, nil
}

func (l *Local) Publish(ctx context.Context, audio speech.Audio) (string, error) {
	name := filepath.Base(audio.Path)
	dst := filepath.Join(l.Dir, name)
	same, err := samePath(audio.Path, dst)
	if err != nil {
		return "", err
	}
	if !same {
		if err := copyFile(audio.Path, dst); err != nil {
			return "", err
		}
	}
	return path.Join(l.Prefix, name), nil
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
