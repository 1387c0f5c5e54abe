package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local keeps images on disk under dir. They are served by the HTTP layer
// at baseURL.
type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(dir, "posts"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Local{dir: dir, baseURL: baseURL}, nil
}

// Dir is the root directory of stored files.
func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) Upload(ctx context.Context, name, contentType string, body io.Reader, size int64) (*Object, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if size == 0 {
		return nil, ErrEmptyUpload
	}

	key := objectKey(name)
	f, err := os.Create(filepath.Join(l.dir, filepath.FromSlash(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", key, err)
	}
	defer f.Close()

	n, err := io.Copy(f, body)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", key, err)
	}
	if n == 0 {
		_ = os.Remove(f.Name())
		return nil, ErrEmptyUpload
	}
	return &Object{ID: key, URL: joinURL(l.baseURL, key)}, nil
}

func (l *Local) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	clean := filepath.Clean(filepath.FromSlash(id))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("invalid media id %q", id)
	}
	err := os.Remove(filepath.Join(l.dir, clean))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}
