// Package media stores uploaded post and banner images.
package media

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyUpload is returned when an upload carries no bytes.
var ErrEmptyUpload = errors.New("empty upload")

// Object identifies a stored image.
type Object struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Store uploads and releases images.
type Store interface {
	Upload(ctx context.Context, name, contentType string, body io.Reader, size int64) (*Object, error)
	Delete(ctx context.Context, id string) error
}

// objectKey derives a unique key that keeps the original extension.
func objectKey(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return "posts/" + uuid.NewString() + ext
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
