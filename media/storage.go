// Package media moves attachments from device-local references to durable object storage.
package media

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Storage is the durable object storage.
type Storage interface {
	// Upload stores data and returns the durable URL it is served from.
	Upload(ctx context.Context, data []byte) (string, error)
}

// FSStorage stores objects on an afero file system and serves them under BaseURL.
type FSStorage struct {
	fs      afero.Fs
	baseURL string
}

// NewFSStorage returns a storage rooted at dir on fs. Objects are addressed as
// baseURL + "/" + key.
func NewFSStorage(fs afero.Fs, dir, baseURL string) (*FSStorage, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("MkdirAll: %w", err)
	}
	return &FSStorage{
		fs:      afero.NewBasePathFs(fs, dir),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Upload names the object after a fresh uuid and the extension of its sniffed content type.
// Objects are grouped in one directory per day.
func (s *FSStorage) Upload(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	mtype := mimetype.Detect(data)
	key := path.Join(time.Now().UTC().Format("20060102"), uuid.NewString()+mtype.Extension())

	if err := s.fs.MkdirAll(path.Dir(key), 0o755); err != nil {
		return "", fmt.Errorf("MkdirAll: %w", err)
	}
	if err := afero.WriteFile(s.fs, key, data, 0o644); err != nil {
		return "", fmt.Errorf("WriteFile: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

// Handler serves the stored objects. It is expected to be mounted with the path prefix
// of BaseURL stripped.
func (s *FSStorage) Handler() http.Handler {
	return http.FileServer(afero.NewHttpFs(s.fs).Dir("/"))
}
