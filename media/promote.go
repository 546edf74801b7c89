package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrUnsupportedRef is returned for handles that cannot be read from this process.
	ErrUnsupportedRef = errors.New("unsupported media reference")
	// ErrMalformedRef is returned for an inline payload that cannot be decoded.
	ErrMalformedRef = errors.New("malformed media reference")
)

// Promoter rewrites ephemeral references to durable URLs by uploading their content.
type Promoter struct {
	storage Storage
	// local is where file:// references and bare paths are read from.
	local afero.Fs
}

func NewPromoter(storage Storage, local afero.Fs) *Promoter {
	return &Promoter{storage: storage, local: local}
}

// Promote returns a durable URL for ref. Durable and empty references are returned as is.
func (p *Promoter) Promote(ctx context.Context, ref string) (string, error) {
	if !IsEphemeral(ref) {
		return ref, nil
	}
	data, err := p.read(ref)
	if err != nil {
		return "", err
	}
	u, err := p.storage.Upload(ctx, data)
	if err != nil {
		return "", fmt.Errorf("Upload: %w", err)
	}
	return u, nil
}

func (p *Promoter) read(ref string) ([]byte, error) {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "data:"):
		return decodeDataURL(ref)
	case strings.HasPrefix(lower, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRef, err)
		}
		return p.readFile(u.Path)
	case strings.Contains(lower, ":"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedRef, schemeOf(ref))
	default:
		return p.readFile(ref)
	}
}

func (p *Promoter) readFile(name string) ([]byte, error) {
	if p.local == nil {
		return nil, fmt.Errorf("%w: no local file system", ErrUnsupportedRef)
	}
	data, err := afero.ReadFile(p.local, name)
	if err != nil {
		return nil, fmt.Errorf("ReadFile: %w", err)
	}
	return data, nil
}

// decodeDataURL decodes data:[<mediatype>][;base64],<data>.
func decodeDataURL(ref string) ([]byte, error) {
	header, payload, ok := strings.Cut(ref[len("data:"):], ",")
	if !ok {
		return nil, ErrMalformedRef
	}
	if strings.HasSuffix(strings.ToLower(header), ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(payload)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRef, err)
		}
		return data, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRef, err)
	}
	return []byte(data), nil
}

func schemeOf(ref string) string {
	scheme, _, _ := strings.Cut(ref, ":")
	return scheme
}
