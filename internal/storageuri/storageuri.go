// Package storageuri implements the storage backend interface from
// spec §4.9: a scheme-dispatched Download/Upload pair, with reference
// implementations for file://, http(s)://, and an in-memory mem://
// backend used by tests and the literal end-to-end scenarios.
package storageuri

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
)

// ErrSourceNotFound maps to the SourceNotFound row of the error
// taxonomy: Download failed because the source doesn't exist.
var ErrSourceNotFound = errors.New("source not found")

// Backend downloads from and uploads to one URI scheme.
type Backend interface {
	Download(ctx context.Context, uri string, dst io.Writer) error
	Upload(ctx context.Context, uri string, src io.Reader) error
}

// Registry dispatches a URI to the Backend registered for its scheme,
// the Go equivalent of the original's get_backend_for_protocol lookup
// table.
type Registry struct {
	backends map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register binds scheme (e.g. "file", "http", "mem") to a Backend.
func (r *Registry) Register(scheme string, b Backend) {
	r.backends[scheme] = b
}

func (r *Registry) resolve(uri string) (Backend, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing storage uri %q: %w", uri, err)
	}
	b, ok := r.backends[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("no storage backend registered for scheme %q", u.Scheme)
	}
	return b, nil
}

func (r *Registry) Download(ctx context.Context, uri string, dst io.Writer) error {
	b, err := r.resolve(uri)
	if err != nil {
		return err
	}
	return b.Download(ctx, uri, dst)
}

func (r *Registry) Upload(ctx context.Context, uri string, src io.Reader) error {
	b, err := r.resolve(uri)
	if err != nil {
		return err
	}
	return b.Upload(ctx, uri, src)
}

// DefaultRegistry wires the three reference backends: file, http(s)
// and the in-memory mem scheme used by tests.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("file", &FileBackend{})
	r.Register("http", &HTTPBackend{})
	r.Register("https", &HTTPBackend{})
	r.Register("mem", NewMemBackend())
	return r
}
