package storageuri

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
)

// MemBackend is a supplemental in-memory storage backend, not present
// in the original, added so the spec's literal end-to-end scenarios
// (mem://in/a, mem://out/a) are runnable without touching a filesystem
// or network.
type MemBackend struct {
	mu    sync.Mutex
	files map[string][]byte
}

func NewMemBackend() *MemBackend {
	return &MemBackend{files: make(map[string][]byte)}
}

// Put seeds a file for a test scenario, e.g. Put("mem://in/a", data).
func (b *MemBackend) Put(uri string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[key(uri)] = append([]byte(nil), data...)
}

// Get retrieves a previously uploaded file, for test assertions.
func (b *MemBackend) Get(uri string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.files[key(uri)]
	return data, ok
}

func key(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return u.Host + u.Path
}

func (b *MemBackend) Download(ctx context.Context, uri string, dst io.Writer) error {
	b.mu.Lock()
	data, ok := b.files[key(uri)]
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, uri)
	}
	_, err := io.Copy(dst, bytes.NewReader(data))
	return err
}

func (b *MemBackend) Upload(ctx context.Context, uri string, src io.Reader) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("reading upload body for %s: %w", uri, err)
	}
	b.mu.Lock()
	b.files[key(uri)] = data
	b.mu.Unlock()
	return nil
}
