package storageuri

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPBackend implements Backend for http(s):// URIs. Download is
// supported, matching the original http.py backend which only ever
// fetches (destinations are never http(s) in practice); Upload returns
// an error rather than silently doing nothing.
type HTTPBackend struct {
	Client *http.Client
}

func (b *HTTPBackend) client() *http.Client {
	if b.Client != nil {
		return b.Client
	}
	return http.DefaultClient
}

func (b *HTTPBackend) Download(ctx context.Context, uri string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", uri, err)
	}

	resp, err := b.client().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSourceNotFound, uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, uri)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("fetching %s: status %d", uri, resp.StatusCode)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("reading %s: %w", uri, err)
	}
	return nil
}

func (b *HTTPBackend) Upload(ctx context.Context, uri string, src io.Reader) error {
	return fmt.Errorf("http backend does not support upload destinations: %s", uri)
}
