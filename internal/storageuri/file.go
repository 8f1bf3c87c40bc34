package storageuri

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// FileBackend implements Backend for file:// URIs, grounded on the
// original file.py backend: the URI path maps directly onto a local
// filesystem path.
type FileBackend struct{}

func (b *FileBackend) pathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parsing file uri %q: %w", uri, err)
	}
	return u.Path, nil
}

func (b *FileBackend) Download(ctx context.Context, uri string, dst io.Writer) error {
	path, err := b.pathFromURI(uri)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceNotFound, uri)
		}
		return fmt.Errorf("opening %s: %w", uri, err)
	}
	defer f.Close()

	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("reading %s: %w", uri, err)
	}
	return nil
}

func (b *FileBackend) Upload(ctx context.Context, uri string, src io.Reader) error {
	path, err := b.pathFromURI(uri)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", uri, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", uri, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		return fmt.Errorf("writing %s: %w", uri, err)
	}
	return nil
}
