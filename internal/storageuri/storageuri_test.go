package storageuri

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestMemBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	mem := NewMemBackend()
	r.Register("mem", mem)

	if err := r.Upload(ctx, "mem://out/a", bytes.NewReader([]byte("hello"))); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	var buf bytes.Buffer
	if err := r.Download(ctx, "mem://out/a", &buf); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if buf.String() != "hello" {
		t.Fatalf("expected hello, got %q", buf.String())
	}
}

func TestMemBackendMissingSourceReturnsSourceNotFound(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	r.Register("mem", NewMemBackend())

	var buf bytes.Buffer
	err := r.Download(ctx, "mem://in/missing", &buf)
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestRegistryUnknownSchemeErrors(t *testing.T) {
	r := NewRegistry()
	var buf bytes.Buffer
	if err := r.Download(context.Background(), "s3://bucket/key", &buf); err == nil {
		t.Fatalf("expected error for unregistered scheme")
	}
}
