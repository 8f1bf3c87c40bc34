// Package encoder implements the encoder_kind -> factory registry from
// spec §9's re-architecting notes, replacing the original's
// reflection-based dynamic import of nommer subclasses. Unknown kinds
// fail at submit time (see internal/controller's submit handler), not
// at execution time.
package encoder

import (
	"context"
	"fmt"

	"github.com/bobmcallan/nommer/internal/job"
)

// Error wraps a nonzero encoder exit, the EncoderFailure row of the
// error taxonomy. Stderr is the process's full captured stderr; the
// caller caps it to its tail with job.CapStateDetail before writing it
// to state_detail.
type Error struct {
	ExitCode int
	Stderr   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("encoder exited %d: %s", e.ExitCode, e.Stderr)
}

// Encoder runs every configured pass against infile, producing outfile.
// Implementations get a fresh working directory per pass so concurrent
// jobs never collide on side files the underlying tool writes next to
// its inputs/outputs.
type Encoder interface {
	Run(ctx context.Context, workDir, infile, outfile string, passes []job.PassOptions) error
}

// Factory constructs an Encoder instance. Kept separate from Encoder
// itself so construction-time configuration (e.g. which binary to
// exec) doesn't leak into the Run call signature.
type Factory func() Encoder

// Registry maps encoder_kind to a Factory.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

func (r *Registry) Has(kind string) bool {
	_, ok := r.factories[kind]
	return ok
}

func (r *Registry) New(kind string) (Encoder, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown encoder kind %q", kind)
	}
	return f(), nil
}

// DefaultRegistry wires the two reference encoders.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("noop", func() Encoder { return &NoopEncoder{} })
	r.Register("ffmpeg", func() Encoder { return NewFFmpegEncoder("ffmpeg") })
	return r
}
