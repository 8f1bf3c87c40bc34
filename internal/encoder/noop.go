package encoder

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bobmcallan/nommer/internal/job"
)

// NoopEncoder copies infile to outfile unchanged. Used by the happy-
// path end-to-end scenario and anywhere a pass-through "transcode" is
// sufficient for a test.
type NoopEncoder struct{}

func (e *NoopEncoder) Run(ctx context.Context, workDir, infile, outfile string, passes []job.PassOptions) error {
	in, err := os.Open(infile)
	if err != nil {
		return fmt.Errorf("noop encoder opening %s: %w", infile, err)
	}
	defer in.Close()

	out, err := os.Create(outfile)
	if err != nil {
		return fmt.Errorf("noop encoder creating %s: %w", outfile, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("noop encoder copying %s to %s: %w", infile, outfile, err)
	}
	return nil
}
