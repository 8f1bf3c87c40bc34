package encoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/bobmcallan/nommer/internal/job"
)

// FFmpegEncoder shells out to the ffmpeg binary once per configured
// pass, grounded on the original's FFmpegNommer.__run_ffmpeg: infile
// options precede -i, outfile options follow it, and a nonzero exit
// becomes an *Error carrying the process's stderr.
type FFmpegEncoder struct {
	binary string
}

func NewFFmpegEncoder(binary string) *FFmpegEncoder {
	return &FFmpegEncoder{binary: binary}
}

func (e *FFmpegEncoder) Run(ctx context.Context, workDir, infile, outfile string, passes []job.PassOptions) error {
	if len(passes) == 0 {
		passes = []job.PassOptions{{}}
	}

	for i, pass := range passes {
		// Every pass gets its own subdirectory so ffmpeg's side files
		// (e.g. two-pass .log files) never collide across concurrent
		// jobs sharing a parent work directory.
		passDir := filepath.Join(workDir, fmt.Sprintf("pass-%d", i))
		if err := os.MkdirAll(passDir, 0o755); err != nil {
			return fmt.Errorf("creating pass directory %s: %w", passDir, err)
		}

		args := buildArgs(pass, infile, outfile)
		cmd := exec.CommandContext(ctx, e.binary, args...)
		cmd.Dir = passDir

		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			exitCode := -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			}
			return &Error{ExitCode: exitCode, Stderr: stderr.String()}
		}
	}
	return nil
}

func buildArgs(pass job.PassOptions, infile, outfile string) []string {
	var args []string
	for k, v := range pass.InfileOptions {
		args = append(args, "-"+k, v)
	}
	args = append(args, "-i", infile)
	for k, v := range pass.OutfileOptions {
		args = append(args, "-"+k, v)
	}
	args = append(args, outfile)
	return args
}
