// Package job defines the encoding job record, its state machine, and
// the pure helpers (id generation, state_detail capping) that the
// JobStore adapters and the encoding pipeline share.
package job

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is one node of the job state machine.
type State string

const (
	StatePending     State = "PENDING"
	StateDownloading State = "DOWNLOADING"
	StateEncoding    State = "ENCODING"
	StateUploading   State = "UPLOADING"
	StateFinished    State = "FINISHED"
	StateError       State = "ERROR"
	StateAbandoned   State = "ABANDONED"
)

// maxStateDetailLen is the cap spec'd for state_detail; when a detail
// string is longer, the tail (not the head) is kept, since error
// messages tend to carry their useful content near the end.
const maxStateDetailLen = 1023

// finishedStates are terminal: a job in one of these never transitions
// again.
var finishedStates = map[State]bool{
	StateFinished:  true,
	StateError:     true,
	StateAbandoned: true,
}

// IsFinished reports whether s is a terminal state.
func (s State) IsFinished() bool {
	return finishedStates[s]
}

// validTransitions enumerates the state-transition DAG from spec §4.1.
// ERROR and ABANDONED are reachable from any non-terminal state, so
// they're added programmatically in init rather than listed per-row.
var validTransitions = map[State]map[State]bool{
	StatePending:     {StateDownloading: true},
	StateDownloading: {StateEncoding: true},
	StateEncoding:    {StateUploading: true},
	StateUploading:   {StateFinished: true},
	StateFinished:    {},
	StateError:       {},
	StateAbandoned:   {},
}

func init() {
	for s, transitions := range validTransitions {
		if s.IsFinished() {
			continue
		}
		transitions[StateError] = true
		transitions[StateAbandoned] = true
	}
}

// ErrInvalidTransition is returned by Job.Transition when the requested
// state is not reachable from the job's current state.
var ErrInvalidTransition = errors.New("invalid job state transition")

// ErrTerminal is returned by Job.Transition when the job is already in
// a finished state.
var ErrTerminal = errors.New("job is in a terminal state")

// PassOptions is one encoder pass: input and output option bundles
// appended verbatim as command-line flags (see internal/encoder).
type PassOptions struct {
	InfileOptions  map[string]string `json:"infile_options,omitempty"`
	OutfileOptions map[string]string `json:"outfile_options,omitempty"`
}

// Options is the job_options payload submitted with a job: which
// encoder to run (nommer) and an encoder-specific options value, per
// the submit API in spec §6. The options value's shape is opaque to
// everything but the chosen encoder; for the ffmpeg encoder it decodes
// to a list of pass-option bundles via Passes.
type Options struct {
	Encoder string          `json:"nommer"`
	Raw     json.RawMessage `json:"options,omitempty"`
}

// passesPayload is the shape Raw takes for encoders that support
// multi-pass encoding (supplemented feature, see SPEC_FULL.md §4.12).
type passesPayload struct {
	Passes []PassOptions `json:"passes"`
}

// Passes decodes Raw into pass-option bundles. An empty or
// non-conforming Raw yields no passes (nil) rather than an error, since
// most encoders (e.g. noop) ignore pass options entirely.
func (o Options) Passes() []PassOptions {
	if len(o.Raw) == 0 {
		return nil
	}
	var p passesPayload
	if err := json.Unmarshal(o.Raw, &p); err != nil {
		return nil
	}
	return p.Passes
}

// Job is the record persisted in JobStore. Field names mirror spec §3's
// Data Model and the external-interfaces JobStore schema.
type Job struct {
	ID          string
	SourcePath  string
	DestPath    string
	Options     Options
	State       State
	StateDetail string
	NotifyURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CapStateDetail truncates detail to the last maxStateDetailLen bytes,
// keeping the tail end where error output is most likely to be useful.
func CapStateDetail(detail string) string {
	if len(detail) <= maxStateDetailLen {
		return detail
	}
	return detail[len(detail)-maxStateDetailLen:]
}

// NewJobID generates a unique job id from the job's identifying fields
// plus a random salt, matching the original's sha512-hash-then-truncate
// scheme. 50 hex characters sits inside the spec's 40-64 char band.
func NewJobID(sourcePath, destPath string, opts Options) (string, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("marshaling job options for id generation: %w", err)
	}
	salt := uuid.New().String()
	combo := fmt.Sprintf("%s%s%s%s", sourcePath, destPath, optsJSON, salt)
	sum := sha512.Sum512([]byte(combo))
	return hex.EncodeToString(sum[:])[:50], nil
}

// New constructs a brand-new PENDING job with a freshly generated id.
func New(sourcePath, destPath, notifyURL string, opts Options, now time.Time) (*Job, error) {
	id, err := NewJobID(sourcePath, destPath, opts)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:         id,
		SourcePath: sourcePath,
		DestPath:   destPath,
		Options:    opts,
		State:      StatePending,
		NotifyURL:  notifyURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Transition moves the job to next, validating against the state DAG
// and the terminal-state rule, capping detail, and bumping UpdatedAt.
// Callers pass the clock's current time; a now earlier than j.UpdatedAt
// is clamped to j.UpdatedAt so UpdatedAt never decreases.
func (j *Job) Transition(next State, detail string, now time.Time) error {
	if j.State.IsFinished() {
		return fmt.Errorf("%w: job %s is %s", ErrTerminal, j.ID, j.State)
	}
	if !validTransitions[j.State][next] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, next)
	}
	j.State = next
	j.StateDetail = CapStateDetail(detail)
	if now.Before(j.UpdatedAt) {
		now = j.UpdatedAt
	}
	j.UpdatedAt = now
	return nil
}

// Abandon force-sets ABANDONED, the one transition the sweeper may take
// unconditionally from any non-terminal state. Already-terminal jobs
// are left untouched so abandonment is idempotent and at most one
// ABANDONED write is ever observed per job.
func (j *Job) Abandon(detail string, now time.Time) bool {
	if j.State.IsFinished() {
		return false
	}
	j.State = StateAbandoned
	j.StateDetail = CapStateDetail(detail)
	if now.Before(j.UpdatedAt) {
		now = j.UpdatedAt
	}
	j.UpdatedAt = now
	return true
}
