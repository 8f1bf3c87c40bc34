// Package surreal implements store.JobStore, store.NodeStore and
// store.Queue on top of SurrealDB, generalizing the atomic two-step
// select-then-claim pattern used for job_queue in the teacher repo to
// this domain's job_state, node_state, new_job_queue and
// state_change_queue tables.
package surreal

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/job"
	"github.com/bobmcallan/nommer/internal/store"
)

const jobTable = "job_state"

// jobRow is the SurrealDB-shaped row for job_state; it flattens
// job.Options to a JSON string the way the original SimpleDB-backed
// store serialized job_options, since SurrealQL structs round-trip
// more predictably as scalars than as nested documents here.
type jobRow struct {
	ID          string    `json:"id"`
	SourcePath  string    `json:"source_path"`
	DestPath    string    `json:"dest_path"`
	OptionsJSON string    `json:"options_json"`
	State       string    `json:"state"`
	StateDetail string    `json:"state_detail"`
	NotifyURL   string    `json:"notify_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobStore implements store.JobStore.
type JobStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewJobStore(db *surrealdb.DB, logger *common.Logger) *JobStore {
	return &JobStore{db: db, logger: logger}
}

func (s *JobStore) Put(ctx context.Context, j *job.Job) error {
	row, err := toRow(j)
	if err != nil {
		return fmt.Errorf("encoding job %s for put: %w", j.ID, err)
	}

	sql := `UPSERT $rid SET
		job_id = $job_id, source_path = $source_path, dest_path = $dest_path,
		options_json = $options_json, state = $state, state_detail = $state_detail,
		notify_url = $notify_url, created_at = $created_at, updated_at = $updated_at`
	vars := map[string]any{
		"rid":          surrealmodels.NewRecordID(jobTable, j.ID),
		"job_id":       row.ID,
		"source_path":  row.SourcePath,
		"dest_path":    row.DestPath,
		"options_json": row.OptionsJSON,
		"state":        row.State,
		"state_detail": row.StateDetail,
		"notify_url":   row.NotifyURL,
		"created_at":   row.CreatedAt,
		"updated_at":   row.UpdatedAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("put job %s: %w", j.ID, err)
	}
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*job.Job, error) {
	sql := "SELECT job_id as id, source_path, dest_path, options_json, state, state_detail, notify_url, created_at, updated_at FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID(jobTable, id)}

	results, err := surrealdb.Query[[]jobRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, store.ErrNotFound
	}

	j, err := fromRow((*results)[0].Result[0])
	if err != nil {
		// MalformedRecord: this row is unusable. Callers doing a bulk
		// scan (ListActive) skip and continue; a direct Get surfaces it.
		return nil, fmt.Errorf("malformed job row %s: %w", id, err)
	}
	return j, nil
}

func (s *JobStore) ListActive(ctx context.Context) ([]*job.Job, error) {
	sql := "SELECT job_id as id, source_path, dest_path, options_json, state, state_detail, notify_url, created_at, updated_at FROM " +
		jobTable + " WHERE state != $finished AND state != $error AND state != $abandoned"
	vars := map[string]any{
		"finished":  string(job.StateFinished),
		"error":     string(job.StateError),
		"abandoned": string(job.StateAbandoned),
	}

	results, err := surrealdb.Query[[]jobRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	var jobs []*job.Job
	for _, row := range (*results)[0].Result {
		j, err := fromRow(row)
		if err != nil {
			// MalformedRecord: skip the row, keep scanning.
			if s.logger != nil {
				s.logger.Warn().Str("job_id", row.ID).Err(err).Msg("skipping malformed job row")
			}
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (s *JobStore) Wipe(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, s.db, "DELETE FROM "+jobTable, nil); err != nil {
		return fmt.Errorf("wipe job_state: %w", err)
	}
	return nil
}

func toRow(j *job.Job) (jobRow, error) {
	optsJSON, err := marshalOptions(j.Options)
	if err != nil {
		return jobRow{}, err
	}
	return jobRow{
		ID:          j.ID,
		SourcePath:  j.SourcePath,
		DestPath:    j.DestPath,
		OptionsJSON: optsJSON,
		State:       string(j.State),
		StateDetail: j.StateDetail,
		NotifyURL:   j.NotifyURL,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}, nil
}

func fromRow(r jobRow) (*job.Job, error) {
	opts, err := unmarshalOptions(r.OptionsJSON)
	if err != nil {
		return nil, err
	}
	return &job.Job{
		ID:          r.ID,
		SourcePath:  r.SourcePath,
		DestPath:    r.DestPath,
		Options:     opts,
		State:       job.State(r.State),
		StateDetail: r.StateDetail,
		NotifyURL:   r.NotifyURL,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}
