package surreal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/nommer/internal/common"
)

// maxPopBatch mirrors the ceiling the original queue backend enforced
// ("SQS only allows up to 10 messages to be popped at a time").
const maxPopBatch = 10

// visibilityTimeout bounds how long a claimed-but-undeleted row stays
// invisible to other Pop callers before it is eligible again.
const visibilityTimeout = time.Hour

type queueRow struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
	VisibleAt time.Time `json:"visible_at"`
}

// Queue implements store.Queue against a single SurrealDB table, shared
// by both NewJobQueue (table "new_job_queue") and StateChangeQueue
// (table "state_change_queue").
type Queue struct {
	db     *surrealdb.DB
	logger *common.Logger
	table  string
}

func NewQueue(db *surrealdb.DB, logger *common.Logger, table string) *Queue {
	return &Queue{db: db, logger: logger, table: table}
}

func (q *Queue) Push(ctx context.Context, jobID string) error {
	now := time.Now()
	rowID := uuid.New().String()
	sql := `UPSERT $rid SET job_id = $job_id, created_at = $created_at, visible_at = $visible_at`
	vars := map[string]any{
		"rid":        surrealmodels.NewRecordID(q.table, rowID),
		"job_id":     jobID,
		"created_at": now,
		"visible_at": now,
	}
	if _, err := surrealdb.Query[any](ctx, q.db, sql, vars); err != nil {
		return fmt.Errorf("push %s onto %s: %w", jobID, q.table, err)
	}
	return nil
}

// Pop claims up to max messages whose visible_at has passed, ordered by
// age, then deletes the claimed rows and returns the distinct set of
// job ids they named. Two queue rows can carry the same job id (a job
// can be re-enqueued onto the state-change queue more than once before
// the controller catches up); popping them in one call must still
// resolve to a single entry per id so the caller does exactly one
// JobStore fetch per distinct id.
func (q *Queue) Pop(ctx context.Context, max int) ([]string, error) {
	if max > maxPopBatch {
		max = maxPopBatch
	}
	if max <= 0 {
		return nil, nil
	}

	now := time.Now()
	selectSQL := "SELECT id, job_id, created_at, visible_at FROM " + q.table +
		" WHERE visible_at <= $now ORDER BY created_at ASC LIMIT $limit"
	vars := map[string]any{"now": now, "limit": max}

	results, err := surrealdb.Query[[]queueRow](ctx, q.db, selectSQL, vars)
	if err != nil {
		return nil, fmt.Errorf("select candidates from %s: %w", q.table, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}

	claimed := now.Add(visibilityTimeout)
	seen := make(map[string]bool)
	var ids []string
	var claimedRowIDs []string

	for _, row := range (*results)[0].Result {
		// Atomic claim: only succeeds if another Pop hasn't already
		// moved visible_at past "now" (CAS on the original visible_at).
		updateSQL := "UPDATE $rid SET visible_at = $claimed WHERE visible_at = $orig"
		updateVars := map[string]any{
			"rid":     surrealmodels.NewRecordID(q.table, row.ID),
			"claimed": claimed,
			"orig":    row.VisibleAt,
		}
		updated, err := surrealdb.Query[[]queueRow](ctx, q.db, updateSQL, updateVars)
		if err != nil {
			return nil, fmt.Errorf("claim row %s in %s: %w", row.ID, q.table, err)
		}
		if updated == nil || len(*updated) == 0 || len((*updated)[0].Result) == 0 {
			// Another Pop claimed this row first.
			continue
		}

		claimedRowIDs = append(claimedRowIDs, row.ID)
		if !seen[row.JobID] {
			seen[row.JobID] = true
			ids = append(ids, row.JobID)
		}
	}

	for _, rowID := range claimedRowIDs {
		delSQL := "DELETE $rid"
		delVars := map[string]any{"rid": surrealmodels.NewRecordID(q.table, rowID)}
		if _, err := surrealdb.Query[any](ctx, q.db, delSQL, delVars); err != nil {
			if q.logger != nil {
				q.logger.Warn().Str("row_id", rowID).Err(err).Msg("failed to delete claimed queue row")
			}
		}
	}

	return ids, nil
}
