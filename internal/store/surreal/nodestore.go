package surreal

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/store"
)

const nodeTable = "node_state"

type nodeRow struct {
	ID                 string    `json:"id"`
	State              string    `json:"state"`
	ActiveEncoderTasks int       `json:"active_encoder_tasks"`
	LastHeartbeat      time.Time `json:"last_heartbeat"`
}

// NodeStore implements store.NodeStore.
type NodeStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewNodeStore(db *surrealdb.DB, logger *common.Logger) *NodeStore {
	return &NodeStore{db: db, logger: logger}
}

func (s *NodeStore) Put(ctx context.Context, n *store.Node) error {
	sql := `UPSERT $rid SET
		node_id = $node_id, state = $state, active_encoder_tasks = $tasks,
		last_heartbeat = $heartbeat`
	vars := map[string]any{
		"rid":       surrealmodels.NewRecordID(nodeTable, n.ID),
		"node_id":   n.ID,
		"state":     string(n.State),
		"tasks":     n.ActiveEncoderTasks,
		"heartbeat": n.LastHeartbeat,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("put node %s: %w", n.ID, err)
	}
	return nil
}

func (s *NodeStore) Get(ctx context.Context, id string) (*store.Node, error) {
	sql := "SELECT node_id as id, state, active_encoder_tasks, last_heartbeat FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID(nodeTable, id)}

	results, err := surrealdb.Query[[]nodeRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, store.ErrNotFound
	}
	return fromNodeRow((*results)[0].Result[0]), nil
}

func (s *NodeStore) ListActive(ctx context.Context) ([]*store.Node, error) {
	sql := "SELECT node_id as id, state, active_encoder_tasks, last_heartbeat FROM " + nodeTable + " WHERE state = $active"
	vars := map[string]any{"active": string(store.NodeActive)}

	results, err := surrealdb.Query[[]nodeRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list active nodes: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}

	var nodes []*store.Node
	for _, row := range (*results)[0].Result {
		nodes = append(nodes, fromNodeRow(row))
	}
	return nodes, nil
}

func fromNodeRow(r nodeRow) *store.Node {
	return &store.Node{
		ID:                 r.ID,
		State:              store.NodeState(r.State),
		ActiveEncoderTasks: r.ActiveEncoderTasks,
		LastHeartbeat:      r.LastHeartbeat,
	}
}
