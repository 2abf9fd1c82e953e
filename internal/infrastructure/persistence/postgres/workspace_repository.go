package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/turtacn/apikeyd/internal/domain/models"
	"github.com/turtacn/apikeyd/internal/domain/repository"
	"github.com/turtacn/apikeyd/pkg/logger"
)

const workspaceByIDQuery = `SELECT id, name, enabled FROM workspaces WHERE id = $1 AND deleted_at IS NULL`

// WorkspaceRepository reads workspaces straight from the primary over database/sql.
// It is only consulted when a cached record is missing its owning workspace.
type WorkspaceRepository struct {
	db           *sql.DB
	queryTimeout time.Duration
	logger       logger.Logger
}

var _ repository.WorkspaceRepository = (*WorkspaceRepository)(nil)

// NewWorkspaceRepository creates a workspace repository over db.
func NewWorkspaceRepository(db *sql.DB, queryTimeout time.Duration, log logger.Logger) *WorkspaceRepository {
	return &WorkspaceRepository{
		db:           db,
		queryTimeout: queryTimeout,
		logger:       log.WithComponent("WorkspaceRepository"),
	}
}

// FindByID returns the workspace, or (nil, nil) when it does not exist or is deleted.
func (r *WorkspaceRepository) FindByID(ctx context.Context, id string) (*models.Workspace, error) {
	if r.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.queryTimeout)
		defer cancel()
	}

	var ws models.Workspace
	err := r.db.QueryRowContext(ctx, workspaceByIDQuery, id).Scan(&ws.ID, &ws.Name, &ws.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		r.logger.Warn(ctx, "Workspace not found on direct lookup", logger.String("workspace_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find workspace %s: %w", id, err)
	}
	return &ws, nil
}
