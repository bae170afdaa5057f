package persistence

import (
	"database/sql"
	"log/slog"

	"github.com/recruitflow/backend/internal/domain/ports"
)

// NewStore wires every MySQL repository over one pool.
func NewStore(db *sql.DB, logger *slog.Logger) ports.Store {
	return ports.Store{
		Workflows:   NewWorkflowRepository(db),
		Nodes:       NewNodeRepository(db),
		Connections: NewConnectionRepository(db),
		Viewers:     NewViewerRepository(db),
		Candidates:  NewCandidateWorkflowRepository(db),
		Executions:  NewNodeExecutionRepository(db),
		Tx:          NewTransactionManager(db, logger),
	}
}
