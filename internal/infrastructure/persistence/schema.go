package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaStatements creates every table idempotently, parents first.
var SchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + TableWorkflows + ` (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT NULL,
		company_id VARCHAR(36) NOT NULL,
		created_by VARCHAR(36) NOT NULL,
		updated_by VARCHAR(36) NULL,
		status VARCHAR(20) NOT NULL,
		version INT NOT NULL DEFAULT 1,
		is_template BOOLEAN NOT NULL DEFAULT FALSE,
		template_name VARCHAR(255) NULL,
		settings JSON NULL,
		activated_at DATETIME(6) NULL,
		archived_at DATETIME(6) NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		lock_version BIGINT NOT NULL DEFAULT 0,
		KEY idx_workflows_company (company_id, is_deleted)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableNodeDefinitions + ` (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		workflow_id VARCHAR(36) NOT NULL,
		type VARCHAR(30) NOT NULL,
		title VARCHAR(255) NOT NULL,
		description TEXT NULL,
		sequence_order INT NOT NULL,
		is_required BOOLEAN NOT NULL DEFAULT TRUE,
		can_skip BOOLEAN NOT NULL DEFAULT FALSE,
		auto_advance BOOLEAN NOT NULL DEFAULT FALSE,
		config JSON NULL,
		requirements JSON NULL,
		estimated_duration_minutes INT NULL,
		status VARCHAR(20) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_node_sequence (workflow_id, sequence_order)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableNodeConnections + ` (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		workflow_id VARCHAR(36) NOT NULL,
		source_node_id VARCHAR(36) NOT NULL,
		target_node_id VARCHAR(36) NOT NULL,
		condition_expr TEXT NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_connection_edge (source_node_id, target_node_id),
		KEY idx_connections_workflow (workflow_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableWorkflowViewers + ` (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		workflow_id VARCHAR(36) NOT NULL,
		user_id VARCHAR(36) NOT NULL,
		role VARCHAR(20) NOT NULL,
		permissions JSON NULL,
		added_by VARCHAR(36) NOT NULL,
		added_at DATETIME(6) NOT NULL,
		lock_version BIGINT NOT NULL DEFAULT 0,
		UNIQUE KEY uq_viewer (workflow_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableCandidateWorkflows + ` (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		candidate_id VARCHAR(36) NOT NULL,
		workflow_id VARCHAR(36) NOT NULL,
		current_node_id VARCHAR(36) NULL,
		status VARCHAR(20) NOT NULL,
		assigned_recruiter_id VARCHAR(36) NULL,
		assigned_at DATETIME(6) NULL,
		started_at DATETIME(6) NULL,
		completed_at DATETIME(6) NULL,
		failed_at DATETIME(6) NULL,
		withdrawn_at DATETIME(6) NULL,
		overall_score DOUBLE NULL,
		final_result VARCHAR(50) NULL,
		notes TEXT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		lock_version BIGINT NOT NULL DEFAULT 0,
		UNIQUE KEY uq_candidate_run (candidate_id, workflow_id),
		KEY idx_candidate_runs_workflow (workflow_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ` + TableNodeExecutions + ` (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		candidate_workflow_id VARCHAR(36) NOT NULL,
		node_id VARCHAR(36) NOT NULL,
		status VARCHAR(20) NOT NULL,
		result VARCHAR(50) NULL,
		score DOUBLE NULL,
		feedback TEXT NULL,
		assessor_notes TEXT NULL,
		execution_data JSON NULL,
		linked_interview_id VARCHAR(64) NULL,
		linked_task_id VARCHAR(64) NULL,
		started_at DATETIME(6) NULL,
		completed_at DATETIME(6) NULL,
		due_date DATETIME(6) NULL,
		assigned_to VARCHAR(36) NULL,
		completed_by VARCHAR(36) NULL,
		reviewed_by VARCHAR(36) NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		lock_version BIGINT NOT NULL DEFAULT 0,
		UNIQUE KEY uq_execution_node (candidate_workflow_id, node_id),
		KEY idx_executions_node (node_id),
		KEY idx_executions_due (status, due_date)
	)`,
}

// Migrate applies SchemaStatements in order.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range SchemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d failed: %w", i+1, err)
		}
	}
	return nil
}
