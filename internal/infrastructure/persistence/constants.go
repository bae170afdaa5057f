package persistence

// Table names
const (
	TableWorkflows          = "workflows"
	TableNodeDefinitions    = "node_definitions"
	TableNodeConnections    = "node_connections"
	TableWorkflowViewers    = "workflow_viewers"
	TableCandidateWorkflows = "candidate_workflows"
	TableNodeExecutions     = "node_executions"
)

// Shared column names
const (
	FieldID          = "id"
	FieldWorkflowID  = "workflow_id"
	FieldLockVersion = "lock_version"
)

// resequenceOffset parks nodes on negative orders during a two-phase rewrite.
const resequenceOffset = -1
