package persistence_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/recruitflow/backend/internal/config"
	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/internal/domain/ports"
	"github.com/recruitflow/backend/internal/infrastructure/database"
	"github.com/recruitflow/backend/internal/infrastructure/persistence"
	appErrors "github.com/recruitflow/backend/pkg/errors"
)

// setupMySQL uses RECRUITFLOW_TEST_DATABASE_HOST when set, otherwise starts a
// throwaway mysql:8 container.
func setupMySQL(t *testing.T, ctx context.Context) *database.Connection {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MySQL integration test in short mode")
	}

	cfg := config.DatabaseConfig{
		User:     "root",
		Password: "recruitflow",
		Name:     "recruitflow_test",
	}
	if host := os.Getenv("RECRUITFLOW_TEST_DATABASE_HOST"); host != "" {
		cfg.Host = host
		cfg.Port, _ = strconv.Atoi(os.Getenv("RECRUITFLOW_TEST_DATABASE_PORT"))
		if cfg.Port == 0 {
			cfg.Port = 3306
		}
		if pw, ok := os.LookupEnv("RECRUITFLOW_TEST_DATABASE_PASSWORD"); ok {
			cfg.Password = pw
		}
	} else {
		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mysql:8.0",
				ExposedPorts: []string{"3306/tcp"},
				Env: map[string]string{
					"MYSQL_ROOT_PASSWORD": cfg.Password,
					"MYSQL_DATABASE":      cfg.Name,
				},
				WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(3 * time.Minute),
			},
			Started: true,
		})
		if err != nil {
			t.Skipf("docker unavailable: %v", err)
		}
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		host, err := container.Host(ctx)
		require.NoError(t, err)
		port, err := container.MappedPort(ctx, "3306")
		require.NoError(t, err)
		cfg.Host = host
		cfg.Port = port.Int()
	}

	var conn *database.Connection
	require.Eventually(t, func() bool {
		c, err := database.Open(ctx, cfg)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, time.Minute, time.Second)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, persistence.Migrate(ctx, conn.DB()))
	return conn
}

func TestMySQLStore(t *testing.T) {
	ctx := context.Background()
	conn := setupMySQL(t, ctx)
	store := persistence.NewStore(conn.DB(), nil)
	now := time.Now().UTC().Truncate(time.Millisecond)
	suffix := strconv.FormatInt(time.Now().UnixNano(), 36)

	wf, err := domain.NewWorkflow("wf-"+suffix, "Backend hiring", "acme", "owner", now)
	require.NoError(t, err)
	wf.Settings = domain.Payload{"sla_days": 5}
	require.NoError(t, store.Workflows.Create(ctx, wf))

	t.Run("workflow compare-and-set", func(t *testing.T) {
		a, err := store.Workflows.Get(ctx, wf.ID)
		require.NoError(t, err)
		b, err := store.Workflows.Get(ctx, wf.ID)
		require.NoError(t, err)

		a.Name = "Renamed"
		require.NoError(t, store.Workflows.Update(ctx, a))
		b.Name = "Lost"
		assert.True(t, appErrors.IsStale(store.Workflows.Update(ctx, b)))

		got, err := store.Workflows.Get(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, float64(5), got.Settings["sla_days"])
	})

	nodes := make([]*domain.NodeDefinition, 3)
	for i := range nodes {
		nodes[i] = &domain.NodeDefinition{
			ID: "n" + strconv.Itoa(i) + "-" + suffix, WorkflowID: wf.ID, Type: domain.NodeTypeScreening,
			Title: "Step", SequenceOrder: i + 1, IsRequired: true, Status: domain.NodeStatusDraft,
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, store.Nodes.Create(ctx, nodes[i]))
	}

	t.Run("sequence is unique and resequence swaps", func(t *testing.T) {
		dup := *nodes[0]
		dup.ID = "dup-" + suffix
		assert.True(t, appErrors.IsConflict(store.Nodes.Create(ctx, &dup)))

		require.NoError(t, store.Nodes.Resequence(ctx, wf.ID, map[string]int{
			nodes[0].ID: 3, nodes[2].ID: 1,
		}))
		listed, err := store.Nodes.ListByWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.Equal(t, []string{nodes[2].ID, nodes[1].ID, nodes[0].ID},
			[]string{listed[0].ID, listed[1].ID, listed[2].ID})
	})

	t.Run("transaction rolls back", func(t *testing.T) {
		err := store.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			if err := store.Connections.Create(ctx, &domain.Connection{
				ID: "c-" + suffix, WorkflowID: wf.ID, SourceNodeID: nodes[0].ID, TargetNodeID: nodes[1].ID, CreatedAt: now,
			}); err != nil {
				return err
			}
			return appErrors.NewValidationError("x", "abort")
		})
		assert.True(t, appErrors.IsValidation(err))
		conns, err := store.Connections.ListByWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Empty(t, conns)
	})

	t.Run("candidate run and overdue executions", func(t *testing.T) {
		cw, err := domain.NewCandidateWorkflow("cw-"+suffix, "cand-"+suffix, wf.ID, now)
		require.NoError(t, err)
		require.NoError(t, store.Candidates.Create(ctx, cw))

		again, err := domain.NewCandidateWorkflow("cw2-"+suffix, "cand-"+suffix, wf.ID, now)
		require.NoError(t, err)
		assert.True(t, appErrors.IsConflict(store.Candidates.Create(ctx, again)))

		due := now.Add(-time.Hour)
		ex := &domain.NodeExecution{
			ID: "ex-" + suffix, CandidateWorkflowID: cw.ID, NodeID: nodes[1].ID,
			Status: domain.ExecutionPending, DueDate: &due, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, store.Executions.Create(ctx, ex))

		overdue, err := store.Executions.ListOverdue(ctx, now)
		require.NoError(t, err)
		var found bool
		for _, e := range overdue {
			found = found || e.ID == ex.ID
		}
		assert.True(t, found)

		got, err := store.Executions.FindByNode(ctx, cw.ID, nodes[1].ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, due.Equal(*got.DueDate))

		count, err := store.Executions.CountByNode(ctx, nodes[1].ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		err = store.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			if _, err := store.Executions.DeleteByCandidateWorkflow(ctx, cw.ID); err != nil {
				return err
			}
			return store.Candidates.Delete(ctx, cw.ID)
		})
		require.NoError(t, err)
		_, err = store.Executions.Get(ctx, ex.ID)
		assert.True(t, appErrors.IsNotFound(err))
		assert.True(t, appErrors.IsNotFound(store.Candidates.Delete(ctx, cw.ID)))
	})

	t.Run("viewer overrides persist", func(t *testing.T) {
		v := &domain.Viewer{
			ID: "v-" + suffix, WorkflowID: wf.ID, UserID: "u-" + suffix, Role: domain.RoleObserver,
			Permissions: map[domain.Permission]bool{domain.PermExecuteNodes: true},
			AddedBy:     "owner", AddedAt: now,
		}
		require.NoError(t, store.Viewers.Create(ctx, v))
		got, err := store.Viewers.Get(ctx, wf.ID, v.UserID)
		require.NoError(t, err)
		assert.True(t, got.HasPermission(domain.PermExecuteNodes))

		removed, err := store.Viewers.Delete(ctx, wf.ID, v.UserID)
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = store.Viewers.Delete(ctx, wf.ID, v.UserID)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("filters", func(t *testing.T) {
		list, err := store.Workflows.List(ctx, ports.WorkflowFilter{CompanyID: "acme", Status: domain.WorkflowStatusDraft})
		require.NoError(t, err)
		assert.NotEmpty(t, list)
	})
}
