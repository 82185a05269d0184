//go:build integration

package executor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-gateway/pkg/database"
	"github.com/ekaya-inc/ekaya-gateway/pkg/result"
	"github.com/ekaya-inc/ekaya-gateway/pkg/rewrite"
	"github.com/ekaya-inc/ekaya-gateway/pkg/testhelpers"
)

func newTestExecutor(t *testing.T, timeout time.Duration) (*Executor, *database.DB) {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)

	db, err := database.NewConnection(context.Background(), &database.Config{
		URL:            testDB.ConnStr,
		MaxConnections: 2,
		DeadlineDelay:  500 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return New(db.Pool, Config{StatementTimeout: timeout, CancelGrace: time.Second}, zaptest.NewLogger(t)), db
}

func TestExecute_ReferenceScenario(t *testing.T) {
	exec, _ := newTestExecutor(t, 5*time.Second)

	set, err := exec.Execute(context.Background(), &rewrite.BoundStatement{
		SQL:    "SELECT name FROM users WHERE city = $1 ORDER BY id LIMIT 100",
		Params: []any{"Boston"},
	})
	require.NoError(t, err)

	assert.Equal(t, []result.Column{{Name: "name", Type: "TEXT"}}, set.Columns)
	require.Equal(t, 2, set.Len())
	name, _ := set.Records[0].Get("name")
	assert.Equal(t, "Ada", name)
}

func TestExecute_TypedPlaceholders(t *testing.T) {
	exec, _ := newTestExecutor(t, 5*time.Second)

	set, err := exec.Execute(context.Background(), &rewrite.BoundStatement{
		SQL: "SELECT o.id, o.total, o.tags, o.meta, o.created_at, u.created_at AS joined, u.email " +
			"FROM orders o JOIN users u ON u.id = o.user_id " +
			"WHERE o.total > $1::numeric AND u.id = $2::int4 AND u.created_at >= $3::date AND $4::bool " +
			"ORDER BY o.id LIMIT 100",
		Params: []any{"10.00", int64(1), "2023-12-31", true},
	})
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	data, err := json.Marshal(set.Records[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 1,
		"total": "10.50",
		"tags": ["a", "b"],
		"meta": {"a": "x", "b": 1},
		"created_at": "2024-02-01T10:00:00Z",
		"joined": "2024-01-01",
		"email": "ada@example.com"
	}`, string(data))
}

func TestExecute_NullAndUUID(t *testing.T) {
	exec, _ := newTestExecutor(t, 5*time.Second)

	set, err := exec.Execute(context.Background(), &rewrite.BoundStatement{
		SQL:    "SELECT i.id, i.amount, u.email FROM sales.invoices i CROSS JOIN users u WHERE u.name = $1 LIMIT 100",
		Params: []any{"Grace"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())

	data, err := json.Marshal(set.Records[0])
	require.NoError(t, err)
	assert.Equal(t, `{"id":"6f1c2a9e-2d4b-4c1a-9a55-0c8f6f2a7b10","amount":"100.00","email":null}`, string(data))
}

func TestExecute_EmptyResultKeepsColumns(t *testing.T) {
	exec, _ := newTestExecutor(t, 5*time.Second)

	set, err := exec.Execute(context.Background(), &rewrite.BoundStatement{
		SQL:    "SELECT id, id FROM users WHERE city = $1 LIMIT 100",
		Params: []any{"Nowhere"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
	assert.NotNil(t, set.Records)
	assert.Equal(t, []result.Column{{Name: "id", Type: "INT4"}, {Name: "id_2", Type: "INT4"}}, set.Columns)
}

func TestExecute_Timeout(t *testing.T) {
	exec, db := newTestExecutor(t, 200*time.Millisecond)

	_, err := exec.Execute(context.Background(), &rewrite.BoundStatement{SQL: "SELECT pg_sleep(2)"})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, Timeout, execErr.Kind)

	// The server aborted the statement, so the connection went back to the
	// pool and keeps serving.
	assert.Equal(t, int32(0), db.Stat().AcquiredConns())
	set, err := exec.Execute(context.Background(), &rewrite.BoundStatement{SQL: "SELECT 1 AS one"})
	require.NoError(t, err)
	one, _ := set.Records[0].Get("one")
	assert.Equal(t, int32(1), one)
}

func TestExecute_ClientDeadlineDiscardsConnection(t *testing.T) {
	exec, db := newTestExecutor(t, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := exec.Execute(ctx, &rewrite.BoundStatement{SQL: "SELECT pg_sleep(3)"})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, Timeout, execErr.Kind)

	// The pool still serves queries on a fresh connection.
	require.Eventually(t, func() bool {
		return db.Stat().AcquiredConns() == 0
	}, 5*time.Second, 50*time.Millisecond)

	_, err = exec.Execute(context.Background(), &rewrite.BoundStatement{SQL: "SELECT 1"})
	require.NoError(t, err)
}

func TestExecute_ReadOnly(t *testing.T) {
	exec, _ := newTestExecutor(t, 5*time.Second)

	_, err := exec.Execute(context.Background(), &rewrite.BoundStatement{
		SQL:    "INSERT INTO audit_log (message) VALUES ($1)",
		Params: []any{"should fail"},
	})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, DatabaseError, execErr.Kind)
	assert.Equal(t, "25006", execErr.Code)
}

func TestExecute_DatabaseError(t *testing.T) {
	exec, _ := newTestExecutor(t, 5*time.Second)

	_, err := exec.Execute(context.Background(), &rewrite.BoundStatement{SQL: "SELECT 1 / (id - id) FROM users LIMIT 1"})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, DatabaseError, execErr.Kind)
	assert.Equal(t, "22012", execErr.Code)
	assert.Equal(t, "division by zero", execErr.Message)
}

func TestExecute_ConnectionFailure(t *testing.T) {
	db, err := database.NewConnection(context.Background(), &database.Config{URL: testhelpers.GetTestDB(t).ConnStr})
	require.NoError(t, err)
	exec := New(db.Pool, Config{StatementTimeout: time.Second}, nil)
	db.Close()

	_, err = exec.Execute(context.Background(), &rewrite.BoundStatement{SQL: "SELECT 1"})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ConnectionFailure, execErr.Kind)
}
