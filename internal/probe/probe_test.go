package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagerrors"
	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
)

func newTestProbe(t *testing.T) (*Probe, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Probe{db: db, backendHTTPFmt: "http://%s:%d"}, mock
}

func TestRunQuerySQLReturnsRowsInColumnOrder(t *testing.T) {
	p, mock := newTestProbe(t)
	rows := sqlmock.NewRows([]string{"table_name", "compaction_score"}).
		AddRow("orders", int64(42)).
		AddRow("returns", int64(7))
	mock.ExpectQuery("SHOW.*COMPACTION").WillReturnRows(rows)

	got := p.Run(context.Background(), diagmodel.QueryDescriptor{
		ID:              "compaction_scores",
		Kind:            diagmodel.QueryAdmin,
		StatementOrPath: "SHOW PROC '/COMPACTION'",
	})

	require.NoError(t, got.Err)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "orders", got.Rows[0]["table_name"].AsString())
	f, ok := got.Rows[0]["compaction_score"].AsFloat()
	require.True(t, ok)
	assert.Equal(t, float64(42), f)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunQueryPermissionDeniedMapsToProbeError(t *testing.T) {
	p, mock := newTestProbe(t)
	mock.ExpectQuery("SHOW.*CONFIG").
		WillReturnError(errors.New("Error 1045: Access denied for user 'diag'@'%' to database 'information_schema'"))

	got := p.Run(context.Background(), diagmodel.QueryDescriptor{
		ID:              "fe_config",
		Kind:            diagmodel.QueryAdmin,
		StatementOrPath: "SHOW FRONTEND CONFIG",
	})

	require.Error(t, got.Err)
	assert.True(t, diagerrors.IsPermissionDenied(got.Err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunQueryConnectionRefusedMapsToUnavailable(t *testing.T) {
	p, mock := newTestProbe(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("dial tcp 10.0.0.5:9030: connect: connection refused"))

	got := p.Run(context.Background(), diagmodel.QueryDescriptor{
		ID:              "ping",
		Kind:            diagmodel.QuerySQL,
		StatementOrPath: "SELECT 1",
	})

	require.Error(t, got.Err)
	assert.True(t, diagerrors.IsUnavailable(got.Err))
}

func TestRunQueryUnknownTableMapsToAbsent(t *testing.T) {
	p, mock := newTestProbe(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("Error 1146: Table 'db.routine_load_jobs' doesn't exist"))

	got := p.Run(context.Background(), diagmodel.QueryDescriptor{
		ID:              "routine_load",
		Kind:            diagmodel.QuerySQL,
		StatementOrPath: "SELECT * FROM routine_load_jobs",
	})

	require.Error(t, got.Err)
	assert.True(t, diagerrors.IsAbsent(got.Err))
}

func TestRunHonorsPerDescriptorTimeout(t *testing.T) {
	p, mock := newTestProbe(t)
	mock.ExpectQuery("SELECT SLEEP").WillDelayFor(50 * time.Millisecond).WillReturnRows(
		sqlmock.NewRows([]string{"x"}).AddRow(int64(1)))

	got := p.Run(context.Background(), diagmodel.QueryDescriptor{
		ID:              "slow",
		Kind:            diagmodel.QuerySQL,
		StatementOrPath: "SELECT SLEEP(1)",
		Timeout:         1 * time.Millisecond,
	})

	require.Error(t, got.Err)
}

func TestBackendURLJoinsPathCleanly(t *testing.T) {
	p := &Probe{backendHTTPFmt: "http://%s:%d"}
	got := p.BackendURL("10.0.0.5", 8040, "/api/compaction/show")
	assert.Equal(t, "http://10.0.0.5:8040/api/compaction/show", got)
}
