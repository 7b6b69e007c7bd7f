// Package probe implements the cluster probe: the single boundary through
// which the diagnostic engine talks to a live cluster. It executes
// QueryDescriptors against the cluster's MySQL-protocol frontend (SQL and
// ADMIN SHOW statements) or the backend's HTTP metrics endpoint, and maps
// every failure onto a diagerrors.ProbeError so downstream passes never see
// a raw driver error string.
package probe

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/tracymacding/starrocks-diag-engine/internal/diagerrors"
	"github.com/tracymacding/starrocks-diag-engine/internal/diagmodel"
	"github.com/tracymacding/starrocks-diag-engine/internal/logging"
)

// Probe owns the frontend SQL connection pool and the backend HTTP client
// used to collect data for a diagnostic run.
type Probe struct {
	db             *sql.DB
	httpClient     *http.Client
	backendHTTPFmt string // e.g. "http://%s:%d/metrics", %s/%d filled from a probed backend host:port
}

// Open establishes the frontend connection pool. dsn follows the
// go-sql-driver/mysql DSN format (user:pass@tcp(host:port)/dbname).
func Open(dsn, backendHTTPFmt string) (*Probe, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open frontend connection: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Probe{
		db:             db,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		backendHTTPFmt: backendHTTPFmt,
	}, nil
}

// NewForTesting builds a Probe around an already-open *sql.DB, letting
// other packages' tests exercise real Probe.Run behavior against a
// sqlmock handle without depending on Open's DSN parsing.
func NewForTesting(db *sql.DB, backendHTTPFmt string) *Probe {
	return &Probe{
		db:             db,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		backendHTTPFmt: backendHTTPFmt,
	}
}

func (p *Probe) Close() error {
	return p.db.Close()
}

// Run executes a single QueryDescriptor and always returns a fully-formed
// CollectedResult: at most one of Rows/JSONDoc/Err is set (a query that
// returns no rows leaves all three empty).
func (p *Probe) Run(ctx context.Context, q diagmodel.QueryDescriptor) diagmodel.CollectedResult {
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var result diagmodel.CollectedResult

	switch q.Kind {
	case diagmodel.QuerySQL, diagmodel.QueryAdmin:
		rows, err := p.runQuery(runCtx, q.StatementOrPath, q.Params...)
		result = diagmodel.CollectedResult{Rows: rows, Err: err}
	case diagmodel.QueryHTTP:
		doc, err := p.runHTTP(runCtx, q.StatementOrPath)
		result = diagmodel.CollectedResult{JSONDoc: doc, Err: err}
	default:
		result = diagmodel.CollectedResult{Err: fmt.Errorf("probe: unknown query kind %q", q.Kind)}
	}

	result.Duration = time.Since(start)
	if result.Err != nil {
		logging.ProbeWarn("descriptor %s failed after %s: %v", q.ID, result.Duration, result.Err)
	} else {
		logging.ProbeDebug("descriptor %s completed in %s", q.ID, result.Duration)
	}
	return result
}

// runQuery handles both QuerySQL and QueryAdmin - ADMIN SHOW statements are
// plain SQL text from the driver's point of view.
func (p *Probe) runQuery(ctx context.Context, stmt string, params ...any) ([]diagmodel.Row, error) {
	rows, err := p.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, classifyDriverError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classifyDriverError(err)
	}

	var out []diagmodel.Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classifyDriverError(err)
		}
		row := make(diagmodel.Row, len(cols))
		for i, col := range cols {
			row[col] = toScalar(raw[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyDriverError(err)
	}
	return out, nil
}

// runHTTP fetches a JSON document from the backend metrics/profile endpoint.
// url is the complete target; callers build it with BackendURL from a
// backend address discovered by a prior SQL probe.
func (p *Probe) runHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, diagerrors.NewProbeError(diagerrors.KindOther, err.Error(), err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, diagerrors.NewProbeError(diagerrors.KindUnavailable, err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, diagerrors.NewProbeError(diagerrors.KindOther, err.Error(), err)
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, diagerrors.NewProbeError(diagerrors.KindPermissionDenied, string(body), nil)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, diagerrors.NewProbeError(diagerrors.KindAbsent, string(body), nil)
	}
	if resp.StatusCode >= 500 {
		return nil, diagerrors.NewProbeError(diagerrors.KindUnavailable, string(body), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, diagerrors.NewProbeError(diagerrors.KindOther, string(body), nil)
	}

	var js json.RawMessage
	if err := json.Unmarshal(body, &js); err != nil {
		return nil, diagerrors.NewProbeError(diagerrors.KindOther, "response is not valid JSON", err)
	}
	return body, nil
}

// BackendURL formats an HTTP probe target from a discovered backend
// host:port pair using the configured address template.
func (p *Probe) BackendURL(host string, port int, path string) string {
	base := fmt.Sprintf(p.backendHTTPFmt, host, port)
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func toScalar(v any) diagmodel.Scalar {
	switch t := v.(type) {
	case nil:
		return diagmodel.NullScalar()
	case int64:
		return diagmodel.IntScalar(t)
	case float64:
		return diagmodel.FloatScalar(t)
	case []byte:
		return diagmodel.TextScalar(string(t))
	case string:
		return diagmodel.TextScalar(t)
	case time.Time:
		return diagmodel.TimeScalar(t)
	default:
		return diagmodel.TextScalar(fmt.Sprintf("%v", t))
	}
}

// classifyDriverError maps a go-sql-driver/mysql error into the probe error
// taxonomy by case-insensitive substring matching on the error message;
// MySQL error numbers are not inspected. The same matching covers
// driver-level failures (e.g. connection refused) that carry no error
// number at all.
func classifyDriverError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "access denied"), strings.Contains(lower, "privilege"):
		return diagerrors.NewProbeError(diagerrors.KindPermissionDenied, msg, err)
	case strings.Contains(lower, "you have an error in your sql syntax"), strings.Contains(lower, "unknown column"):
		return diagerrors.NewProbeError(diagerrors.KindSyntax, msg, err)
	case strings.Contains(lower, "unknown table"), strings.Contains(lower, "doesn't exist"), strings.Contains(lower, "no such"):
		return diagerrors.NewProbeError(diagerrors.KindAbsent, msg, err)
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"),
		strings.Contains(lower, "i/o timeout"), strings.Contains(lower, "driver: bad connection"),
		strings.Contains(lower, "invalid connection"):
		return diagerrors.NewProbeError(diagerrors.KindUnavailable, msg, err)
	default:
		return diagerrors.NewProbeError(diagerrors.KindOther, msg, err)
	}
}
