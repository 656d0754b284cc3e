package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
)

// Execution is one completed (or failed) agent run, the unit analytics
// records one row per. State mirrors agent.State's string values without
// importing the agent package, which itself depends on observability for
// trace-scoped logging.
type Execution struct {
	State      string
	Model      string
	Iterations int
	ToolsUsed  []string
	LatencyMS  int64
	ErrMessage string
}

// AnalyticsSink records completed agent executions. A nil interface value
// is not usable; NewNoopAnalyticsSink supplies the no-op sink.
type AnalyticsSink interface {
	Record(ctx context.Context, exec Execution)
}

type noopAnalyticsSink struct{}

func (noopAnalyticsSink) Record(context.Context, Execution) {}

// NewNoopAnalyticsSink returns the sink used when no ClickHouse DSN is
// configured.
func NewNoopAnalyticsSink() AnalyticsSink { return noopAnalyticsSink{} }

// ClickHouseAnalyticsSink inserts one row per completed agent execution into
// a ClickHouse table, fire-and-forget; insert failures are logged and never
// propagated back to the request path.
type ClickHouseAnalyticsSink struct {
	conn    clickhouse.Conn
	table   string
	timeout time.Duration
}

// NewClickHouseAnalyticsSink opens a ClickHouse connection and verifies it
// with a ping. dsn empty returns (nil, nil): callers should fall back to
// NewNoopAnalyticsSink in that case.
func NewClickHouseAnalyticsSink(ctx context.Context, dsn, table string) (*ClickHouseAnalyticsSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	if table == "" {
		table = "agent_executions"
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	return &ClickHouseAnalyticsSink{conn: conn, table: table, timeout: 5 * time.Second}, nil
}

// Record inserts one row describing exec. Errors are logged, never
// returned, so a flaky analytics backend never fails the agent request it
// describes.
func (s *ClickHouseAnalyticsSink) Record(ctx context.Context, exec Execution) {
	if s == nil || s.conn == nil {
		return
	}
	execCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`
INSERT INTO %s (id, timestamp, state, model, iterations, tools_used, latency_ms, error_message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, s.table)

	err := s.conn.Exec(execCtx, query,
		uuid.NewString(),
		time.Now(),
		string(exec.State),
		exec.Model,
		exec.Iterations,
		exec.ToolsUsed,
		exec.LatencyMS,
		exec.ErrMessage,
	)
	if err != nil {
		LoggerWithTrace(ctx).Warn().Err(err).Msg("analytics_insert_failed")
	}
}

// Close releases the underlying connection.
func (s *ClickHouseAnalyticsSink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
