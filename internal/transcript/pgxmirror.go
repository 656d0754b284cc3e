package transcript

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ragqa/internal/observability"
)

// PostgresMirror keeps a queryable index of transcript metadata
// (irv_id, object_id, prior_irv_id, chat_title, created_at) alongside the
// platform adapter,
// which remains the only source of truth for transcript content. It exists
// purely so transcripts can be listed/searched without paging through the
// document platform's object-version API.
type PostgresMirror struct {
	pool *pgxpool.Pool
}

// OpenPostgresMirror connects to dsn and verifies it with a ping. dsn empty
// returns (nil, nil): callers should run without a mirror in that case.
func OpenPostgresMirror(ctx context.Context, dsn string) (*PostgresMirror, error) {
	if dsn == "" {
		return nil, nil
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresMirror{pool: pool}, nil
}

// Init creates the mirror table if it does not already exist.
func (m *PostgresMirror) Init(ctx context.Context) error {
	if m == nil || m.pool == nil {
		return nil
	}
	_, err := m.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS transcript_versions (
    irv_id TEXT PRIMARY KEY,
    object_id TEXT NOT NULL,
    prior_irv_id TEXT NOT NULL DEFAULT '',
    chat_title TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS transcript_versions_object_idx ON transcript_versions(object_id, created_at DESC);
`)
	return err
}

// Record indexes one transcript save. Failures are logged and swallowed:
// the mirror is a convenience index, never the record of truth the caller's
// save already committed to the document platform.
func (m *PostgresMirror) Record(ctx context.Context, objectID, irvID, priorIRVID, chatTitle string) {
	if m == nil || m.pool == nil {
		return
	}
	_, err := m.pool.Exec(ctx, `
INSERT INTO transcript_versions (irv_id, object_id, prior_irv_id, chat_title)
VALUES ($1, $2, $3, $4)
ON CONFLICT (irv_id) DO UPDATE SET object_id = $2, prior_irv_id = $3, chat_title = $4`,
		irvID, objectID, priorIRVID, chatTitle)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("irv_id", irvID).Msg("transcript_mirror_record_failed")
	}
}

// Versions lists known transcript versions for an object, newest first.
func (m *PostgresMirror) Versions(ctx context.Context, objectID string) ([]TranscriptVersion, error) {
	if m == nil || m.pool == nil {
		return nil, nil
	}
	rows, err := m.pool.Query(ctx, `
SELECT irv_id, object_id, prior_irv_id, chat_title, created_at
FROM transcript_versions
WHERE object_id = $1
ORDER BY created_at DESC`, objectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TranscriptVersion
	for rows.Next() {
		var v TranscriptVersion
		if err := rows.Scan(&v.IRVID, &v.ObjectID, &v.PriorIRVID, &v.ChatTitle, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Close releases the underlying pool.
func (m *PostgresMirror) Close() {
	if m != nil && m.pool != nil {
		m.pool.Close()
	}
}

// TranscriptVersion is one indexed transcript-save record.
type TranscriptVersion struct {
	IRVID      string
	ObjectID   string
	PriorIRVID string
	ChatTitle  string
	CreatedAt  time.Time
}
