package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/horostracker/dbopen"
)

// Store persists log records, evaluation results, and feedback. It wraps
// one of two backends (embedded sqlite or client-server postgres) behind
// identical query semantics; the dialect never leaks to callers.
type Store struct {
	db      *sql.DB
	dialect dbopen.Dialect
}

// OpenStore opens the database named by the connection URL and applies the
// schema. A configured backend that cannot be reached is a fatal error;
// there is no fallback between backends.
func OpenStore(databaseURL string) (*Store, error) {
	db, dialect, err := dbopen.Open(databaseURL, dbopen.WithMkdirAll())
	if err != nil {
		return nil, err
	}
	s := NewStore(db, dialect)
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an already-open database. Used by tests and by callers
// that manage the connection lifecycle themselves.
func NewStore(db *sql.DB, dialect dbopen.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle for sharing with the HTTP layer.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports which backend this store runs on.
func (s *Store) Dialect() dbopen.Dialect { return s.dialect }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the backend is reachable. The runner calls it at the top
// of every pass so an unavailable database fails the pass, not the process.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("tracker: database unavailable: %w", err)
	}
	return nil
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS logs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    filename      TEXT NOT NULL,
    agent_name    TEXT NOT NULL DEFAULT '',
    provider      TEXT NOT NULL DEFAULT '',
    model         TEXT NOT NULL,
    prompt        TEXT NOT NULL DEFAULT '',
    instructions  TEXT NOT NULL DEFAULT '',
    answer        TEXT NOT NULL DEFAULT '',
    input_tokens  INTEGER NOT NULL,
    output_tokens INTEGER NOT NULL,
    raw_json      TEXT NOT NULL DEFAULT '',
    input_cost    TEXT,
    output_cost   TEXT,
    total_cost    TEXT,
    created_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS eval_checks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    log_id     INTEGER NOT NULL REFERENCES logs(id) ON DELETE CASCADE,
    check_name TEXT NOT NULL,
    passed     INTEGER,
    score      REAL,
    detail     TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_eval_checks_log ON eval_checks(log_id);
CREATE TABLE IF NOT EXISTS feedback (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    log_id           INTEGER NOT NULL REFERENCES logs(id) ON DELETE CASCADE,
    is_good          INTEGER NOT NULL,
    comments         TEXT NOT NULL DEFAULT '',
    reference_answer TEXT NOT NULL DEFAULT '',
    created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_log ON feedback(log_id);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS logs (
    id            BIGSERIAL PRIMARY KEY,
    filename      TEXT NOT NULL,
    agent_name    TEXT NOT NULL DEFAULT '',
    provider      TEXT NOT NULL DEFAULT '',
    model         TEXT NOT NULL,
    prompt        TEXT NOT NULL DEFAULT '',
    instructions  TEXT NOT NULL DEFAULT '',
    answer        TEXT NOT NULL DEFAULT '',
    input_tokens  BIGINT NOT NULL,
    output_tokens BIGINT NOT NULL,
    raw_json      TEXT NOT NULL DEFAULT '',
    input_cost    NUMERIC,
    output_cost   NUMERIC,
    total_cost    NUMERIC,
    created_at    BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS eval_checks (
    id         BIGSERIAL PRIMARY KEY,
    log_id     BIGINT NOT NULL REFERENCES logs(id) ON DELETE CASCADE,
    check_name TEXT NOT NULL,
    passed     BOOLEAN,
    score      DOUBLE PRECISION,
    detail     TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_eval_checks_log ON eval_checks(log_id);
CREATE TABLE IF NOT EXISTS feedback (
    id               BIGSERIAL PRIMARY KEY,
    log_id           BIGINT NOT NULL REFERENCES logs(id) ON DELETE CASCADE,
    is_good          BOOLEAN NOT NULL,
    comments         TEXT NOT NULL DEFAULT '',
    reference_answer TEXT NOT NULL DEFAULT '',
    created_at       BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_log ON feedback(log_id);
`

// EnsureSchema creates the three tables if absent. Idempotent; safe to
// call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := schemaSQLite
	if s.dialect == dbopen.Postgres {
		schema = schemaPostgres
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("tracker: ensure schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ?-placeholders to $n for postgres. Queries in this file
// are written once, in sqlite style.
func (s *Store) rebind(query string) string {
	if s.dialect != dbopen.Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertLog persists a record and returns its id. A zero CreatedAt is
// stamped with the current time; fakegen passes explicit timestamps to
// spread seeded data across a window.
func (s *Store) InsertLog(ctx context.Context, rec *LogRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO logs
		(filename, agent_name, provider, model, prompt, instructions, answer,
		 input_tokens, output_tokens, raw_json, input_cost, output_cost, total_cost, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	args := []any{
		rec.Filename, rec.AgentName, rec.Provider, rec.Model,
		rec.Prompt, rec.Instructions, rec.Answer,
		rec.InputTokens, rec.OutputTokens, rec.RawJSON,
		nullDecimal(rec.InputCost), nullDecimal(rec.OutputCost), nullDecimal(rec.TotalCost),
		rec.CreatedAt.Unix(),
	}

	id, err := s.insertReturningID(ctx, q, args)
	if err != nil {
		return 0, fmt.Errorf("tracker: insert log: %w", err)
	}
	rec.ID = id
	return id, nil
}

// insertReturningID papers over the one real dialect difference on writes:
// postgres wants RETURNING, sqlite wants LastInsertId.
func (s *Store) insertReturningID(ctx context.Context, query string, args []any) (int64, error) {
	if s.dialect == dbopen.Postgres {
		var id int64
		err := s.db.QueryRowContext(ctx, s.rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertChecks persists all results of one evaluation inside a single
// transaction, so a crash never leaves a record half-evaluated.
func (s *Store) InsertChecks(ctx context.Context, checks []CheckResult) error {
	if len(checks) == 0 {
		return nil
	}
	const q = `INSERT INTO eval_checks (log_id, check_name, passed, score, detail, created_at)
		VALUES (?,?,?,?,?,?)`
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, s.rebind(q))
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range checks {
			c := &checks[i]
			if c.CreatedAt.IsZero() {
				c.CreatedAt = time.Now().UTC()
			}
			if _, err := stmt.ExecContext(ctx,
				c.LogID, c.CheckName, nullBool(c.Passed), nullFloat(c.Score),
				c.Detail, c.CreatedAt.Unix()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tracker: insert checks: %w", err)
	}
	return nil
}

// InsertFeedback persists one feedback row and returns its id. Callers go
// through SaveFeedback, which validates the log id first.
func (s *Store) InsertFeedback(ctx context.Context, fb *Feedback) (int64, error) {
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO feedback (log_id, is_good, comments, reference_answer, created_at)
		VALUES (?,?,?,?,?)`
	id, err := s.insertReturningID(ctx, q, []any{
		fb.LogID, fb.IsGood, fb.Comments, fb.ReferenceAnswer, fb.CreatedAt.Unix(),
	})
	if err != nil {
		return 0, fmt.Errorf("tracker: insert feedback: %w", err)
	}
	fb.ID = id
	return id, nil
}

// HasLog reports whether a log record with the given id exists.
func (s *Store) HasLog(ctx context.Context, logID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM logs WHERE id = ?`), logID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("tracker: has log: %w", err)
	}
	return true, nil
}

// ListFilter narrows ListLogs. Zero values mean "no filter"; Limit
// defaults to 100.
type ListFilter struct {
	Provider string
	Model    string
	Limit    int
	Offset   int
}

const logColumns = `id, filename, agent_name, provider, model, prompt, instructions, answer,
	input_tokens, output_tokens, raw_json, input_cost, output_cost, total_cost, created_at`

// ListLogs returns records newest-first.
func (s *Store) ListLogs(ctx context.Context, f ListFilter) ([]LogRecord, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	var where []string
	var args []any
	if f.Provider != "" {
		where = append(where, "provider = ?")
		args = append(args, f.Provider)
	}
	if f.Model != "" {
		where = append(where, "model = ?")
		args = append(args, f.Model)
	}
	q := "SELECT " + logColumns + " FROM logs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("tracker: list logs: %w", err)
	}
	defer rows.Close()

	var recs []LogRecord
	for rows.Next() {
		rec, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("tracker: list logs: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// GetLog fetches one record by id, or nil if it does not exist.
func (s *Store) GetLog(ctx context.Context, logID int64) (*LogRecord, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+logColumns+" FROM logs WHERE id = ?"), logID)
	rec, err := scanLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tracker: get log: %w", err)
	}
	return rec, nil
}

// GetChecks returns the evaluation results for a log, oldest first.
// Re-evaluations append, so a record may carry more than one row per
// check name; row order preserves evaluation order.
func (s *Store) GetChecks(ctx context.Context, logID int64) ([]CheckResult, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, log_id, check_name, passed, score, detail, created_at
		 FROM eval_checks WHERE log_id = ? ORDER BY id ASC`), logID)
	if err != nil {
		return nil, fmt.Errorf("tracker: get checks: %w", err)
	}
	defer rows.Close()

	var checks []CheckResult
	for rows.Next() {
		var c CheckResult
		var passed sql.NullBool
		var score sql.NullFloat64
		var created int64
		if err := rows.Scan(&c.ID, &c.LogID, &c.CheckName, &passed, &score, &c.Detail, &created); err != nil {
			return nil, fmt.Errorf("tracker: get checks: %w", err)
		}
		if passed.Valid {
			c.Passed = &passed.Bool
		}
		if score.Valid {
			c.Score = &score.Float64
		}
		c.CreatedAt = time.Unix(created, 0).UTC()
		checks = append(checks, c)
	}
	return checks, rows.Err()
}

// GetFeedback returns the feedback rows for a log, newest first.
func (s *Store) GetFeedback(ctx context.Context, logID int64) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, log_id, is_good, comments, reference_answer, created_at
		 FROM feedback WHERE log_id = ? ORDER BY id DESC`), logID)
	if err != nil {
		return nil, fmt.Errorf("tracker: get feedback: %w", err)
	}
	defer rows.Close()

	var fbs []Feedback
	for rows.Next() {
		var fb Feedback
		var created int64
		if err := rows.Scan(&fb.ID, &fb.LogID, &fb.IsGood, &fb.Comments, &fb.ReferenceAnswer, &created); err != nil {
			return nil, fmt.Errorf("tracker: get feedback: %w", err)
		}
		fb.CreatedAt = time.Unix(created, 0).UTC()
		fbs = append(fbs, fb)
	}
	return fbs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLog(row scanner) (*LogRecord, error) {
	var rec LogRecord
	var inCost, outCost, totCost sql.NullString
	var created int64
	err := row.Scan(
		&rec.ID, &rec.Filename, &rec.AgentName, &rec.Provider, &rec.Model,
		&rec.Prompt, &rec.Instructions, &rec.Answer,
		&rec.InputTokens, &rec.OutputTokens, &rec.RawJSON,
		&inCost, &outCost, &totCost, &created,
	)
	if err != nil {
		return nil, err
	}
	rec.InputCost = parseDecimal(inCost)
	rec.OutputCost = parseDecimal(outCost)
	rec.TotalCost = parseDecimal(totCost)
	rec.CreatedAt = time.Unix(created, 0).UTC()
	return &rec, nil
}

// nullDecimal renders a cost for storage: exact-decimal text, or NULL.
func nullDecimal(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseDecimal(s sql.NullString) decimal.NullDecimal {
	if !s.Valid {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
