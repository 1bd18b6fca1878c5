package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/council-scraper/internal/db"
	"github.com/sells-group/council-scraper/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	councillorTable = db.ReplaceConfig{
		Table:     "councillors",
		KeyColumn: "council",
		Columns: []string{
			"council", "position", "identifier", "url", "name", "party",
			"division", "email", "photo_url", "standing_down",
		},
	}
	issueTable = db.ReplaceConfig{
		Table:     "issues",
		KeyColumn: "council",
		Columns:   []string{"council", "position", "kind", "item_index", "source", "message"},
	}
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS councillors (
	council       TEXT NOT NULL,
	position      INTEGER NOT NULL,
	identifier    TEXT NOT NULL,
	url           TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	party         TEXT NOT NULL DEFAULT '',
	division      TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	photo_url     TEXT NOT NULL DEFAULT '',
	standing_down TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (council, identifier, url)
);

CREATE TABLE IF NOT EXISTS issues (
	council    TEXT NOT NULL,
	position   INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	item_index INTEGER NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL,
	PRIMARY KEY (council, position)
);

CREATE TABLE IF NOT EXISTS run_log (
	id          BIGSERIAL PRIMARY KEY,
	council     TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	records     INTEGER NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_log_council ON run_log(council, id DESC);
CREATE INDEX IF NOT EXISTS idx_run_log_finished_at ON run_log(finished_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveOutcome replaces the council's records and issues in one transaction,
// loading each with COPY.
func (s *PostgresStore) SaveOutcome(ctx context.Context, council string, records []model.Councillor, issues []model.Issue) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	recordRows := make([][]any, 0, len(records))
	for i, c := range records {
		recordRows = append(recordRows, []any{
			council, i, c.Identifier, c.URL, c.Name, c.Party, c.Division, c.Email, c.PhotoURL, c.StandingDown,
		})
	}
	if _, err := db.ReplaceRows(ctx, tx, councillorTable, council, recordRows); err != nil {
		return eris.Wrapf(err, "postgres: save councillors %s", council)
	}

	issueRows := make([][]any, 0, len(issues))
	for i, is := range issues {
		issueRows = append(issueRows, []any{council, i, string(is.Kind), is.Index, is.Source, is.Message})
	}
	if _, err := db.ReplaceRows(ctx, tx, issueTable, council, issueRows); err != nil {
		return eris.Wrapf(err, "postgres: save issues %s", council)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit outcome")
	}
	return nil
}

func (s *PostgresStore) Councillors(ctx context.Context, council string) ([]model.Councillor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT url, identifier, name, party, division, email, photo_url, standing_down
		 FROM councillors WHERE council = $1 ORDER BY position`, council)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query councillors %s", council)
	}
	defer rows.Close()

	var out []model.Councillor
	for rows.Next() {
		var c model.Councillor
		if err := rows.Scan(&c.URL, &c.Identifier, &c.Name, &c.Party, &c.Division, &c.Email, &c.PhotoURL, &c.StandingDown); err != nil {
			return nil, eris.Wrap(err, "postgres: scan councillor")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate councillors")
}

func (s *PostgresStore) Issues(ctx context.Context, council string) ([]model.Issue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, item_index, source, message FROM issues WHERE council = $1 ORDER BY position`, council)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query issues %s", council)
	}
	defer rows.Close()

	var out []model.Issue
	for rows.Next() {
		var is model.Issue
		var kind string
		if err := rows.Scan(&kind, &is.Index, &is.Source, &is.Message); err != nil {
			return nil, eris.Wrap(err, "postgres: scan issue")
		}
		is.Kind = model.IssueKind(kind)
		out = append(out, is)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate issues")
}

func (s *PostgresStore) RecordRun(ctx context.Context, e model.RunLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_log (council, status, error, records, started_at, finished_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Council, string(e.Status), e.Error, e.Records, e.StartedAt.UTC(), e.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record run %s", e.Council)
}

func (s *PostgresStore) LastRuns(ctx context.Context) ([]model.RunLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (council) council, status, error, records, started_at, finished_at
		 FROM run_log ORDER BY council, id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query last runs")
	}
	return collectRunLog(rows)
}

func (s *PostgresStore) Failing(ctx context.Context) ([]model.RunLogEntry, error) {
	last, err := s.LastRuns(ctx)
	if err != nil {
		return nil, err
	}
	return failingOf(last), nil
}

func (s *PostgresStore) RunsSince(ctx context.Context, since time.Time) ([]model.RunLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT council, status, error, records, started_at, finished_at
		 FROM run_log WHERE finished_at >= $1 ORDER BY id`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query runs since")
	}
	return collectRunLog(rows)
}

func collectRunLog(rows pgx.Rows) ([]model.RunLogEntry, error) {
	defer rows.Close()

	var out []model.RunLogEntry
	for rows.Next() {
		var e model.RunLogEntry
		var status string
		if err := rows.Scan(&e.Council, &status, &e.Error, &e.Records, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run log")
		}
		e.Status = model.RunStatus(status)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate run log")
}
