package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/council-scraper/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	council     TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	records     INTEGER NOT NULL DEFAULT 0,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_log_council ON run_log(council, id);
CREATE INDEX IF NOT EXISTS idx_run_log_finished_at ON run_log(finished_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveOutcome replaces the council's records and issues in one transaction.
func (s *SQLiteStore) SaveOutcome(ctx context.Context, council string, records []model.Councillor, issues []model.Issue) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM councillors WHERE council = ?`, council); err != nil {
		return eris.Wrapf(err, "sqlite: clear councillors %s", council)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM issues WHERE council = ?`, council); err != nil {
		return eris.Wrapf(err, "sqlite: clear issues %s", council)
	}

	insertRecord, err := tx.PrepareContext(ctx,
		`INSERT INTO councillors (council, position, identifier, url, name, party, division, email, photo_url, standing_down)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare councillor insert")
	}
	defer insertRecord.Close() //nolint:errcheck

	for i, c := range records {
		if _, err := insertRecord.ExecContext(ctx,
			council, i, c.Identifier, c.URL, c.Name, c.Party, c.Division, c.Email, c.PhotoURL, c.StandingDown,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert councillor %s/%s", council, c.Identifier)
		}
	}

	for i, is := range issues {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO issues (council, position, kind, item_index, source, message) VALUES (?, ?, ?, ?, ?, ?)`,
			council, i, string(is.Kind), is.Index, is.Source, is.Message,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert issue %s/%d", council, i)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit outcome")
}

func (s *SQLiteStore) Councillors(ctx context.Context, council string) ([]model.Councillor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, identifier, name, party, division, email, photo_url, standing_down
		 FROM councillors WHERE council = ? ORDER BY position`, council)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query councillors %s", council)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Councillor
	for rows.Next() {
		var c model.Councillor
		if err := rows.Scan(&c.URL, &c.Identifier, &c.Name, &c.Party, &c.Division, &c.Email, &c.PhotoURL, &c.StandingDown); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan councillor")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate councillors")
}

func (s *SQLiteStore) Issues(ctx context.Context, council string) ([]model.Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, item_index, source, message FROM issues WHERE council = ? ORDER BY position`, council)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query issues %s", council)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Issue
	for rows.Next() {
		var is model.Issue
		var kind string
		if err := rows.Scan(&kind, &is.Index, &is.Source, &is.Message); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan issue")
		}
		is.Kind = model.IssueKind(kind)
		out = append(out, is)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate issues")
}

func (s *SQLiteStore) RecordRun(ctx context.Context, e model.RunLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (council, status, error, records, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Council, string(e.Status), e.Error, e.Records, e.StartedAt.UTC(), e.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record run %s", e.Council)
}

func (s *SQLiteStore) LastRuns(ctx context.Context) ([]model.RunLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT council, status, error, records, started_at, finished_at FROM run_log r
		 WHERE id = (SELECT MAX(id) FROM run_log WHERE council = r.council)
		 ORDER BY council`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query last runs")
	}
	return scanRunLog(rows)
}

func (s *SQLiteStore) Failing(ctx context.Context) ([]model.RunLogEntry, error) {
	last, err := s.LastRuns(ctx)
	if err != nil {
		return nil, err
	}
	return failingOf(last), nil
}

func (s *SQLiteStore) RunsSince(ctx context.Context, since time.Time) ([]model.RunLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT council, status, error, records, started_at, finished_at FROM run_log
		 WHERE finished_at >= ? ORDER BY id`, since.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query runs since")
	}
	return scanRunLog(rows)
}

func scanRunLog(rows *sql.Rows) ([]model.RunLogEntry, error) {
	defer rows.Close() //nolint:errcheck

	var out []model.RunLogEntry
	for rows.Next() {
		var e model.RunLogEntry
		var status string
		if err := rows.Scan(&e.Council, &status, &e.Error, &e.Records, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run log")
		}
		e.Status = model.RunStatus(status)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate run log")
}
