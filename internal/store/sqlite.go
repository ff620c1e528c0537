package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/panocount/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

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
CREATE TABLE IF NOT EXISTS sample_points (
	id         TEXT PRIMARY KEY,
	lat        REAL NOT NULL,
	lng        REAL NOT NULL,
	road_class TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'pending',
	claimed_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS attempts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	sample_id  TEXT NOT NULL REFERENCES sample_points(id),
	outcome    TEXT NOT NULL,
	pano_id    TEXT,
	pano_lat   REAL,
	pano_lng   REAL,
	pano_date  TEXT,
	copyright  TEXT,
	error      TEXT,
	queried_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS panoramas (
	pano_id      TEXT PRIMARY KEY,
	lat          REAL NOT NULL,
	lng          REAL NOT NULL,
	date         TEXT,
	copyright    TEXT,
	first_seen   DATETIME NOT NULL,
	sample_count INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	params      TEXT NOT NULL,
	summary     TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sample_points_status ON sample_points(status);
CREATE INDEX IF NOT EXISTS idx_attempts_sample_id ON attempts(sample_id);
CREATE INDEX IF NOT EXISTS idx_attempts_outcome ON attempts(outcome);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SeedPoints inserts sample points, skipping any whose ID already exists so
// that re-running preparation never disturbs crawl progress. Returns the
// number of newly inserted points.
func (s *SQLiteStore) SeedPoints(ctx context.Context, points []model.SamplePoint) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin seed tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sample_points (id, lat, lng, road_class, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare seed")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	inserted := 0
	for _, p := range points {
		res, err := stmt.ExecContext(ctx, p.ID, p.Lat, p.Lng, p.RoadClass, string(model.StatusPending), now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: seed point %s", p.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit seed tx")
	}
	return inserted, nil
}

// ClaimBatch atomically moves up to n pending points to in_progress and
// returns them. WAL mode serializes writers, so the single UPDATE ...
// RETURNING guarantees no two claimers receive the same point.
func (s *SQLiteStore) ClaimBatch(ctx context.Context, n int) ([]model.SamplePoint, error) {
	if n <= 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx,
		`UPDATE sample_points
		 SET status = ?, claimed_at = ?
		 WHERE id IN (SELECT id FROM sample_points WHERE status = ? ORDER BY id LIMIT ?)
		 RETURNING id, lat, lng, road_class, created_at`,
		string(model.StatusInProgress), now, string(model.StatusPending), n,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim batch")
	}
	defer rows.Close() //nolint:errcheck

	var points []model.SamplePoint
	for rows.Next() {
		p := model.SamplePoint{Status: model.StatusInProgress, ClaimedAt: &now}
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lng, &p.RoadClass, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan claimed point")
		}
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "sqlite: claim rows")
}

// RecoverStale returns in_progress points whose claim is older than grace to
// pending. Claims abandoned by a crashed process become eligible again.
func (s *SQLiteStore) RecoverStale(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-grace)
	res, err := s.db.ExecContext(ctx,
		`UPDATE sample_points SET status = ?, claimed_at = NULL
		 WHERE status = ? AND (claimed_at IS NULL OR claimed_at <= ?)`,
		string(model.StatusPending), string(model.StatusInProgress), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: recover stale")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// CompletePoint appends the attempt row and moves the sample to its terminal
// status in one transaction. A point only ever leaves in_progress here.
func (s *SQLiteStore) CompletePoint(ctx context.Context, attempt model.Attempt) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin complete tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO attempts (sample_id, outcome, pano_id, pano_lat, pano_lng, pano_date, copyright, error, queried_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.SampleID, string(attempt.Outcome),
		nullString(attempt.PanoID),
		nullFloat(attempt.PanoLat, attempt.HasPanorama()),
		nullFloat(attempt.PanoLng, attempt.HasPanorama()),
		nullString(attempt.PanoDate), nullString(attempt.Copyright), nullString(attempt.Error),
		attempt.QueriedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert attempt for %s", attempt.SampleID)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE sample_points SET status = ?, claimed_at = NULL WHERE id = ? AND status = ?`,
		string(terminalStatus(attempt.Outcome)), attempt.SampleID, string(model.StatusInProgress),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete point %s", attempt.SampleID)
	}
	if err := checkRowsAffected(res, "in_progress sample", attempt.SampleID); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit complete tx")
}

// ResetFailed re-enqueues terminally failed points. Explicit operator action,
// nothing in the crawl path calls this.
func (s *SQLiteStore) ResetFailed(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sample_points SET status = ?, claimed_at = NULL WHERE status = ?`,
		string(model.StatusPending), string(model.StatusFailed),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset failed")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) StatusCounts(ctx context.Context) (model.StatusCounts, error) {
	var counts model.StatusCounts
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM sample_points GROUP BY status`)
	if err != nil {
		return counts, eris.Wrap(err, "sqlite: status counts")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return counts, eris.Wrap(err, "sqlite: scan status count")
		}
		applyStatusCount(&counts, model.SampleStatus(status), n)
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: status count rows")
}

// FoldPanorama inserts the panorama if its ID is unseen and reports whether
// it was new. On a duplicate it bumps sample_count and backfills a missing
// date; coordinates are never rewritten.
func (s *SQLiteStore) FoldPanorama(ctx context.Context, pano model.Panorama) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: begin fold tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO panoramas (pano_id, lat, lng, date, copyright, first_seen, sample_count)
		 VALUES (?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT (pano_id) DO NOTHING`,
		pano.PanoID, pano.Lat, pano.Lng, nullString(pano.Date), nullString(pano.Copyright),
		time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert panorama %s", pano.PanoID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	isNew := n > 0
	if !isNew {
		_, err = tx.ExecContext(ctx,
			`UPDATE panoramas SET sample_count = sample_count + 1, date = COALESCE(date, ?)
			 WHERE pano_id = ?`,
			nullString(pano.Date), pano.PanoID,
		)
		if err != nil {
			return false, eris.Wrapf(err, "sqlite: fold duplicate %s", pano.PanoID)
		}
	}
	return isNew, eris.Wrap(tx.Commit(), "sqlite: commit fold tx")
}

func (s *SQLiteStore) CountPanoramas(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM panoramas`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count panoramas")
}

// CountFoundOutside counts distinct panoramas recorded outside the boundary.
func (s *SQLiteStore) CountFoundOutside(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT pano_id) FROM attempts WHERE outcome = ?`,
		string(model.OutcomeFoundOutside),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count found outside")
}

func (s *SQLiteStore) ListPanoramas(ctx context.Context, filter PanoramaFilter) ([]model.Panorama, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT pano_id, lat, lng, date, copyright, first_seen, sample_count
		 FROM panoramas ORDER BY first_seen, pano_id LIMIT ? OFFSET ?`,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list panoramas")
	}
	defer rows.Close() //nolint:errcheck

	var panos []model.Panorama
	for rows.Next() {
		var p model.Panorama
		var date, copyright sql.NullString
		if err := rows.Scan(&p.PanoID, &p.Lat, &p.Lng, &date, &copyright, &p.FirstSeen, &p.SampleCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan panorama")
		}
		p.Date = date.String
		p.Copyright = copyright.String
		panos = append(panos, p)
	}
	return panos, eris.Wrap(rows.Err(), "sqlite: panorama rows")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, params model.RunParams) (string, error) {
	id := uuid.New().String()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal run params")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, params, started_at) VALUES (?, ?, ?)`,
		id, string(paramsJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert run")
	}
	return id, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run summary")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, finished_at = ? WHERE id = ?`,
		string(summaryJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// helpers

func terminalStatus(outcome model.AttemptOutcome) model.SampleStatus {
	if outcome == model.OutcomeFailed {
		return model.StatusFailed
	}
	return model.StatusQueried
}

func applyStatusCount(counts *model.StatusCounts, status model.SampleStatus, n int64) {
	switch status {
	case model.StatusPending:
		counts.Pending = n
	case model.StatusInProgress:
		counts.InProgress = n
	case model.StatusQueried:
		counts.Queried = n
	case model.StatusFailed:
		counts.Failed = n
	}
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64, valid bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: valid}
}
