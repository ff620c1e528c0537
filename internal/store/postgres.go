package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/panocount/internal/db"
	"github.com/sells-group/panocount/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot crawl-loop store operations.
var preparedStatements = map[string]string{
	"claim_batch": `UPDATE sample_points SET status = $1, claimed_at = $2
		WHERE id IN (SELECT id FROM sample_points WHERE status = $3 ORDER BY id LIMIT $4 FOR UPDATE SKIP LOCKED)
		RETURNING id, lat, lng, road_class, created_at`,
	"insert_attempt": `INSERT INTO attempts (sample_id, outcome, pano_id, pano_lat, pano_lng, pano_date, copyright, error, queried_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"complete_point": `UPDATE sample_points SET status = $1, claimed_at = NULL WHERE id = $2 AND status = $3`,
	"insert_panorama": `INSERT INTO panoramas (pano_id, lat, lng, date, copyright, first_seen, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6, 1) ON CONFLICT (pano_id) DO NOTHING`,
	"fold_duplicate": `UPDATE panoramas SET sample_count = sample_count + 1, date = COALESCE(date, $1) WHERE pano_id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
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

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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
CREATE TABLE IF NOT EXISTS sample_points (
	id         TEXT PRIMARY KEY,
	lat        DOUBLE PRECISION NOT NULL,
	lng        DOUBLE PRECISION NOT NULL,
	road_class TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'pending',
	claimed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attempts (
	id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	sample_id  TEXT NOT NULL REFERENCES sample_points(id),
	outcome    TEXT NOT NULL,
	pano_id    TEXT,
	pano_lat   DOUBLE PRECISION,
	pano_lng   DOUBLE PRECISION,
	pano_date  TEXT,
	copyright  TEXT,
	error      TEXT,
	queried_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS panoramas (
	pano_id      TEXT PRIMARY KEY,
	lat          DOUBLE PRECISION NOT NULL,
	lng          DOUBLE PRECISION NOT NULL,
	date         TEXT,
	copyright    TEXT,
	first_seen   TIMESTAMPTZ NOT NULL,
	sample_count INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	params      JSONB NOT NULL,
	summary     JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sample_points_status ON sample_points(status);
CREATE INDEX IF NOT EXISTS idx_attempts_sample_id ON attempts(sample_id);
CREATE INDEX IF NOT EXISTS idx_attempts_outcome ON attempts(outcome);
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

// SeedPoints bulk-loads sample points via COPY into a temp table followed by
// an insert that skips IDs already present.
func (s *PostgresStore) SeedPoints(ctx context.Context, points []model.SamplePoint) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(points))
	for _, p := range points {
		rows = append(rows, []any{p.ID, p.Lat, p.Lng, p.RoadClass, string(model.StatusPending), now})
	}
	n, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertIgnoreConfig{
		Table:        "sample_points",
		Columns:      []string{"id", "lat", "lng", "road_class", "status", "created_at"},
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: seed points")
	}
	return int(n), nil
}

// ClaimBatch atomically moves up to n pending points to in_progress. SKIP
// LOCKED keeps concurrent claimers from blocking on or receiving the same
// rows.
func (s *PostgresStore) ClaimBatch(ctx context.Context, n int) ([]model.SamplePoint, error) {
	if n <= 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	rows, err := s.pool.Query(ctx, preparedStatements["claim_batch"],
		string(model.StatusInProgress), now, string(model.StatusPending), n)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim batch")
	}
	defer rows.Close()

	var points []model.SamplePoint
	for rows.Next() {
		p := model.SamplePoint{Status: model.StatusInProgress, ClaimedAt: &now}
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lng, &p.RoadClass, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan claimed point")
		}
		points = append(points, p)
	}
	return points, eris.Wrap(rows.Err(), "postgres: claim rows")
}

func (s *PostgresStore) RecoverStale(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-grace)
	tag, err := s.pool.Exec(ctx,
		`UPDATE sample_points SET status = $1, claimed_at = NULL
		 WHERE status = $2 AND (claimed_at IS NULL OR claimed_at <= $3)`,
		string(model.StatusPending), string(model.StatusInProgress), cutoff,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: recover stale")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CompletePoint(ctx context.Context, attempt model.Attempt) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin complete tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, preparedStatements["insert_attempt"],
		attempt.SampleID, string(attempt.Outcome),
		textOrNil(attempt.PanoID),
		floatOrNil(attempt.PanoLat, attempt.HasPanorama()),
		floatOrNil(attempt.PanoLng, attempt.HasPanorama()),
		textOrNil(attempt.PanoDate), textOrNil(attempt.Copyright), textOrNil(attempt.Error),
		attempt.QueriedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert attempt for %s", attempt.SampleID)
	}

	tag, err := tx.Exec(ctx, preparedStatements["complete_point"],
		string(terminalStatus(attempt.Outcome)), attempt.SampleID, string(model.StatusInProgress))
	if err != nil {
		return eris.Wrapf(err, "postgres: complete point %s", attempt.SampleID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("in_progress sample not found: %s", attempt.SampleID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit complete tx")
}

func (s *PostgresStore) ResetFailed(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sample_points SET status = $1, claimed_at = NULL WHERE status = $2`,
		string(model.StatusPending), string(model.StatusFailed),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset failed")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) StatusCounts(ctx context.Context) (model.StatusCounts, error) {
	var counts model.StatusCounts
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM sample_points GROUP BY status`)
	if err != nil {
		return counts, eris.Wrap(err, "postgres: status counts")
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return counts, eris.Wrap(err, "postgres: scan status count")
		}
		applyStatusCount(&counts, model.SampleStatus(status), n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: status count rows")
}

func (s *PostgresStore) FoldPanorama(ctx context.Context, pano model.Panorama) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: begin fold tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, preparedStatements["insert_panorama"],
		pano.PanoID, pano.Lat, pano.Lng, textOrNil(pano.Date), textOrNil(pano.Copyright),
		time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert panorama %s", pano.PanoID)
	}
	isNew := tag.RowsAffected() > 0
	if !isNew {
		_, err = tx.Exec(ctx, preparedStatements["fold_duplicate"], textOrNil(pano.Date), pano.PanoID)
		if err != nil {
			return false, eris.Wrapf(err, "postgres: fold duplicate %s", pano.PanoID)
		}
	}
	return isNew, eris.Wrap(tx.Commit(ctx), "postgres: commit fold tx")
}

func (s *PostgresStore) CountPanoramas(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM panoramas`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count panoramas")
}

func (s *PostgresStore) CountFoundOutside(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT pano_id) FROM attempts WHERE outcome = $1`,
		string(model.OutcomeFoundOutside),
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count found outside")
}

func (s *PostgresStore) ListPanoramas(ctx context.Context, filter PanoramaFilter) ([]model.Panorama, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT pano_id, lat, lng, date, copyright, first_seen, sample_count
		 FROM panoramas ORDER BY first_seen, pano_id LIMIT $1 OFFSET $2`,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list panoramas")
	}
	defer rows.Close()

	var panos []model.Panorama
	for rows.Next() {
		var p model.Panorama
		var date, copyright *string
		if err := rows.Scan(&p.PanoID, &p.Lat, &p.Lng, &date, &copyright, &p.FirstSeen, &p.SampleCount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan panorama")
		}
		if date != nil {
			p.Date = *date
		}
		if copyright != nil {
			p.Copyright = *copyright
		}
		panos = append(panos, p)
	}
	return panos, eris.Wrap(rows.Err(), "postgres: panorama rows")
}

func (s *PostgresStore) CreateRun(ctx context.Context, params model.RunParams) (string, error) {
	id := uuid.New().String()
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal run params")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, params, started_at) VALUES ($1, $2, $3)`,
		id, paramsJSON, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert run")
	}
	return id, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run summary")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, finished_at = $2 WHERE id = $3`,
		summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func textOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func floatOrNil(f float64, valid bool) *float64 {
	if !valid {
		return nil
	}
	return &f
}
