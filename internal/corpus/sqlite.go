package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/ppiankov/tactimerge/internal/model"
	"github.com/ppiankov/tactimerge/internal/vecmath"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS corpus_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS match_report (
	id          TEXT PRIMARY KEY,
	team        TEXT NOT NULL,
	competition TEXT NOT NULL DEFAULT '',
	era         TEXT NOT NULL,
	era_from    INTEGER NOT NULL,
	era_to      INTEGER NOT NULL,
	year        INTEGER NOT NULL,
	year_last   INTEGER NOT NULL DEFAULT 0,
	document    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_match_report_team_year ON match_report(team, year);
CREATE TABLE IF NOT EXISTS report_embedding (
	report_id TEXT PRIMARY KEY REFERENCES match_report(id) ON DELETE CASCADE,
	dims      INTEGER NOT NULL,
	vector    BLOB NOT NULL
);
`

// SQLiteStore is a file-backed Store. Vectors are little-endian float32 BLOBs and
// similarity is computed in Go over the rows that pass the SQL pre-filter.
type SQLiteStore struct {
	db   *sql.DB
	meta Meta
}

// OpenSQLite opens or creates the corpus at path and verifies its embedding space.
func OpenSQLite(ctx context.Context, path string, meta Meta) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if meta.Metric == "" {
		meta.Metric = MetricCosine
	}
	if meta.Metric != MetricCosine {
		return nil, errors.Errorf("unsupported metric %q", meta.Metric)
	}
	if meta.Dimensions <= 0 {
		return nil, errors.Errorf("invalid dimensions %d", meta.Dimensions)
	}

	// synchronous(FULL) makes a committed transaction durable before Put returns.
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open corpus at %s", path)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db, meta: meta}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return errors.Wrap(err, "failed to create corpus schema")
	}

	if err := s.addYearLast(ctx); err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM corpus_meta`)
	if err != nil {
		return errors.Wrap(err, "failed to read corpus metadata")
	}
	stored := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			_ = rows.Close()
			return errors.Wrap(err, "failed to scan corpus metadata")
		}
		stored[k] = v
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "failed to read corpus metadata")
	}

	if len(stored) == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO corpus_meta (key, value) VALUES ('dimensions', ?), ('metric', ?), ('embedder', ?)`,
			strconv.Itoa(s.meta.Dimensions), s.meta.Metric, s.meta.Embedder)
		return errors.Wrap(err, "failed to write corpus metadata")
	}

	dims, _ := strconv.Atoi(stored["dimensions"])
	existing := Meta{Dimensions: dims, Metric: stored["metric"], Embedder: stored["embedder"]}
	return existing.Check(s.meta)
}

// addYearLast upgrades corpora created before reports carried a year span.
func (s *SQLiteStore) addYearLast(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('match_report') WHERE name = 'year_last'`).Scan(&n)
	if err != nil {
		return errors.Wrap(err, "failed to inspect corpus schema")
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE match_report ADD COLUMN year_last INTEGER NOT NULL DEFAULT 0`); err != nil {
		return errors.Wrap(err, "failed to add year_last column")
	}
	_, err = s.db.ExecContext(ctx, `UPDATE match_report SET year_last = year`)
	return errors.Wrap(err, "failed to backfill year_last")
}

// Meta returns the store's embedding space.
func (s *SQLiteStore) Meta() Meta { return s.meta }

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, report model.MatchReport, rec model.EmbeddingRecord) error {
	return s.write(ctx, report, rec, false)
}

// Upsert implements Store.
func (s *SQLiteStore) Upsert(ctx context.Context, report model.MatchReport, rec model.EmbeddingRecord) error {
	return s.write(ctx, report, rec, true)
}

func (s *SQLiteStore) write(ctx context.Context, report model.MatchReport, rec model.EmbeddingRecord, replace bool) error {
	if err := validate(s.meta, report, rec); err != nil {
		return err
	}
	doc, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	first, last := report.Years()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if !replace {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM match_report WHERE id = ?`, report.ID).Scan(&one)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", model.ErrDuplicateID, report.ID)
		case !errors.Is(err, sql.ErrNoRows):
			return errors.Wrap(err, "failed to check report id")
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO match_report (id, team, competition, era, era_from, era_to, year, year_last, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			team = excluded.team,
			competition = excluded.competition,
			era = excluded.era,
			era_from = excluded.era_from,
			era_to = excluded.era_to,
			year = excluded.year,
			year_last = excluded.year_last,
			document = excluded.document`,
		report.ID, report.Team, report.Competition, report.Era, report.EraFrom, report.EraTo, first, last, string(doc),
	); err != nil {
		return errors.Wrap(err, "failed to write report")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO report_embedding (report_id, dims, vector) VALUES (?, ?, ?)
		ON CONFLICT(report_id) DO UPDATE SET dims = excluded.dims, vector = excluded.vector`,
		report.ID, len(rec.Vector), vecmath.Encode(rec.Vector),
	); err != nil {
		return errors.Wrap(err, "failed to write embedding")
	}

	return errors.Wrap(tx.Commit(), "failed to commit report")
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.MatchReport, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `
		SELECT r.document FROM match_report r
		JOIN report_embedding e ON e.report_id = r.id
		WHERE r.id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MatchReport{}, fmt.Errorf("%w: report %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.MatchReport{}, errors.Wrap(err, "failed to get report")
	}
	var report model.MatchReport
	if err := json.Unmarshal([]byte(doc), &report); err != nil {
		return model.MatchReport{}, errors.Wrapf(err, "failed to decode report %s", id)
	}
	return report, nil
}

// Query implements Store. Filters become the SQL WHERE clause, so ranking only
// ever sees candidates that already match.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, filters Filters, limit int) ([]Hit, error) {
	if len(vector) != s.meta.Dimensions {
		return nil, fmt.Errorf("%w: query has %d, store has %d", model.ErrDimensionMismatch, len(vector), s.meta.Dimensions)
	}
	if limit <= 0 {
		return []Hit{}, nil
	}

	where, args := sqliteWhere(filters)
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.document, e.vector FROM match_report r
		JOIN report_embedding e ON e.report_id = r.id`+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query corpus")
	}
	defer func() { _ = rows.Close() }()

	hits := []Hit{}
	for rows.Next() {
		var id, doc string
		var blob []byte
		if err := rows.Scan(&id, &doc, &blob); err != nil {
			return nil, errors.Wrap(err, "failed to scan report")
		}
		vec, err := vecmath.Decode(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode embedding of %s", id)
		}
		var report model.MatchReport
		if err := json.Unmarshal([]byte(doc), &report); err != nil {
			return nil, errors.Wrapf(err, "failed to decode report %s", id)
		}
		hits = append(hits, Hit{Report: report, Score: vecmath.Cosine(vector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate corpus")
	}

	SortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func sqliteWhere(f Filters) (string, []any) {
	var clauses []string
	var args []any
	if f.Team != "" {
		clauses = append(clauses, "r.team = ?")
		args = append(args, f.Team)
	}
	if f.Competition != "" {
		clauses = append(clauses, "r.competition = ?")
		args = append(args, f.Competition)
	}
	if f.FromYear != 0 {
		clauses = append(clauses, "r.year_last >= ?")
		args = append(args, f.FromYear)
	}
	if f.ToYear != 0 {
		clauses = append(clauses, "r.year <= ?")
		args = append(args, f.ToYear)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM match_report r
		JOIN report_embedding e ON e.report_id = r.id`).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count reports")
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
