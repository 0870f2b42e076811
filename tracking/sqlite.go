package tracking

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tabexp-labs/tabexp/pkg/errors"
)

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the run database at path and applies
// pending migrations. Use ":memory:" for an in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path)
	if path == ":memory:" {
		dsn = ":memory:?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open run database")
	}
	if path == ":memory:" {
		// The pool must not spawn a second connection: every in-memory
		// connection is a separate empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping run database")
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func generateID() string {
	return uuid.New().String()
}

// Open creates a new run row in the open state and returns its handle.
func (s *SQLiteStore) Open(name string, tags map[string]string) (*Run, error) {
	run := &Run{
		id:    generateID(),
		name:  name,
		state: RunOpen,
		store: s,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, name, status, started_at) VALUES (?, ?, ?, ?)`,
		run.id, name, StatusOpen, time.Now().UTC(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create run")
	}
	for key, value := range tags {
		if _, err := tx.Exec(
			`INSERT INTO run_tags (run_id, key, value) VALUES (?, ?, ?)`,
			run.id, key, value,
		); err != nil {
			return nil, errors.Wrap(err, "failed to insert tag")
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit run")
	}

	return run, nil
}

func (s *SQLiteStore) logParams(runID string, params map[string]interface{}) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for key, value := range params {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO run_params (run_id, key, value) VALUES (?, ?, ?)`,
			runID, key, fmt.Sprint(value),
		); err != nil {
			return errors.Wrap(err, "failed to insert param")
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit params")
}

func (s *SQLiteStore) logMetric(runID, name string, step int, value float64) error {
	_, err := s.db.Exec(
		`INSERT INTO run_metrics (run_id, name, step, value, logged_at) VALUES (?, ?, ?, ?, ?)`,
		runID, name, step, value, time.Now().UTC(),
	)
	return errors.Wrap(err, "failed to insert metric")
}

func (s *SQLiteStore) logArtifact(runID, name string, data []byte) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO run_artifacts (run_id, name, data, created_at) VALUES (?, ?, ?, ?)`,
		runID, name, data, time.Now().UTC(),
	)
	return errors.Wrap(err, "failed to insert artifact")
}

func (s *SQLiteStore) seal(runID string, status RunStatus, errMsg string) error {
	var errPtr *string
	if errMsg != "" {
		errPtr = &errMsg
	}

	result, err := s.db.Exec(
		`UPDATE runs SET status = ?, error = ?, sealed_at = ? WHERE id = ? AND status = ?`,
		status, errPtr, time.Now().UTC(), runID, StatusOpen,
	)
	if err != nil {
		return errors.Wrap(err, "failed to seal run")
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		var existing string
		scanErr := s.db.QueryRow(`SELECT status FROM runs WHERE id = ?`, runID).Scan(&existing)
		if scanErr == sql.ErrNoRows {
			return errors.Newf("run not found: %s", runID)
		}
		if scanErr != nil {
			return errors.Wrap(scanErr, "failed to seal run")
		}
		return errors.Wrapf(errors.ErrRunSealed, "run %s", runID)
	}
	return nil
}

// Get returns one run with its tags, params, metric curves, and
// artifact names.
func (s *SQLiteStore) Get(id string) (*RunRecord, error) {
	record := &RunRecord{ID: id}
	var errMsg sql.NullString
	var sealedAt sql.NullTime

	err := s.db.QueryRow(
		`SELECT name, status, error, started_at, sealed_at FROM runs WHERE id = ?`,
		id,
	).Scan(&record.Name, &record.Status, &errMsg, &record.StartedAt, &sealedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Newf("run not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get run")
	}
	if errMsg.Valid {
		record.Error = errMsg.String
	}
	if sealedAt.Valid {
		record.SealedAt = &sealedAt.Time
	}

	if record.Tags, err = s.loadKV(`SELECT key, value FROM run_tags WHERE run_id = ?`, id); err != nil {
		return nil, err
	}
	if record.Params, err = s.loadKV(`SELECT key, value FROM run_params WHERE run_id = ?`, id); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT name, step, value, logged_at FROM run_metrics WHERE run_id = ? ORDER BY name, step, id`,
		id,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get metrics")
	}
	defer rows.Close()
	for rows.Next() {
		var p MetricPoint
		if err := rows.Scan(&p.Name, &p.Step, &p.Value, &p.LoggedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan metric")
		}
		record.Metrics = append(record.Metrics, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read metrics")
	}

	names, err := s.db.Query(`SELECT name FROM run_artifacts WHERE run_id = ? ORDER BY name`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get artifacts")
	}
	defer names.Close()
	for names.Next() {
		var name string
		if err := names.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan artifact name")
		}
		record.Artifacts = append(record.Artifacts, name)
	}
	return record, names.Err()
}

func (s *SQLiteStore) loadKV(query, runID string) (map[string]string, error) {
	rows, err := s.db.Query(query, runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query key/value rows")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrap(err, "failed to scan key/value row")
		}
		out[k] = v
	}
	return out, rows.Err()
}

// List returns every run, most recent first. Records carry the run row
// and tags; use Get for params, metrics, and artifacts.
func (s *SQLiteStore) List() ([]*RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, name, status, error, started_at, sealed_at FROM runs ORDER BY started_at DESC, id`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var records []*RunRecord
	for rows.Next() {
		record := &RunRecord{}
		var errMsg sql.NullString
		var sealedAt sql.NullTime
		if err := rows.Scan(&record.ID, &record.Name, &record.Status, &errMsg, &record.StartedAt, &sealedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		if errMsg.Valid {
			record.Error = errMsg.String
		}
		if sealedAt.Valid {
			record.SealedAt = &sealedAt.Time
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read runs")
	}

	for _, record := range records {
		if record.Tags, err = s.loadKV(`SELECT key, value FROM run_tags WHERE run_id = ?`, record.ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// LoadArtifact returns the named blob logged under a run.
func (s *SQLiteStore) LoadArtifact(runID, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(
		`SELECT data FROM run_artifacts WHERE run_id = ? AND name = ?`,
		runID, name,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, errors.Newf("artifact not found: %s/%s", runID, name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load artifact")
	}
	return data, nil
}

var _ Store = (*SQLiteStore)(nil)
