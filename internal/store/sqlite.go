// Package store keeps evaluation runs in SQLite so threshold sweeps from
// different detectors and datasets can be compared later.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/fitset/internal/evaluate"
	"github.com/ironsheep/fitset/internal/logging"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrRunNotFound reports an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run describes one stored evaluation.
type Run struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	ImageDir   string    `json:"image_dir"`
	Detector   string    `json:"detector"`
	Thresholds []float64 `json:"thresholds"`
	Images     int       `json:"images"`
}

// Store is a SQLite evaluation store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the database at path and applies pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, logger: logging.OrDiscard(logger), now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores result and records under a new run id.
func (s *Store) SaveRun(ctx context.Context, imageDir, detector string, result evaluate.Result, records []evaluate.Record) (Run, error) {
	thresholds, err := json.Marshal(result.Thresholds)
	if err != nil {
		return Run{}, fmt.Errorf("failed to encode thresholds: %w", err)
	}

	run := Run{
		ID:         uuid.New().String(),
		CreatedAt:  s.now().UTC(),
		ImageDir:   imageDir,
		Detector:   detector,
		Thresholds: result.Thresholds,
		Images:     len(records),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, image_dir, detector, thresholds, images) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.Format(time.RFC3339Nano), run.ImageDir, run.Detector, string(thresholds), run.Images,
	); err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}

	for _, r := range result.Rows() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO results (run_id, threshold, tpr, tnr, true_positive, true_negative, unfit, fit)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, r.Threshold, r.TPR, r.TNR, r.TruePositive, r.TrueNegative, r.Unfit, r.Fit,
		); err != nil {
			return Run{}, fmt.Errorf("failed to insert result for threshold %g: %w", r.Threshold, err)
		}
	}

	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (run_id, image_file, true_label, total_boxes, normal_boxes, error)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, rec.ImageFile, rec.TrueLabel.String(), rec.TotalBoxes, rec.NormalBoxes, rec.Error,
		); err != nil {
			return Run{}, fmt.Errorf("failed to insert record %s: %w", rec.ImageFile, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Info("saved evaluation run", "run", run.ID, "thresholds", len(run.Thresholds), "images", run.Images)
	return run, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, image_dir, detector, thresholds, images FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns the run with id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, image_dir, detector, thresholds, images FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// LoadResult rebuilds the evaluation result of a run.
func (s *Store) LoadResult(ctx context.Context, id string) (evaluate.Result, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return evaluate.Result{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT threshold, tpr, tnr, true_positive, true_negative, unfit, fit
		 FROM results WHERE run_id = ? ORDER BY threshold`, id)
	if err != nil {
		return evaluate.Result{}, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	result := evaluate.Result{Thresholds: run.Thresholds, Rates: make(map[float64]evaluate.Rates)}
	for rows.Next() {
		var r evaluate.Rates
		if err := rows.Scan(&r.Threshold, &r.TPR, &r.TNR, &r.TruePositive, &r.TrueNegative, &r.Unfit, &r.Fit); err != nil {
			return evaluate.Result{}, fmt.Errorf("failed to scan result: %w", err)
		}
		result.Rates[r.Threshold] = r
	}
	if err := rows.Err(); err != nil {
		return evaluate.Result{}, fmt.Errorf("failed to iterate results: %w", err)
	}
	return result, nil
}

// LoadRecords returns the per-image records of a run in image order.
// Per-threshold predictions are not stored.
func (s *Store) LoadRecords(ctx context.Context, id string) ([]evaluate.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT image_file, true_label, total_boxes, normal_boxes, error
		 FROM records WHERE run_id = ? ORDER BY image_file`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []evaluate.Record
	for rows.Next() {
		var rec evaluate.Record
		var label string
		if err := rows.Scan(&rec.ImageFile, &label, &rec.TotalBoxes, &rec.NormalBoxes, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if label == evaluate.Fit.String() {
			rec.TrueLabel = evaluate.Fit
		} else {
			rec.TrueLabel = evaluate.Unfit
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// DeleteRun removes a run with its results and records.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run        Run
		created    string
		thresholds string
	)
	if err := row.Scan(&run.ID, &created, &run.ImageDir, &run.Detector, &thresholds, &run.Images); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Run{}, fmt.Errorf("invalid created_at %q: %w", created, err)
	}
	run.CreatedAt = t

	if err := json.Unmarshal([]byte(thresholds), &run.Thresholds); err != nil {
		return Run{}, fmt.Errorf("invalid thresholds %q: %w", thresholds, err)
	}
	return run, nil
}
