// Package sqlite archives processed buckets in a SQLite database. Buckets are
// keyed by their start time, so reprocessing a period replaces its rows.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/ccn-data-etl/internal/domain"
)

const timeLayout = time.RFC3339

// Store is the archive. It implements pipeline.Loader.
type Store struct {
	dbPath string
	logger *slog.Logger

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewStore creates a Store. The database and schema are created on first use.
func NewStore(dbPath string, logger *slog.Logger) *Store {
	return &Store{dbPath: dbPath, logger: logger}
}

func (s *Store) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening database: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.db = db
	})
	return s.db, s.dbErr
}

// Load upserts every record of ds in one transaction.
func (s *Store) Load(ctx context.Context, ds domain.Dataset) (err error) {
	if len(ds.Records) == 0 {
		return nil
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			rollbackWithError(tx, &err)
		}
	}()

	first := ds.Records[0].Provenance
	if _, err = tx.ExecContext(ctx, upsertRunSQL,
		ds.RunID, first.ProcessedAt.UTC().Format(timeLayout), first.ParamDate, len(ds.Records)); err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	bucketStmt, err := tx.PrepareContext(ctx, upsertBucketSQL)
	if err != nil {
		return fmt.Errorf("preparing bucket statement: %w", err)
	}
	defer closeWithError(bucketStmt, &err)

	deleteStmt, err := tx.PrepareContext(ctx, deleteSetpointsSQL)
	if err != nil {
		return fmt.Errorf("preparing delete statement: %w", err)
	}
	defer closeWithError(deleteStmt, &err)

	setpointStmt, err := tx.PrepareContext(ctx, insertSetpointSQL)
	if err != nil {
		return fmt.Errorf("preparing setpoint statement: %w", err)
	}
	defer closeWithError(setpointStmt, &err)

	for _, r := range ds.Records {
		start := r.Start.UTC().Format(timeLayout)
		m := r.Means
		if _, err = bucketStmt.ExecContext(ctx,
			start,
			int64(r.Width/time.Second),
			ds.RunID,
			r.Observed,
			r.Expected,
			nullable(r.Completeness),
			nullable(r.UnreliableFraction),
			nullable(m.TInlet),
			nullable(m.T1),
			nullable(m.T2),
			nullable(m.T3),
			nullable(m.TSample),
			nullable(m.QSample),
			nullable(m.QSheath),
			nullable(m.PSample),
			nullable(r.Fit.Slope),
			nullable(r.Fit.Intercept),
			r.Flags.Bits(),
			r.FlagCode,
			nullable(r.Provenance.Slope),
			nullable(r.Provenance.Intercept),
		); err != nil {
			return fmt.Errorf("upserting bucket %s: %w", start, err)
		}

		if _, err = deleteStmt.ExecContext(ctx, start); err != nil {
			return fmt.Errorf("clearing setpoints %s: %w", start, err)
		}
		for _, sp := range r.Setpoints {
			st := r.Stat(sp)
			if _, err = setpointStmt.ExecContext(ctx,
				start,
				float64(sp),
				nullable(st.N),
				nullable(st.SS),
				nullable(st.Gradient),
				nullable(st.T1),
				nullable(st.T2),
				st.Count,
				nullableFrom(r.Corrected, sp),
				nullableFrom(r.CorrectedSTP, sp),
			); err != nil {
				return fmt.Errorf("inserting setpoint %s@%s: %w", sp, start, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	s.logger.Info("archive updated", "path", s.dbPath, "buckets", len(ds.Records))
	return nil
}

// StoredSetpoint is the archived family of one setpoint.
type StoredSetpoint struct {
	N            float64
	Count        int
	CorrectedSTP float64
}

// StoredBucket is an archived bucket summary. Missing values read back as NaN.
type StoredBucket struct {
	Start        time.Time
	RunID        string
	Completeness float64
	Flags        string
	FlagCode     int
	Setpoints    map[domain.Setpoint]StoredSetpoint
}

// Buckets returns archived buckets with from <= start < to, in order.
func (s *Store) Buckets(ctx context.Context, from, to time.Time) (out []StoredBucket, err error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectBucketsSQL, from.UTC().Format(timeLayout), to.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("querying buckets: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			b            StoredBucket
			start        string
			completeness sql.NullFloat64
		)
		if err = rows.Scan(&start, &b.RunID, &completeness, &b.Flags, &b.FlagCode); err != nil {
			return nil, fmt.Errorf("scanning bucket: %w", err)
		}
		if b.Start, err = time.Parse(timeLayout, start); err != nil {
			return nil, fmt.Errorf("parsing bucket start %q: %w", start, err)
		}
		b.Completeness = fromNullable(completeness)
		out = append(out, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating buckets: %w", err)
	}

	for i := range out {
		if out[i].Setpoints, err = s.setpoints(ctx, db, out[i].Start); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) setpoints(ctx context.Context, db *sql.DB, start time.Time) (out map[domain.Setpoint]StoredSetpoint, err error) {
	rows, err := db.QueryContext(ctx, selectSetpointsSQL, start.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("querying setpoints: %w", err)
	}
	defer closeWithError(rows, &err)

	out = make(map[domain.Setpoint]StoredSetpoint)
	for rows.Next() {
		var (
			sp     float64
			st     StoredSetpoint
			n, stp sql.NullFloat64
		)
		if err = rows.Scan(&sp, &n, &st.Count, &stp); err != nil {
			return nil, fmt.Errorf("scanning setpoint: %w", err)
		}
		st.N = fromNullable(n)
		st.CorrectedSTP = fromNullable(stp)
		out[domain.Setpoint(sp)] = st
	}
	return out, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullableFrom(m map[domain.Setpoint]float64, sp domain.Setpoint) sql.NullFloat64 {
	v, ok := m[sp]
	if !ok {
		return sql.NullFloat64{}
	}
	return nullable(v)
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if rErr := rb.Rollback(); rErr != nil && *err == nil {
		*err = rErr
	}
}
