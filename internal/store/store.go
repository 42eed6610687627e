// Package store persists the ranked movie snapshot and serves the dashboard's
// read-only query. The movies table holds exactly one snapshot: every write
// replaces it wholesale.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/movies"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/errors"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS movies (
    id INTEGER PRIMARY KEY,
    rank INTEGER,
    title VARCHAR(255),
    overview TEXT,
    release_date DATE,
    vote_average FLOAT,
    vote_count INTEGER,
    genres TEXT
)`

const upsertMovie = `
INSERT INTO movies (id, rank, title, overview, release_date, vote_average, vote_count, genres)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE
SET rank = EXCLUDED.rank,
    title = EXCLUDED.title,
    overview = EXCLUDED.overview,
    release_date = EXCLUDED.release_date,
    vote_average = EXCLUDED.vote_average,
    vote_count = EXCLUDED.vote_count,
    genres = EXCLUDED.genres`

// Store reads and writes the movies table.
//
// WriteSnapshot is not safe against a concurrent WriteSnapshot on the same
// database; callers serialise runs (see scheduler).
type Store struct {
	db     *database.Client
	logger *slog.Logger
}

func New(db *database.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "movie-store"),
	}
}

// EnsureSchema creates the movies table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return &apperrors.StorageError{Kind: classify(err), Op: "create table", Err: err}
	}
	return nil
}

// WriteState is the phase a snapshot write reached.
type WriteState string

const (
	StateEmpty     WriteState = "empty"
	StateDeleting  WriteState = "deleting"
	StateInserting WriteState = "inserting"
	StateCommitted WriteState = "committed"
	StateFailed    WriteState = "failed"
)

// WriteSnapshot replaces the table contents with records: it deletes every
// row, then upserts each record by id, all inside one transaction. Readers
// see either the previous snapshot or the new one.
//
// It returns the number of records applied. On failure the transaction is
// rolled back, the previous snapshot stays in place, and the error is an
// *errors.StorageError whose Applied field counts the upserts that succeeded
// before the failing one. Repeating a call with the same records converges to
// the same table. When an id appears twice in records the later one wins, so
// the table then holds fewer rows than len(records).
func (s *Store) WriteSnapshot(ctx context.Context, records []movies.Record) (int, error) {
	state := StateEmpty
	applied := 0
	total := len(records)
	start := time.Now()

	fail := func(op string, err error) error {
		prev := state
		state = StateFailed
		kind := classify(err)
		s.logger.Error("snapshot write failed",
			"phase", prev,
			"op", op,
			"kind", kind,
			"applied", applied,
			"total", total,
			"error", err,
		)
		return &apperrors.StorageError{Kind: kind, Op: op, Applied: applied, Total: total, Err: err}
	}

	var writeErr error
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		state = StateDeleting
		if _, err := tx.ExecContext(ctx, `DELETE FROM movies`); err != nil {
			writeErr = fail("delete", err)
			return writeErr
		}

		state = StateInserting
		stmt, err := tx.PrepareContext(ctx, upsertMovie)
		if err != nil {
			writeErr = fail("prepare upsert", err)
			return writeErr
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.ExecContext(ctx,
				r.ID, r.Rank, r.Title, r.Overview, nullableDate(r.ReleaseDate),
				r.VoteAverage, r.VoteCount, r.Genres,
			); err != nil {
				writeErr = fail(fmt.Sprintf("upsert id=%d rank=%d", r.ID, r.Rank), err)
				return writeErr
			}
			applied++
		}
		return nil
	})
	if err != nil {
		if writeErr == nil {
			// begin or commit failed
			writeErr = fail("transaction", err)
		}
		return applied, writeErr
	}

	state = StateCommitted
	s.logger.Info("snapshot committed",
		"state", state,
		"records", applied,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return applied, nil
}

// ListMovies runs the dashboard read contract. Rows come back in rank order
// when byRank is set and in storage order otherwise. A NULL release_date is
// returned as an empty ReleaseDate.
func (s *Store) ListMovies(ctx context.Context, byRank bool) ([]movies.Listing, error) {
	query := `SELECT title, genres, vote_average, vote_count, overview, release_date, rank FROM movies`
	if byRank {
		query += ` ORDER BY rank`
	}
	rows, err := s.db.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, &apperrors.StorageError{Kind: classify(err), Op: "list movies", Err: err}
	}
	defer rows.Close()

	listings := make([]movies.Listing, 0)
	for rows.Next() {
		var (
			title, genres, overview, releaseDate sql.NullString
			voteAverage                          sql.NullFloat64
			voteCount, rank                      sql.NullInt64
		)
		if err := rows.Scan(&title, &genres, &voteAverage, &voteCount, &overview, &releaseDate, &rank); err != nil {
			return nil, &apperrors.StorageError{Kind: apperrors.StorageDecode, Op: "scan movie", Err: err}
		}
		l := movies.Listing{
			Rank:        int(rank.Int64),
			Title:       title.String,
			Genres:      genres.String,
			VoteAverage: voteAverage.Float64,
			VoteCount:   int(voteCount.Int64),
			Overview:    overview.String,
		}
		if d, ok := parseDate(releaseDate); ok {
			l.ReleaseDate = d.Format(time.DateOnly)
			l.ReleaseYear = d.Year()
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperrors.StorageError{Kind: classify(err), Op: "list movies", Err: err}
	}
	return listings, nil
}

// Count returns the number of rows in the current snapshot.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies`).Scan(&n); err != nil {
		return 0, &apperrors.StorageError{Kind: classify(err), Op: "count movies", Err: err}
	}
	return n, nil
}

func nullableDate(d string) sql.NullString {
	if d == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: d, Valid: true}
}

// parseDate accepts the driver's rendering of a DATE column: a bare ISO date
// or an RFC 3339 timestamp.
func parseDate(v sql.NullString) (time.Time, bool) {
	if !v.Valid || len(v.String) < len(time.DateOnly) {
		return time.Time{}, false
	}
	d, err := time.Parse(time.DateOnly, v.String[:len(time.DateOnly)])
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// classify separates data problems (constraint, type, malformed date) from
// an unreachable or failing store.
func classify(err error) apperrors.StorageKind {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23":
			return apperrors.StorageConstraint
		}
		return apperrors.StorageUnreachable
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH:
			return apperrors.StorageConstraint
		}
		return apperrors.StorageUnreachable
	}
	return apperrors.StorageUnreachable
}
