package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/movie-trends/internal/movies"
	"github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-trends/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *database.Client) {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "movies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := New(db)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s, db
}

func sampleRecords() []movies.Record {
	return []movies.Record{
		{ID: 42, Rank: 1, Title: "Dune", Overview: "Spice.", ReleaseDate: "2024-02-27", VoteAverage: 8.2, VoteCount: 5000, Genres: "Science Fiction, Adventure"},
		{ID: 7, Rank: 2, Title: "Untitled", Overview: "", ReleaseDate: "", VoteAverage: 0, VoteCount: 0, Genres: ""},
		{ID: 1001, Rank: 3, Title: "A", Overview: "x", ReleaseDate: "1999-12-31", VoteAverage: 6.5, VoteCount: 3, Genres: "Action, Unknown"},
	}
}

func ids(t *testing.T, db *database.Client) []int64 {
	t.Helper()
	rows, err := db.DB.Query(`SELECT id FROM movies ORDER BY rank`)
	require.NoError(t, err)
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		out = append(out, id)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestEnsureSchemaIsRepeatable(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
}

func TestWriteSnapshotRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	records := sampleRecords()

	n, err := s.WriteSnapshot(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, len(records), n)

	listings, err := s.ListMovies(ctx, true)
	require.NoError(t, err)
	require.Len(t, listings, len(records))
	for i, r := range records {
		l := listings[i]
		assert.Equal(t, r.Rank, l.Rank)
		assert.Equal(t, r.Title, l.Title)
		assert.Equal(t, r.Genres, l.Genres)
		assert.Equal(t, r.VoteAverage, l.VoteAverage)
		assert.Equal(t, r.VoteCount, l.VoteCount)
		assert.Equal(t, r.Overview, l.Overview)
		assert.Equal(t, r.ReleaseDate, l.ReleaseDate)
	}
	assert.Equal(t, 2024, listings[0].ReleaseYear)
	assert.Zero(t, listings[1].ReleaseYear)
}

func TestWriteSnapshotIsIdempotent(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	_, err := s.WriteSnapshot(ctx, sampleRecords())
	require.NoError(t, err)
	once, err := s.ListMovies(ctx, true)
	require.NoError(t, err)
	onceIDs := ids(t, db)

	_, err = s.WriteSnapshot(ctx, sampleRecords())
	require.NoError(t, err)
	twice, err := s.ListMovies(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, onceIDs, ids(t, db))
}

func TestWriteSnapshotReplacesPreviousSnapshot(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	_, err := s.WriteSnapshot(ctx, sampleRecords())
	require.NoError(t, err)

	next := []movies.Record{
		{ID: 7, Rank: 1, Title: "Untitled", Genres: "Drama"},
		{ID: 555, Rank: 2, Title: "New", Genres: "Comedy"},
	}
	_, err = s.WriteSnapshot(ctx, next)
	require.NoError(t, err)

	assert.Equal(t, []int64{7, 555}, ids(t, db))
	listings, err := s.ListMovies(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, "Drama", listings[0].Genres)
}

func TestWriteEmptySnapshotEmptiesTable(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.WriteSnapshot(ctx, sampleRecords())
	require.NoError(t, err)

	n, err := s.WriteSnapshot(ctx, []movies.Record{})
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDuplicateIDInOneSnapshotUpserts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	n, err := s.WriteSnapshot(ctx, []movies.Record{
		{ID: 1, Rank: 1, Title: "first"},
		{ID: 1, Rank: 2, Title: "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	listings, err := s.ListMovies(ctx, true)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "second", listings[0].Title)
	assert.Equal(t, 2, listings[0].Rank)
}

func TestFailedWriteRollsBackAndReportsProgress(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	_, err := s.WriteSnapshot(ctx, sampleRecords())
	require.NoError(t, err)
	before := ids(t, db)

	_, err = db.DB.Exec(`CREATE TRIGGER reject_666 BEFORE INSERT ON movies
		WHEN NEW.id = 666 BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	applied, err := s.WriteSnapshot(ctx, []movies.Record{
		{ID: 1, Rank: 1, Title: "ok"},
		{ID: 2, Rank: 2, Title: "ok"},
		{ID: 666, Rank: 3, Title: "bad"},
		{ID: 4, Rank: 4, Title: "never"},
	})
	require.ErrorIs(t, err, apperrors.ErrStorage)
	assert.Equal(t, 2, applied)

	var se *apperrors.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, apperrors.StorageConstraint, se.Kind)
	assert.Equal(t, 2, se.Applied)
	assert.Equal(t, 4, se.Total)

	assert.Equal(t, before, ids(t, db), "previous snapshot must survive a failed write")
}

func TestWriteToClosedStoreIsUnreachable(t *testing.T) {
	s, db := newTestStore(t)
	require.NoError(t, db.Close())

	_, err := s.WriteSnapshot(context.Background(), sampleRecords())
	var se *apperrors.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, apperrors.StorageUnreachable, se.Kind)
	assert.Zero(t, se.Applied)

	_, err = s.ListMovies(context.Background(), false)
	require.ErrorIs(t, err, apperrors.ErrStorage)
}

func TestListMoviesUnreadableRowIsDecodeError(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	_, err := db.DB.ExecContext(ctx,
		`INSERT INTO movies (id, rank, title, vote_count) VALUES (1, 1, 'Broken', 'many')`)
	require.NoError(t, err)

	_, err = s.ListMovies(ctx, true)
	require.ErrorIs(t, err, apperrors.ErrStorage)
	var se *apperrors.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, apperrors.StorageDecode, se.Kind)
	assert.Equal(t, "scan movie", se.Op)
}
