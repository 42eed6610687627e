// Package movies holds the ranked movie record produced by a pipeline run,
// the join that builds it from catalog data, and the event announcing a
// committed snapshot.
package movies

import "time"

// UnknownGenre is rendered for genre ids missing from the taxonomy.
const UnknownGenre = "Unknown"

// UntitledPlaceholder replaces an empty catalog title.
const UntitledPlaceholder = "No title"

// Record is one row of the stored snapshot. ReleaseDate is an ISO date or
// empty when the catalog did not provide one (stored as NULL).
type Record struct {
	ID          int64   `json:"id"`
	Rank        int     `json:"rank"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date,omitempty"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	Genres      string  `json:"genres"`
}

// Listing is the dashboard's view of a stored row.
type Listing struct {
	Rank        int     `json:"rank"`
	Title       string  `json:"title"`
	Genres      string  `json:"genres"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date,omitempty"`
	ReleaseYear int     `json:"release_year,omitempty"`
	PosterURL   string  `json:"poster_url,omitempty"`
}

// SnapshotCommitted is published after a snapshot write commits.
type SnapshotCommitted struct {
	RunID       string    `json:"run_id"`
	Count       int       `json:"count"`
	CommittedAt time.Time `json:"committed_at"`
}
