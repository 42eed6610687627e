// Package catalog is a client for the TMDB catalog API: the genre taxonomy,
// the daily trending list, and the title search used for poster lookups.
package catalog

// Genre is a single entry of the catalog's movie genre taxonomy.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GenreMap maps genre ids to display names. It is rebuilt on every pipeline
// run and never persisted.
type GenreMap map[int]string

// TrendingMovie is a trending result as returned by the catalog, before
// genre names are joined in. Optional fields decode to their zero value.
type TrendingMovie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	GenreIDs    []int   `json:"genre_ids"`
}

type genreListResponse struct {
	Genres []Genre `json:"genres"`
}

// Results is a pointer so that a body without the key (an error envelope
// served with 2xx) can be told apart from an empty trending day.
type trendingResponse struct {
	Page    int              `json:"page"`
	Results *[]TrendingMovie `json:"results"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	PosterPath *string `json:"poster_path"`
}
