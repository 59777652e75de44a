// Package search provides full-text search over notes. Meilisearch is the
// primary engine; Postgres serves as the fallback when it is absent or down.
package search

import "inkstone/api/internal/store"

// Result is a single search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Category string `json:"category"`
	Date     string `json:"date"`
}

// Query describes a search request. OwnerID is mandatory: results never
// cross user boundaries.
type Query struct {
	OwnerID string
	Text    string
	Limit   int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// NoteRecord is the shape pushed into the search index.
type NoteRecord struct {
	ID        string `json:"id"`
	OwnerID   string `json:"ownerId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Category  string `json:"category"`
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
	CreatedAt int64  `json:"createdAt"`
}

func recordFromNote(n store.Note) NoteRecord {
	return NoteRecord{
		ID:        n.ID,
		OwnerID:   n.OwnerID,
		Title:     n.Title,
		Content:   n.Content,
		Category:  n.Category,
		Date:      n.Date,
		Completed: n.Completed,
		CreatedAt: n.CreatedAt.Unix(),
	}
}
