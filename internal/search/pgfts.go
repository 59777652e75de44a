package search

import (
	"context"
	"fmt"
	"strings"

	"inkstone/api/internal/store"
)

// PgFTS searches notes straight from Postgres. It is the fallback engine
// when Meilisearch is not configured or unreachable.
type PgFTS struct {
	store *store.PostgresStore
}

func NewPgFTS(st *store.PostgresStore) *PgFTS {
	return &PgFTS{store: st}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches the query against note titles and contents, scoped to the
// owner. Snippets are plain substrings; highlighting is a Meilisearch nicety.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	notes, err := p.store.SearchNotes(context.Background(), q.OwnerID, q.Text, q.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}

	results := make([]Result, 0, len(notes))
	for _, n := range notes {
		results = append(results, Result{
			ID:       n.ID,
			Title:    n.Title,
			Snippet:  snippet(n.Content),
			Category: n.Category,
			Date:     n.Date,
		})
	}
	return results, len(results), nil
}

// LoadAllRecords returns every note for full reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]NoteRecord, error) {
	rows, err := p.store.DB().QueryContext(ctx, `
		SELECT id, owner_id, title, category, note_date, content, completed, created_at
		FROM notes
	`)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close()

	records := make([]NoteRecord, 0)
	for rows.Next() {
		var n store.Note
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Category, &n.Date, &n.Content, &n.Completed, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		records = append(records, recordFromNote(n))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return records, nil
}

func snippet(content string) string {
	content = strings.TrimSpace(content)
	const maxLen = 160
	if len(content) <= maxLen {
		return content
	}
	cut := content[:maxLen]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
