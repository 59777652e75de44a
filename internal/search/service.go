package search

import (
	"context"

	"go.uber.org/zap"

	"inkstone/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres. It also satisfies the note service's Indexer interface, so every
// note mutation keeps the index current.
type Service struct {
	meili  *Meili
	pgfts  *PgFTS
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger *zap.Logger) *Service {
	return &Service{meili: meili, pgfts: pgfts, logger: logger}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("search: meilisearch error, falling back to postgres", zap.Error(err))
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.logger.Error("search: postgres fallback failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexNote pushes one note into Meilisearch, fire and forget.
func (s *Service) IndexNote(note store.Note) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	rec := recordFromNote(note)
	go func() {
		if err := s.meili.IndexNote(rec); err != nil {
			s.logger.Warn("search: index note", zap.String("note", rec.ID), zap.Error(err))
		}
	}()
}

// RemoveNote removes one note from Meilisearch, fire and forget.
func (s *Service) RemoveNote(noteID string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.RemoveNote(noteID); err != nil {
			s.logger.Warn("search: remove note", zap.String("note", noteID), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG reads every note from Postgres and pushes the lot into
// Meilisearch. Run at startup when the engine is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn("search: reindex load failed", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}
	if err := s.meili.IndexNotes(records); err != nil {
		s.logger.Warn("search: reindex failed", zap.Error(err))
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
