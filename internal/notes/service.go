package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inkstone/api/internal/store"
)

// ErrInvalidDraft marks a submission whose required fields are missing or
// whose category is outside the fixed set.
var ErrInvalidDraft = errors.New("invalid note draft")

var allowedCategories = map[string]struct{}{
	"important": {},
	"urgent":    {},
	"normal":    {},
}

// Draft mirrors the four user-supplied form fields of a future note.
type Draft struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Date     string `json:"date"`
	Content  string `json:"content"`
}

func (d Draft) validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidDraft)
	}
	if strings.TrimSpace(d.Date) == "" {
		return fmt.Errorf("%w: date is required", ErrInvalidDraft)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidDraft)
	}
	if _, ok := allowedCategories[d.Category]; !ok {
		return fmt.Errorf("%w: category must be important, urgent or normal", ErrInvalidDraft)
	}
	return nil
}

// Store is the subset of the data store the note service needs.
type Store interface {
	InsertNote(ctx context.Context, note store.Note) error
	ListNotes(ctx context.Context, ownerID string) ([]store.Note, error)
	GetNote(ctx context.Context, ownerID, noteID string) (store.Note, error)
	SetNoteCompleted(ctx context.Context, ownerID, noteID string, completed bool) error
	DeleteNote(ctx context.Context, ownerID, noteID string) error
}

// Indexer receives fire-and-forget index updates; a nil Indexer disables
// search indexing.
type Indexer interface {
	IndexNote(note store.Note)
	RemoveNote(noteID string)
}

// Service carries out note operations and wakes the hub after each mutation.
type Service struct {
	store  Store
	hub    *Hub
	index  Indexer
	logger *zap.Logger
	now    func() time.Time
}

func NewService(st Store, hub *Hub, index Indexer, logger *zap.Logger) *Service {
	return &Service{
		store:  st,
		hub:    hub,
		index:  index,
		logger: logger,
		now:    time.Now,
	}
}

// Create validates the draft, stamps the creation time and inserts the note.
// The user-supplied fields are preserved verbatim.
func (s *Service) Create(ctx context.Context, ownerID string, draft Draft) (store.Note, error) {
	if err := draft.validate(); err != nil {
		return store.Note{}, err
	}

	note := store.Note{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     draft.Title,
		Category:  draft.Category,
		Date:      draft.Date,
		Content:   draft.Content,
		Completed: false,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertNote(ctx, note); err != nil {
		return store.Note{}, err
	}

	if s.index != nil {
		s.index.IndexNote(note)
	}
	s.hub.NotifyChanged(ctx, ownerID)
	return note, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]store.Note, error) {
	return s.store.ListNotes(ctx, ownerID)
}

// ToggleCompleted flips the completed flag relative to the value the caller
// last saw. There is no optimistic update anywhere; the live subscription is
// the sole source of rendered truth.
func (s *Service) ToggleCompleted(ctx context.Context, ownerID, noteID string, current bool) error {
	if err := s.store.SetNoteCompleted(ctx, ownerID, noteID, !current); err != nil {
		return err
	}
	if s.index != nil {
		if note, err := s.store.GetNote(ctx, ownerID, noteID); err == nil {
			s.index.IndexNote(note)
		}
	}
	s.hub.NotifyChanged(ctx, ownerID)
	return nil
}

func (s *Service) Delete(ctx context.Context, ownerID, noteID string) error {
	if err := s.store.DeleteNote(ctx, ownerID, noteID); err != nil {
		return err
	}
	if s.index != nil {
		s.index.RemoveNote(noteID)
	}
	s.hub.NotifyChanged(ctx, ownerID)
	return nil
}
