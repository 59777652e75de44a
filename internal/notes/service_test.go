package notes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inkstone/api/internal/store"
)

// memStore implements Store in memory with ListNotes ordered by CreatedAt
// descending, matching the live query contract.
type memStore struct {
	mu        sync.Mutex
	notes     map[string][]store.Note
	insertErr error
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{notes: make(map[string][]store.Note)}
}

func (m *memStore) InsertNote(_ context.Context, note store.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.notes[note.OwnerID] = append(m.notes[note.OwnerID], note)
	return nil
}

func (m *memStore) ListNotes(_ context.Context, ownerID string) ([]store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]store.Note(nil), m.notes[ownerID]...)
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			if list[j].CreatedAt.After(list[i].CreatedAt) {
				list[i], list[j] = list[j], list[i]
			}
		}
	}
	return list, nil
}

func (m *memStore) GetNote(_ context.Context, ownerID, noteID string) (store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, note := range m.notes[ownerID] {
		if note.ID == noteID {
			return note, nil
		}
	}
	return store.Note{}, store.ErrNotFound
}

func (m *memStore) SetNoteCompleted(_ context.Context, ownerID, noteID string, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, note := range m.notes[ownerID] {
		if note.ID == noteID {
			m.notes[ownerID][i].Completed = completed
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) DeleteNote(_ context.Context, ownerID, noteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	list := m.notes[ownerID]
	for i, note := range list {
		if note.ID == noteID {
			m.notes[ownerID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func newTestNoteService(t *testing.T) (*Service, *memStore, *Hub) {
	t.Helper()
	ms := newMemStore()
	hub := NewHub(ms, nil, zap.NewNop())
	t.Cleanup(hub.Close)
	return NewService(ms, hub, nil, zap.NewNop()), ms, hub
}

func validDraft() Draft {
	return Draft{Title: "Buy ink", Category: "normal", Date: "2026-03-14", Content: "black, two bottles"}
}

func TestCreatePreservesFieldsAndStampsCreation(t *testing.T) {
	svc, ms, _ := newTestNoteService(t)

	before := time.Now()
	note, err := svc.Create(context.Background(), "user-1", validDraft())
	after := time.Now()
	require.NoError(t, err)

	require.NotEmpty(t, note.ID)
	require.Equal(t, "Buy ink", note.Title)
	require.Equal(t, "normal", note.Category)
	require.Equal(t, "2026-03-14", note.Date)
	require.Equal(t, "black, two bottles", note.Content)
	require.False(t, note.Completed)
	require.False(t, note.CreatedAt.Before(before.UTC().Add(-time.Second)))
	require.False(t, note.CreatedAt.After(after.UTC().Add(time.Second)))

	// Exactly one document was created.
	list, err := ms.ListNotes(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreateRejectsInvalidDrafts(t *testing.T) {
	svc, ms, _ := newTestNoteService(t)

	cases := map[string]Draft{
		"missing title":    {Category: "normal", Date: "2026-03-14", Content: "x"},
		"missing date":     {Title: "t", Category: "normal", Content: "x"},
		"missing content":  {Title: "t", Category: "normal", Date: "2026-03-14"},
		"unknown category": {Title: "t", Category: "someday", Date: "2026-03-14", Content: "x"},
		"empty category":   {Title: "t", Date: "2026-03-14", Content: "x"},
	}
	for name, draft := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "user-1", draft)
			require.ErrorIs(t, err, ErrInvalidDraft)
		})
	}

	list, err := ms.ListNotes(context.Background(), "user-1")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestDoubleToggleRestoresOriginalValue(t *testing.T) {
	svc, _, _ := newTestNoteService(t)

	note, err := svc.Create(context.Background(), "user-1", validDraft())
	require.NoError(t, err)
	require.False(t, note.Completed)

	require.NoError(t, svc.ToggleCompleted(context.Background(), "user-1", note.ID, false))
	list, err := svc.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, list[0].Completed)

	require.NoError(t, svc.ToggleCompleted(context.Background(), "user-1", note.ID, true))
	list, err = svc.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.False(t, list[0].Completed)
}

func TestToggleUnknownNoteIsNotFound(t *testing.T) {
	svc, _, _ := newTestNoteService(t)
	err := svc.ToggleCompleted(context.Background(), "user-1", "ghost", false)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteRemovesNoteFromSubsequentSnapshots(t *testing.T) {
	svc, _, hub := newTestNoteService(t)

	note, err := svc.Create(context.Background(), "user-1", validDraft())
	require.NoError(t, err)

	ch, cancel := hub.Subscribe(context.Background(), "user-1")
	defer cancel()
	snap := recvSnapshot(t, ch)
	require.Len(t, snap.Notes, 1)

	require.NoError(t, svc.Delete(context.Background(), "user-1", note.ID))

	snap = recvSnapshot(t, ch)
	require.Empty(t, snap.Notes)
}

func TestMutationsAreScopedToOwner(t *testing.T) {
	svc, _, _ := newTestNoteService(t)

	note, err := svc.Create(context.Background(), "user-1", validDraft())
	require.NoError(t, err)

	// Another user can neither toggle nor delete it.
	require.ErrorIs(t, svc.ToggleCompleted(context.Background(), "user-2", note.ID, false), store.ErrNotFound)
	require.ErrorIs(t, svc.Delete(context.Background(), "user-2", note.ID), store.ErrNotFound)

	list, err := svc.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreateFailureDoesNotNotify(t *testing.T) {
	svc, ms, hub := newTestNoteService(t)

	ch, cancel := hub.Subscribe(context.Background(), "user-1")
	defer cancel()
	recvSnapshot(t, ch)

	ms.insertErr = errors.New("store down")
	_, err := svc.Create(context.Background(), "user-1", validDraft())
	require.Error(t, err)

	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot after failed create: %+v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}
