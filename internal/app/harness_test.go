package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"inkstone/api/internal/authpw"
	"inkstone/api/internal/completion"
	"inkstone/api/internal/config"
	"inkstone/api/internal/notes"
	"inkstone/api/internal/search"
	"inkstone/api/internal/store"
)

// fakeUsers backs both the password auth service and session resolution.
type fakeUsers struct {
	mu      sync.Mutex
	byID    map[string]store.User
	byEmail map[string]store.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]store.User{}, byEmail: map[string]store.User{}}
}

func (f *fakeUsers) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[user.Email]; ok {
		return authpw.ErrEmailTaken
	}
	f.byID[user.ID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byEmail[email]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

// fakeSessions is an in-memory refresh session store.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]sessionEntry
}

type sessionEntry struct {
	user      store.User
	expiresAt time.Time
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]sessionEntry{}}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = sessionEntry{user: user, expiresAt: expiresAt}
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.sessions[tokenHash]
	if !ok || time.Now().After(entry.expiresAt) {
		return store.User{}, store.ErrNotFound
	}
	return entry.user, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

// memNotes implements the note store and the hub's lister.
type memNotes struct {
	mu      sync.Mutex
	byOwner map[string][]store.Note
}

func newMemNotes() *memNotes {
	return &memNotes{byOwner: map[string][]store.Note{}}
}

func (m *memNotes) InsertNote(_ context.Context, note store.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byOwner[note.OwnerID] = append(m.byOwner[note.OwnerID], note)
	return nil
}

func (m *memNotes) ListNotes(_ context.Context, ownerID string) ([]store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]store.Note(nil), m.byOwner[ownerID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memNotes) GetNote(_ context.Context, ownerID, noteID string) (store.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.byOwner[ownerID] {
		if n.ID == noteID {
			return n, nil
		}
	}
	return store.Note{}, store.ErrNotFound
}

func (m *memNotes) SetNoteCompleted(_ context.Context, ownerID, noteID string, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.byOwner[ownerID] {
		if n.ID == noteID {
			m.byOwner[ownerID][i].Completed = completed
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memNotes) DeleteNote(_ context.Context, ownerID, noteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byOwner[ownerID]
	for i, n := range list {
		if n.ID == noteID {
			m.byOwner[ownerID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// chatFunc adapts a function to the completion client interface.
type chatFunc func(ctx context.Context, systemPrompt, userMessage string) (string, error)

func (f chatFunc) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	return f(ctx, systemPrompt, userMessage)
}

// fakeSearcher returns a canned response.
type fakeSearcher struct {
	last search.Query
	resp search.Response
}

func (f *fakeSearcher) Search(q search.Query) search.Response {
	f.last = q
	resp := f.resp
	resp.Query = q.Text
	if resp.Results == nil {
		resp.Results = []search.Result{}
	}
	return resp
}

// fakePinger reports database readiness.
type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

type harness struct {
	service  *Service
	server   *HTTPServer
	users    *fakeUsers
	sessions *fakeSessions
	notes    *memNotes
	hub      *notes.Hub
	searcher *fakeSearcher
	pinger   *fakePinger
	chat     chatFunc
}

func newHarness() *harness {
	cfg := config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		CORSOrigin: "*",
	}
	logger := zap.NewNop()

	users := newFakeUsers()
	sessions := newFakeSessions()
	noteStore := newMemNotes()
	hub := notes.NewHub(noteStore, nil, logger)
	noteSvc := notes.NewService(noteStore, hub, nil, logger)
	searcher := &fakeSearcher{}
	pinger := &fakePinger{}

	h := &harness{
		users:    users,
		sessions: sessions,
		notes:    noteStore,
		hub:      hub,
		searcher: searcher,
		pinger:   pinger,
	}
	h.chat = func(ctx context.Context, systemPrompt, userMessage string) (string, error) {
		return "echo: " + userMessage, nil
	}

	persona, _ := completion.LookupPersona("assistant")
	h.service = &Service{
		cfg:      cfg,
		logger:   logger,
		db:       pinger,
		users:    users,
		authpw:   authpw.NewService(users),
		notes:    noteSvc,
		hub:      hub,
		search:   searcher,
		sessions: sessions,
		chat: chatFunc(func(ctx context.Context, systemPrompt, userMessage string) (string, error) {
			return h.chat(ctx, systemPrompt, userMessage)
		}),
		persona: persona,
	}
	h.server = NewHTTPServer(h.service, cfg.CORSOrigin, logger, nil)
	return h
}

func (h *harness) close() {
	h.hub.Close()
}
