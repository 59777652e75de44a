package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"inkstone/api/internal/auth"
	"inkstone/api/internal/authpw"
	"inkstone/api/internal/completion"
	"inkstone/api/internal/config"
	"inkstone/api/internal/notes"
	"inkstone/api/internal/search"
	"inkstone/api/internal/store"
	"inkstone/api/internal/util"
)

// Session is an authenticated caller. Token and RefreshToken are only set on
// the responses that mint them.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// sessionStore keeps refresh sessions. Redis is the primary backend; a
// Postgres adapter serves when Redis is not configured.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// PGSessionStore adapts the Postgres refresh session tables to sessionStore.
type PGSessionStore struct {
	store *store.PostgresStore
}

func NewPGSessionStore(st *store.PostgresStore) *PGSessionStore {
	return &PGSessionStore{store: st}
}

func (p *PGSessionStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p *PGSessionStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p *PGSessionStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type userGetter interface {
	GetUserByID(ctx context.Context, id string) (store.User, error)
}

type passwordAuth interface {
	SignUp(ctx context.Context, req authpw.SignUpRequest) (store.User, error)
	SignIn(ctx context.Context, req authpw.SignInRequest) (store.User, error)
}

type noteService interface {
	Create(ctx context.Context, ownerID string, draft notes.Draft) (store.Note, error)
	List(ctx context.Context, ownerID string) ([]store.Note, error)
	ToggleCompleted(ctx context.Context, ownerID, noteID string, current bool) error
	Delete(ctx context.Context, ownerID, noteID string) error
}

type noteSubscriber interface {
	Subscribe(ctx context.Context, ownerID string) (<-chan notes.Snapshot, func())
}

type noteSearcher interface {
	Search(q search.Query) search.Response
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Service holds the application's use cases behind the HTTP surface.
type Service struct {
	cfg      config.Config
	logger   *zap.Logger
	db       pinger
	users    userGetter
	authpw   passwordAuth
	notes    noteService
	hub      noteSubscriber
	search   noteSearcher
	sessions sessionStore
	chat     completion.Client
	persona  completion.Persona
}

func New(
	cfg config.Config,
	logger *zap.Logger,
	st *store.PostgresStore,
	sessions sessionStore,
	pwAuth passwordAuth,
	noteSvc noteService,
	hub noteSubscriber,
	searchSvc noteSearcher,
	chat completion.Client,
	persona completion.Persona,
) *Service {
	return &Service{
		cfg:      cfg,
		logger:   logger,
		db:       st,
		users:    st,
		authpw:   pwAuth,
		notes:    noteSvc,
		hub:      hub,
		search:   searchSvc,
		sessions: sessions,
		chat:     chat,
		persona:  persona,
	}
}

// Ping reports database connectivity for readiness checks.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// SignUp registers an account and signs the new user straight in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, authpw.SignInRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is minted, so each refresh token works exactly once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token and resolves the current user.
// The user row is re-read so a deleted account immediately loses access.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.users.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the refresh token. The access token stays valid until its
// short expiry; there is no server-side revocation list.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) CreateNote(ctx context.Context, session Session, draft notes.Draft) (store.Note, error) {
	note, err := s.notes.Create(ctx, session.UserID, draft)
	if err != nil {
		if errors.Is(err, notes.ErrInvalidDraft) {
			return store.Note{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
		return store.Note{}, err
	}
	return note, nil
}

func (s *Service) ListNotes(ctx context.Context, session Session) ([]store.Note, error) {
	return s.notes.List(ctx, session.UserID)
}

func (s *Service) ToggleNote(ctx context.Context, session Session, noteID string, current bool) error {
	err := s.notes.ToggleCompleted(ctx, session.UserID, noteID, current)
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Note not found", nil)
	}
	return err
}

func (s *Service) DeleteNote(ctx context.Context, session Session, noteID string) error {
	err := s.notes.Delete(ctx, session.UserID, noteID)
	if errors.Is(err, store.ErrNotFound) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Note not found", nil)
	}
	return err
}

// SubscribeNotes opens a live snapshot stream scoped to the session's user.
func (s *Service) SubscribeNotes(ctx context.Context, session Session) (<-chan notes.Snapshot, func()) {
	return s.hub.Subscribe(ctx, session.UserID)
}

func (s *Service) SearchNotes(_ context.Context, session Session, text string, limit int) search.Response {
	return s.search.Search(search.Query{OwnerID: session.UserID, Text: text, Limit: limit})
}

// Chat proxies one user message to the completion backend under the
// configured persona and maps upstream failure classes onto stable statuses.
func (s *Service) Chat(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", domainError(http.StatusBadRequest, "EMPTY_MESSAGE", "Message is required", nil)
	}

	reply, err := s.chat.Complete(ctx, s.persona.Prompt, message)
	if err != nil {
		s.logger.Warn("chat: completion failed", zap.Error(err))
		switch completion.KindOf(err) {
		case completion.KindAuth:
			return "", domainError(http.StatusUnauthorized, "UPSTREAM_AUTH", "Chat backend rejected credentials", nil)
		case completion.KindRateLimited:
			return "", domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many chat requests, slow down", nil)
		case completion.KindUpstream:
			return "", domainError(http.StatusServiceUnavailable, "CHAT_UNAVAILABLE", "Chat backend unavailable", nil)
		default:
			return "", domainError(http.StatusInternalServerError, "CHAT_FAILED", "Chat request failed", nil)
		}
	}
	return reply, nil
}
