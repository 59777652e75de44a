// Package notelist holds the session-scoped controller behind the note board:
// the live note list, the form draft and the delete confirmation, all driven
// by discrete events (auth changes, snapshot pushes, user actions).
package notelist

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"inkstone/api/internal/notes"
	"inkstone/api/internal/store"
)

// Session is the controller's read-only reflection of the auth session; only
// the user identifier is used, to scope the subscription and every write.
type Session struct {
	UserID   string
	UserName string
}

// Subscriber opens standing note queries. *notes.Hub satisfies this.
type Subscriber interface {
	Subscribe(ctx context.Context, ownerID string) (<-chan notes.Snapshot, func())
}

// Operations issues note mutations. *notes.Service satisfies this.
type Operations interface {
	Create(ctx context.Context, ownerID string, draft notes.Draft) (store.Note, error)
	ToggleCompleted(ctx context.Context, ownerID, noteID string, current bool) error
	Delete(ctx context.Context, ownerID, noteID string) error
}

// Alerter surfaces blocking, user-visible failure messages.
type Alerter interface {
	Alert(message string)
}

// AlertFunc adapts a function to the Alerter interface.
type AlertFunc func(string)

func (f AlertFunc) Alert(message string) { f(message) }

// DeleteRequest is the transient target of a pending delete confirmation.
type DeleteRequest struct {
	NoteID string `json:"noteId"`
	Title  string `json:"title"`
}

// State is a copy of the controller's renderable state.
type State struct {
	Session       *Session         `json:"-"`
	Notes         []store.Note     `json:"notes"`
	Loading       bool             `json:"loading"`
	Draft         notes.Draft      `json:"draft"`
	PendingDelete *DeleteRequest   `json:"pendingDelete,omitempty"`
}

// Controller owns the note board state for one viewer. All mutation happens
// under one mutex in response to discrete events; an epoch counter makes
// sure a snapshot that arrives after sign-out or an identity change is never
// applied.
type Controller struct {
	ops    Operations
	source Subscriber
	alert  Alerter
	logger *zap.Logger

	mu            sync.Mutex
	session       *Session
	notes         []store.Note
	loading       bool
	draft         notes.Draft
	pendingDelete *DeleteRequest
	epoch         int
	unsubscribe   func()
	onChange      func(State)
}

func New(ops Operations, source Subscriber, alert Alerter, logger *zap.Logger) *Controller {
	if alert == nil {
		alert = AlertFunc(func(string) {})
	}
	return &Controller{ops: ops, source: source, alert: alert, logger: logger}
}

// SetOnChange registers a callback invoked with a state copy after every
// state transition. Must be set before OnAuthChange.
func (c *Controller) SetOnChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// OnAuthChange reacts to a session change. A nil session clears the list and
// stops the active subscription; a present session (re)opens a subscription
// scoped to that user. Either way the previous subscription's snapshots are
// dead: the epoch moves on and late arrivals are discarded.
func (c *Controller) OnAuthChange(session *Session) {
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	if c.unsubscribe != nil {
		unsub := c.unsubscribe
		c.unsubscribe = nil
		defer unsub()
	}
	c.session = session
	c.pendingDelete = nil
	if session == nil {
		c.notes = nil
		c.loading = false
		c.mu.Unlock()
		c.notifyChange()
		return
	}
	c.loading = true
	c.mu.Unlock()
	c.notifyChange()

	ch, cancel := c.source.Subscribe(context.Background(), session.UserID)

	c.mu.Lock()
	if c.epoch != epoch {
		// Torn down again while we were subscribing.
		c.mu.Unlock()
		cancel()
		return
	}
	c.unsubscribe = cancel
	c.mu.Unlock()

	go c.consume(epoch, ch)
}

func (c *Controller) consume(epoch int, ch <-chan notes.Snapshot) {
	for snap := range ch {
		if snap.Err != nil {
			c.applySnapshotError(epoch, snap.Err)
			continue
		}
		c.applySnapshot(epoch, snap.Notes)
	}
}

// applySnapshot replaces the whole list with the pushed result set. Empty
// snapshots are valid; the view renders its empty-state marker.
func (c *Controller) applySnapshot(epoch int, records []store.Note) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.notes = records
	c.loading = false
	c.mu.Unlock()
	c.notifyChange()
}

// applySnapshotError surfaces the failure and clears the loading flag; the
// list keeps its last known value.
func (c *Controller) applySnapshotError(epoch int, err error) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.loading = false
	c.mu.Unlock()
	c.logger.Warn("notelist: subscription error", zap.Error(err))
	c.alert.Alert("Error listening for note updates")
	c.notifyChange()
}

// SetDraft mirrors the form fields into the controller.
func (c *Controller) SetDraft(draft notes.Draft) {
	c.mu.Lock()
	c.draft = draft
	c.mu.Unlock()
	c.notifyChange()
}

// SubmitForm turns the current draft into a create. On success the draft is
// reset; on failure the draft stays intact so the user can retry.
func (c *Controller) SubmitForm(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	draft := c.draft
	c.mu.Unlock()

	if session == nil {
		c.alert.Alert("Please sign in first")
		return nil
	}

	if _, err := c.ops.Create(ctx, session.UserID, draft); err != nil {
		c.logger.Warn("notelist: create note", zap.Error(err))
		c.alert.Alert("Error saving note, please try again later")
		return err
	}

	c.mu.Lock()
	c.draft = notes.Draft{}
	c.mu.Unlock()
	c.notifyChange()
	return nil
}

// ToggleCompleted flips a note's completed flag. There is no optimistic local
// update: the rendered value only moves when the subscription pushes the new
// snapshot.
func (c *Controller) ToggleCompleted(ctx context.Context, noteID string, current bool) error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return nil
	}

	if err := c.ops.ToggleCompleted(ctx, session.UserID, noteID, current); err != nil {
		c.logger.Warn("notelist: toggle note", zap.String("note", noteID), zap.Error(err))
		c.alert.Alert("Error updating note status")
		return err
	}
	return nil
}

// RequestDelete opens the delete confirmation for one note.
func (c *Controller) RequestDelete(noteID, title string) {
	c.mu.Lock()
	c.pendingDelete = &DeleteRequest{NoteID: noteID, Title: title}
	c.mu.Unlock()
	c.notifyChange()
}

// CancelDelete closes the confirmation without deleting.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	c.pendingDelete = nil
	c.mu.Unlock()
	c.notifyChange()
}

// ConfirmDelete issues the delete for the confirmed note. On failure the
// confirmation stays open.
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	pending := c.pendingDelete
	c.mu.Unlock()
	if session == nil || pending == nil {
		return nil
	}

	if err := c.ops.Delete(ctx, session.UserID, pending.NoteID); err != nil {
		c.logger.Warn("notelist: delete note", zap.String("note", pending.NoteID), zap.Error(err))
		c.alert.Alert("Error deleting note")
		return err
	}

	c.mu.Lock()
	c.pendingDelete = nil
	c.mu.Unlock()
	c.notifyChange()
	return nil
}

// State returns a copy of the current renderable state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	state := State{
		Session: c.session,
		Notes:   append([]store.Note(nil), c.notes...),
		Loading: c.loading,
		Draft:   c.draft,
	}
	if c.pendingDelete != nil {
		pd := *c.pendingDelete
		state.PendingDelete = &pd
	}
	return state
}

func (c *Controller) notifyChange() {
	c.mu.Lock()
	fn := c.onChange
	state := c.stateLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// Close tears the controller down; equivalent to the session going away.
func (c *Controller) Close() {
	c.OnAuthChange(nil)
}
