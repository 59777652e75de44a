// Package notes implements the note list domain: note operations and the
// live query hub that pushes full ordered snapshots to subscribers.
package notes

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"inkstone/api/internal/store"
)

// Snapshot is the complete, ordered note list for one owner. Err is set when
// reloading the list failed; the previous list remains the last known state.
type Snapshot struct {
	Notes []store.Note
	Err   error
}

// Lister loads the current ordered note list for an owner.
type Lister interface {
	ListNotes(ctx context.Context, ownerID string) ([]store.Note, error)
}

const changeChannel = "inkstone:notes:changed"

type subscriber struct {
	ownerID string
	ch      chan Snapshot
	closed  bool
}

// Hub fans note changes out to live subscribers. Every mutation triggers a
// reload of the owner's full list which replaces whatever a subscriber has
// not yet drained; a slow consumer only ever misses intermediate states,
// never the latest one.
type Hub struct {
	lister Lister
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool

	rdb    *redis.Client
	cancel context.CancelFunc
}

// NewHub creates a hub. rdb may be nil; when set, change notifications are
// bridged over Redis pub/sub so mutations on one instance refresh
// subscribers on another.
func NewHub(lister Lister, rdb *redis.Client, logger *zap.Logger) *Hub {
	h := &Hub{
		lister: lister,
		logger: logger,
		subs:   make(map[string]map[*subscriber]struct{}),
		rdb:    rdb,
	}
	if rdb != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		// Subscribe before returning so a publish issued right after
		// construction cannot slip past the bridge.
		pubsub := rdb.Subscribe(ctx, changeChannel)
		go h.bridgeLoop(ctx, pubsub)
	}
	return h
}

// Subscribe opens a standing query for ownerID. The returned channel carries
// an initial snapshot and then one per observed change. After cancel returns
// (or ctx is done) the channel is closed and no further snapshot is ever
// delivered on it.
func (h *Hub) Subscribe(ctx context.Context, ownerID string) (<-chan Snapshot, func()) {
	sub := &subscriber{ownerID: ownerID, ch: make(chan Snapshot, 1)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		closed := make(chan Snapshot)
		close(closed)
		return closed, func() {}
	}
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[*subscriber]struct{})
	}
	h.subs[ownerID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() { h.remove(sub) }
	stop := context.AfterFunc(ctx, cancel)

	go h.refresh(ownerID, sub)

	return sub.ch, func() {
		stop()
		cancel()
	}
}

// NotifyChanged is called after every note mutation for ownerID. With Redis
// configured the notification loops back through pub/sub, which also covers
// this instance; without it (or when the publish fails) the refresh is local.
func (h *Hub) NotifyChanged(ctx context.Context, ownerID string) {
	if h.rdb != nil {
		if err := h.rdb.Publish(ctx, changeChannel, ownerID).Err(); err == nil {
			return
		} else {
			h.logger.Warn("notes: publish change", zap.String("owner", ownerID), zap.Error(err))
		}
	}
	h.refresh(ownerID, nil)
}

// refresh reloads ownerID's list and delivers it. When only is non-nil the
// snapshot goes to that subscriber alone (initial delivery).
func (h *Hub) refresh(ownerID string, only *subscriber) {
	h.mu.Lock()
	targets := make([]*subscriber, 0, 1)
	if only != nil {
		if !only.closed {
			targets = append(targets, only)
		}
	} else {
		for sub := range h.subs[ownerID] {
			targets = append(targets, sub)
		}
	}
	h.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	list, err := h.lister.ListNotes(ctx, ownerID)
	snap := Snapshot{Notes: list, Err: err}
	if err != nil {
		h.logger.Warn("notes: reload snapshot", zap.String("owner", ownerID), zap.Error(err))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range targets {
		h.deliverLocked(sub, snap)
	}
}

// deliverLocked replaces any undrained snapshot with the latest one. Sends
// only happen while holding the lock and only to non-closed subscribers,
// which is what makes the no-delivery-after-cancel guarantee hold.
func (h *Hub) deliverLocked(sub *subscriber, snap Snapshot) {
	if sub.closed {
		return
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- snap:
	default:
	}
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
	if owners := h.subs[sub.ownerID]; owners != nil {
		delete(owners, sub)
		if len(owners) == 0 {
			delete(h.subs, sub.ownerID)
		}
	}
}

func (h *Hub) bridgeLoop(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()
	for {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.logger.Warn("notes: pubsub receive", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if m, ok := msg.(*redis.Message); ok {
			h.refresh(m.Payload, nil)
		}
	}
}

// Close tears down the bridge and all subscriptions.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, owners := range h.subs {
		for sub := range owners {
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}
		}
	}
	h.subs = make(map[string]map[*subscriber]struct{})
}
