package synccache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"minix/internal/drive"
	"minix/internal/model"
)

var (
	// ErrNotReady is returned by operations that need a loaded listing.
	ErrNotReady = errors.New("scope not loaded")

	// ErrReleased is returned once a view's last reference is released.
	ErrReleased = errors.New("scope released")

	// ErrFeedClosed is recorded when the change feed ends while the view is
	// still mounted. The listing is kept but no longer updated.
	ErrFeedClosed = errors.New("change feed closed")
)

// View is the locally held listing of one scope. All methods are safe for
// concurrent use.
type View struct {
	scope  Scope
	owner  string
	lister Lister
	logger drive.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sub    drive.Subscription

	mu          sync.Mutex
	refs        int
	state       State
	entries     []model.DriveEntry
	err         error
	gen         uint64 // fetch generation; a landing fetch must match it
	stale       bool   // an event arrived while a fetch was in flight
	version     uint64 // bumped on every change to entries
	cancelFetch context.CancelFunc
	changed     chan struct{}
	released    bool
}

func newView(ctx context.Context, scope Scope, owner string, lister Lister, logger drive.Logger) *View {
	vctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &View{
		scope:   scope,
		owner:   owner,
		lister:  lister,
		logger:  logger,
		ctx:     vctx,
		cancel:  cancel,
		changed: make(chan struct{}),
	}
}

// start subscribes and then fetches, so no change committed after the
// fetch begins can be missed.
func (v *View) start(source Source) error {
	sub, err := source.Subscribe(v.ctx, v.owner)
	if err != nil {
		v.mu.Lock()
		v.err = fmt.Errorf("subscribing to changes: %w", err)
		v.mu.Unlock()
		return v.err
	}
	v.sub = sub
	go v.consume()

	v.mu.Lock()
	v.fetchLocked()
	v.mu.Unlock()
	return nil
}

// Scope returns the listing the view holds.
func (v *View) Scope() Scope { return v.scope }

// State returns the view's current load state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Err returns the error of the last failed fetch or mutation commit.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Entries returns a copy of the current listing.
func (v *View) Entries() []model.DriveEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.entries)
}

// Changes returns a channel that is closed at the next change of state,
// entries, or error.
func (v *View) Changes() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.changed
}

// WaitReady blocks until the view is Ready, a fetch fails, or ctx is done.
func (v *View) WaitReady(ctx context.Context) error {
	for {
		v.mu.Lock()
		state, err, released, changed := v.state, v.err, v.released, v.changed
		v.mu.Unlock()

		switch {
		case released:
			return ErrReleased
		case state == Ready:
			return nil
		case state == Uninitialized && err != nil:
			return err
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Refresh discards the listing and fetches it again.
func (v *View) Refresh() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return
	}
	v.fetchLocked()
}

func (v *View) notifyLocked() {
	close(v.changed)
	v.changed = make(chan struct{})
}

// fetchLocked starts a new fetch generation, cancelling any fetch in flight.
func (v *View) fetchLocked() {
	if v.cancelFetch != nil {
		v.cancelFetch()
	}
	v.gen++
	gen := v.gen
	v.stale = false
	v.state = Loading
	fctx, cancel := context.WithCancel(v.ctx)
	v.cancelFetch = cancel
	v.notifyLocked()

	go func() {
		entries, err := v.lister.ListFolder(fctx, v.scope.FolderID)
		v.land(gen, entries, err)
	}()
}

func (v *View) land(gen uint64, entries []model.DriveEntry, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released || gen != v.gen {
		v.logger.Debug("discarding superseded fetch", "scope", v.scope.String(), "generation", gen)
		return
	}
	v.cancelFetch = nil

	if err != nil {
		v.logger.Warn("fetching scope failed", "scope", v.scope.String(), "error", err)
		v.state = Uninitialized
		v.err = err
		v.notifyLocked()
		return
	}
	if v.stale {
		v.fetchLocked()
		return
	}
	v.entries = slices.Clone(entries)
	v.state = Ready
	v.err = nil
	v.version++
	v.notifyLocked()
}

func (v *View) consume() {
	for ev := range v.sub.Events() {
		v.handle(ev)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.released {
		v.logger.Warn("change feed closed", "scope", v.scope.String())
		v.err = ErrFeedClosed
		v.notifyLocked()
	}
}

func (v *View) handle(ev drive.ChangeEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return
	}
	switch v.state {
	case Uninitialized:
		return
	case Loading:
		if v.mayConcern(ev) {
			v.stale = true
		}
		return
	}

	if v.applyLocked(ev) {
		v.version++
		v.notifyLocked()
	}
}

// mayConcern reports whether ev could change this scope's listing.
func (v *View) mayConcern(ev drive.ChangeEvent) bool {
	switch {
	case ev.Type == drive.EventResync, !ev.HasParent:
		return true
	case v.scope.Contains(ev.ParentID):
		return true
	default:
		return v.indexLocked(entryKey(ev.Table, ev.ID)) >= 0
	}
}

// applyLocked patches the listing with ev and reports whether it changed.
// Events that cannot be applied safely trigger a refetch instead.
func (v *View) applyLocked(ev drive.ChangeEvent) bool {
	key := entryKey(ev.Table, ev.ID)
	idx := v.indexLocked(key)

	switch ev.Type {
	case drive.EventResync:
		v.fetchLocked()
		return false
	case drive.EventDelete:
		if idx < 0 {
			return false
		}
		v.entries = slices.Delete(v.entries, idx, idx+1)
		return true
	case drive.EventInsert, drive.EventUpdate:
		if !ev.HasParent || ev.Entry == nil {
			v.logger.Debug("event without parent, refetching", "scope", v.scope.String(), "id", ev.ID)
			v.fetchLocked()
			return false
		}
		if !v.scope.Contains(ev.ParentID) {
			if idx < 0 {
				return false
			}
			v.entries = slices.Delete(v.entries, idx, idx+1)
			return true
		}
		if idx >= 0 {
			v.entries[idx] = *ev.Entry
		} else {
			v.entries = append(v.entries, *ev.Entry)
		}
		return true
	default:
		return false
	}
}

func (v *View) indexLocked(key string) int {
	return slices.IndexFunc(v.entries, func(e model.DriveEntry) bool { return keyOf(e) == key })
}

// release ends the view: the subscription is closed and any fetch in
// flight is cancelled and its result discarded.
func (v *View) release() {
	v.mu.Lock()
	if v.released {
		v.mu.Unlock()
		return
	}
	v.released = true
	v.cancel()
	v.notifyLocked()
	sub := v.sub
	v.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}
