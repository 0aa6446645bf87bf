package drive

import (
	"context"
	"fmt"
	"time"

	"minix/internal/model"
)

// Options tunes the DriveService. Zero fields take the defaults of DefaultOptions.
type Options struct {
	// BatchSize bounds the number of ids sent in one membership query.
	BatchSize int
	// RecentLimit bounds the recent-file feed.
	RecentLimit int
	// CapacityGB is the storage quota used for dashboard percentages.
	CapacityGB float64
	// SignedURLTTL is the lifetime of signed URLs cached on file rows.
	SignedURLTTL time.Duration
	// ShareTTL is the lifetime of paste share links.
	ShareTTL time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		BatchSize:    100,
		RecentLimit:  5,
		CapacityGB:   25,
		SignedURLTTL: time.Hour,
		ShareTTL:     7 * 24 * time.Hour,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = d.RecentLimit
	}
	if o.SignedURLTTL <= 0 {
		o.SignedURLTTL = d.SignedURLTTL
	}
	if o.ShareTTL <= 0 {
		o.ShareTTL = d.ShareTTL
	}
	// CapacityGB is left as configured: a non-positive capacity yields 0%.
	return o
}

// DriveService is the orchestration layer that coordinates the relational
// store, the object store and the change feed to perform drive operations on
// behalf of the authenticated owner.
type DriveService struct {
	store     Store
	objects   ObjectStore
	publisher Publisher
	auth      Authenticator
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	opts      Options
}

// NewDriveService creates a new DriveService with the provided dependencies.
// A nil publisher discards events and a nil authenticator reads the user from
// the request context.
func NewDriveService(store Store, objects ObjectStore, publisher Publisher, auth Authenticator, logger Logger, clock Clock, idgen IDGenerator, opts Options) *DriveService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if auth == nil {
		auth = ContextAuthenticator{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	return &DriveService{
		store:     store,
		objects:   objects,
		publisher: publisher,
		auth:      auth,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		opts:      opts.withDefaults(),
	}
}

// Options returns the effective service options.
func (s *DriveService) Options() Options {
	return s.opts
}

// currentUser resolves the authenticated user or fails with ErrUnauthenticated.
func (s *DriveService) currentUser(ctx context.Context) (*model.User, error) {
	u, err := s.auth.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if u == nil || u.ID == "" {
		return nil, ErrUnauthenticated
	}
	return u, nil
}

// History returns the most recent operations from the operation log.
func (s *DriveService) History(ctx context.Context, limit int) ([]*model.Operation, error) {
	if limit <= 0 {
		limit = 50
	}
	ops, err := s.store.ListOperations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// chunks splits ids into consecutive slices of at most n elements.
func chunks(ids []string, n int) [][]string {
	if n <= 0 {
		n = len(ids)
	}
	var out [][]string
	for len(ids) > 0 {
		end := min(n, len(ids))
		out = append(out, ids[:end])
		ids = ids[end:]
	}
	return out
}

// dedupe returns ids without duplicates or empty strings, keeping first occurrences.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
