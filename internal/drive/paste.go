package drive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"minix/internal/model"
)

const (
	defaultPasteTitle  = "Untitled Paste"
	defaultPasteSyntax = "plaintext"
	pasteContentType   = "text/plain"

	// DefaultPasteListLimit bounds ListPastes when no limit is given.
	DefaultPasteListLimit = 10
)

// PasteInput describes a new paste.
type PasteInput struct {
	Title     string
	Content   string
	Syntax    string
	FolderID  *string
	ExpiresAt *time.Time
}

// PasteUpdate lists the paste fields to change. Nil fields are left alone.
type PasteUpdate struct {
	Title       *string
	Content     *string
	Syntax      *string
	ExpiresAt   *time.Time
	ClearExpiry bool
	FolderID    *string
	MoveToRoot  bool
}

func pastePath(id string) string {
	return "pastes/" + id + ".txt"
}

// CreatePaste records a paste and stores its content. The row is written
// first; if storing the content fails the row is deleted again.
func (s *DriveService) CreatePaste(ctx context.Context, in PasteInput) (*model.Paste, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if in.Content == "" {
		return nil, validationError("content is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = defaultPasteTitle
	}
	syntax := strings.TrimSpace(in.Syntax)
	if syntax == "" {
		syntax = defaultPasteSyntax
	}
	now := s.clock.Now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, validationError("expiry must be in the future")
	}
	if in.FolderID != nil {
		if _, err := s.ownedFolder(ctx, user.ID, *in.FolderID); err != nil {
			return nil, err
		}
	}

	id := s.idgen.New()
	f := &model.File{
		ID:          id,
		Name:        title,
		OwnerID:     user.ID,
		FolderID:    in.FolderID,
		Size:        int64(len(in.Content)),
		ContentType: pasteContentType,
		StoragePath: pastePath(id),
		Kind:        model.KindPaste,
		Syntax:      syntax,
		ExpiresAt:   in.ExpiresAt,
		CreatedAt:   now,
	}
	if err := s.store.InsertFiles(ctx, []*model.File{f}); err != nil {
		return nil, fmt.Errorf("creating paste: %w", err)
	}

	if err := s.objects.Put(ctx, f.StoragePath, strings.NewReader(in.Content), f.Size, pasteContentType); err != nil {
		if delErr := s.store.DeleteEntries(ctx, user.ID, []string{id}, nil); delErr != nil {
			s.logger.Error("removing paste row after failed store", "id", id, "error", delErr)
		}
		return nil, fmt.Errorf("storing paste content: %w", err)
	}

	s.logger.Info("paste created", "id", id, "title", title)
	s.publish(ctx, fileEvent(EventInsert, f, now))
	return &model.Paste{File: *f, Content: in.Content}, nil
}

// ownedPaste returns a visible paste of the owner or ErrNotFoundOrForbidden.
func (s *DriveService) ownedPaste(ctx context.Context, ownerID, id string) (*model.File, error) {
	f, err := s.visibleFile(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !f.IsPaste() {
		return nil, fmt.Errorf("paste %s: %w", id, ErrNotFoundOrForbidden)
	}
	return f, nil
}

// GetPaste returns a paste with its content. Expired pastes are not found.
func (s *DriveService) GetPaste(ctx context.Context, id string) (*model.Paste, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.ownedPaste(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.objects.Download(ctx, f.StoragePath, &buf); err != nil {
		return nil, fmt.Errorf("reading paste content: %w", err)
	}
	return &model.Paste{File: *f, Content: buf.String()}, nil
}

// UpdatePaste applies the given changes to a paste. New content is stored
// before the row is updated; if the row update fails the previous content is
// put back.
func (s *DriveService) UpdatePaste(ctx context.Context, id string, upd PasteUpdate) (*model.File, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.ownedPaste(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			title = defaultPasteTitle
		}
		f.Name = title
	}
	if upd.Syntax != nil {
		syntax := strings.TrimSpace(*upd.Syntax)
		if syntax == "" {
			syntax = defaultPasteSyntax
		}
		f.Syntax = syntax
	}
	switch {
	case upd.ClearExpiry:
		f.ExpiresAt = nil
	case upd.ExpiresAt != nil:
		if !upd.ExpiresAt.After(now) {
			return nil, validationError("expiry must be in the future")
		}
		f.ExpiresAt = upd.ExpiresAt
	}
	switch {
	case upd.MoveToRoot:
		f.FolderID = nil
	case upd.FolderID != nil:
		if _, err := s.ownedFolder(ctx, user.ID, *upd.FolderID); err != nil {
			return nil, err
		}
		f.FolderID = upd.FolderID
	}
	// The previous content is kept so a failed row update can put it back.
	var previous *bytes.Buffer
	if upd.Content != nil {
		if *upd.Content == "" {
			return nil, validationError("content is required")
		}
		previous = &bytes.Buffer{}
		if err := s.objects.Download(ctx, f.StoragePath, previous); err != nil {
			s.logger.Warn("reading previous paste content failed", "id", id, "error", err)
			previous = nil
		}
		size := int64(len(*upd.Content))
		if err := s.objects.Put(ctx, f.StoragePath, strings.NewReader(*upd.Content), size, pasteContentType); err != nil {
			return nil, fmt.Errorf("storing paste content: %w", err)
		}
		f.Size = size
	}

	if err := s.store.UpdateFile(ctx, f); err != nil {
		if previous != nil {
			if rerr := s.objects.Put(ctx, f.StoragePath, previous, int64(previous.Len()), pasteContentType); rerr != nil {
				s.logger.Error("restoring paste content failed", "id", id, "error", rerr)
			}
		}
		return nil, fmt.Errorf("updating paste: %w", err)
	}

	s.logger.Info("paste updated", "id", id)
	s.publish(ctx, fileEvent(EventUpdate, f, now))
	return f, nil
}

// DeletePaste removes a paste. The row is deleted first; a failure to remove
// the content afterwards is only logged.
func (s *DriveService) DeletePaste(ctx context.Context, id string) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	f, err := s.store.FindFile(ctx, user.ID, id)
	if err != nil {
		return fmt.Errorf("finding paste: %w", err)
	}
	if f == nil || !f.IsPaste() {
		return fmt.Errorf("paste %s: %w", id, ErrNotFoundOrForbidden)
	}

	if err := s.store.DeleteEntries(ctx, user.ID, []string{id}, nil); err != nil {
		return fmt.Errorf("deleting paste: %w", err)
	}
	for p, rmErr := range s.objects.Remove(ctx, []string{f.StoragePath}) {
		s.logger.Warn("removing paste content failed", "path", p, "error", rmErr)
	}

	s.logger.Info("paste deleted", "id", id)
	s.publish(ctx, fileEvent(EventDelete, f, s.clock.Now()))
	return nil
}

// ListPastes returns visible pastes directly inside folderID, or at the root
// when folderID is nil, newest first.
func (s *DriveService) ListPastes(ctx context.Context, folderID *string, limit int) ([]*model.File, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultPasteListLimit
	}
	pastes, err := s.store.ListPastes(ctx, user.ID, folderID, limit, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("listing pastes: %w", err)
	}
	return pastes, nil
}

// SharePaste creates a long-lived signed link to a paste's content and
// stores it on the paste.
func (s *DriveService) SharePaste(ctx context.Context, id string) (string, time.Time, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	f, err := s.ownedPaste(ctx, user.ID, id)
	if err != nil {
		return "", time.Time{}, err
	}

	url, err := s.objects.SignedURL(ctx, f.StoragePath, s.opts.ShareTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing share url: %w", err)
	}
	expires := s.clock.Now().Add(s.opts.ShareTTL)
	if err := s.store.UpdateFileAccessURL(ctx, user.ID, id, url, &expires); err != nil {
		return "", time.Time{}, fmt.Errorf("saving share url: %w", err)
	}
	return url, expires, nil
}
