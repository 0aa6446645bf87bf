package drive

import (
	"context"
	"fmt"
	"time"

	"minix/internal/model"
)

const (
	// urlRefreshSkew is the remaining lifetime below which a cached signed
	// URL is replaced.
	urlRefreshSkew = time.Minute

	MinDownloadTTL     = 10 * time.Second
	MaxDownloadTTL     = time.Hour
	DefaultDownloadTTL = 60 * time.Second
)

// ClampDownloadTTL bounds a requested download URL lifetime.
// A non-positive ttl selects DefaultDownloadTTL.
func ClampDownloadTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultDownloadTTL
	}
	return max(MinDownloadTTL, min(MaxDownloadTTL, ttl))
}

// accessURL returns a usable URL for f, reusing the URL cached on the row
// while it is still fresh and persisting any newly minted one.
func (s *DriveService) accessURL(ctx context.Context, f *model.File, now time.Time) (string, error) {
	if f.StoragePath == "" {
		return f.AccessURL, nil
	}

	if s.objects.IsPublic() {
		url := s.objects.PublicURL(f.StoragePath)
		if f.AccessURL != url || f.AccessURLExpiresAt != nil {
			s.persistAccessURL(ctx, f, url, nil)
		}
		return url, nil
	}

	if f.AccessURL != "" && f.AccessURLExpiresAt != nil && f.AccessURLExpiresAt.Sub(now) > urlRefreshSkew {
		return f.AccessURL, nil
	}

	url, err := s.objects.SignedURL(ctx, f.StoragePath, s.opts.SignedURLTTL)
	if err != nil {
		return "", fmt.Errorf("signing url for %s: %w", f.StoragePath, err)
	}
	expires := now.Add(s.opts.SignedURLTTL)
	s.persistAccessURL(ctx, f, url, &expires)
	return url, nil
}

func (s *DriveService) persistAccessURL(ctx context.Context, f *model.File, url string, expiresAt *time.Time) {
	if err := s.store.UpdateFileAccessURL(ctx, f.OwnerID, f.ID, url, expiresAt); err != nil {
		s.logger.Warn("caching access url failed", "file", f.ID, "error", err)
		return
	}
	f.AccessURL = url
	f.AccessURLExpiresAt = expiresAt
}

// visibleFile returns the owner's file, treating expired pastes as absent.
func (s *DriveService) visibleFile(ctx context.Context, ownerID, id string) (*model.File, error) {
	f, err := s.store.FindFile(ctx, ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if f == nil || f.Expired(s.clock.Now()) {
		return nil, fmt.Errorf("file %s: %w", id, ErrNotFoundOrForbidden)
	}
	return f, nil
}

// CreateFileURL returns a signed download URL for a file. The lifetime is
// clamped with ClampDownloadTTL.
func (s *DriveService) CreateFileURL(ctx context.Context, id string, ttl time.Duration) (string, time.Time, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	f, err := s.visibleFile(ctx, user.ID, id)
	if err != nil {
		return "", time.Time{}, err
	}
	ttl = ClampDownloadTTL(ttl)
	url, err := s.objects.SignedURL(ctx, f.StoragePath, ttl)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing download url: %w", err)
	}
	return url, s.clock.Now().Add(ttl), nil
}
