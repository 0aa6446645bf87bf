package drive

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"minix/internal/model"
)

const bytesPerGB = 1 << 30

// CategoryStats is the storage used by one category.
type CategoryStats struct {
	Category Category
	Count    int
	Bytes    int64
	GB       float64
	Percent  int
}

// StorageInfo is the owner's overall usage against the configured capacity.
type StorageInfo struct {
	UsedGB  float64
	TotalGB float64
	Percent int
}

// FolderCard summarizes a top-level folder.
type FolderCard struct {
	Folder          *model.Folder
	Items           int // direct files plus direct subfolders
	LastUpdate      time.Time
	LastUpdateLabel string
}

// RecentFile is a file of the recent feed with a URL it can be fetched from.
// URL is empty when no URL could be produced.
type RecentFile struct {
	File *model.File
	URL  string
}

// Dashboard holds the derived statistics for one owner.
type Dashboard struct {
	Categories []CategoryStats // in Categories() order
	Total      CategoryStats
	Storage    StorageInfo
	Folders    []FolderCard
	Recent     []RecentFile
}

// BytesToGB converts bytes to GiB rounded to one decimal place.
func BytesToGB(b int64) float64 {
	return math.Round(float64(b)/bytesPerGB*10) / 10
}

// UsagePercent returns gb as a whole percentage of capacityGB, clamped to
// [0, 100]. A non-positive capacity yields 0.
func UsagePercent(gb, capacityGB float64) int {
	if capacityGB <= 0 {
		return 0
	}
	p := int(math.Round(gb / capacityGB * 100))
	return max(0, min(100, p))
}

// RelativeLabel renders the time elapsed from t to now in whole days.
func RelativeLabel(t, now time.Time) string {
	// Whole days are floored, so anything under 24h old is "Today" rather
	// than rounding up to "Yesterday".
	days := int(now.Sub(t) / (24 * time.Hour))
	switch {
	case days <= 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days <= 30:
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// Dashboard computes storage statistics, top-level folder cards and the
// recent-file feed for the authenticated owner. Expired pastes are not counted.
func (s *DriveService) Dashboard(ctx context.Context) (*Dashboard, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	files, err := s.store.ListAllFiles(ctx, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	folders, err := s.store.ListAllFolders(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	d := &Dashboard{}
	d.Categories, d.Total = categoryStats(files, s.opts.CapacityGB)
	d.Storage = StorageInfo{
		UsedGB:  d.Total.GB,
		TotalGB: s.opts.CapacityGB,
		Percent: d.Total.Percent,
	}
	d.Folders = folderCards(folders, files, now)

	d.Recent, err = s.recentFiles(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// RecentFiles returns the most recently created visible files of the owner,
// newest first, each with an access URL.
func (s *DriveService) RecentFiles(ctx context.Context) ([]RecentFile, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.recentFiles(ctx, user.ID, s.clock.Now())
}

func (s *DriveService) recentFiles(ctx context.Context, ownerID string, now time.Time) ([]RecentFile, error) {
	files, err := s.store.RecentFiles(ctx, ownerID, s.opts.RecentLimit, now)
	if err != nil {
		return nil, fmt.Errorf("listing recent files: %w", err)
	}
	recent := make([]RecentFile, 0, len(files))
	for _, f := range files {
		url, err := s.accessURL(ctx, f, now)
		if err != nil {
			s.logger.Warn("resolving access url failed", "file", f.ID, "error", err)
		}
		recent = append(recent, RecentFile{File: f, URL: url})
	}
	return recent, nil
}

func categoryStats(files []*model.File, capacityGB float64) ([]CategoryStats, CategoryStats) {
	byCat := make(map[Category]*CategoryStats)
	for _, c := range Categories() {
		byCat[c] = &CategoryStats{Category: c}
	}
	total := CategoryStats{}
	for _, f := range files {
		size := max(f.Size, 0)
		c := byCat[Classify(f.ContentType)]
		c.Count++
		c.Bytes += size
		total.Count++
		total.Bytes += size
	}

	stats := make([]CategoryStats, 0, len(byCat))
	for _, c := range Categories() {
		cs := byCat[c]
		cs.GB = BytesToGB(cs.Bytes)
		cs.Percent = UsagePercent(cs.GB, capacityGB)
		stats = append(stats, *cs)
	}
	total.GB = BytesToGB(total.Bytes)
	total.Percent = UsagePercent(total.GB, capacityGB)
	return stats, total
}

func folderCards(folders []*model.Folder, files []*model.File, now time.Time) []FolderCard {
	items := make(map[string]int)
	latest := make(map[string]time.Time)
	for _, f := range folders {
		if f.ParentID != nil {
			items[*f.ParentID]++
		}
	}
	for _, f := range files {
		if f.FolderID == nil {
			continue
		}
		items[*f.FolderID]++
		if f.CreatedAt.After(latest[*f.FolderID]) {
			latest[*f.FolderID] = f.CreatedAt
		}
	}

	var cards []FolderCard
	for _, f := range folders {
		if f.ParentID != nil {
			continue
		}
		last := f.CreatedAt
		if t, ok := latest[f.ID]; ok && t.After(last) {
			last = t
		}
		cards = append(cards, FolderCard{
			Folder:          f,
			Items:           items[f.ID],
			LastUpdate:      last,
			LastUpdateLabel: RelativeLabel(last, now),
		})
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Folder.Name < cards[j].Folder.Name
	})
	return cards
}
