package drive

import "strings"

// Category groups files by content type for storage statistics.
type Category string

const (
	CategoryDocuments Category = "documents"
	CategoryImages    Category = "images"
	CategoryVideos    Category = "videos"
	CategoryOthers    Category = "others"
)

// categoryTable is matched in order; the first category with a matching
// content-type prefix wins.
var categoryTable = []struct {
	category Category
	prefixes []string
}{
	{CategoryDocuments, []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.oasis.opendocument.text",
		"application/rtf",
		"text/plain",
		"text/markdown",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.oasis.opendocument.spreadsheet",
		"text/csv",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	}},
	{CategoryImages, []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/svg+xml",
		"image/webp",
		"image/tiff",
		"image/bmp",
	}},
	{CategoryVideos, []string{
		"video/mp4",
		"video/quicktime",
		"video/x-msvideo",
		"video/x-matroska",
		"video/webm",
		"video/ogg",
		"video/mpeg",
	}},
}

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{CategoryDocuments, CategoryImages, CategoryVideos, CategoryOthers}
}

// Classify returns the category of a content type.
func Classify(contentType string) Category {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, row := range categoryTable {
		for _, p := range row.prefixes {
			if strings.HasPrefix(ct, p) {
				return row.category
			}
		}
	}
	return CategoryOthers
}
