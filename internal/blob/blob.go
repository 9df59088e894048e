// Package blob provides the object I/O the pipeline needs: size-limited
// downloads of campaign inputs, publication of finished artifacts at stable
// public URLs, and best-effort CDN purging.
package blob

import (
	"context"
	"errors"
	"fmt"
)

// Download caps for campaign inputs.
const (
	// MaxFacecamBytes caps facecam downloads at 100 MB.
	MaxFacecamBytes = 100 << 20
	// MaxCSVBytes caps lead-list downloads at 5 MB.
	MaxCSVBytes = 5 << 20
)

// Static errors for blob operations.
var (
	// ErrTooLarge is returned when a download exceeds its size limit.
	ErrTooLarge = errors.New("blob: download exceeds size limit")
	// ErrBadStatus is returned when a fetch gets a non-2xx response.
	ErrBadStatus = errors.New("blob: unexpected response status")
)

// Store is the port for blob storage and CDN interaction.
type Store interface {
	// Fetch downloads the contents of a public or signed URL into memory.
	// It fails with ErrTooLarge when the body exceeds limit bytes.
	Fetch(ctx context.Context, url string, limit int64) ([]byte, error)

	// UploadFile uploads a local file to the named object key and returns
	// its stable public URL. Existing objects are overwritten.
	UploadFile(ctx context.Context, key, path, contentType, cacheControl string) (string, error)

	// Purge asks the CDN to drop cached copies of the given URLs.
	// Failures are the caller's to log; they are never fatal.
	Purge(ctx context.Context, urls []string) error
}

// VideoKey returns the object key for a render's published MP4.
func VideoKey(publicID string) string {
	return fmt.Sprintf("renders/%s.mp4", publicID)
}

// ThumbnailKey returns the object key for a render's published thumbnail.
func ThumbnailKey(publicID string) string {
	return fmt.Sprintf("renders/%s.jpg", publicID)
}

// Upload content types and cache policy for published artifacts.
const (
	VideoContentType     = "video/mp4"
	ThumbnailContentType = "image/jpeg"
	ArtifactCacheControl = "public, max-age=3600"
)
