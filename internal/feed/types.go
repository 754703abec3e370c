// Save as: internal/feed/types.go
package feed

import (
	"github.com/mmcdole/gofeed"
)

// FeedResult is the outcome of one conditional feed fetch.
type FeedResult struct {
	// Parsed is nil when NotModified is true.
	Parsed *gofeed.Feed

	// ETag and LastModified are the validators to persist: the server's
	// new values when it sent any, otherwise the priors carried forward.
	ETag         string
	LastModified string

	NotModified bool
}

// PageResult is the outcome of a raw article page fetch. Body is empty
// for any status >= 400; the caller decides which statuses are fatal.
type PageResult struct {
	Body        string
	ContentType string
	StatusCode  int
}
