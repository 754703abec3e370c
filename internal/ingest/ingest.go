// Package ingest fills daily article slots from the configured feed
// pool: it collects candidates across feeds, ranks them newest first
// and commits at most one article per slot date.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/mmcdole/gofeed"

	"daybrief/internal/database"
	"daybrief/internal/extract"
	"daybrief/internal/feed"
	"daybrief/internal/normalize"
)

// Stats describes one slot-fill run. Per-feed and per-candidate
// failures land in Errors; they never abort the run.
type Stats struct {
	FeedsProcessed int      `json:"feeds_processed"`
	ItemsSeen      int      `json:"items_seen"`
	Inserted       int      `json:"inserted"`
	Duplicates     int      `json:"duplicates"`
	Skipped        int      `json:"skipped"`
	Errors         []string `json:"errors"`
}

func newStats() *Stats {
	return &Stats{Errors: []string{}}
}

func (s *Stats) add(other *Stats) {
	s.FeedsProcessed += other.FeedsProcessed
	s.ItemsSeen += other.ItemsSeen
	s.Inserted += other.Inserted
	s.Duplicates += other.Duplicates
	s.Skipped += other.Skipped
	s.Errors = append(s.Errors, other.Errors...)
}

// Config carries the pipeline knobs.
type Config struct {
	MinWords        int
	MaxItemsPerFeed int
}

// Ingester runs the slot-filling pipeline. One instance is shared by
// the scheduler and the admin API; runs themselves are sequential and
// any overlap is resolved by the storage uniqueness constraints.
type Ingester struct {
	db     *database.DB
	logger *log.Logger
	client *feed.Client
	cfg    Config
	now    func() time.Time
}

func New(db *database.DB, logger *log.Logger, client *feed.Client, cfg Config) *Ingester {
	return &Ingester{
		db:     db,
		logger: logger,
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

// SlotDate formats t as its UTC slot date.
func SlotDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// candidate is a feed entry under consideration, tagged with its
// resolved priority timestamp.
type candidate struct {
	publishedAt time.Time
	feed        database.Feed
	item        *gofeed.Item
}

// IngestSlot fills one slot date: a no-op when the slot is taken,
// otherwise it tries ranked candidates until one commits. The returned
// error is non-nil only when the up-front storage reads fail.
func (g *Ingester) IngestSlot(ctx context.Context, slotDate string, maxItemsPerFeed int) (*Stats, error) {
	stats := newStats()

	filled, err := g.db.SlotFilled(ctx, slotDate)
	if err != nil {
		return nil, fmt.Errorf("checking slot %s: %w", slotDate, err)
	}
	if filled {
		g.logger.Printf("Slot %s already filled, nothing to do", slotDate)
		return stats, nil
	}

	if maxItemsPerFeed <= 0 {
		maxItemsPerFeed = g.cfg.MaxItemsPerFeed
	}

	feeds, err := g.db.GetEnabledFeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	candidates := g.collectCandidates(ctx, feeds, maxItemsPerFeed, stats)

	// Newest first; stable sort keeps original order on timestamp ties
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].publishedAt.After(candidates[j].publishedAt)
	})

	for _, cand := range candidates {
		inserted, err := g.tryCandidate(ctx, slotDate, cand, stats)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("entry %s: %v", cand.item.Link, err))
			continue
		}
		if inserted {
			// Exactly one article per run
			break
		}
	}

	return stats, nil
}

// collectCandidates fetches every enabled feed and emits ranked-ready
// candidates. Fetch metadata is persisted per feed immediately, so the
// conditional-GET gain survives even when no entry is usable later.
func (g *Ingester) collectCandidates(ctx context.Context, feeds []database.Feed, maxItemsPerFeed int, stats *Stats) []candidate {
	var candidates []candidate
	for _, f := range feeds {
		result, err := g.client.FetchFeed(ctx, f.URL, f.ETag, f.LastModified)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("feed %s: %v", f.URL, err))
			continue
		}
		stats.FeedsProcessed++

		if err := g.db.UpdateFeedFetchState(ctx, f.ID, g.now(), result.ETag, result.LastModified, !result.NotModified); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("feed %s: saving fetch state: %v", f.URL, err))
		}

		if result.NotModified || result.Parsed == nil {
			continue
		}

		items := result.Parsed.Items
		if len(items) > maxItemsPerFeed {
			items = items[:maxItemsPerFeed]
		}
		for _, item := range items {
			stats.ItemsSeen++
			if item == nil || item.Link == "" || item.Title == "" {
				stats.Skipped++
				continue
			}
			candidates = append(candidates, candidate{
				publishedAt: entryTimestamp(item, g.now()),
				feed:        f,
				item:        item,
			})
		}
	}
	return candidates
}

// tryCandidate attempts one ranked candidate. It reports whether the
// slot was filled; duplicates and rejects are counted, not errors.
func (g *Ingester) tryCandidate(ctx context.Context, slotDate string, cand candidate, stats *Stats) (bool, error) {
	sourceURL := cand.item.Link

	normalized, err := normalize.URL(sourceURL)
	if err != nil {
		return false, err
	}

	exists, err := g.db.NormalizedURLExists(ctx, normalized)
	if err != nil {
		return false, err
	}
	if exists {
		stats.Duplicates++
		return false, nil
	}

	encodedHTML := cand.item.Content
	var pageHTML string
	if len(encodedHTML) <= extract.MinHTMLLength {
		page, err := g.client.FetchPage(ctx, sourceURL)
		if err != nil {
			return false, err
		}
		if feed.SoftDenial(page.StatusCode) {
			stats.Skipped++
			return false, nil
		}
		pageHTML = page.Body
	}

	parsed, err := extract.Parse(extract.Input{
		SourceURL:    sourceURL,
		RSSTitle:     cand.item.Title,
		RSSImageURL:  rssImage(cand.item),
		EncodedHTML:  encodedHTML,
		PageHTML:     pageHTML,
		ForceH1Title: true,
	})
	if errors.Is(err, extract.ErrNoContent) {
		stats.Skipped++
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if parsed.WordCount < g.cfg.MinWords {
		stats.Skipped++
		return false, nil
	}

	publishedAt := cand.publishedAt
	article := &database.Article{
		FeedID:        cand.feed.ID,
		GUID:          cand.item.GUID,
		SourceURL:     sourceURL,
		NormalizedURL: normalized,
		Title:         parsed.Title,
		ImageURL:      parsed.ImageURL,
		PublishedAt:   &publishedAt,
		FetchedAt:     g.now().UTC(),
		SlotDate:      slotDate,
		WordCount:     parsed.WordCount,
		BodyMarkdown:  parsed.BodyMarkdown,
		SHA256:        normalize.Hash(parsed.BodyMarkdown),
	}

	if err := g.db.InsertArticle(ctx, article); err != nil {
		// A concurrent run may have claimed the slot or the URL first;
		// that race is indistinguishable from a duplicate.
		if errors.Is(err, database.ErrDuplicate) {
			stats.Duplicates++
			return false, nil
		}
		return false, err
	}

	stats.Inserted++
	g.logger.Printf("Filled slot %s with %q (%s)", slotDate, parsed.Title, sourceURL)
	return true, nil
}

// entryTimestamp resolves the best-effort priority timestamp: the
// structured published time, else updated, else now.
func entryTimestamp(item *gofeed.Item, now time.Time) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return now.UTC()
}

// rssImage picks the entry's image: media:content first, then the
// first enclosure, then media:thumbnail.
func rssImage(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		if contents, ok := media["content"]; ok && len(contents) > 0 {
			if u := contents[0].Attrs["url"]; u != "" {
				return u
			}
		}
	}
	if len(item.Enclosures) > 0 && item.Enclosures[0].URL != "" {
		return item.Enclosures[0].URL
	}
	if media, ok := item.Extensions["media"]; ok {
		if thumbs, ok := media["thumbnail"]; ok && len(thumbs) > 0 {
			if u := thumbs[0].Attrs["url"]; u != "" {
				return u
			}
		}
	}
	return ""
}
