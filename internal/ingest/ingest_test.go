package ingest

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"daybrief/internal/database"
	"daybrief/internal/feed"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), database.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testIngester(t *testing.T, db *database.DB, minWords int) *Ingester {
	t.Helper()
	client := feed.NewClient("daybrief-test/1.0", 5*time.Second)
	logger := log.New(os.Stderr, "[test] ", log.LstdFlags)
	return New(db, logger, client, Config{MinWords: minWords, MaxItemsPerFeed: 50})
}

// longBody builds enough paragraphs that extraction succeeds and the
// word count clears any small minimum.
func longBody(marker string) string {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "<p>Paragraph %d about %s. The quick brown fox jumps over the lazy dog while "+
			"reporters keep asking questions about the %s story and its many documented details. "+
			"Witnesses gave long statements covering the timeline, the context and the aftermath.</p>\n",
			i+1, marker, marker)
	}
	return b.String()
}

type rssEntry struct {
	title     string
	link      string
	guid      string
	published time.Time
	encoded   string
}

func rssDocument(entries []rssEntry) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
<title>Test Feed</title>
<link>https://example.com</link>
`)
	for _, e := range entries {
		b.WriteString("<item>\n")
		if e.title != "" {
			fmt.Fprintf(&b, "<title>%s</title>\n", e.title)
		}
		if e.link != "" {
			fmt.Fprintf(&b, "<link>%s</link>\n", e.link)
		}
		if e.guid != "" {
			fmt.Fprintf(&b, "<guid>%s</guid>\n", e.guid)
		}
		if !e.published.IsZero() {
			fmt.Fprintf(&b, "<pubDate>%s</pubDate>\n", e.published.Format(time.RFC1123Z))
		}
		if e.encoded != "" {
			fmt.Fprintf(&b, "<content:encoded><![CDATA[%s]]></content:encoded>\n", e.encoded)
		}
		b.WriteString("</item>\n")
	}
	b.WriteString("</channel>\n</rss>\n")
	return b.String()
}

// feedServer serves the given RSS document at /feed and nothing else.
func feedServer(t *testing.T, rss string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("ETag", `"v1"`)
		fmt.Fprint(w, rss)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestSlotInsertsExactlyOne(t *testing.T) {
	entries := []rssEntry{
		{title: "First Story", link: "https://example.com/a", guid: "a", published: time.Now().Add(-3 * time.Hour), encoded: longBody("alpha")},
		{title: "Second Story", link: "https://example.com/b", guid: "b", published: time.Now().Add(-2 * time.Hour), encoded: longBody("beta")},
		{title: "Third Story", link: "https://example.com/c", guid: "c", published: time.Now().Add(-1 * time.Hour), encoded: longBody("gamma")},
	}
	srv := feedServer(t, rssDocument(entries))

	db := testDB(t)
	if _, err := db.CreateFeed(context.Background(), srv.URL+"/feed", "Test Feed", true); err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}

	ing := testIngester(t, db, 5)
	stats, err := ing.IngestSlot(context.Background(), "2026-08-30", 0)
	if err != nil {
		t.Fatalf("IngestSlot failed: %v", err)
	}
	if stats.Inserted != 1 {
		t.Errorf("Expected 1 inserted, got %d (errors: %v)", stats.Inserted, stats.Errors)
	}
	if stats.ItemsSeen != 3 {
		t.Errorf("Expected 3 items seen, got %d", stats.ItemsSeen)
	}
	if stats.FeedsProcessed != 1 {
		t.Errorf("Expected 1 feed processed, got %d", stats.FeedsProcessed)
	}

	// Second run is a no-op: the slot is already filled
	stats, err = ing.IngestSlot(context.Background(), "2026-08-30", 0)
	if err != nil {
		t.Fatalf("Second IngestSlot failed: %v", err)
	}
	if stats.Inserted != 0 || stats.FeedsProcessed != 0 {
		t.Errorf("Expected filled-slot no-op, got inserted=%d feeds=%d", stats.Inserted, stats.FeedsProcessed)
	}
}

func TestIngestSlotPicksNewestFirst(t *testing.T) {
	entries := []rssEntry{
		{title: "Old Story", link: "https://example.com/old", guid: "old", published: time.Now().Add(-48 * time.Hour), encoded: longBody("old")},
		{title: "Fresh Story", link: "https://example.com/fresh", guid: "fresh", published: time.Now().Add(-1 * time.Hour), encoded: longBody("fresh")},
		{title: "Middle Story", link: "https://example.com/mid", guid: "mid", published: time.Now().Add(-12 * time.Hour), encoded: longBody("middle")},
	}
	srv := feedServer(t, rssDocument(entries))

	db := testDB(t)
	if _, err := db.CreateFeed(context.Background(), srv.URL+"/feed", "Test Feed", true); err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}

	ing := testIngester(t, db, 5)
	stats, err := ing.IngestSlot(context.Background(), "2026-08-30", 0)
	if err != nil {
		t.Fatalf("IngestSlot failed: %v", err)
	}
	if stats.Inserted != 1 {
		t.Fatalf("Expected 1 inserted, got %d (errors: %v)", stats.Inserted, stats.Errors)
	}

	articles, err := db.ListArticles(context.Background(), 10, "", 0)
	if err != nil {
		t.Fatalf("ListArticles failed: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(articles))
	}
	if articles[0].Title != "Fresh Story" {
		t.Errorf("Expected newest entry to win, got %q", articles[0].Title)
	}
}

func TestIngestSlotSkipsKnownURL(t *testing.T) {
	entries := []rssEntry{
		{title: "Repeat Story", link: "https://example.com/repeat?utm_source=rss", guid: "r", published: time.Now(), encoded: longBody("repeat")},
	}
	srv := feedServer(t, rssDocument(entries))

	db := testDB(t)
	f, err := db.CreateFeed(context.Background(), srv.URL+"/feed", "Test Feed", true)
	if err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}

	// The same article already occupies an earlier slot, under its
	// normalized URL.
	prior := &database.Article{
		FeedID:        f.ID,
		SourceURL:     "https://example.com/repeat",
		NormalizedURL: "https://example.com/repeat",
		Title:         "Repeat Story",
		SlotDate:      "2026-08-29",
		WordCount:     300,
		BodyMarkdown:  "# Repeat Story\n\nBody.\n",
		SHA256:        "deadbeef",
	}
	if err := db.InsertArticle(context.Background(), prior); err != nil {
		t.Fatalf("Failed to insert prior article: %v", err)
	}

	ing := testIngester(t, db, 5)
	stats, err := ing.IngestSlot(context.Background(), "2026-08-30", 0)
	if err != nil {
		t.Fatalf("IngestSlot failed: %v", err)
	}
	if stats.Duplicates != 1 {
		t.Errorf("Expected 1 duplicate, got %d", stats.Duplicates)
	}
	if stats.Inserted != 0 {
		t.Errorf("Expected 0 inserted, got %d", stats.Inserted)
	}
}

func TestIngestSlotEnforcesMinWords(t *testing.T) {
	entries := []rssEntry{
		{title: "Long Enough", link: "https://example.com/long", guid: "l", published: time.Now(), encoded: longBody("long")},
	}
	srv := feedServer(t, rssDocument(entries))

	db := testDB(t)
	if _, err := db.CreateFeed(context.Background(), srv.URL+"/feed", "Test Feed", true); err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}

	ing := testIngester(t, db, 100000)
	stats, err := ing.IngestSlot(context.Background(), "2026-08-30", 0)
	if err != nil {
		t.Fatalf("IngestSlot failed: %v", err)
	}
	if stats.Inserted != 0 {
		t.Errorf("Expected 0 inserted under huge word minimum, got %d", stats.Inserted)
	}
	if stats.Skipped == 0 {
		t.Error("Expected short candidates to be counted as skipped")
	}
}

func TestIngestSlotSkipsEntriesWithoutLinkOrTitle(t *testing.T) {
	entries := []rssEntry{
		{title: "No Link", guid: "nl", published: time.Now(), encoded: longBody("nolink")},
		{link: "https://example.com/untitled", guid: "nt", published: time.Now(), encoded: longBody("notitle")},
	}
	srv := feedServer(t, rssDocument(entries))

	db := testDB(t)
	if _, err := db.CreateFeed(context.Background(), srv.URL+"/feed", "Test Feed", true); err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}

	ing := testIngester(t, db, 5)
	stats, err := ing.IngestSlot(context.Background(), "2026-08-30", 0)
	if err != nil {
		t.Fatalf("IngestSlot failed: %v", err)
	}
	if stats.Inserted != 0 {
		t.Errorf("Expected 0 inserted, got %d", stats.Inserted)
	}
	if stats.Skipped != 2 {
		t.Errorf("Expected 2 skipped, got %d", stats.Skipped)
	}
}

func TestIngestSlotIsolatesFeedFailures(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer broken.Close()

	entries := []rssEntry{
		{title: "Good Story", link: "https://example.com/good", guid: "g", published: time.Now(), encoded: longBody("good")},
	}
	srv := feedServer(t, rssDocument(entries))

	db := testDB(t)
	if _, err := db.CreateFeed(context.Background(), broken.URL, "Broken Feed", true); err != nil {
		t.Fatalf("Failed to create broken feed: %v", err)
	}
	if _, err := db.CreateFeed(context.Background(), srv.URL+"/feed", "Good Feed", true); err != nil {
		t.Fatalf("Failed to create good feed: %v", err)
	}

	ing := testIngester(t, db, 5)
	stats, err := ing.IngestSlot(context.Background(), "2026-08-30", 0)
	if err != nil {
		t.Fatalf("IngestSlot failed: %v", err)
	}
	if stats.Inserted != 1 {
		t.Errorf("Expected the healthy feed to fill the slot, got inserted=%d (errors: %v)", stats.Inserted, stats.Errors)
	}
	if len(stats.Errors) != 1 {
		t.Errorf("Expected exactly 1 feed error, got %v", stats.Errors)
	}
}

func TestIngestSlotSoftDenialIsSkipped(t *testing.T) {
	// Entry with no inline content whose page fetch hits a paywall.
	pages := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer pages.Close()

	entries := []rssEntry{
		{title: "Paywalled Story", link: pages.URL + "/story", guid: "p", published: time.Now()},
	}
	srv := feedServer(t, rssDocument(entries))

	db := testDB(t)
	if _, err := db.CreateFeed(context.Background(), srv.URL+"/feed", "Test Feed", true); err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}

	ing := testIngester(t, db, 5)
	stats, err := ing.IngestSlot(context.Background(), "2026-08-30", 0)
	if err != nil {
		t.Fatalf("IngestSlot failed: %v", err)
	}
	if stats.Inserted != 0 {
		t.Errorf("Expected 0 inserted, got %d", stats.Inserted)
	}
	if stats.Skipped != 1 {
		t.Errorf("Expected soft denial to count as skipped, got skipped=%d errors=%v", stats.Skipped, stats.Errors)
	}
	if len(stats.Errors) != 0 {
		t.Errorf("Soft denial must not be an error, got %v", stats.Errors)
	}
}

func TestIngestSlotPersistsFetchState(t *testing.T) {
	entries := []rssEntry{
		{title: "Any Story", link: "https://example.com/any", guid: "any", published: time.Now(), encoded: longBody("any")},
	}
	srv := feedServer(t, rssDocument(entries))

	db := testDB(t)
	f, err := db.CreateFeed(context.Background(), srv.URL+"/feed", "Test Feed", true)
	if err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}

	ing := testIngester(t, db, 5)
	if _, err := ing.IngestSlot(context.Background(), "2026-08-30", 0); err != nil {
		t.Fatalf("IngestSlot failed: %v", err)
	}

	updated, err := db.GetFeed(context.Background(), f.ID)
	if err != nil {
		t.Fatalf("GetFeed failed: %v", err)
	}
	if updated.ETag != `"v1"` {
		t.Errorf("Expected stored ETag %q, got %q", `"v1"`, updated.ETag)
	}
	if updated.LastFetchedAt == nil {
		t.Error("Expected LastFetchedAt to be set after a fetch")
	}
}

func TestBackfillFillsSlotsOldestFirst(t *testing.T) {
	entries := []rssEntry{
		{title: "Story One", link: "https://example.com/1", guid: "1", published: time.Now().Add(-4 * time.Hour), encoded: longBody("one")},
		{title: "Story Two", link: "https://example.com/2", guid: "2", published: time.Now().Add(-3 * time.Hour), encoded: longBody("two")},
		{title: "Story Three", link: "https://example.com/3", guid: "3", published: time.Now().Add(-2 * time.Hour), encoded: longBody("three")},
		{title: "Story Four", link: "https://example.com/4", guid: "4", published: time.Now().Add(-1 * time.Hour), encoded: longBody("four")},
	}
	srv := feedServer(t, rssDocument(entries))

	db := testDB(t)
	if _, err := db.CreateFeed(context.Background(), srv.URL+"/feed", "Test Feed", true); err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}

	end := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ing := testIngester(t, db, 5)
	result := ing.Backfill(context.Background(), 3, end, 0)

	if result.DaysRequested != 3 {
		t.Errorf("Expected 3 days requested, got %d", result.DaysRequested)
	}
	if result.DaysFilled != 3 {
		t.Errorf("Expected 3 days filled, got %d (errors: %v)", result.DaysFilled, result.Errors)
	}
	if result.Inserted != 3 {
		t.Errorf("Expected 3 inserted, got %d", result.Inserted)
	}

	articles, err := db.ListArticles(context.Background(), 10, "", 0)
	if err != nil {
		t.Fatalf("ListArticles failed: %v", err)
	}
	if len(articles) != 3 {
		t.Fatalf("Expected 3 articles, got %d", len(articles))
	}
	// Newest slot listed first
	if articles[0].SlotDate != "2026-08-30" || articles[2].SlotDate != "2026-08-28" {
		t.Errorf("Unexpected slot dates: %s .. %s", articles[0].SlotDate, articles[2].SlotDate)
	}
}

func TestSlotDate(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC
	loc := time.FixedZone("UTC-5", -5*60*60)
	local := time.Date(2026, 8, 30, 23, 30, 0, 0, loc)
	if got := SlotDate(local); got != "2026-08-31" {
		t.Errorf("Expected 2026-08-31, got %s", got)
	}
	utc := time.Date(2026, 8, 30, 0, 5, 0, 0, time.UTC)
	if got := SlotDate(utc); got != "2026-08-30" {
		t.Errorf("Expected 2026-08-30, got %s", got)
	}
}
