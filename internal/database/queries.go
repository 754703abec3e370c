// internal/database/queries.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Error definitions
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Feed represents a feed subscription
type Feed struct {
	ID            int64
	URL           string
	Name          string
	Enabled       bool
	CreatedAt     time.Time
	LastFetchedAt *time.Time
	ETag          string
	LastModified  string
}

// Article is the single curated article occupying one slot date.
// FeedName and FeedURL are joined from the feeds table on reads.
type Article struct {
	ID            int64
	FeedID        int64
	GUID          string
	SourceURL     string
	NormalizedURL string
	Title         string
	ImageURL      string
	PublishedAt   *time.Time
	FetchedAt     time.Time
	SlotDate      string
	WordCount     int
	BodyMarkdown  string
	SHA256        string

	FeedName string
	FeedURL  string
}

// IsUniqueViolation reports whether err is a sqlite unique constraint
// failure. Callers use it to turn a commit race into a duplicate-skip.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func scanFeed(row interface{ Scan(...any) error }) (Feed, error) {
	var f Feed
	var name, etag, lastModified sql.NullString
	var lastFetched sql.NullTime
	err := row.Scan(&f.ID, &f.URL, &name, &f.Enabled, &f.CreatedAt,
		&lastFetched, &etag, &lastModified)
	if err != nil {
		return Feed{}, err
	}
	f.Name = name.String
	f.ETag = etag.String
	f.LastModified = lastModified.String
	if lastFetched.Valid {
		t := lastFetched.Time
		f.LastFetchedAt = &t
	}
	return f, nil
}

const feedColumns = `id, url, name, enabled, created_at, last_fetched_at, etag, last_modified`

// ListFeeds returns every feed, oldest first.
func (db *DB) ListFeeds(ctx context.Context) ([]Feed, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// GetEnabledFeeds returns the feeds the slot filler iterates.
func (db *DB) GetEnabledFeeds(ctx context.Context) ([]Feed, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE enabled = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// GetFeed returns a single feed by id.
func (db *DB) GetFeed(ctx context.Context, id int64) (*Feed, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	f, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFeed inserts a feed; ErrDuplicate when the URL is already known.
func (db *DB) CreateFeed(ctx context.Context, url, name string, enabled bool) (*Feed, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO feeds (url, name, enabled) VALUES (?, ?, ?)`,
		url, nullIfEmpty(name), enabled)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetFeed(ctx, id)
}

// UpdateFeed patches name and/or enabled. Nil fields are left alone.
func (db *DB) UpdateFeed(ctx context.Context, id int64, name *string, enabled *bool) (*Feed, error) {
	if _, err := db.GetFeed(ctx, id); err != nil {
		return nil, err
	}
	if name != nil {
		if _, err := db.ExecContext(ctx,
			`UPDATE feeds SET name = ? WHERE id = ?`, nullIfEmpty(*name), id); err != nil {
			return nil, err
		}
	}
	if enabled != nil {
		if _, err := db.ExecContext(ctx,
			`UPDATE feeds SET enabled = ? WHERE id = ?`, *enabled, id); err != nil {
			return nil, err
		}
	}
	return db.GetFeed(ctx, id)
}

// DeleteFeed removes a feed and, via the FK cascade, its articles.
func (db *DB) DeleteFeed(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateFeedFetchState stamps last_fetched_at for every run; the cached
// validators are overwritten only when the feed actually changed (a 304
// must not clobber them).
func (db *DB) UpdateFeedFetchState(ctx context.Context, id int64, fetchedAt time.Time, etag, lastModified string, modified bool) error {
	if modified {
		_, err := db.ExecContext(ctx,
			`UPDATE feeds SET last_fetched_at = ?, etag = ?, last_modified = ? WHERE id = ?`,
			fetchedAt.UTC(), nullIfEmpty(etag), nullIfEmpty(lastModified), id)
		return err
	}
	_, err := db.ExecContext(ctx,
		`UPDATE feeds SET last_fetched_at = ? WHERE id = ?`,
		fetchedAt.UTC(), id)
	return err
}

// SlotFilled reports whether an article already occupies slotDate.
func (db *DB) SlotFilled(ctx context.Context, slotDate string) (bool, error) {
	var id int64
	err := db.QueryRowContext(ctx,
		`SELECT id FROM articles WHERE slot_date = ? LIMIT 1`, slotDate).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NormalizedURLExists reports whether any article already claimed the
// canonical URL.
func (db *DB) NormalizedURLExists(ctx context.Context, normalizedURL string) (bool, error) {
	var id int64
	err := db.QueryRowContext(ctx,
		`SELECT id FROM articles WHERE normalized_url = ? LIMIT 1`, normalizedURL).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertArticle commits the slot. ErrDuplicate when either uniqueness
// constraint (slot_date, normalized_url) rejects the row.
func (db *DB) InsertArticle(ctx context.Context, a *Article) error {
	if a.FetchedAt.IsZero() {
		a.FetchedAt = time.Now().UTC()
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO articles (feed_id, guid, source_url, normalized_url, title,
		        image_url, published_at, fetched_at, slot_date, word_count,
		        body_markdown, sha256)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.FeedID, nullIfEmpty(a.GUID), a.SourceURL, a.NormalizedURL, a.Title,
		nullIfEmpty(a.ImageURL), nullableTime(a.PublishedAt), a.FetchedAt.UTC(),
		a.SlotDate, a.WordCount, a.BodyMarkdown, a.SHA256)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	a.ID, err = result.LastInsertId()
	return err
}

const articleColumns = `a.id, a.feed_id, a.guid, a.source_url, a.normalized_url,
       a.title, a.image_url, a.published_at, a.fetched_at, a.slot_date,
       a.word_count, a.body_markdown, a.sha256, f.name, f.url`

func scanArticle(row interface{ Scan(...any) error }) (Article, error) {
	var a Article
	var guid, imageURL, feedName sql.NullString
	var publishedAt sql.NullTime
	err := row.Scan(&a.ID, &a.FeedID, &guid, &a.SourceURL, &a.NormalizedURL,
		&a.Title, &imageURL, &publishedAt, &a.FetchedAt, &a.SlotDate,
		&a.WordCount, &a.BodyMarkdown, &a.SHA256, &feedName, &a.FeedURL)
	if err != nil {
		return Article{}, err
	}
	a.GUID = guid.String
	a.ImageURL = imageURL.String
	a.FeedName = feedName.String
	if publishedAt.Valid {
		t := publishedAt.Time
		a.PublishedAt = &t
	}
	return a, nil
}

// GetArticle returns one article with its feed joined in.
func (db *DB) GetArticle(ctx context.Context, id int64) (*Article, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+articleColumns+`
		 FROM articles a JOIN feeds f ON a.feed_id = f.id
		 WHERE a.id = ?`, id)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListArticles pages through articles newest slot first. A non-empty
// beforeSlot/beforeID pair restricts the page to rows strictly after
// the cursor in (slot_date DESC, id DESC) order.
func (db *DB) ListArticles(ctx context.Context, limit int, beforeSlot string, beforeID int64) ([]Article, error) {
	query := `SELECT ` + articleColumns + `
	 FROM articles a JOIN feeds f ON a.feed_id = f.id`
	args := []any{}
	if beforeSlot != "" {
		query += ` WHERE a.slot_date < ? OR (a.slot_date = ? AND a.id < ?)`
		args = append(args, beforeSlot, beforeSlot, beforeID)
	}
	query += ` ORDER BY a.slot_date DESC, a.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
