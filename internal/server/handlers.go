// internal/server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"daybrief/internal/database"
	"daybrief/internal/ingest"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50

	defaultBackfillDays = 7
	maxBackfillDays     = 365
)

type feedRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type articleSummary struct {
	ID          int64      `json:"id"`
	SlotDate    string     `json:"slot_date"`
	Title       string     `json:"title"`
	ImageURL    string     `json:"image_url,omitempty"`
	SourceURL   string     `json:"source_url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	WordCount   int        `json:"word_count"`
	Preview     string     `json:"preview"`
	Feed        feedRef    `json:"feed"`
}

type articleDetail struct {
	articleSummary
	BodyMarkdown string    `json:"body_markdown"`
	FetchedAt    time.Time `json:"fetched_at"`
}

func summarize(a database.Article, previewWords int) articleSummary {
	return articleSummary{
		ID:          a.ID,
		SlotDate:    a.SlotDate,
		Title:       a.Title,
		ImageURL:    a.ImageURL,
		SourceURL:   a.SourceURL,
		PublishedAt: a.PublishedAt,
		WordCount:   a.WordCount,
		Preview:     TruncateWords(a.BodyMarkdown, previewWords),
		Feed:        feedRef{ID: a.FeedID, Name: a.FeedName, URL: a.FeedURL},
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondWithError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
		if limit > maxPageSize {
			limit = maxPageSize
		}
	}

	var beforeSlot string
	var beforeID int64
	if token := r.URL.Query().Get("cursor"); token != "" {
		c, err := decodeCursor(token)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		beforeSlot, beforeID = c.SlotDate, c.ID
	}

	// Fetch one extra row to learn whether a next page exists
	articles, err := s.db.ListArticles(r.Context(), limit+1, beforeSlot, beforeID)
	if err != nil {
		s.logger.Printf("Error listing articles: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to list articles")
		return
	}

	var nextCursor string
	if len(articles) > limit {
		articles = articles[:limit]
		last := articles[len(articles)-1]
		nextCursor = encodeCursor(cursor{SlotDate: last.SlotDate, ID: last.ID})
	}

	summaries := make([]articleSummary, 0, len(articles))
	for _, a := range articles {
		summaries = append(summaries, summarize(a, s.config.PreviewWords))
	}

	RespondWithJSON(w, http.StatusOK, map[string]any{
		"articles":    summaries,
		"next_cursor": nextCursor,
	})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid article id")
		return
	}

	maxWords := 0
	if raw := r.URL.Query().Get("max_words"); raw != "" {
		maxWords, err = strconv.Atoi(raw)
		if err != nil || maxWords < 1 {
			RespondWithError(w, http.StatusBadRequest, "invalid max_words")
			return
		}
	}

	a, err := s.db.GetArticle(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		RespondWithError(w, http.StatusNotFound, "article not found")
		return
	}
	if err != nil {
		s.logger.Printf("Error getting article %d: %v", id, err)
		RespondWithError(w, http.StatusInternalServerError, "failed to get article")
		return
	}

	detail := articleDetail{
		articleSummary: summarize(*a, s.config.PreviewWords),
		BodyMarkdown:   TruncateWords(a.BodyMarkdown, maxWords),
		FetchedAt:      a.FetchedAt,
	}
	RespondWithJSON(w, http.StatusOK, detail)
}

type feedResponse struct {
	ID            int64      `json:"id"`
	URL           string     `json:"url"`
	Name          string     `json:"name"`
	Enabled       bool       `json:"enabled"`
	CreatedAt     time.Time  `json:"created_at"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
}

func feedToResponse(f database.Feed) feedResponse {
	return feedResponse{
		ID:            f.ID,
		URL:           f.URL,
		Name:          f.Name,
		Enabled:       f.Enabled,
		CreatedAt:     f.CreatedAt,
		LastFetchedAt: f.LastFetchedAt,
	}
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.db.ListFeeds(r.Context())
	if err != nil {
		s.logger.Printf("Error listing feeds: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to list feeds")
		return
	}
	out := make([]feedResponse, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, feedToResponse(f))
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"feeds": out})
}

func (s *Server) handleCreateFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL     string `json:"url"`
		Name    string `json:"name"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		RespondWithError(w, http.StatusBadRequest, "url is required")
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	f, err := s.db.CreateFeed(r.Context(), req.URL, req.Name, enabled)
	if errors.Is(err, database.ErrDuplicate) {
		RespondWithError(w, http.StatusConflict, "feed already exists")
		return
	}
	if err != nil {
		s.logger.Printf("Error creating feed: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to create feed")
		return
	}
	RespondWithJSON(w, http.StatusCreated, feedToResponse(*f))
}

func (s *Server) handleUpdateFeed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid feed id")
		return
	}

	var req struct {
		Name    *string `json:"name"`
		Enabled *bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == nil && req.Enabled == nil {
		RespondWithError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	f, err := s.db.UpdateFeed(r.Context(), id, req.Name, req.Enabled)
	if errors.Is(err, database.ErrNotFound) {
		RespondWithError(w, http.StatusNotFound, "feed not found")
		return
	}
	if err != nil {
		s.logger.Printf("Error updating feed %d: %v", id, err)
		RespondWithError(w, http.StatusInternalServerError, "failed to update feed")
		return
	}
	RespondWithJSON(w, http.StatusOK, feedToResponse(*f))
}

func (s *Server) handleDeleteFeed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid feed id")
		return
	}
	err = s.db.DeleteFeed(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		RespondWithError(w, http.StatusNotFound, "feed not found")
		return
	}
	if err != nil {
		s.logger.Printf("Error deleting feed %d: %v", id, err)
		RespondWithError(w, http.StatusInternalServerError, "failed to delete feed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	days := defaultBackfillDays
	if raw := q.Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxBackfillDays {
			RespondWithError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}

	var endDate time.Time
	if raw := q.Get("end_date"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "invalid end_date, want YYYY-MM-DD")
			return
		}
		endDate = t
	}

	maxItems := 0
	if raw := q.Get("max_items_per_feed"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondWithError(w, http.StatusBadRequest, "invalid max_items_per_feed")
			return
		}
		maxItems = n
	}

	result := s.ingester.Backfill(r.Context(), days, endDate, maxItems)
	RespondWithJSON(w, http.StatusOK, result)
}

func (s *Server) handleFetchToday(w http.ResponseWriter, r *http.Request) {
	slot := ingest.SlotDate(time.Now())
	stats, err := s.ingester.IngestSlot(r.Context(), slot, 0)
	if err != nil {
		s.logger.Printf("Error filling slot %s: %v", slot, err)
		RespondWithError(w, http.StatusInternalServerError, "fetch failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"slot_date": slot,
		"stats":     stats,
	})
}
