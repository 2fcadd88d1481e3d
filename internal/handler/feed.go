package handler

import (
	"log"
	"net/http"
	"strconv"

	"circleshare/internal/httputil"
	"circleshare/internal/service"
	"circleshare/internal/transport/http/middleware"
)

type FeedHandler struct {
	feedService *service.FeedService
}

func NewFeedHandler(feedService *service.FeedService) *FeedHandler {
	return &FeedHandler{
		feedService: feedService,
	}
}

// GetFeed handles GET /feed
// Returns the viewer's assembled circle feed. The first request starts a
// live session and loads page one; subsequent requests return the
// accumulated feed. Pagination state lives server-side in the session, so
// there is no cursor parameter.
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	view, err := h.feedService.GetFeed(r.Context(), userID)
	if err != nil {
		log.Printf("[ERROR] GetFeed handler: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to get feed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, view)
}

// LoadMore handles POST /feed/more
// Appends the next page to the viewer's feed and returns the updated view.
// A no-op when a fetch is already running or the feed is exhausted; after a
// failed page it retries the slices that did not advance.
func (h *FeedHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	view, err := h.feedService.LoadMore(r.Context(), userID)
	if err != nil {
		log.Printf("[ERROR] LoadMore handler: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to load more")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, view)
}

// Explore handles GET /explore
// Lists recent posts from outside the viewer's circle, keyset-paginated.
func (h *FeedHandler) Explore(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			httputil.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	posts, err := h.feedService.Explore(r.Context(), userID, cursor, limit)
	if err != nil {
		log.Printf("[ERROR] Explore handler: user=%d err=%v", userID, err)
		httputil.WriteInternalError(w, "Failed to get explore feed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, posts)
}
