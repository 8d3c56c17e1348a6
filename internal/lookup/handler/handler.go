// Package handler serves forward index lookups over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/forward/token"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/lookup/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/logger"
)

// Router resolves the engine owning a document; shard.Router implements it.
type Router interface {
	ForDocument(docID string) *indexer.Engine
	ReloadAll() int
}

type Handler struct {
	router Router
	cache  *cache.LookupCache
	logger *slog.Logger
}

// New creates a Handler. lookupCache may be nil to serve uncached.
func New(router Router, lookupCache *cache.LookupCache) *Handler {
	return &Handler{
		router: router,
		cache:  lookupCache,
		logger: slog.Default().With("component", "lookup-handler"),
	}
}

// Register adds the lookup routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	const doc = "/api/v1/docs/{doc}/fields/{field}"
	mux.HandleFunc("GET "+doc+"/tokens/{id}", h.GetToken)
	mux.HandleFunc("GET "+doc+"/positions", h.GetPositions)
	mux.HandleFunc("GET "+doc+"/parents/{id}", h.GetChildren)
	mux.HandleFunc("GET "+doc+"/stats", h.GetStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("POST /api/v1/admin/reload", h.Reload)
}

// TokenView is the JSON form of a token with its value split into layer
// and text.
type TokenView struct {
	ID         int             `json:"id"`
	Parent     *int            `json:"parent,omitempty"`
	Layer      string          `json:"layer"`
	Text       string          `json:"text"`
	Position   *token.Position `json:"position,omitempty"`
	Offset     *token.Offset   `json:"offset,omitempty"`
	RealOffset *token.Offset   `json:"real_offset,omitempty"`
	Payload    []byte          `json:"payload,omitempty"`
}

func viewOf(t *token.Token) TokenView {
	return TokenView{
		ID:         t.ID,
		Parent:     t.ParentID,
		Layer:      t.Prefix(),
		Text:       t.Postfix(),
		Position:   t.Position,
		Offset:     t.Offset,
		RealOffset: t.RealOffset,
		Payload:    t.Payload,
	}
}

// TokenList is the response of the multi-token lookups.
type TokenList struct {
	DocID  string      `json:"doc_id"`
	Field  string      `json:"field"`
	Count  int         `json:"count"`
	Tokens []TokenView `json:"tokens"`
}

func listOf(docID, field string, tokens []*token.Token) TokenList {
	views := make([]TokenView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, viewOf(t))
	}
	return TokenList{DocID: docID, Field: field, Count: len(views), Tokens: views}
}

func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	docID, field := r.PathValue("doc"), r.PathValue("field")
	id, err := intParam(r.PathValue("id"), "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	key := cache.Key{DocID: docID, Field: field, Op: "by_id", Args: []string{strconv.Itoa(id)}}
	h.serve(w, r, key, func() (any, error) {
		t, err := h.router.ForDocument(docID).GetByID(docID, field, id)
		if err != nil {
			return nil, err
		}
		return viewOf(t), nil
	})
}

// GetPositions serves tokens whose position intersects [start,end]. end
// defaults to start; repeated prefix parameters restrict the layers.
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	docID, field := r.PathValue("doc"), r.PathValue("field")
	q := r.URL.Query()
	start, err := intParam(q.Get("start"), "start")
	if err != nil {
		h.writeError(w, err)
		return
	}
	end := start
	if s := q.Get("end"); s != "" {
		if end, err = intParam(s, "end"); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if start > end {
		h.writeError(w, fmt.Errorf("%w: start %d after end %d", apperrors.ErrInvalidInput, start, end))
		return
	}
	prefixes := q["prefix"]
	args := append([]string{strconv.Itoa(start), strconv.Itoa(end)}, prefixes...)
	key := cache.Key{DocID: docID, Field: field, Op: "by_position", Args: args}
	h.serve(w, r, key, func() (any, error) {
		tokens, err := h.router.ForDocument(docID).GetByPositionRange(docID, field, start, end, prefixes)
		if err != nil {
			return nil, err
		}
		return listOf(docID, field, tokens), nil
	})
}

func (h *Handler) GetChildren(w http.ResponseWriter, r *http.Request) {
	docID, field := r.PathValue("doc"), r.PathValue("field")
	id, err := intParam(r.PathValue("id"), "id")
	if err != nil {
		h.writeError(w, err)
		return
	}
	key := cache.Key{DocID: docID, Field: field, Op: "by_parent", Args: []string{strconv.Itoa(id)}}
	h.serve(w, r, key, func() (any, error) {
		tokens, err := h.router.ForDocument(docID).GetByParent(docID, field, id)
		if err != nil {
			return nil, err
		}
		return listOf(docID, field, tokens), nil
	})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	docID, field := r.PathValue("doc"), r.PathValue("field")
	key := cache.Key{DocID: docID, Field: field, Op: "stats"}
	h.serve(w, r, key, func() (any, error) {
		return h.router.ForDocument(docID).Stats(docID, field)
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops the cached lookups of ?doc=, or everything.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	var deleted int64
	var err error
	if docID := r.URL.Query().Get("doc"); docID != "" {
		deleted, err = h.cache.InvalidateDoc(r.Context(), docID)
	} else {
		deleted, err = h.cache.InvalidateAll(r.Context())
	}
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

// Reload opens newly sealed segments and drops the cache when any appeared.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	loaded := h.router.ReloadAll()
	if loaded > 0 && h.cache != nil {
		if _, err := h.cache.InvalidateAll(r.Context()); err != nil {
			logger.FromContext(r.Context()).Warn("cache invalidation after reload failed", "error", err)
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"segments_loaded": loaded})
}

// serve renders compute's result as JSON, through the cache when enabled.
// Failed lookups are never cached.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, key cache.Key, compute func() (any, error)) {
	start := time.Now()
	log := logger.FromContext(r.Context())
	render := func() ([]byte, error) {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}

	var body []byte
	var err error
	cached := false
	if h.cache != nil {
		body, cached, err = h.cache.GetOrCompute(r.Context(), key, render)
	} else {
		body, err = render()
	}
	if err != nil {
		if status := apperrors.HTTPStatusCode(err); status >= http.StatusInternalServerError {
			log.Error("lookup failed", "doc_id", key.DocID, "field", key.Field, "op", key.Op, "error", err)
		}
		h.writeError(w, err)
		return
	}
	log.Debug("lookup served",
		"doc_id", key.DocID,
		"field", key.Field,
		"op", key.Op,
		"cache_hit", cached,
		"latency", time.Since(start),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func intParam(s, name string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: parameter %q is required", apperrors.ErrInvalidInput, name)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: parameter %q must be a non-negative integer", apperrors.ErrInvalidInput, name)
	}
	return n, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && !errors.Is(err, apperrors.ErrTimeout) {
		msg = "lookup failed"
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}
