package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rzbill/dispatch/internal/journal"
	dispatchsvc "github.com/rzbill/dispatch/internal/services/dispatch"
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

// DispatchController exposes publish, subscribe (SSE), stats and the
// journal over HTTP.
type DispatchController struct {
	svc    *dispatchsvc.Service
	logger logpkg.Logger
}

func NewDispatchController(svc *dispatchsvc.Service, logger logpkg.Logger) *DispatchController {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &DispatchController{svc: svc, logger: logger}
}

// RegisterRoutes registers the dispatch endpoints under /v1.
func (c *DispatchController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/publish", c.handlePublish)
	mux.HandleFunc("/v1/subscribe", c.handleSubscribe)
	mux.HandleFunc("/v1/unsubscribe", c.handleUnsubscribe)
	mux.HandleFunc("/v1/stats", c.handleStats)
	mux.HandleFunc("/v1/journal", c.handleJournal)
}

// handlePublish accepts {"key","payload","headers"} and answers 202 with the
// message id, or 429 when the key's queue is full.
func (c *DispatchController) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	m, err := c.svc.Publish(withRequestID(w, r), req.Key, req.Payload, req.Headers)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(publishResp{ID: m.ID.String(), PublishedMs: m.PublishedMs})
}

// handleSubscribe streams ?key= as Server-Sent Events until the client
// disconnects, ?limit= messages were sent, or the server shuts down.
func (c *DispatchController) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	opts := dispatchsvc.SubscribeOptions{
		Filter:    q.Get("filter"),
		Limit:     parseLimit(q.Get("limit")),
		Transport: "http",
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := &sseSink{w: w}
	err := c.svc.Subscribe(withRequestID(w, r), q.Get("key"), opts, sink)
	if err == nil || r.Context().Err() != nil {
		return
	}
	if sink.wrote {
		c.logger.Debug("http.subscribe.end", logpkg.Str("key", q.Get("key")), logpkg.Err(err))
		return
	}
	writeServiceError(w, err)
}

func (c *DispatchController) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req unsubscribeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Key == "" {
		writeServiceError(w, dispatchsvc.ErrEmptyKey)
		return
	}
	c.svc.Unsubscribe(req.Key)
	w.WriteHeader(http.StatusNoContent)
}

// handleStats returns engine-wide stats, or a single key's with ?key=.
func (c *DispatchController) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, c.svc.Stats())
		return
	}
	ks, ok := c.svc.KeyStats(key)
	if !ok {
		writeError(w, http.StatusNotFound, "Key not found")
		return
	}
	writeJSON(w, keyStatsJSON{Key: key, KeyStats: ks})
}

// maxJournalWait bounds ?wait_ms= long polls.
const maxJournalWait = 30 * time.Second

// handleJournal lists recorded entries for a journaled key after ?after=,
// optionally long-polling up to ?wait_ms= for a new one. DELETE trims the
// key to the newest ?keep= entries.
func (c *DispatchController) handleJournal(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodDelete:
		c.handleJournalTrim(w, r)
		return
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	key := q.Get("key")
	if key != "" && !c.svc.Journaled(key) {
		writeError(w, http.StatusNotFound, "Key is not journaled")
		return
	}
	after, err := parseUint(q.Get("after"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid after")
		return
	}
	waitMs, err := parseUint(q.Get("wait_ms"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid wait_ms")
		return
	}
	wait := time.Duration(waitMs) * time.Millisecond
	if wait > maxJournalWait {
		wait = maxJournalWait
	}
	entries, err := c.svc.WaitJournal(key, after, parseLimit(q.Get("limit")), wait)
	if err != nil {
		if !errors.Is(err, dispatchsvc.ErrEmptyKey) {
			c.logger.Error("http.journal.read", logpkg.Str("key", key), logpkg.Err(err))
		}
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, map[string]any{"key": key, "entries": entries})
}

func (c *DispatchController) handleJournalTrim(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	if key != "" && !c.svc.Journaled(key) {
		writeError(w, http.StatusNotFound, "Key is not journaled")
		return
	}
	keep, err := parseUint(q.Get("keep"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid keep")
		return
	}
	removed, err := c.svc.TrimJournal(r.Context(), key, int(keep))
	if err != nil {
		if !errors.Is(err, dispatchsvc.ErrEmptyKey) {
			c.logger.Error("http.journal.trim", logpkg.Str("key", key), logpkg.Err(err))
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"key": key, "removed": removed})
}
