package status

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sileric/mbwatch/internal/backfill"
	"github.com/sileric/mbwatch/internal/cache"
	"github.com/sileric/mbwatch/internal/feed"
)

type statusResponse struct {
	Feed struct {
		State    string   `json:"state"`
		Channels []string `json:"channels"`
	} `json:"feed"`
	Cache           cache.Stats `json:"cache"`
	BackfillRunning bool        `json:"backfillRunning"`
}

type itemResponse struct {
	ItemID    int           `json:"itemID"`
	Lowest    int           `json:"lowest"`
	WorldName string        `json:"worldName,omitempty"`
	Entry     cache.Entry   `json:"entry"`
	Worlds    []cache.Entry `json:"worlds,omitempty"`
}

type backfillRequest struct {
	Items []int  `json:"items"`
	World string `json:"world"`
}

type backfillResponse struct {
	Labels        int      `json:"labels"`
	Requested     int      `json:"requested"`
	Replaced      int      `json:"replaced"`
	FailedBatches int      `json:"failedBatches"`
	Errors        []string `json:"errors,omitempty"`
	Duration      string   `json:"duration"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse
	resp.Feed.State = s.session.State().String()
	resp.Feed.Channels = s.session.Channels()
	if resp.Feed.Channels == nil {
		resp.Feed.Channels = []string{}
	}
	resp.Cache = s.listings.Stats()
	resp.BackfillRunning = s.runner.Running()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFeedRecent(w http.ResponseWriter, r *http.Request) {
	events := s.session.Live().Recent()
	if events == nil {
		events = []feed.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// handleItem returns the cross-world lowest entry for an item, or the
// entry for a single world when ?world=<name|id> is given.
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || itemID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if world := r.URL.Query().Get("world"); world != "" {
		worldID, ok := s.resolveWorld(world)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown world "+world)
			return
		}
		entry, ok := s.listings.Get(itemID, worldID)
		if !ok {
			writeError(w, http.StatusNotFound, "no cached listings")
			return
		}
		name, _ := s.worlds.WorldName(worldID)
		writeJSON(w, http.StatusOK, itemResponse{
			ItemID:    itemID,
			Lowest:    entry.Lowest(),
			WorldName: name,
			Entry:     entry,
		})
		return
	}

	best, ok := s.listings.LowestAcrossWorlds(itemID)
	if !ok {
		writeError(w, http.StatusNotFound, "no cached listings")
		return
	}
	name, _ := s.worlds.WorldName(best.WorldID)
	writeJSON(w, http.StatusOK, itemResponse{
		ItemID:    itemID,
		Lowest:    best.Lowest(),
		WorldName: name,
		Entry:     best,
	})
}

// handleBackfill triggers an ad-hoc pull for the listed items on one
// world. A pass already in flight gets 409.
func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items is required")
		return
	}
	worldID, ok := s.resolveWorld(req.World)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown world "+req.World)
		return
	}

	result, err := s.runner.RunItems(r.Context(), req.Items, worldID)
	if err != nil {
		if errors.Is(err, backfill.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Warn("ad-hoc backfill failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, backfillResponse{
		Labels:        result.Labels,
		Requested:     result.Requested,
		Replaced:      result.Replaced,
		FailedBatches: result.FailedBatches,
		Errors:        result.Errors,
		Duration:      result.Duration.Round(time.Millisecond).String(),
	})
}

// resolveWorld accepts either a world name or a numeric id.
func (s *Server) resolveWorld(world string) (int, bool) {
	if id, err := strconv.Atoi(world); err == nil {
		if _, ok := s.worlds.WorldName(id); ok {
			return id, true
		}
		return 0, false
	}
	return s.worlds.WorldID(world)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
