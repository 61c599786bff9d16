package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fortuna/volleysync/internal/changegate"
	"github.com/fortuna/volleysync/internal/ingest"
	"github.com/fortuna/volleysync/internal/scheduler"
	"github.com/fortuna/volleysync/internal/service"
	"github.com/fortuna/volleysync/internal/store"
	"github.com/gorilla/mux"
)

// Scheduler is the part of the orchestrator the API reads and triggers.
type Scheduler interface {
	Sources() []ingest.Source
	Source(id string) (ingest.Source, bool)
	State(ctx context.Context, id string) (map[string]store.ScrapeState, error)
	NextRun(id string) time.Time
	LastReport(id string) *ingest.Report
	LastReports() []*ingest.Report
	Trigger(ctx context.Context, id string, force bool) (*ingest.Report, error)
}

// League serves read-side views of a group.
type League interface {
	Standings(ctx context.Context, groupID string) ([]*store.Team, error)
	Matches(ctx context.Context, groupID string, f service.MatchFilter) ([]*service.MatchSummary, error)
	Summary(ctx context.Context, groupID string) (*service.GroupSummary, error)
}

// HealthChecker reports backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	scheduler Scheduler
	league    League
	health    []HealthChecker
}

// NewHandler creates a new handler. league may be nil, which disables
// the group routes.
func NewHandler(s Scheduler, league League, health ...HealthChecker) *Handler {
	return &Handler{scheduler: s, league: league, health: health}
}

type sourceView struct {
	ID         string         `json:"id"`
	GroupID    string         `json:"groupId"`
	URL        string         `json:"url"`
	MatchesURL string         `json:"matchesUrl,omitempty"`
	Kind       ingest.Kind    `json:"kind"`
	Render     ingest.Render  `json:"render"`
	NextRun    *time.Time     `json:"nextRun,omitempty"`
	LastRun    *ingest.Report `json:"lastRun,omitempty"`
}

type sectionState struct {
	store.ScrapeState
	Stale     bool   `json:"stale"`
	NextDelay string `json:"nextDelay"`
}

type runResponse struct {
	Report    *ingest.Report `json:"report"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"errorKind,omitempty"`
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, hc := range h.health {
		if err := hc.HealthCheck(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "Backend unavailable", err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "volleysync",
	})
}

// ListSources returns every configured source with its last run.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources := h.scheduler.Sources()
	views := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		views = append(views, h.view(src))
	}
	respondJSON(w, http.StatusOK, views)
}

// GetSource returns one source.
func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	src, ok := h.scheduler.Source(mux.Vars(r)["sourceID"])
	if !ok {
		respondError(w, http.StatusNotFound, "Source not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, h.view(src))
}

// GetSourceState returns the gate state per section, flagging sections
// whose last detected change never reached the store.
func (h *Handler) GetSourceState(w http.ResponseWriter, r *http.Request) {
	states, err := h.scheduler.State(r.Context(), mux.Vars(r)["sourceID"])
	if errors.Is(err, scheduler.ErrUnknownSource) {
		respondError(w, http.StatusNotFound, "Source not found", err)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load state", err)
		return
	}

	out := make(map[string]sectionState, len(states))
	for section, st := range states {
		out[section] = sectionState{
			ScrapeState: st,
			Stale:       changegate.Stale(st),
			NextDelay:   changegate.NextDelay(st.ConsecutiveNoChange).String(),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// RunSource triggers a run through the scheduler loop and waits for it.
func (h *Handler) RunSource(w http.ResponseWriter, r *http.Request) {
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid force parameter", err)
			return
		}
		force = parsed
	}

	report, err := h.scheduler.Trigger(r.Context(), mux.Vars(r)["sourceID"], force)
	switch {
	case errors.Is(err, scheduler.ErrUnknownSource):
		respondError(w, http.StatusNotFound, "Source not found", err)
		return
	case errors.Is(err, scheduler.ErrNotRunning):
		respondError(w, http.StatusServiceUnavailable, "Scheduler is not running", err)
		return
	case report == nil:
		respondError(w, http.StatusBadGateway, "Run failed", err)
		return
	}

	resp := runResponse{Report: report}
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorKind = ingest.ErrorKind(err)
	}
	respondJSON(w, http.StatusOK, resp)
}

// LastRuns returns the latest report of every source.
func (h *Handler) LastRuns(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.LastReports())
}

// GetStandings returns the stored table of a group.
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	teams, err := h.league.Standings(r.Context(), mux.Vars(r)["groupID"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch standings", err)
		return
	}
	respondJSON(w, http.StatusOK, teams)
}

// GetMatches returns the fixtures of a group.
// Query params: round, status (scheduled|final), team.
func (h *Handler) GetMatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := service.MatchFilter{
		Status: store.MatchStatus(q.Get("status")),
		TeamID: q.Get("team"),
	}
	if f.Status != "" && f.Status != store.StatusScheduled && f.Status != store.StatusFinal {
		respondError(w, http.StatusBadRequest, "Invalid status parameter", nil)
		return
	}
	if v := q.Get("round"); v != "" {
		round, err := strconv.Atoi(v)
		if err != nil || round < 1 {
			respondError(w, http.StatusBadRequest, "Invalid round parameter", err)
			return
		}
		f.Round = round
	}

	matches, err := h.league.Matches(r.Context(), mux.Vars(r)["groupID"], f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch matches", err)
		return
	}
	respondJSON(w, http.StatusOK, matches)
}

// GetGroupSummary returns counts and the leader of a group.
func (h *Handler) GetGroupSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.league.Summary(r.Context(), mux.Vars(r)["groupID"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch summary", err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (h *Handler) view(src ingest.Source) sourceView {
	v := sourceView{
		ID:         src.ID,
		GroupID:    src.Group(),
		URL:        src.URL,
		MatchesURL: src.MatchesURL,
		Kind:       src.Kind,
		Render:     src.Render,
		LastRun:    h.scheduler.LastReport(src.ID),
	}
	if next := h.scheduler.NextRun(src.ID); !next.IsZero() {
		v.NextRun = &next
	}
	return v
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}
