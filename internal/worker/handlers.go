package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/thebtf/goalmatch/internal/matcher"
	"github.com/thebtf/goalmatch/pkg/models"
)

// writeJSON writes a JSON response with proper error handling.
func (s *Service) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error body with the given status.
func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeMatcherError maps matcher errors onto HTTP statuses: unknown
// recipients are 404, embedding provider failures are 503, everything else
// is a 500.
func (s *Service) writeMatcherError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, matcher.ErrRecipientNotFound):
		s.writeError(w, http.StatusNotFound, "recipient not found")
	case errors.Is(err, matcher.ErrEmbeddingUnavailable):
		s.log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("Embedding provider unavailable")
		s.writeError(w, http.StatusServiceUnavailable, "embedding provider unavailable")
	default:
		s.log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("Request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// validAlpha reports whether an alpha override is usable. Nil means "use
// the configured default" and is always valid; an explicit value must lie
// in [0, 1].
func validAlpha(alpha *float64) bool {
	return alpha == nil || (*alpha >= 0 && *alpha <= 1)
}

// handleHealth handles health check requests.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// GoalSimilarityRequest is the request body for corpus matching. Alpha is
// optional; when omitted the configured default threshold applies, and an
// explicit 0 requests every positive pair.
type GoalSimilarityRequest struct {
	RecipientID             int64    `json:"recipient_id"`
	Alpha                   *float64 `json:"alpha,omitempty"`
	Cluster                 bool     `json:"cluster,omitempty"`
	IncludeCuratedTemplates bool     `json:"include_curated_templates,omitempty"`
}

// GoalSimilarityResponse is the response for corpus matching. Matches is
// populated in flat mode, Clusters in cluster mode.
type GoalSimilarityResponse struct {
	Matches  []models.Match   `json:"matches"`
	Clusters []models.Cluster `json:"clusters,omitempty"`
}

// handleGoalSimilarity matches every goal in the recipient's scope against
// the others.
func (s *Service) handleGoalSimilarity(w http.ResponseWriter, r *http.Request) {
	var req GoalSimilarityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.RecipientID <= 0 {
		s.writeError(w, http.StatusBadRequest, "recipient_id is required")
		return
	}
	if !validAlpha(req.Alpha) {
		s.writeError(w, http.StatusBadRequest, "alpha must be between 0 and 1")
		return
	}

	res, err := s.matcher.MatchGoals(r.Context(), req.RecipientID, matcher.MatchOptions{
		Alpha:                   req.Alpha,
		Cluster:                 req.Cluster,
		IncludeCuratedTemplates: req.IncludeCuratedTemplates,
	})
	if err != nil {
		s.writeMatcherError(w, r, err)
		return
	}

	resp := GoalSimilarityResponse{Matches: res.Matches, Clusters: res.Clusters}
	if resp.Matches == nil {
		resp.Matches = []models.Match{}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// SimilarGoalsRequest is the request body for nearest-neighbor lookup of a
// draft goal text. Alpha follows the same convention as
// GoalSimilarityRequest.
type SimilarGoalsRequest struct {
	RecipientID             int64    `json:"recipient_id"`
	Name                    string   `json:"name"`
	Alpha                   *float64 `json:"alpha,omitempty"`
	IncludeCuratedTemplates bool     `json:"include_curated_templates,omitempty"`
}

// SimilarGoalsResponse is the response for nearest-neighbor lookup.
type SimilarGoalsResponse struct {
	SimilarGoals []models.SimilarGoal `json:"similarGoals"`
}

// handleSimilarGoals finds goals in the recipient's scope similar to a
// candidate goal name.
func (s *Service) handleSimilarGoals(w http.ResponseWriter, r *http.Request) {
	var req SimilarGoalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.RecipientID <= 0 {
		s.writeError(w, http.StatusBadRequest, "recipient_id is required")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !validAlpha(req.Alpha) {
		s.writeError(w, http.StatusBadRequest, "alpha must be between 0 and 1")
		return
	}

	similar, err := s.matcher.FindSimilar(r.Context(), req.RecipientID, req.Name, matcher.SimilarOptions{
		Alpha:                   req.Alpha,
		IncludeCuratedTemplates: req.IncludeCuratedTemplates,
	})
	if err != nil {
		s.writeMatcherError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, SimilarGoalsResponse{SimilarGoals: similar})
}

// StringSimilarityRequest is the request body for plain string comparison.
type StringSimilarityRequest struct {
	String1 string `json:"string1"`
	String2 string `json:"string2"`
}

// StringSimilarityResponse is the response for plain string comparison.
type StringSimilarityResponse struct {
	Similarity float64 `json:"similarity"`
}

// handleStringSimilarity compares two arbitrary strings.
func (s *Service) handleStringSimilarity(w http.ResponseWriter, r *http.Request) {
	var req StringSimilarityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.String1 == "" || req.String2 == "" {
		s.writeError(w, http.StatusBadRequest, "string1 and string2 are required")
		return
	}

	sim, err := s.matcher.CompareStrings(r.Context(), req.String1, req.String2)
	if err != nil {
		s.writeMatcherError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, StringSimilarityResponse{Similarity: sim})
}

// handleSweepTrigger starts a cache sweep in the background. The sweep's
// advisory lock makes a concurrent trigger a no-op.
func (s *Service) handleSweepTrigger(w http.ResponseWriter, r *http.Request) {
	// Detach from the request context; the sweep outlives the request.
	s.sweeper.RunNow(context.WithoutCancel(r.Context()))
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleSweepStats reports sweep scheduling and run statistics.
func (s *Service) handleSweepStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sweeper.Stats())
}
