package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/edusat-bridge/internal/history"
)

const (
	defaultHistoryLimit = history.DefaultListLimit
	maxHistoryLimit     = history.MaxListLimit

	// maxQueryParamLen bounds path and query parameters.
	maxQueryParamLen = 64
)

// handleGetHistory returns journaled snapshots, most recent first.
//
// Query parameters: limit (1..500, default 50), offset, since (RFC3339).
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "telemetry journal is disabled")
		return
	}

	q := r.URL.Query()

	limit, err := parseHistoryLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	offset, err := parseOffset(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	since, err := parseSinceParam(q.Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since timestamp")
		return
	}

	result, err := s.history.List(r.Context(), history.Filter{
		Since:  since,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("failed to list telemetry history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list telemetry history")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseHistoryLimit parses and validates the limit query parameter.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}

// parseOffset parses the offset query parameter.
func parseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid offset")
	}
	return offset, nil
}

// parseSinceParam parses the since parameter as RFC3339/RFC3339Nano.
func parseSinceParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if len(raw) > maxQueryParamLen {
		return time.Time{}, fmt.Errorf("since too long")
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
