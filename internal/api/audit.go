package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/duckmesh/warehouse-mcp/internal/audit"
)

func handleAuditList(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.AuditReader == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "AUDIT_NOT_CONFIGURED", "query audit is not enabled", false, nil)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}

	entries, err := deps.AuditReader.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "AUDIT_ERROR", "failed to read query audit", true, map[string]any{"details": err.Error()})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
