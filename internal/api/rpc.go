package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
)

const maxRPCBodyBytes = 8 << 20

// handleRPC carries one JSON-RPC message per request. Protocol errors are
// returned in the JSON-RPC envelope with status 200; notifications get 202
// and no body.
func handleRPC(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.RPC == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RPC_NOT_CONFIGURED", "rpc router is not configured", false, nil)
		return
	}
	if contentType := r.Header.Get("Content-Type"); contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		writeError(r.Context(), w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "content type must be application/json", false, nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRPCBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body is too large", false, map[string]any{"limit_bytes": tooLarge.Limit})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "failed to read request body", false, map[string]any{"details": err.Error()})
		return
	}

	response := deps.RPC.Handle(r.Context(), body)
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, response)
}
