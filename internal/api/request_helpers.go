package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/stockroom/internal/api/shared"
	"github.com/phrazzld/stockroom/internal/platform/logger"
)

// callerFromContext returns the authenticated caller ID placed in the
// request context by the authentication middleware.
func callerFromContext(r *http.Request) (string, bool) {
	p, ok := shared.GetPrincipal(r.Context())
	if !ok {
		return "", false
	}
	return p.CallerID, true
}

// handleCallerAndPathID is a composite helper that extracts both the caller
// from context and a path parameter. It writes an error response if either
// extraction fails.
func handleCallerAndPathID(w http.ResponseWriter, r *http.Request, paramName string) (string, string, bool) {
	log := logger.FromContextOrDefault(r.Context())

	callerID, ok := callerFromContext(r)
	if !ok {
		log.Warn("caller not found in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return "", "", false
	}

	id := chi.URLParam(r, paramName)
	if id == "" || len(id) > 128 {
		log.Debug("invalid path parameter", "param_name", paramName, "value", id)
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+paramName)
		return "", "", false
	}

	return callerID, id, true
}
