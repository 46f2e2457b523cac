package api

import (
	_ "embed"
	"net/http"
	"time"

	"github.com/phrazzld/stockroom/internal/api/shared"
)

//go:embed docs.html
var docsPage []byte

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Time: time.Now().UTC()})
}

// Docs handles GET /docs with a static endpoint reference.
func Docs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(docsPage)
}
