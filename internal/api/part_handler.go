package api

import (
	"context"
	"net/http"

	"github.com/phrazzld/stockroom/internal/api/shared"
	"github.com/phrazzld/stockroom/internal/part"
)

// PartReader reads enriched part records.
type PartReader interface {
	Get(ctx context.Context, id string) (*part.Record, error)
}

// PartHandler serves the enriched part records tasks write to.
type PartHandler struct {
	parts PartReader
}

// NewPartHandler creates a new PartHandler.
func NewPartHandler(parts PartReader) *PartHandler {
	return &PartHandler{parts: parts}
}

// GetPart handles GET /parts/{id}.
func (h *PartHandler) GetPart(w http.ResponseWriter, r *http.Request) {
	_, id, ok := handleCallerAndPathID(w, r, "id")
	if !ok {
		return
	}

	rec, err := h.parts.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get part")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, rec)
}
