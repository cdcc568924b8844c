package handlers

import (
	"net/http"

	"github.com/diagnosis/apartment-reservations/pkg/response"
	"github.com/diagnosis/apartment-reservations/services/reservations/internal/domain"
)

// ListAll returns every reservation, optionally filtered by ?state=.
func (h *Handlers) ListAll(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	var state *domain.State
	if raw := r.URL.Query().Get("state"); raw != "" {
		st, ok := domain.ParseState(raw)
		if !ok {
			response.BadRequest(w, "Invalid state parameter")
			return
		}
		state = &st
	}

	list, err := h.svc.ListAll(r.Context(), state, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, h.toDTOs(list))
}
