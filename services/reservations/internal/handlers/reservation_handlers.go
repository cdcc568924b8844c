package handlers

import (
	"net/http"
	"strconv"

	"github.com/diagnosis/apartment-reservations/pkg/response"
	"github.com/diagnosis/apartment-reservations/services/reservations/internal/domain"
)

// CheckAvailability answers whether [since, until) is free.
func (h *Handlers) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	since, err := h.queryTime(r, "since", true)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	until, err := h.queryTime(r, "until", true)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	ok, err := h.svc.CheckAvailability(r.Context(), since, until)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, AvailabilityDTO{Since: since, Until: until, IsAvailable: ok})
}

// Calendar lists the reservations shown on a calendar opening at since
// (today by default).
func (h *Handlers) Calendar(w http.ResponseWriter, r *http.Request) {
	since, err := h.queryTime(r, "since", false)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if since.IsZero() {
		since = h.now()
	}
	months := 0
	if v := r.URL.Query().Get("months"); v != "" {
		if months, err = strconv.Atoi(v); err != nil || months < 1 {
			response.BadRequest(w, "months must be a positive integer")
			return
		}
	}

	list, err := h.svc.CalendarFrom(r.Context(), since, months)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, h.toDTOs(list))
}

func (h *Handlers) ReservationsInRange(w http.ResponseWriter, r *http.Request) {
	from, err := h.queryTime(r, "from", true)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	to, err := h.queryTime(r, "to", true)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	list, err := h.svc.ReservationsInRange(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, h.toDTOs(list))
}

func (h *Handlers) CurrentOccupant(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.CurrentOccupant(r.Context(), h.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	response.JSON(w, http.StatusOK, h.toDTO(res))
}

func (h *Handlers) Closest(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	res, err := h.svc.ClosestForUser(r.Context(), a.UserID, h.now())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	response.JSON(w, http.StatusOK, h.toDTO(res))
}

func (h *Handlers) PreviousGuests(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}
	limit, _ := parsePagination(r)

	guests, err := h.svc.PreviousGuests(r.Context(), a, r.URL.Query().Get("name"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if guests == nil {
		guests = []domain.Guest{}
	}
	response.JSON(w, http.StatusOK, guests)
}

// History lists the caller's own reservations, newest first.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}
	limit, offset := parsePagination(r)

	list, err := h.svc.History(r.Context(), a.UserID, limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, h.toDTOs(list))
}

func (h *Handlers) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}
	req, err := h.decodeStay(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	res, err := h.svc.Create(r.Context(), a.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, h.toDTO(res))
}

func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}
	id, err := pathID(r)
	if err != nil {
		response.BadRequest(w, "Invalid reservation ID")
		return
	}

	res, err := h.svc.Get(r.Context(), id, a)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, h.toDTO(res))
}

// Update replaces the stay and guest list. Admin callers skip the
// ownership filter.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}
	id, err := pathID(r)
	if err != nil {
		response.BadRequest(w, "Invalid reservation ID")
		return
	}
	req, err := h.decodeStay(r)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	res, err := h.svc.Update(r.Context(), id, a, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, h.toDTO(res))
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}
	id, err := pathID(r)
	if err != nil {
		response.BadRequest(w, "Invalid reservation ID")
		return
	}

	res, err := h.svc.Cancel(r.Context(), id, a)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, h.toDTO(res))
}
