package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/diagnosis/apartment-reservations/pkg/auth"
	"github.com/diagnosis/apartment-reservations/pkg/logger"
	mw "github.com/diagnosis/apartment-reservations/pkg/middleware"
	"github.com/diagnosis/apartment-reservations/pkg/response"
	"github.com/diagnosis/apartment-reservations/services/reservations/internal/domain"
	"github.com/diagnosis/apartment-reservations/services/reservations/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Handlers struct {
	svc      service.ReservationService
	loc      *time.Location
	validate *validator.Validate
	now      func() time.Time
}

func New(svc service.ReservationService, loc *time.Location) *Handlers {
	if loc == nil {
		loc = time.UTC
	}
	return &Handlers{
		svc:      svc,
		loc:      loc,
		validate: validator.New(),
		now:      time.Now,
	}
}

type RouteOptions struct {
	JWTSecret   string
	Idempotency func(http.Handler) http.Handler
}

// Routes mounts the reservation API. Every route requires a JWT.
func (h *Handlers) Routes(r chi.Router, opts RouteOptions) {
	r.Route("/reservations", func(r chi.Router) {
		r.Use(mw.RequireJWT(opts.JWTSecret, ""))
		r.Get("/availability", h.CheckAvailability)
		r.Get("/calendar", h.Calendar)
		r.Get("/range", h.ReservationsInRange)
		r.Get("/occupant", h.CurrentOccupant)
		r.Get("/closest", h.Closest)
		r.Get("/previous-guests", h.PreviousGuests)
		r.Get("/", h.History)
		if opts.Idempotency != nil {
			r.With(opts.Idempotency).Post("/", h.Create)
		} else {
			r.Post("/", h.Create)
		}
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Cancel)
	})

	r.Route("/admin/reservations", func(r chi.Router) {
		r.Use(mw.RequireJWT(opts.JWTSecret, auth.RoleAdmin))
		r.Get("/", h.ListAll)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Cancel)
	})
}

// actor trusts the claims set by RequireJWT.
func actor(r *http.Request) (domain.Actor, bool) {
	claims := mw.ClaimsFrom(r.Context())
	if claims == nil {
		return domain.Actor{}, false
	}
	return domain.Actor{UserID: claims.Sub, Admin: claims.IsAdmin()}, true
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// parseTime accepts RFC 3339 instants and plain dates. A plain date is
// midnight in the apartment's timezone.
func (h *Handlers) parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, raw, h.loc)
}

func (h *Handlers) queryTime(r *http.Request, name string, required bool) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		if required {
			return time.Time{}, fmt.Errorf("%s is required", name)
		}
		return time.Time{}, nil
	}
	t, err := h.parseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be an RFC 3339 timestamp or a YYYY-MM-DD date", name)
	}
	return t, nil
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func (h *Handlers) decodeStay(r *http.Request) (domain.StayRequest, error) {
	var req stayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.StayRequest{}, errors.New("invalid JSON format")
	}
	if err := h.validate.Struct(req); err != nil {
		return domain.StayRequest{}, describeValidation(err)
	}
	return req.toDomain(), nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Namespace()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// writeServiceError maps domain errors to HTTP statuses. Anything else is
// an infrastructure failure and is only detailed in the log.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		response.WriteErrorWithDetails(w, http.StatusBadRequest, verr.Message, response.CodeInvalidInput, verr.Field)
	case errors.Is(err, domain.ErrValidation):
		response.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrConflict):
		response.Conflict(w, "The apartment is already booked for some of the selected days")
	case errors.Is(err, domain.ErrCanceled):
		response.WriteError(w, http.StatusConflict, "Reservation is canceled", response.CodeReservationCanceled)
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(w, "Reservation not found")
	default:
		logger.ErrorContext(r.Context(), "Reservation request failed", "error", err, "path", r.URL.Path)
		response.InternalError(w, "Internal server error")
	}
}
