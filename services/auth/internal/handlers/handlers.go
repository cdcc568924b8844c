package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/diagnosis/apartment-reservations/pkg/auth"
	"github.com/diagnosis/apartment-reservations/pkg/logger"
	mw "github.com/diagnosis/apartment-reservations/pkg/middleware"
	"github.com/diagnosis/apartment-reservations/pkg/response"
	"github.com/diagnosis/apartment-reservations/services/auth/internal/domain"
	"github.com/diagnosis/apartment-reservations/services/auth/internal/service"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	authService service.AuthService
}

func New(authService service.AuthService) *Handlers {
	return &Handlers{authService: authService}
}

func (h *Handlers) Routes(r chi.Router, jwtSecret string) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireJWT(jwtSecret, ""))
		r.Get("/me", h.Me)
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireJWT(jwtSecret, auth.RoleAdmin))
		r.Get("/users", h.SearchUsers)
	})
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	user, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, user.ToUserInfo())
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	resp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	claims := mw.ClaimsFrom(r.Context())
	if claims == nil {
		response.Unauthorized(w, "Missing token")
		return
	}
	user, err := h.authService.GetUser(r.Context(), claims.Sub)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, user.ToUserInfo())
}

func (h *Handlers) SearchUsers(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	users, err := h.authService.SearchUsers(r.Context(), r.URL.Query().Get("name"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	infos := make([]*domain.UserInfo, 0, len(users))
	for i := range users {
		infos = append(infos, users[i].ToUserInfo())
	}
	response.JSON(w, http.StatusOK, map[string]any{"users": infos})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		response.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrEmailExists):
		response.WriteError(w, http.StatusConflict, "Email already registered", response.CodeEmailExists)
	case errors.Is(err, domain.ErrInvalidCredentials):
		response.Unauthorized(w, "Invalid email or password")
	case errors.Is(err, domain.ErrUserNotFound):
		response.NotFound(w, "User not found")
	default:
		logger.ErrorContext(r.Context(), "Auth request failed", "error", err, "path", r.URL.Path)
		response.InternalError(w, "Internal server error")
	}
}
