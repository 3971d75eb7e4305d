package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/meincms/apiserver/internal/auth"
	"github.com/meincms/apiserver/internal/services"
	"github.com/meincms/apiserver/types"
)

// UserAdminAPI is the account management surface used by AdminHandler.
type UserAdminAPI interface {
	List(ctx context.Context) ([]types.User, error)
	GetByID(ctx context.Context, id int) (types.User, error)
	Create(ctx context.Context, in services.CreateUserInput) (types.User, error)
	Update(ctx context.Context, id int, in services.UpdateUserInput) (types.User, error)
	Delete(ctx context.Context, actor auth.Identity, id int) error
	Stats(ctx context.Context) (services.Stats, error)
}

// AdminHandler exposes account management to operators and administrators.
type AdminHandler struct {
	users  UserAdminAPI
	logger *slog.Logger
}

func NewAdminHandler(users UserAdminAPI, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{users: users, logger: logger}
}

// AdminRouter registers admin routes. Stats are visible from operator up;
// account management is admin only.
func AdminRouter(r chi.Router, authenticator Authenticator, h *AdminHandler) {
	r.Use(RequireAuth(authenticator))

	r.With(RequireMinRole(authenticator, types.RoleOperator)).Get("/stats", h.Stats)

	r.Route("/users", func(r chi.Router) {
		r.Use(RequireRoles(authenticator, types.RoleAdmin))
		r.Get("/", h.ListUsers)
		r.Post("/", h.CreateUser)
		r.Get("/{userID}", h.GetUser)
		r.Put("/{userID}", h.UpdateUser)
		r.Delete("/{userID}", h.DeleteUser)
	})
}

type CreateUserRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	IsActive   *bool  `json:"is_active"`
	IsVerified *bool  `json:"is_verified"`
}

type UpdateUserRequest struct {
	Username   *string `json:"username"`
	Email      *string `json:"email"`
	Role       *string `json:"role"`
	IsActive   *bool   `json:"is_active"`
	IsVerified *bool   `json:"is_verified"`
	Password   *string `json:"password"`
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListUsers returns accounts newest first.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username, email, and password are required")
		return
	}
	if len(req.Password) > maxPasswordBytes {
		writeError(w, http.StatusBadRequest, "password must be at most 72 bytes")
		return
	}

	user, err := h.users.Create(r.Context(), services.CreateUserInput{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		Role:       req.Role,
		IsActive:   req.IsActive,
		IsVerified: req.IsVerified,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("user created",
		slog.Int("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	writeJSON(w, http.StatusCreated, user)
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Password != nil && len(*req.Password) > maxPasswordBytes {
		writeError(w, http.StatusBadRequest, "password must be at most 72 bytes")
		return
	}

	user, err := h.users.Update(r.Context(), id, services.UpdateUserInput{
		Username:   req.Username,
		Email:      req.Email,
		Role:       req.Role,
		IsActive:   req.IsActive,
		IsVerified: req.IsVerified,
		Password:   req.Password,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeServiceError(w, h.logger, auth.ErrUnauthenticated)
		return
	}

	if err := h.users.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("user deleted", slog.Int("user_id", id), slog.Int("actor_id", actor.ID))
	w.WriteHeader(http.StatusNoContent)
}
