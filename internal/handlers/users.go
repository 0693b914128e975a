package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tanvir-rahman/doctorsportal/internal/model"
	"github.com/tanvir-rahman/doctorsportal/internal/storage"
)

type UserHandler struct {
	users  *storage.UserRepository
	logger *slog.Logger
}

func NewUserHandler(users *storage.UserRepository, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users, err := h.users.List(r.Context())
	if err != nil {
		h.logger.Error("user list failed", "err", err)
		http.Error(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

type promoteRequest struct {
	UserID string `json:"user_id"`
}

func (h *UserHandler) Promote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	if err := h.users.PromoteToAdmin(r.Context(), req.UserID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		h.logger.Error("user promotion failed", "err", err, "user_id", req.UserID)
		http.Error(w, "failed to promote user", http.StatusInternalServerError)
		return
	}

	h.logger.Info("user promoted to admin", "user_id", req.UserID)
	w.WriteHeader(http.StatusNoContent)
}
