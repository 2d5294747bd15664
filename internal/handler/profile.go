package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/closeshop/internal/auth"
	"github.com/dukerupert/closeshop/internal/model"
	"github.com/dukerupert/closeshop/internal/store"
)

type ProfileHandler struct {
	profileStore *store.ProfileStore
	logger       *slog.Logger
}

func NewProfileHandler(ps *store.ProfileStore, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profileStore: ps, logger: logger}
}

// Get handles GET /rest/v1/profiles/{id}. Device tokens are only shown to
// the owner and admins.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	profile, err := h.profileStore.Get(id)
	if err != nil {
		h.logger.Error("get profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get profile")
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	if auth.UserID(r.Context()) != id && !auth.IsAdmin(r.Context()) {
		profile.FCMToken = ""
	}
	writeJSON(w, http.StatusOK, profile)
}

type updateProfileRequest struct {
	FullName *string `json:"full_name"`
	FCMToken *string `json:"fcm_token"`
}

// Update handles PATCH /rest/v1/profiles/{id}. Absent fields keep their value.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if auth.UserID(r.Context()) != id {
		writeError(w, http.StatusForbidden, "cannot edit another user's profile")
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	current, err := h.profileStore.Get(id)
	if err != nil {
		h.logger.Error("get profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	if current == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}

	fullName, fcmToken := current.FullName, current.FCMToken
	if req.FullName != nil {
		fullName = strings.TrimSpace(*req.FullName)
	}
	if req.FCMToken != nil {
		fcmToken = strings.TrimSpace(*req.FCMToken)
	}

	updated, err := h.profileStore.Update(id, fullName, fcmToken)
	if err != nil {
		h.logger.Error("update profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ListAll handles GET /admin/v1/profiles
func (h *ProfileHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profileStore.List()
	if err != nil {
		h.logger.Error("list profiles", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list profiles")
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(profiles))
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// SetRole handles PUT /admin/v1/profiles/{id}/role
func (h *ProfileHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Role != model.RoleUser && req.Role != model.RoleAdmin {
		writeError(w, http.StatusBadRequest, "role must be user or admin")
		return
	}
	if id == auth.UserID(r.Context()) && req.Role != model.RoleAdmin {
		writeError(w, http.StatusBadRequest, "cannot remove your own admin role")
		return
	}

	profile, err := h.profileStore.SetRole(id, req.Role)
	if err != nil {
		h.logger.Error("set role", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set role")
		return
	}
	if profile == nil {
		writeError(w, http.StatusNotFound, "profile not found")
		return
	}
	h.logger.Info("role changed", "profile_id", id, "role", req.Role, "by", auth.UserID(r.Context()))
	writeJSON(w, http.StatusOK, profile)
}
