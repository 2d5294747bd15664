package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/closeshop/internal/auth"
	"github.com/dukerupert/closeshop/internal/model"
	"github.com/dukerupert/closeshop/internal/store"
)

const maxCodeAttempts = 5

// ResetMailer delivers password recovery codes.
type ResetMailer interface {
	Configured() bool
	SendPasswordReset(ctx context.Context, toEmail, code string, ttl time.Duration) error
}

type AuthHandler struct {
	userStore     *store.UserStore
	profileStore  *store.ProfileStore
	sessionStore  *store.SessionStore
	recoveryStore *store.RecoveryStore
	tokens        *auth.TokenIssuer
	mailer        ResetMailer
	isAdminEmail  func(string) bool
	logger        *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	ps *store.ProfileStore,
	ss *store.SessionStore,
	rs *store.RecoveryStore,
	tokens *auth.TokenIssuer,
	mailer ResetMailer,
	isAdminEmail func(string) bool,
	logger *slog.Logger,
) *AuthHandler {
	if isAdminEmail == nil {
		isAdminEmail = func(string) bool { return false }
	}
	return &AuthHandler{
		userStore:     us,
		profileStore:  ps,
		sessionStore:  ss,
		recoveryStore: rs,
		tokens:        tokens,
		mailer:        mailer,
		isAdminEmail:  isAdminEmail,
		logger:        logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type sessionResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         sessionUser `json:"user"`
}

// SignUp handles POST /auth/v1/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	role := model.RoleUser
	if h.isAdminEmail(email) {
		role = model.RoleAdmin
	}

	user, err := h.userStore.Create(email, hash, role)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	h.logger.Info("user signed up", "user_id", user.ID, "role", role)
	h.startSession(w, http.StatusCreated, user, role)
}

// Token handles POST /auth/v1/token?grant_type=password|refresh_token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	switch grant := r.URL.Query().Get("grant_type"); grant {
	case "password":
		h.passwordGrant(w, r)
	case "refresh_token":
		h.refreshGrant(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unsupported grant_type")
	}
}

func (h *AuthHandler) passwordGrant(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, err := h.userStore.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusBadRequest, "invalid login credentials")
		return
	}

	profile, err := h.profileStore.Get(user.ID)
	if err != nil || profile == nil {
		h.logger.Error("login profile", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.startSession(w, http.StatusOK, user, profile.Role)
}

func (h *AuthHandler) refreshGrant(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	sess, err := h.sessionStore.GetByToken(req.RefreshToken)
	if err != nil {
		h.logger.Error("refresh lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := h.userStore.GetByID(sess.UserID)
	if err != nil || user == nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	profile, err := h.profileStore.Get(user.ID)
	if err != nil || profile == nil {
		h.logger.Error("refresh profile", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	h.writeSession(w, http.StatusOK, user, profile.Role, sess)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, status int, user *model.User, role string) {
	sess, err := h.sessionStore.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeSession(w, status, user, role, sess)
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, status int, user *model.User, role string, sess *model.Session) {
	token, expiresAt, err := h.tokens.Issue(auth.AuthContext{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      role,
		SessionID: sess.ID,
	})
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, status, sessionResponse{
		AccessToken:  token,
		TokenType:    "bearer",
		ExpiresIn:    int64(h.tokens.TTL().Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		RefreshToken: sess.Token,
		User:         sessionUser{ID: user.ID, Email: user.Email, Role: role},
	})
}

// Logout handles POST /auth/v1/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	if err := h.sessionStore.Delete(ac.SessionID); err != nil {
		h.logger.Error("delete session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sign out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// User handles GET /auth/v1/user
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	user, err := h.userStore.GetByID(ac.UserID)
	if err != nil {
		h.logger.Error("get user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type recoverRequest struct {
	Email string `json:"email"`
}

// Recover handles POST /auth/v1/recover. The response does not reveal
// whether the email has an account.
func (h *AuthHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	user, err := h.userStore.GetByEmail(email)
	if err != nil {
		h.logger.Error("recover lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if user != nil {
		rc, err := h.recoveryStore.Create(email)
		if err != nil {
			h.logger.Error("create recovery code", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if h.mailer == nil || !h.mailer.Configured() {
			h.logger.Warn("email not configured, recovery code not sent", "user_id", user.ID)
		} else if err := h.mailer.SendPasswordReset(r.Context(), email, rc.Code, store.RecoveryCodeTTL); err != nil {
			h.logger.Error("send recovery code", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type verifyRecoveryRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// VerifyRecovery handles POST /auth/v1/verify-recovery
func (h *AuthHandler) VerifyRecovery(w http.ResponseWriter, r *http.Request) {
	var req verifyRecoveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	code := strings.TrimSpace(req.Code)

	if len(req.Password) < auth.MinPasswordLength {
		writeError(w, http.StatusBadRequest, auth.ErrWeakPassword.Error())
		return
	}

	if _, errMsg := h.validateCode(email, code); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	user, err := h.userStore.GetByEmail(email)
	if err != nil || user == nil {
		h.logger.Error("verify recovery user lookup", "error", err)
		writeError(w, http.StatusBadRequest, "account not found")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.userStore.UpdatePassword(user.ID, hash); err != nil {
		h.logger.Error("update password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Existing sessions were authenticated with the old password.
	if err := h.sessionStore.DeleteByUserID(user.ID); err != nil {
		h.logger.Error("revoke sessions", "error", err)
	}

	h.logger.Info("password reset", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_updated"})
}

// validateCode checks the code for the given email, handling attempts and expiry.
// Returns the recovery code on success, or an error message on failure.
func (h *AuthHandler) validateCode(email, code string) (*model.RecoveryCode, string) {
	if email == "" || code == "" {
		return nil, "email and code are required"
	}

	latest, err := h.recoveryStore.GetLatestByEmail(email)
	if err != nil {
		h.logger.Error("validate code lookup", "error", err)
		return nil, "internal error"
	}
	if latest == nil {
		return nil, "code has expired or already been used"
	}

	if latest.Attempts >= maxCodeAttempts {
		h.recoveryStore.MarkUsed(latest.ID)
		return nil, "too many incorrect attempts, request a new code"
	}

	if latest.Code != code {
		newAttempts, err := h.recoveryStore.IncrementAttempts(latest.ID)
		if err != nil {
			h.logger.Error("increment attempts", "error", err)
		}
		if newAttempts >= maxCodeAttempts {
			h.recoveryStore.MarkUsed(latest.ID)
			return nil, "too many incorrect attempts, request a new code"
		}
		return nil, "incorrect code"
	}

	if err := h.recoveryStore.MarkUsed(latest.ID); err != nil {
		h.logger.Error("mark used", "error", err)
		return nil, "internal error"
	}

	return latest, ""
}
