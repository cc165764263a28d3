package handler

import (
	"net/http"
	"time"

	"taskkash/internal/config"
	"taskkash/internal/service"
)

// AuthHandler serves sign-up, sign-in and account settings.
type AuthHandler struct {
	auth   *service.AuthService
	cookie config.AuthConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService, cfg config.AuthConfig) *AuthHandler {
	return &AuthHandler{auth: auth, cookie: cfg}
}

func (h *AuthHandler) setSession(w http.ResponseWriter, sess *service.Session) {
	if h.cookie.CookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookie.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	sess, err := h.auth.Register(r.Context(), service.RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		Error(w, r, err)
		return
	}
	h.setSession(w, sess)
	Created(w, "account created", sess)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	sess, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		Error(w, r, err)
		return
	}
	h.setSession(w, sess)
	OK(w, "signed in", sess)
}

// Logout handles POST /api/auth/logout. Tokens are stateless, so only the
// cookie is cleared.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.cookie.CookieName != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookie.CookieName,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cookie.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	OK(w, "signed out", nil)
}

// ForgotPassword handles POST /api/auth/forgot-password. The response is the
// same whether or not the email is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "if the email is registered, a reset link has been sent", nil)
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "password updated", nil)
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.auth.Me(r.Context(), u.ID)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "", user)
}

// UpdateProfile handles PATCH /api/me.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	user, err := h.auth.UpdateProfile(r.Context(), u.ID, req.Name)
	if err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "profile updated", user)
}

// ChangePassword handles POST /api/me/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.auth.ChangePassword(r.Context(), u.ID, req.CurrentPassword, req.NewPassword); err != nil {
		Error(w, r, err)
		return
	}
	OK(w, "password changed", nil)
}
