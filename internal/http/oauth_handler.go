package http

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"log/slog"

	"github.com/natalyineu/db-sub000/internal/auth"
	"github.com/natalyineu/db-sub000/internal/gateway"
)

// oauthStatePayload holds the CSRF state and optional redirect path.
type oauthStatePayload struct {
	State      string `json:"s"`
	RedirectTo string `json:"r,omitempty"`
}

// isValidRedirectPath validates that a path is a safe relative redirect.
// It prevents open redirect attacks by ensuring the path:
// - Starts with a single "/" (not "//")
// - Has no scheme or host component
// - Cannot be bypassed via URL encoding
func isValidRedirectPath(path string) bool {
	if path == "" {
		return false
	}

	decoded, err := url.QueryUnescape(path)
	if err != nil {
		return false
	}

	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") {
		return false
	}

	parsed, err := url.Parse(decoded)
	if err != nil {
		return false
	}

	if parsed.Scheme != "" || parsed.Host != "" {
		return false
	}

	return true
}

const (
	oauthStateCookieName = "dashboard_oauth_state"
	oauthStateCookieTTL  = 10 * time.Minute
)

type googleAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*gateway.GoogleClaims, string, error)
	IsEmailAllowed(email string) bool
}

// OAuthHandler handles the Google consent flow and hands the verified
// ID token to the auth facade for a gateway session.
type OAuthHandler struct {
	google       googleAuthenticator
	service      *auth.Service
	logger       *slog.Logger
	secureCookie bool
	frontendURL  string
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(google googleAuthenticator, service *auth.Service, frontendURL, env string, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		google:       google,
		service:      service,
		logger:       logger,
		secureCookie: !strings.EqualFold(env, "development"),
		frontendURL:  strings.TrimSuffix(frontendURL, "/"),
	}
}

// InitiateGoogle handles GET /api/auth/google
// Redirects the user to Google's OAuth consent screen.
func (h *OAuthHandler) InitiateGoogle(w http.ResponseWriter, r *http.Request) {
	state, err := gateway.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Store state in cookie for CSRF protection
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     "/api/auth",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(oauthStateCookieTTL.Seconds()),
	})

	redirectTo := r.URL.Query().Get("redirectTo")
	payload := oauthStatePayload{State: state}
	if redirectTo != "" && isValidRedirectPath(redirectTo) {
		payload.RedirectTo = redirectTo
	}

	// Encode state as base64 JSON to avoid delimiter issues
	stateJSON, _ := json.Marshal(payload)
	fullState := base64.RawURLEncoding.EncodeToString(stateJSON)

	http.Redirect(w, r, h.google.AuthURL(fullState), http.StatusTemporaryRedirect)
}

// CallbackGoogle handles GET /api/auth/google/callback
// Validates the CSRF state, exchanges the code and signs the user in.
func (h *OAuthHandler) CallbackGoogle(w http.ResponseWriter, r *http.Request) {
	rawState := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if rawState == "" || code == "" {
		h.redirectWithError(w, r, "missing state or code")
		return
	}

	stateJSON, err := base64.RawURLEncoding.DecodeString(rawState)
	if err != nil {
		h.redirectWithError(w, r, "invalid state")
		return
	}
	var payload oauthStatePayload
	if err := json.Unmarshal(stateJSON, &payload); err != nil {
		h.redirectWithError(w, r, "invalid state")
		return
	}

	cookie, err := r.Cookie(oauthStateCookieName)
	if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(payload.State)) != 1 {
		h.redirectWithError(w, r, "state mismatch")
		return
	}
	h.clearStateCookie(w)

	claims, idToken, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("google exchange failed", "error", err)
		h.redirectWithError(w, r, "sign-in failed")
		return
	}

	if !claims.EmailVerified {
		h.redirectWithError(w, r, "email not verified")
		return
	}
	if !h.google.IsEmailAllowed(claims.Email) {
		h.logger.Warn("email not on allowlist", "email", claims.Email)
		h.redirectWithError(w, r, "account not allowed")
		return
	}

	if err := h.service.SignInWithIDToken(r.Context(), "google", idToken); err != nil {
		h.logger.Error("gateway id_token grant failed", "error", err)
		h.redirectWithError(w, r, "sign-in failed")
		return
	}

	target := h.frontendURL + "/"
	if payload.RedirectTo != "" && isValidRedirectPath(payload.RedirectTo) {
		target = h.frontendURL + payload.RedirectTo
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, reason string) {
	target := h.frontendURL + "/login?error=" + url.QueryEscape(reason)
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

func (h *OAuthHandler) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    "",
		Path:     "/api/auth",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}
