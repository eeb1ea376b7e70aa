package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/natalyineu/db-sub000/internal/auth"
	"github.com/natalyineu/db-sub000/internal/session"
)

// AuthHandler exposes the sign-in/sign-up/sign-out/refresh surface and
// the session snapshot the dashboard polls.
type AuthHandler struct {
	service *auth.Service
	logger  *slog.Logger
}

// NewAuthHandler creates a handler.
func NewAuthHandler(service *auth.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: service, logger: logger}
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p credentialsPayload) validate() error {
	if p.Email == "" {
		return fmt.Errorf("email is required")
	}
	if p.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

// Snapshot returns the current session state.
func (h *AuthHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotResponse(h.service.Snapshot()))
}

// SignIn handles POST /api/auth/signin.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}
	if err := payload.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.SignIn(r.Context(), payload.Email, payload.Password); err != nil {
		handleCredentialError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, snapshotResponse(h.service.Snapshot()))
}

// SignUp handles POST /api/auth/signup.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSONBody(w, r, &payload); err != nil {
		writeJSONError(w, err)
		return
	}
	if err := payload.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.SignUp(r.Context(), payload.Email, payload.Password); err != nil {
		handleCredentialError(w, err, h.logger)
		return
	}

	st := h.service.Snapshot()
	if st.IsAuthenticated() {
		writeJSON(w, http.StatusCreated, snapshotResponse(st))
		return
	}
	// Account created but pending confirmation.
	writeJSON(w, http.StatusAccepted, map[string]any{"pendingConfirmation": true})
}

// SignOut handles POST /api/auth/signout. Local state is already
// cleared by the time the gateway call resolves, so a gateway failure
// still answers with the signed-out snapshot.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SignOut(r.Context()); err != nil {
		h.logger.Warn("gateway sign-out failed", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshProfile handles POST /api/profile/refresh. The refresh lands
// asynchronously in the snapshot; a guard-refused attempt is a no-op.
func (h *AuthHandler) RefreshProfile(w http.ResponseWriter, r *http.Request) {
	h.service.RefreshProfile(r.Context())
	w.WriteHeader(http.StatusAccepted)
}

// snapshotResponse shapes a manager snapshot for the dashboard.
func snapshotResponse(st session.State) map[string]any {
	resp := map[string]any{
		"phase":           st.Phase,
		"isAuthenticated": st.IsAuthenticated(),
		"loading":         st.Loading,
	}
	if st.Err != "" {
		resp["error"] = st.Err
	}
	if st.Session != nil {
		resp["session"] = map[string]any{"expiresAt": st.Session.ExpiresAt.Format(time.RFC3339)}
	}
	if st.User != nil {
		resp["user"] = map[string]any{"id": st.User.ID, "email": st.User.Email}
	}
	if st.Profile != nil {
		resp["profile"] = st.Profile
	}
	return resp
}

func handleCredentialError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var credErr *session.CredentialError
	if errors.As(err, &credErr) {
		switch credErr.Code {
		case session.CredentialCodeInvalid:
			writeError(w, http.StatusUnauthorized, credErr.Message)
		case session.CredentialCodeUserExists:
			writeError(w, http.StatusConflict, credErr.Message)
		default:
			writeError(w, http.StatusBadGateway, credErr.Message)
		}
		return
	}
	logger.Error("auth operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "unexpected error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

const maxJSONBodyBytes int64 = 1 << 20 // 1 MiB

var errPayloadTooLarge = errors.New("payload too large")

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	limited := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	defer func() {
		_ = limited.Close()
	}()

	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w (max %d bytes)", errPayloadTooLarge, maxErr.Limit)
		}
		return err
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, err error) {
	if errors.Is(err, errPayloadTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	// Return generic message to avoid leaking internal JSON parsing details
	writeError(w, http.StatusBadRequest, "invalid request body")
}
