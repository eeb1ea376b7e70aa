// Package session owns the authoritative session/user/profile state:
// bootstrap, the guarded profile fetcher, and the loading-phase state
// machine consumed by the dashboard surface.
package session

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchTimeout is returned when a profile round trip exceeds its
	// deadline. It is recorded on the shared error field and never
	// forces a sign-out.
	ErrFetchTimeout = errors.New("profile fetch exceeded its deadline")

	// ErrProfileCreateFailed is returned when the profile is absent and
	// auto-provisioning also failed. The profile is left unset.
	ErrProfileCreateFailed = errors.New("profile missing and auto-provisioning failed")

	// ErrStore wraps any other profile store failure.
	ErrStore = errors.New("profile store failure")
)

// CredentialCode classifies credential gateway failures.
type CredentialCode string

const (
	// CredentialCodeInvalid covers rejected email/password pairs.
	CredentialCodeInvalid CredentialCode = "invalid_credentials"
	// CredentialCodeUserExists covers sign-up collisions.
	CredentialCodeUserExists CredentialCode = "user_exists"
	// CredentialCodeProviderUnavailable covers outages and transport
	// failures talking to the provider.
	CredentialCodeProviderUnavailable CredentialCode = "provider_unavailable"
)

// CredentialError is a gateway failure translated for the UI. The
// message is safe to show next to the sign-in form.
type CredentialError struct {
	Code    CredentialCode
	Message string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
