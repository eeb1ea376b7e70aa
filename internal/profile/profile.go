package profile

import (
	"time"

	"github.com/google/uuid"
)

// Status describes the lifecycle state of a profile record.
type Status string

const (
	// StatusActive is the default status assigned on creation.
	StatusActive Status = "active"
	// StatusSuspended marks a profile whose campaigns are paused by billing.
	StatusSuspended Status = "suspended"
	// StatusClosed marks a profile the owner has shut down.
	StatusClosed Status = "closed"
)

// Preferences holds optional per-user dashboard settings.
type Preferences struct {
	EmailNotifications bool   `json:"emailNotifications"`
	PushNotifications  bool   `json:"pushNotifications"`
	Timezone           string `json:"timezone,omitempty"`
}

// Profile is the dashboard-facing account record, keyed by the same id as
// the authenticated user. It is created once per user and never deleted
// by this service.
type Profile struct {
	ID        uuid.UUID    `json:"id"`
	Email     string       `json:"email"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt *time.Time   `json:"updatedAt,omitempty"`
	Status    Status       `json:"status"`
	Name      string       `json:"name,omitempty"`
	Phone     string       `json:"phone,omitempty"`
	Address   string       `json:"address,omitempty"`
	Prefs     *Preferences `json:"preferences,omitempty"`
	Plan      *Plan        `json:"plan,omitempty"`
}

// New returns the seed record inserted when a user has no profile yet:
// id + email, creation timestamp, default status, default plan.
func New(id uuid.UUID, email string, now time.Time) Profile {
	plan := DefaultCatalog.Plan(DefaultPlanName)
	return Profile{
		ID:        id,
		Email:     email,
		CreatedAt: now,
		Status:    StatusActive,
		Plan:      &plan,
	}
}
