package profile

import (
	"context"

	"github.com/google/uuid"
)

// Store is the keyed record store holding profiles. Implementations must
// report "no such profile" as (nil, nil), never as an error, so callers
// can distinguish a miss from a failure.
//
// The access token scopes hosted queries to the caller's session;
// implementations backed by a direct database connection ignore it.
type Store interface {
	FetchByID(ctx context.Context, id uuid.UUID, accessToken string) (*Profile, error)
	Insert(ctx context.Context, p Profile, accessToken string) (Profile, error)
}
