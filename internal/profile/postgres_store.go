package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresStore implements Store on a directly reachable PostgreSQL
// database. The plan and preference columns are JSONB so the historical
// bare-string plan form round-trips unchanged.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type profileRow struct {
	ID        uuid.UUID  `db:"id"`
	Email     string     `db:"email"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
	Status    string     `db:"status"`
	Name      string     `db:"name"`
	Phone     string     `db:"phone"`
	Address   string     `db:"address"`
	Prefs     []byte     `db:"preferences"`
	Plan      []byte     `db:"plan"`
}

func (r profileRow) toProfile() (*Profile, error) {
	p := &Profile{
		ID:        r.ID,
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Status:    Status(r.Status),
		Name:      r.Name,
		Phone:     r.Phone,
		Address:   r.Address,
	}

	if len(r.Prefs) > 0 {
		var prefs Preferences
		if err := json.Unmarshal(r.Prefs, &prefs); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
		p.Prefs = &prefs
	}

	if len(r.Plan) > 0 {
		var plan Plan
		if err := json.Unmarshal(r.Plan, &plan); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
		p.Plan = &plan
	}

	return p, nil
}

// FetchByID looks up a profile by user id. A missing row is (nil, nil).
func (s *PostgresStore) FetchByID(ctx context.Context, id uuid.UUID, _ string) (*Profile, error) {
	const query = `
		SELECT id, email, created_at, updated_at, status, name, phone, address, preferences, plan
		FROM profiles
		WHERE id = $1
	`

	var row profileRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return row.toProfile()
}

// Insert stores a new profile and returns it as written.
func (s *PostgresStore) Insert(ctx context.Context, p Profile, _ string) (Profile, error) {
	const query = `
		INSERT INTO profiles (id, email, created_at, updated_at, status, name, phone, address, preferences, plan)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var prefs, plan []byte
	var err error
	if p.Prefs != nil {
		if prefs, err = json.Marshal(p.Prefs); err != nil {
			return Profile{}, fmt.Errorf("encode preferences: %w", err)
		}
	}
	if p.Plan != nil {
		if plan, err = json.Marshal(p.Plan); err != nil {
			return Profile{}, fmt.Errorf("encode plan: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, query,
		p.ID,
		p.Email,
		p.CreatedAt,
		p.UpdatedAt,
		string(p.Status),
		p.Name,
		p.Phone,
		p.Address,
		prefs,
		plan,
	)
	if err != nil {
		return Profile{}, err
	}

	return p, nil
}
