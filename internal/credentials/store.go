package credentials

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Profile is the minimal user profile persisted alongside the token
type Profile struct {
	UserID    string
	Email     string
	FirstName string
	LastName  string
	Role      string
}

// Credentials is the persisted authentication state, read at startup to
// decide whether to establish the push channel
type Credentials struct {
	AccessToken string
	Profile     Profile
	SavedAt     time.Time
}

// Store persists the bearer credential and profile in the local database.
// Cleared on logout or on an authorization failure from the REST layer.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore creates a credential store
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Save persists the credential, replacing any previous one
func (s *Store) Save(creds Credentials) error {
	_, err := s.db.Exec(`
		INSERT INTO credentials (id, access_token, user_id, email, first_name, last_name, role, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			user_id = excluded.user_id,
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			role = excluded.role,
			saved_at = excluded.saved_at
	`, creds.AccessToken, creds.Profile.UserID, creds.Profile.Email,
		creds.Profile.FirstName, creds.Profile.LastName, creds.Profile.Role, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	s.logger.Info("Credentials saved", zap.String("user_id", creds.Profile.UserID))
	return nil
}

// Load returns the persisted credential, or nil when none exists
func (s *Store) Load() (*Credentials, error) {
	var creds Credentials
	err := s.db.QueryRow(`
		SELECT access_token, user_id, email, first_name, last_name, role, saved_at
		FROM credentials WHERE id = 1
	`).Scan(&creds.AccessToken, &creds.Profile.UserID, &creds.Profile.Email,
		&creds.Profile.FirstName, &creds.Profile.LastName, &creds.Profile.Role, &creds.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return &creds, nil
}

// Clear removes the persisted credential
func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM credentials WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	s.logger.Info("Credentials cleared")
	return nil
}
