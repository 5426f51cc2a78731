package store

import (
	"context"

	users "github.com/JoshiWorld/bierpongv2/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const userColumns = "id, email, username, role, provider, provider_id, avatar_url, created_at"

type UserStore struct {
	db *sqlx.DB
}

func NewUserStore(db *sqlx.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) getUser(ctx context.Context, where string, args ...any) (*users.User, error) {
	var user users.User
	if err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE "+where, args...); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *UserStore) GetUserByProvider(ctx context.Context, provider, providerID string) (*users.User, error) {
	return s.getUser(ctx, "provider = ? AND provider_id = ?", provider, providerID)
}

func (s *UserStore) CreateUser(ctx context.Context, user *users.User) error {
	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO users (id, email, username, role, provider, provider_id, avatar_url)
        VALUES (:id, :email, :username, :role, :provider, :provider_id, :avatar_url)`, user)
	return err
}

// UpdateProfile stores the username and avatar the OAuth provider reported last.
func (s *UserStore) UpdateProfile(ctx context.Context, user *users.User) error {
	res, err := s.db.NamedExecContext(ctx, "UPDATE users SET username = :username, avatar_url = :avatar_url WHERE id = :id", user)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// GetAvailablePlayers lists players that are not yet in a team of the tournament.
func (s *UserStore) GetAvailablePlayers(ctx context.Context, tournamentID uuid.UUID) ([]users.User, error) {
	players := []users.User{}
	err := s.db.SelectContext(ctx, &players, `
        SELECT `+userColumns+` FROM users
        WHERE role = 'player' AND id NOT IN (
            SELECT player1_id FROM teams WHERE tournament_id = ?
            UNION
            SELECT player2_id FROM teams WHERE tournament_id = ?
        )
        ORDER BY username ASC`, tournamentID, tournamentID)
	return players, err
}
