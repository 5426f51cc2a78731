package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/JoshiWorld/bierpongv2/internal/store"
	users "github.com/JoshiWorld/bierpongv2/internal/user"
	"github.com/JoshiWorld/bierpongv2/internal/utils"
	"github.com/google/uuid"
	"github.com/markbates/goth"
	"golang.org/x/crypto/bcrypt"
)

var (
	GuestUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	AdminUserID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

type UserService struct {
	store             *store.UserStore
	adminPasswordHash []byte
}

func NewUserService(store *store.UserStore, adminPasswordHash string) *UserService {
	return &UserService{store: store, adminPasswordHash: []byte(adminPasswordHash)}
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*users.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrUserNotFound, id)
	}
	return user, nil
}

func (s *UserService) FindOrCreateUserByProvider(ctx context.Context, gothUser goth.User) (*users.User, error) {
	user, err := s.store.GetUserByProvider(ctx, gothUser.Provider, gothUser.UserID)

	if err == nil {
		name := displayName(gothUser)
		if utils.Deref(user.AvatarURL) != gothUser.AvatarURL || user.Username != name {
			user.AvatarURL = utils.NilIfBlank(gothUser.AvatarURL)
			user.Username = name
			if err := s.store.UpdateProfile(ctx, user); err != nil {
				return nil, persistenceErr("update user", err)
			}
		}
		return user, nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		newUser := &users.User{
			ID:         uuid.New(),
			Email:      gothUser.Email,
			Username:   displayName(gothUser),
			Role:       users.RolePlayer,
			Provider:   utils.Ptr(gothUser.Provider),
			ProviderID: utils.Ptr(gothUser.UserID),
			AvatarURL:  utils.NilIfBlank(gothUser.AvatarURL),
		}
		if err := s.store.CreateUser(ctx, newUser); err != nil {
			return nil, persistenceErr("create user", err)
		}
		return newUser, nil
	}

	return nil, persistenceErr("find user", err)
}

func displayName(u goth.User) string {
	if u.NickName != "" {
		return u.NickName
	}
	return u.Name
}

func (s *UserService) EnsureGuestUser(ctx context.Context) (*users.User, error) {
	return s.ensureUser(ctx, &users.User{
		ID:       GuestUserID,
		Email:    "guest@bierpong.local",
		Username: "Guest",
		Role:     users.RolePlayer,
	})
}

// LoginAdmin checks password against the configured bcrypt hash and returns
// the global admin account.
func (s *UserService) LoginAdmin(ctx context.Context, password string) (*users.User, error) {
	if len(s.adminPasswordHash) == 0 {
		return nil, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(s.adminPasswordHash, []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}
	return s.ensureUser(ctx, &users.User{
		ID:       AdminUserID,
		Email:    "admin@bierpong.local",
		Username: "Admin",
		Role:     users.RoleAdmin,
	})
}

func (s *UserService) ensureUser(ctx context.Context, fallback *users.User) (*users.User, error) {
	user, err := s.store.GetUser(ctx, fallback.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistenceErr("load user", err)
	}
	if err := s.store.CreateUser(ctx, fallback); err != nil {
		return nil, persistenceErr("create user", err)
	}
	return fallback, nil
}
