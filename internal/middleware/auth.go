package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JoshiWorld/bierpongv2/internal/config"
	"github.com/JoshiWorld/bierpongv2/internal/httputil"
	users "github.com/JoshiWorld/bierpongv2/internal/user"
	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/markbates/goth"
	"github.com/markbates/goth/providers/discord"
	"github.com/markbates/goth/providers/google"
)

const sessionUserKey = "userID"

// InitAuth registers the OAuth providers that have credentials configured.
func InitAuth(cfg config.OAuthConfig) {
	var providers []goth.Provider
	if cfg.DiscordKey != "" {
		providers = append(providers, discord.New(cfg.DiscordKey, cfg.DiscordSecret, cfg.DiscordCallbackURL, discord.ScopeIdentify, discord.ScopeEmail))
	}
	if cfg.GoogleKey != "" {
		providers = append(providers, google.New(cfg.GoogleKey, cfg.GoogleSecret, cfg.GoogleCallbackURL, "email", "profile"))
	}
	if len(providers) == 0 {
		slog.Warn("no OAuth providers configured")
		return
	}
	goth.UseProviders(providers...)
}

type UserLoader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// Authenticator resolves the caller from a bearer token or the browser session.
type Authenticator struct {
	sessions *scs.SessionManager
	users    UserLoader
	secret   []byte
	tokenTTL time.Duration
}

func NewAuthenticator(sessions *scs.SessionManager, loader UserLoader, secret string, tokenTTL time.Duration) *Authenticator {
	return &Authenticator{sessions: sessions, users: loader, secret: []byte(secret), tokenTTL: tokenTTL}
}

type tokenClaims struct {
	Role users.Role `json:"role"`
	jwt.RegisteredClaims
}

func (a *Authenticator) IssueToken(user *users.User) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) parseToken(raw string) (uuid.UUID, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(claims.Subject)
}

// Login binds user to the current browser session.
func (a *Authenticator) Login(ctx context.Context, user *users.User) error {
	if err := a.sessions.RenewToken(ctx); err != nil {
		return err
	}
	a.sessions.Put(ctx, sessionUserKey, user.ID.String())
	return nil
}

func (a *Authenticator) Logout(ctx context.Context) error {
	return a.sessions.Destroy(ctx)
}

// Authenticate puts the caller into the request context when a valid bearer
// token or session is present. Anonymous requests pass through unchanged.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := a.callerID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.users.GetUser(r.Context(), userID)
		if err != nil {
			slog.Warn("authenticated user could not be loaded", "user_id", userID, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (a *Authenticator) callerID(r *http.Request) (uuid.UUID, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return uuid.Nil, false
		}
		id, err := a.parseToken(raw)
		if err != nil {
			if !errors.Is(err, jwt.ErrTokenExpired) {
				slog.Debug("invalid bearer token", "error", err)
			}
			return uuid.Nil, false
		}
		return id, true
	}

	if a.sessions == nil {
		return uuid.Nil, false
	}
	raw := a.sessions.GetString(r.Context(), sessionUserKey)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		a.sessions.Remove(r.Context(), sessionUserKey)
		return uuid.Nil, false
	}
	return id, true
}

// RequireAuth rejects requests without an authenticated user.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetAuthenticatedUser(r.Context()) == nil {
			httputil.Unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithUser(ctx context.Context, user *users.User) context.Context {
	return context.WithValue(ctx, users.UserKey, user)
}

func GetAuthenticatedUser(ctx context.Context) *users.User {
	user, _ := ctx.Value(users.UserKey).(*users.User)
	return user
}
