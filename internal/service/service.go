package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/JoshiWorld/bierpongv2/internal/notify"
	users "github.com/JoshiWorld/bierpongv2/internal/user"
	"github.com/google/uuid"
)

// Notifier receives a best-effort event after every committed state change.
type Notifier interface {
	TournamentChanged(ctx context.Context, event notify.Event)
}

// Archiver stores a snapshot of a finished tournament.
type Archiver interface {
	ArchiveTournament(ctx context.Context, tournamentID uuid.UUID, snapshot any) error
}

// canManage reports whether actor administrates the tournament, either as its
// creator or as a global admin.
func canManage(actor *users.User, t *bracket.Tournament) bool {
	return actor != nil && (actor.IsAdmin() || actor.ID == t.AdminID)
}

// storeErr maps a store failure to notFound for missing rows and to
// ErrPersistence for everything else.
func storeErr(err error, notFound *Error, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
