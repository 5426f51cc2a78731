// Package notify fans "tournament changed" events out to live listeners.
// Delivery is best effort: failures are logged and never reach the caller.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type EventType string

const (
	EventTeamsChanged       EventType = "TEAMS_CHANGED"
	EventTournamentStarted  EventType = "TOURNAMENT_STARTED"
	EventResultSubmitted    EventType = "RESULT_SUBMITTED"
	EventMatchCompleted     EventType = "MATCH_COMPLETED"
	EventBracketUpdated     EventType = "BRACKET_UPDATED"
	EventTournamentFinished EventType = "TOURNAMENT_FINISHED"
	EventTournamentReset    EventType = "TOURNAMENT_RESET"
)

type Event struct {
	Type         EventType  `json:"type"`
	TournamentID uuid.UUID  `json:"tournamentId"`
	MatchID      *uuid.UUID `json:"matchId,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Fanout delivers every event to all publishers concurrently.
type Fanout struct {
	publishers []Publisher
	logger     *slog.Logger
}

func NewFanout(logger *slog.Logger, publishers ...Publisher) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{publishers: publishers, logger: logger}
}

func (f *Fanout) TournamentChanged(ctx context.Context, event Event) {
	var g errgroup.Group
	for _, p := range f.publishers {
		g.Go(func() error {
			if err := p.Publish(ctx, event); err != nil {
				f.logger.Warn("failed to publish tournament event",
					"type", event.Type, "tournament_id", event.TournamentID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

// Nop drops every event.
type Nop struct{}

func (Nop) TournamentChanged(context.Context, Event) {}
