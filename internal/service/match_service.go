package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/JoshiWorld/bierpongv2/internal/lock"
	"github.com/JoshiWorld/bierpongv2/internal/notify"
	"github.com/JoshiWorld/bierpongv2/internal/store"
	users "github.com/JoshiWorld/bierpongv2/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	winPoints = 3
	// Elimination results carry no cups, the winner is booked a 3-0.
	eliminationCups = 3
)

// MatchService turns the two teams' result submissions into a confirmed score.
// The first submission is kept as pending. The opponent's matching submission
// completes the match, a differing one discards the pending result.
type MatchService struct {
	db          *sqlx.DB
	tournaments *store.TournamentStore
	matches     *store.MatchStore
	locker      lock.Locker
	brackets    *BracketService
	notifier    Notifier
	logger      *slog.Logger
}

func NewMatchService(db *sqlx.DB, tournaments *store.TournamentStore, matches *store.MatchStore, locker lock.Locker, brackets *BracketService, notifier Notifier, logger *slog.Logger) *MatchService {
	if locker == nil {
		locker = lock.NewMemory()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchService{
		db:          db,
		tournaments: tournaments,
		matches:     matches,
		locker:      locker,
		brackets:    brackets,
		notifier:    notifier,
		logger:      logger,
	}
}

type GroupResultInput struct {
	TeamID    uuid.UUID `json:"teamId"`
	Team1Cups int       `json:"team1Cups"`
	Team2Cups int       `json:"team2Cups"`
	WinnerID  uuid.UUID `json:"winnerId"`
}

type EliminationResultInput struct {
	TeamID   uuid.UUID `json:"teamId"`
	WinnerID uuid.UUID `json:"winnerId"`
}

type Submission struct {
	Created bool `json:"created"`
}

// matchSide is what the reconciler needs to know about a group or elimination match.
type matchSide struct {
	id           uuid.UUID
	tournamentID uuid.UUID
	team1, team2 uuid.UUID
	done         bool
}

func (m matchSide) opponent(teamID uuid.UUID) uuid.UUID {
	if teamID == m.team1 {
		return m.team2
	}
	return m.team1
}

func (m matchSide) plays(teamID uuid.UUID) bool {
	return teamID == m.team1 || teamID == m.team2
}

func (s *MatchService) SubmitGroupResult(ctx context.Context, actor *users.User, matchID uuid.UUID, in GroupResultInput) (*Submission, error) {
	if in.Team1Cups < 0 || in.Team2Cups < 0 {
		return nil, fmt.Errorf("%w: cups cannot be negative", ErrInvalidScore)
	}
	if in.Team1Cups == 0 && in.Team2Cups == 0 {
		return nil, fmt.Errorf("%w: both teams cannot have zero cups", ErrInvalidScore)
	}

	return s.submit(ctx, actor, matchID, in.TeamID, bracket.StageGroup,
		func(ctx context.Context, tx *sqlx.Tx) (matchSide, error) {
			m, err := s.matches.GetMatchTx(ctx, tx, matchID)
			if err != nil {
				return matchSide{}, reconcileErr(err, ErrMatchNotFound, matchID)
			}
			team, err := s.tournaments.GetTeamTx(ctx, tx, m.Team1ID)
			if err != nil {
				return matchSide{}, reconcileErr(err, ErrTeamNotFound, m.Team1ID)
			}
			return matchSide{id: m.ID, tournamentID: team.TournamentID, team1: m.Team1ID, team2: m.Team2ID, done: m.Done}, nil
		},
		func(m matchSide) (*bracket.MatchResult, error) {
			if !m.plays(in.WinnerID) {
				return nil, fmt.Errorf("%w: winner must be one of the two teams", ErrInvalidScore)
			}
			return &bracket.MatchResult{Team1Cups: in.Team1Cups, Team2Cups: in.Team2Cups, WinnerID: in.WinnerID}, nil
		},
		s.commitGroup,
	)
}

func (s *MatchService) SubmitEliminationResult(ctx context.Context, actor *users.User, matchID uuid.UUID, in EliminationResultInput) (*Submission, error) {
	var tournamentID uuid.UUID
	sub, err := s.submit(ctx, actor, matchID, in.TeamID, bracket.StageElimination,
		func(ctx context.Context, tx *sqlx.Tx) (matchSide, error) {
			m, err := s.matches.GetEliminationMatchTx(ctx, tx, matchID)
			if err != nil {
				return matchSide{}, reconcileErr(err, ErrMatchNotFound, matchID)
			}
			round, err := s.matches.GetRoundTx(ctx, tx, m.RoundID)
			if err != nil {
				return matchSide{}, reconcileErr(err, ErrMatchNotFound, matchID)
			}
			tournamentID = round.TournamentID
			return matchSide{id: m.ID, tournamentID: round.TournamentID, team1: m.Team1ID, team2: m.Team2ID, done: m.Done}, nil
		},
		func(m matchSide) (*bracket.MatchResult, error) {
			if !m.plays(in.WinnerID) {
				return nil, fmt.Errorf("%w: winner must be one of the two teams", ErrInvalidScore)
			}
			result := &bracket.MatchResult{WinnerID: in.WinnerID, Team1Cups: eliminationCups}
			if in.WinnerID == m.team2 {
				result.Team1Cups, result.Team2Cups = 0, eliminationCups
			}
			return result, nil
		},
		s.commitElimination,
	)
	if err != nil {
		return nil, err
	}

	if !sub.Created && s.brackets != nil {
		s.brackets.autoAdvance(ctx, tournamentID)
	}
	return sub, nil
}

// reconcileErr keeps missing rows as notFound and reports any other store
// failure on the submission path as ErrReconciliation.
func reconcileErr(err error, notFound *Error, id uuid.UUID) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return fmt.Errorf("%w: %w", ErrReconciliation, err)
}

func (s *MatchService) submit(
	ctx context.Context,
	actor *users.User,
	matchID, teamID uuid.UUID,
	stage bracket.Stage,
	load func(context.Context, *sqlx.Tx) (matchSide, error),
	propose func(matchSide) (*bracket.MatchResult, error),
	commit func(context.Context, *sqlx.Tx, matchSide, *bracket.MatchResult) error,
) (*Submission, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}

	unlock, err := s.locker.Lock(ctx, lock.MatchKey(matchID.String()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReconciliation, err)
	}
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReconciliation, err)
	}
	defer tx.Rollback()

	m, err := load(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !m.plays(teamID) {
		return nil, fmt.Errorf("%w: team %s", ErrTeamNotInMatch, teamID)
	}
	team, err := s.tournaments.GetTeamTx(ctx, tx, teamID)
	if err != nil {
		return nil, reconcileErr(err, ErrTeamNotFound, teamID)
	}
	if !actor.IsAdmin() && !team.HasPlayer(actor.ID) {
		return nil, ErrUnauthorized
	}

	t, err := s.tournaments.GetTournamentTx(ctx, tx, m.tournamentID)
	if err != nil {
		return nil, reconcileErr(err, ErrTournamentNotFound, m.tournamentID)
	}
	wantStatus := bracket.StatusGroupStage
	if stage == bracket.StageElimination {
		wantStatus = bracket.StatusKOStage
	}
	if t.Status != wantStatus {
		return nil, fmt.Errorf("%w: tournament is %s, expected %s", ErrInvalidState, t.Status, wantStatus)
	}
	if m.done {
		return nil, fmt.Errorf("%w: %s", ErrMatchCompleted, matchID)
	}

	proposal, err := propose(m)
	if err != nil {
		return nil, err
	}
	proposal.ID = uuid.New()
	proposal.MatchID = matchID
	proposal.Stage = stage
	proposal.CreatorTeamID = teamID

	pending, err := s.matches.GetPendingResultTx(ctx, tx, matchID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReconciliation, err)
	}

	event := notify.Event{Type: notify.EventResultSubmitted, TournamentID: m.tournamentID, MatchID: &matchID}

	switch {
	case pending == nil:
		if err := s.matches.CreateResult(ctx, tx, proposal); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReconciliation, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReconciliation, err)
		}
		s.notifier.TournamentChanged(ctx, event)
		return &Submission{Created: true}, nil

	case pending.CreatorTeamID == teamID:
		return nil, fmt.Errorf("%w: team %s", ErrDuplicateResult, teamID)

	case !pending.Agrees(proposal):
		if err := s.matches.DeleteResult(ctx, tx, pending.ID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReconciliation, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReconciliation, err)
		}
		s.logger.Info("result mismatch, pending result discarded", "match_id", matchID, "stage", stage)
		s.notifier.TournamentChanged(ctx, event)
		return nil, ErrResultMismatch
	}

	if err := s.matches.DeleteResult(ctx, tx, pending.ID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReconciliation, err)
	}
	if err := commit(ctx, tx, m, pending); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReconciliation, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReconciliation, err)
	}

	s.logger.Info("match completed", "match_id", matchID, "stage", stage, "winner_id", pending.WinnerID)
	event.Type = notify.EventMatchCompleted
	s.notifier.TournamentChanged(ctx, event)
	return &Submission{Created: false}, nil
}

// commitGroup books the winner three points and its own cups. The loser's
// conceded cups grow by the same winner cup count.
func (s *MatchService) commitGroup(ctx context.Context, tx *sqlx.Tx, m matchSide, r *bracket.MatchResult) error {
	if err := s.matches.CompleteMatch(ctx, tx, m.id, r.Team1Cups, r.Team2Cups); err != nil {
		return err
	}
	winnerCups := r.Team1Cups
	if r.WinnerID == m.team2 {
		winnerCups = r.Team2Cups
	}
	if err := s.tournaments.AddTallies(ctx, tx, r.WinnerID, winPoints, winnerCups, 0); err != nil {
		return err
	}
	return s.tournaments.AddTallies(ctx, tx, m.opponent(r.WinnerID), 0, 0, winnerCups)
}

func (s *MatchService) commitElimination(ctx context.Context, tx *sqlx.Tx, m matchSide, r *bracket.MatchResult) error {
	if err := s.matches.CompleteEliminationMatch(ctx, tx, m.id, r.Team1Cups, r.Team2Cups); err != nil {
		return err
	}
	return s.tournaments.AddTallies(ctx, tx, r.WinnerID, winPoints, eliminationCups, 0)
}
