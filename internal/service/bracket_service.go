package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/JoshiWorld/bierpongv2/internal/notify"
	"github.com/JoshiWorld/bierpongv2/internal/store"
	users "github.com/JoshiWorld/bierpongv2/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

type BracketService struct {
	reader
	db       *sqlx.DB
	notifier Notifier
	archiver Archiver
	logger   *slog.Logger
}

func NewBracketService(db *sqlx.DB, tournaments *store.TournamentStore, matches *store.MatchStore, notifier Notifier, archiver Archiver, logger *slog.Logger) *BracketService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BracketService{
		reader:   reader{tournaments: tournaments, matches: matches},
		db:       db,
		notifier: notifier,
		archiver: archiver,
		logger:   logger,
	}
}

// GroupPlacement is the admin's confirmed first and second place of a group.
type GroupPlacement struct {
	GroupID  uuid.UUID `json:"groupId"`
	FirstID  uuid.UUID `json:"firstId"`
	SecondID uuid.UUID `json:"secondId"`
}

type AdvanceResult struct {
	Round   *bracket.EliminationRound  `json:"round,omitempty"`
	Matches []bracket.EliminationMatch `json:"matches"`
}

// Generated reports whether the call created new matches.
func (r *AdvanceResult) Generated() bool {
	return r != nil && len(r.Matches) > 0
}

func (s *BracketService) GetBracket(ctx context.Context, tournamentID uuid.UUID) ([]RoundMatches, error) {
	if _, err := s.tournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	return s.bracketRounds(ctx, tournamentID)
}

// seedPairings pairs the winner of group 2i with the runner-up of group 2i+1
// and the runner-up of group 2i with the winner of group 2i+1. A single group
// sends its first and second place straight into the final.
func seedPairings(groups []bracket.Group, placements map[uuid.UUID]GroupPlacement) ([][2]uuid.UUID, error) {
	placement := func(g bracket.Group) (GroupPlacement, error) {
		p, ok := placements[g.ID]
		if !ok || p.FirstID == uuid.Nil || p.SecondID == uuid.Nil {
			return p, fmt.Errorf("%w: %s", ErrMissingPairing, g.Name)
		}
		return p, nil
	}

	if len(groups) == 1 {
		p, err := placement(groups[0])
		if err != nil {
			return nil, err
		}
		return [][2]uuid.UUID{{p.FirstID, p.SecondID}}, nil
	}

	var pairs [][2]uuid.UUID
	for i := 0; i+1 < len(groups); i += 2 {
		a, err := placement(groups[i])
		if err != nil {
			return nil, err
		}
		b, err := placement(groups[i+1])
		if err != nil {
			return nil, err
		}
		pairs = append(pairs,
			[2]uuid.UUID{a.FirstID, b.SecondID},
			[2]uuid.UUID{a.SecondID, b.FirstID},
		)
	}
	return pairs, nil
}

func newEliminationMatches(roundID uuid.UUID, pairs [][2]uuid.UUID) []bracket.EliminationMatch {
	matches := make([]bracket.EliminationMatch, 0, len(pairs))
	for i, p := range pairs {
		matches = append(matches, bracket.EliminationMatch{
			ID:         uuid.New(),
			RoundID:    roundID,
			MatchOrder: i,
			Team1ID:    p[0],
			Team2ID:    p[1],
		})
	}
	return matches
}

// StartBracket takes the confirmed group placements, creates every elimination
// round for the tournament size and seeds the outermost one.
func (s *BracketService) StartBracket(ctx context.Context, actor *users.User, tournamentID uuid.UUID, placements []GroupPlacement) (bracket.TournamentStatus, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", persistenceErr("begin", err)
	}
	defer tx.Rollback()

	t, err := s.tournaments.GetTournamentTx(ctx, tx, tournamentID)
	if err != nil {
		return "", storeErr(err, ErrTournamentNotFound, tournamentID)
	}
	if !canManage(actor, t) {
		return "", ErrUnauthorized
	}
	if t.Status != bracket.StatusGroupStage {
		return "", fmt.Errorf("%w: tournament is %s, expected %s", ErrInvalidState, t.Status, bracket.StatusGroupStage)
	}

	open, err := s.matches.CountOpenGroupMatchesTx(ctx, tx, tournamentID)
	if err != nil {
		return "", persistenceErr("count open matches", err)
	}
	if open > 0 {
		return "", fmt.Errorf("%w: %d open", ErrGroupsIncomplete, open)
	}

	groups, err := s.tournaments.GetGroupsTx(ctx, tx, tournamentID)
	if err != nil {
		return "", persistenceErr("load groups", err)
	}
	teams, err := s.tournaments.GetTeamsTx(ctx, tx, tournamentID)
	if err != nil {
		return "", persistenceErr("load teams", err)
	}
	byGroup, err := validatePlacements(groups, teams, placements)
	if err != nil {
		return "", err
	}

	pairs, err := seedPairings(groups, byGroup)
	if err != nil {
		return "", err
	}

	names := t.Size.RoundNames()
	rounds := make([]bracket.EliminationRound, len(names))
	for i, name := range names {
		rounds[i] = bracket.EliminationRound{ID: uuid.New(), TournamentID: tournamentID, Name: name, Sequence: i}
	}
	if err := s.matches.CreateRounds(ctx, tx, rounds); err != nil {
		return "", persistenceErr("create rounds", err)
	}
	if err := s.matches.CreateEliminationMatches(ctx, tx, newEliminationMatches(rounds[0].ID, pairs)); err != nil {
		return "", persistenceErr("create elimination matches", err)
	}

	ok, err := s.tournaments.CompareAndSetStatus(ctx, tx, tournamentID, bracket.StatusGroupStage, bracket.StatusKOStage)
	if err != nil {
		return "", persistenceErr("update status", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: bracket already started", ErrInvalidState)
	}
	if err := tx.Commit(); err != nil {
		return "", persistenceErr("commit", err)
	}

	s.logger.Info("bracket started", "tournament_id", tournamentID, "rounds", len(rounds), "first_round", rounds[0].Name)
	s.notifier.TournamentChanged(ctx, notify.Event{Type: notify.EventBracketUpdated, TournamentID: tournamentID})
	return bracket.StatusKOStage, nil
}

func validatePlacements(groups []bracket.Group, teams []bracket.Team, placements []GroupPlacement) (map[uuid.UUID]GroupPlacement, error) {
	known := make(map[uuid.UUID]bool, len(groups))
	for _, g := range groups {
		known[g.ID] = true
	}
	teamGroup := make(map[uuid.UUID]uuid.UUID, len(teams))
	for _, t := range teams {
		if t.GroupID != nil {
			teamGroup[t.ID] = *t.GroupID
		}
	}

	byGroup := make(map[uuid.UUID]GroupPlacement, len(placements))
	for _, p := range placements {
		if !known[p.GroupID] {
			return nil, fmt.Errorf("%w: unknown group %s", ErrInvalidPlacement, p.GroupID)
		}
		if _, dup := byGroup[p.GroupID]; dup {
			return nil, fmt.Errorf("%w: group %s placed twice", ErrInvalidPlacement, p.GroupID)
		}
		if p.FirstID != uuid.Nil && p.FirstID == p.SecondID {
			return nil, fmt.Errorf("%w: first and second place are the same team", ErrInvalidPlacement)
		}
		for _, id := range []uuid.UUID{p.FirstID, p.SecondID} {
			if id != uuid.Nil && teamGroup[id] != p.GroupID {
				return nil, fmt.Errorf("%w: team %s is not in group %s", ErrInvalidPlacement, id, p.GroupID)
			}
		}
		byGroup[p.GroupID] = p
	}
	return byGroup, nil
}

// AdvanceBracket generates the next round once the current one is decided.
// It returns a result without matches when the next round already exists and
// nothing in it has been played yet.
func (s *BracketService) AdvanceBracket(ctx context.Context, actor *users.User, tournamentID uuid.UUID) (*AdvanceResult, error) {
	t, err := s.tournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !canManage(actor, t) {
		return nil, ErrUnauthorized
	}
	return s.advance(ctx, tournamentID)
}

// autoAdvance runs after every committed elimination result. Being too early
// or too late is expected here and not reported.
func (s *BracketService) autoAdvance(ctx context.Context, tournamentID uuid.UUID) {
	res, err := s.advance(ctx, tournamentID)
	switch {
	case err == nil:
		if res.Generated() {
			s.logger.Info("bracket advanced", "tournament_id", tournamentID, "round", res.Round.Name, "matches", len(res.Matches))
		}
	case errors.Is(err, ErrIncompleteRound), errors.Is(err, ErrNoNextRound):
	default:
		s.logger.Error("auto advance failed", "tournament_id", tournamentID, "error", err)
	}
}

func (s *BracketService) advance(ctx context.Context, tournamentID uuid.UUID) (*AdvanceResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, persistenceErr("begin", err)
	}
	defer tx.Rollback()

	t, err := s.tournaments.GetTournamentTx(ctx, tx, tournamentID)
	if err != nil {
		return nil, storeErr(err, ErrTournamentNotFound, tournamentID)
	}
	if t.Status != bracket.StatusKOStage && t.Status != bracket.StatusFinished {
		return nil, fmt.Errorf("%w: tournament is %s, expected %s", ErrInvalidState, t.Status, bracket.StatusKOStage)
	}

	rounds, err := s.matches.GetRoundsTx(ctx, tx, tournamentID)
	if err != nil {
		return nil, persistenceErr("load rounds", err)
	}
	if len(rounds) == 0 {
		return nil, fmt.Errorf("%w: bracket has no rounds", ErrInvalidState)
	}

	// The active round is the first one, outermost to final, that has no
	// matches yet or still has an open match.
	active := -1
	var activeMatches, previous []bracket.EliminationMatch
	for i, round := range rounds {
		matches, err := s.matches.GetRoundMatchesTx(ctx, tx, round.ID)
		if err != nil {
			return nil, persistenceErr("load round matches", err)
		}
		if len(matches) == 0 || anyOpen(matches) {
			active = i
			activeMatches = matches
			break
		}
		previous = matches
	}

	if active == -1 {
		return nil, s.finish(ctx, tx, t)
	}

	if len(activeMatches) > 0 {
		if active == 0 || anyDone(activeMatches) {
			return nil, fmt.Errorf("%w: %s", ErrIncompleteRound, rounds[active].Name)
		}
		return &AdvanceResult{}, nil
	}

	if active == 0 {
		return nil, fmt.Errorf("%w: %s was never seeded", ErrInvalidState, rounds[0].Name)
	}

	pairs := make([][2]uuid.UUID, 0, len(previous)/2)
	for j := 0; j+1 < len(previous); j += 2 {
		w1, _ := previous[j].Winner()
		w2, _ := previous[j+1].Winner()
		pairs = append(pairs, [2]uuid.UUID{w1, w2})
	}
	round := rounds[active]
	matches := newEliminationMatches(round.ID, pairs)
	if err := s.matches.CreateEliminationMatches(ctx, tx, matches); err != nil {
		if isConstraintViolation(err) {
			// Someone else generated this round first.
			return &AdvanceResult{}, nil
		}
		return nil, persistenceErr("create elimination matches", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, persistenceErr("commit", err)
	}

	s.notifier.TournamentChanged(ctx, notify.Event{Type: notify.EventBracketUpdated, TournamentID: tournamentID})
	return &AdvanceResult{Round: &round, Matches: matches}, nil
}

// finish marks a fully played bracket as finished and always reports
// ErrNoNextRound. Only the call that performs the transition archives.
func (s *BracketService) finish(ctx context.Context, tx *sqlx.Tx, t *bracket.Tournament) error {
	if t.Status == bracket.StatusFinished {
		return ErrNoNextRound
	}
	ok, err := s.tournaments.CompareAndSetStatus(ctx, tx, t.ID, bracket.StatusKOStage, bracket.StatusFinished)
	if err != nil {
		return persistenceErr("update status", err)
	}
	if err := tx.Commit(); err != nil {
		return persistenceErr("commit", err)
	}
	if ok {
		s.logger.Info("tournament finished", "tournament_id", t.ID)
		s.notifier.TournamentChanged(ctx, notify.Event{Type: notify.EventTournamentFinished, TournamentID: t.ID})
		s.archive(ctx, t.ID)
	}
	return ErrNoNextRound
}

func (s *BracketService) archive(ctx context.Context, tournamentID uuid.UUID) {
	if s.archiver == nil {
		return
	}
	snapshot, err := s.overview(ctx, tournamentID)
	if err != nil {
		s.logger.Warn("failed to build archive snapshot", "tournament_id", tournamentID, "error", err)
		return
	}
	if err := s.archiver.ArchiveTournament(ctx, tournamentID, snapshot); err != nil {
		s.logger.Warn("failed to archive tournament", "tournament_id", tournamentID, "error", err)
	}
}

func anyOpen(matches []bracket.EliminationMatch) bool {
	for _, m := range matches {
		if !m.Done {
			return true
		}
	}
	return false
}

func anyDone(matches []bracket.EliminationMatch) bool {
	for _, m := range matches {
		if m.Done {
			return true
		}
	}
	return false
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
