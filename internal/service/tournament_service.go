package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"slices"
	"strings"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/JoshiWorld/bierpongv2/internal/notify"
	"github.com/JoshiWorld/bierpongv2/internal/store"
	users "github.com/JoshiWorld/bierpongv2/internal/user"
	"github.com/JoshiWorld/bierpongv2/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

type TournamentService struct {
	reader
	db       *sqlx.DB
	users    *store.UserStore
	notifier Notifier
	logger   *slog.Logger
	shuffle  func([]uuid.UUID)
}

func NewTournamentService(db *sqlx.DB, tournaments *store.TournamentStore, matches *store.MatchStore, userStore *store.UserStore, notifier Notifier, logger *slog.Logger) *TournamentService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TournamentService{
		reader:   reader{tournaments: tournaments, matches: matches},
		db:       db,
		users:    userStore,
		notifier: notifier,
		logger:   logger,
		shuffle:  shuffleIDs,
	}
}

func shuffleIDs(ids []uuid.UUID) {
	mrand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

type CreateTournamentInput struct {
	Name string `json:"name"`
	Code string `json:"code"`
	Size string `json:"size"`
}

// CreateTournament registers a new tournament administrated by actor. A join
// code is generated when none is given.
func (s *TournamentService) CreateTournament(ctx context.Context, actor *users.User, in CreateTournamentInput) (*bracket.Tournament, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	size, ok := bracket.ParseSize(strings.ToUpper(strings.TrimSpace(in.Size)))
	if !ok {
		return nil, fmt.Errorf("%w: unknown size %q", ErrInvalidInput, in.Size)
	}
	code := utils.NormalizeCode(in.Code)
	if code == "" {
		var err error
		if code, err = generateCode(); err != nil {
			return nil, persistenceErr("generate code", err)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, persistenceErr("begin", err)
	}
	defer tx.Rollback()

	_, err = s.tournaments.GetTournamentByCodeTx(ctx, tx, code)
	if err == nil {
		return nil, fmt.Errorf("%w: %s", ErrCodeTaken, code)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistenceErr("check code", err)
	}

	t := &bracket.Tournament{
		ID:      uuid.New(),
		AdminID: actor.ID,
		Name:    name,
		Code:    code,
		Size:    size,
		Status:  bracket.StatusLobby,
	}
	if err := s.tournaments.CreateTournament(ctx, tx, t); err != nil {
		return nil, persistenceErr("create tournament", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, persistenceErr("commit", err)
	}

	s.logger.Info("tournament created", "tournament_id", t.ID, "size", t.Size, "admin_id", actor.ID)
	return t, nil
}

func generateCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}

func (s *TournamentService) GetTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	return s.tournament(ctx, id)
}

func (s *TournamentService) GetOverview(ctx context.Context, id uuid.UUID) (*Overview, error) {
	return s.overview(ctx, id)
}

func (s *TournamentService) ListTournamentsForUser(ctx context.Context, actor *users.User) ([]bracket.Tournament, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	tournaments, err := s.tournaments.GetTournamentsByUserID(ctx, actor.ID)
	if err != nil {
		return nil, persistenceErr("list tournaments", err)
	}
	if tournaments == nil {
		tournaments = []bracket.Tournament{}
	}
	return tournaments, nil
}

type JoinInput struct {
	Code      string    `json:"code"`
	TeamName  string    `json:"teamName"`
	Player1ID uuid.UUID `json:"player1Id"`
	Player2ID uuid.UUID `json:"player2Id"`
}

// JoinTournament registers a two player team. The caller must be one of the
// players unless they manage the tournament.
func (s *TournamentService) JoinTournament(ctx context.Context, actor *users.User, in JoinInput) (*bracket.Team, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	name := strings.TrimSpace(in.TeamName)
	if name == "" {
		return nil, fmt.Errorf("%w: team name is required", ErrInvalidInput)
	}
	if in.Player1ID == uuid.Nil || in.Player2ID == uuid.Nil {
		return nil, fmt.Errorf("%w: two players are required", ErrInvalidInput)
	}
	if in.Player1ID == in.Player2ID {
		return nil, fmt.Errorf("%w: players must be different", ErrInvalidInput)
	}
	// Every guest login shares one account, so it cannot stand for a team.
	if in.Player1ID == GuestUserID || in.Player2ID == GuestUserID {
		return nil, fmt.Errorf("%w: guests cannot join a team", ErrInvalidInput)
	}
	for _, id := range []uuid.UUID{in.Player1ID, in.Player2ID} {
		if _, err := s.users.GetUser(ctx, id); err != nil {
			return nil, storeErr(err, ErrUserNotFound, id)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, persistenceErr("begin", err)
	}
	defer tx.Rollback()

	code := utils.NormalizeCode(in.Code)
	t, err := s.tournaments.GetTournamentByCodeTx(ctx, tx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: code %s", ErrTournamentNotFound, code)
	}
	if err != nil {
		return nil, persistenceErr("load tournament", err)
	}
	if !canManage(actor, t) && actor.ID != in.Player1ID && actor.ID != in.Player2ID {
		return nil, ErrUnauthorized
	}
	if t.Status != bracket.StatusLobby {
		return nil, fmt.Errorf("%w: tournament is %s", ErrInvalidState, t.Status)
	}

	teams, err := s.tournaments.GetTeamsTx(ctx, tx, t.ID)
	if err != nil {
		return nil, persistenceErr("load teams", err)
	}
	if len(teams) >= t.Size.Capacity() {
		return nil, fmt.Errorf("%w: %d of %d teams", ErrTournamentFull, len(teams), t.Size.Capacity())
	}
	for _, existing := range teams {
		if strings.EqualFold(existing.Name, name) {
			return nil, fmt.Errorf("%w: %s", ErrTeamNameTaken, name)
		}
		if existing.HasPlayer(in.Player1ID) || existing.HasPlayer(in.Player2ID) {
			return nil, fmt.Errorf("%w: %s", ErrPlayerInTeam, existing.Name)
		}
	}

	team := &bracket.Team{
		ID:           uuid.New(),
		TournamentID: t.ID,
		Name:         name,
		Player1ID:    in.Player1ID,
		Player2ID:    in.Player2ID,
	}
	if err := s.tournaments.CreateTeam(ctx, tx, team); err != nil {
		return nil, persistenceErr("create team", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, persistenceErr("commit", err)
	}

	s.notifier.TournamentChanged(ctx, notify.Event{Type: notify.EventTeamsChanged, TournamentID: t.ID})
	return team, nil
}

// DeleteTeam removes a team before the tournament starts. Team members and
// tournament admins may do this.
func (s *TournamentService) DeleteTeam(ctx context.Context, actor *users.User, teamID uuid.UUID) error {
	if actor == nil {
		return ErrUnauthorized
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistenceErr("begin", err)
	}
	defer tx.Rollback()

	team, err := s.tournaments.GetTeamTx(ctx, tx, teamID)
	if err != nil {
		return storeErr(err, ErrTeamNotFound, teamID)
	}
	t, err := s.tournaments.GetTournamentTx(ctx, tx, team.TournamentID)
	if err != nil {
		return storeErr(err, ErrTournamentNotFound, team.TournamentID)
	}
	if !canManage(actor, t) && !team.HasPlayer(actor.ID) {
		return ErrUnauthorized
	}
	if t.Status != bracket.StatusLobby {
		return fmt.Errorf("%w: tournament is %s", ErrInvalidState, t.Status)
	}
	if err := s.tournaments.DeleteTeam(ctx, tx, teamID); err != nil {
		return storeErr(err, ErrTeamNotFound, teamID)
	}
	if err := tx.Commit(); err != nil {
		return persistenceErr("commit", err)
	}

	s.notifier.TournamentChanged(ctx, notify.Event{Type: notify.EventTeamsChanged, TournamentID: t.ID})
	return nil
}

func (s *TournamentService) ListPlayers(ctx context.Context, tournamentID uuid.UUID) ([]store.PlayerEntry, error) {
	if _, err := s.tournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	players, err := s.tournaments.GetPlayers(ctx, tournamentID)
	if err != nil {
		return nil, persistenceErr("list players", err)
	}
	return players, nil
}

// ListAvailablePlayers returns the players that can still be picked as a
// teammate in the tournament with the given join code.
func (s *TournamentService) ListAvailablePlayers(ctx context.Context, code string) ([]users.User, error) {
	code = utils.NormalizeCode(code)
	t, err := s.tournaments.GetTournamentByCode(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: code %s", ErrTournamentNotFound, code)
	}
	if err != nil {
		return nil, persistenceErr("load tournament", err)
	}
	players, err := s.users.GetAvailablePlayers(ctx, t.ID)
	if err != nil {
		return nil, persistenceErr("list available players", err)
	}
	return slices.DeleteFunc(players, func(u users.User) bool { return u.ID == GuestUserID }), nil
}

func (s *TournamentService) CurrentTeam(ctx context.Context, actor *users.User, tournamentID uuid.UUID) (*bracket.Team, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	team, err := s.tournaments.FindTeamForPlayer(ctx, tournamentID, actor.ID)
	if err != nil {
		return nil, persistenceErr("find team", err)
	}
	if team == nil {
		return nil, fmt.Errorf("%w: user %s has no team in tournament %s", ErrTeamNotFound, actor.ID, tournamentID)
	}
	return team, nil
}

func (s *TournamentService) GetGroupStandings(ctx context.Context, tournamentID uuid.UUID) ([]GroupStanding, error) {
	if _, err := s.tournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	return s.groupStandings(ctx, tournamentID)
}

func (s *TournamentService) RunningMatches(ctx context.Context, tournamentID uuid.UUID) ([]RunningMatch, error) {
	if _, err := s.tournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	return s.runningMatches(ctx, tournamentID)
}

func (s *TournamentService) OpenGroupMatches(ctx context.Context, tournamentID uuid.UUID) (int, error) {
	n, err := s.matches.CountOpenGroupMatches(ctx, tournamentID)
	if err != nil {
		return 0, persistenceErr("count open matches", err)
	}
	return n, nil
}

type TeamMatches struct {
	Team        *bracket.Team              `json:"team"`
	Group       []bracket.Match            `json:"group"`
	Elimination []bracket.EliminationMatch `json:"elimination"`
}

func (s *TournamentService) MatchesForTeam(ctx context.Context, teamID uuid.UUID) (*TeamMatches, error) {
	team, err := s.tournaments.GetTeam(ctx, teamID)
	if err != nil {
		return nil, storeErr(err, ErrTeamNotFound, teamID)
	}
	group, err := s.matches.GetTeamMatches(ctx, teamID)
	if err != nil {
		return nil, persistenceErr("load group matches", err)
	}
	elimination, err := s.matches.GetTeamEliminationMatches(ctx, teamID)
	if err != nil {
		return nil, persistenceErr("load elimination matches", err)
	}
	return &TeamMatches{Team: team, Group: group, Elimination: elimination}, nil
}

type StartResult struct {
	Status     bracket.TournamentStatus `json:"status"`
	GroupCount int                      `json:"groupCount"`
}

// StartTournament shuffles the registered teams into groups of four, schedules
// every group and moves the tournament to the group stage. Everything happens
// in one transaction, a failure leaves the tournament in the lobby untouched.
func (s *TournamentService) StartTournament(ctx context.Context, actor *users.User, tournamentID uuid.UUID) (*StartResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, persistenceErr("begin", err)
	}
	defer tx.Rollback()

	t, err := s.tournaments.GetTournamentTx(ctx, tx, tournamentID)
	if err != nil {
		return nil, storeErr(err, ErrTournamentNotFound, tournamentID)
	}
	if !canManage(actor, t) {
		return nil, ErrUnauthorized
	}
	if t.Status != bracket.StatusLobby {
		return nil, fmt.Errorf("%w: tournament is %s, expected %s", ErrInvalidState, t.Status, bracket.StatusLobby)
	}

	teams, err := s.tournaments.GetTeamsTx(ctx, tx, tournamentID)
	if err != nil {
		return nil, persistenceErr("load teams", err)
	}
	if len(teams) < t.Size.Capacity() {
		return nil, fmt.Errorf("%w: %d of %d teams", ErrInsufficientTeams, len(teams), t.Size.Capacity())
	}

	ids := make([]uuid.UUID, len(teams))
	for i, team := range teams {
		ids[i] = team.ID
	}
	s.shuffle(ids)

	groupCount, err := s.allocateGroups(ctx, tx, tournamentID, ids)
	if err != nil {
		return nil, err
	}

	ok, err := s.tournaments.CompareAndSetStatus(ctx, tx, tournamentID, bracket.StatusLobby, bracket.StatusGroupStage)
	if err != nil {
		return nil, persistenceErr("update status", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: tournament already started", ErrInvalidState)
	}
	if err := tx.Commit(); err != nil {
		return nil, persistenceErr("commit", err)
	}

	s.logger.Info("tournament started", "tournament_id", tournamentID, "teams", len(ids), "groups", groupCount)
	s.notifier.TournamentChanged(ctx, notify.Event{Type: notify.EventTournamentStarted, TournamentID: tournamentID})
	return &StartResult{Status: bracket.StatusGroupStage, GroupCount: groupCount}, nil
}

// allocateGroups chunks ids into groups of four in the given order and creates
// each group's fixtures. A chunk that is not a full group is created without
// matches.
func (s *TournamentService) allocateGroups(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, ids []uuid.UUID) (int, error) {
	groupCount := (len(ids) + bracket.GroupSize - 1) / bracket.GroupSize
	if groupCount > bracket.MaxGroups {
		return 0, fmt.Errorf("%w: %d groups, at most %d", ErrTooManyGroups, groupCount, bracket.MaxGroups)
	}

	for pos := 0; pos < groupCount; pos++ {
		end := min((pos+1)*bracket.GroupSize, len(ids))
		members := ids[pos*bracket.GroupSize : end]

		group := &bracket.Group{
			ID:           uuid.New(),
			TournamentID: tournamentID,
			Name:         bracket.GroupName(pos),
			Position:     pos,
		}
		if err := s.tournaments.CreateGroup(ctx, tx, group); err != nil {
			return 0, persistenceErr("create group", err)
		}
		for _, teamID := range members {
			if err := s.tournaments.AssignGroup(ctx, tx, teamID, group.ID); err != nil {
				return 0, persistenceErr("assign group", err)
			}
		}

		matches, ok := newGroupMatches(group.ID, members)
		if !ok {
			s.logger.Warn("skipping schedule for incomplete group",
				"tournament_id", tournamentID, "group", group.Name, "teams", len(members))
			continue
		}
		if err := s.matches.CreateMatches(ctx, tx, matches); err != nil {
			return 0, persistenceErr("create matches", err)
		}
	}
	return groupCount, nil
}

// ResetTournament throws away groups, matches, the bracket and all pending
// results and returns the tournament to the lobby. Teams are kept.
func (s *TournamentService) ResetTournament(ctx context.Context, actor *users.User, tournamentID uuid.UUID) (bracket.TournamentStatus, error) {
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
	if err := s.tournaments.ResetTournament(ctx, tx, tournamentID); err != nil {
		return "", persistenceErr("reset", err)
	}
	if err := tx.Commit(); err != nil {
		return "", persistenceErr("commit", err)
	}

	s.logger.Info("tournament reset", "tournament_id", tournamentID, "previous_status", t.Status, "actor_id", actor.ID)
	s.notifier.TournamentChanged(ctx, notify.Event{Type: notify.EventTournamentReset, TournamentID: tournamentID})
	return bracket.StatusLobby, nil
}
