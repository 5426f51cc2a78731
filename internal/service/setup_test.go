package service

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/JoshiWorld/bierpongv2/internal/db"
	"github.com/JoshiWorld/bierpongv2/internal/lock"
	"github.com/JoshiWorld/bierpongv2/internal/notify"
	"github.com/JoshiWorld/bierpongv2/internal/store"
	users "github.com/JoshiWorld/bierpongv2/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	database.SetMaxOpenConns(1)

	require.NoError(t, db.RunMigrations(database.DB), "Failed to apply migrations")
	t.Cleanup(func() { database.Close() })

	return database
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) TournamentChanged(_ context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []notify.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.EventType
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingArchiver struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]any
}

func (a *recordingArchiver) ArchiveTournament(_ context.Context, id uuid.UUID, snapshot any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snapshots == nil {
		a.snapshots = map[uuid.UUID]any{}
	}
	a.snapshots[id] = snapshot
	return nil
}

type testEnv struct {
	db          *sqlx.DB
	tournaments *store.TournamentStore
	matches     *store.MatchStore
	users       *store.UserStore
	notifier    *recordingNotifier
	archiver    *recordingArchiver

	tournamentService *TournamentService
	bracketService    *BracketService
	matchService      *MatchService

	admin *users.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database := setupTestDB(t)

	e := &testEnv{
		db:          database,
		tournaments: store.NewTournamentStore(database),
		matches:     store.NewMatchStore(database),
		users:       store.NewUserStore(database),
		notifier:    &recordingNotifier{},
		archiver:    &recordingArchiver{},
	}
	e.tournamentService = NewTournamentService(database, e.tournaments, e.matches, e.users, e.notifier, nil)
	e.tournamentService.shuffle = func([]uuid.UUID) {}
	e.bracketService = NewBracketService(database, e.tournaments, e.matches, e.notifier, e.archiver, nil)
	e.matchService = NewMatchService(database, e.tournaments, e.matches, lock.NewMemory(), e.bracketService, e.notifier, nil)
	e.admin = e.createUser(t, "organizer")
	return e
}

func (e *testEnv) createUser(t *testing.T, name string) *users.User {
	t.Helper()
	user := &users.User{ID: uuid.New(), Username: name, Role: users.RolePlayer}
	require.NoError(t, e.users.CreateUser(context.Background(), user))
	return user
}

func (e *testEnv) createTournament(t *testing.T, size bracket.TournamentSize) *bracket.Tournament {
	t.Helper()
	tournament, err := e.tournamentService.CreateTournament(context.Background(), e.admin, CreateTournamentInput{
		Name: "Bierpong " + string(size),
		Size: string(size),
	})
	require.NoError(t, err)
	return tournament
}

// addTeams registers n teams named T1..Tn in that order.
func (e *testEnv) addTeams(t *testing.T, tournament *bracket.Tournament, n int) []bracket.Team {
	t.Helper()
	teams := make([]bracket.Team, 0, n)
	for i := 1; i <= n; i++ {
		name := "T" + strconv.Itoa(i)
		p1 := e.createUser(t, name+"a")
		p2 := e.createUser(t, name+"b")
		team, err := e.tournamentService.JoinTournament(context.Background(), p1, JoinInput{
			Code:      tournament.Code,
			TeamName:  name,
			Player1ID: p1.ID,
			Player2ID: p2.ID,
		})
		require.NoError(t, err)
		teams = append(teams, *team)
	}
	return teams
}

func (e *testEnv) startTournament(t *testing.T, size bracket.TournamentSize) (*bracket.Tournament, []bracket.Team) {
	t.Helper()
	tournament := e.createTournament(t, size)
	teams := e.addTeams(t, tournament, size.Capacity())
	_, err := e.tournamentService.StartTournament(context.Background(), e.admin, tournament.ID)
	require.NoError(t, err)
	return tournament, teams
}

func (e *testEnv) team(t *testing.T, id uuid.UUID) *bracket.Team {
	t.Helper()
	team, err := e.tournaments.GetTeam(context.Background(), id)
	require.NoError(t, err)
	return team
}

// actorFor returns the first player of the team as a caller.
func (e *testEnv) actorFor(t *testing.T, teamID uuid.UUID) *users.User {
	t.Helper()
	return &users.User{ID: e.team(t, teamID).Player1ID, Role: users.RolePlayer}
}

// playGroupStage lets team1 of every group match win 5-0, confirmed by both teams.
func (e *testEnv) playGroupStage(t *testing.T, tournamentID uuid.UUID) {
	t.Helper()
	matches, err := e.matches.GetTournamentMatches(context.Background(), tournamentID)
	require.NoError(t, err)
	for _, m := range matches {
		e.confirmGroup(t, m, 5, 0, m.Team1ID)
	}
}

// confirmGroup submits the same result from both teams of the match.
func (e *testEnv) confirmGroup(t *testing.T, m bracket.Match, team1Cups, team2Cups int, winner uuid.UUID) {
	t.Helper()
	for _, teamID := range []uuid.UUID{m.Team1ID, m.Team2ID} {
		_, err := e.matchService.SubmitGroupResult(context.Background(), e.actorFor(t, teamID), m.ID, GroupResultInput{
			TeamID: teamID, Team1Cups: team1Cups, Team2Cups: team2Cups, WinnerID: winner,
		})
		require.NoError(t, err)
	}
}

type tally struct {
	points, cupsWon, cupsConceded int
}

// tallies snapshots the running totals of every team in the tournament.
func (e *testEnv) tallies(t *testing.T, tournamentID uuid.UUID) map[uuid.UUID]tally {
	t.Helper()
	teams, err := e.tournaments.GetTeams(context.Background(), tournamentID)
	require.NoError(t, err)
	out := make(map[uuid.UUID]tally, len(teams))
	for _, team := range teams {
		out[team.ID] = tally{team.Points, team.CupsWon, team.CupsConceded}
	}
	return out
}

// changedTallies returns the difference for every team whose totals moved.
func changedTallies(before, after map[uuid.UUID]tally) map[uuid.UUID]tally {
	out := map[uuid.UUID]tally{}
	for id, a := range after {
		b := before[id]
		d := tally{a.points - b.points, a.cupsWon - b.cupsWon, a.cupsConceded - b.cupsConceded}
		if d != (tally{}) {
			out[id] = d
		}
	}
	return out
}

// placements confirms the current top two of every group.
func (e *testEnv) placements(t *testing.T, tournamentID uuid.UUID) []GroupPlacement {
	t.Helper()
	standings, err := e.tournamentService.GetGroupStandings(context.Background(), tournamentID)
	require.NoError(t, err)
	out := make([]GroupPlacement, 0, len(standings))
	for _, s := range standings {
		out = append(out, GroupPlacement{GroupID: s.Group.ID, FirstID: s.Teams[0].ID, SecondID: s.Teams[1].ID})
	}
	return out
}

// playRound confirms a team1 win for every open match of the round.
func (e *testEnv) playRound(t *testing.T, roundID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	matches, err := e.matches.GetRoundMatches(ctx, roundID)
	require.NoError(t, err)
	for _, m := range matches {
		if m.Done {
			continue
		}
		e.confirmElimination(t, m, m.Team1ID)
	}
}

func (e *testEnv) confirmElimination(t *testing.T, m bracket.EliminationMatch, winner uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	for _, teamID := range []uuid.UUID{m.Team1ID, m.Team2ID} {
		_, err := e.matchService.SubmitEliminationResult(ctx, e.actorFor(t, teamID), m.ID, EliminationResultInput{
			TeamID: teamID, WinnerID: winner,
		})
		require.NoError(t, err)
	}
}
