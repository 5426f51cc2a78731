package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/JoshiWorld/bierpongv2/internal/db"
	users "github.com/JoshiWorld/bierpongv2/internal/user"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err, "Failed to connect to in-memory DB")

	// Every connection to :memory: is its own database
	database.SetMaxOpenConns(1)

	require.NoError(t, db.RunMigrations(database.DB), "Failed to apply migrations")
	t.Cleanup(func() { database.Close() })

	return database
}

func createTestUser(t *testing.T, database *sqlx.DB, name string) *users.User {
	t.Helper()
	user := &users.User{ID: uuid.New(), Username: name, Role: users.RolePlayer}
	require.NoError(t, NewUserStore(database).CreateUser(context.Background(), user))
	return user
}

func inTx(t *testing.T, database *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	t.Helper()
	tx, err := database.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func createTestTournament(t *testing.T, database *sqlx.DB, admin *users.User, code string) *bracket.Tournament {
	t.Helper()
	tournament := &bracket.Tournament{
		ID:      uuid.New(),
		AdminID: admin.ID,
		Name:    "Test Tournament " + code,
		Code:    code,
		Size:    bracket.SizeSmall,
		Status:  bracket.StatusLobby,
	}
	err := inTx(t, database, func(tx *sqlx.Tx) error {
		return NewTournamentStore(database).CreateTournament(context.Background(), tx, tournament)
	})
	require.NoError(t, err)
	return tournament
}

func createTestTeam(t *testing.T, database *sqlx.DB, tournamentID uuid.UUID, name string) *bracket.Team {
	t.Helper()
	p1 := createTestUser(t, database, name+"-1")
	p2 := createTestUser(t, database, name+"-2")
	team := &bracket.Team{ID: uuid.New(), TournamentID: tournamentID, Name: name, Player1ID: p1.ID, Player2ID: p2.ID}
	err := inTx(t, database, func(tx *sqlx.Tx) error {
		return NewTournamentStore(database).CreateTeam(context.Background(), tx, team)
	})
	require.NoError(t, err)
	return team
}

func TestCreateTournament(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	ctx := context.Background()

	admin := createTestUser(t, database, "admin")
	tournament := createTestTournament(t, database, admin, "ABC123")

	fetched, err := store.GetTournament(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, tournament.ID, fetched.ID)
	assert.Equal(t, admin.ID, fetched.AdminID)
	assert.Equal(t, bracket.SizeSmall, fetched.Size)
	assert.Equal(t, bracket.StatusLobby, fetched.Status)
	assert.False(t, fetched.CreatedAt.IsZero())

	byCode, err := store.GetTournamentByCode(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, tournament.ID, byCode.ID)

	_, err = store.GetTournament(ctx, uuid.New())
	assert.ErrorIs(t, err, sql.ErrNoRows)

	duplicate := *tournament
	duplicate.ID = uuid.New()
	err = inTx(t, database, func(tx *sqlx.Tx) error {
		return store.CreateTournament(ctx, tx, &duplicate)
	})
	assert.Error(t, err, "join codes are unique")
}

func TestCompareAndSetStatus(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "admin"), "CAS")

	var first, second bool
	err := inTx(t, database, func(tx *sqlx.Tx) error {
		var err error
		first, err = store.CompareAndSetStatus(ctx, tx, tournament.ID, bracket.StatusLobby, bracket.StatusGroupStage)
		if err != nil {
			return err
		}
		second, err = store.CompareAndSetStatus(ctx, tx, tournament.ID, bracket.StatusLobby, bracket.StatusGroupStage)
		return err
	})
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	fetched, err := store.GetTournament(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.StatusGroupStage, fetched.Status)
}

func TestTeams(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "admin"), "TEAMS")
	alpha := createTestTeam(t, database, tournament.ID, "Alpha")
	beta := createTestTeam(t, database, tournament.ID, "Beta")

	teams, err := store.GetTeams(ctx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, alpha.ID, teams[0].ID)
	assert.Equal(t, beta.ID, teams[1].ID)

	found, err := store.FindTeamForPlayer(ctx, tournament.ID, beta.Player2ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, beta.ID, found.ID)

	missing, err := store.FindTeamForPlayer(ctx, tournament.ID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	t.Run("team names are unique per tournament", func(t *testing.T) {
		dup := &bracket.Team{ID: uuid.New(), TournamentID: tournament.ID, Name: "Alpha", Player1ID: alpha.Player1ID, Player2ID: alpha.Player2ID}
		err := inTx(t, database, func(tx *sqlx.Tx) error {
			return store.CreateTeam(ctx, tx, dup)
		})
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		err := inTx(t, database, func(tx *sqlx.Tx) error {
			return store.DeleteTeam(ctx, tx, beta.ID)
		})
		require.NoError(t, err)

		err = inTx(t, database, func(tx *sqlx.Tx) error {
			return store.DeleteTeam(ctx, tx, beta.ID)
		})
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})
}

func TestAddTallies(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "admin"), "TALLY")
	team := createTestTeam(t, database, tournament.ID, "Alpha")

	err := inTx(t, database, func(tx *sqlx.Tx) error {
		if err := store.AddTallies(ctx, tx, team.ID, 3, 5, 0); err != nil {
			return err
		}
		return store.AddTallies(ctx, tx, team.ID, 0, 0, 4)
	})
	require.NoError(t, err)

	fetched, err := store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, fetched.Points)
	assert.Equal(t, 5, fetched.CupsWon)
	assert.Equal(t, 4, fetched.CupsConceded)
	assert.Equal(t, 1, fetched.CupDifference())
}

func TestGroupsAndMatches(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	matchStore := NewMatchStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "admin"), "GRP")
	a := createTestTeam(t, database, tournament.ID, "A")
	b := createTestTeam(t, database, tournament.ID, "B")

	group := &bracket.Group{ID: uuid.New(), TournamentID: tournament.ID, Name: bracket.GroupName(0), Position: 0}
	match := bracket.Match{ID: uuid.New(), GroupID: group.ID, MatchOrder: 0, Team1ID: a.ID, Team2ID: b.ID}

	err := inTx(t, database, func(tx *sqlx.Tx) error {
		if err := store.CreateGroup(ctx, tx, group); err != nil {
			return err
		}
		if err := store.AssignGroup(ctx, tx, a.ID, group.ID); err != nil {
			return err
		}
		if err := store.AssignGroup(ctx, tx, b.ID, group.ID); err != nil {
			return err
		}
		return matchStore.CreateMatches(ctx, tx, []bracket.Match{match})
	})
	require.NoError(t, err)

	groupTeams, err := store.GetGroupTeams(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, groupTeams, 2)

	open, err := matchStore.CountOpenGroupMatches(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, open)

	err = inTx(t, database, func(tx *sqlx.Tx) error {
		return matchStore.CompleteMatch(ctx, tx, match.ID, 5, 2)
	})
	require.NoError(t, err)

	err = inTx(t, database, func(tx *sqlx.Tx) error {
		return matchStore.CompleteMatch(ctx, tx, match.ID, 1, 6)
	})
	assert.ErrorIs(t, err, sql.ErrNoRows, "completed scores are immutable")

	fetched, err := matchStore.GetMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.True(t, fetched.Done)
	require.NotNil(t, fetched.ScoreTeam1)
	assert.Equal(t, 5, *fetched.ScoreTeam1)
	assert.Equal(t, 2, *fetched.ScoreTeam2)

	open, err = matchStore.CountOpenGroupMatches(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Zero(t, open)

	teamMatches, err := matchStore.GetTeamMatches(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, teamMatches, 1)
}

func TestPendingResults(t *testing.T) {
	database := setupTestDB(t)
	matchStore := NewMatchStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "admin"), "RES")
	a := createTestTeam(t, database, tournament.ID, "A")
	b := createTestTeam(t, database, tournament.ID, "B")
	matchID := uuid.New()

	result := &bracket.MatchResult{
		ID:            uuid.New(),
		MatchID:       matchID,
		Stage:         bracket.StageGroup,
		CreatorTeamID: a.ID,
		Team1Cups:     4,
		Team2Cups:     0,
		WinnerID:      a.ID,
	}

	tx, err := database.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	pending, err := matchStore.GetPendingResultTx(ctx, tx, matchID)
	require.NoError(t, err)
	assert.Nil(t, pending)

	require.NoError(t, matchStore.CreateResult(ctx, tx, result))

	pending, err = matchStore.GetPendingResultTx(ctx, tx, matchID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, a.ID, pending.CreatorTeamID)
	assert.True(t, pending.Agrees(result))

	second := *result
	second.ID = uuid.New()
	second.CreatorTeamID = b.ID
	assert.Error(t, matchStore.CreateResult(ctx, tx, &second), "one pending result per match")

	require.NoError(t, matchStore.DeleteResult(ctx, tx, result.ID))
	pending, err = matchStore.GetPendingResultTx(ctx, tx, matchID)
	require.NoError(t, err)
	assert.Nil(t, pending)

}

func TestEliminationMatchOrderIsUnique(t *testing.T) {
	database := setupTestDB(t)
	matchStore := NewMatchStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "admin"), "KO")
	a := createTestTeam(t, database, tournament.ID, "A")
	b := createTestTeam(t, database, tournament.ID, "B")

	round := bracket.EliminationRound{ID: uuid.New(), TournamentID: tournament.ID, Name: bracket.RoundFinal, Sequence: 0}
	err := inTx(t, database, func(tx *sqlx.Tx) error {
		if err := matchStore.CreateRounds(ctx, tx, []bracket.EliminationRound{round}); err != nil {
			return err
		}
		return matchStore.CreateEliminationMatches(ctx, tx, []bracket.EliminationMatch{
			{ID: uuid.New(), RoundID: round.ID, MatchOrder: 0, Team1ID: a.ID, Team2ID: b.ID},
		})
	})
	require.NoError(t, err)

	err = inTx(t, database, func(tx *sqlx.Tx) error {
		return matchStore.CreateEliminationMatches(ctx, tx, []bracket.EliminationMatch{
			{ID: uuid.New(), RoundID: round.ID, MatchOrder: 0, Team1ID: b.ID, Team2ID: a.ID},
		})
	})
	assert.Error(t, err)

	matches, err := matchStore.GetRoundMatches(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	_, ok := matches[0].Winner()
	assert.False(t, ok)

	err = inTx(t, database, func(tx *sqlx.Tx) error {
		return matchStore.CompleteEliminationMatch(ctx, tx, matches[0].ID, 0, 3)
	})
	require.NoError(t, err)

	done, err := matchStore.GetEliminationMatch(ctx, matches[0].ID)
	require.NoError(t, err)
	winner, ok := done.Winner()
	assert.True(t, ok)
	assert.Equal(t, b.ID, winner)

	teamMatches, err := matchStore.GetTeamEliminationMatches(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, teamMatches, 1)
}

func TestResetTournament(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	matchStore := NewMatchStore(database)
	ctx := context.Background()

	tournament := createTestTournament(t, database, createTestUser(t, database, "admin"), "RESET")
	a := createTestTeam(t, database, tournament.ID, "A")
	b := createTestTeam(t, database, tournament.ID, "B")

	group := &bracket.Group{ID: uuid.New(), TournamentID: tournament.ID, Name: bracket.GroupName(0)}
	matchID := uuid.New()
	round := bracket.EliminationRound{ID: uuid.New(), TournamentID: tournament.ID, Name: bracket.RoundFinal}

	err := inTx(t, database, func(tx *sqlx.Tx) error {
		steps := []func() error{
			func() error { return store.CreateGroup(ctx, tx, group) },
			func() error { return store.AssignGroup(ctx, tx, a.ID, group.ID) },
			func() error {
				return matchStore.CreateMatches(ctx, tx, []bracket.Match{{ID: matchID, GroupID: group.ID, Team1ID: a.ID, Team2ID: b.ID}})
			},
			func() error {
				return matchStore.CreateResult(ctx, tx, &bracket.MatchResult{
					ID: uuid.New(), MatchID: matchID, Stage: bracket.StageGroup, CreatorTeamID: a.ID, Team1Cups: 1, WinnerID: a.ID,
				})
			},
			func() error { return store.AddTallies(ctx, tx, a.ID, 3, 6, 1) },
			func() error { return matchStore.CreateRounds(ctx, tx, []bracket.EliminationRound{round}) },
			func() error {
				_, err := store.CompareAndSetStatus(ctx, tx, tournament.ID, bracket.StatusLobby, bracket.StatusGroupStage)
				return err
			},
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = inTx(t, database, func(tx *sqlx.Tx) error {
		return store.ResetTournament(ctx, tx, tournament.ID)
	})
	require.NoError(t, err)

	fetched, err := store.GetTournament(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, bracket.StatusLobby, fetched.Status)

	groups, err := store.GetGroups(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Empty(t, groups)

	rounds, err := matchStore.GetRounds(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Empty(t, rounds)

	_, err = matchStore.GetMatch(ctx, matchID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	team, err := store.GetTeam(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, team.GroupID)
	assert.Zero(t, team.Points)
	assert.Zero(t, team.CupsWon)
	assert.Zero(t, team.CupsConceded)

	teams, err := store.GetTeams(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Len(t, teams, 2, "teams survive a reset")
}

func TestPlayersAndMembership(t *testing.T) {
	database := setupTestDB(t)
	store := NewTournamentStore(database)
	userStore := NewUserStore(database)
	ctx := context.Background()

	admin := createTestUser(t, database, "admin")
	tournament := createTestTournament(t, database, admin, "PLAY")
	team := createTestTeam(t, database, tournament.ID, "Alpha")
	loner := createTestUser(t, database, "loner")

	players, err := store.GetPlayers(ctx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, players, 2)
	for _, p := range players {
		assert.Equal(t, "Alpha", p.TeamName)
	}

	available, err := userStore.GetAvailablePlayers(ctx, tournament.ID)
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, u := range available {
		ids = append(ids, u.ID)
	}
	assert.Contains(t, ids, loner.ID)
	assert.Contains(t, ids, admin.ID)
	assert.NotContains(t, ids, team.Player1ID)
	assert.NotContains(t, ids, team.Player2ID)

	forAdmin, err := store.GetTournamentsByUserID(ctx, admin.ID)
	require.NoError(t, err)
	require.Len(t, forAdmin, 1)

	forPlayer, err := store.GetTournamentsByUserID(ctx, team.Player1ID)
	require.NoError(t, err)
	require.Len(t, forPlayer, 1)
	assert.Equal(t, tournament.ID, forPlayer[0].ID)

	forLoner, err := store.GetTournamentsByUserID(ctx, loner.ID)
	require.NoError(t, err)
	assert.Empty(t, forLoner)
}
