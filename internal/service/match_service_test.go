package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/JoshiWorld/bierpongv2/internal/notify"
	users "github.com/JoshiWorld/bierpongv2/internal/user"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firstGroupMatch starts a SMALL tournament and returns its opening match T1 vs T2.
func firstGroupMatch(t *testing.T, env *testEnv) (*bracket.Tournament, bracket.Match) {
	t.Helper()
	tournament, _ := env.startTournament(t, bracket.SizeSmall)
	matches, err := env.matches.GetTournamentMatches(context.Background(), tournament.ID)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	return tournament, matches[0]
}

func TestSubmitGroupResultConfirmed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, m := firstGroupMatch(t, env)

	result := GroupResultInput{Team1Cups: 5, Team2Cups: 0, WinnerID: m.Team1ID}

	result.TeamID = m.Team1ID
	sub, err := env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team1ID), m.ID, result)
	require.NoError(t, err)
	assert.True(t, sub.Created)

	pending, err := env.matches.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, pending.Done)

	result.TeamID = m.Team2ID
	sub, err = env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team2ID), m.ID, result)
	require.NoError(t, err)
	assert.False(t, sub.Created)

	done, err := env.matches.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, done.Done)
	require.NotNil(t, done.ScoreTeam1)
	require.NotNil(t, done.ScoreTeam2)
	assert.Equal(t, 5, *done.ScoreTeam1)
	assert.Equal(t, 0, *done.ScoreTeam2)

	winner := env.team(t, m.Team1ID)
	assert.Equal(t, 3, winner.Points)
	assert.Equal(t, 5, winner.CupsWon)
	assert.Equal(t, 0, winner.CupsConceded)

	loser := env.team(t, m.Team2ID)
	assert.Equal(t, 0, loser.Points)
	assert.Equal(t, 0, loser.CupsWon)
	assert.Equal(t, 5, loser.CupsConceded)

	assert.Equal(t, []notify.EventType{
		notify.EventTournamentStarted,
		notify.EventResultSubmitted,
		notify.EventMatchCompleted,
	}, env.notifier.types()[4:])

	// No pending result is left behind.
	tx, err := env.db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	left, err := env.matches.GetPendingResultTx(ctx, tx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, left)
}

func TestSubmitGroupResultTeam2Wins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, m := firstGroupMatch(t, env)

	for _, teamID := range []uuid.UUID{m.Team2ID, m.Team1ID} {
		_, err := env.matchService.SubmitGroupResult(ctx, env.actorFor(t, teamID), m.ID, GroupResultInput{
			TeamID: teamID, Team1Cups: 2, Team2Cups: 6, WinnerID: m.Team2ID,
		})
		require.NoError(t, err)
	}

	winner := env.team(t, m.Team2ID)
	assert.Equal(t, 3, winner.Points)
	assert.Equal(t, 6, winner.CupsWon)

	loser := env.team(t, m.Team1ID)
	assert.Equal(t, 0, loser.Points)
	assert.Equal(t, 0, loser.CupsWon)
	assert.Equal(t, 6, loser.CupsConceded)
}

func TestSubmitGroupResultMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, m := firstGroupMatch(t, env)

	sub, err := env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team1ID), m.ID, GroupResultInput{
		TeamID: m.Team1ID, Team1Cups: 5, Team2Cups: 0, WinnerID: m.Team1ID,
	})
	require.NoError(t, err)
	assert.True(t, sub.Created)

	_, err = env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team2ID), m.ID, GroupResultInput{
		TeamID: m.Team2ID, Team1Cups: 5, Team2Cups: 1, WinnerID: m.Team1ID,
	})
	assert.ErrorIs(t, err, ErrResultMismatch)
	assert.Equal(t, KindMismatch, KindOf(err))

	unchanged, err := env.matches.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, unchanged.Done)
	assert.Zero(t, env.team(t, m.Team1ID).Points)

	// Both teams start over. Whoever submits next creates a fresh pending result.
	sub, err = env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team2ID), m.ID, GroupResultInput{
		TeamID: m.Team2ID, Team1Cups: 5, Team2Cups: 1, WinnerID: m.Team1ID,
	})
	require.NoError(t, err)
	assert.True(t, sub.Created)

	sub, err = env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team1ID), m.ID, GroupResultInput{
		TeamID: m.Team1ID, Team1Cups: 5, Team2Cups: 1, WinnerID: m.Team1ID,
	})
	require.NoError(t, err)
	assert.False(t, sub.Created)

	loser := env.team(t, m.Team2ID)
	assert.Equal(t, 0, loser.CupsWon)
	assert.Equal(t, 5, loser.CupsConceded)
}

func TestSubmitGroupResultDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, m := firstGroupMatch(t, env)

	in := GroupResultInput{TeamID: m.Team1ID, Team1Cups: 5, Team2Cups: 0, WinnerID: m.Team1ID}
	_, err := env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team1ID), m.ID, in)
	require.NoError(t, err)

	_, err = env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team1ID), m.ID, in)
	assert.ErrorIs(t, err, ErrDuplicateResult)
}

func TestSubmitGroupResultCompletedMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, m := firstGroupMatch(t, env)

	for _, teamID := range []uuid.UUID{m.Team1ID, m.Team2ID} {
		_, err := env.matchService.SubmitGroupResult(ctx, env.actorFor(t, teamID), m.ID, GroupResultInput{
			TeamID: teamID, Team1Cups: 5, Team2Cups: 0, WinnerID: m.Team1ID,
		})
		require.NoError(t, err)
	}

	_, err := env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team1ID), m.ID, GroupResultInput{
		TeamID: m.Team1ID, Team1Cups: 0, Team2Cups: 5, WinnerID: m.Team2ID,
	})
	assert.ErrorIs(t, err, ErrMatchCompleted)
	assert.Equal(t, 3, env.team(t, m.Team1ID).Points)
}

func TestSubmitGroupResultValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament, m := firstGroupMatch(t, env)

	teams, err := env.tournaments.GetTeams(ctx, tournament.ID)
	require.NoError(t, err)
	var outsider uuid.UUID
	for _, team := range teams {
		if team.ID != m.Team1ID && team.ID != m.Team2ID {
			outsider = team.ID
			break
		}
	}
	actor := env.actorFor(t, m.Team1ID)

	tests := []struct {
		name string
		in   GroupResultInput
		want error
	}{
		{"negative cups", GroupResultInput{TeamID: m.Team1ID, Team1Cups: -1, Team2Cups: 5, WinnerID: m.Team2ID}, ErrInvalidScore},
		{"both zero", GroupResultInput{TeamID: m.Team1ID, WinnerID: m.Team1ID}, ErrInvalidScore},
		{"winner not playing", GroupResultInput{TeamID: m.Team1ID, Team1Cups: 5, WinnerID: outsider}, ErrInvalidScore},
		{"team not playing", GroupResultInput{TeamID: outsider, Team1Cups: 5, WinnerID: m.Team1ID}, ErrTeamNotInMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.matchService.SubmitGroupResult(ctx, actor, m.ID, tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}

	_, err = env.matchService.SubmitGroupResult(ctx, actor, uuid.New(), GroupResultInput{TeamID: m.Team1ID, Team1Cups: 5, WinnerID: m.Team1ID})
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestSubmitGroupResultAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, m := firstGroupMatch(t, env)

	in := GroupResultInput{TeamID: m.Team1ID, Team1Cups: 5, Team2Cups: 0, WinnerID: m.Team1ID}

	_, err := env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team2ID), m.ID, in)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.matchService.SubmitGroupResult(ctx, nil, m.ID, in)
	assert.ErrorIs(t, err, ErrUnauthorized)

	globalAdmin := &users.User{ID: uuid.New(), Role: users.RoleAdmin}
	sub, err := env.matchService.SubmitGroupResult(ctx, globalAdmin, m.ID, in)
	require.NoError(t, err)
	assert.True(t, sub.Created)
}

func TestSubmitGroupResultConcurrently(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, m := firstGroupMatch(t, env)

	teamIDs := []uuid.UUID{m.Team1ID, m.Team2ID}
	actors := []*users.User{env.actorFor(t, m.Team1ID), env.actorFor(t, m.Team2ID)}
	subs := make([]*Submission, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	for i := range teamIDs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subs[i], errs[i] = env.matchService.SubmitGroupResult(ctx, actors[i], m.ID, GroupResultInput{
				TeamID: teamIDs[i], Team1Cups: 5, Team2Cups: 3, WinnerID: m.Team1ID,
			})
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, subs[0].Created, subs[1].Created)

	done, err := env.matches.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, done.Done)
	assert.Equal(t, 3, env.team(t, m.Team1ID).Points)
}

func TestSubmitResultWrongStage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, m := firstGroupMatch(t, env)

	_, err := env.matchService.SubmitEliminationResult(ctx, env.actorFor(t, m.Team1ID), m.ID, EliminationResultInput{
		TeamID: m.Team1ID, WinnerID: m.Team1ID,
	})
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestGroupCommitTouchesOnlyBothTeams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament, _ := env.startTournament(t, bracket.SizeSmall)
	matches, err := env.matches.GetTournamentMatches(ctx, tournament.ID)
	require.NoError(t, err)
	require.Len(t, matches, 6)

	env.confirmGroup(t, matches[0], 5, 0, matches[0].Team1ID)
	env.confirmGroup(t, matches[1], 3, 4, matches[1].Team2ID)
	before := env.tallies(t, tournament.ID)

	// T1 against T3, T3 wins with 4 cups.
	m := matches[2]
	env.confirmGroup(t, m, 2, 4, m.Team2ID)

	assert.Equal(t, map[uuid.UUID]tally{
		m.Team2ID: {points: 3, cupsWon: 4},
		m.Team1ID: {cupsConceded: 4},
	}, changedTallies(before, env.tallies(t, tournament.ID)))
}

func TestFailedCommitLeavesMatchPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tournament, m := firstGroupMatch(t, env)

	_, err := env.db.ExecContext(ctx, `CREATE TRIGGER reject_conceded BEFORE UPDATE OF cups_conceded ON teams
        WHEN NEW.cups_conceded <> OLD.cups_conceded
        BEGIN SELECT RAISE(ABORT, 'conceded cups locked'); END`)
	require.NoError(t, err)

	result := GroupResultInput{Team1Cups: 5, Team2Cups: 0, WinnerID: m.Team1ID}
	result.TeamID = m.Team1ID
	sub, err := env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team1ID), m.ID, result)
	require.NoError(t, err)
	assert.True(t, sub.Created)
	before := env.tallies(t, tournament.ID)

	result.TeamID = m.Team2ID
	_, err = env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team2ID), m.ID, result)
	require.ErrorIs(t, err, ErrReconciliation)
	assert.Equal(t, KindInternal, KindOf(err))

	open, err := env.matches.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, open.Done)
	assert.Nil(t, open.ScoreTeam1)
	assert.Empty(t, changedTallies(before, env.tallies(t, tournament.ID)))
	assert.Zero(t, env.team(t, m.Team1ID).Points)

	tx, err := env.db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	pending, err := env.matches.GetPendingResultTx(ctx, tx, m.ID)
	tx.Rollback()
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, m.Team1ID, pending.CreatorTeamID)

	_, err = env.db.ExecContext(ctx, "DROP TRIGGER reject_conceded")
	require.NoError(t, err)

	sub, err = env.matchService.SubmitGroupResult(ctx, env.actorFor(t, m.Team2ID), m.ID, result)
	require.NoError(t, err)
	assert.False(t, sub.Created)

	done, err := env.matches.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, done.Done)
	assert.Equal(t, 3, env.team(t, m.Team1ID).Points)
	assert.Equal(t, 5, env.team(t, m.Team2ID).CupsConceded)
}

func TestSubmitLoadFailureIsReconciliationError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, m := firstGroupMatch(t, env)
	actor := env.actorFor(t, m.Team1ID)

	_, err := env.db.ExecContext(ctx, "ALTER TABLE teams RENAME TO teams_moved")
	require.NoError(t, err)

	_, err = env.matchService.SubmitGroupResult(ctx, actor, m.ID, GroupResultInput{
		TeamID: m.Team1ID, Team1Cups: 5, Team2Cups: 0, WinnerID: m.Team1ID,
	})
	assert.ErrorIs(t, err, ErrReconciliation)
	assert.NotErrorIs(t, err, ErrPersistence)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestReconcileErr(t *testing.T) {
	id := uuid.New()

	err := reconcileErr(sql.ErrNoRows, ErrMatchNotFound, id)
	assert.ErrorIs(t, err, ErrMatchNotFound)
	assert.Equal(t, KindIntegrity, KindOf(err))

	cause := errors.New("disk I/O error")
	err = reconcileErr(cause, ErrMatchNotFound, id)
	assert.ErrorIs(t, err, ErrReconciliation)
	assert.ErrorIs(t, err, cause)
}
