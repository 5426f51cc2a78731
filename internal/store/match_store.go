package store

import (
	"context"
	"database/sql"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	matchColumns              = "id, group_id, match_order, team1_id, team2_id, score_team1, score_team2, done"
	qualifiedMatchColumns     = "m.id, m.group_id, m.match_order, m.team1_id, m.team2_id, m.score_team1, m.score_team2, m.done"
	roundColumns              = "id, tournament_id, name, sequence, created_at"
	elimMatchColumns          = "id, round_id, match_order, team1_id, team2_id, score_team1, score_team2, done"
	qualifiedElimMatchColumns = "em.id, em.round_id, em.match_order, em.team1_id, em.team2_id, em.score_team1, em.score_team2, em.done"
	resultColumns             = "id, match_id, stage, creator_team_id, team1_cups, team2_cups, winner_id, created_at"
)

type MatchStore struct {
	db *sqlx.DB
}

func NewMatchStore(db *sqlx.DB) *MatchStore {
	return &MatchStore{db: db}
}

func (s *MatchStore) CreateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO matches (id, group_id, match_order, team1_id, team2_id, done)
		VALUES (:id, :group_id, :match_order, :team1_id, :team2_id, :done)`, matches)
	return err
}

func (s *MatchStore) GetMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	return getMatch(ctx, s.db, id)
}

func (s *MatchStore) GetMatchTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Match, error) {
	return getMatch(ctx, tx, id)
}

func getMatch(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	if err := sqlx.GetContext(ctx, q, &match, "SELECT "+matchColumns+" FROM matches WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *MatchStore) GetGroupMatches(ctx context.Context, groupID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches, "SELECT "+matchColumns+" FROM matches WHERE group_id = ? ORDER BY match_order ASC", groupID)
	return matches, err
}

// GetTournamentMatches returns all group matches, ordered by group and fixture order.
func (s *MatchStore) GetTournamentMatches(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches, `SELECT `+qualifiedMatchColumns+` FROM matches m
        JOIN team_groups g ON g.id = m.group_id
        WHERE g.tournament_id = ?
        ORDER BY g.position ASC, m.match_order ASC`, tournamentID)
	return matches, err
}

func (s *MatchStore) CountOpenGroupMatches(ctx context.Context, tournamentID uuid.UUID) (int, error) {
	return countOpenGroupMatches(ctx, s.db, tournamentID)
}

func (s *MatchStore) CountOpenGroupMatchesTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) (int, error) {
	return countOpenGroupMatches(ctx, tx, tournamentID)
}

func countOpenGroupMatches(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM matches m
        JOIN team_groups g ON g.id = m.group_id
        WHERE g.tournament_id = ? AND m.done = 0`, tournamentID)
	return n, err
}

// CompleteMatch writes the final score. A match that is already done is left untouched
// and reported as sql.ErrNoRows.
func (s *MatchStore) CompleteMatch(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, score1, score2 int) error {
	res, err := tx.ExecContext(ctx, "UPDATE matches SET score_team1 = ?, score_team2 = ?, done = 1 WHERE id = ? AND done = 0", score1, score2, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *MatchStore) CreateRounds(ctx context.Context, tx *sqlx.Tx, rounds []bracket.EliminationRound) error {
	if len(rounds) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO elimination_rounds (id, tournament_id, name, sequence)
		VALUES (:id, :tournament_id, :name, :sequence)`, rounds)
	return err
}

// GetRounds returns the bracket's rounds from the outermost round to the Final.
func (s *MatchStore) GetRounds(ctx context.Context, tournamentID uuid.UUID) ([]bracket.EliminationRound, error) {
	return getRounds(ctx, s.db, tournamentID)
}

func (s *MatchStore) GetRoundsTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) ([]bracket.EliminationRound, error) {
	return getRounds(ctx, tx, tournamentID)
}

func getRounds(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.EliminationRound, error) {
	var rounds []bracket.EliminationRound
	err := sqlx.SelectContext(ctx, q, &rounds, "SELECT "+roundColumns+" FROM elimination_rounds WHERE tournament_id = ? ORDER BY sequence ASC", tournamentID)
	return rounds, err
}

func (s *MatchStore) GetRoundTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.EliminationRound, error) {
	var round bracket.EliminationRound
	if err := tx.GetContext(ctx, &round, "SELECT "+roundColumns+" FROM elimination_rounds WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &round, nil
}

func (s *MatchStore) CreateEliminationMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.EliminationMatch) error {
	if len(matches) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO elimination_matches (id, round_id, match_order, team1_id, team2_id, done)
		VALUES (:id, :round_id, :match_order, :team1_id, :team2_id, :done)`, matches)
	return err
}

func (s *MatchStore) GetEliminationMatch(ctx context.Context, id uuid.UUID) (*bracket.EliminationMatch, error) {
	return getEliminationMatch(ctx, s.db, id)
}

func (s *MatchStore) GetEliminationMatchTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.EliminationMatch, error) {
	return getEliminationMatch(ctx, tx, id)
}

func getEliminationMatch(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.EliminationMatch, error) {
	var match bracket.EliminationMatch
	if err := sqlx.GetContext(ctx, q, &match, "SELECT "+elimMatchColumns+" FROM elimination_matches WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *MatchStore) GetRoundMatches(ctx context.Context, roundID uuid.UUID) ([]bracket.EliminationMatch, error) {
	return getRoundMatches(ctx, s.db, roundID)
}

func (s *MatchStore) GetRoundMatchesTx(ctx context.Context, tx *sqlx.Tx, roundID uuid.UUID) ([]bracket.EliminationMatch, error) {
	return getRoundMatches(ctx, tx, roundID)
}

func getRoundMatches(ctx context.Context, q sqlx.QueryerContext, roundID uuid.UUID) ([]bracket.EliminationMatch, error) {
	var matches []bracket.EliminationMatch
	err := sqlx.SelectContext(ctx, q, &matches, "SELECT "+elimMatchColumns+" FROM elimination_matches WHERE round_id = ? ORDER BY match_order ASC", roundID)
	return matches, err
}

func (s *MatchStore) CompleteEliminationMatch(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, score1, score2 int) error {
	res, err := tx.ExecContext(ctx, "UPDATE elimination_matches SET score_team1 = ?, score_team2 = ?, done = 1 WHERE id = ? AND done = 0", score1, score2, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// GetTeamMatches returns every group match the team plays in.
func (s *MatchStore) GetTeamMatches(ctx context.Context, teamID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches, `SELECT `+matchColumns+` FROM matches
        WHERE team1_id = ? OR team2_id = ? ORDER BY match_order ASC`, teamID, teamID)
	return matches, err
}

func (s *MatchStore) GetTeamEliminationMatches(ctx context.Context, teamID uuid.UUID) ([]bracket.EliminationMatch, error) {
	var matches []bracket.EliminationMatch
	err := s.db.SelectContext(ctx, &matches, `SELECT `+qualifiedElimMatchColumns+` FROM elimination_matches em
        JOIN elimination_rounds r ON r.id = em.round_id
        WHERE em.team1_id = ? OR em.team2_id = ?
        ORDER BY r.sequence ASC, em.match_order ASC`, teamID, teamID)
	return matches, err
}

// GetPendingResultTx returns the live submission for a match, or nil if there is none.
func (s *MatchStore) GetPendingResultTx(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID) (*bracket.MatchResult, error) {
	var result bracket.MatchResult
	err := tx.GetContext(ctx, &result, "SELECT "+resultColumns+" FROM match_results WHERE match_id = ?", matchID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *MatchStore) CreateResult(ctx context.Context, tx *sqlx.Tx, result *bracket.MatchResult) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO match_results (id, match_id, stage, creator_team_id, team1_cups, team2_cups, winner_id)
		VALUES (:id, :match_id, :stage, :creator_team_id, :team1_cups, :team2_cups, :winner_id)`, result)
	return err
}

func (s *MatchStore) DeleteResult(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM match_results WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}
