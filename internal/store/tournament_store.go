package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	tournamentColumns = "id, admin_id, name, code, size, status, created_at"
	teamColumns       = "id, tournament_id, group_id, name, player1_id, player2_id, cups_won, cups_conceded, points, created_at"
	groupColumns      = "id, tournament_id, name, position, created_at"
)

type TournamentStore struct {
	db *sqlx.DB
}

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

func (s *TournamentStore) CreateTournament(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO tournaments (id, admin_id, name, code, size, status)
        VALUES (:id, :admin_id, :name, :code, :size, :status)`, tournament)
	return err
}

func (s *TournamentStore) GetTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	return getTournament(ctx, s.db, "id", id)
}

func (s *TournamentStore) GetTournamentTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Tournament, error) {
	return getTournament(ctx, tx, "id", id)
}

func (s *TournamentStore) GetTournamentByCode(ctx context.Context, code string) (*bracket.Tournament, error) {
	return getTournament(ctx, s.db, "code", code)
}

func (s *TournamentStore) GetTournamentByCodeTx(ctx context.Context, tx *sqlx.Tx, code string) (*bracket.Tournament, error) {
	return getTournament(ctx, tx, "code", code)
}

func getTournament(ctx context.Context, q sqlx.QueryerContext, column string, value any) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	err := sqlx.GetContext(ctx, q, &tournament, "SELECT "+tournamentColumns+" FROM tournaments WHERE "+column+" = ?", value)
	if err != nil {
		return nil, err
	}
	return &tournament, nil
}

// GetTournamentsByUserID returns tournaments the user administrates or plays in, newest first.
func (s *TournamentStore) GetTournamentsByUserID(ctx context.Context, userID uuid.UUID) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := s.db.SelectContext(ctx, &tournaments, `
        SELECT `+tournamentColumns+` FROM tournaments
        WHERE admin_id = ?
        OR id IN (SELECT tournament_id FROM teams WHERE player1_id = ? OR player2_id = ?)
        ORDER BY created_at DESC, rowid DESC`, userID, userID, userID)
	return tournaments, err
}

// CompareAndSetStatus moves the tournament from one status to another and reports
// whether this call performed the transition.
func (s *TournamentStore) CompareAndSetStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, from, to bracket.TournamentStatus) (bool, error) {
	res, err := tx.ExecContext(ctx, "UPDATE tournaments SET status = ? WHERE id = ? AND status = ?", to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *TournamentStore) CreateTeam(ctx context.Context, tx *sqlx.Tx, team *bracket.Team) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO teams (id, tournament_id, name, player1_id, player2_id)
        VALUES (:id, :tournament_id, :name, :player1_id, :player2_id)`, team)
	return err
}

func (s *TournamentStore) GetTeam(ctx context.Context, id uuid.UUID) (*bracket.Team, error) {
	return getTeam(ctx, s.db, id)
}

func (s *TournamentStore) GetTeamTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Team, error) {
	return getTeam(ctx, tx, id)
}

func getTeam(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID) (*bracket.Team, error) {
	var team bracket.Team
	if err := sqlx.GetContext(ctx, q, &team, "SELECT "+teamColumns+" FROM teams WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &team, nil
}

// GetTeams returns the tournament's teams in registration order.
func (s *TournamentStore) GetTeams(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Team, error) {
	return getTeams(ctx, s.db, tournamentID)
}

func (s *TournamentStore) GetTeamsTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) ([]bracket.Team, error) {
	return getTeams(ctx, tx, tournamentID)
}

func getTeams(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.Team, error) {
	var teams []bracket.Team
	err := sqlx.SelectContext(ctx, q, &teams, "SELECT "+teamColumns+" FROM teams WHERE tournament_id = ? ORDER BY rowid ASC", tournamentID)
	return teams, err
}

func (s *TournamentStore) GetGroupTeams(ctx context.Context, groupID uuid.UUID) ([]bracket.Team, error) {
	var teams []bracket.Team
	err := s.db.SelectContext(ctx, &teams, "SELECT "+teamColumns+" FROM teams WHERE group_id = ? ORDER BY rowid ASC", groupID)
	return teams, err
}

// FindTeamForPlayer returns the player's team in the tournament, or nil if they have none.
func (s *TournamentStore) FindTeamForPlayer(ctx context.Context, tournamentID, userID uuid.UUID) (*bracket.Team, error) {
	var team bracket.Team
	err := s.db.GetContext(ctx, &team, `SELECT `+teamColumns+` FROM teams
        WHERE tournament_id = ? AND (player1_id = ? OR player2_id = ?) LIMIT 1`, tournamentID, userID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func (s *TournamentStore) DeleteTeam(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM teams WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *TournamentStore) CreateGroup(ctx context.Context, tx *sqlx.Tx, group *bracket.Group) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO team_groups (id, tournament_id, name, position)
        VALUES (:id, :tournament_id, :name, :position)`, group)
	return err
}

func (s *TournamentStore) GetGroups(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Group, error) {
	return getGroups(ctx, s.db, tournamentID)
}

func (s *TournamentStore) GetGroupsTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) ([]bracket.Group, error) {
	return getGroups(ctx, tx, tournamentID)
}

func getGroups(ctx context.Context, q sqlx.QueryerContext, tournamentID uuid.UUID) ([]bracket.Group, error) {
	var groups []bracket.Group
	err := sqlx.SelectContext(ctx, q, &groups, "SELECT "+groupColumns+" FROM team_groups WHERE tournament_id = ? ORDER BY position ASC", tournamentID)
	return groups, err
}

func (s *TournamentStore) AssignGroup(ctx context.Context, tx *sqlx.Tx, teamID, groupID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, "UPDATE teams SET group_id = ? WHERE id = ?", groupID, teamID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// AddTallies increments a team's running totals in place.
func (s *TournamentStore) AddTallies(ctx context.Context, tx *sqlx.Tx, teamID uuid.UUID, points, cupsWon, cupsConceded int) error {
	res, err := tx.ExecContext(ctx, `UPDATE teams SET
        points = points + ?,
        cups_won = cups_won + ?,
        cups_conceded = cups_conceded + ?
        WHERE id = ?`, points, cupsWon, cupsConceded, teamID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// ResetTournament removes everything derived from starting the tournament. Groups cascade to
// their matches and unset the teams' group reference, rounds cascade to elimination matches.
func (s *TournamentStore) ResetTournament(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	statements := []string{
		"DELETE FROM match_results WHERE creator_team_id IN (SELECT id FROM teams WHERE tournament_id = ?)",
		"DELETE FROM elimination_rounds WHERE tournament_id = ?",
		"DELETE FROM team_groups WHERE tournament_id = ?",
		"UPDATE teams SET group_id = NULL, points = 0, cups_won = 0, cups_conceded = 0 WHERE tournament_id = ?",
		"UPDATE tournaments SET status = 'LOBBY' WHERE id = ?",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("reset tournament %s: %w", id, err)
		}
	}
	return nil
}

type PlayerEntry struct {
	UserID   uuid.UUID `db:"user_id" json:"userId"`
	Name     string    `db:"name" json:"name"`
	TeamName string    `db:"team_name" json:"team"`
}

func (s *TournamentStore) GetPlayers(ctx context.Context, tournamentID uuid.UUID) ([]PlayerEntry, error) {
	var players []PlayerEntry
	err := s.db.SelectContext(ctx, &players, `
        SELECT u.id AS user_id, u.username AS name, t.name AS team_name
        FROM teams t JOIN users u ON u.id = t.player1_id
        WHERE t.tournament_id = ?
        UNION ALL
        SELECT u.id AS user_id, u.username AS name, t.name AS team_name
        FROM teams t JOIN users u ON u.id = t.player2_id
        WHERE t.tournament_id = ?
        ORDER BY team_name, name`, tournamentID, tournamentID)
	return players, err
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
