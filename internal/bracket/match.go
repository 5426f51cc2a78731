package bracket

import (
	"time"

	"github.com/google/uuid"
)

// Match is a group stage fixture.
type Match struct {
	ID         uuid.UUID `db:"id" json:"id"`
	GroupID    uuid.UUID `db:"group_id" json:"groupId"`
	MatchOrder int       `db:"match_order" json:"matchOrder"`
	Team1ID    uuid.UUID `db:"team1_id" json:"team1Id"`
	Team2ID    uuid.UUID `db:"team2_id" json:"team2Id"`
	ScoreTeam1 *int      `db:"score_team1" json:"scoreTeam1"`
	ScoreTeam2 *int      `db:"score_team2" json:"scoreTeam2"`
	Done       bool      `db:"done" json:"done"`
}

// EliminationRound is one tier of the knockout bracket. Sequence 0 is the outermost
// round, the Final carries the highest sequence.
type EliminationRound struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TournamentID uuid.UUID `db:"tournament_id" json:"tournamentId"`
	Name         string    `db:"name" json:"name"`
	Sequence     int       `db:"sequence" json:"sequence"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type EliminationMatch struct {
	ID         uuid.UUID `db:"id" json:"id"`
	RoundID    uuid.UUID `db:"round_id" json:"roundId"`
	MatchOrder int       `db:"match_order" json:"matchOrder"`
	Team1ID    uuid.UUID `db:"team1_id" json:"team1Id"`
	Team2ID    uuid.UUID `db:"team2_id" json:"team2Id"`
	ScoreTeam1 *int      `db:"score_team1" json:"scoreTeam1"`
	ScoreTeam2 *int      `db:"score_team2" json:"scoreTeam2"`
	Done       bool      `db:"done" json:"done"`
}

// Winner is only meaningful once the match is done.
func (m *EliminationMatch) Winner() (uuid.UUID, bool) {
	if !m.Done || m.ScoreTeam1 == nil || m.ScoreTeam2 == nil {
		return uuid.Nil, false
	}
	if *m.ScoreTeam1 > *m.ScoreTeam2 {
		return m.Team1ID, true
	}
	return m.Team2ID, true
}

type Stage string

const (
	StageGroup       Stage = "group"
	StageElimination Stage = "elimination"
)

// MatchResult is a pending submission waiting for the opponent's confirmation.
type MatchResult struct {
	ID            uuid.UUID `db:"id" json:"id"`
	MatchID       uuid.UUID `db:"match_id" json:"matchId"`
	Stage         Stage     `db:"stage" json:"stage"`
	CreatorTeamID uuid.UUID `db:"creator_team_id" json:"creatorTeamId"`
	Team1Cups     int       `db:"team1_cups" json:"team1Cups"`
	Team2Cups     int       `db:"team2_cups" json:"team2Cups"`
	WinnerID      uuid.UUID `db:"winner_id" json:"winnerId"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Agrees reports whether two submissions describe the same outcome.
func (r *MatchResult) Agrees(other *MatchResult) bool {
	return r.Team1Cups == other.Team1Cups &&
		r.Team2Cups == other.Team2Cups &&
		r.WinnerID == other.WinnerID
}
