package bracket

import (
	"time"

	"github.com/google/uuid"
)

type Team struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	TournamentID uuid.UUID  `db:"tournament_id" json:"tournamentId"`
	GroupID      *uuid.UUID `db:"group_id" json:"groupId,omitempty"`
	Name         string     `db:"name" json:"name"`
	Player1ID    uuid.UUID  `db:"player1_id" json:"player1Id"`
	Player2ID    uuid.UUID  `db:"player2_id" json:"player2Id"`
	CupsWon      int        `db:"cups_won" json:"cupsWon"`
	CupsConceded int        `db:"cups_conceded" json:"cupsConceded"`
	Points       int        `db:"points" json:"points"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
}

func (t *Team) CupDifference() int {
	return t.CupsWon - t.CupsConceded
}

func (t *Team) HasPlayer(userID uuid.UUID) bool {
	return t.Player1ID == userID || t.Player2ID == userID
}

type Group struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TournamentID uuid.UUID `db:"tournament_id" json:"tournamentId"`
	Name         string    `db:"name" json:"name"`
	Position     int       `db:"position" json:"position"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// GroupName returns "Group A" for position 0, "Group B" for 1 and so on.
func GroupName(position int) string {
	return "Group " + string(rune('A'+position))
}

// MaxGroups is the number of single letter group names available.
const MaxGroups = 26
