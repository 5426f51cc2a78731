package bracket

import (
	"time"

	"github.com/google/uuid"
)

type TournamentStatus string

const (
	StatusLobby      TournamentStatus = "LOBBY"
	StatusGroupStage TournamentStatus = "GROUP_STAGE"
	StatusKOStage    TournamentStatus = "KO_STAGE"
	StatusFinished   TournamentStatus = "FINISHED"
)

// Forward transitions only. Going back to LOBBY is the reset operation and is not listed here.
var statusTransitions = map[TournamentStatus]TournamentStatus{
	StatusLobby:      StatusGroupStage,
	StatusGroupStage: StatusKOStage,
	StatusKOStage:    StatusFinished,
}

func (s TournamentStatus) Valid() bool {
	switch s {
	case StatusLobby, StatusGroupStage, StatusKOStage, StatusFinished:
		return true
	}
	return false
}

// Next returns the status that follows s, or false if s is terminal.
func (s TournamentStatus) Next() (TournamentStatus, bool) {
	next, ok := statusTransitions[s]
	return next, ok
}

func (s TournamentStatus) CanTransitionTo(to TournamentStatus) bool {
	next, ok := s.Next()
	return ok && next == to
}

type TournamentSize string

const (
	SizeSmall   TournamentSize = "SMALL"
	SizeMedium  TournamentSize = "MEDIUM"
	SizeBig     TournamentSize = "BIG"
	SizeExtreme TournamentSize = "EXTREME"
)

const GroupSize = 4

const (
	RoundFinal        = "Final"
	RoundSemifinal    = "Semifinal"
	RoundQuarterfinal = "Quarterfinal"
	RoundOf16         = "Round of 16"
)

type sizeSpec struct {
	capacity int
	rounds   []string // outermost first
}

var sizeTable = map[TournamentSize]sizeSpec{
	SizeSmall:   {capacity: 4, rounds: []string{RoundFinal}},
	SizeMedium:  {capacity: 8, rounds: []string{RoundSemifinal, RoundFinal}},
	SizeBig:     {capacity: 16, rounds: []string{RoundQuarterfinal, RoundSemifinal, RoundFinal}},
	SizeExtreme: {capacity: 32, rounds: []string{RoundOf16, RoundQuarterfinal, RoundSemifinal, RoundFinal}},
}

func ParseSize(s string) (TournamentSize, bool) {
	size := TournamentSize(s)
	_, ok := sizeTable[size]
	return size, ok
}

func (s TournamentSize) Valid() bool {
	_, ok := sizeTable[s]
	return ok
}

// Capacity is the number of teams the size holds. It is also the minimum needed to start.
func (s TournamentSize) Capacity() int {
	return sizeTable[s].capacity
}

func (s TournamentSize) GroupCount() int {
	return s.Capacity() / GroupSize
}

// RoundNames lists the elimination rounds for the size, outermost round first.
func (s TournamentSize) RoundNames() []string {
	rounds := sizeTable[s].rounds
	out := make([]string, len(rounds))
	copy(out, rounds)
	return out
}

type Tournament struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	AdminID   uuid.UUID        `db:"admin_id" json:"adminId"`
	Name      string           `db:"name" json:"name"`
	Code      string           `db:"code" json:"code"`
	Size      TournamentSize   `db:"size" json:"size"`
	Status    TournamentStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}
