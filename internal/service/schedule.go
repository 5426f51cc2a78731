package service

import (
	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/google/uuid"
)

// Index pairs into a group's four teams. Every team plays three times and no
// team plays more than two matches in a row.
var groupFixtures = [6][2]int{
	{0, 1},
	{2, 3},
	{0, 2},
	{1, 3},
	{0, 3},
	{1, 2},
}

// GroupFixtures returns the round-robin pairings for a group in play order.
// ok is false unless exactly bracket.GroupSize teams are given.
func GroupFixtures(teams []uuid.UUID) (pairs [][2]uuid.UUID, ok bool) {
	if len(teams) != bracket.GroupSize {
		return nil, false
	}
	pairs = make([][2]uuid.UUID, 0, len(groupFixtures))
	for _, f := range groupFixtures {
		pairs = append(pairs, [2]uuid.UUID{teams[f[0]], teams[f[1]]})
	}
	return pairs, true
}

func newGroupMatches(groupID uuid.UUID, teams []uuid.UUID) ([]bracket.Match, bool) {
	pairs, ok := GroupFixtures(teams)
	if !ok {
		return nil, false
	}
	matches := make([]bracket.Match, 0, len(pairs))
	for i, p := range pairs {
		matches = append(matches, bracket.Match{
			ID:         uuid.New(),
			GroupID:    groupID,
			MatchOrder: i,
			Team1ID:    p[0],
			Team2ID:    p[1],
		})
	}
	return matches, true
}
