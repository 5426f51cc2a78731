package service

import (
	"sort"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
)

// RankTeams orders teams by points, then by cup difference, both descending.
// Teams equal on both keys keep their input order. The input is not modified.
func RankTeams(teams []bracket.Team) []bracket.Team {
	ranked := make([]bracket.Team, len(teams))
	copy(ranked, teams)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Points != ranked[j].Points {
			return ranked[i].Points > ranked[j].Points
		}
		return ranked[i].CupDifference() > ranked[j].CupDifference()
	})
	return ranked
}

type GroupStanding struct {
	Group bracket.Group  `json:"group"`
	Teams []bracket.Team `json:"teams"`
}
