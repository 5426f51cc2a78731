package views

import (
	"strconv"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/JoshiWorld/bierpongv2/internal/service"
	"github.com/google/uuid"
)

type StandingRow struct {
	Rank         int
	Name         string
	Points       int
	CupsWon      int
	CupsConceded int
	Difference   int
}

type GroupTable struct {
	Name string
	Rows []StandingRow
}

type BracketMatch struct {
	Team1, Team2   string
	Score1, Score2 string
	Done           bool
	Winner         string
}

type BracketColumn struct {
	Name    string
	Matches []BracketMatch
}

type StandingsData struct {
	Title   string
	Status  bracket.TournamentStatus
	Groups  []GroupTable
	Bracket []BracketColumn
}

func PrepareStandingsData(ov *service.Overview) StandingsData {
	names := make(map[uuid.UUID]string, len(ov.Teams))
	for _, t := range ov.Teams {
		names[t.ID] = t.Name
	}

	data := StandingsData{Title: ov.Tournament.Name, Status: ov.Tournament.Status}

	for _, s := range ov.Standings {
		table := GroupTable{Name: s.Group.Name}
		for i, t := range s.Teams {
			table.Rows = append(table.Rows, StandingRow{
				Rank:         i + 1,
				Name:         t.Name,
				Points:       t.Points,
				CupsWon:      t.CupsWon,
				CupsConceded: t.CupsConceded,
				Difference:   t.CupDifference(),
			})
		}
		data.Groups = append(data.Groups, table)
	}

	for _, rm := range ov.Bracket {
		col := BracketColumn{Name: rm.Round.Name}
		for _, m := range rm.Matches {
			bm := BracketMatch{
				Team1:  names[m.Team1ID],
				Team2:  names[m.Team2ID],
				Score1: score(m.ScoreTeam1),
				Score2: score(m.ScoreTeam2),
				Done:   m.Done,
			}
			if winner, ok := m.Winner(); ok {
				bm.Winner = names[winner]
			}
			col.Matches = append(col.Matches, bm)
		}
		data.Bracket = append(data.Bracket, col)
	}
	return data
}

func score(s *int) string {
	if s == nil {
		return "-"
	}
	return strconv.Itoa(*s)
}
