package service

import (
	"context"

	"github.com/JoshiWorld/bierpongv2/internal/bracket"
	"github.com/JoshiWorld/bierpongv2/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// reader holds the read-only queries shared by the tournament and bracket services.
type reader struct {
	tournaments *store.TournamentStore
	matches     *store.MatchStore
}

type RoundMatches struct {
	Round   bracket.EliminationRound   `json:"round"`
	Matches []bracket.EliminationMatch `json:"matches"`
}

type TeamRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// RunningMatch is the next undecided match of a group or elimination round.
type RunningMatch struct {
	MatchID uuid.UUID     `json:"matchId"`
	Stage   bracket.Stage `json:"stage"`
	Label   string        `json:"label"`
	Team1   TeamRef       `json:"team1"`
	Team2   TeamRef       `json:"team2"`
}

type Overview struct {
	Tournament *bracket.Tournament `json:"tournament"`
	Teams      []bracket.Team      `json:"teams"`
	Standings  []GroupStanding     `json:"standings"`
	Bracket    []RoundMatches      `json:"bracket"`
	Running    []RunningMatch      `json:"running"`
}

func (r reader) tournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	t, err := r.tournaments.GetTournament(ctx, id)
	if err != nil {
		return nil, storeErr(err, ErrTournamentNotFound, id)
	}
	return t, nil
}

func (r reader) groupStandings(ctx context.Context, tournamentID uuid.UUID) ([]GroupStanding, error) {
	groups, err := r.tournaments.GetGroups(ctx, tournamentID)
	if err != nil {
		return nil, persistenceErr("load groups", err)
	}

	standings := make([]GroupStanding, 0, len(groups))
	for _, g := range groups {
		teams, err := r.tournaments.GetGroupTeams(ctx, g.ID)
		if err != nil {
			return nil, persistenceErr("load group teams", err)
		}
		standings = append(standings, GroupStanding{Group: g, Teams: RankTeams(teams)})
	}
	return standings, nil
}

func (r reader) bracketRounds(ctx context.Context, tournamentID uuid.UUID) ([]RoundMatches, error) {
	rounds, err := r.matches.GetRounds(ctx, tournamentID)
	if err != nil {
		return nil, persistenceErr("load rounds", err)
	}

	out := make([]RoundMatches, 0, len(rounds))
	for _, round := range rounds {
		matches, err := r.matches.GetRoundMatches(ctx, round.ID)
		if err != nil {
			return nil, persistenceErr("load round matches", err)
		}
		if matches == nil {
			matches = []bracket.EliminationMatch{}
		}
		out = append(out, RoundMatches{Round: round, Matches: matches})
	}
	return out, nil
}

// runningMatches lists the first undecided match of every group and every
// elimination round, groups first.
func (r reader) runningMatches(ctx context.Context, tournamentID uuid.UUID) ([]RunningMatch, error) {
	teams, err := r.tournaments.GetTeams(ctx, tournamentID)
	if err != nil {
		return nil, persistenceErr("load teams", err)
	}
	names := make(map[uuid.UUID]string, len(teams))
	for _, t := range teams {
		names[t.ID] = t.Name
	}
	ref := func(id uuid.UUID) TeamRef { return TeamRef{ID: id, Name: names[id]} }

	groups, err := r.tournaments.GetGroups(ctx, tournamentID)
	if err != nil {
		return nil, persistenceErr("load groups", err)
	}
	groupNames := make(map[uuid.UUID]string, len(groups))
	for _, g := range groups {
		groupNames[g.ID] = g.Name
	}

	groupMatches, err := r.matches.GetTournamentMatches(ctx, tournamentID)
	if err != nil {
		return nil, persistenceErr("load group matches", err)
	}

	running := []RunningMatch{}
	seen := make(map[uuid.UUID]bool)
	for _, m := range groupMatches {
		if m.Done || seen[m.GroupID] {
			continue
		}
		seen[m.GroupID] = true
		running = append(running, RunningMatch{
			MatchID: m.ID,
			Stage:   bracket.StageGroup,
			Label:   groupNames[m.GroupID],
			Team1:   ref(m.Team1ID),
			Team2:   ref(m.Team2ID),
		})
	}

	rounds, err := r.bracketRounds(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	for _, rm := range rounds {
		for _, m := range rm.Matches {
			if m.Done {
				continue
			}
			running = append(running, RunningMatch{
				MatchID: m.ID,
				Stage:   bracket.StageElimination,
				Label:   rm.Round.Name,
				Team1:   ref(m.Team1ID),
				Team2:   ref(m.Team2ID),
			})
			break
		}
	}
	return running, nil
}

func (r reader) overview(ctx context.Context, tournamentID uuid.UUID) (*Overview, error) {
	t, err := r.tournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	ov := &Overview{Tournament: t}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		teams, err := r.tournaments.GetTeams(gctx, tournamentID)
		if err != nil {
			return persistenceErr("load teams", err)
		}
		ov.Teams = teams
		return nil
	})
	g.Go(func() error {
		standings, err := r.groupStandings(gctx, tournamentID)
		ov.Standings = standings
		return err
	})
	g.Go(func() error {
		rounds, err := r.bracketRounds(gctx, tournamentID)
		ov.Bracket = rounds
		return err
	})
	g.Go(func() error {
		running, err := r.runningMatches(gctx, tournamentID)
		ov.Running = running
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ov, nil
}
