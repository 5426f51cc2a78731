package main

import (
	"net/http"
	"strings"

	"github.com/JoshiWorld/bierpongv2/internal/httputil"
	"github.com/JoshiWorld/bierpongv2/internal/middleware"
	"github.com/JoshiWorld/bierpongv2/internal/service"
	users "github.com/JoshiWorld/bierpongv2/internal/user"
	"github.com/JoshiWorld/bierpongv2/views"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/markbates/goth/gothic"
)

func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.BadRequest(w, "invalid id", err)
		return uuid.Nil, false
	}
	return id, true
}

type loginResponse struct {
	User  *users.User `json:"user"`
	Token string      `json:"token"`
}

// signIn binds user to the session and answers with a bearer token for API clients.
func (app *application) signIn(w http.ResponseWriter, r *http.Request, user *users.User) {
	if err := app.auth.Login(r.Context(), user); err != nil {
		httputil.InternalServerError(w, "failed to renew session", err)
		return
	}
	token, err := app.auth.IssueToken(user)
	if err != nil {
		httputil.InternalServerError(w, "failed to sign token", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loginResponse{User: user, Token: token})
}

func (app *application) beginAuth(w http.ResponseWriter, r *http.Request) {
	gothic.BeginAuthHandler(w, gothic.GetContextWithProvider(r, chi.URLParam(r, "provider")))
}

func (app *application) authCallback(w http.ResponseWriter, r *http.Request) {
	r = gothic.GetContextWithProvider(r, chi.URLParam(r, "provider"))

	gothUser, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		httputil.BadRequest(w, "authentication failure", err)
		return
	}
	user, err := app.users.FindOrCreateUserByProvider(r.Context(), gothUser)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	app.signIn(w, r, user)
}

func (app *application) guestLogin(w http.ResponseWriter, r *http.Request) {
	user, err := app.users.EnsureGuestUser(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	app.signIn(w, r, user)
}

func (app *application) adminLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := httputil.ReadJSON(w, r, &in); err != nil {
		httputil.BadRequest(w, err.Error(), err)
		return
	}
	user, err := app.users.LoginAdmin(r.Context(), in.Password)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	app.signIn(w, r, user)
}

func (app *application) issueToken(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetAuthenticatedUser(r.Context())
	token, err := app.auth.IssueToken(user)
	if err != nil {
		httputil.InternalServerError(w, "failed to sign token", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loginResponse{User: user, Token: token})
}

func (app *application) logout(w http.ResponseWriter, r *http.Request) {
	if err := app.auth.Logout(r.Context()); err != nil {
		httputil.InternalServerError(w, "failed to destroy session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) tournamentSocket(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if _, err := app.tournaments.GetTournament(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	app.hub.ServeWS(w, r, id.String())
}

func (app *application) standingsPage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	overview, err := app.tournaments.GetOverview(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := views.Render(w, r, http.StatusOK, views.StandingsPage(views.PrepareStandingsData(overview))); err != nil {
		httputil.InternalServerError(w, "failed to render standings page", err)
	}
}

func (app *application) listTournaments(w http.ResponseWriter, r *http.Request) {
	tournaments, err := app.tournaments.ListTournamentsForUser(r.Context(), middleware.GetAuthenticatedUser(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tournaments)
}

func (app *application) createTournament(w http.ResponseWriter, r *http.Request) {
	var in service.CreateTournamentInput
	if err := httputil.ReadJSON(w, r, &in); err != nil {
		httputil.BadRequest(w, err.Error(), err)
		return
	}
	tournament, err := app.tournaments.CreateTournament(r.Context(), middleware.GetAuthenticatedUser(r.Context()), in)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tournament)
}

func (app *application) getOverview(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	overview, err := app.tournaments.GetOverview(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, overview)
}

func (app *application) joinTournament(w http.ResponseWriter, r *http.Request) {
	var in service.JoinInput
	if err := httputil.ReadJSON(w, r, &in); err != nil {
		httputil.BadRequest(w, err.Error(), err)
		return
	}
	team, err := app.tournaments.JoinTournament(r.Context(), middleware.GetAuthenticatedUser(r.Context()), in)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, team)
}

func (app *application) listPlayers(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	players, err := app.tournaments.ListPlayers(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, players)
}

func (app *application) listAvailablePlayers(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		httputil.BadRequest(w, "code is required", nil)
		return
	}
	players, err := app.tournaments.ListAvailablePlayers(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, players)
}

func (app *application) currentTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	team, err := app.tournaments.CurrentTeam(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, team)
}

func (app *application) deleteTeam(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := app.tournaments.DeleteTeam(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) startTournament(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	res, err := app.tournaments.StartTournament(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (app *application) groupStandings(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	standings, err := app.tournaments.GetGroupStandings(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, standings)
}

func (app *application) runningMatches(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	running, err := app.tournaments.RunningMatches(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, running)
}

func (app *application) openGroupMatches(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	open, err := app.tournaments.OpenGroupMatches(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"open": open})
}

func (app *application) getBracket(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	rounds, err := app.brackets.GetBracket(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rounds)
}

func (app *application) startBracket(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in struct {
		Placements []service.GroupPlacement `json:"placements"`
	}
	if err := httputil.ReadJSON(w, r, &in); err != nil {
		httputil.BadRequest(w, err.Error(), err)
		return
	}
	status, err := app.brackets.StartBracket(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id, in.Placements)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (app *application) advanceBracket(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	res, err := app.brackets.AdvanceBracket(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (app *application) resetTournament(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	status, err := app.tournaments.ResetTournament(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": status})
}

func submissionStatus(sub *service.Submission) int {
	if sub.Created {
		return http.StatusCreated
	}
	return http.StatusOK
}

func (app *application) submitGroupResult(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in service.GroupResultInput
	if err := httputil.ReadJSON(w, r, &in); err != nil {
		httputil.BadRequest(w, err.Error(), err)
		return
	}
	sub, err := app.matches.SubmitGroupResult(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id, in)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, submissionStatus(sub), sub)
}

func (app *application) submitEliminationResult(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in service.EliminationResultInput
	if err := httputil.ReadJSON(w, r, &in); err != nil {
		httputil.BadRequest(w, err.Error(), err)
		return
	}
	sub, err := app.matches.SubmitEliminationResult(r.Context(), middleware.GetAuthenticatedUser(r.Context()), id, in)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, submissionStatus(sub), sub)
}

func (app *application) teamMatches(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	matches, err := app.tournaments.MatchesForTeam(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, matches)
}
