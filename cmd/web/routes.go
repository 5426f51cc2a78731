package main

import (
	"net/http"

	"github.com/JoshiWorld/bierpongv2/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(app.sessions.LoadAndSave)
	r.Use(app.auth.Authenticate)

	fileServer := http.FileServer(http.Dir("./static"))
	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	r.Get("/auth/{provider}", app.beginAuth)
	r.Get("/auth/{provider}/callback", app.authCallback)
	r.Post("/auth/guest", app.guestLogin)
	r.Post("/auth/admin", app.adminLogin)
	r.With(middleware.RequireAuth).Post("/auth/token", app.issueToken)
	r.Post("/logout", app.logout)

	r.Get("/ws/tournaments/{id}", app.tournamentSocket)
	r.Get("/tournaments/{id}/standings", app.standingsPage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tournaments/{id}", app.getOverview)
		r.Get("/tournaments/{id}/standings", app.groupStandings)
		r.Get("/tournaments/{id}/running", app.runningMatches)
		r.Get("/tournaments/{id}/players", app.listPlayers)
		r.Get("/tournaments/{id}/open-matches", app.openGroupMatches)
		r.Get("/tournaments/{id}/bracket", app.getBracket)
		r.Get("/teams/{id}/matches", app.teamMatches)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.Get("/tournaments", app.listTournaments)
			r.Post("/tournaments", app.createTournament)
			r.Post("/tournaments/join", app.joinTournament)
			r.Get("/tournaments/available-players", app.listAvailablePlayers)
			r.Get("/tournaments/{id}/team", app.currentTeam)
			r.Post("/tournaments/{id}/start", app.startTournament)
			r.Post("/tournaments/{id}/bracket", app.startBracket)
			r.Post("/tournaments/{id}/bracket/advance", app.advanceBracket)
			r.Post("/tournaments/{id}/reset", app.resetTournament)
			r.Delete("/teams/{id}", app.deleteTeam)
			r.Post("/matches/{id}/result", app.submitGroupResult)
			r.Post("/elimination-matches/{id}/result", app.submitEliminationResult)
		})
	})

	return r
}
