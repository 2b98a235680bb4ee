package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/petanque-connect/server/handlers"
	"github.com/petanque-connect/server/middleware"
)

func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	teamHandler *handlers.TeamHandler,
	notificationHandler *handlers.NotificationHandler,
	userHandler *handlers.UserHandler,
	webSocketHandler *handlers.WebSocketHandler,
	allowedOrigins []string,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/api", func(r chi.Router) {
		r.Route("/teams", func(r chi.Router) {
			// Listing and reads work unauthenticated; a token narrows
			// visibility to include the caller's private teams.
			r.Group(func(r chi.Router) {
				r.Use(auth.OptionalAuthenticate)
				r.Get("/", teamHandler.ListTeams)
				r.Get("/{teamID}", teamHandler.GetTeamByID)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.Authenticate)
				r.Post("/", teamHandler.CreateTeam)
				r.Post("/{teamID}/join-request", teamHandler.RequestToJoin)
				r.Post("/{teamID}/cancel-request", teamHandler.CancelJoinRequest)
				r.Post("/{teamID}/accept", teamHandler.AcceptJoinRequest)
				r.Post("/{teamID}/refuse", teamHandler.RefuseJoinRequest)
				r.Post("/{teamID}/leave", teamHandler.LeaveTeam)
				r.Post("/{teamID}/kick", teamHandler.KickMember)
				r.Post("/{teamID}/validate", teamHandler.ValidateTeam)
				r.Put("/{teamID}", teamHandler.UpdateTeam)
				r.Delete("/{teamID}", teamHandler.DeleteTeam)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(auth.Authenticate)
			r.Get("/", notificationHandler.ListNotifications)
			r.Post("/{notificationID}/read", notificationHandler.MarkRead)
		})

		r.Get("/users/{userID}", userHandler.GetUserByID)
	})

	router.Get("/ws", webSocketHandler.ServeWs)
}
