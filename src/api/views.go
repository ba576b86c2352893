package api

import (
	"net/http"
	"time"

	"stockdesk/src/api/handlers"
	"stockdesk/src/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

type Server struct {
	Router  *chi.Mux
	Handler *handlers.Handler
}

func NewServer(handler *handlers.Handler, cfg *config.Config) *Server {
	server := &Server{
		Router:  chi.NewRouter(),
		Handler: handler,
	}
	handler.AllowedOrigins = cfg.Service.AllowedOrigins

	server.Router.Use(middleware.RequestID)
	server.Router.Use(handler.RequestLogger)
	server.Router.Use(middleware.RealIP)
	server.Router.Use(middleware.Recoverer)
	server.Router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Service.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler)

	server.InitRoutes()
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) InitRoutes() {
	s.Router.Get("/alive", handlers.Healthcheck)
	s.Router.Get("/session", s.Handler.GetSession)
	s.Router.Get("/ws", s.Handler.Watch)

	s.Router.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.Handler.Login)
		r.Post("/register", s.Handler.Register)
		r.Post("/logout", s.Handler.Logout)
	})

	s.Router.Route("/pages", func(r chi.Router) {
		r.Post("/users", s.Handler.CreateUser)
		r.Post("/users/refresh", s.Handler.RefreshUsers)
		r.Delete("/users/{id}", s.Handler.DeleteUser)

		r.Get("/assets", s.Handler.GetAssets)
		r.Post("/assets", s.Handler.CreateAsset)
		r.Delete("/assets/{id}", s.Handler.DeleteAsset)
		r.Get("/assets/{id}/history", s.Handler.GetAssetHistory)
		r.Get("/assets/{id}/chart", s.Handler.GetAssetChart)

		r.Post("/wallet/trade", s.Handler.Trade)
		r.Post("/wallet/funds", s.Handler.AddFunds)
		r.Get("/wallet/preview", s.Handler.PreviewTrade)

		r.Get("/{name}", s.Handler.OpenPage)
	})
}

func NewHTTPServer(server *Server, port string) *http.Server {
	httpServer := &http.Server{
		Addr:         ":" + port,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Handler:      server,
	}
	return httpServer
}
