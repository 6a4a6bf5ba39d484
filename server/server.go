package server

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/ticketdesk/ticketdesk/accesslog"
	"github.com/ticketdesk/ticketdesk/auth"
	"github.com/ticketdesk/ticketdesk/internal/config"
	"github.com/ticketdesk/ticketdesk/token"
)

// Server wires the authentication pipeline onto an http.ServeMux. Routes
// are registered with method patterns; public and protected paths differ
// only in the middleware chained in front of them.
type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	config config.Config
	auth   *auth.Service
	tokens *token.Manager
	logs   accesslog.Store
	log    zerolog.Logger
}

func New(cfg config.Config, authService *auth.Service, tokens *token.Manager, logs accesslog.Store, log zerolog.Logger) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		config: cfg,
		auth:   authService,
		tokens: tokens,
		logs:   logs,
		log:    log,
	}
	s.env = cfg.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		s.log.Info().Str("route", route).Msg("registered")
	}
}
