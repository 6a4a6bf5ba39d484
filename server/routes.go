package server

import "github.com/ticketdesk/ticketdesk/identity"

func (s *Server) initRoutes() {
	// Public auth routes: login and refresh bypass token extraction.
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.BaseMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.BaseMiddleware()...))

	// Protected auth routes.
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.ProtectedMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthMe, ChainMiddleware(s.MeHandler(), s.ProtectedMiddleware()...))

	// Audit trail, manager and above.
	s.RegisterRouteHandler("GET "+RouteAdminAccessLogs,
		ChainMiddleware(s.AccessLogsHandler(), s.ProtectedMiddleware(s.RequireRole(identity.RoleManager))...))
}

// Route path constants
const (
	RouteAuthLogin       = "/auth/login"
	RouteAuthRefresh     = "/auth/refresh"
	RouteAuthLogout      = "/auth/logout"
	RouteAuthMe          = "/auth/me"
	RouteAdminAccessLogs = "/admin/access-logs"
)
