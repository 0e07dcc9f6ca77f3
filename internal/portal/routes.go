package portal

import (
	"github.com/gofiber/fiber/v2"

	"github.com/adworks/ad-portal/internal/domain"
	"github.com/adworks/ad-portal/internal/guard"
)

func (s *Server) registerRoutes() {
	app := s.app
	app.Get("/health/live", s.live)

	app.Get("/", s.home)
	app.Get(guard.LoginRoute, s.loginPage)
	app.Post(guard.LoginRoute, s.login)
	app.Post("/auth/register", s.register)
	app.Post("/auth/logout", s.logout)
	app.Get(guard.AccessDeniedRoute, s.accessDenied)
	app.Get("/api/session", s.currentSession)
	app.Get("/notifications", s.drainNotifications)

	requireAuth := guard.RequireAuth(s.sessions, s.logger)
	app.Get("/profile", requireAuth, s.profile)
	app.Get("/checkout", requireAuth, s.checkout)

	s.area(app, "/admin", domain.RoleAdmin)
	s.area(app, "/manager", domain.RoleAdmin, domain.RoleStaff)
	s.area(app, "/sale", domain.RoleAdmin, domain.RoleSale)
	s.area(app, "/designer", domain.RoleAdmin, domain.RoleDesigner)
}

// area mounts a role-restricted section and everything below it.
func (s *Server) area(app *fiber.App, prefix string, allowed ...domain.Role) {
	group := app.Group(prefix, guard.RequireRole(s.sessions, s.logger, allowed...))
	group.Get("/", s.areaPage(prefix, allowed))
	group.Get("/*", s.areaPage(prefix, allowed))
}
