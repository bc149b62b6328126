package auth

import "labreserve/internal/model"

var allowedRoutes = map[model.Role][]string{
	model.RoleAdmin:   {"*"},
	model.RoleTeacher: {"dashboard", "resources", "bookings", "settings"},
	model.RoleStudent: {"dashboard", "resources", "settings"},
}

// AllowedRoutes lists the front-end sections a role may open. Unknown roles
// get none.
func AllowedRoutes(role model.Role) []string {
	routes := allowedRoutes[role]
	out := make([]string, len(routes))
	copy(out, routes)
	return out
}

// RouteAllowed reports whether role may open route. Admins may open any.
func RouteAllowed(role model.Role, route string) bool {
	if role == model.RoleAdmin {
		return true
	}
	for _, r := range allowedRoutes[role] {
		if r == "*" || r == route {
			return true
		}
	}
	return false
}
