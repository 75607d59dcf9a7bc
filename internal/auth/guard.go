package auth

import (
	"context"
	"strings"

	"reuse-console/internal/model"
	"reuse-console/internal/navigation"
)

type Action int

const (
	Wait Action = iota // session not restored yet; render nothing and decide later
	Allow
	Redirect
)

type Decision struct {
	Action Action
	Target string
}

var publicPaths = []string{"/login", "/register", "/check-email"}

// IsPublicPath reports routes reachable without a session.
func IsPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return strings.HasPrefix(path, "/verify-email")
}

// Guard decides whether a route may render for the current session.
type Guard struct {
	sessions *Manager
}

func NewGuard(sessions *Manager) *Guard {
	return &Guard{sessions: sessions}
}

// Decide never redirects before the session has been rehydrated, so a signed-in
// user is not bounced to the login page while storage is still being read.
func (g *Guard) Decide(ctx context.Context, target string) Decision {
	if !g.sessions.Hydrated() {
		return Decision{Action: Wait}
	}
	path := navigation.Path(target)
	if IsPublicPath(path) {
		return Decision{Action: Allow}
	}
	if g.sessions.expire(ctx, false) {
		return Decision{Action: Redirect, Target: navigation.LoginRedirect(target)}
	}

	s := g.sessions.Snapshot()
	if !s.IsAuthenticated {
		return Decision{Action: Redirect, Target: navigation.LoginRedirect(target)}
	}
	if strings.HasPrefix(path, "/admin") && (s.User == nil || s.User.Role != model.RoleAdmin) {
		return Decision{Action: Redirect, Target: "/"}
	}
	return Decision{Action: Allow}
}
