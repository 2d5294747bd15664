// Package guard decides, per navigation, whether the client may enter a
// route or must be redirected.
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Requirement is a route's authentication requirement. The zero value means
// the route did not say.
type Requirement int

const (
	Unspecified Requirement = iota
	Required
	Optional
)

type RouteMeta struct {
	RequiresAuth  Requirement
	RequiresAdmin bool
}

const (
	LoginPath    = "/"
	RegisterPath = "/register"
	HomePath     = "/homepage"
)

// DefaultRoutes returns the application's route table.
func DefaultRoutes() map[string]RouteMeta {
	return map[string]RouteMeta{
		LoginPath:           {},
		RegisterPath:        {},
		HomePath:            {RequiresAuth: Required},
		"/mapsearch":        {RequiresAuth: Required},
		"/cartview":         {RequiresAuth: Required},
		"/messageview":      {RequiresAuth: Required},
		"/profileview":      {RequiresAuth: Required},
		"/notificationview": {RequiresAuth: Required},
		"/register-success": {},
		"/admin-dashboard":  {RequiresAuth: Required, RequiresAdmin: true},
		"/shop-build":       {RequiresAuth: Required},
	}
}

type Outcome int

const (
	Checking Outcome = iota
	Allow
	DenyToLogin
	DenyToHome
)

func (o Outcome) String() string {
	switch o {
	case Checking:
		return "checking"
	case Allow:
		return "allow"
	case DenyToLogin:
		return "deny-to-login"
	case DenyToHome:
		return "deny-to-home"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result is the decision for one navigation. Redirect is set for denials.
type Result struct {
	Outcome  Outcome
	Redirect string
}

func allow() Result         { return Result{Outcome: Allow} }
func toLogin() Result       { return Result{Outcome: DenyToLogin, Redirect: LoginPath} }
func toHome() Result        { return Result{Outcome: DenyToHome, Redirect: HomePath} }
func isEntry(p string) bool { return p == LoginPath || p == RegisterPath }

// Sessions is the part of the session store the guard reads.
type Sessions interface {
	Hydrate(ctx context.Context) (bool, error)
	IsAuthenticated() bool
	IsAdmin() bool
}

type Guard struct {
	sessions Sessions
	routes   map[string]RouteMeta
	logger   *slog.Logger

	hydrateOnce sync.Once
}

// New builds a guard over routes. The table is copied and never changes.
func New(sessions Sessions, routes map[string]RouteMeta, logger *slog.Logger) *Guard {
	table := make(map[string]RouteMeta, len(routes))
	for p, m := range routes {
		table[normalize(p)] = m
	}
	return &Guard{sessions: sessions, routes: table, logger: logger}
}

// Evaluate decides whether path may be entered. The first call waits for the
// session store to hydrate. Evaluate never fails: anything unexpected denies
// to the login route.
func (g *Guard) Evaluate(ctx context.Context, path string) (res Result) {
	path = normalize(path)
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("route guard panic", "path", path, "panic", r)
			res = toLogin()
		}
	}()

	g.hydrateOnce.Do(func() {
		if _, err := g.sessions.Hydrate(ctx); err != nil {
			g.logger.Warn("session hydrate failed", "error", err)
		}
	})
	if err := ctx.Err(); err != nil {
		g.logger.Warn("navigation abandoned", "path", path, "error", err)
		return toLogin()
	}

	res = g.decide(path)
	g.logger.Debug("route decision", "path", path, "outcome", res.Outcome.String())
	return res
}

func (g *Guard) decide(path string) Result {
	meta := g.routes[path]
	if meta.RequiresAuth == Optional {
		return allow()
	}

	authed := g.sessions.IsAuthenticated()
	if authed && isEntry(path) {
		return toHome()
	}
	if !authed && meta.RequiresAuth == Required {
		return toLogin()
	}
	if meta.RequiresAdmin && !g.sessions.IsAdmin() {
		return toHome()
	}
	return allow()
}

func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return LoginPath
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return LoginPath
		}
	}
	return path
}
