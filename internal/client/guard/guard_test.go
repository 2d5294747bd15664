package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	authed       bool
	admin        bool
	hydrateErr   error
	hydrateCalls atomic.Int32
	panicOn      string
}

func (f *fakeSessions) Hydrate(context.Context) (bool, error) {
	f.hydrateCalls.Add(1)
	if f.panicOn == "hydrate" {
		panic("boom")
	}
	return f.authed, f.hydrateErr
}

func (f *fakeSessions) IsAuthenticated() bool {
	if f.panicOn == "auth" {
		panic("boom")
	}
	return f.authed
}

func (f *fakeSessions) IsAdmin() bool { return f.admin }

func newGuard(s Sessions, routes map[string]RouteMeta) *Guard {
	return New(s, routes, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEvaluate_DefaultRoutes(t *testing.T) {
	tests := []struct {
		name   string
		authed bool
		admin  bool
		path   string
		want   Outcome
	}{
		{"anonymous login page", false, false, "/", Allow},
		{"anonymous register page", false, false, "/register", Allow},
		{"anonymous protected page", false, false, "/homepage", DenyToLogin},
		{"anonymous cart", false, false, "/cartview", DenyToLogin},
		{"anonymous admin page", false, false, "/admin-dashboard", DenyToLogin},
		{"anonymous confirm page", false, false, "/register-success", Allow},
		{"signed in login page", true, false, "/", DenyToHome},
		{"signed in register page", true, false, "/register", DenyToHome},
		{"signed in protected page", true, false, "/messageview", Allow},
		{"signed in confirm page", true, false, "/register-success", Allow},
		{"non-admin admin page", true, false, "/admin-dashboard", DenyToHome},
		{"admin admin page", true, true, "/admin-dashboard", Allow},
		{"unknown path", false, false, "/nowhere", Allow},
		{"query string ignored", false, false, "/homepage?tab=1", DenyToLogin},
		{"trailing slash ignored", true, false, "/register/", DenyToHome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGuard(&fakeSessions{authed: tt.authed, admin: tt.admin}, DefaultRoutes())
			res := g.Evaluate(context.Background(), tt.path)
			require.Equal(t, tt.want, res.Outcome)
		})
	}
}

func TestEvaluate_Redirects(t *testing.T) {
	g := newGuard(&fakeSessions{}, DefaultRoutes())
	require.Equal(t, Result{Outcome: DenyToLogin, Redirect: LoginPath}, g.Evaluate(context.Background(), "/profileview"))

	g = newGuard(&fakeSessions{authed: true}, DefaultRoutes())
	require.Equal(t, Result{Outcome: DenyToHome, Redirect: HomePath}, g.Evaluate(context.Background(), "/"))
	require.Equal(t, Result{Outcome: Allow}, g.Evaluate(context.Background(), "/shop-build"))
}

func TestEvaluate_OptionalAlwaysAllows(t *testing.T) {
	routes := map[string]RouteMeta{
		"/":       {RequiresAuth: Optional},
		"/public": {RequiresAuth: Optional, RequiresAdmin: true},
	}
	for _, authed := range []bool{false, true} {
		g := newGuard(&fakeSessions{authed: authed}, routes)
		require.Equal(t, Allow, g.Evaluate(context.Background(), "/").Outcome)
		require.Equal(t, Allow, g.Evaluate(context.Background(), "/public").Outcome)
	}
}

func TestEvaluate_HydratesOnce(t *testing.T) {
	s := &fakeSessions{authed: true}
	g := newGuard(s, DefaultRoutes())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Evaluate(context.Background(), "/homepage")
		}()
	}
	wg.Wait()
	g.Evaluate(context.Background(), "/cartview")

	require.Equal(t, int32(1), s.hydrateCalls.Load())
}

func TestEvaluate_HydrateErrorStillDecides(t *testing.T) {
	s := &fakeSessions{hydrateErr: errors.New("offline")}
	g := newGuard(s, DefaultRoutes())

	require.Equal(t, DenyToLogin, g.Evaluate(context.Background(), "/homepage").Outcome)
	require.Equal(t, Allow, g.Evaluate(context.Background(), "/").Outcome)
}

func TestEvaluate_FailsClosed(t *testing.T) {
	t.Run("panic during hydrate", func(t *testing.T) {
		g := newGuard(&fakeSessions{authed: true, panicOn: "hydrate"}, DefaultRoutes())
		require.Equal(t, DenyToLogin, g.Evaluate(context.Background(), "/register-success").Outcome)
	})

	t.Run("panic during decision", func(t *testing.T) {
		g := newGuard(&fakeSessions{authed: true, panicOn: "auth"}, DefaultRoutes())
		require.Equal(t, DenyToLogin, g.Evaluate(context.Background(), "/homepage").Outcome)
	})

	t.Run("cancelled navigation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		g := newGuard(&fakeSessions{authed: true, admin: true}, DefaultRoutes())
		require.Equal(t, DenyToLogin, g.Evaluate(ctx, "/admin-dashboard").Outcome)
	})
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "checking", Checking.String())
	require.Equal(t, "allow", Allow.String())
	require.Equal(t, "deny-to-login", DenyToLogin.String())
	require.Equal(t, "deny-to-home", DenyToHome.String())
	require.Equal(t, "Outcome(9)", Outcome(9).String())
}
