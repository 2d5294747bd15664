package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/closeshop/internal/client/backend"
	"github.com/dukerupert/closeshop/internal/model"
)

// ---- fakes ----

type fakeAuth struct {
	mu          sync.Mutex
	session     *backend.Session
	getErr      error
	signInErr   error
	signOutErr  error
	onSignOut   func()
	listener    backend.AuthListener
	listenCalls int
	resetEmail  string
	verifyErr   error

	// getStarted and getGate, when set, park GetSession until the gate closes.
	getStarted chan struct{}
	getGate    chan struct{}
}

func (f *fakeAuth) GetSession(context.Context) (*backend.Session, error) {
	f.mu.Lock()
	started, gate := f.getStarted, f.getGate
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.session, nil
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, _ string) (*backend.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.session, nil
}

func (f *fakeAuth) SignUp(context.Context, string, string) (*backend.Session, error) {
	return f.session, nil
}

func (f *fakeAuth) SignOut(context.Context) error {
	if f.onSignOut != nil {
		f.onSignOut()
	}
	return f.signOutErr
}

func (f *fakeAuth) OnAuthStateChange(fn backend.AuthListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = fn
	f.listenCalls++
	return func() {
		f.mu.Lock()
		f.listener = nil
		f.mu.Unlock()
	}
}

func (f *fakeAuth) ResetPasswordForEmail(_ context.Context, email string) error {
	f.resetEmail = email
	return nil
}

func (f *fakeAuth) VerifyRecovery(context.Context, string, string, string) error {
	return f.verifyErr
}

func (f *fakeAuth) emit(event backend.AuthEvent, sess *backend.Session) {
	f.mu.Lock()
	fn := f.listener
	f.mu.Unlock()
	if fn != nil {
		fn(event, sess)
	}
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	gates    map[string]chan struct{}
	err      error
	started  chan string
}

func newFakeProfiles(ps ...*model.Profile) *fakeProfiles {
	f := &fakeProfiles{
		profiles: make(map[string]*model.Profile),
		gates:    make(map[string]chan struct{}),
		started:  make(chan string, 16),
	}
	for _, p := range ps {
		f.profiles[p.ID] = p
	}
	return f
}

// hold makes GetProfile for id block until the returned channel is closed.
func (f *fakeProfiles) hold(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[id] = gate
	return gate
}

func (f *fakeProfiles) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	f.mu.Lock()
	gate := f.gates[id]
	p := f.profiles[id]
	err := f.err
	f.mu.Unlock()

	f.started <- id
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, backend.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ---- helpers ----

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sess(id, email string) *backend.Session {
	return &backend.Session{AccessToken: "tok-" + id, User: backend.User{ID: id, Email: email}}
}

func profile(id, role string) *model.Profile {
	return &model.Profile{ID: id, Role: role}
}

// ---- tests ----

func TestHydrate_NoSession(t *testing.T) {
	s := New(&fakeAuth{}, newFakeProfiles(), discardLogger())

	ok, err := s.Hydrate(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, s.IsAuthenticated())
}

func TestHydrate_LoadsRole(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "admin@example.com")}
	s := New(auth, newFakeProfiles(profile("u1", model.RoleAdmin)), discardLogger())

	ok, err := s.Hydrate(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	cur, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, "u1", cur.UserID)
	require.Equal(t, "admin@example.com", cur.Email)
	require.True(t, cur.Loaded)
	require.True(t, s.IsAdmin())
}

func TestHydrate_TransportErrorClears(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "a@example.com")}
	s := New(auth, newFakeProfiles(profile("u1", model.RoleUser)), discardLogger())
	_, err := s.Hydrate(context.Background())
	require.NoError(t, err)
	require.True(t, s.IsAuthenticated())

	auth.getErr = errors.New("connection refused")
	ok, err := s.Hydrate(context.Background())
	require.Error(t, err)
	require.False(t, ok)
	require.False(t, s.IsAuthenticated())
}

func TestHydrate_MissingProfileIsNotAdmin(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "a@example.com")}
	s := New(auth, newFakeProfiles(), discardLogger())

	ok, err := s.Hydrate(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	cur, _ := s.Current()
	require.False(t, cur.Loaded)
	require.False(t, s.IsAdmin())
}

func TestSignIn_LoadsProfile(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "a@example.com")}
	s := New(auth, newFakeProfiles(profile("u1", model.RoleUser)), discardLogger())

	require.NoError(t, s.SignIn(context.Background(), "a@example.com", "secret"))
	cur, ok := s.Current()
	require.True(t, ok)
	require.True(t, cur.Loaded)
	require.Equal(t, model.RoleUser, cur.Role)
}

func TestSignIn_ErrorLeavesSignedOut(t *testing.T) {
	auth := &fakeAuth{signInErr: backend.ErrUnauthorized}
	s := New(auth, newFakeProfiles(), discardLogger())

	err := s.SignIn(context.Background(), "a@example.com", "wrong")
	require.ErrorIs(t, err, backend.ErrUnauthorized)
	require.False(t, s.IsAuthenticated())
}

func TestSignOut_ClearsBeforeBackendReturns(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "a@example.com"), signOutErr: errors.New("timeout")}
	s := New(auth, newFakeProfiles(profile("u1", model.RoleUser)), discardLogger())
	_, err := s.Hydrate(context.Background())
	require.NoError(t, err)

	var seenDuringCall bool
	auth.onSignOut = func() { seenDuringCall = s.IsAuthenticated() }

	err = s.SignOut(context.Background())
	require.EqualError(t, err, "timeout")
	require.False(t, seenDuringCall)
	require.False(t, s.IsAuthenticated())
}

func TestInit_RegistersOnce(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "a@example.com")}
	s := New(auth, newFakeProfiles(profile("u1", model.RoleUser)), discardLogger())

	s.Init()
	s.Init()
	s.Init()
	require.Equal(t, 1, auth.listenCalls)

	_, err := s.Hydrate(context.Background())
	require.NoError(t, err)

	auth.emit(backend.EventSignedOut, nil)
	require.False(t, s.IsAuthenticated())

	s.Close()
	require.Nil(t, auth.listener)
}

func TestStaleProfileFetchDiscardedAfterReset(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "admin@example.com")}
	profiles := newFakeProfiles(profile("u1", model.RoleAdmin))
	gate := profiles.hold("u1")
	s := New(auth, profiles, discardLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Hydrate(context.Background())
	}()
	<-profiles.started

	require.NoError(t, s.SignOut(context.Background()))
	close(gate)
	<-done

	require.False(t, s.IsAuthenticated())
	require.False(t, s.IsAdmin())
}

func TestInFlightHydrateDiscardedAfterSignOut(t *testing.T) {
	auth := &fakeAuth{
		session:    sess("u1", "admin@example.com"),
		getStarted: make(chan struct{}, 1),
		getGate:    make(chan struct{}),
	}
	s := New(auth, newFakeProfiles(profile("u1", model.RoleAdmin)), discardLogger())

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := s.Hydrate(context.Background())
		done <- result{ok, err}
	}()
	<-auth.getStarted

	require.NoError(t, s.SignOut(context.Background()))
	require.False(t, s.IsAuthenticated())
	close(auth.getGate)
	res := <-done

	require.NoError(t, res.err)
	require.False(t, res.ok)
	require.False(t, s.IsAuthenticated())
	require.False(t, s.IsAdmin())
}

func TestHydrateAfterSignOutStillWorks(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "admin@example.com")}
	s := New(auth, newFakeProfiles(profile("u1", model.RoleAdmin)), discardLogger())
	require.NoError(t, s.SignOut(context.Background()))

	ok, err := s.Hydrate(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, s.IsAdmin())
}

func TestOlderProfileFetchDoesNotOverwriteNewer(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "admin@example.com")}
	profiles := newFakeProfiles(profile("u1", model.RoleAdmin), profile("u2", model.RoleUser))
	gate := profiles.hold("u1")
	s := New(auth, profiles, discardLogger())
	s.Init()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Hydrate(context.Background())
	}()
	require.Equal(t, "u1", <-profiles.started)

	auth.emit(backend.EventUserUpdated, sess("u2", "user@example.com"))
	require.Eventually(t, func() bool {
		cur, ok := s.Current()
		return ok && cur.UserID == "u2" && cur.Loaded
	}, time.Second, 5*time.Millisecond)

	close(gate)
	<-done

	cur, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, "u2", cur.UserID)
	require.Equal(t, model.RoleUser, cur.Role)
	require.False(t, s.IsAdmin())
}

func TestTokenRefreshedSameUserKeepsProfile(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "a@example.com")}
	profiles := newFakeProfiles(profile("u1", model.RoleAdmin))
	s := New(auth, profiles, discardLogger())
	s.Init()
	_, err := s.Hydrate(context.Background())
	require.NoError(t, err)
	<-profiles.started

	auth.emit(backend.EventTokenRefreshed, sess("u1", "a@example.com"))

	require.True(t, s.IsAdmin())
	select {
	case id := <-profiles.started:
		t.Fatalf("unexpected profile reload for %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRevalidate(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "a@example.com")}
	s := New(auth, newFakeProfiles(profile("u1", model.RoleUser)), discardLogger())
	_, err := s.Hydrate(context.Background())
	require.NoError(t, err)

	auth.session = nil
	ok, err := s.Revalidate(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, s.IsAuthenticated())
}

func TestPasswordRecovery(t *testing.T) {
	auth := &fakeAuth{session: sess("u1", "a@example.com")}
	s := New(auth, newFakeProfiles(profile("u1", model.RoleUser)), discardLogger())
	_, err := s.Hydrate(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.SendPasswordReset(context.Background(), " a@example.com "))
	require.Equal(t, "a@example.com", auth.resetEmail)

	auth.verifyErr = errors.New("invalid code")
	require.Error(t, s.UpdatePassword(context.Background(), "a@example.com", "000000", "newsecret"))
	require.True(t, s.IsAuthenticated())

	auth.verifyErr = nil
	require.NoError(t, s.UpdatePassword(context.Background(), "A@example.com", "123456", "newsecret"))
	require.False(t, s.IsAuthenticated())
}
