// Package session owns the client's view of the signed-in user.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/closeshop/internal/client/backend"
	"github.com/dukerupert/closeshop/internal/model"
)

const profileTimeout = 10 * time.Second

// Session is the cached identity. Role is only trustworthy when Loaded is
// true, i.e. after a profile fetch for UserID succeeded.
type Session struct {
	UserID string
	Email  string
	Role   string
	Loaded bool
}

func (s Session) IsAdmin() bool {
	return s.Loaded && s.Role == model.RoleAdmin
}

// Store holds at most one Session. Profile fetches are tagged with a
// generation; a result is applied only if no newer fetch or reset happened
// while it was in flight. Session fetches are tagged with the reset epoch so
// a sign-out cannot be undone by a response that was already on its way.
type Store struct {
	auth     backend.Auth
	profiles backend.Profiles
	logger   *slog.Logger

	mu    sync.Mutex
	cur   *Session
	gen   uint64
	epoch uint64

	initOnce    sync.Once
	unsubscribe func()
}

func New(auth backend.Auth, profiles backend.Profiles, logger *slog.Logger) *Store {
	return &Store{auth: auth, profiles: profiles, logger: logger}
}

// Init registers the backend auth listener. Calls after the first are no-ops.
func (s *Store) Init() {
	s.initOnce.Do(func() {
		unsub := s.auth.OnAuthStateChange(s.onAuthChange)
		s.mu.Lock()
		s.unsubscribe = unsub
		s.mu.Unlock()
	})
}

// Close removes the auth listener registered by Init.
func (s *Store) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (s *Store) onAuthChange(event backend.AuthEvent, sess *backend.Session) {
	switch event {
	case backend.EventSignedOut:
		s.Reset()
	case backend.EventTokenRefreshed, backend.EventUserUpdated:
		if sess == nil {
			return
		}
		if changed, _ := s.adopt(s.currentEpoch(), sess.User); changed {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), profileTimeout)
				defer cancel()
				s.loadProfile(ctx, sess.User.ID)
			}()
		}
	}
}

// Current returns a copy of the cached session.
func (s *Store) Current() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return Session{}, false
	}
	return *s.cur, true
}

func (s *Store) IsAuthenticated() bool {
	_, ok := s.Current()
	return ok
}

func (s *Store) IsAdmin() bool {
	cur, ok := s.Current()
	return ok && cur.IsAdmin()
}

// Reset clears the session and invalidates in-flight profile fetches.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = nil
	s.gen++
	s.epoch++
}

func (s *Store) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Hydrate loads the backend's current session and then the user's profile.
// A transport error clears the session and is returned for logging only.
func (s *Store) Hydrate(ctx context.Context) (bool, error) {
	epoch := s.currentEpoch()
	sess, err := s.auth.GetSession(ctx)
	if err != nil {
		s.logger.Error("hydrate session", "error", err)
		s.resetIfEpoch(epoch)
		return s.IsAuthenticated(), err
	}
	if sess == nil {
		s.resetIfEpoch(epoch)
		return s.IsAuthenticated(), nil
	}

	if _, ok := s.adopt(epoch, sess.User); !ok {
		return s.IsAuthenticated(), nil
	}
	s.loadProfile(ctx, sess.User.ID)
	return true, nil
}

// Revalidate asks the backend whether the cached session is still valid and
// adopts whatever user it reports.
func (s *Store) Revalidate(ctx context.Context) (bool, error) {
	epoch := s.currentEpoch()
	sess, err := s.auth.GetSession(ctx)
	if err != nil {
		return s.IsAuthenticated(), err
	}
	if sess == nil {
		s.resetIfEpoch(epoch)
		return s.IsAuthenticated(), nil
	}
	changed, ok := s.adopt(epoch, sess.User)
	if !ok {
		return s.IsAuthenticated(), nil
	}
	if changed {
		s.loadProfile(ctx, sess.User.ID)
	}
	return true, nil
}

// SignIn and SignUp adopt the returned session unless a reset happened while
// the request was in flight.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	epoch := s.currentEpoch()
	sess, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	if _, ok := s.adopt(epoch, sess.User); ok {
		s.loadProfile(ctx, sess.User.ID)
	}
	return nil
}

func (s *Store) SignUp(ctx context.Context, email, password string) error {
	epoch := s.currentEpoch()
	sess, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if _, ok := s.adopt(epoch, sess.User); ok {
		s.loadProfile(ctx, sess.User.ID)
	}
	return nil
}

// SignOut clears local state first, then revokes the backend session.
func (s *Store) SignOut(ctx context.Context) error {
	s.Reset()
	return s.auth.SignOut(ctx)
}

func (s *Store) SendPasswordReset(ctx context.Context, email string) error {
	return s.auth.ResetPasswordForEmail(ctx, strings.TrimSpace(email))
}

// UpdatePassword sets a new password using an emailed recovery code. The
// backend revokes the account's sessions, so a matching local session is
// cleared.
func (s *Store) UpdatePassword(ctx context.Context, email, code, newPassword string) error {
	if err := s.auth.VerifyRecovery(ctx, email, code, newPassword); err != nil {
		return err
	}
	if cur, ok := s.Current(); ok && strings.EqualFold(cur.Email, email) {
		s.Reset()
	}
	return nil
}

// adopt installs user as the session identity and reports whether it
// differs from the cached one. ok is false, and nothing changes, when a
// reset happened after epoch was read.
func (s *Store) adopt(epoch uint64, user backend.User) (changed, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		s.logger.Debug("discarding stale session", "user_id", user.ID)
		return false, false
	}
	if s.cur != nil && s.cur.UserID == user.ID {
		s.cur.Email = user.Email
		return false, true
	}
	s.cur = &Session{UserID: user.ID, Email: user.Email}
	return true, true
}

func (s *Store) resetIfEpoch(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	s.cur = nil
	s.gen++
	s.epoch++
}

func (s *Store) loadProfile(ctx context.Context, userID string) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	p, err := s.profiles.GetProfile(ctx, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.cur == nil || s.cur.UserID != userID {
		s.logger.Debug("discarding stale profile fetch", "user_id", userID)
		return
	}
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			s.logger.Warn("no profile for user", "user_id", userID)
		} else {
			s.logger.Error("load profile", "user_id", userID, "error", err)
		}
		return
	}
	s.cur.Role = p.Role
	s.cur.Loaded = true
}
