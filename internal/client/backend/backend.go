// Package backend defines the contract the client core relies on. The
// session store, route guard and notification channel only talk to the
// backend through these interfaces.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/dukerupert/closeshop/internal/model"
)

var (
	// ErrNotFound is returned by single-row lookups that matched nothing.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the backend rejects the credentials
	// or the access token.
	ErrUnauthorized = errors.New("unauthorized")
)

// AuthEvent names an auth state transition.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an authenticated backend session.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// AuthListener is called after every auth state change. session is nil for
// EventSignedOut.
type AuthListener func(event AuthEvent, session *Session)

type Auth interface {
	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	// OnAuthStateChange registers fn and returns a func that removes it.
	OnAuthStateChange(fn AuthListener) (unsubscribe func())
	ResetPasswordForEmail(ctx context.Context, email string) error
	VerifyRecovery(ctx context.Context, email, code, newPassword string) error
}

type Profiles interface {
	// GetProfile returns ErrNotFound when no profile has the id.
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
}

// Subscription is a live realtime stream. Close is safe to call more than
// once.
type Subscription interface {
	Close() error
}

type Notifications interface {
	// ListNotifications returns the user's rows, newest first.
	ListNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	// SubscribeInserts streams rows inserted for userID to fn until the
	// subscription is closed or ctx is done. fn runs on the stream goroutine.
	SubscribeInserts(ctx context.Context, userID string, fn func(model.Notification)) (Subscription, error)
}
