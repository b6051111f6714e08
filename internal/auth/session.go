package auth

import (
	"context"
	"strings"
	"sync"
)

// Session is the signed-in state seen by the dashboard.
type Session interface {
	CurrentUser(ctx context.Context) (User, error)
	SignOut(ctx context.Context) error
}

// StaticSession is a local session for a configured owner email.
type StaticSession struct {
	mu        sync.Mutex
	user      User
	signedOut bool
}

// NewStaticSession returns a session for email. An empty email yields a
// session that is never authenticated.
func NewStaticSession(email string) *StaticSession {
	return &StaticSession{user: User{Email: strings.TrimSpace(email), Method: "local"}}
}

func (s *StaticSession) CurrentUser(context.Context) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signedOut || s.user.Email == "" {
		return User{}, ErrUnauthenticated
	}
	return s.user, nil
}

func (s *StaticSession) SignOut(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signedOut = true
	return nil
}

// RequireOwner returns the current user's email or ErrUnauthenticated.
func RequireOwner(ctx context.Context, s Session) (string, error) {
	u, err := s.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if u.Email == "" {
		return "", ErrUnauthenticated
	}
	return u.Email, nil
}
