// Package auth resolves the signed-in owner for the dashboard.
//
// Tokens are checked by a Verifier: a static API key bound to one owner, or
// an ID token from an external OIDC issuer whose email claim names the
// owner. The owner email scopes every account query.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

var (
	// ErrUnauthenticated is returned when no valid credentials are present.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrRevoked is returned for tokens that were signed out.
	ErrRevoked = errors.New("session revoked")
)

// User is an authenticated owner.
type User struct {
	Email   string `json:"email"`
	Subject string `json:"subject,omitempty"`
	Method  string `json:"method"`
}

// Verifier turns a bearer token into a User.
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// APIKeyVerifier accepts a single static key on behalf of one owner.
type APIKeyVerifier struct {
	key   string
	owner string
}

// NewAPIKeyVerifier returns a verifier for key, authenticating as owner.
func NewAPIKeyVerifier(key, owner string) *APIKeyVerifier {
	return &APIKeyVerifier{key: key, owner: owner}
}

func (v *APIKeyVerifier) Verify(_ context.Context, token string) (User, error) {
	if v.key == "" || token == "" {
		return User{}, ErrUnauthenticated
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.key)) != 1 {
		return User{}, ErrUnauthenticated
	}
	if v.owner == "" {
		return User{}, fmt.Errorf("%w: api key has no owner email configured", ErrUnauthenticated)
	}
	return User{Email: v.owner, Method: "api_key"}, nil
}

// OIDCVerifier validates ID tokens from an OIDC issuer.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer's keys and returns a verifier for
// tokens issued to clientID.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc issuer %s: %w", issuer, err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// NewOIDCVerifierWithKeys builds a verifier from a fixed key set, without
// discovery. now may be nil.
func NewOIDCVerifierWithKeys(issuer, clientID string, keys oidc.KeySet, now func() time.Time) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID, Now: now})}
}

type emailClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
}

func (v *OIDCVerifier) Verify(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrUnauthenticated
	}
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	var claims emailClaims
	if err := idToken.Claims(&claims); err != nil {
		return User{}, fmt.Errorf("%w: decode claims: %v", ErrUnauthenticated, err)
	}
	if claims.Email == "" {
		return User{}, fmt.Errorf("%w: token has no email claim", ErrUnauthenticated)
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return User{}, fmt.Errorf("%w: email %s is not verified", ErrUnauthenticated, claims.Email)
	}
	return User{Email: strings.ToLower(claims.Email), Subject: idToken.Subject, Method: "oidc"}, nil
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (User, error) {
	err := ErrUnauthenticated
	for _, v := range c {
		u, verr := v.Verify(ctx, token)
		if verr == nil {
			return u, nil
		}
		err = verr
	}
	return User{}, err
}

// Revocations is an in-memory set of signed-out tokens. Entries expire after
// ttl so the set stays bounded by the token lifetime.
type Revocations struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	revoked map[string]time.Time
}

// NewRevocations returns an empty revocation set.
func NewRevocations(ttl time.Duration) *Revocations {
	return &Revocations{ttl: ttl, now: time.Now, revoked: make(map[string]time.Time)}
}

func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Revoke marks token as signed out.
func (r *Revocations) Revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, exp := range r.revoked {
		if now.After(exp) {
			delete(r.revoked, k)
		}
	}
	r.revoked[tokenKey(token)] = now.Add(r.ttl)
}

// IsRevoked reports whether token was signed out and has not expired.
func (r *Revocations) IsRevoked(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.revoked[tokenKey(token)]
	return ok && !r.now().After(exp)
}

// Guard verifies tokens and rejects revoked ones.
type Guard struct {
	Verifier    Verifier
	Revocations *Revocations
}

// Authenticate verifies token unless it has been revoked.
func (g *Guard) Authenticate(ctx context.Context, token string) (User, error) {
	if g.Revocations != nil && g.Revocations.IsRevoked(token) {
		return User{}, ErrRevoked
	}
	if g.Verifier == nil {
		return User{}, ErrUnauthenticated
	}
	return g.Verifier.Verify(ctx, token)
}

// SignOut revokes token.
func (g *Guard) SignOut(token string) {
	if g.Revocations != nil {
		g.Revocations.Revoke(token)
	}
}

type ctxKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the user stored by WithUser.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok && u.Email != ""
}
