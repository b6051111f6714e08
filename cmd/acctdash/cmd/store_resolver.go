package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/usernameweb/acctdash/internal/auth"
	"github.com/usernameweb/acctdash/internal/query"
	"github.com/usernameweb/acctdash/internal/remote"
	"github.com/usernameweb/acctdash/internal/store"
)

// Backend is what commands need: account operations plus the signed-in
// session. Both the local store and remote.Store satisfy it.
type Backend interface {
	query.Backend
	auth.Session
}

// localBackend pairs the SQL store with the owner configured in [account].
type localBackend struct {
	*store.Store
	*auth.StaticSession
}

// IsRemoteMode returns true if commands should use remote server.
// Resolution order:
//  1. --local flag → always local
//  2. [remote].url set in config → use remote
//  3. Default → use local DB
func IsRemoteMode() bool {
	if useLocal {
		return false
	}
	return cfg != nil && cfg.Remote.URL != ""
}

// OpenBackend returns either a local or remote backend based on configuration.
func OpenBackend(ctx context.Context) (Backend, error) {
	if IsRemoteMode() {
		return openRemoteStore()
	}
	s, err := openLocalStore(ctx)
	if err != nil {
		return nil, err
	}
	return localBackend{Store: s, StaticSession: auth.NewStaticSession(cfg.Account.Email)}, nil
}

// OpenRemoteStore opens a remote store, returning error if not configured.
// Unlike OpenBackend, this always attempts remote connection.
func OpenRemoteStore() (*remote.Store, error) {
	if cfg.Remote.URL == "" {
		return nil, fmt.Errorf("remote server not configured\n\n" +
			"Configure in ~/.acctdash/config.toml:\n" +
			"  [remote]\n" +
			"  url = \"http://dash:8080\"\n" +
			"  api_key = \"your-api-key\"\n" +
			"  allow_insecure = true  # for trusted networks")
	}
	return openRemoteStore()
}

// openLocalStore opens the local database and applies pending migrations.
func openLocalStore(ctx context.Context) (*store.Store, error) {
	s, err := store.Open(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// openRemoteStore creates a remote store client.
func openRemoteStore() (*remote.Store, error) {
	return remote.New(remote.Config{
		URL:           cfg.Remote.URL,
		APIKey:        cfg.Remote.APIKey,
		AllowInsecure: cfg.Remote.AllowInsecure,
		Timeout:       time.Duration(cfg.Remote.TimeoutSeconds) * time.Second,
	})
}

// MustBeLocal returns an error if remote mode is active.
// Use this for commands that only work with local database.
func MustBeLocal(cmdName string) error {
	if IsRemoteMode() {
		return fmt.Errorf("%s requires local database\n\n"+
			"This command cannot run against a remote server.\n"+
			"Use --local flag to force local database.", cmdName)
	}
	return nil
}

// requireOwner resolves the signed-in owner email for b.
func requireOwner(ctx context.Context, b Backend) (string, error) {
	owner, err := auth.RequireOwner(ctx, b)
	if errors.Is(err, auth.ErrUnauthenticated) {
		if IsRemoteMode() {
			return "", fmt.Errorf("not signed in to %s: check [remote] api_key", cfg.Remote.URL)
		}
		return "", fmt.Errorf("no account configured\n\n" +
			"Set the owner email in config.toml:\n" +
			"  [account]\n" +
			"  email = \"you@example.com\"")
	}
	return owner, err
}
