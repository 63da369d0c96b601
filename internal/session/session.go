// Package session manages the OAuth token lifecycle for the remote
// store: interactive login, restore on startup, silent refresh, and
// teardown when the provider refuses to renew.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/riftapp/rift/internal/config"
	"github.com/riftapp/rift/internal/metrics"
	"github.com/riftapp/rift/internal/store"
)

// State is the lifecycle state of the remote session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateRefreshing      State = "refreshing"
)

// Tokens expiring within this margin are refreshed instead of restored.
const expiryMargin = 5 * time.Minute

// ErrNotAuthenticated is returned when a token is requested without a
// live session.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// ErrRefreshDenied is returned when the provider refuses a silent
// refresh. The session has been torn down by the time it is returned.
var ErrRefreshDenied = errors.New("session: silent refresh denied")

// ErrLoginPending is returned when a callback arrives for an unknown or
// already-consumed state nonce.
var ErrLoginPending = errors.New("session: no matching login in progress")

// persisted is the durable shape of a session: token, expiry, and the
// account identity shown in the connection indicator.
type persisted struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
	Email        string    `json:"email,omitempty"`
}

// Manager owns the session state machine. All transitions happen under
// a single mutex; silent refreshes are deduplicated through a
// singleflight group so concurrent callers await the same attempt
// instead of issuing duplicate requests.
type Manager struct {
	cfg      *config.Config
	store    *store.Store
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	logger   *slog.Logger

	refreshGroup singleflight.Group

	mu           sync.Mutex
	state        State
	token        *oauth2.Token
	email        string
	pendingState string
}

// New builds a manager from config. The OIDC verifier is optional: when
// the provider issuer is not configured, callback ID tokens are skipped
// and the account email is left empty.
func New(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (*Manager, error) {
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  cfg.BaseURL + cfg.OAuth.RedirectPath,
		Scopes:       cfg.OAuth.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.OAuth.AuthURL,
			TokenURL: cfg.OAuth.TokenURL,
		},
	}

	m := &Manager{
		cfg:    cfg,
		store:  st,
		oauth:  oauthCfg,
		logger: logger,
		state:  StateUnauthenticated,
	}

	if cfg.OAuth.IssuerURL != "" {
		provider, err := oidc.NewProvider(ctx, cfg.OAuth.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("discover oidc provider: %w", err)
		}
		m.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.OAuth.ClientID})
		// Provider metadata wins over statically configured endpoints.
		m.oauth.Endpoint = provider.Endpoint()
	}

	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Authenticated reports whether a live session exists.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateAuthenticated || m.state == StateRefreshing
}

// Email returns the connected account identity, if known.
func (m *Manager) Email() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.email
}

// Expiry returns the current token expiry, zero when unauthenticated.
func (m *Manager) Expiry() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return time.Time{}
	}
	return m.token.Expiry
}

// BeginLogin starts the interactive consent flow and returns the
// provider URL the user must visit. The state nonce is kept so the
// callback can be matched to this attempt; at most one interactive
// login is in flight at a time.
func (m *Manager) BeginLogin() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pendingState = uuid.NewString()
	if m.state == StateUnauthenticated {
		m.state = StateAuthenticating
	}
	return m.oauth.AuthCodeURL(m.pendingState, oauth2.AccessTypeOffline)
}

// CancelLogin abandons a pending interactive login, e.g. when the user
// declines consent at the provider.
func (m *Manager) CancelLogin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingState = ""
	if m.state == StateAuthenticating {
		m.state = StateUnauthenticated
	}
}

// CompleteLogin finishes the consent flow: validates the state nonce,
// exchanges the code, verifies the ID token when a verifier is
// configured, and persists the session. Provider errors return the
// manager to unauthenticated rather than leaving it stuck.
func (m *Manager) CompleteLogin(ctx context.Context, stateNonce, code string) error {
	m.mu.Lock()
	if m.pendingState == "" || stateNonce != m.pendingState {
		m.mu.Unlock()
		return ErrLoginPending
	}
	m.pendingState = ""
	m.mu.Unlock()

	token, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		m.toUnauthenticated(ctx, false)
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	email := ""
	if m.verifier != nil {
		rawID, _ := token.Extra("id_token").(string)
		if rawID != "" {
			idToken, err := m.verifier.Verify(ctx, rawID)
			if err != nil {
				m.toUnauthenticated(ctx, false)
				return fmt.Errorf("verify id token: %w", err)
			}
			var claims struct {
				Email string `json:"email"`
			}
			if err := idToken.Claims(&claims); err == nil {
				email = claims.Email
			}
		}
	}

	if err := m.adopt(ctx, token, email); err != nil {
		return err
	}
	m.logger.Info("session established", "email", email, "expiry", token.Expiry)
	return nil
}

// Restore attempts to resume a persisted session on startup. A token
// with more than the safety margin left is restored directly; an
// expiring one goes through a silent refresh. Returns true when the
// manager ends up authenticated.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	blob, err := m.store.LoadSession(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}

	raw, err := decrypt(m.cfg.Session.Secret, blob)
	if err != nil {
		m.logger.Warn("discarding undecryptable session", "error", err)
		_ = m.store.DeleteSession(ctx)
		return false, nil
	}

	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		m.logger.Warn("discarding malformed session", "error", err)
		_ = m.store.DeleteSession(ctx)
		return false, nil
	}

	token := &oauth2.Token{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		Expiry:       p.Expiry,
		TokenType:    "Bearer",
	}

	if time.Until(p.Expiry) > expiryMargin {
		m.mu.Lock()
		m.state = StateAuthenticated
		m.token = token
		m.email = p.Email
		m.mu.Unlock()
		m.logger.Info("session restored", "email", p.Email, "expiry", p.Expiry)
		return true, nil
	}

	m.mu.Lock()
	m.token = token
	m.email = p.Email
	m.mu.Unlock()

	if err := m.Refresh(ctx); err != nil {
		// Expected when the refresh token has been revoked or has
		// expired; the session is already torn down.
		m.logger.Info("silent refresh on restore failed", "error", err)
		return false, nil
	}
	return true, nil
}

// Token returns the current access token, refreshing first when the
// expiry margin has been crossed.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	token := m.token
	state := m.state
	m.mu.Unlock()

	if token == nil || state == StateUnauthenticated {
		return "", ErrNotAuthenticated
	}

	if time.Until(token.Expiry) <= expiryMargin {
		if err := m.Refresh(ctx); err != nil {
			return "", err
		}
		m.mu.Lock()
		token = m.token
		m.mu.Unlock()
		if token == nil {
			return "", ErrNotAuthenticated
		}
	}

	return token.AccessToken, nil
}

// Refresh performs a silent token refresh. Concurrent callers share a
// single in-flight attempt. Provider refusal tears the session down and
// returns ErrRefreshDenied.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	m.mu.Lock()
	token := m.token
	if token == nil || token.RefreshToken == "" {
		m.mu.Unlock()
		m.toUnauthenticated(ctx, true)
		metrics.ObserveAuthRefresh("denied")
		return ErrRefreshDenied
	}
	m.state = StateRefreshing
	email := m.email
	m.mu.Unlock()

	// Force a refresh by presenting an already-expired token to the
	// oauth2 token source.
	stale := &oauth2.Token{
		RefreshToken: token.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	fresh, err := m.oauth.TokenSource(ctx, stale).Token()
	if err != nil {
		m.toUnauthenticated(ctx, true)
		metrics.ObserveAuthRefresh("denied")
		m.logger.Warn("silent refresh denied", "error", err)
		return ErrRefreshDenied
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = token.RefreshToken
	}

	if err := m.adopt(ctx, fresh, email); err != nil {
		return err
	}
	metrics.ObserveAuthRefresh("ok")
	m.logger.Debug("session refreshed", "expiry", fresh.Expiry)
	return nil
}

// Logout tears the session down and removes the persisted blob.
func (m *Manager) Logout(ctx context.Context) {
	m.toUnauthenticated(ctx, true)
	m.logger.Info("session cleared")
}

// Invalidate tears the session down after the remote store rejected a
// freshly refreshed token.
func (m *Manager) Invalidate(ctx context.Context) {
	m.toUnauthenticated(ctx, true)
	m.logger.Warn("session invalidated by remote store")
}

// adopt installs a token as the live session and persists it.
func (m *Manager) adopt(ctx context.Context, token *oauth2.Token, email string) error {
	m.mu.Lock()
	m.state = StateAuthenticated
	m.token = token
	m.email = email
	m.mu.Unlock()

	raw, err := json.Marshal(persisted{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		Email:        email,
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	blob, err := encrypt(m.cfg.Session.Secret, raw)
	if err != nil {
		return fmt.Errorf("encrypt session: %w", err)
	}
	if err := m.store.SaveSession(ctx, blob); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (m *Manager) toUnauthenticated(ctx context.Context, clearPersisted bool) {
	m.mu.Lock()
	m.state = StateUnauthenticated
	m.token = nil
	m.email = ""
	m.mu.Unlock()

	if clearPersisted {
		if err := m.store.DeleteSession(ctx); err != nil {
			m.logger.Warn("failed to clear persisted session", "error", err)
		}
	}
}
