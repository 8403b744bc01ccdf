// Package connect orchestrates the OAuth2 PKCE account-linking flows:
// authorize, callback, status, and unlink.
package connect

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	oauthadapter "github.com/wagerdash/connect-service/internal/adapter/oauth"
	"github.com/wagerdash/connect-service/internal/config"
	"github.com/wagerdash/connect-service/internal/domain/connect"
	"github.com/wagerdash/connect-service/internal/pkce"
	"github.com/wagerdash/connect-service/internal/repository"
)

// Service defines the account-linking behaviors exposed to HTTP handlers.
type Service interface {
	Providers() []ProviderInfo
	StartAuthorization(ctx context.Context, userID int64, provider string) (*StartAuthorizationOutput, error)
	HandleCallback(ctx context.Context, userID int64, in CallbackInput) (*connect.Connection, error)
	Status(ctx context.Context, userID int64, provider string) (*connect.Status, error)
	Unlink(ctx context.Context, userID int64, provider string) error
}

// ProviderInfo is the public shape of an enabled provider.
type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// StartAuthorizationOutput returns the prepared authorization URL and the
// state token stored for the pending flow.
type StartAuthorizationOutput struct {
	AuthorizationURL string
	State            string
}

// CallbackInput captures the provider callback query parameters.
type CallbackInput struct {
	Provider string
	Code     string
	State    string
}

type service struct {
	cfg            config.Config
	stateStore     repository.StateStore
	connStore      repository.ConnectionStore
	prefs          repository.PreferenceStore
	providerClient oauthadapter.ProviderClient
	logger         *zap.Logger
}

// NewService wires the account-linking service implementation.
func NewService(
	cfg config.Config,
	stateStore repository.StateStore,
	connStore repository.ConnectionStore,
	prefs repository.PreferenceStore,
	providerClient oauthadapter.ProviderClient,
	logger *zap.Logger,
) Service {
	return &service{
		cfg:            cfg,
		stateStore:     stateStore,
		connStore:      connStore,
		prefs:          prefs,
		providerClient: providerClient,
		logger:         logger,
	}
}

func (s *service) Providers() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(s.cfg.Providers))
	for _, p := range s.cfg.Providers {
		infos = append(infos, ProviderInfo{Name: p.Name, DisplayName: p.DisplayName})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// StartAuthorization prepares a pending flow: it verifies the user finished
// account setup, mints fresh PKCE material and a CSRF state, persists the
// state record, and builds the provider authorization URL.
func (s *service) StartAuthorization(ctx context.Context, userID int64, provider string) (*StartAuthorizationOutput, error) {
	p, ok := s.cfg.Provider(provider)
	if !ok {
		return nil, connect.ErrProviderNotFound
	}

	timezone, err := s.prefs.GetTimezone(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if strings.TrimSpace(timezone) == "" {
		return nil, connect.ErrPreconditionMissing
	}

	verifier, err := pkce.Verifier()
	if err != nil {
		return nil, fmt.Errorf("generate pkce verifier: %w", err)
	}
	state, err := pkce.State()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	record := connect.AuthState{
		UserID:       userID,
		State:        state,
		CodeVerifier: verifier,
		Provider:     p.Name,
	}
	if err := s.stateStore.Put(ctx, record, s.cfg.StateTTL); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}

	authURL, err := authorizationURL(p, pkce.Challenge(verifier), state)
	if err != nil {
		return nil, err
	}

	return &StartAuthorizationOutput{AuthorizationURL: authURL, State: state}, nil
}

// authorizationURL composes the provider authorization endpoint URL. Pure.
func authorizationURL(p connect.Provider, codeChallenge, state string) (string, error) {
	u, err := url.Parse(p.AuthURL)
	if err != nil {
		return "", fmt.Errorf("parse auth url: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("scope", strings.Join(p.Scopes, " "))
	q.Set("state", state)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "S256")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HandleCallback drives the callback through its stages: consume the stored
// state, exchange the code, persist the connection, clean up. Each stage
// failure surfaces as a sentinel the handler maps to a redirect error code.
func (s *service) HandleCallback(ctx context.Context, userID int64, in CallbackInput) (*connect.Connection, error) {
	p, ok := s.cfg.Provider(in.Provider)
	if !ok {
		return nil, connect.ErrProviderNotFound
	}
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.State) == "" {
		return nil, connect.ErrInvalidRequest
	}

	record, err := s.stateStore.Consume(ctx, userID, in.State)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(record.Provider, p.Name) {
		return nil, connect.ErrStateNotFound
	}

	token, err := s.providerClient.Exchange(ctx, p, in.Code, record.CodeVerifier)
	if err != nil {
		return nil, err
	}

	conn, err := s.connStore.Upsert(ctx, connect.Connection{
		UserID:       userID,
		Provider:     p.Name,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiryFromResponse(token, time.Now().UTC()),
		TokenType:    token.TokenType,
		Scope:        token.Scope,
	})
	if err != nil {
		return nil, fmt.Errorf("persist connection: %w", err)
	}

	// Consume already removed the record; this covers stores without an
	// atomic read-and-delete. Failure is not fatal.
	if err := s.stateStore.Delete(ctx, userID, in.State); err != nil {
		s.log().Warn("failed to delete oauth state", zap.Error(err))
	}

	return conn, nil
}

// Status reports whether the provider is linked, refreshing an expired
// access token before loading the remote profile.
func (s *service) Status(ctx context.Context, userID int64, provider string) (*connect.Status, error) {
	p, ok := s.cfg.Provider(provider)
	if !ok {
		return nil, connect.ErrProviderNotFound
	}

	conn, err := s.connStore.Get(ctx, userID, p.Name)
	if err != nil {
		if errors.Is(err, connect.ErrConnectionNotFound) {
			return &connect.Status{Connected: false}, nil
		}
		return nil, fmt.Errorf("load connection: %w", err)
	}

	conn = s.refreshIfExpired(ctx, p, conn)

	profile, err := s.providerClient.FetchProfile(ctx, p, conn.AccessToken)
	if err != nil {
		// The link itself is intact; degrade to a bare connected status.
		s.log().Warn("profile fetch failed",
			zap.String("provider", p.Name), zap.Int64("user_id", userID), zap.Error(err))
		return &connect.Status{Connected: true}, nil
	}

	return &connect.Status{Connected: true, User: profile}, nil
}

// refreshIfExpired swaps in a fresh token pair when the stored one passed
// its expiry. A failed refresh falls back to the stored token; some
// providers briefly accept recently-expired tokens, and the next status
// check retries anyway.
func (s *service) refreshIfExpired(ctx context.Context, p connect.Provider, conn *connect.Connection) *connect.Connection {
	if !conn.Expired(time.Now().UTC(), s.cfg.RefreshSkew) || conn.RefreshToken == "" {
		return conn
	}

	token, err := s.providerClient.Refresh(ctx, p, conn.RefreshToken)
	if err != nil {
		s.log().Warn("token refresh failed, using stored token",
			zap.String("provider", p.Name), zap.Int64("user_id", conn.UserID), zap.Error(err))
		return conn
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		// Providers may omit refresh_token on refresh; keep the old one.
		refreshToken = conn.RefreshToken
	}

	updated, err := s.connStore.Upsert(ctx, connect.Connection{
		UserID:       conn.UserID,
		Provider:     conn.Provider,
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiryFromResponse(token, time.Now().UTC()),
		TokenType:    token.TokenType,
		Scope:        scopeOr(token.Scope, conn.Scope),
	})
	if err != nil {
		// Last write wins across concurrent refreshes; the provider is the
		// source of truth, so a lost local write only costs a re-refresh.
		s.log().Warn("failed to persist refreshed token",
			zap.String("provider", p.Name), zap.Int64("user_id", conn.UserID), zap.Error(err))
		conn.AccessToken = token.AccessToken
		conn.RefreshToken = refreshToken
		return conn
	}
	return updated
}

// Unlink revokes both tokens best-effort and then unconditionally removes
// the connection record: the user's intent to disconnect is honored locally
// even when the provider is unreachable.
func (s *service) Unlink(ctx context.Context, userID int64, provider string) error {
	p, ok := s.cfg.Provider(provider)
	if !ok {
		return connect.ErrProviderNotFound
	}

	conn, err := s.connStore.Get(ctx, userID, p.Name)
	if err != nil {
		if errors.Is(err, connect.ErrConnectionNotFound) {
			// Nothing to unlink; treat as already done.
			return nil
		}
		return fmt.Errorf("load connection: %w", err)
	}

	if conn.AccessToken != "" {
		if err := s.providerClient.Revoke(ctx, p, conn.AccessToken, "access_token"); err != nil {
			s.log().Warn("access token revoke failed",
				zap.String("provider", p.Name), zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	if conn.RefreshToken != "" {
		if err := s.providerClient.Revoke(ctx, p, conn.RefreshToken, "refresh_token"); err != nil {
			s.log().Warn("refresh token revoke failed",
				zap.String("provider", p.Name), zap.Int64("user_id", userID), zap.Error(err))
		}
	}

	if err := s.connStore.Delete(ctx, userID, p.Name); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

func expiryFromResponse(token *connect.TokenResponse, now time.Time) *time.Time {
	if token.ExpiresIn <= 0 {
		return nil
	}
	expires := now.Add(time.Duration(token.ExpiresIn) * time.Second)
	return &expires
}

func scopeOr(scope, fallback string) string {
	if strings.TrimSpace(scope) != "" {
		return scope
	}
	return fallback
}

func (s *service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
