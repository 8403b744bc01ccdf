package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wagerdash/connect-service/internal/domain/connect"
)

// ProviderClient encapsulates outbound HTTP calls to external OAuth providers.
type ProviderClient interface {
	Exchange(ctx context.Context, provider connect.Provider, code, codeVerifier string) (*connect.TokenResponse, error)
	Refresh(ctx context.Context, provider connect.Provider, refreshToken string) (*connect.TokenResponse, error)
	Revoke(ctx context.Context, provider connect.Provider, token, tokenTypeHint string) error
	FetchProfile(ctx context.Context, provider connect.Provider, accessToken string) (*connect.Profile, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
}

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

// Exchange redeems an authorization code plus PKCE verifier for a token pair.
func (c *HTTPProviderClient) Exchange(ctx context.Context, provider connect.Provider, code, codeVerifier string) (*connect.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", provider.RedirectURI)
	data.Set("code_verifier", codeVerifier)

	token, err := c.postToken(ctx, provider, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", connect.ErrTokenExchange, err)
	}
	return token, nil
}

// Refresh trades a refresh token for a new token pair. The response may omit
// refresh_token; callers must keep the old one in that case.
func (c *HTTPProviderClient) Refresh(ctx context.Context, provider connect.Provider, refreshToken string) (*connect.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	token, err := c.postToken(ctx, provider, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", connect.ErrTokenRefresh, err)
	}
	return token, nil
}

// Revoke invalidates a token at the provider. Callers treat failures as
// advisory only.
func (c *HTTPProviderClient) Revoke(ctx context.Context, provider connect.Provider, token, tokenTypeHint string) error {
	if strings.TrimSpace(provider.RevokeURL) == "" {
		return fmt.Errorf("revoke url missing")
	}
	data := url.Values{}
	data.Set("token", token)
	if tokenTypeHint != "" {
		data.Set("token_type_hint", tokenTypeHint)
	}
	data.Set("client_id", provider.ClientID)
	if provider.ClientSecret != "" {
		data.Set("client_secret", provider.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.RevokeURL, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("revoke failed: status=%d", resp.StatusCode)
	}
	return nil
}

// FetchProfile loads the provider profile endpoint for status display.
func (c *HTTPProviderClient) FetchProfile(ctx context.Context, provider connect.Provider, accessToken string) (*connect.Profile, error) {
	if strings.TrimSpace(provider.ProfileURL) == "" {
		return nil, fmt.Errorf("profile url missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.ProfileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("profile failed: status=%d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	// Kick wraps the profile in a data array; others return it top-level.
	if list, ok := raw["data"].([]any); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]any); ok {
			raw = first
		}
	}

	return &connect.Profile{
		ID:          stringValue(coalesce(raw["user_id"], raw["id"], raw["sub"])),
		Username:    stringValue(coalesce(raw["name"], raw["username"], raw["displayName"])),
		Email:       stringValue(coalesce(raw["email"], raw["mail"])),
		AvatarURL:   stringValue(coalesce(raw["profile_picture"], raw["avatar_url"], raw["picture"])),
		ChannelSlug: stringValue(coalesce(raw["slug"], raw["channel_slug"])),
	}, nil
}

func (c *HTTPProviderClient) postToken(ctx context.Context, provider connect.Provider, data url.Values) (*connect.TokenResponse, error) {
	if strings.TrimSpace(provider.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}
	data.Set("client_id", provider.ClientID)
	if provider.ClientSecret != "" {
		data.Set("client_secret", provider.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token endpoint: status=%d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	token := &connect.TokenResponse{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		TokenType:    stringValue(raw["token_type"]),
		Scope:        stringValue(raw["scope"]),
		Raw:          raw,
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	if exp := raw["expires_in"]; exp != nil {
		token.ExpiresIn = int64Value(exp)
	}
	return token, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	case float64:
		// Providers report numeric user ids; render them without exponent.
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func coalesce(values ...any) any {
	for _, v := range values {
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return v
			}
		case nil:
			continue
		default:
			return v
		}
	}
	return nil
}
