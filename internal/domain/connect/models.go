package connect

import "time"

// Provider holds the static OAuth client configuration for one upstream
// service (Kick, Roobet, Shuffle).
type Provider struct {
	Name         string
	DisplayName  string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	ProfileURL   string
	RedirectURI  string
	Scopes       []string
}

// AuthState captures the state/verifier tuple persisted between the
// authorize redirect and the provider callback.
type AuthState struct {
	UserID       int64     `json:"user_id"`
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	Provider     string    `json:"provider"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Connection is the durable per-user, per-provider token record.
type Connection struct {
	ID           int64
	UserID       int64
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	TokenType    string
	Scope        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token should be refreshed before use.
// A nil expiry means the provider issued a non-expiring token.
func (c Connection) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.Add(skew).After(*c.ExpiresAt)
}

// TokenResponse models the provider token endpoint response.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	Scope        string
	Raw          map[string]any
}

// Profile is the normalized account profile returned by provider profile
// endpoints, used for the status display.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar"`
	ChannelSlug string `json:"channelSlug,omitempty"`
}

// Status is the connection status payload served to the dashboard.
type Status struct {
	Connected bool     `json:"connected"`
	User      *Profile `json:"user,omitempty"`
}
