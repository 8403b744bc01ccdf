// Package session verifies the signed session tokens issued by the
// WagerDash auth tier. This service never mints user sessions itself outside
// of tests; it only needs to know who is calling.
package session

import (
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

// CookieName is the session cookie set by the dashboard.
const CookieName = "wd_session"

// Session identifies the authenticated principal.
type Session struct {
	UserID int64
	Email  string
	Name   string
}

type customClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Verifier validates HS256 session tokens against the shared secret.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier constructs a Verifier. The issuer is enforced when non-empty.
func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer}
}

// Parse validates the token signature and expiry and returns the session.
func (v *Verifier) Parse(token string) (*Session, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}

	var std gojwt.Claims
	var custom customClaims
	if err := parsed.Claims(v.secret, &std, &custom); err != nil {
		return nil, fmt.Errorf("verify session token: %w", err)
	}

	expected := gojwt.Expected{Time: time.Now()}
	if v.issuer != "" {
		expected.Issuer = v.issuer
	}
	if err := std.Validate(expected); err != nil {
		return nil, fmt.Errorf("validate session claims: %w", err)
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("invalid subject claim %q", std.Subject)
	}

	return &Session{UserID: userID, Email: custom.Email, Name: custom.Name}, nil
}

// Sign mints a session token for the given principal. Used by tests and
// local development tooling.
func Sign(secret []byte, issuer string, s Session, ttl time.Duration) (string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: secret},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	std := gojwt.Claims{
		Subject:   strconv.FormatInt(s.UserID, 10),
		Issuer:    issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(now.Add(ttl)),
		NotBefore: gojwt.NewNumericDate(now),
	}
	custom := customClaims{Email: s.Email, Name: s.Name}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize session token: %w", err)
	}
	return token, nil
}
