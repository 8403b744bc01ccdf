package pkce

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifierEntropy(t *testing.T) {
	v1, err := Verifier()
	require.NoError(t, err)
	v2, err := Verifier()
	require.NoError(t, err)
	require.NotEqual(t, v1, v2)

	raw, err := base64.RawURLEncoding.DecodeString(v1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), 32)
}

func TestChallengeS256(t *testing.T) {
	// Fixed vector from RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	require.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", Challenge(verifier))

	// The transform is deterministic per verifier.
	v, err := Verifier()
	require.NoError(t, err)
	require.Equal(t, Challenge(v), Challenge(v))
	require.NotEqual(t, Challenge(v), Challenge(v+"x"))
}

func TestStateIndependence(t *testing.T) {
	s1, err := State()
	require.NoError(t, err)
	s2, err := State()
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)

	raw, err := base64.RawURLEncoding.DecodeString(s1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), 32)
}
