package connect

import "errors"

var (
	// ErrProviderNotFound signals a provider name with no configuration.
	ErrProviderNotFound = errors.New("connect: provider not found")
	// ErrInvalidRequest indicates caller input validation errors.
	ErrInvalidRequest = errors.New("connect: invalid request")
	// ErrStateNotFound indicates the callback state matched no stored record.
	ErrStateNotFound = errors.New("connect: state not found")
	// ErrStateExpired indicates the stored state record passed its TTL.
	ErrStateExpired = errors.New("connect: state expired")
	// ErrTokenExchange indicates the provider rejected the code exchange.
	ErrTokenExchange = errors.New("connect: token exchange failed")
	// ErrTokenRefresh indicates the provider rejected a refresh attempt.
	ErrTokenRefresh = errors.New("connect: token refresh failed")
	// ErrConnectionNotFound signals no linked account for the user/provider.
	ErrConnectionNotFound = errors.New("connect: connection not found")
	// ErrPreconditionMissing signals required account setup is incomplete.
	ErrPreconditionMissing = errors.New("connect: precondition missing")
)
