package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wagerdash/connect-service/internal/config"
	"github.com/wagerdash/connect-service/internal/domain/connect"
	httptransport "github.com/wagerdash/connect-service/internal/http"
	httpHandler "github.com/wagerdash/connect-service/internal/http/handler"
	httpmiddleware "github.com/wagerdash/connect-service/internal/http/middleware"
	connectsvc "github.com/wagerdash/connect-service/internal/service/connect"
	"github.com/wagerdash/connect-service/internal/session"
)

var sessionSecret = []byte("0123456789abcdef0123456789abcdef")

func testConfig() config.Config {
	return config.Config{
		ServiceName:        "wagerdash-connect-test",
		SessionIssuer:      "wagerdash",
		LoginURL:           "/login",
		SettingsURL:        "/dashboard/settings",
		ConnectionsURL:     "/dashboard/connections",
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Authorization", "Content-Type"},
	}
}

func newTestRouter(t *testing.T, svc connectsvc.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	h := httpHandler.NewConnectHandler(svc, cfg, zap.NewNop())
	auth := &httpmiddleware.Auth{
		Verifier: session.NewVerifier(sessionSecret, cfg.SessionIssuer),
		LoginURL: cfg.LoginURL,
	}
	return httptransport.NewRouter(cfg, h, auth, nil)
}

func sessionCookie(t *testing.T, userID int64) *http.Cookie {
	t.Helper()
	token, err := session.Sign(sessionSecret, "wagerdash", session.Session{UserID: userID}, time.Minute)
	require.NoError(t, err)
	return &http.Cookie{Name: session.CookieName, Value: token}
}

func doRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthorizeRedirectsToProvider(t *testing.T) {
	svc := &fakeService{
		authorizeOut: &connectsvc.StartAuthorizationOutput{
			AuthorizationURL: "https://id.kick.com/oauth/authorize?state=S&code_challenge=C",
			State:            "S",
		},
	}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/kick/authorize", nil)
	req.AddCookie(sessionCookie(t, 42))
	w := doRequest(router, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, svc.authorizeOut.AuthorizationURL, w.Header().Get("Location"))
	require.Equal(t, int64(42), svc.lastUserID)
}

func TestAuthorizeWithoutSessionRedirectsToLogin(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/kick/authorize", nil)
	w := doRequest(router, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login", w.Header().Get("Location"))
	require.Zero(t, svc.authorizeCalls)
}

func TestAuthorizeTimezoneGate(t *testing.T) {
	svc := &fakeService{authorizeErr: connect.ErrPreconditionMissing}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/kick/authorize", nil)
	req.AddCookie(sessionCookie(t, 42))
	w := doRequest(router, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/dashboard/settings?error=timezone_required", w.Header().Get("Location"))
}

func TestAuthorizeUnknownProvider(t *testing.T) {
	svc := &fakeService{authorizeErr: connect.ErrProviderNotFound}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/stake/authorize", nil)
	req.AddCookie(sessionCookie(t, 42))
	w := doRequest(router, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/dashboard/connections?error=provider_not_found", w.Header().Get("Location"))
}

func TestCallbackSuccess(t *testing.T) {
	svc := &fakeService{callbackConn: &connect.Connection{Provider: "kick"}}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/kick/callback?code=CODE&state=S", nil)
	req.AddCookie(sessionCookie(t, 42))
	w := doRequest(router, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/dashboard/connections?success=kick_connected", w.Header().Get("Location"))
	require.Equal(t, connectsvc.CallbackInput{Provider: "kick", Code: "CODE", State: "S"}, svc.lastCallback)
}

func TestCallbackProviderError(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/kick/callback?error=access_denied", nil)
	req.AddCookie(sessionCookie(t, 42))
	w := doRequest(router, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/dashboard/connections?error=oauth_failed", w.Header().Get("Location"))
	require.Zero(t, svc.callbackCalls)
}

func TestCallbackMissingParams(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/kick/callback?code=CODE", nil)
	req.AddCookie(sessionCookie(t, 42))
	w := doRequest(router, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/dashboard/connections?error=invalid_request", w.Header().Get("Location"))
	require.Zero(t, svc.callbackCalls)
}

func TestCallbackErrorCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"invalid state", connect.ErrStateNotFound, "invalid_state"},
		{"expired state", connect.ErrStateExpired, "state_expired"},
		{"exchange failed", connect.ErrTokenExchange, "token_exchange_failed"},
		{"persistence failure", fmt.Errorf("persist connection: boom"), "server_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{callbackErr: tc.err}
			router := newTestRouter(t, svc)

			req := httptest.NewRequest(http.MethodGet, "/api/kick/callback?code=CODE&state=S", nil)
			req.AddCookie(sessionCookie(t, 42))
			w := doRequest(router, req)

			require.Equal(t, http.StatusFound, w.Code)
			loc, err := url.Parse(w.Header().Get("Location"))
			require.NoError(t, err)
			require.Equal(t, tc.code, loc.Query().Get("error"))
		})
	}
}

func TestCallbackWithoutSessionRedirectsToLogin(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/kick/callback?code=CODE&state=S", nil)
	w := doRequest(router, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login", w.Header().Get("Location"))
	require.Zero(t, svc.callbackCalls)
}

func TestStatusConnected(t *testing.T) {
	svc := &fakeService{status: &connect.Status{
		Connected: true,
		User:      &connect.Profile{ID: "123", Username: "streamer", Email: "s@example.com"},
	}}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/kick/status", nil)
	req.AddCookie(sessionCookie(t, 42))
	w := doRequest(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body connect.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, body.Connected)
	require.Equal(t, "streamer", body.User.Username)
}

func TestStatusUnauthorizedIsJSON(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/kick/status", nil)
	w := doRequest(router, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "authentication_required")
}

func TestStatusBearerTokenAccepted(t *testing.T) {
	svc := &fakeService{status: &connect.Status{Connected: false}}
	router := newTestRouter(t, svc)

	token, err := session.Sign(sessionSecret, "wagerdash", session.Session{UserID: 42}, time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/kick/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := doRequest(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"connected":false`)
}

func TestUnlink(t *testing.T) {
	svc := &fakeService{}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/kick/unlink", nil)
	req.AddCookie(sessionCookie(t, 42))
	w := doRequest(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)
	require.Equal(t, 1, svc.unlinkCalls)
}

func TestUnlinkUnknownProvider(t *testing.T) {
	svc := &fakeService{unlinkErr: connect.ErrProviderNotFound}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/stake/unlink", nil)
	req.AddCookie(sessionCookie(t, 42))
	w := doRequest(router, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "provider_not_found")
}

func TestProviders(t *testing.T) {
	svc := &fakeService{providers: []connectsvc.ProviderInfo{
		{Name: "kick", DisplayName: "Kick"},
	}}
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/providers", nil)
	w := doRequest(router, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"name":"kick"`)
}

// ---- fake service ----

type fakeService struct {
	providers    []connectsvc.ProviderInfo
	authorizeOut *connectsvc.StartAuthorizationOutput
	authorizeErr error
	callbackConn *connect.Connection
	callbackErr  error
	status       *connect.Status
	statusErr    error
	unlinkErr    error

	authorizeCalls int
	callbackCalls  int
	unlinkCalls    int
	lastUserID     int64
	lastCallback   connectsvc.CallbackInput
}

func (f *fakeService) Providers() []connectsvc.ProviderInfo {
	return f.providers
}

func (f *fakeService) StartAuthorization(_ context.Context, userID int64, _ string) (*connectsvc.StartAuthorizationOutput, error) {
	f.authorizeCalls++
	f.lastUserID = userID
	if f.authorizeErr != nil {
		return nil, f.authorizeErr
	}
	return f.authorizeOut, nil
}

func (f *fakeService) HandleCallback(_ context.Context, userID int64, in connectsvc.CallbackInput) (*connect.Connection, error) {
	f.callbackCalls++
	f.lastUserID = userID
	f.lastCallback = in
	if f.callbackErr != nil {
		return nil, f.callbackErr
	}
	return f.callbackConn, nil
}

func (f *fakeService) Status(_ context.Context, userID int64, _ string) (*connect.Status, error) {
	f.lastUserID = userID
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeService) Unlink(_ context.Context, userID int64, _ string) error {
	f.unlinkCalls++
	f.lastUserID = userID
	return f.unlinkErr
}
