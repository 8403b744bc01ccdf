package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wagerdash/connect-service/internal/config"
	"github.com/wagerdash/connect-service/internal/domain/connect"
	"github.com/wagerdash/connect-service/internal/http/middleware"
	connectsvc "github.com/wagerdash/connect-service/internal/service/connect"
)

// ConnectHandler serves the account-linking routes.
type ConnectHandler struct {
	Service connectsvc.Service
	Config  config.Config
	Logger  *zap.Logger
}

// NewConnectHandler creates the handler set.
func NewConnectHandler(service connectsvc.Service, cfg config.Config, logger *zap.Logger) *ConnectHandler {
	return &ConnectHandler{Service: service, Config: cfg, Logger: logger}
}

// Providers lists the enabled OAuth providers for the dashboard UI.
func (h *ConnectHandler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.Providers())
}

// Authorize starts the PKCE flow and redirects the browser to the provider.
func (h *ConnectHandler) Authorize(c *gin.Context) {
	s, ok := middleware.GetSession(c)
	if !ok {
		c.Redirect(http.StatusFound, h.Config.LoginURL)
		return
	}
	provider := c.Param("provider")

	out, err := h.Service.StartAuthorization(c.Request.Context(), s.UserID, provider)
	if err != nil {
		switch {
		case errors.Is(err, connect.ErrProviderNotFound):
			h.redirectWithQuery(c, h.Config.ConnectionsURL, "error", "provider_not_found")
		case errors.Is(err, connect.ErrPreconditionMissing):
			h.redirectWithQuery(c, h.Config.SettingsURL, "error", "timezone_required")
		default:
			h.log().Error("authorize failed",
				zap.String("provider", provider), zap.Int64("user_id", s.UserID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":             "server_error",
				"error_description": "Could not start the authorization flow.",
			})
		}
		return
	}

	c.Redirect(http.StatusFound, out.AuthorizationURL)
}

// Callback finishes the PKCE flow. It always answers with a redirect back to
// the connections page; outcomes travel as query-string codes.
func (h *ConnectHandler) Callback(c *gin.Context) {
	s, ok := middleware.GetSession(c)
	if !ok {
		c.Redirect(http.StatusFound, h.Config.LoginURL)
		return
	}
	provider := c.Param("provider")

	if providerErr := strings.TrimSpace(c.Query("error")); providerErr != "" {
		h.log().Warn("provider reported authorization error",
			zap.String("provider", provider), zap.String("oauth_error", providerErr))
		h.redirectWithQuery(c, h.Config.ConnectionsURL, "error", "oauth_failed")
		return
	}

	input := connectsvc.CallbackInput{
		Provider: provider,
		Code:     c.Query("code"),
		State:    c.Query("state"),
	}
	if strings.TrimSpace(input.Code) == "" || strings.TrimSpace(input.State) == "" {
		h.redirectWithQuery(c, h.Config.ConnectionsURL, "error", "invalid_request")
		return
	}

	if _, err := h.Service.HandleCallback(c.Request.Context(), s.UserID, input); err != nil {
		h.redirectWithQuery(c, h.Config.ConnectionsURL, "error", callbackErrorCode(err))
		h.logCallbackFailure(provider, s.UserID, err)
		return
	}

	h.redirectWithQuery(c, h.Config.ConnectionsURL, "success", provider+"_connected")
}

// Status reports whether the provider account is linked.
func (h *ConnectHandler) Status(c *gin.Context) {
	s, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
		return
	}
	provider := c.Param("provider")

	status, err := h.Service.Status(c.Request.Context(), s.UserID, provider)
	if err != nil {
		if errors.Is(err, connect.ErrProviderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":             "provider_not_found",
				"error_description": "Unknown provider.",
			})
			return
		}
		h.log().Error("status failed",
			zap.String("provider", provider), zap.Int64("user_id", s.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Could not load connection status.",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// Unlink disconnects the provider account. The local record is removed even
// when upstream revocation fails.
func (h *ConnectHandler) Unlink(c *gin.Context) {
	s, ok := middleware.GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication_required"})
		return
	}
	provider := c.Param("provider")

	if err := h.Service.Unlink(c.Request.Context(), s.UserID, provider); err != nil {
		if errors.Is(err, connect.ErrProviderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":             "provider_not_found",
				"error_description": "Unknown provider.",
			})
			return
		}
		h.log().Error("unlink failed",
			zap.String("provider", provider), zap.Int64("user_id", s.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Could not disconnect the account.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// callbackErrorCode maps service failures to the opaque codes the dashboard
// understands. Detail stays in the server logs.
func callbackErrorCode(err error) string {
	switch {
	case errors.Is(err, connect.ErrProviderNotFound):
		return "provider_not_found"
	case errors.Is(err, connect.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, connect.ErrStateNotFound):
		return "invalid_state"
	case errors.Is(err, connect.ErrStateExpired):
		return "state_expired"
	case errors.Is(err, connect.ErrTokenExchange):
		return "token_exchange_failed"
	default:
		return "server_error"
	}
}

func (h *ConnectHandler) logCallbackFailure(provider string, userID int64, err error) {
	fields := []zap.Field{
		zap.String("provider", provider),
		zap.Int64("user_id", userID),
		zap.Error(err),
	}
	if callbackErrorCode(err) == "server_error" {
		h.log().Error("callback failed", fields...)
		return
	}
	h.log().Warn("callback rejected", fields...)
}

func (h *ConnectHandler) redirectWithQuery(c *gin.Context, base, key, value string) {
	target, err := url.Parse(base)
	if err != nil {
		c.Redirect(http.StatusFound, base)
		return
	}
	q := target.Query()
	q.Set(key, value)
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

func (h *ConnectHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}
