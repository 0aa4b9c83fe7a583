package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"github.com/safetrack/trustsync/config"
	challengemw "github.com/safetrack/trustsync/middleware/challenge"
	"github.com/safetrack/trustsync/middleware/ratelimit"
	"github.com/safetrack/trustsync/services/audit"
	"github.com/safetrack/trustsync/services/challenge"
	"github.com/safetrack/trustsync/services/logging"
	"github.com/safetrack/trustsync/services/mfa"
	"go.uber.org/zap"
)

type Handler struct {
	mfa       *mfa.Service
	challenge *challenge.Service
	logger    *logging.Service
	apiSpec   *openapi3.T
}

func NewHandler(cfg *config.Config, mfaService *mfa.Service, challengeService *challenge.Service, logger *logging.Service) *Handler {
	return &Handler{
		mfa:       mfaService,
		challenge: challengeService,
		logger:    logger,
		apiSpec:   buildOpenAPISpec(cfg.App.Name),
	}
}

// RegisterRoutes wires the MFA endpoints onto the server. Every /auth/mfa
// route sits behind a per-IP rate limit; verify additionally requires a
// challenge token from first-factor login.
func (h *Handler) RegisterRoutes(srv *Server) {
	srv.Get("/healthz", h.Health)
	srv.Get("/openapi.json", h.OpenAPIJSON)
	srv.Get("/openapi.yaml", h.OpenAPIYAML)

	group := srv.Group("/auth/mfa", ratelimit.Middleware(&ratelimit.Config{
		Rate:   30,
		Period: time.Minute,
	}))

	group.POST("/setup", h.Setup)
	group.POST("/confirm", h.Confirm)
	group.POST("/verify", h.Verify, challengemw.RequireChallenge(h.challenge))
	group.POST("/challenge", h.IssueChallenge)
	group.POST("/send-code", h.SendCode)
	group.POST("/backup-codes/regenerate", h.RegenerateBackupCodes)
	group.POST("/disable", h.Disable)
	group.GET("/status/:user_id", h.Status)
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type setupRequest struct {
	UserID  uint   `json:"user_id"`
	Contact string `json:"contact"`
}

func (h *Handler) Setup(c echo.Context) error {
	var req setupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	result, err := h.mfa.Setup(req.UserID, req.Contact)
	if err != nil {
		if errors.Is(err, mfa.ErrAlreadyEnabled) {
			return echo.NewHTTPError(http.StatusConflict, "MFA is already enabled")
		}
		return h.internalError(c, err, "MFA setup failed")
	}

	return c.JSON(http.StatusOK, result)
}

type codeRequest struct {
	UserID uint   `json:"user_id"`
	Code   string `json:"code"`
}

func (h *Handler) Confirm(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == 0 || req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and code are required")
	}

	verdict, err := h.mfa.Confirm(req.UserID, req.Code, requestMeta(c))
	if err != nil {
		return h.internalError(c, err, "MFA confirmation failed")
	}

	return c.JSON(verdictStatus(verdict), verdict)
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *Handler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code is required")
	}

	userID := challengemw.GetUserID(c)
	if userID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "challenge token required")
	}

	verdict, err := h.mfa.Verify(userID, req.Code, requestMeta(c))
	if err != nil {
		return h.internalError(c, err, "MFA verification failed")
	}

	return c.JSON(verdictStatus(verdict), verdict)
}

type challengeRequest struct {
	UserID uint `json:"user_id"`
}

type challengeResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// IssueChallenge hands out the short-lived token that gates Verify. The
// caller is the first-factor login flow, not the end user.
func (h *Handler) IssueChallenge(c echo.Context) error {
	var req challengeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	token, err := h.challenge.Issue(req.UserID)
	if err != nil {
		return h.internalError(c, err, "challenge issuance failed")
	}

	return c.JSON(http.StatusOK, challengeResponse{
		Token:     token,
		ExpiresIn: h.challenge.ExpirySeconds(),
	})
}

type userRequest struct {
	UserID uint `json:"user_id"`
}

func (h *Handler) SendCode(c echo.Context) error {
	var req userRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	if err := h.mfa.SendLoginCode(req.UserID, requestMeta(c)); err != nil {
		if errors.Is(err, mfa.ErrNotConfigured) {
			return echo.NewHTTPError(http.StatusNotFound, "MFA is not configured")
		}
		if errors.Is(err, mfa.ErrNotEnabled) {
			return echo.NewHTTPError(http.StatusConflict, "MFA is not enabled")
		}
		return h.internalError(c, err, "login code dispatch failed")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "sent"})
}

func (h *Handler) RegenerateBackupCodes(c echo.Context) error {
	var req userRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	codes, err := h.mfa.RegenerateBackupCodes(req.UserID, requestMeta(c))
	if err != nil {
		if errors.Is(err, mfa.ErrNotConfigured) {
			return echo.NewHTTPError(http.StatusNotFound, "MFA is not configured")
		}
		if errors.Is(err, mfa.ErrNotEnabled) {
			return echo.NewHTTPError(http.StatusConflict, "MFA is not enabled")
		}
		return h.internalError(c, err, "backup code regeneration failed")
	}

	return c.JSON(http.StatusOK, map[string][]string{"backup_codes": codes})
}

type disableRequest struct {
	UserID        uint  `json:"user_id"`
	ActingAdminID *uint `json:"acting_admin_id,omitempty"`
}

func (h *Handler) Disable(c echo.Context) error {
	var req disableRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	if err := h.mfa.Disable(req.UserID, req.ActingAdminID, requestMeta(c)); err != nil {
		if errors.Is(err, mfa.ErrNotConfigured) {
			return echo.NewHTTPError(http.StatusNotFound, "MFA is not configured")
		}
		return h.internalError(c, err, "MFA disable failed")
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "disabled"})
}

func (h *Handler) Status(c echo.Context) error {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil || userID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
	}

	status, err := h.mfa.Status(uint(userID))
	if err != nil {
		if errors.Is(err, mfa.ErrNotConfigured) {
			return echo.NewHTTPError(http.StatusNotFound, "MFA is not configured")
		}
		return h.internalError(c, err, "MFA status lookup failed")
	}

	return c.JSON(http.StatusOK, status)
}

func requestMeta(c echo.Context) audit.Meta {
	return audit.Meta{
		SourceAddr: c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	}
}

// verdictStatus maps domain verdicts onto HTTP: success 200, invalid 401,
// rate limited 429, missing or disabled enrollment 409.
func verdictStatus(v *mfa.Verdict) int {
	switch v.Result {
	case mfa.ResultSuccess:
		return http.StatusOK
	case mfa.ResultRateLimited:
		return http.StatusTooManyRequests
	case mfa.ResultNotConfigured, mfa.ResultNotEnabled:
		return http.StatusConflict
	default:
		return http.StatusUnauthorized
	}
}

func (h *Handler) internalError(c echo.Context, err error, msg string) error {
	if h.logger != nil {
		h.logger.Error(msg, zap.Error(err))
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
