package handlers

import (
	"fmt"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/middleware"
	businessflow "github.com/amirphl/donation-ledger/business_flow"
	"github.com/gofiber/fiber/v3"
)

// AdminHandlerInterface defines the contract for admin handlers
type AdminHandlerInterface interface {
	Login(c fiber.Ctx) error
	Refresh(c fiber.Ctx) error
	Logout(c fiber.Ctx) error
	ExportLedger(c fiber.Ctx) error
	Reconciliation(c fiber.Ctx) error
}

// AdminHandler implements AdminHandlerInterface
type AdminHandler struct {
	baseHandler
	auth    businessflow.AdminAuthFlow
	reports businessflow.LedgerReportFlow
}

func NewAdminHandler(auth businessflow.AdminAuthFlow, reports businessflow.LedgerReportFlow) AdminHandlerInterface {
	return &AdminHandler{
		baseHandler: newBaseHandler(),
		auth:        auth,
		reports:     reports,
	}
}

// Login authenticates an admin with username and password
// @Summary Admin login
// @Tags Admin Authentication
// @Accept json
// @Produce json
// @Param request body dto.AdminLoginRequest true "Admin credentials"
// @Success 200 {object} dto.APIResponse{data=dto.AdminLoginResponse} "Login successful"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 401 {object} dto.APIResponse "Incorrect credentials"
// @Failure 403 {object} dto.APIResponse "Admin inactive"
// @Router /api/v1/auth/admin/login [post]
func (h *AdminHandler) Login(c fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/auth/admin/login")
	defer cancel()

	result, err := h.auth.Login(ctx, &req, h.clientMetadata(c))
	if err != nil {
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Admin inactive", "ADMIN_INACTIVE", nil)
		}
		if businessflow.IsIncorrectPassword(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Incorrect username or password", "INCORRECT_CREDENTIALS", nil)
		}
		return h.businessErrorResponse(c, err, "Login failed", "LOGIN_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Login successful", result)
}

// Refresh exchanges a refresh token for a new session; the old refresh token is revoked
// @Summary Refresh admin session
// @Tags Admin Authentication
// @Accept json
// @Produce json
// @Param request body dto.AdminRefreshRequest true "Refresh token"
// @Success 200 {object} dto.APIResponse{data=dto.AdminSessionDTO} "Session refreshed"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 401 {object} dto.APIResponse "Refresh token invalid, expired or revoked"
// @Failure 403 {object} dto.APIResponse "Admin inactive"
// @Router /api/v1/auth/admin/refresh [post]
func (h *AdminHandler) Refresh(c fiber.Ctx) error {
	var req dto.AdminRefreshRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/auth/admin/refresh")
	defer cancel()

	session, err := h.auth.Refresh(ctx, &req, h.clientMetadata(c))
	if err != nil {
		if businessflow.IsAccountInactive(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Admin inactive", "ADMIN_INACTIVE", nil)
		}
		if businessflow.IsInvalidSession(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Refresh token is invalid or expired", "INVALID_REFRESH_TOKEN", nil)
		}
		return h.businessErrorResponse(c, err, "Refresh failed", "REFRESH_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Session refreshed", session)
}

// Logout revokes the bearer access token and, if supplied, the refresh token
// @Summary Admin logout
// @Tags Admin Authentication
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.AdminLogoutRequest false "Refresh token to revoke"
// @Success 200 {object} dto.APIResponse "Logged out"
// @Failure 401 {object} dto.APIResponse "Not authenticated"
// @Router /api/v1/auth/admin/logout [post]
func (h *AdminHandler) Logout(c fiber.Ctx) error {
	adminID, ok := middleware.GetAdminIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Admin ID not found in context", "MISSING_ADMIN_ID", nil)
	}
	accessToken, ok := middleware.GetAccessTokenFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Access token not found in context", "MISSING_ACCESS_TOKEN", nil)
	}

	var req dto.AdminLogoutRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/auth/admin/logout")
	defer cancel()

	if err := h.auth.Logout(ctx, adminID, accessToken, &req, h.clientMetadata(c)); err != nil {
		if businessflow.IsInvalidSession(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Refresh token is invalid", "INVALID_REFRESH_TOKEN", nil)
		}
		return h.businessErrorResponse(c, err, "Logout failed", "LOGOUT_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Logged out", nil)
}

// ExportLedger streams the campaign ledger as an XLSX workbook
// @Summary Export campaign ledger
// @Tags Admin Ledger
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param upload query bool false "Also archive the workbook in object storage"
// @Success 200 {file} file
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 503 {object} dto.APIResponse "Archive storage not configured"
// @Router /api/v1/admin/campaigns/{id}/ledger.xlsx [get]
func (h *AdminHandler) ExportLedger(c fiber.Ctx) error {
	adminID, ok := middleware.GetAdminIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Admin ID not found in context", "MISSING_ADMIN_ID", nil)
	}
	campaignID, ok := parseUintParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign id", "INVALID_CAMPAIGN_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/campaigns/:id/ledger.xlsx")
	defer cancel()

	result, err := h.reports.ExportCampaignLedger(ctx, &dto.ExportLedgerRequest{
		CampaignID: campaignID,
		Upload:     fiber.Query[bool](c, "upload"),
		AdminID:    adminID,
	}, h.clientMetadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to export ledger", "LEDGER_EXPORT_FAILED")
	}

	c.Set(fiber.HeaderContentType, businessflow.XLSXContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", result.FileName))
	if result.ObjectURL != "" {
		c.Set("X-Ledger-Archive-URL", result.ObjectURL)
	}
	return c.Status(fiber.StatusOK).Send(result.Content)
}

// Reconciliation compares stored campaign aggregates with the ledger rows
// @Summary Ledger reconciliation report
// @Tags Admin Ledger
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=dto.ReconciliationReport}
// @Router /api/v1/admin/reconciliation [get]
func (h *AdminHandler) Reconciliation(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/reconciliation")
	defer cancel()

	report, err := h.reports.Reconcile(ctx)
	if err != nil {
		return h.businessErrorResponse(c, err, "Reconciliation failed", "RECONCILIATION_FAILED")
	}

	message := "Ledger is consistent"
	if report.MismatchCount > 0 {
		message = fmt.Sprintf("%d campaign(s) out of balance", report.MismatchCount)
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, report)
}
