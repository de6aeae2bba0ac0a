package handlers

import (
	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/middleware"
	businessflow "github.com/amirphl/donation-ledger/business_flow"
	"github.com/amirphl/donation-ledger/models"
	"github.com/gofiber/fiber/v3"
)

// CampaignLedgerHandlerInterface defines the contract for campaign fund handlers
type CampaignLedgerHandlerInterface interface {
	GetFunds(c fiber.Ctx) error
	ListTransactions(c fiber.Ctx) error
	ListPayouts(c fiber.Ctx) error
	GetTransaction(c fiber.Ctx) error
	Disburse(c fiber.Ctx) error
}

// CampaignLedgerHandler serves campaign balances, the public ledger and disbursements
type CampaignLedgerHandler struct {
	baseHandler
	reports       businessflow.LedgerReportFlow
	disbursements businessflow.DisbursementFlow
}

func NewCampaignLedgerHandler(reports businessflow.LedgerReportFlow, disbursements businessflow.DisbursementFlow) CampaignLedgerHandlerInterface {
	return &CampaignLedgerHandler{
		baseHandler:   newBaseHandler(),
		reports:       reports,
		disbursements: disbursements,
	}
}

// GetFunds returns the campaign fund summary
// @Summary Campaign funds
// @Tags Campaigns
// @Produce json
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.CampaignFundsDTO}
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Router /api/v1/campaigns/{id}/funds [get]
func (h *CampaignLedgerHandler) GetFunds(c fiber.Ctx) error {
	campaignID, ok := parseUintParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign id", "INVALID_CAMPAIGN_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/funds")
	defer cancel()

	funds, err := h.reports.GetCampaignFunds(ctx, campaignID)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to get campaign funds", "GET_FUNDS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign funds retrieved", funds)
}

// ListTransactions returns the public ledger of a campaign. Donor identities are omitted.
// @Summary Campaign transactions
// @Tags Campaigns
// @Produce json
// @Param id path int true "Campaign ID"
// @Param type query string false "donation, disbursement or refund"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} dto.APIResponse{data=dto.ListTransactionsResponse}
// @Router /api/v1/campaigns/{id}/transactions [get]
func (h *CampaignLedgerHandler) ListTransactions(c fiber.Ctx) error {
	req, ok := h.listRequest(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign id", "INVALID_CAMPAIGN_ID", nil)
	}
	req.Type = optionalQuery(c, "type")
	if errs := h.validate(req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/transactions")
	defer cancel()

	result, err := h.reports.ListCampaignTransactions(ctx, req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list transactions", "LIST_TRANSACTIONS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Transactions retrieved", result)
}

// ListPayouts returns the disbursements made from a campaign
// @Summary Campaign payouts
// @Tags Campaigns
// @Produce json
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.ListTransactionsResponse}
// @Router /api/v1/campaigns/{id}/payouts [get]
func (h *CampaignLedgerHandler) ListPayouts(c fiber.Ctx) error {
	req, ok := h.listRequest(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign id", "INVALID_CAMPAIGN_ID", nil)
	}
	if errs := h.validate(req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/payouts")
	defer cancel()

	result, err := h.reports.ListPayouts(ctx, req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list payouts", "LIST_PAYOUTS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Payouts retrieved", result)
}

func (h *CampaignLedgerHandler) listRequest(c fiber.Ctx) (*dto.ListCampaignTransactionsRequest, bool) {
	campaignID, ok := parseUintParam(c, "id")
	if !ok {
		return nil, false
	}
	page, pageSize := parsePaging(c)
	return &dto.ListCampaignTransactionsRequest{
		CampaignID: campaignID,
		Page:       page,
		PageSize:   pageSize,
	}, true
}

// GetTransaction looks up a ledger entry by its public identifier
// @Summary Get transaction
// @Tags Transactions
// @Produce json
// @Param transaction_id path string true "Transaction ID" example(TXN3F2A9C1B7D4E)
// @Success 200 {object} dto.APIResponse{data=dto.TransactionDTO}
// @Failure 404 {object} dto.APIResponse "Transaction not found"
// @Router /api/v1/transactions/{transaction_id} [get]
func (h *CampaignLedgerHandler) GetTransaction(c fiber.Ctx) error {
	transactionID := c.Params("transaction_id")
	if !models.IsValidTransactionID(transactionID) {
		return h.ErrorResponse(c, fiber.StatusNotFound, "transaction not found", "TRANSACTION_NOT_FOUND", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/transactions/:transaction_id")
	defer cancel()

	txn, err := h.reports.GetTransaction(ctx, transactionID)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to get transaction", "GET_TRANSACTION_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Transaction retrieved", txn)
}

// Disburse moves funds out of a campaign to its beneficiary
// @Summary Disburse campaign funds
// @Tags Campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param request body dto.DisburseRequest true "Disbursement"
// @Success 201 {object} dto.APIResponse{data=dto.DisburseResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 409 {object} dto.APIResponse "Ledger busy"
// @Failure 422 {object} dto.APIResponse "Insufficient funds"
// @Router /api/v1/campaigns/{id}/disburse [post]
func (h *CampaignLedgerHandler) Disburse(c fiber.Ctx) error {
	adminID, ok := middleware.GetAdminIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Admin ID not found in context", "MISSING_ADMIN_ID", nil)
	}
	campaignID, ok := parseUintParam(c, "id")
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign id", "INVALID_CAMPAIGN_ID", nil)
	}

	var req dto.DisburseRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.CampaignID = campaignID
	req.AdminID = adminID

	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/campaigns/:id/disburse")
	defer cancel()

	result, err := h.disbursements.Disburse(ctx, &req, h.clientMetadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Disbursement failed", "DISBURSEMENT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Funds disbursed", result)
}
