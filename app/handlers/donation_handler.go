package handlers

import (
	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/middleware"
	businessflow "github.com/amirphl/donation-ledger/business_flow"
	"github.com/gofiber/fiber/v3"
)

// WebhookSignatureHeader carries the gateway HMAC over the raw webhook body
const WebhookSignatureHeader = "X-Razorpay-Signature"

// DonationHandlerInterface defines the contract for donation handlers
type DonationHandlerInterface interface {
	CreateOrder(c fiber.Ctx) error
	VerifyPayment(c fiber.Ctx) error
	Webhook(c fiber.Ctx) error
	GetDonation(c fiber.Ctx) error
	ListMyDonations(c fiber.Ctx) error
}

// DonationHandler serves the donor facing donation endpoints and the gateway webhook
type DonationHandler struct {
	baseHandler
	flow businessflow.DonationFlow
}

func NewDonationHandler(flow businessflow.DonationFlow) DonationHandlerInterface {
	return &DonationHandler{
		baseHandler: newBaseHandler(),
		flow:        flow,
	}
}

// CreateOrder opens a gateway order for a new donation
// @Summary Create donation order
// @Tags Donations
// @Accept json
// @Produce json
// @Param request body dto.CreateDonationOrderRequest true "Donation pledge"
// @Success 201 {object} dto.APIResponse{data=dto.CreateDonationOrderResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 502 {object} dto.APIResponse "Gateway unavailable"
// @Router /api/v1/donations/create-order [post]
func (h *DonationHandler) CreateOrder(c fiber.Ctx) error {
	donorID, ok := middleware.GetDonorIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Donor ID not found in context", "MISSING_DONOR_ID", nil)
	}

	var req dto.CreateDonationOrderRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.DonorID = donorID

	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/donations/create-order")
	defer cancel()

	result, err := h.flow.CreateOrder(ctx, &req, h.clientMetadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to create donation order", "CREATE_ORDER_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Donation order created", result)
}

// VerifyPayment confirms a donation from the checkout callback
// @Summary Verify donation payment
// @Tags Donations
// @Accept json
// @Produce json
// @Param request body dto.VerifyPaymentRequest true "Checkout callback fields"
// @Success 200 {object} dto.APIResponse{data=dto.VerifyPaymentResponse}
// @Failure 400 {object} dto.APIResponse "Invalid signature or validation error"
// @Failure 404 {object} dto.APIResponse "Donation not found"
// @Failure 409 {object} dto.APIResponse "Payment already attached to another donation"
// @Router /api/v1/donations/verify-payment [post]
func (h *DonationHandler) VerifyPayment(c fiber.Ctx) error {
	donorID, ok := middleware.GetDonorIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Donor ID not found in context", "MISSING_DONOR_ID", nil)
	}

	var req dto.VerifyPaymentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.DonorID = donorID

	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/donations/verify-payment")
	defer cancel()

	result, err := h.flow.VerifyPayment(ctx, &req, h.clientMetadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Payment verification failed", "PAYMENT_VERIFICATION_FAILED")
	}

	message := "Payment verified"
	if result.Status == dto.ConfirmStatusAlreadyProcessed {
		message = "Payment already processed"
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, result)
}

// Webhook receives gateway events. The signature is checked over the raw body
// before anything is parsed.
// @Summary Payment gateway webhook
// @Tags Donations
// @Accept json
// @Produce json
// @Param X-Razorpay-Signature header string true "HMAC-SHA256 of the raw body"
// @Success 200 {object} dto.APIResponse{data=dto.WebhookResult}
// @Failure 400 {object} dto.APIResponse "Invalid signature or payload"
// @Router /api/v1/donations/webhook [post]
func (h *DonationHandler) Webhook(c fiber.Ctx) error {
	signature := c.Get(WebhookSignatureHeader)
	if signature == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Signature header is required", "MISSING_SIGNATURE", nil)
	}
	body := append([]byte(nil), c.Body()...)

	ctx, cancel := h.createRequestContext(c, "/api/v1/donations/webhook")
	defer cancel()

	result, err := h.flow.HandleWebhook(ctx, body, signature, h.clientMetadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Webhook processing failed", "WEBHOOK_FAILED")
	}

	message := "Webhook processed"
	if !result.Handled {
		message = "Webhook event ignored"
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, result)
}

// GetDonation returns one of the caller's donations
// @Summary Get donation
// @Tags Donations
// @Produce json
// @Param uuid path string true "Donation UUID"
// @Success 200 {object} dto.APIResponse{data=dto.DonationDTO}
// @Failure 404 {object} dto.APIResponse "Donation not found"
// @Router /api/v1/donations/{uuid} [get]
func (h *DonationHandler) GetDonation(c fiber.Ctx) error {
	donorID, ok := middleware.GetDonorIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Donor ID not found in context", "MISSING_DONOR_ID", nil)
	}

	req := dto.GetDonationRequest{DonationID: c.Params("uuid"), DonorID: donorID}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/donations/:uuid")
	defer cancel()

	result, err := h.flow.GetDonation(ctx, &req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to get donation", "GET_DONATION_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Donation retrieved", result)
}

// ListMyDonations pages through the caller's donations, newest first
// @Summary List my donations
// @Tags Donations
// @Produce json
// @Param status query string false "initiated, completed or failed"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} dto.APIResponse{data=dto.ListDonationsResponse}
// @Router /api/v1/donations/my [get]
func (h *DonationHandler) ListMyDonations(c fiber.Ctx) error {
	donorID, ok := middleware.GetDonorIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Donor ID not found in context", "MISSING_DONOR_ID", nil)
	}

	page, pageSize := parsePaging(c)
	req := dto.ListMyDonationsRequest{
		DonorID:  donorID,
		Status:   optionalQuery(c, "status"),
		Page:     page,
		PageSize: pageSize,
	}
	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/donations/my")
	defer cancel()

	result, err := h.flow.ListMyDonations(ctx, &req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list donations", "LIST_DONATIONS_FAILED")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Donations retrieved", result)
}
