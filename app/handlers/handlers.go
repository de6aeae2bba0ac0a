// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/donation-ledger/app/dto"
	businessflow "github.com/amirphl/donation-ledger/business_flow"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
)

const defaultRequestTimeout = 30 * time.Second

// baseHandler carries the response helpers every handler shares
type baseHandler struct {
	validator *validator.Validate
}

func newBaseHandler() baseHandler {
	return baseHandler{validator: validator.New()}
}

// ErrorResponse standard JSON error
func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

// SuccessResponse standard JSON success
func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validate runs struct validation and returns the human readable messages
func (h *baseHandler) validate(req any) []string {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

// createRequestContext builds the request-scoped context passed to business flows
func (h *baseHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.Context(), defaultRequestTimeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestid.FromContext(c))
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, defaultRequestTimeout)
	return ctx, cancel
}

func (h *baseHandler) clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(requestid.FromContext(c))
	return metadata
}

type errorMapping struct {
	target error
	status int
	code   string
}

// businessErrors is checked in order, so the more specific sentinels come first
var businessErrors = []errorMapping{
	{businessflow.ErrSignatureInvalid, fiber.StatusBadRequest, "SIGNATURE_INVALID"},
	{businessflow.ErrDonationNotFound, fiber.StatusNotFound, "DONATION_NOT_FOUND"},
	{businessflow.ErrCampaignNotFound, fiber.StatusNotFound, "CAMPAIGN_NOT_FOUND"},
	{businessflow.ErrTransactionNotFound, fiber.StatusNotFound, "TRANSACTION_NOT_FOUND"},
	{businessflow.ErrInsufficientFunds, fiber.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
	{businessflow.ErrDuplicateGatewayPayment, fiber.StatusConflict, "DUPLICATE_GATEWAY_PAYMENT"},
	{businessflow.ErrLedgerBusy, fiber.StatusConflict, "LEDGER_BUSY"},
	{businessflow.ErrCampaignNotActive, fiber.StatusUnprocessableEntity, "CAMPAIGN_NOT_ACTIVE"},
	{businessflow.ErrGatewayUnavailable, fiber.StatusBadGateway, "GATEWAY_UNAVAILABLE"},
	{businessflow.ErrBlobStoreDisabled, fiber.StatusServiceUnavailable, "BLOB_STORE_DISABLED"},
	{businessflow.ErrIncorrectPassword, fiber.StatusUnauthorized, "INCORRECT_CREDENTIALS"},
	{businessflow.ErrAccountInactive, fiber.StatusForbidden, "ACCOUNT_INACTIVE"},
}

// businessErrorResponse maps flow errors to HTTP statuses. Unrecognized
// errors are logged and reported as fallbackCode with a 500.
func (h *baseHandler) businessErrorResponse(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	for _, m := range businessErrors {
		if errors.Is(err, m.target) {
			return h.ErrorResponse(c, m.status, m.target.Error(), m.code, nil)
		}
	}
	if businessflow.IsValidationError(err) {
		return h.ErrorResponse(c, fiber.StatusBadRequest, validationMessage(err), "VALIDATION_ERROR", nil)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return h.ErrorResponse(c, fiber.StatusGatewayTimeout, "Request timed out", "REQUEST_TIMEOUT", nil)
	}

	log.Printf("%s: %v", fallbackCode, err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

// validationMessage returns the innermost sentinel text of a validation failure
func validationMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func parseUintParam(c fiber.Ctx, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func parsePaging(c fiber.Ctx) (page, pageSize int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	pageSize, _ = strconv.Atoi(c.Query("page_size", strconv.Itoa(utils.DefaultPageSize)))
	return page, pageSize
}

func optionalQuery(c fiber.Ctx, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "uuid":
		return err.Field() + " must be a valid UUID"
	case "hexadecimal":
		return err.Field() + " must be hex encoded"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
