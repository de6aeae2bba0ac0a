// Package businessflow contains the donation confirmation, fund ledger and disbursement use cases
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Lookup errors
	ErrDonationNotFound    = errors.New("donation not found")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAdminNotFound       = errors.New("admin not found")

	// Validation errors
	ErrInvalidAmount             = errors.New("amount must be positive")
	ErrAmountTooLow              = errors.New("amount is below the minimum donation")
	ErrAmountTooHigh             = errors.New("amount is above the maximum donation")
	ErrAmountPrecision           = errors.New("amount must have at most two decimal places")
	ErrCampaignNotActive         = errors.New("campaign is not accepting donations")
	ErrOrderMismatch             = errors.New("order id does not match donation")
	ErrCapturedAmountMismatch    = errors.New("captured amount does not match donation")
	ErrInvalidDisbursementMethod = errors.New("unsupported disbursement method")
	ErrMalformedWebhook          = errors.New("malformed webhook payload")
	ErrMissingPaymentID          = errors.New("gateway payment id is required")
	ErrInvalidPage               = errors.New("page must be at least 1")
	ErrInvalidPageSize           = errors.New("page size must be between 1 and 100")
	ErrInvalidAdminAccount       = errors.New("admin username and bcrypt password hash are required")

	// Confirmation errors
	ErrSignatureInvalid        = errors.New("payment signature is invalid")
	ErrDuplicateGatewayPayment = errors.New("gateway payment already attached to another donation")

	// Ledger errors
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Infrastructure errors
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrLedgerBusy         = errors.New("campaign ledger is busy")
	ErrBlobStoreDisabled  = errors.New("blob store is not configured")

	// Admin auth errors
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrAccountInactive   = errors.New("account is inactive")
	ErrInvalidSession    = errors.New("admin session token is invalid")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsDonationNotFound(err error) bool {
	return errors.Is(err, ErrDonationNotFound)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsTransactionNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound)
}

// IsNotFound reports any lookup miss
func IsNotFound(err error) bool {
	return IsDonationNotFound(err) || IsCampaignNotFound(err) || IsTransactionNotFound(err) || errors.Is(err, ErrAdminNotFound)
}

// IsValidationError reports a caller error that caused no mutation
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrAmountTooLow,
		ErrAmountTooHigh,
		ErrAmountPrecision,
		ErrCampaignNotActive,
		ErrOrderMismatch,
		ErrCapturedAmountMismatch,
		ErrInvalidDisbursementMethod,
		ErrMalformedWebhook,
		ErrMissingPaymentID,
		ErrInvalidPage,
		ErrInvalidPageSize,
		ErrInvalidAdminAccount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func IsInvalidAmount(err error) bool {
	return errors.Is(err, ErrInvalidAmount)
}

func IsSignatureInvalid(err error) bool {
	return errors.Is(err, ErrSignatureInvalid)
}

func IsDuplicateGatewayPayment(err error) bool {
	return errors.Is(err, ErrDuplicateGatewayPayment)
}

func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

func IsGatewayUnavailable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}

func IsLedgerBusy(err error) bool {
	return errors.Is(err, ErrLedgerBusy)
}

func IsCampaignNotActive(err error) bool {
	return errors.Is(err, ErrCampaignNotActive)
}

func IsIncorrectPassword(err error) bool {
	return errors.Is(err, ErrIncorrectPassword)
}

func IsAccountInactive(err error) bool {
	return errors.Is(err, ErrAccountInactive)
}

func IsInvalidSession(err error) bool {
	return errors.Is(err, ErrInvalidSession)
}
