package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateDonationOrderRequest opens a gateway order for a pledged donation
type CreateDonationOrderRequest struct {
	CampaignID  uint            `json:"campaign_id" validate:"required,gt=0" example:"7"`
	Amount      decimal.Decimal `json:"amount" swaggertype:"string" example:"5000.00"`
	DonorID     uint            `json:"donor_id" example:"12"` // overwritten from the authenticated donor
	DonorName   string          `json:"donor_name" validate:"omitempty,max=255" example:"Asha Rao"`
	DonorEmail  string          `json:"donor_email" validate:"omitempty,email,max=255" example:"asha@example.org"`
	DonorPhone  *string         `json:"donor_phone,omitempty" validate:"omitempty,max=32"`
	IsAnonymous bool            `json:"is_anonymous"`
	Message     *string         `json:"message,omitempty" validate:"omitempty,max=500"`
}

type CreateDonationOrderResponse struct {
	OrderID     string          `json:"order_id" example:"order_9A33XWu170gUtm"`
	DonationID  string          `json:"donation_id" example:"f47ac10b-58cc-4372-a567-0e02b2c3d479"`
	Amount      decimal.Decimal `json:"amount" swaggertype:"string" example:"5000.00"`
	AmountMinor int64           `json:"amount_minor" example:"500000"`
	Currency    string          `json:"currency" example:"INR"`
	KeyID       string          `json:"key_id,omitempty"`
}

// VerifyPaymentRequest carries the checkout callback fields
type VerifyPaymentRequest struct {
	DonationID string `json:"donation_id" validate:"required,uuid"`
	OrderID    string `json:"order_id" validate:"required,max=64"`
	PaymentID  string `json:"payment_id" validate:"required,max=64"`
	Signature  string `json:"signature" validate:"required,hexadecimal,len=64"`
	DonorID    uint   `json:"-"`
}

const (
	ConfirmStatusCompleted        = "completed"
	ConfirmStatusAlreadyProcessed = "already_processed"
)

type VerifyPaymentResponse struct {
	Status        string      `json:"status" example:"completed"`
	TransactionID string      `json:"transaction_id,omitempty" example:"TXN3F2A9C1B7D4E"`
	Donation      DonationDTO `json:"donation"`
}

type DonationDTO struct {
	UUID             string          `json:"uuid"`
	CampaignID       uint            `json:"campaign_id"`
	DonorID          uint            `json:"donor_id"`
	DonorName        string          `json:"donor_name,omitempty"`
	Amount           decimal.Decimal `json:"amount" swaggertype:"string"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	GatewayOrderID   string          `json:"gateway_order_id"`
	GatewayPaymentID *string         `json:"gateway_payment_id,omitempty"`
	FailureReason    *string         `json:"failure_reason,omitempty"`
	IsAnonymous      bool            `json:"is_anonymous"`
	Message          *string         `json:"message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	FailedAt         *time.Time      `json:"failed_at,omitempty"`
}

type GetDonationRequest struct {
	DonationID string `json:"donation_id" validate:"required,uuid"`
	DonorID    uint   `json:"-"`
}

type ListMyDonationsRequest struct {
	DonorID  uint    `json:"-"`
	Status   *string `json:"status,omitempty" validate:"omitempty,oneof=initiated completed failed"`
	Page     int     `json:"page" validate:"omitempty,min=1"`
	PageSize int     `json:"page_size" validate:"omitempty,min=1,max=100"`
}

type ListDonationsResponse struct {
	Items      []DonationDTO  `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}

// RazorpayWebhookEvent is the subset of the gateway webhook envelope we consume
type RazorpayWebhookEvent struct {
	Entity    string   `json:"entity"`
	AccountID string   `json:"account_id"`
	Event     string   `json:"event"`
	Contains  []string `json:"contains"`
	Payload   struct {
		Payment struct {
			Entity RazorpayPaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

type RazorpayPaymentEntity struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
	Email    string `json:"email"`
}

// WebhookResult describes what the service did with a webhook delivery
type WebhookResult struct {
	Event   string `json:"event"`
	Handled bool   `json:"handled"`
	Status  string `json:"status,omitempty"`
}
