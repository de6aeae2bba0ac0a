package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type CampaignFundsDTO struct {
	CampaignID       uint            `json:"campaign_id"`
	UUID             string          `json:"uuid"`
	Title            string          `json:"title"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	TargetAmount     decimal.Decimal `json:"target_amount" swaggertype:"string"`
	RaisedAmount     decimal.Decimal `json:"raised_amount" swaggertype:"string"`
	DisbursedAmount  decimal.Decimal `json:"disbursed_amount" swaggertype:"string"`
	AvailableBalance decimal.Decimal `json:"available_balance" swaggertype:"string"`
	TotalDonors      int64           `json:"total_donors"`
}

type TransactionDTO struct {
	TransactionID         string          `json:"transaction_id"`
	Type                  string          `json:"type"`
	Status                string          `json:"status"`
	Amount                decimal.Decimal `json:"amount" swaggertype:"string"`
	Currency              string          `json:"currency"`
	CampaignID            uint            `json:"campaign_id"`
	DonorID               *uint           `json:"donor_id,omitempty"`
	PaymentGateway        *string         `json:"payment_gateway,omitempty"`
	GatewayTransactionID  *string         `json:"gateway_transaction_id,omitempty"`
	DisbursementMethod    *string         `json:"disbursement_method,omitempty"`
	DisbursementReference *string         `json:"disbursement_reference,omitempty"`
	Description           string          `json:"description"`
	TransactionDate       time.Time       `json:"transaction_date"`
}

type ListCampaignTransactionsRequest struct {
	CampaignID uint    `json:"-" validate:"required,gt=0"`
	Type       *string `json:"type,omitempty" validate:"omitempty,oneof=donation disbursement refund"`
	Page       int     `json:"page" validate:"omitempty,min=1"`
	PageSize   int     `json:"page_size" validate:"omitempty,min=1,max=100"`
}

type ListTransactionsResponse struct {
	Items      []TransactionDTO `json:"items"`
	Pagination PaginationInfo   `json:"pagination"`
}

// DisburseRequest moves raised funds out of a campaign. Admin only.
type DisburseRequest struct {
	CampaignID uint            `json:"-" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount" swaggertype:"string" example:"6000.00"`
	Method     string          `json:"method" validate:"omitempty,oneof=bank_transfer upi cheque" example:"bank_transfer"`
	Reference  string          `json:"reference" validate:"required,max=255" example:"NEFT/2024/000123"`
	Notes      string          `json:"notes,omitempty" validate:"omitempty,max=500"`
	AdminID    uint            `json:"-"`
}

type DisburseResponse struct {
	TransactionID string           `json:"transaction_id"`
	Transaction   TransactionDTO   `json:"transaction"`
	Funds         CampaignFundsDTO `json:"funds"`
}
