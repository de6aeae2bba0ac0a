package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionType represents the kind of money movement
type TransactionType string

const (
	TransactionTypeDonation     TransactionType = "donation"
	TransactionTypeDisbursement TransactionType = "disbursement"
	TransactionTypeRefund       TransactionType = "refund"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDonation, TransactionTypeDisbursement, TransactionTypeRefund:
		return true
	}
	return false
}

// TransactionStatus represents the current status of a transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

// Disbursement methods accepted by the disbursement service
const (
	DisbursementMethodBankTransfer = "bank_transfer"
	DisbursementMethodUPI          = "upi"
	DisbursementMethodCheque       = "cheque"
)

// PaymentGatewayRazorpay is recorded on donation transactions
const PaymentGatewayRazorpay = "razorpay"

const transactionIDPrefix = "TXN"

// Transaction is an append-only ledger entry. Rows are never updated after insert;
// a reversal is recorded as a new Transaction.
type Transaction struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	TransactionID string    `gorm:"size:32;not null;uniqueIndex:uk_transactions_transaction_id" json:"transaction_id"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	Type     TransactionType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status   TransactionStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Amount   decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency string            `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`

	CampaignID uint  `gorm:"not null;index" json:"campaign_id"`
	DonorID    *uint `gorm:"index" json:"donor_id,omitempty"`
	DonationID *uint `gorm:"index" json:"donation_id,omitempty"`

	// Gateway correlation (donations)
	PaymentGateway       *string `gorm:"size:32" json:"payment_gateway,omitempty"`
	GatewayTransactionID *string `gorm:"size:64;index" json:"gateway_transaction_id,omitempty"`
	GatewayOrderID       *string `gorm:"size:64" json:"gateway_order_id,omitempty"`

	// Disbursement details
	DisbursedBy           *uint   `gorm:"index" json:"disbursed_by,omitempty"`
	DisbursementMethod    *string `gorm:"size:32" json:"disbursement_method,omitempty"`
	DisbursementReference *string `gorm:"size:255" json:"disbursement_reference,omitempty"`

	Description     string          `gorm:"type:text" json:"description"`
	Metadata        json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata,omitempty"`
	TransactionDate time.Time       `gorm:"not null" json:"transaction_date"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// BeforeCreate ensures CorrelationID is set
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	return nil
}

// NewTransactionID returns a fresh identifier of the form TXN followed by 12 upper-case hex characters
func NewTransactionID() string {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	return transactionIDPrefix + strings.ToUpper(token[:12])
}

// IsValidTransactionID reports whether id has the shape produced by NewTransactionID
func IsValidTransactionID(id string) bool {
	if len(id) != len(transactionIDPrefix)+12 || !strings.HasPrefix(id, transactionIDPrefix) {
		return false
	}
	for _, r := range id[len(transactionIDPrefix):] {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

// TransactionFilter represents filter criteria for transaction queries
type TransactionFilter struct {
	TransactionID *string
	Type          *TransactionType
	Status        *TransactionStatus
	CampaignID    *uint
	DonorID       *uint
	DonationID    *uint
	DisbursedBy   *uint
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
