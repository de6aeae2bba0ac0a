package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DonationStatus is the state of a donation attempt.
// INITIATED moves to COMPLETED or FAILED exactly once; both are terminal.
type DonationStatus string

const (
	DonationStatusInitiated DonationStatus = "initiated"
	DonationStatusCompleted DonationStatus = "completed"
	DonationStatusFailed    DonationStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s DonationStatus) IsTerminal() bool {
	return s == DonationStatusCompleted || s == DonationStatusFailed
}

// Donation is one donation attempt against a campaign
type Donation struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_donations_uuid;default:gen_random_uuid()" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;not null;index:idx_donations_correlation_id" json:"correlation_id"`

	CampaignID uint      `gorm:"not null;index:idx_donations_campaign_id" json:"campaign_id"`
	Campaign   *Campaign `gorm:"foreignKey:CampaignID;references:ID" json:"campaign,omitempty"`
	DonorID    uint      `gorm:"not null;index:idx_donations_donor_id" json:"donor_id"`
	DonorName  string    `gorm:"size:255" json:"donor_name"`
	DonorEmail string    `gorm:"size:255" json:"donor_email"`
	DonorPhone *string   `gorm:"size:32" json:"donor_phone,omitempty"`

	Amount   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency string          `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`

	GatewayOrderID   string  `gorm:"size:64;not null;uniqueIndex:uk_donations_gateway_order_id" json:"gateway_order_id"`
	GatewayPaymentID *string `gorm:"size:64;uniqueIndex:uk_donations_gateway_payment_id" json:"gateway_payment_id,omitempty"`
	GatewaySignature *string `gorm:"size:128" json:"-"`

	Status        DonationStatus `gorm:"type:varchar(20);not null;default:'initiated';index:idx_donations_status" json:"status"`
	FailureReason *string        `gorm:"type:text" json:"failure_reason,omitempty"`
	IsAnonymous   bool           `gorm:"not null;default:false" json:"is_anonymous"`
	Message       *string        `gorm:"type:text" json:"message,omitempty"`

	CreatedAt   time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_donations_created_at" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
}

func (Donation) TableName() string {
	return "donations"
}

// BeforeCreate ensures UUID and CorrelationID are set
func (d *Donation) BeforeCreate(tx *gorm.DB) error {
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	if d.CorrelationID == uuid.Nil {
		d.CorrelationID = uuid.New()
	}
	return nil
}

// AmountInMinorUnits returns the amount in paise as sent to the gateway
func (d *Donation) AmountInMinorUnits() int64 {
	return ToMinorUnits(d.Amount)
}

// ToMinorUnits converts a two-decimal currency amount to its minor unit
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// DonationFilter represents filter criteria for donation queries
type DonationFilter struct {
	ID             *uint
	UUID           *uuid.UUID
	CampaignID     *uint
	DonorID        *uint
	Status         *DonationStatus
	GatewayOrderID *string
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
}
