// Package models contains domain entities for donations, campaign funds and the money ledger
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle state of a fundraising campaign
type CampaignStatus string

const (
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusClosed    CampaignStatus = "closed"
)

// Valid reports whether s is one of the known campaign statuses
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusActive, CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusClosed:
		return true
	}
	return false
}

// Campaign is the fund aggregate of a fundraising campaign.
// RaisedAmount and DisbursedAmount are only mutated through atomic column updates.
type Campaign struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	UUID             uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid;default:gen_random_uuid()" json:"uuid"`
	Title            string          `gorm:"size:255;not null" json:"title"`
	Status           CampaignStatus  `gorm:"type:varchar(20);not null;default:'active';index:idx_campaigns_status" json:"status"`
	Currency         string          `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`
	TargetAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"target_amount"`
	RaisedAmount     decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"raised_amount"`
	DisbursedAmount  decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"disbursed_amount"`
	TotalDonors      int64           `gorm:"not null;default:0" json:"total_donors"`
	BeneficiaryEmail *string         `gorm:"size:255" json:"beneficiary_email,omitempty"`
	CreatedAt        time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	return nil
}

// AvailableBalance returns raised minus disbursed, floored at zero
func (c *Campaign) AvailableBalance() decimal.Decimal {
	available := c.RaisedAmount.Sub(c.DisbursedAmount)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// IsAcceptingDonations reports whether new donation orders may be opened
func (c *Campaign) IsAcceptingDonations() bool {
	return c.Status == CampaignStatusActive
}

// CampaignFilter represents filter criteria for campaign queries
type CampaignFilter struct {
	ID            *uint
	UUID          *uuid.UUID
	Status        *CampaignStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
