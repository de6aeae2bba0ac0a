// Package dto
package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type AdminDTO struct {
	ID        uint   `json:"id" example:"1"`
	UUID      string `json:"uuid" example:"f47ac10b-58cc-4372-a567-0e02b2c3d479"`
	Username  string `json:"username" example:"admin"`
	IsActive  *bool  `json:"is_active" example:"true"`
	CreatedAt string `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

type AdminSessionDTO struct {
	AccessToken  string `json:"access_token" example:"jwt"`
	RefreshToken string `json:"refresh_token" example:"jwt"`
	ExpiresIn    int    `json:"expires_in" example:"3600"`
	TokenType    string `json:"token_type" example:"Bearer"`
	CreatedAt    string `json:"created_at" example:"2024-01-15T10:30:00Z"`
}

type AdminLoginRequest struct {
	Username string `json:"username" validate:"required,min=3,max=255"`
	Password string `json:"password" validate:"required,min=8,max=100"`
}

type AdminRefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// AdminLogoutRequest optionally names the refresh token to revoke alongside
// the bearer access token
type AdminLogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type AdminLoginResponse struct {
	Admin   AdminDTO        `json:"admin"`
	Session AdminSessionDTO `json:"session"`
}

// ExportLedgerRequest asks for a campaign's ledger as a spreadsheet
type ExportLedgerRequest struct {
	CampaignID uint `json:"campaign_id" validate:"required,gt=0"`
	Upload     bool `json:"upload"`
	AdminID    uint `json:"-"`
}

type ExportLedgerResponse struct {
	FileName  string `json:"file_name"`
	Content   []byte `json:"-"`
	ObjectURL string `json:"object_url,omitempty"`
	Rows      int    `json:"rows"`
}

// CampaignReconciliationDTO compares the stored aggregates with what the
// donation and transaction rows add up to
type CampaignReconciliationDTO struct {
	CampaignID            uint            `json:"campaign_id" yaml:"campaign_id"`
	Title                 string          `json:"title" yaml:"title"`
	RaisedAmount          decimal.Decimal `json:"raised_amount" yaml:"raised_amount"`
	CompletedDonationsSum decimal.Decimal `json:"completed_donations_sum" yaml:"completed_donations_sum"`
	DonationLedgerSum     decimal.Decimal `json:"donation_ledger_sum" yaml:"donation_ledger_sum"`
	DisbursedAmount       decimal.Decimal `json:"disbursed_amount" yaml:"disbursed_amount"`
	DisbursementLedgerSum decimal.Decimal `json:"disbursement_ledger_sum" yaml:"disbursement_ledger_sum"`
	Consistent            bool            `json:"consistent" yaml:"consistent"`
	Issues                []string        `json:"issues,omitempty" yaml:"issues,omitempty"`
}

type ReconciliationReport struct {
	GeneratedAt    time.Time                   `json:"generated_at" yaml:"generated_at"`
	CampaignsCount int                         `json:"campaigns_count" yaml:"campaigns_count"`
	MismatchCount  int                         `json:"mismatch_count" yaml:"mismatch_count"`
	Campaigns      []CampaignReconciliationDTO `json:"campaigns" yaml:"campaigns"`
}
