package models

import (
	"encoding/json"
	"time"
)

// Actor types recorded on audit entries
const (
	AuditActorDonor   = "donor"
	AuditActorAdmin   = "admin"
	AuditActorGateway = "gateway"
	AuditActorSystem  = "system"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ActorType    string          `gorm:"size:20;not null;index:idx_audit_actor" json:"actor_type"`
	ActorID      *uint           `gorm:"index:idx_audit_actor" json:"actor_id,omitempty"`
	CampaignID   *uint           `gorm:"index:idx_audit_campaign_id" json:"campaign_id,omitempty"`
	DonationID   *uint           `gorm:"index:idx_audit_donation_id" json:"donation_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionDonationOrderCreated      = "donation_order_created"
	AuditActionDonationOrderFailed       = "donation_order_failed"
	AuditActionDonationCompleted         = "donation_completed"
	AuditActionDonationSignatureInvalid  = "donation_signature_invalid"
	AuditActionDonationDuplicatePayment  = "donation_duplicate_payment"
	AuditActionDonationAmountMismatch    = "donation_amount_mismatch"
	AuditActionDisbursementCompleted     = "disbursement_completed"
	AuditActionDisbursementFailed        = "disbursement_failed"
	AuditActionLedgerExported            = "ledger_exported"
	AuditActionAdminLoginSuccess         = "admin_login_success"
	AuditActionAdminLoginFailed          = "admin_login_failed"
	AuditActionAdminTokenRefreshed       = "admin_token_refreshed"
	AuditActionAdminLogout               = "admin_logout"
	AuditActionLedgerReconciliationIssue = "ledger_reconciliation_issue"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ActorType     *string
	ActorID       *uint
	CampaignID    *uint
	DonationID    *uint
	Action        *string
	Success       *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}

// IsIntegrityEvent reports whether the entry records a ledger integrity concern
func (a *AuditLog) IsIntegrityEvent() bool {
	switch a.Action {
	case AuditActionDonationSignatureInvalid, AuditActionDonationDuplicatePayment, AuditActionDonationAmountMismatch, AuditActionLedgerReconciliationIssue:
		return true
	}
	return false
}
