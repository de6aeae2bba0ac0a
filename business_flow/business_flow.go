// Package businessflow contains the donation confirmation, fund ledger and disbursement use cases
package businessflow

import (
	"context"
	"encoding/json"
	"log"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/repository"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/shopspring/decimal"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds caller information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// auditEntry is what a flow knows about the event it records
type auditEntry struct {
	actorType  string
	actorID    *uint
	campaignID *uint
	donationID *uint
	action     string
	desc       string
	success    bool
	errMsg     *string
	metadata   map[string]any
}

// createAuditLog persists an audit row. Failures are logged and swallowed so
// that auditing never changes the outcome of a ledger operation.
func createAuditLog(ctx context.Context, repo repository.AuditLogRepository, entry auditEntry, metadata *ClientMetadata) error {
	if repo == nil {
		return nil
	}

	audit := &models.AuditLog{
		ActorType:    entry.actorType,
		ActorID:      entry.actorID,
		CampaignID:   entry.campaignID,
		DonationID:   entry.donationID,
		Action:       entry.action,
		Description:  &entry.desc,
		Success:      utils.ToPtr(entry.success),
		ErrorMessage: entry.errMsg,
	}

	if metadata != nil {
		audit.IPAddress = utils.ToPtr(metadata.IPAddress)
		audit.UserAgent = utils.ToPtr(metadata.UserAgent)
		if metadata.RequestID != "" {
			audit.RequestID = utils.ToPtr(metadata.RequestID)
		}
	}
	if audit.RequestID == nil {
		if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok && requestID != "" {
			audit.RequestID = &requestID
		}
	}

	if len(entry.metadata) > 0 {
		if raw, err := json.Marshal(entry.metadata); err == nil {
			audit.Metadata = raw
		}
	}

	if err := repo.Save(ctx, audit); err != nil {
		log.Printf("failed to write audit log %s: %v", entry.action, err)
		return err
	}
	return nil
}

// validateLedgerAmount enforces positive amounts with at most paise precision
func validateLedgerAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrAmountPrecision
	}
	return nil
}

func getCampaign(ctx context.Context, repo repository.CampaignRepository, id uint) (*models.Campaign, error) {
	campaign, err := repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, ErrCampaignNotFound
	}
	return campaign, nil
}

func ToDonationDTO(d models.Donation) dto.DonationDTO {
	out := dto.DonationDTO{
		UUID:             d.UUID.String(),
		CampaignID:       d.CampaignID,
		DonorID:          d.DonorID,
		DonorName:        d.DonorName,
		Amount:           d.Amount,
		Currency:         d.Currency,
		Status:           string(d.Status),
		GatewayOrderID:   d.GatewayOrderID,
		GatewayPaymentID: d.GatewayPaymentID,
		FailureReason:    d.FailureReason,
		IsAnonymous:      d.IsAnonymous,
		Message:          d.Message,
		CreatedAt:        d.CreatedAt,
		CompletedAt:      d.CompletedAt,
		FailedAt:         d.FailedAt,
	}
	if d.IsAnonymous {
		out.DonorName = ""
	}
	return out
}

func ToTransactionDTO(t models.Transaction) dto.TransactionDTO {
	return dto.TransactionDTO{
		TransactionID:         t.TransactionID,
		Type:                  string(t.Type),
		Status:                string(t.Status),
		Amount:                t.Amount,
		Currency:              t.Currency,
		CampaignID:            t.CampaignID,
		DonorID:               t.DonorID,
		PaymentGateway:        t.PaymentGateway,
		GatewayTransactionID:  t.GatewayTransactionID,
		DisbursementMethod:    t.DisbursementMethod,
		DisbursementReference: t.DisbursementReference,
		Description:           t.Description,
		TransactionDate:       t.TransactionDate,
	}
}

// ToPublicTransactionDTO hides donor identity for the transparency ledger
func ToPublicTransactionDTO(t models.Transaction) dto.TransactionDTO {
	out := ToTransactionDTO(t)
	out.DonorID = nil
	return out
}

func ToCampaignFundsDTO(c models.Campaign) dto.CampaignFundsDTO {
	return dto.CampaignFundsDTO{
		CampaignID:       c.ID,
		UUID:             c.UUID.String(),
		Title:            c.Title,
		Status:           string(c.Status),
		Currency:         c.Currency,
		TargetAmount:     c.TargetAmount,
		RaisedAmount:     c.RaisedAmount,
		DisbursedAmount:  c.DisbursedAmount,
		AvailableBalance: c.AvailableBalance(),
		TotalDonors:      c.TotalDonors,
	}
}

func ToAdminDTOModel(a models.Admin) dto.AdminDTO {
	return dto.AdminDTO{
		ID:        a.ID,
		UUID:      a.UUID.String(),
		Username:  a.Username,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func ToAdminSessionDTO(accessToken, refreshToken string) dto.AdminSessionDTO {
	return dto.AdminSessionDTO{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(utils.AccessTokenTTL.Seconds()),
		TokenType:    "Bearer",
		CreatedAt:    utils.UTCNow().Format("2006-01-02T15:04:05Z07:00"),
	}
}
