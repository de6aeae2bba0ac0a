package businessflow

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/services"
	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/repository"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/xuri/excelize/v2"
)

const (
	ledgerSheetSummary      = "Summary"
	ledgerSheetTransactions = "Transactions"
	XLSXContentType         = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	exportBatchSize         = 500
)

// LedgerReportFlow serves read models over the fund and transaction ledgers
type LedgerReportFlow interface {
	GetCampaignFunds(ctx context.Context, campaignID uint) (*dto.CampaignFundsDTO, error)
	ListCampaignTransactions(ctx context.Context, req *dto.ListCampaignTransactionsRequest) (*dto.ListTransactionsResponse, error)
	ListPayouts(ctx context.Context, req *dto.ListCampaignTransactionsRequest) (*dto.ListTransactionsResponse, error)
	GetTransaction(ctx context.Context, transactionID string) (*dto.TransactionDTO, error)
	ExportCampaignLedger(ctx context.Context, req *dto.ExportLedgerRequest, metadata *ClientMetadata) (*dto.ExportLedgerResponse, error)
	Reconcile(ctx context.Context) (*dto.ReconciliationReport, error)
}

type LedgerReportFlowImpl struct {
	campaignRepo    repository.CampaignRepository
	donationRepo    repository.DonationRepository
	transactionRepo repository.TransactionRepository
	auditRepo       repository.AuditLogRepository
	transactor      repository.Transactor
	txnLedger       TransactionLedger
	blobStore       services.BlobStore
}

func NewLedgerReportFlow(
	campaignRepo repository.CampaignRepository,
	donationRepo repository.DonationRepository,
	transactionRepo repository.TransactionRepository,
	auditRepo repository.AuditLogRepository,
	transactor repository.Transactor,
	txnLedger TransactionLedger,
	blobStore services.BlobStore,
) LedgerReportFlow {
	return &LedgerReportFlowImpl{
		campaignRepo:    campaignRepo,
		donationRepo:    donationRepo,
		transactionRepo: transactionRepo,
		auditRepo:       auditRepo,
		transactor:      transactor,
		txnLedger:       txnLedger,
		blobStore:       blobStore,
	}
}

func (f *LedgerReportFlowImpl) GetCampaignFunds(ctx context.Context, campaignID uint) (*dto.CampaignFundsDTO, error) {
	campaign, err := getCampaign(ctx, f.campaignRepo, campaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to load campaign", err)
	}
	out := ToCampaignFundsDTO(*campaign)
	return &out, nil
}

// ListCampaignTransactions is the public transparency ledger of a campaign
func (f *LedgerReportFlowImpl) ListCampaignTransactions(ctx context.Context, req *dto.ListCampaignTransactionsRequest) (*dto.ListTransactionsResponse, error) {
	var txType *models.TransactionType
	if req.Type != nil {
		t := models.TransactionType(*req.Type)
		if !t.Valid() {
			return nil, NewBusinessError("TRANSACTION_LIST_FAILED", "Unknown transaction type", fmt.Errorf("invalid transaction type %q", *req.Type))
		}
		txType = &t
	}
	return f.listCampaign(ctx, req, txType)
}

func (f *LedgerReportFlowImpl) ListPayouts(ctx context.Context, req *dto.ListCampaignTransactionsRequest) (*dto.ListTransactionsResponse, error) {
	t := models.TransactionTypeDisbursement
	return f.listCampaign(ctx, req, &t)
}

func (f *LedgerReportFlowImpl) listCampaign(ctx context.Context, req *dto.ListCampaignTransactionsRequest, txType *models.TransactionType) (*dto.ListTransactionsResponse, error) {
	if _, err := getCampaign(ctx, f.campaignRepo, req.CampaignID); err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to load campaign", err)
	}

	limit, offset := utils.Paginate(req.Page, req.PageSize)
	page := req.Page
	if page < 1 {
		page = 1
	}

	txns, total, err := f.txnLedger.ListByCampaign(ctx, req.CampaignID, txType, limit, offset)
	if err != nil {
		return nil, NewBusinessError("TRANSACTION_LIST_FAILED", "Failed to list transactions", err)
	}

	items := make([]dto.TransactionDTO, 0, len(txns))
	for _, t := range txns {
		items = append(items, ToPublicTransactionDTO(*t))
	}
	return &dto.ListTransactionsResponse{
		Items:      items,
		Pagination: dto.NewPaginationInfo(page, limit, total),
	}, nil
}

func (f *LedgerReportFlowImpl) GetTransaction(ctx context.Context, transactionID string) (*dto.TransactionDTO, error) {
	txn, err := f.txnLedger.Get(ctx, transactionID)
	if err != nil {
		return nil, NewBusinessError("TRANSACTION_LOOKUP_FAILED", "Failed to load transaction", err)
	}
	out := ToPublicTransactionDTO(*txn)
	return &out, nil
}

// ExportCampaignLedger renders the campaign summary and every ledger entry
// into an XLSX workbook, optionally archiving it in the blob store
func (f *LedgerReportFlowImpl) ExportCampaignLedger(ctx context.Context, req *dto.ExportLedgerRequest, metadata *ClientMetadata) (*dto.ExportLedgerResponse, error) {
	campaign, err := getCampaign(ctx, f.campaignRepo, req.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to load campaign", err)
	}
	if req.Upload && f.blobStore == nil {
		return nil, NewBusinessError("BLOB_STORE_DISABLED", "Ledger archive storage is not configured", ErrBlobStoreDisabled)
	}

	var txns []*models.Transaction
	for offset := 0; ; offset += exportBatchSize {
		batch, err := f.transactionRepo.ByFilter(ctx, models.TransactionFilter{CampaignID: &campaign.ID}, "transaction_date ASC, id ASC", exportBatchSize, offset)
		if err != nil {
			return nil, NewBusinessError("TRANSACTION_LIST_FAILED", "Failed to list transactions", err)
		}
		txns = append(txns, batch...)
		if len(batch) < exportBatchSize {
			break
		}
	}

	content, err := buildLedgerWorkbook(campaign, txns)
	if err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	now := utils.UTCNow()
	resp := &dto.ExportLedgerResponse{
		FileName: fmt.Sprintf("campaign_%d_ledger_%s.xlsx", campaign.ID, now.Format("20060102T150405Z")),
		Content:  content,
		Rows:     len(txns),
	}

	if req.Upload {
		url, err := f.blobStore.Put(ctx, fmt.Sprintf("ledgers/campaign-%d/%s", campaign.ID, resp.FileName), content, XLSXContentType)
		if err != nil {
			return nil, NewBusinessError("LEDGER_UPLOAD_FAILED", "Failed to archive ledger export", err)
		}
		resp.ObjectURL = url
	}

	var adminID *uint
	if req.AdminID != 0 {
		adminID = &req.AdminID
	}
	_ = createAuditLog(ctx, f.auditRepo, auditEntry{
		actorType:  models.AuditActorAdmin,
		actorID:    adminID,
		campaignID: &campaign.ID,
		action:     models.AuditActionLedgerExported,
		desc:       fmt.Sprintf("Exported %d ledger rows", len(txns)),
		success:    true,
		metadata:   map[string]any{"file_name": resp.FileName, "object_url": resp.ObjectURL},
	}, metadata)

	return resp, nil
}

func buildLedgerWorkbook(campaign *models.Campaign, txns []*models.Transaction) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), ledgerSheetSummary); err != nil {
		return nil, err
	}
	summary := [][]any{
		{"campaign_id", campaign.ID},
		{"title", campaign.Title},
		{"status", string(campaign.Status)},
		{"currency", campaign.Currency},
		{"target_amount", campaign.TargetAmount.StringFixed(2)},
		{"raised_amount", campaign.RaisedAmount.StringFixed(2)},
		{"disbursed_amount", campaign.DisbursedAmount.StringFixed(2)},
		{"available_balance", campaign.AvailableBalance().StringFixed(2)},
		{"total_donors", campaign.TotalDonors},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := xl.SetSheetRow(ledgerSheetSummary, cell, &row); err != nil {
			return nil, err
		}
	}

	if _, err := xl.NewSheet(ledgerSheetTransactions); err != nil {
		return nil, err
	}
	header := []string{"transaction_id", "type", "status", "amount", "currency", "donor_id", "gateway_transaction_id", "disbursement_method", "disbursement_reference", "description", "transaction_date"}
	if err := xl.SetSheetRow(ledgerSheetTransactions, "A1", &header); err != nil {
		return nil, err
	}
	for i, t := range txns {
		donor := ""
		if t.DonorID != nil {
			donor = strconv.FormatUint(uint64(*t.DonorID), 10)
		}
		record := []string{
			t.TransactionID,
			string(t.Type),
			string(t.Status),
			t.Amount.StringFixed(2),
			t.Currency,
			donor,
			deref(t.GatewayTransactionID),
			deref(t.DisbursementMethod),
			deref(t.DisbursementReference),
			t.Description,
			t.TransactionDate.UTC().Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(ledgerSheetTransactions, cell, &record); err != nil {
			return nil, err
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Reconcile recomputes every campaign's aggregates from donation and ledger
// rows and reports where they disagree. Each campaign is checked against a
// single snapshot so writes committed mid-run are never reported as drift.
func (f *LedgerReportFlowImpl) Reconcile(ctx context.Context) (*dto.ReconciliationReport, error) {
	campaigns, err := f.campaignRepo.ByFilter(ctx, models.CampaignFilter{}, "id ASC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("RECONCILIATION_FAILED", "Failed to list campaigns", err)
	}

	report := &dto.ReconciliationReport{
		GeneratedAt: utils.UTCNow(),
		Campaigns:   make([]dto.CampaignReconciliationDTO, 0, len(campaigns)),
	}

	for _, listed := range campaigns {
		var (
			row   dto.CampaignReconciliationDTO
			found bool
		)
		err := f.transactor.WithinReadSnapshot(ctx, func(txCtx context.Context) error {
			c, err := f.campaignRepo.ByID(txCtx, listed.ID)
			if err != nil || c == nil {
				return err
			}
			found = true
			row, err = f.reconcileCampaign(txCtx, c)
			return err
		})
		if err != nil {
			return nil, NewBusinessError("RECONCILIATION_FAILED", fmt.Sprintf("Failed to reconcile campaign %d", listed.ID), err)
		}
		if !found {
			continue
		}
		if !row.Consistent {
			report.MismatchCount++
			log.Printf("ledger reconciliation: campaign %d inconsistent: %v", row.CampaignID, row.Issues)
			errMsg := fmt.Sprint(row.Issues)
			campaignID := row.CampaignID
			_ = createAuditLog(ctx, f.auditRepo, auditEntry{
				actorType:  models.AuditActorSystem,
				campaignID: &campaignID,
				action:     models.AuditActionLedgerReconciliationIssue,
				desc:       "Campaign aggregates disagree with ledger rows",
				success:    false,
				errMsg:     &errMsg,
			}, nil)
		}
		report.Campaigns = append(report.Campaigns, row)
	}
	report.CampaignsCount = len(report.Campaigns)

	return report, nil
}

// reconcileCampaign must run inside a read snapshot together with the read of c
func (f *LedgerReportFlowImpl) reconcileCampaign(ctx context.Context, c *models.Campaign) (dto.CampaignReconciliationDTO, error) {
	row := dto.CampaignReconciliationDTO{
		CampaignID:      c.ID,
		Title:           c.Title,
		RaisedAmount:    c.RaisedAmount,
		DisbursedAmount: c.DisbursedAmount,
	}

	completed, err := f.donationRepo.SumCompletedByCampaign(ctx, c.ID)
	if err != nil {
		return row, err
	}
	donationLedger, err := f.transactionRepo.SumByCampaign(ctx, c.ID, models.TransactionTypeDonation, models.TransactionStatusCompleted)
	if err != nil {
		return row, err
	}
	disbursementLedger, err := f.transactionRepo.SumByCampaign(ctx, c.ID, models.TransactionTypeDisbursement, models.TransactionStatusCompleted)
	if err != nil {
		return row, err
	}

	row.CompletedDonationsSum = completed
	row.DonationLedgerSum = donationLedger
	row.DisbursementLedgerSum = disbursementLedger

	if !c.RaisedAmount.Equal(completed) {
		row.Issues = append(row.Issues, fmt.Sprintf("raised %s != completed donations %s", c.RaisedAmount.StringFixed(2), completed.StringFixed(2)))
	}
	if !completed.Equal(donationLedger) {
		row.Issues = append(row.Issues, fmt.Sprintf("completed donations %s != donation ledger %s", completed.StringFixed(2), donationLedger.StringFixed(2)))
	}
	if !c.DisbursedAmount.Equal(disbursementLedger) {
		row.Issues = append(row.Issues, fmt.Sprintf("disbursed %s != disbursement ledger %s", c.DisbursedAmount.StringFixed(2), disbursementLedger.StringFixed(2)))
	}
	if c.DisbursedAmount.IsNegative() {
		row.Issues = append(row.Issues, "disbursed amount is negative")
	}
	if c.DisbursedAmount.GreaterThan(c.RaisedAmount) {
		row.Issues = append(row.Issues, fmt.Sprintf("disbursed %s exceeds raised %s", c.DisbursedAmount.StringFixed(2), c.RaisedAmount.StringFixed(2)))
	}
	row.Consistent = len(row.Issues) == 0
	return row, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
