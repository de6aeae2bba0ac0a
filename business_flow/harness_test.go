package businessflow_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/services"
	businessflow "github.com/amirphl/donation-ledger/business_flow"
	"github.com/amirphl/donation-ledger/config"
	"github.com/amirphl/donation-ledger/models"
	testingutil "github.com/amirphl/donation-ledger/testing"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testCheckoutSecret = "checkout-secret"
	testWebhookSecret  = "webhook-secret"
	testDonorID        = uint(42)
	testAdminID        = uint(7)
)

type ledgerHarness struct {
	store    *testingutil.MemoryStore
	gateway  *services.MockPaymentGateway
	emails   *services.MockEmailProvider
	blobs    *fakeBlobStore
	verifier services.SignatureVerifier

	fundLedger    businessflow.FundLedger
	txnLedger     businessflow.TransactionLedger
	processor     businessflow.ConfirmationProcessor
	donations     businessflow.DonationFlow
	disbursements businessflow.DisbursementFlow
	reports       businessflow.LedgerReportFlow
}

func newLedgerHarness(t *testing.T) *ledgerHarness {
	t.Helper()

	h := &ledgerHarness{
		store:    testingutil.NewMemoryStore(),
		gateway:  services.NewMockPaymentGateway(),
		emails:   services.NewMockEmailProvider(),
		blobs:    &fakeBlobStore{objects: map[string][]byte{}},
		verifier: services.NewHMACSignatureVerifier(testCheckoutSecret, testWebhookSecret),
	}
	notifications := services.NewNotificationService(h.emails)

	h.fundLedger = businessflow.NewFundLedger(h.store.Campaigns())
	h.txnLedger = businessflow.NewTransactionLedger(h.store.Transactions())
	h.processor = businessflow.NewConfirmationProcessor(
		h.store.Donations(),
		h.store.Campaigns(),
		h.store.AuditLogs(),
		h.store.Transactor(),
		h.fundLedger,
		h.txnLedger,
		h.verifier,
		notifications,
	)
	h.donations = businessflow.NewDonationFlow(
		h.store.Donations(),
		h.store.Campaigns(),
		h.store.Transactions(),
		h.store.AuditLogs(),
		h.gateway,
		h.verifier,
		h.processor,
		config.DonationConfig{
			Currency:     "INR",
			MinAmount:    decimal.NewFromInt(1),
			MaxAmount:    decimal.NewFromInt(1000000),
			OrderTimeout: time.Second,
		},
		config.RazorpayConfig{KeyID: "rzp_test_key"},
	)
	h.disbursements = businessflow.NewDisbursementFlow(
		h.store.Campaigns(),
		h.store.AuditLogs(),
		h.store.Transactor(),
		h.fundLedger,
		h.txnLedger,
		nil,
		notifications,
	)
	h.reports = businessflow.NewLedgerReportFlow(
		h.store.Campaigns(),
		h.store.Donations(),
		h.store.Transactions(),
		h.store.AuditLogs(),
		h.store.Transactor(),
		h.txnLedger,
		h.blobs,
	)
	return h
}

func (h *ledgerHarness) seedCampaign(raised string) *models.Campaign {
	return h.store.SeedCampaign(models.Campaign{
		Title:            "School Meals",
		TargetAmount:     decimal.NewFromInt(50000),
		RaisedAmount:     decimal.RequireFromString(raised),
		BeneficiaryEmail: utils.ToPtr("home@example.org"),
	})
}

// createOrder opens an order through the donation flow and returns the stored donation
func (h *ledgerHarness) createOrder(t *testing.T, campaignID uint, amount string) *models.Donation {
	t.Helper()
	resp, err := h.donations.CreateOrder(context.Background(), &dto.CreateDonationOrderRequest{
		CampaignID: campaignID,
		Amount:     decimal.RequireFromString(amount),
		DonorID:    testDonorID,
		DonorName:  "Asha",
		DonorEmail: "asha@example.com",
	}, businessflow.NewClientMetadata("127.0.0.1", "test-agent"))
	require.NoError(t, err)

	donation, err := h.store.Donations().ByUUID(context.Background(), resp.DonationID)
	require.NoError(t, err)
	require.NotNil(t, donation)
	return donation
}

func (h *ledgerHarness) campaign(t *testing.T, id uint) *models.Campaign {
	t.Helper()
	c, err := h.store.Campaigns().ByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (h *ledgerHarness) donation(t *testing.T, id uint) *models.Donation {
	t.Helper()
	d, err := h.store.Donations().ByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d
}

func (h *ledgerHarness) transactionsOf(t *testing.T, campaignID uint, txType models.TransactionType) []*models.Transaction {
	t.Helper()
	txns, err := h.store.Transactions().ByFilter(context.Background(), models.TransactionFilter{CampaignID: &campaignID, Type: &txType}, "", 0, 0)
	require.NoError(t, err)
	return txns
}

func checkoutRequest(d *models.Donation, paymentID string) *dto.VerifyPaymentRequest {
	return &dto.VerifyPaymentRequest{
		DonationID: d.UUID.String(),
		OrderID:    d.GatewayOrderID,
		PaymentID:  paymentID,
		Signature:  services.SignCheckout(testCheckoutSecret, d.GatewayOrderID, paymentID),
		DonorID:    d.DonorID,
	}
}

func capturedWebhook(t *testing.T, event, orderID, paymentID string, amountMinor int64) ([]byte, string) {
	t.Helper()
	body := map[string]any{
		"entity":     "event",
		"account_id": "acc_test",
		"event":      event,
		"contains":   []string{"payment"},
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       paymentID,
					"order_id": orderID,
					"amount":   amountMinor,
					"currency": "INR",
					"status":   "captured",
					"method":   "upi",
				},
			},
		},
		"created_at": time.Now().Unix(),
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw, services.SignHMACSHA256(testWebhookSecret, raw)
}

type fakeBlobStore struct {
	objects map[string][]byte
	err     error
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.objects[key] = body
	return fmt.Sprintf("https://ledger-bucket.s3.ap-south-1.amazonaws.com/%s", key), nil
}
