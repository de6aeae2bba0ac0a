package businessflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/services"
	businessflow "github.com/amirphl/donation-ledger/business_flow"
	"github.com/amirphl/donation-ledger/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentOverdrawingDisbursements(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("10000")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.disbursements.DisburseFunds(ctx, campaign.ID, decimal.NewFromInt(6000), models.DisbursementMethodBankTransfer, "NEFT-1", testAdminID, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case businessflow.IsInsufficientFunds(err):
			insufficient++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)

	c := h.campaign(t, campaign.ID)
	assert.Equal(t, "6000", c.DisbursedAmount.String())
	assert.Equal(t, "10000", c.RaisedAmount.String())
	assert.Len(t, h.transactionsOf(t, campaign.ID, models.TransactionTypeDisbursement), 1)
}

func TestDisburse(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("1000")

	resp, err := h.disbursements.Disburse(ctx, &dto.DisburseRequest{
		CampaignID: campaign.ID,
		Amount:     decimal.RequireFromString("400.25"),
		Reference:  "UPI/REF/1",
		Method:     models.DisbursementMethodUPI,
		AdminID:    testAdminID,
	}, businessflow.NewClientMetadata("127.0.0.1", "admin-agent"))
	require.NoError(t, err)

	assert.True(t, models.IsValidTransactionID(resp.TransactionID))
	assert.Equal(t, string(models.TransactionTypeDisbursement), resp.Transaction.Type)
	assert.Equal(t, string(models.TransactionStatusCompleted), resp.Transaction.Status)
	assert.Equal(t, "Fund disbursement for School Meals", resp.Transaction.Description)
	assert.Equal(t, "400.25", resp.Funds.DisbursedAmount.String())
	assert.Equal(t, "599.75", resp.Funds.AvailableBalance.String())

	txn, err := h.txnLedger.Get(ctx, resp.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, txn.DisbursedBy)
	assert.Equal(t, testAdminID, *txn.DisbursedBy)
	assert.Equal(t, "UPI/REF/1", *txn.DisbursementReference)

	require.Equal(t, 1, h.emails.Count())
	assert.Equal(t, "home@example.org", h.emails.Sent[0].To)
}

func TestDisburseExactBalanceThenNothingLeft(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("500")

	txn, err := h.disbursements.DisburseFunds(ctx, campaign.ID, decimal.NewFromInt(500), "", "REF-A", testAdminID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DisbursementMethodBankTransfer, *txn.DisbursementMethod)

	_, err = h.disbursements.DisburseFunds(ctx, campaign.ID, decimal.RequireFromString("0.01"), "", "REF-B", testAdminID, nil)
	assert.True(t, businessflow.IsInsufficientFunds(err))

	c := h.campaign(t, campaign.ID)
	assert.True(t, c.DisbursedAmount.Equal(c.RaisedAmount))
	assert.True(t, c.AvailableBalance().IsZero())
}

func TestDisburseValidation(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("1000")

	tests := []struct {
		name       string
		campaignID uint
		amount     decimal.Decimal
		method     string
		want       error
	}{
		{"ZeroAmount", campaign.ID, decimal.Zero, "", businessflow.ErrInvalidAmount},
		{"NegativeAmount", campaign.ID, decimal.NewFromInt(-1), "", businessflow.ErrInvalidAmount},
		{"SubPaise", campaign.ID, decimal.RequireFromString("1.005"), "", businessflow.ErrAmountPrecision},
		{"UnknownMethod", campaign.ID, decimal.NewFromInt(1), "crypto", businessflow.ErrInvalidDisbursementMethod},
		{"UnknownCampaign", 999, decimal.NewFromInt(1), "", businessflow.ErrCampaignNotFound},
		{"Overdraw", campaign.ID, decimal.RequireFromString("1000.01"), "", businessflow.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.disbursements.DisburseFunds(ctx, tt.campaignID, tt.amount, tt.method, "REF", testAdminID, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	c := h.campaign(t, campaign.ID)
	assert.True(t, c.DisbursedAmount.IsZero())
	assert.Empty(t, h.transactionsOf(t, campaign.ID, models.TransactionTypeDisbursement))
	assert.Zero(t, h.emails.Count())
}

func TestDisburseRollsBackDebitWhenAppendFails(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("1000")

	h.store.TransactionSaveErr = errors.New("insert failed")
	_, err := h.disbursements.DisburseFunds(ctx, campaign.ID, decimal.NewFromInt(100), "", "REF", testAdminID, nil)
	require.Error(t, err)

	assert.True(t, h.campaign(t, campaign.ID).DisbursedAmount.IsZero())

	var failed int
	for _, a := range h.store.AuditEntries() {
		if a.Action == models.AuditActionDisbursementFailed {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

type busyLocker struct{}

func (busyLocker) Acquire(ctx context.Context, campaignID uint) (func(), error) {
	return nil, services.ErrLockNotAcquired
}

func TestDisburseLedgerBusy(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("1000")

	flow := businessflow.NewDisbursementFlow(
		h.store.Campaigns(),
		h.store.AuditLogs(),
		h.store.Transactor(),
		h.fundLedger,
		h.txnLedger,
		busyLocker{},
		nil,
	)
	_, err := flow.DisburseFunds(ctx, campaign.ID, decimal.NewFromInt(100), "", "REF", testAdminID, nil)
	assert.True(t, businessflow.IsLedgerBusy(err))
	assert.True(t, h.campaign(t, campaign.ID).DisbursedAmount.IsZero())
}

func TestDisbursedNeverExceedsRaisedUnderMixedLoad(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("0")

	donations := make([]*models.Donation, 0, 10)
	for i := 0; i < 10; i++ {
		donations = append(donations, h.createOrder(t, campaign.ID, "100"))
	}

	var wg sync.WaitGroup
	for i, d := range donations {
		wg.Add(2)
		go func(i int, d *models.Donation) {
			defer wg.Done()
			_, _ = h.donations.VerifyPayment(ctx, checkoutRequest(d, "pay_mixed"+string(rune('a'+i))), nil)
		}(i, d)
		go func() {
			defer wg.Done()
			_, err := h.disbursements.DisburseFunds(ctx, campaign.ID, decimal.NewFromInt(150), "", "REF", testAdminID, nil)
			if err != nil && !businessflow.IsInsufficientFunds(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	c := h.campaign(t, campaign.ID)
	assert.Equal(t, "1000", c.RaisedAmount.String())
	assert.True(t, c.DisbursedAmount.LessThanOrEqual(c.RaisedAmount))

	disbursed, err := h.store.Transactions().SumByCampaign(ctx, campaign.ID, models.TransactionTypeDisbursement, models.TransactionStatusCompleted)
	require.NoError(t, err)
	assert.True(t, disbursed.Equal(c.DisbursedAmount))
}
