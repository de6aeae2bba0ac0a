package businessflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

func TestClientConfirmThenWebhookDuplicate(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("0")
	donation := h.createOrder(t, campaign.ID, "5000")

	resp, err := h.donations.VerifyPayment(ctx, checkoutRequest(donation, "pay_client001"), nil)
	require.NoError(t, err)
	assert.Equal(t, dto.ConfirmStatusCompleted, resp.Status)
	assert.True(t, models.IsValidTransactionID(resp.TransactionID))

	body, sig := capturedWebhook(t, businessflow.EventPaymentCaptured, donation.GatewayOrderID, "pay_client001", 500000)
	result, err := h.donations.HandleWebhook(ctx, body, sig, nil)
	require.NoError(t, err)
	assert.True(t, result.Handled)
	assert.Equal(t, string(businessflow.OutcomeAlreadyProcessed), result.Status)

	c := h.campaign(t, campaign.ID)
	assert.Equal(t, "5000", c.RaisedAmount.String())
	assert.Equal(t, int64(1), c.TotalDonors)

	donationTxns := h.transactionsOf(t, campaign.ID, models.TransactionTypeDonation)
	require.Len(t, donationTxns, 1)
	assert.Equal(t, resp.TransactionID, donationTxns[0].TransactionID)
	assert.Equal(t, models.TransactionStatusCompleted, donationTxns[0].Status)
	assert.Equal(t, "Donation to School Meals", donationTxns[0].Description)
	assert.Equal(t, "pay_client001", *donationTxns[0].GatewayTransactionID)

	d := h.donation(t, donation.ID)
	assert.Equal(t, models.DonationStatusCompleted, d.Status)
	require.NotNil(t, d.GatewayPaymentID)
	assert.Equal(t, "pay_client001", *d.GatewayPaymentID)
	assert.NotNil(t, d.CompletedAt)

	assert.Equal(t, 1, h.emails.Count(), "exactly one receipt")
}

func TestVerifyPaymentRepeatReturnsExistingTransaction(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("0")
	donation := h.createOrder(t, campaign.ID, "250.75")

	first, err := h.donations.VerifyPayment(ctx, checkoutRequest(donation, "pay_repeat01"), nil)
	require.NoError(t, err)

	second, err := h.donations.VerifyPayment(ctx, checkoutRequest(donation, "pay_repeat01"), nil)
	require.NoError(t, err)
	assert.Equal(t, dto.ConfirmStatusAlreadyProcessed, second.Status)
	assert.Equal(t, first.TransactionID, second.TransactionID)

	assert.Equal(t, "250.75", h.campaign(t, campaign.ID).RaisedAmount.String())
	assert.Len(t, h.transactionsOf(t, campaign.ID, models.TransactionTypeDonation), 1)
}

func TestConcurrentClientAndWebhookCreditOnce(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("0")
	donation := h.createOrder(t, campaign.ID, "1200")
	body, sig := capturedWebhook(t, businessflow.EventPaymentCaptured, donation.GatewayOrderID, "pay_race0001", 120000)

	const rounds = 8
	var wg sync.WaitGroup
	outcomes := make(chan string, rounds*2)
	errs := make(chan error, rounds*2)

	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			resp, err := h.donations.VerifyPayment(ctx, checkoutRequest(donation, "pay_race0001"), nil)
			if err != nil {
				errs <- err
				return
			}
			outcomes <- resp.Status
		}()
		go func() {
			defer wg.Done()
			res, err := h.donations.HandleWebhook(ctx, body, sig, nil)
			if err != nil {
				errs <- err
				return
			}
			outcomes <- res.Status
		}()
	}
	wg.Wait()
	close(outcomes)
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	completed := 0
	for o := range outcomes {
		if o == dto.ConfirmStatusCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, "1200", h.campaign(t, campaign.ID).RaisedAmount.String())
	assert.Len(t, h.transactionsOf(t, campaign.ID, models.TransactionTypeDonation), 1)
}

func TestTamperedSignatureFailsDonation(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("100")
	donation := h.createOrder(t, campaign.ID, "300")

	req := checkoutRequest(donation, "pay_tamper01")
	req.Signature = services.SignCheckout("wrong-secret", donation.GatewayOrderID, "pay_tamper01")

	_, err := h.donations.VerifyPayment(ctx, req, nil)
	require.Error(t, err)
	assert.True(t, businessflow.IsSignatureInvalid(err))

	d := h.donation(t, donation.ID)
	assert.Equal(t, models.DonationStatusFailed, d.Status)
	assert.NotNil(t, d.FailedAt)
	assert.Nil(t, d.GatewayPaymentID)
	assert.Equal(t, "100", h.campaign(t, campaign.ID).RaisedAmount.String())

	// a repeat, tampered or not, is a no-op on the terminal donation
	again, err := h.donations.VerifyPayment(ctx, req, nil)
	require.NoError(t, err)
	assert.Equal(t, dto.ConfirmStatusAlreadyProcessed, again.Status)
	assert.Empty(t, again.TransactionID)

	valid, err := h.donations.VerifyPayment(ctx, checkoutRequest(donation, "pay_tamper01"), nil)
	require.NoError(t, err)
	assert.Equal(t, dto.ConfirmStatusAlreadyProcessed, valid.Status)

	assert.Equal(t, models.DonationStatusFailed, h.donation(t, donation.ID).Status)
	assert.Equal(t, "100", h.campaign(t, campaign.ID).RaisedAmount.String())
	assert.Empty(t, h.transactionsOf(t, campaign.ID, models.TransactionTypeDonation))

	var invalid int
	for _, a := range h.store.AuditEntries() {
		if a.Action == models.AuditActionDonationSignatureInvalid {
			invalid++
		}
	}
	assert.Equal(t, 1, invalid)
}

func TestDuplicateGatewayPaymentIsRejected(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("0")
	first := h.createOrder(t, campaign.ID, "100")
	second := h.createOrder(t, campaign.ID, "200")

	_, err := h.donations.VerifyPayment(ctx, checkoutRequest(first, "pay_shared01"), nil)
	require.NoError(t, err)

	_, err = h.donations.VerifyPayment(ctx, checkoutRequest(second, "pay_shared01"), nil)
	require.Error(t, err)
	assert.True(t, businessflow.IsDuplicateGatewayPayment(err))

	assert.Equal(t, models.DonationStatusInitiated, h.donation(t, second.ID).Status)
	assert.Equal(t, "100", h.campaign(t, campaign.ID).RaisedAmount.String())
	assert.Len(t, h.transactionsOf(t, campaign.ID, models.TransactionTypeDonation), 1)

	found := false
	for _, a := range h.store.AuditEntries() {
		if a.Action == models.AuditActionDonationDuplicatePayment {
			found = true
			assert.False(t, *a.Success)
		}
	}
	assert.True(t, found)
}

func TestConfirmValidationLeavesNoMutation(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("0")
	donation := h.createOrder(t, campaign.ID, "100")

	t.Run("UnknownDonation", func(t *testing.T) {
		_, err := h.processor.Confirm(ctx, businessflow.ConfirmRequest{
			DonationID:       9999,
			GatewayOrderID:   donation.GatewayOrderID,
			GatewayPaymentID: "pay_x",
			Signature:        "00",
			SecretKind:       businessflow.SecretKindCheckout,
		}, nil)
		assert.ErrorIs(t, err, businessflow.ErrDonationNotFound)
	})

	t.Run("OrderMismatch", func(t *testing.T) {
		_, err := h.processor.Confirm(ctx, businessflow.ConfirmRequest{
			DonationID:       donation.ID,
			GatewayOrderID:   "order_other",
			GatewayPaymentID: "pay_x",
			Signature:        services.SignCheckout(testCheckoutSecret, "order_other", "pay_x"),
			SecretKind:       businessflow.SecretKindCheckout,
		}, nil)
		assert.ErrorIs(t, err, businessflow.ErrOrderMismatch)
		assert.True(t, businessflow.IsValidationError(err))
	})

	t.Run("MissingPaymentID", func(t *testing.T) {
		_, err := h.processor.Confirm(ctx, businessflow.ConfirmRequest{
			DonationID:     donation.ID,
			GatewayOrderID: donation.GatewayOrderID,
			SecretKind:     businessflow.SecretKindCheckout,
		}, nil)
		assert.ErrorIs(t, err, businessflow.ErrMissingPaymentID)
		assert.True(t, businessflow.IsValidationError(err))
	})

	t.Run("WrongOwner", func(t *testing.T) {
		req := checkoutRequest(donation, "pay_owner01")
		req.DonorID = testDonorID + 1
		_, err := h.donations.VerifyPayment(ctx, req, nil)
		assert.True(t, businessflow.IsDonationNotFound(err))
	})

	assert.Equal(t, models.DonationStatusInitiated, h.donation(t, donation.ID).Status)
	assert.True(t, h.campaign(t, campaign.ID).RaisedAmount.IsZero())
}

func TestConfirmRollsBackWhenLedgerAppendFails(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("0")
	donation := h.createOrder(t, campaign.ID, "100")

	h.store.TransactionSaveErr = errors.New("disk full")
	_, err := h.donations.VerifyPayment(ctx, checkoutRequest(donation, "pay_rollbk1"), nil)
	require.Error(t, err)

	d := h.donation(t, donation.ID)
	assert.Equal(t, models.DonationStatusInitiated, d.Status)
	assert.Nil(t, d.GatewayPaymentID)
	assert.True(t, h.campaign(t, campaign.ID).RaisedAmount.IsZero())

	h.store.TransactionSaveErr = nil
	resp, err := h.donations.VerifyPayment(ctx, checkoutRequest(donation, "pay_rollbk1"), nil)
	require.NoError(t, err)
	assert.Equal(t, dto.ConfirmStatusCompleted, resp.Status)
	assert.Equal(t, "100", h.campaign(t, campaign.ID).RaisedAmount.String())
}

func TestRaisedEqualsSumOfCompletedDonations(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("0")

	amounts := []string{"10.50", "99.99", "1000", "1.00", "250.25", "42"}
	expected := decimal.Zero
	for i, a := range amounts {
		d := h.createOrder(t, campaign.ID, a)
		req := checkoutRequest(d, fmt.Sprintf("pay_sum%04d", i))
		switch i % 3 {
		case 0:
			resp, err := h.donations.VerifyPayment(ctx, req, nil)
			require.NoError(t, err)
			assert.Equal(t, dto.ConfirmStatusCompleted, resp.Status)
			expected = expected.Add(decimal.RequireFromString(a))
		case 1:
			bad := *req
			bad.Signature = strings.Repeat("0", len(req.Signature))
			_, err := h.donations.VerifyPayment(ctx, &bad, nil)
			assert.ErrorIs(t, err, businessflow.ErrSignatureInvalid)
			assert.Equal(t, models.DonationStatusFailed, h.donation(t, d.ID).Status)

			// a valid proof after the failure does not revive the donation
			resp, err := h.donations.VerifyPayment(ctx, req, nil)
			require.NoError(t, err)
			assert.Equal(t, dto.ConfirmStatusAlreadyProcessed, resp.Status)
		case 2:
			_, err := h.donations.VerifyPayment(ctx, req, nil)
			require.NoError(t, err)
			expected = expected.Add(decimal.RequireFromString(a))

			resp, err := h.donations.VerifyPayment(ctx, req, nil)
			require.NoError(t, err)
			assert.Equal(t, dto.ConfirmStatusAlreadyProcessed, resp.Status)

			body, sig := capturedWebhook(t, businessflow.EventPaymentCaptured, d.GatewayOrderID, req.PaymentID, d.AmountInMinorUnits())
			result, err := h.donations.HandleWebhook(ctx, body, sig, nil)
			require.NoError(t, err)
			assert.Equal(t, string(businessflow.OutcomeAlreadyProcessed), result.Status)
		}

		sum, err := h.store.Donations().SumCompletedByCampaign(ctx, campaign.ID)
		require.NoError(t, err)
		assert.True(t, expected.Equal(sum), "after donation %d: want %s, got %s", i, expected, sum)
		assert.True(t, expected.Equal(h.campaign(t, campaign.ID).RaisedAmount))
	}

	assert.Equal(t, "1053.5", expected.String())
	assert.Len(t, h.transactionsOf(t, campaign.ID, models.TransactionTypeDonation), 4)

	report, err := h.reports.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.MismatchCount)
}
