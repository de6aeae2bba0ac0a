package businessflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/amirphl/donation-ledger/app/dto"
	"github.com/amirphl/donation-ledger/app/services"
	businessflow "github.com/amirphl/donation-ledger/business_flow"
	"github.com/amirphl/donation-ledger/models"
	"github.com/amirphl/donation-ledger/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("0")

	resp, err := h.donations.CreateOrder(ctx, &dto.CreateDonationOrderRequest{
		CampaignID:  campaign.ID,
		Amount:      decimal.RequireFromString("5000.50"),
		DonorID:     testDonorID,
		DonorName:   "Ravi",
		DonorEmail:  "ravi@example.com",
		IsAnonymous: true,
	}, businessflow.NewClientMetadata("10.0.0.1", "agent"))
	require.NoError(t, err)

	assert.Contains(t, resp.OrderID, "order_")
	assert.Equal(t, int64(500050), resp.AmountMinor)
	assert.Equal(t, "INR", resp.Currency)
	assert.Equal(t, "rzp_test_key", resp.KeyID)

	require.Len(t, h.gateway.Orders, 1)
	order := h.gateway.Orders[0]
	assert.Equal(t, int64(500050), order.AmountMinor)
	assert.Equal(t, resp.DonationID, order.Receipt)
	assert.Equal(t, "ravi@example.com", order.Notes["donor_email"])
	assert.Equal(t, "42", order.Notes["donor_id"])

	stored, err := h.store.Donations().ByUUID(ctx, resp.DonationID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.DonationStatusInitiated, stored.Status)
	assert.Equal(t, resp.OrderID, stored.GatewayOrderID)
	assert.True(t, stored.IsAnonymous)
	assert.Nil(t, stored.GatewayPaymentID)
}

func TestCreateOrderValidation(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	active := h.seedCampaign("0")
	paused := h.store.SeedCampaign(models.Campaign{Title: "Paused", Status: models.CampaignStatusPaused})

	tests := []struct {
		name       string
		campaignID uint
		amount     string
		check      func(error) bool
	}{
		{"ZeroAmount", active.ID, "0", businessflow.IsInvalidAmount},
		{"NegativeAmount", active.ID, "-5", businessflow.IsInvalidAmount},
		{"TooPrecise", active.ID, "10.001", func(err error) bool { return errors.Is(err, businessflow.ErrAmountPrecision) }},
		{"BelowMinimum", active.ID, "0.50", func(err error) bool { return errors.Is(err, businessflow.ErrAmountTooLow) }},
		{"AboveMaximum", active.ID, "1000000.01", func(err error) bool { return errors.Is(err, businessflow.ErrAmountTooHigh) }},
		{"UnknownCampaign", 999, "10", businessflow.IsCampaignNotFound},
		{"PausedCampaign", paused.ID, "10", businessflow.IsCampaignNotActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.donations.CreateOrder(ctx, &dto.CreateDonationOrderRequest{
				CampaignID: tt.campaignID,
				Amount:     decimal.RequireFromString(tt.amount),
				DonorID:    testDonorID,
			}, nil)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	assert.Empty(t, h.gateway.Orders)
	n, err := h.store.Donations().Count(ctx, models.DonationFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateOrderGatewayFailureSavesNothing(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("0")
	h.gateway.Err = services.ErrGatewayRequestFailed

	_, err := h.donations.CreateOrder(ctx, &dto.CreateDonationOrderRequest{
		CampaignID: campaign.ID,
		Amount:     decimal.NewFromInt(100),
		DonorID:    testDonorID,
	}, nil)
	require.Error(t, err)
	assert.True(t, businessflow.IsGatewayUnavailable(err))

	n, err := h.store.Donations().Count(ctx, models.DonationFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)

	var failed int
	for _, a := range h.store.AuditEntries() {
		if a.Action == models.AuditActionDonationOrderFailed {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("CapturedPaymentCompletesDonation", func(t *testing.T) {
		h := newLedgerHarness(t)
		campaign := h.seedCampaign("0")
		donation := h.createOrder(t, campaign.ID, "750")

		body, sig := capturedWebhook(t, businessflow.EventPaymentCaptured, donation.GatewayOrderID, "pay_hook0001", 75000)
		res, err := h.donations.HandleWebhook(ctx, body, sig, nil)
		require.NoError(t, err)
		assert.True(t, res.Handled)
		assert.Equal(t, string(businessflow.OutcomeCompleted), res.Status)
		assert.Equal(t, models.DonationStatusCompleted, h.donation(t, donation.ID).Status)
		assert.Equal(t, "750", h.campaign(t, campaign.ID).RaisedAmount.String())

		audits := h.store.AuditEntries()
		require.NotEmpty(t, audits)
		last := audits[len(audits)-1]
		assert.Equal(t, models.AuditActionDonationCompleted, last.Action)
		assert.Equal(t, models.AuditActorGateway, last.ActorType)
	})

	t.Run("ForgedSignatureChangesNothing", func(t *testing.T) {
		h := newLedgerHarness(t)
		campaign := h.seedCampaign("0")
		donation := h.createOrder(t, campaign.ID, "750")

		body, _ := capturedWebhook(t, businessflow.EventPaymentCaptured, donation.GatewayOrderID, "pay_forged01", 75000)
		_, err := h.donations.HandleWebhook(ctx, body, services.SignHMACSHA256("guess", body), nil)
		require.Error(t, err)
		assert.True(t, businessflow.IsSignatureInvalid(err))
		assert.Equal(t, models.DonationStatusInitiated, h.donation(t, donation.ID).Status)
	})

	t.Run("CheckoutSecretDoesNotSignWebhooks", func(t *testing.T) {
		h := newLedgerHarness(t)
		campaign := h.seedCampaign("0")
		donation := h.createOrder(t, campaign.ID, "750")

		body, _ := capturedWebhook(t, businessflow.EventPaymentCaptured, donation.GatewayOrderID, "pay_secret01", 75000)
		_, err := h.donations.HandleWebhook(ctx, body, services.SignHMACSHA256(testCheckoutSecret, body), nil)
		assert.True(t, businessflow.IsSignatureInvalid(err))
	})

	t.Run("OtherEventsAreIgnored", func(t *testing.T) {
		h := newLedgerHarness(t)
		campaign := h.seedCampaign("0")
		donation := h.createOrder(t, campaign.ID, "750")

		body, sig := capturedWebhook(t, "payment.failed", donation.GatewayOrderID, "pay_failed01", 75000)
		res, err := h.donations.HandleWebhook(ctx, body, sig, nil)
		require.NoError(t, err)
		assert.False(t, res.Handled)
		assert.Equal(t, "payment.failed", res.Event)
		assert.Equal(t, models.DonationStatusInitiated, h.donation(t, donation.ID).Status)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		h := newLedgerHarness(t)
		body := []byte("{not json")
		_, err := h.donations.HandleWebhook(ctx, body, services.SignHMACSHA256(testWebhookSecret, body), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, businessflow.ErrMalformedWebhook)
	})

	t.Run("UnknownOrder", func(t *testing.T) {
		h := newLedgerHarness(t)
		body, sig := capturedWebhook(t, businessflow.EventPaymentCaptured, "order_unknown", "pay_unknown1", 100)
		_, err := h.donations.HandleWebhook(ctx, body, sig, nil)
		assert.True(t, businessflow.IsDonationNotFound(err))
	})

	t.Run("CapturedAmountMismatch", func(t *testing.T) {
		h := newLedgerHarness(t)
		campaign := h.seedCampaign("0")
		donation := h.createOrder(t, campaign.ID, "750")

		body, sig := capturedWebhook(t, businessflow.EventPaymentCaptured, donation.GatewayOrderID, "pay_short001", 100)
		res, err := h.donations.HandleWebhook(ctx, body, sig, nil)
		require.NoError(t, err)
		assert.False(t, res.Handled)
		assert.Equal(t, "amount_mismatch", res.Status)
		assert.Equal(t, businessflow.EventPaymentCaptured, res.Event)

		stored := h.donation(t, donation.ID)
		assert.Equal(t, models.DonationStatusInitiated, stored.Status)
		assert.Nil(t, stored.GatewayPaymentID)
		assert.True(t, h.campaign(t, campaign.ID).RaisedAmount.IsZero())

		audits := h.store.AuditEntries()
		require.NotEmpty(t, audits)
		last := audits[len(audits)-1]
		assert.Equal(t, models.AuditActionDonationAmountMismatch, last.Action)
		assert.Equal(t, models.AuditActorGateway, last.ActorType)
		require.NotNil(t, last.DonationID)
		assert.Equal(t, donation.ID, *last.DonationID)
		assert.False(t, *last.Success)

		// a redelivery is acknowledged the same way and the correct capture still completes
		res, err = h.donations.HandleWebhook(ctx, body, sig, nil)
		require.NoError(t, err)
		assert.Equal(t, "amount_mismatch", res.Status)

		body, sig = capturedWebhook(t, businessflow.EventPaymentCaptured, donation.GatewayOrderID, "pay_full0001", 75000)
		res, err = h.donations.HandleWebhook(ctx, body, sig, nil)
		require.NoError(t, err)
		assert.True(t, res.Handled)
		assert.Equal(t, "750", h.campaign(t, campaign.ID).RaisedAmount.String())
	})
}

func TestGetAndListMyDonations(t *testing.T) {
	h := newLedgerHarness(t)
	ctx := context.Background()
	campaign := h.seedCampaign("0")

	first := h.createOrder(t, campaign.ID, "10")
	h.createOrder(t, campaign.ID, "20")
	third := h.createOrder(t, campaign.ID, "30")
	_, err := h.donations.VerifyPayment(ctx, checkoutRequest(third, "pay_list0001"), nil)
	require.NoError(t, err)

	got, err := h.donations.GetDonation(ctx, &dto.GetDonationRequest{DonationID: first.UUID.String(), DonorID: testDonorID})
	require.NoError(t, err)
	assert.Equal(t, first.UUID.String(), got.UUID)
	assert.Equal(t, "Asha", got.DonorName)

	_, err = h.donations.GetDonation(ctx, &dto.GetDonationRequest{DonationID: first.UUID.String(), DonorID: 1})
	assert.True(t, businessflow.IsDonationNotFound(err))

	all, err := h.donations.ListMyDonations(ctx, &dto.ListMyDonationsRequest{DonorID: testDonorID, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)
	assert.Equal(t, int64(3), all.Pagination.TotalItems)
	assert.Equal(t, int64(2), all.Pagination.TotalPages)
	assert.True(t, all.Pagination.HasNext)

	completed, err := h.donations.ListMyDonations(ctx, &dto.ListMyDonationsRequest{
		DonorID: testDonorID,
		Status:  utils.ToPtr(string(models.DonationStatusCompleted)),
	})
	require.NoError(t, err)
	require.Len(t, completed.Items, 1)
	assert.Equal(t, third.UUID.String(), completed.Items[0].UUID)

	none, err := h.donations.ListMyDonations(ctx, &dto.ListMyDonationsRequest{DonorID: 1})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
}
