package businessflow

import (
	"context"
	"testing"

	"github.com/amirphl/donation-ledger/app/services"
	"github.com/amirphl/donation-ledger/models"
	testingutil "github.com/amirphl/donation-ledger/testing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmCountsEarlyRejections(t *testing.T) {
	store := testingutil.NewMemoryStore()
	verifier := services.NewHMACSignatureVerifier("checkout-secret", "webhook-secret")
	processor := NewConfirmationProcessor(
		store.Donations(),
		store.Campaigns(),
		store.AuditLogs(),
		store.Transactor(),
		NewFundLedger(store.Campaigns()),
		NewTransactionLedger(store.Transactions()),
		verifier,
		services.NewNotificationService(services.NewMockEmailProvider()),
	)

	campaign := store.SeedCampaign(models.Campaign{Title: "Clean Water", TargetAmount: decimal.NewFromInt(1000)})
	donation := &models.Donation{
		CampaignID:     campaign.ID,
		DonorID:        1,
		Amount:         decimal.NewFromInt(100),
		Currency:       "INR",
		GatewayOrderID: "order_metrics01",
		Status:         models.DonationStatusInitiated,
	}
	require.NoError(t, store.Donations().Save(context.Background(), donation))

	channel := string(SecretKindCheckout)
	cases := []struct {
		name    string
		req     ConfirmRequest
		outcome string
		want    error
	}{
		{
			name:    "NotFound",
			req:     ConfirmRequest{DonationID: donation.ID + 100, GatewayOrderID: donation.GatewayOrderID, GatewayPaymentID: "pay_m1"},
			outcome: outcomeNotFound,
			want:    ErrDonationNotFound,
		},
		{
			name:    "OrderMismatch",
			req:     ConfirmRequest{DonationID: donation.ID, GatewayOrderID: "order_other", GatewayPaymentID: "pay_m2"},
			outcome: outcomeOrderMismatch,
			want:    ErrOrderMismatch,
		},
		{
			name:    "MissingPaymentID",
			req:     ConfirmRequest{DonationID: donation.ID, GatewayOrderID: donation.GatewayOrderID},
			outcome: outcomeMissingPaymentID,
			want:    ErrMissingPaymentID,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			counter := confirmationsTotal.WithLabelValues(channel, tc.outcome)
			before := testutil.ToFloat64(counter)

			tc.req.SecretKind = SecretKindCheckout
			_, err := processor.Confirm(context.Background(), tc.req, nil)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}

	stored, err := store.Donations().ByID(context.Background(), donation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationStatusInitiated, stored.Status)
}
