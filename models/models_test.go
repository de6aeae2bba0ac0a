package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		id := NewTransactionID()
		require.True(t, IsValidTransactionID(id), "unexpected id shape %q", id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate transaction id %q", id)
		seen[id] = struct{}{}
	}
}

func TestIsValidTransactionID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"TXN0123456789AB", true},
		{"TXNABCDEF012345", true},
		{"TXN0123456789ab", false},
		{"TXN0123456789A", false},
		{"ABC0123456789AB", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidTransactionID(tt.id))
		})
	}
}

func TestCampaignAvailableBalance(t *testing.T) {
	c := &Campaign{
		RaisedAmount:    decimal.RequireFromString("10000"),
		DisbursedAmount: decimal.RequireFromString("6000.50"),
	}
	assert.True(t, c.AvailableBalance().Equal(decimal.RequireFromString("3999.50")))

	c.DisbursedAmount = decimal.RequireFromString("12000")
	assert.True(t, c.AvailableBalance().IsZero())
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(500000), ToMinorUnits(decimal.RequireFromString("5000")))
	assert.Equal(t, int64(1050), ToMinorUnits(decimal.RequireFromString("10.50")))
	assert.Equal(t, int64(1), ToMinorUnits(decimal.RequireFromString("0.01")))
}

func TestDonationStatusIsTerminal(t *testing.T) {
	assert.False(t, DonationStatusInitiated.IsTerminal())
	assert.True(t, DonationStatusCompleted.IsTerminal())
	assert.True(t, DonationStatusFailed.IsTerminal())
}

func TestCampaignStatusValid(t *testing.T) {
	assert.True(t, CampaignStatusActive.Valid())
	assert.True(t, CampaignStatusClosed.Valid())
	assert.False(t, CampaignStatus("archived").Valid())
}
