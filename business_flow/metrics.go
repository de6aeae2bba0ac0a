package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Confirmation outcomes recorded on confirmationsTotal
const (
	outcomeCompleted        = "completed"
	outcomeAlreadyProcessed = "already_processed"
	outcomeSignatureInvalid = "signature_invalid"
	outcomeDuplicatePayment = "duplicate_payment"
	outcomeError            = "error"
	outcomeInsufficient     = "insufficient_funds"
	outcomeNotFound         = "not_found"
	outcomeOrderMismatch    = "order_mismatch"
	outcomeMissingPaymentID = "missing_payment_id"
	outcomeAmountMismatch   = "amount_mismatch"
)

var (
	confirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_confirmations_total",
			Help: "Donation confirmations by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	disbursementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_disbursements_total",
			Help: "Disbursement attempts by outcome",
		},
		[]string{"outcome"},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_webhook_events_total",
			Help: "Gateway webhook deliveries by event and whether they were handled",
		},
		[]string{"event", "handled"},
	)
)
