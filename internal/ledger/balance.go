// Package ledger holds the pieces shared by every running-balance ledger in the service:
// the balance calculator, the payment guard modes, error kinds and command validation.
package ledger

import (
	"github.com/shopspring/decimal"

	"transport-ledger-backend/internal/models"
)

// Calculator derives the running fields of a receipt after a payment.
//
// By default an overpaid receipt (negative balance) is classified Pending, which is how
// existing data was produced. ClassifyOverpaid reports it as Overpaid instead.
type Calculator struct {
	ClassifyOverpaid bool
}

// Outcome is the result of applying one payment.
type Outcome struct {
	Received decimal.Decimal
	Balance  decimal.Decimal
	Status   string
}

// Apply adds payment to prior and derives the balance and status against invoice.
// It accepts any amount, including zero and negatives; callers validate.
func (c Calculator) Apply(invoice, prior, payment decimal.Decimal) Outcome {
	received := prior.Add(payment).Round(2)
	balance := invoice.Sub(received).Round(2)
	return Outcome{
		Received: received,
		Balance:  balance,
		Status:   c.Status(invoice, balance),
	}
}

// Status classifies a balance against its invoice amount.
func (c Calculator) Status(invoice, balance decimal.Decimal) string {
	switch {
	case balance.IsZero():
		return models.StatusPaid
	case balance.IsPositive() && balance.LessThan(invoice):
		return models.StatusPartial
	case balance.IsNegative() && c.ClassifyOverpaid:
		return models.StatusOverpaid
	default:
		return models.StatusPending
	}
}

// Accumulate is the transaction-side counterpart: a plain running total with no status.
func Accumulate(totalPaid, amount decimal.Decimal) decimal.Decimal {
	return totalPaid.Add(amount).Round(2)
}
