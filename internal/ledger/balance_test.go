package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"transport-ledger-backend/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculator_Apply(t *testing.T) {
	tests := []struct {
		name     string
		invoice  string
		prior    string
		payment  string
		received string
		balance  string
		status   string
	}{
		{"first partial payment", "5000.00", "0", "2000.00", "2000.00", "3000.00", models.StatusPartial},
		{"settles exactly", "10000.00", "4000.00", "6000.00", "10000.00", "0.00", models.StatusPaid},
		{"zero payment stays pending", "750.00", "0", "0", "0", "750.00", models.StatusPending},
		{"negative payment lifts balance above invoice", "750.00", "0", "-50.00", "-50.00", "800.00", models.StatusPending},
		{"overpayment falls to pending", "1000.00", "900.00", "200.00", "1100.00", "-100.00", models.StatusPending},
		{"rounds to cents", "100.00", "0", "33.333", "33.33", "66.67", models.StatusPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Calculator{}.Apply(d(tt.invoice), d(tt.prior), d(tt.payment))
			assert.True(t, d(tt.received).Equal(out.Received), "received %s", out.Received)
			assert.True(t, d(tt.balance).Equal(out.Balance), "balance %s", out.Balance)
			assert.Equal(t, tt.status, out.Status)
		})
	}
}

func TestCalculator_ClassifyOverpaid(t *testing.T) {
	out := Calculator{ClassifyOverpaid: true}.Apply(d("1000"), d("900"), d("200"))
	assert.Equal(t, models.StatusOverpaid, out.Status)

	out = Calculator{ClassifyOverpaid: true}.Apply(d("1000"), d("0"), d("200"))
	assert.Equal(t, models.StatusPartial, out.Status)
}

func TestCalculator_NoDriftOverManyPayments(t *testing.T) {
	// 0.10 * 1000 drifts with float64; with decimal it lands exactly on the invoice
	calc := Calculator{}
	invoice := d("100.00")
	received := decimal.Zero
	var out Outcome
	for i := 0; i < 1000; i++ {
		out = calc.Apply(invoice, received, d("0.10"))
		received = out.Received
		assert.True(t, out.Balance.Add(out.Received).Equal(invoice))
	}
	assert.Equal(t, models.StatusPaid, out.Status)
	assert.True(t, out.Balance.IsZero())
}

func TestAccumulate(t *testing.T) {
	assert.True(t, d("1500.50").Equal(Accumulate(d("1000.25"), d("500.25"))))
}
