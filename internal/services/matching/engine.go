// Package matching suggests which open receipts an incoming customer payment most likely settles.
package matching

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"transport-ledger-backend/internal/ledger"
	"transport-ledger-backend/internal/models"
)

type Decision string

const (
	AutoMatch   Decision = "auto_match"
	NeedsReview Decision = "needs_review"
	Unmatched   Decision = "unmatched"
)

// Payment is money received that has not been applied to a receipt yet.
type Payment struct {
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	PayerName  string          `json:"payer_name" validate:"required,max=180"`
	PaidOn     time.Time       `json:"paid_on" validate:"required"`
	CustomerID uint            `json:"customer_id"`
}

type Candidate struct {
	ReceiptID uint            `json:"receipt_id"`
	InvoiceNo string          `json:"invoice_no"`
	Consigner string          `json:"consigner"`
	Balance   decimal.Decimal `json:"balance"`
	Score     float64         `json:"score"`
	Decision  Decision        `json:"decision"`
	Details   datatypes.JSON  `json:"details"`
}

// Source loads open receipts with their transport request.
type Source interface {
	OpenReceipts(ctx context.Context, customerID uint) ([]models.Receipt, error)
}

type Engine struct {
	src Source
}

func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

// Suggest validates p and scores it against every open receipt, best first. limit <= 0 means all.
func (e *Engine) Suggest(ctx context.Context, p Payment, limit int) ([]Candidate, error) {
	if err := ledger.Validate(p); err != nil {
		return nil, err
	}
	open, err := e.src.OpenReceipts(ctx, p.CustomerID)
	if err != nil {
		return nil, ledger.Persistence("load open receipts", err)
	}
	out := Score(open, p)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Score ranks receipts for p. Weights: amount 40, payer name 35, invoice date 15, ambiguity 10.
func Score(receipts []models.Receipt, p Payment) []Candidate {
	exact := 0
	for _, rc := range receipts {
		if rc.Balance.Equal(p.Amount) {
			exact++
		}
	}
	ambiguity := 100.0
	if exact > 1 {
		ambiguity = 80
	}

	out := make([]Candidate, 0, len(receipts))
	for _, rc := range receipts {
		if !rc.Balance.IsPositive() {
			continue
		}
		consigner := ""
		if rc.Request != nil {
			consigner = rc.Request.Consigner
		}

		amountPts := amountScore(p.Amount, rc.Balance)
		namePts := nameSimilarity(p.PayerName, consigner)
		datePts := dateScore(p.PaidOn, rc.InvoiceDate)
		final := math.Min(0.40*amountPts+0.35*namePts+0.15*datePts+0.10*ambiguity, 100)
		final = math.Round(final*100) / 100

		c := Candidate{
			ReceiptID: rc.ID,
			InvoiceNo: rc.InvoiceNo,
			Consigner: consigner,
			Balance:   rc.Balance,
			Score:     final,
			Decision:  decide(final),
		}
		c.Details, _ = json.Marshal(map[string]any{
			"amount_score":    amountPts,
			"name_score":      namePts,
			"date_score":      datePts,
			"ambiguity_score": ambiguity,
			"exact_amount":    rc.Balance.Equal(p.Amount),
			"payer_name":      p.PayerName,
		})
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ReceiptID < out[j].ReceiptID
	})
	return out
}

func decide(score float64) Decision {
	switch {
	case score >= 90:
		return AutoMatch
	case score >= 60:
		return NeedsReview
	default:
		return Unmatched
	}
}

// amountScore prefers payments that clear the balance exactly.
func amountScore(paid, balance decimal.Decimal) float64 {
	if paid.Equal(balance) {
		return 100
	}
	diff := paid.Sub(balance).Abs()
	if diff.LessThanOrEqual(balance.Mul(decimal.NewFromFloat(0.01))) {
		return 90
	}
	if paid.LessThan(balance) {
		return 50 // part payment
	}
	return 20
}

// nameSimilarity averages, over the consigner's tokens, the best Levenshtein ratio against
// any payer token. Result is 0-100.
func nameSimilarity(payer, consigner string) float64 {
	payerTokens := strings.Fields(normalizeName(payer))
	consignerTokens := strings.Fields(normalizeName(consigner))
	if len(consignerTokens) == 0 || len(payerTokens) == 0 {
		return 0
	}

	var total float64
	for _, ct := range consignerTokens {
		best := 0.0
		for _, pt := range payerTokens {
			longest := max(len([]rune(ct)), len([]rune(pt)))
			sim := 1 - float64(levenshtein(ct, pt))/float64(longest)
			best = math.Max(best, sim)
		}
		total += best
	}
	return total / float64(len(consignerTokens)) * 100
}

var nameNoise = strings.NewReplacer(".", "", ",", "", "-", " ", "&", " ", "(", " ", ")", " ")

func normalizeName(s string) string {
	return strings.TrimSpace(nameNoise.Replace(strings.ToUpper(s)))
}

func dateScore(paidOn, invoiceDate time.Time) float64 {
	days := math.Abs(paidOn.Sub(invoiceDate).Hours() / 24)
	switch {
	case days <= 3:
		return 100
	case days <= 7:
		return 80
	case days <= 15:
		return 60
	case days <= 30:
		return 40
	default:
		return 20
	}
}

// levenshtein is the rune edit distance, computed with two rolling rows.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
