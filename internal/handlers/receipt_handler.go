package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"transport-ledger-backend/internal/repository"
	"transport-ledger-backend/internal/services/matching"
	"transport-ledger-backend/internal/services/receipts"
)

type ReceiptHandler struct {
	service *receipts.Service
	matcher *matching.Engine
	log     *zap.Logger
}

func NewReceiptHandler(s *receipts.Service, m *matching.Engine, log *zap.Logger) *ReceiptHandler {
	return &ReceiptHandler{service: s, matcher: m, log: log}
}

type createReceiptRequest struct {
	RequestID      uint             `json:"request_id"`
	CustomerID     uint             `json:"customer_id"`
	InvoiceNo      string           `json:"invoice_no"`
	InvoiceDate    string           `json:"invoice_date"`
	InvoiceAmount  decimal.Decimal  `json:"invoice_amount"`
	ReceivedAmount *decimal.Decimal `json:"received_amount"`
	Balance        *decimal.Decimal `json:"balance"`
	PaymentStatus  *string          `json:"payment_status"`
	VoucherNo      *string          `json:"voucher_no"`
	VoucherDate    *string          `json:"voucher_date"`
	PaymentMode    *string          `json:"payment_mode"`
	PaymentDate    *string          `json:"payment_date"`
	Remarks        *string          `json:"remarks"`
}

type paymentRequest struct {
	ReceivedAmount decimal.Decimal `json:"received_amount"`
	VoucherNo      *string         `json:"voucher_no"`
	VoucherDate    *string         `json:"voucher_date"`
	PaymentMode    *string         `json:"payment_mode"`
	PaymentDate    *string         `json:"payment_date"`
	Remarks        *string         `json:"remarks"`
}

type matchRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	PayerName  string          `json:"payer_name"`
	PaidOn     string          `json:"paid_on"`
	CustomerID uint            `json:"customer_id"`
	Limit      int             `json:"limit"`
}

// Create handles POST /receipts
func (h *ReceiptHandler) Create(c *gin.Context) {
	var req createReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}

	invoiceDate, err := parseDate("invoice_date", req.InvoiceDate)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	voucherDate, err := parseDatePtr("voucher_date", req.VoucherDate)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	paymentDate, err := parseDatePtr("payment_date", req.PaymentDate)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	rc, err := h.service.CreateReceipt(c.Request.Context(), receipts.CreateReceiptCommand{
		RequestID:      req.RequestID,
		CustomerID:     req.CustomerID,
		InvoiceNo:      req.InvoiceNo,
		InvoiceDate:    invoiceDate,
		InvoiceAmount:  req.InvoiceAmount,
		ReceivedAmount: req.ReceivedAmount,
		Balance:        req.Balance,
		PaymentStatus:  req.PaymentStatus,
		VoucherNo:      req.VoucherNo,
		VoucherDate:    voucherDate,
		PaymentMode:    req.PaymentMode,
		PaymentDate:    paymentDate,
		Remarks:        req.Remarks,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": rc})
}

func (h *ReceiptHandler) filter(c *gin.Context) (repository.ReceiptFilter, error) {
	f := repository.ReceiptFilter{
		InvoiceNo:     c.Query("invoice_no"),
		PaymentStatus: c.Query("payment_status"),
		Consigner:     c.Query("consigner"),
	}
	var err error
	if f.FromDate, err = queryDate(c, "from_date"); err != nil {
		return f, err
	}
	if f.ToDate, err = queryDate(c, "to_date"); err != nil {
		return f, err
	}
	if f.CreatedFrom, err = queryDate(c, "created_from"); err != nil {
		return f, err
	}
	if f.CreatedTo, err = queryDate(c, "created_to"); err != nil {
		return f, err
	}
	if f.CustomerID, err = queryUint(c, "customer_id"); err != nil {
		return f, err
	}
	if f.RequestID, err = queryUint(c, "request_id"); err != nil {
		return f, err
	}
	return f, nil
}

// List handles GET /receipts
func (h *ReceiptHandler) List(c *gin.Context) {
	f, err := h.filter(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	items, err := h.service.ListReceipts(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondPage(c, pagination(c), items)
}

// Summary handles GET /receipts/summary
func (h *ReceiptHandler) Summary(c *gin.Context) {
	f, err := h.filter(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	rows, err := h.service.Summary(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	var count int64
	invoice, received, balance := decimal.Zero, decimal.Zero, decimal.Zero
	for _, r := range rows {
		count += r.Count
		invoice = invoice.Add(r.InvoiceSum)
		received = received.Add(r.ReceivedSum)
		balance = balance.Add(r.BalanceSum)
	}
	totals := gin.H{
		"count":        count,
		"invoice_sum":  invoice,
		"received_sum": received,
		"balance_sum":  balance,
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"by_status": rows, "totals": totals}})
}

// ByInvoice handles GET /receipts/invoice/:invoiceNo
func (h *ReceiptHandler) ByInvoice(c *gin.Context) {
	items, err := h.service.GetReceiptsByInvoice(c.Request.Context(), c.Param("invoiceNo"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// Get handles GET /receipts/:id
func (h *ReceiptHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rc, err := h.service.GetReceipt(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rc})
}

// ApplyPayment handles POST /receipts/:id/payments
func (h *ReceiptHandler) ApplyPayment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	voucherDate, err := parseDatePtr("voucher_date", req.VoucherDate)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	paymentDate, err := parseDatePtr("payment_date", req.PaymentDate)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	rc, err := h.service.ApplyPayment(c.Request.Context(), id, receipts.ApplyPaymentCommand{
		ReceivedAmount: req.ReceivedAmount,
		VoucherNo:      req.VoucherNo,
		VoucherDate:    voucherDate,
		PaymentMode:    req.PaymentMode,
		PaymentDate:    paymentDate,
		Remarks:        req.Remarks,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rc})
}

// History handles GET /receipts/:id/payments
func (h *ReceiptHandler) History(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.service.GetPaymentHistory(c.Request.Context(), id)})
}

// Delete handles DELETE /receipts/:id
func (h *ReceiptHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rc, err := h.service.DeleteReceipt(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "receipt deleted", "data": rc})
}

// Match handles POST /receipts/match
func (h *ReceiptHandler) Match(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	paidOn, err := parseDate("paid_on", req.PaidOn)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}

	candidates, err := h.matcher.Suggest(c.Request.Context(), matching.Payment{
		Amount:     req.Amount,
		PayerName:  req.PayerName,
		PaidOn:     paidOn,
		CustomerID: req.CustomerID,
	}, limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": candidates})
}
