package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"transport-ledger-backend/internal/repository"
	"transport-ledger-backend/internal/services/transactions"
)

type TransactionHandler struct {
	service *transactions.Service
	log     *zap.Logger
}

func NewTransactionHandler(s *transactions.Service, log *zap.Logger) *TransactionHandler {
	return &TransactionHandler{service: s, log: log}
}

type createTransactionRequest struct {
	RequestID         uint            `json:"request_id"`
	TransporterID     uint            `json:"transporter_id"`
	TransporterName   string          `json:"transporter_name"`
	GRNumber          string          `json:"gr_number"`
	TransporterCharge decimal.Decimal `json:"transporter_charge"`
	GSTPercentage     decimal.Decimal `json:"gst_percentage"`
}

type transactionPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentMode *string         `json:"payment_mode"`
	PaymentDate *string         `json:"payment_date"`
	Remarks     *string         `json:"remarks"`
}

func (h *TransactionHandler) Create(c *gin.Context) {
	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	t, err := h.service.CreateTransaction(c.Request.Context(), transactions.CreateTransactionCommand(req))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": t})
}

func (h *TransactionHandler) List(c *gin.Context) {
	f := repository.TransactionFilter{GRNumber: c.Query("gr_number")}
	var err error
	if f.RequestID, err = queryUint(c, "request_id"); err != nil {
		respondError(c, h.log, err)
		return
	}
	if f.TransporterID, err = queryUint(c, "transporter_id"); err != nil {
		respondError(c, h.log, err)
		return
	}
	items, err := h.service.ListTransactions(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondPage(c, pagination(c), items)
}

func (h *TransactionHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	t, err := h.service.GetTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": t})
}

// Pay handles POST /transactions/:id/payments
func (h *TransactionHandler) Pay(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req transactionPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	paymentDate, err := parseDatePtr("payment_date", req.PaymentDate)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	t, detail, err := h.service.ApplyPayment(c.Request.Context(), id, transactions.PaymentCommand{
		Amount:      req.Amount,
		PaymentMode: req.PaymentMode,
		PaymentDate: paymentDate,
		Remarks:     req.Remarks,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"transaction": t, "payment": detail}})
}

func (h *TransactionHandler) Payments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": h.service.GetPayments(c.Request.Context(), id)})
}

func (h *TransactionHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteTransaction(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction deleted"})
}
