package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	handler "transport-ledger-backend/internal/handlers"
	"transport-ledger-backend/internal/services/matching"
	"transport-ledger-backend/internal/services/receipts"
	service "transport-ledger-backend/internal/services/reconciliation"
	"transport-ledger-backend/internal/services/transactions"
)

// Services are the ledger operations exposed over HTTP.
type Services struct {
	Receipts       *receipts.Service
	Transactions   *transactions.Service
	Reconciliation *service.ReconciliationService
	Matcher        *matching.Engine
}

func RegisterRoutes(r *gin.Engine, s Services, log *zap.Logger) {
	receiptHandler := handler.NewReceiptHandler(s.Receipts, s.Matcher, log)
	txnHandler := handler.NewTransactionHandler(s.Transactions, log)
	reconHandler := handler.NewReconciliationHandler(s.Reconciliation, log)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Customer receipts
	rc := api.Group("/receipts")
	rc.POST("", receiptHandler.Create)
	rc.GET("", receiptHandler.List)
	rc.GET("/summary", receiptHandler.Summary)
	rc.GET("/invoice/:invoiceNo", receiptHandler.ByInvoice)
	rc.POST("/match", receiptHandler.Match)
	rc.GET("/:id", receiptHandler.Get)
	rc.DELETE("/:id", receiptHandler.Delete)
	rc.POST("/:id/payments", receiptHandler.ApplyPayment)
	rc.GET("/:id/payments", receiptHandler.History)

	// Transporter transactions
	tx := api.Group("/transactions")
	tx.POST("", txnHandler.Create)
	tx.GET("", txnHandler.List)
	tx.GET("/:id", txnHandler.Get)
	tx.DELETE("/:id", txnHandler.Delete)
	tx.POST("/:id/payments", txnHandler.Pay)
	tx.GET("/:id/payments", txnHandler.Payments)

	recon := api.Group("/reconciliation")
	recon.POST("/run", reconHandler.Run)
	recon.GET("/runs/:runId", reconHandler.GetRun)
}
