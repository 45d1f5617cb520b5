package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"transport-ledger-backend/internal/config"
	"transport-ledger-backend/internal/events"
	"transport-ledger-backend/internal/idgen"
	"transport-ledger-backend/internal/jobs"
	"transport-ledger-backend/internal/kvstore"
	"transport-ledger-backend/internal/ledger"
	"transport-ledger-backend/internal/models"
	"transport-ledger-backend/internal/repository"
	"transport-ledger-backend/internal/routes"
	"transport-ledger-backend/internal/services/matching"
	"transport-ledger-backend/internal/services/receipts"
	"transport-ledger-backend/internal/services/reconciliation"
	"transport-ledger-backend/internal/services/transactions"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDB(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return err
	}

	if cfg.PaymentGuard == ledger.GuardNone {
		logger.Warn("LEDGER_PAYMENT_GUARD is none: concurrent payments on one receipt can overwrite each other; set it to cas")
	}

	var store kvstore.Store = kvstore.NewMemory()
	if cfg.RedisAddr != "" {
		rs, err := kvstore.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "transport-ledger:")
		if err != nil {
			return err
		}
		defer rs.Close()
		store = rs
	}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, logger)
		if err != nil {
			return err
		}
		publisher = kp
	}
	defer publisher.Close()

	ids, err := idgen.NewAllocator(cfg.SnowflakeNode)
	if err != nil {
		return err
	}

	receiptRepo := repository.NewReceiptRepository(db)
	requestRepo := repository.NewRequestRepository(db)

	services := routes.Services{
		Receipts: receipts.NewService(receiptRepo, requestRepo, receipts.Options{
			Guard:      cfg.PaymentGuard,
			Calculator: ledger.Calculator{ClassifyOverpaid: cfg.ClassifyOverpay},
			Publisher:  publisher,
			Logger:     logger.Named("receipts"),
		}),
		Transactions: transactions.NewService(repository.NewTransactionRepository(db), requestRepo, ids, transactions.Options{
			Guard:     cfg.PaymentGuard,
			Publisher: publisher,
			Logger:    logger.Named("transactions"),
		}),
		Reconciliation: reconciliation.NewReconciliationService(receiptRepo, requestRepo, reconciliation.Options{
			Store:     store,
			Publisher: publisher,
			Logger:    logger.Named("reconciliation"),
			LeaseTTL:  cfg.ReconcileTTL,
		}),
		Matcher: matching.NewEngine(receiptRepo),
	}

	scheduler := jobs.NewScheduler(logger.Named("jobs"))
	if cfg.ReconcileCron != "" {
		if _, err := scheduler.ScheduleReconciliation(cfg.ReconcileCron, services.Reconciliation, cfg.ReconcileTTL); err != nil {
			return err
		}
		scheduler.Start()
		logger.Info("reconciliation scheduled", zap.String("cron", cfg.ReconcileCron))
	}

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, services, logger.Named("http"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("payment_guard", string(cfg.PaymentGuard)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}
