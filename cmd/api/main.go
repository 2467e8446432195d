package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"barbershop-payments/internal/client"
	"barbershop-payments/internal/config"
	"barbershop-payments/internal/logger"
	"barbershop-payments/internal/repository"
	"barbershop-payments/internal/security"
	"barbershop-payments/internal/server"
	"barbershop-payments/internal/service"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	db, err := client.InitDatabaseClient(cfg.Database)
	if err != nil {
		return err
	}
	if err := client.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	cipher, err := security.NewTokenCipher(cfg.Vault.Secret)
	if err != nil {
		return err
	}
	mpClient := client.NewMercadoPagoClient(&cfg.MercadoPago, cfg.OAuthRedirectURL())

	webhookEventRepo := repository.NewWebhookEventRepository(db)
	sellerRepo := repository.NewSellerRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	oauthStateRepo := repository.NewOAuthStateRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	productRepo := repository.NewProductRepository(db)
	serviceRepo := repository.NewServiceRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	splitPaymentRepo := repository.NewSplitPaymentRepository(db)

	appointmentFee, err := service.NewAppointmentFeePolicy(cfg.Fee)
	if err != nil {
		return err
	}

	vault := service.NewCredentialVault(db, cipher, credentialRepo, log)
	queueService, err := service.NewQueueService(db, queueRepo, appointmentRepo, cfg.Queue, log)
	if err != nil {
		return err
	}
	oauthService := service.NewOAuthService(
		db,
		mpClient,
		oauthStateRepo,
		sellerRepo,
		profileRepo,
		vault,
		cfg.MercadoPago.StateTTL,
		log,
	)
	preferenceService := service.NewPreferenceService(
		db, mpClient, vault, queueService,
		serviceRepo,
		productRepo,
		profileRepo,
		appointmentRepo,
		orderRepo,
		service.PreferenceConfig{
			PublicBaseURL:      cfg.BaseURL,
			WebhookURL:         cfg.WebhookURL(),
			SponsorID:          cfg.MercadoPago.SponsorID,
			AppointmentFee:     appointmentFee,
			MarketplacePercent: cfg.Fee.MarketplacePercent,
		},
		log,
	)
	settlementService := service.NewSettlementService(db, orderRepo, productRepo, splitPaymentRepo, log)
	webhookService := service.NewWebhookService(
		db, mpClient, cfg.MercadoPago.WebhookSecret,
		webhookEventRepo,
		appointmentRepo,
		settlementService,
		log,
	)
	appointmentService := service.NewAppointmentService(db, appointmentRepo, sellerRepo, queueService, log)
	sellerService := service.NewSellerService(sellerRepo, splitPaymentRepo, vault)

	if cfg.MercadoPago.WebhookSecret == "" {
		log.Warn("MP_WEBHOOK_SECRET is empty, webhook signatures will not be verified")
	}

	srv := server.NewServer(server.Services{
		OAuth:       oauthService,
		Preference:  preferenceService,
		Webhook:     webhookService,
		Appointment: appointmentService,
		Queue:       queueService,
		Seller:      sellerService,
	}, cfg.Auth.JWTSecret, log)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	log.Info("starting HTTP server", zap.String("addr", serverAddr), zap.String("env", cfg.Environment.Name))
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-sigChan:
	}
	log.Info("signal received, starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
