package main

import (
	"log"
	"time"

	api "dealsync-backend/cmd/api"
	authdomain "dealsync-backend/internal/auth/domain"
	authRepo "dealsync-backend/internal/auth/repository"
	authUsecase "dealsync-backend/internal/auth/usecase"
	commsdomain "dealsync-backend/internal/comms/domain"
	commsRepo "dealsync-backend/internal/comms/repository"
	commsUsecase "dealsync-backend/internal/comms/usecase"
	txndomain "dealsync-backend/internal/transaction/domain"
	txnRepo "dealsync-backend/internal/transaction/repository"
	"dealsync-backend/pkg/blobstore"
	"dealsync-backend/pkg/config"
	"dealsync-backend/pkg/cooldown"
	"dealsync-backend/pkg/database"
	"dealsync-backend/pkg/gmail"
	"dealsync-backend/pkg/imapmail"
	"dealsync-backend/pkg/netretry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{},
		&txndomain.Transaction{},
		&txndomain.ContactAssignment{},
		&txndomain.Contact{},
		&txndomain.ContactEmail{},
		&txndomain.ContactPhone{},
		&commsdomain.StoredMessage{},
		&commsdomain.LinkRecord{},
		&commsdomain.IgnoredLink{},
		&commsdomain.AttachmentRecord{},
		&commsdomain.ProviderSyncCursor{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	transactionRepo := txnRepo.NewTransactionRepository(db)
	contactRepo := txnRepo.NewContactRepository(db)
	messageRepo := commsRepo.NewMessageRepository(db)
	linkRepo := commsRepo.NewLinkRepository(db)
	attachmentRepo := commsRepo.NewAttachmentRepository(db)
	cursorRepo := commsRepo.NewCursorRepository(db)

	// Initialize attachment blob store
	blobs, err := blobstore.New(cfg.AttachmentDir)
	if err != nil {
		log.Fatal("Failed to initialize attachment store:", err)
	}

	// Initialize provider adapters. Refreshed Gmail tokens are persisted
	// back through the user repository.
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, userRepo.SaveGmailTokens)
	imapService := imapmail.NewService(cfg.EncryptionKey)
	providers := []commsdomain.Provider{gmailService, imapService}

	// Cooldown windows per operation class
	guard := cooldown.NewGuard(map[string]time.Duration{
		commsUsecase.OpScan: cfg.ScanCooldown,
		commsUsecase.OpSync: cfg.SyncCooldown,
	})

	retryOpts := netretry.Options{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, cfg)
	commsUsecaseInstance := commsUsecase.NewSyncUsecase(
		userRepo,
		transactionRepo,
		contactRepo,
		messageRepo,
		linkRepo,
		attachmentRepo,
		cursorRepo,
		providers,
		guard,
		blobs,
		retryOpts,
		cfg.MaxPerContainer,
	)

	// Initialize HTTP handler
	handler := api.NewHandler(authUsecaseInstance, commsUsecaseInstance, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
