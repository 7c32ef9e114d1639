package main

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	api "github.com/coder92330/nylas-mail/cmd/api"
	accountrepo "github.com/coder92330/nylas-mail/internal/account/repository"
	accountusecase "github.com/coder92330/nylas-mail/internal/account/usecase"
	"github.com/coder92330/nylas-mail/internal/delta"
	"github.com/coder92330/nylas-mail/internal/ingest"
	mailrepo "github.com/coder92330/nylas-mail/internal/mail/repository"
	mailusecase "github.com/coder92330/nylas-mail/internal/mail/usecase"
	"github.com/coder92330/nylas-mail/internal/notification"
	"github.com/coder92330/nylas-mail/internal/session"
	syncpkg "github.com/coder92330/nylas-mail/internal/sync"
	"github.com/coder92330/nylas-mail/pkg/bus"
	"github.com/coder92330/nylas-mail/pkg/config"
	"github.com/coder92330/nylas-mail/pkg/database"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	secret := cfg.EncryptionKey
	if secret == "" {
		logger.Warn("CREDENTIALS_ENCRYPTION_KEY not set, falling back to JWT secret")
		secret = cfg.JWTSecret
	}

	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	b := bus.New()
	store := mailrepo.NewStore(db, b)
	if err := store.Migrate(); err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	accountRepository := accountrepo.NewAccountRepository(db)
	mailboxRepository := mailrepo.NewMailboxRepository(db)
	syncbackRepository := mailrepo.NewSyncbackRepository(db)
	transactionRepository := mailrepo.NewTransactionRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor := ingest.NewProcessor(store, logger)
	pipeline := ingest.NewPipeline(processor, mailboxRepository, logger, cfg.IngestQueueLimit, cfg.IngestDelay, cfg.ParseErrorDir)
	go pipeline.Run(ctx)

	manager := syncpkg.NewManager(syncpkg.Deps{
		Accounts:  accountRepository,
		Mailboxes: mailboxRepository,
		Syncbacks: syncbackRepository,
		Connector: session.NewIMAPConnector(logger),
		Pipeline:  pipeline,
		Bus:       b,
		Logger:    logger,
		Secret:    secret,
	})
	if err := manager.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start sync workers")
	}
	defer manager.Stop()

	// Push notifications shorten the poll delay; sync works without them.
	if cfg.GoogleProjectID != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}
		notifService, err := notification.NewService(cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, accountRepository, manager, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize notification service")
		} else {
			go notifService.Start(ctx)
		}
	} else {
		logger.Info("GOOGLE_PROJECT_ID not configured, push notifications disabled")
	}

	feed := delta.NewFeed(db, transactionRepository, b, logger)
	accountUsecase := accountusecase.NewAccountUsecase(accountRepository, b, manager, secret, accountusecase.SyncDefaults{
		ActiveInterval:   cfg.ActiveSyncInterval,
		InactiveInterval: cfg.InactiveSyncInterval,
	})
	mailUsecase := mailusecase.NewMailUsecase(store, manager, logger)

	handler := api.NewHandler(accountUsecase, mailUsecase, feed, cfg, logger)

	logger.WithField("port", cfg.Port).Info("Server starting")
	if err := handler.Start(":" + cfg.Port); err != nil {
		logger.WithError(err).Fatal("Failed to start server")
	}
}
