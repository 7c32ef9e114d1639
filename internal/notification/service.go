package notification

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/coder92330/nylas-mail/internal/account/repository"
)

// pushNotification is the payload Gmail publishes on the watch topic.
type pushNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// SyncTrigger requests an immediate sync cycle for an account.
type SyncTrigger interface {
	SyncNow(accountID string) bool
}

// Service listens on a Pub/Sub subscription for provider push notifications
// and turns them into sync triggers. The actual mail movement always goes
// through the normal sync cycle; the notification only collapses the polling
// delay.
type Service struct {
	client   *pubsub.Client
	accounts repository.AccountRepository
	trigger  SyncTrigger
	logger   *logrus.Logger

	topicName string
	subName   string

	mu            gosync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(projectID, topicName, credentialsFile string, accounts repository.AccountRepository, trigger SyncTrigger, logger *logrus.Logger) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &Service{
		client:        client,
		accounts:      accounts,
		trigger:       trigger,
		logger:        logger,
		topicName:     topicName,
		subName:       topicName + "-sub",
		lastHistoryID: make(map[string]uint64),
	}, nil
}

// Start blocks receiving notifications until ctx is cancelled. Meant to run
// as a goroutine.
func (s *Service) Start(ctx context.Context) {
	log := s.logger.WithFields(logrus.Fields{"topic": s.topicName, "subscription": s.subName})
	log.Info("Starting push notification listener")

	sub := s.client.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.WithError(err).Error("Could not check subscription existence")
		return
	}
	if !exists {
		topic := s.client.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.WithError(err).Error("Could not check topic existence")
			return
		}
		if !topicExists {
			log.Error("Topic does not exist, cannot create subscription")
			return
		}
		sub, err = s.client.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.WithError(err).Error("Could not create subscription")
			return
		}
		log.Info("Created subscription")
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(msg)
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Error("Notification listener stopped")
	}
}

func (s *Service) handleMessage(msg *pubsub.Message) {
	var notification pushNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		s.logger.WithError(err).Warn("Unparseable push notification")
		return
	}

	log := s.logger.WithFields(logrus.Fields{
		"email":      notification.EmailAddress,
		"history_id": notification.HistoryID,
	})

	account, err := s.accounts.FindByEmail(notification.EmailAddress)
	if err != nil {
		log.WithError(err).Error("Could not look up account for notification")
		return
	}
	if account == nil {
		log.Debug("Notification for unknown account")
		return
	}

	// Providers redeliver aggressively; drop history ids we already acted on.
	s.mu.Lock()
	last, seen := s.lastHistoryID[account.ID]
	if seen && notification.HistoryID <= last {
		s.mu.Unlock()
		return
	}
	s.lastHistoryID[account.ID] = notification.HistoryID
	s.mu.Unlock()

	if s.trigger.SyncNow(account.ID) {
		log.Debug("Push notification triggered sync")
	}
}

// Close releases the Pub/Sub client.
func (s *Service) Close() error {
	return s.client.Close()
}
