package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"
	"foundryhost/internal/repository"
	"foundryhost/pkg/log"
	"foundryhost/pkg/metrics"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const notificationListLimit = 100

type NotificationService interface {
	Enqueue(ctx context.Context, kind, userID, sessionID string, payload map[string]interface{}) error
	// DeliverPending 把未投递的通知推送到 webhook，未配置 webhook 时只保留在表中供轮询
	DeliverPending(ctx context.Context) (delivered int, failed int, err error)
	List(ctx context.Context, userID string) (*v1.ListNotificationsResponseData, error)
}

func NewNotificationService(
	service *Service,
	notificationRepo repository.NotificationRepository,
	logger *log.Logger,
) NotificationService {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &notificationService{
		Service:          service,
		notificationRepo: notificationRepo,
		client:           client,
		logger:           logger,
	}
}

type notificationService struct {
	*Service
	notificationRepo repository.NotificationRepository
	client           *resty.Client
	logger           *log.Logger
}

func (s *notificationService) Enqueue(ctx context.Context, kind, userID, sessionID string, payload map[string]interface{}) error {
	id, err := s.sid.GenUint64()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	n := &model.SessionNotification{
		Id:        id,
		Kind:      kind,
		UserID:    userID,
		SessionID: sessionID,
		Payload:   datatypes.JSON(raw),
	}
	if err := s.notificationRepo.Create(ctx, n); err != nil {
		s.logger.WithContext(ctx).Error("enqueue notification failed", zap.String("kind", kind), zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

// webhookMessage webhook 请求体
type webhookMessage struct {
	ID        uint64          `json:"id"`
	Kind      string          `json:"kind"`
	UserID    string          `json:"userId"`
	SessionID string          `json:"sessionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (s *notificationService) DeliverPending(ctx context.Context) (int, int, error) {
	if s.opts.NotificationWebhook == "" {
		return 0, 0, nil
	}
	pending, err := s.notificationRepo.ListPending(ctx, s.opts.NotificationBatchSize, s.opts.NotificationMaxAttempts)
	if err != nil {
		return 0, 0, err
	}

	delivered, failed := 0, 0
	for _, n := range pending {
		if err := s.post(ctx, n); err != nil {
			failed++
			metrics.NotificationDeliveriesTotal.WithLabelValues("failed").Inc()
			s.logger.WithContext(ctx).Warn("deliver notification failed",
				zap.Uint64("id", n.Id), zap.String("kind", n.Kind), zap.Int("attempts", n.Attempts+1), zap.Error(err))
			if rerr := s.notificationRepo.RecordFailure(ctx, n.Id, err.Error()); rerr != nil {
				return delivered, failed, rerr
			}
			continue
		}
		delivered++
		metrics.NotificationDeliveriesTotal.WithLabelValues("delivered").Inc()
		if err := s.notificationRepo.MarkDelivered(ctx, n.Id, timeNow()); err != nil {
			return delivered, failed, err
		}
	}
	return delivered, failed, nil
}

func (s *notificationService) post(ctx context.Context, n *model.SessionNotification) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookMessage{
			ID:        n.Id,
			Kind:      n.Kind,
			UserID:    n.UserID,
			SessionID: n.SessionID,
			Payload:   json.RawMessage(n.Payload),
			CreatedAt: n.CreateTime,
		}).
		Post(s.opts.NotificationWebhook)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %s", resp.Status())
	}
	return nil
}

func (s *notificationService) List(ctx context.Context, userID string) (*v1.ListNotificationsResponseData, error) {
	list, err := s.notificationRepo.ListByUser(ctx, userID, notificationListLimit)
	if err != nil {
		return nil, err
	}
	data := &v1.ListNotificationsResponseData{Total: len(list), Notifications: make([]v1.NotificationData, 0, len(list))}
	for _, n := range list {
		var payload map[string]interface{}
		if len(n.Payload) > 0 {
			_ = json.Unmarshal(n.Payload, &payload)
		}
		data.Notifications = append(data.Notifications, v1.NotificationData{
			ID:        n.Id,
			Kind:      n.Kind,
			UserID:    n.UserID,
			SessionID: n.SessionID,
			Payload:   payload,
			Delivered: n.Delivered,
			CreatedAt: n.CreateTime,
		})
	}
	return data, nil
}
