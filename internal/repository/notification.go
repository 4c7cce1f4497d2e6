package repository

import (
	"context"
	"time"

	"foundryhost/internal/model"

	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.SessionNotification) error
	// ListPending 未投递且尝试次数小于 maxAttempts 的通知，按创建顺序
	ListPending(ctx context.Context, limit, maxAttempts int) ([]*model.SessionNotification, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.SessionNotification, error)
	MarkDelivered(ctx context.Context, id uint64, at time.Time) error
	RecordFailure(ctx context.Context, id uint64, reason string) error
	CountPending(ctx context.Context) (int64, error)
}

func NewNotificationRepository(r *Repository) NotificationRepository {
	return &notificationRepository{Repository: r}
}

type notificationRepository struct {
	*Repository
}

func (r *notificationRepository) Create(ctx context.Context, n *model.SessionNotification) error {
	return r.DB(ctx).Create(n).Error
}

func (r *notificationRepository) ListPending(ctx context.Context, limit, maxAttempts int) ([]*model.SessionNotification, error) {
	var list []*model.SessionNotification
	err := r.DB(ctx).
		Where("delivered = ? AND attempts < ?", false, maxAttempts).
		Order("gmt_create, id").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*model.SessionNotification, error) {
	var list []*model.SessionNotification
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("gmt_create DESC, id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) MarkDelivered(ctx context.Context, id uint64, at time.Time) error {
	return r.DB(ctx).Model(&model.SessionNotification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"delivered":    true,
			"delivered_at": at,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   "",
		}).Error
}

func (r *notificationRepository) RecordFailure(ctx context.Context, id uint64, reason string) error {
	return r.DB(ctx).Model(&model.SessionNotification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
}

func (r *notificationRepository) CountPending(ctx context.Context) (int64, error) {
	var total int64
	err := r.DB(ctx).Model(&model.SessionNotification{}).Where("delivered = ?", false).Count(&total).Error
	return total, err
}
