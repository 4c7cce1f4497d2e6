package repository

import (
	"context"
	"errors"
	"time"

	"foundryhost/internal/model"

	"gorm.io/gorm"
)

// 占用许可证的会话状态
var liveSessionStatuses = []model.SessionStatus{model.SessionStatusScheduled, model.SessionStatusActive}

type SessionRepository interface {
	Create(ctx context.Context, s *model.ScheduledSession) error
	GetByID(ctx context.Context, sessionID string) (*model.ScheduledSession, error)
	Transition(ctx context.Context, sessionID string, from []model.SessionStatus, to model.SessionStatus, fields map[string]interface{}) error
	ListByUser(ctx context.Context, userID string, statuses ...model.SessionStatus) ([]*model.ScheduledSession, error)
	ListByStatus(ctx context.Context, statuses ...model.SessionStatus) ([]*model.ScheduledSession, error)
	// ListOverlapping 与 [start, end) 相交且未取消、未完成的会话
	ListOverlapping(ctx context.Context, licenseID string, start, end time.Time) ([]*model.ScheduledSession, error)
	// ListDue 状态为 scheduled 且 start_time <= before 的会话
	ListDue(ctx context.Context, before time.Time) ([]*model.ScheduledSession, error)
	// NextForUser 用户最近一个尚未结束的会话
	NextForUser(ctx context.Context, userID string, now time.Time) (*model.ScheduledSession, error)
}

func NewSessionRepository(r *Repository) SessionRepository {
	return &sessionRepository{Repository: r}
}

type sessionRepository struct {
	*Repository
}

func (r *sessionRepository) Create(ctx context.Context, s *model.ScheduledSession) error {
	return r.DB(ctx).Create(s).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, sessionID string) (*model.ScheduledSession, error) {
	var s model.ScheduledSession
	if err := r.DB(ctx).Where("session_id = ?", sessionID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) Transition(ctx context.Context, sessionID string, from []model.SessionStatus, to model.SessionStatus, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to

	res := r.DB(ctx).Model(&model.ScheduledSession{}).
		Where("session_id = ? AND status IN ?", sessionID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

func (r *sessionRepository) ListByUser(ctx context.Context, userID string, statuses ...model.SessionStatus) ([]*model.ScheduledSession, error) {
	var list []*model.ScheduledSession
	db := r.DB(ctx).Where("user_id = ?", userID)
	if len(statuses) > 0 {
		db = db.Where("status IN ?", statuses)
	}
	if err := db.Order("start_time").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *sessionRepository) ListByStatus(ctx context.Context, statuses ...model.SessionStatus) ([]*model.ScheduledSession, error) {
	var list []*model.ScheduledSession
	if err := r.DB(ctx).Where("status IN ?", statuses).Order("start_time").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *sessionRepository) ListOverlapping(ctx context.Context, licenseID string, start, end time.Time) ([]*model.ScheduledSession, error) {
	var list []*model.ScheduledSession
	err := r.DB(ctx).
		Where("license_id = ? AND status IN ? AND start_time < ? AND end_time > ?", licenseID, liveSessionStatuses, end, start).
		Order("start_time").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *sessionRepository) ListDue(ctx context.Context, before time.Time) ([]*model.ScheduledSession, error) {
	var list []*model.ScheduledSession
	err := r.DB(ctx).
		Where("status = ? AND start_time <= ?", model.SessionStatusScheduled, before).
		Order("start_time").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *sessionRepository) NextForUser(ctx context.Context, userID string, now time.Time) (*model.ScheduledSession, error) {
	var s model.ScheduledSession
	err := r.DB(ctx).
		Where("user_id = ? AND status IN ? AND end_time > ?", userID, liveSessionStatuses, now).
		Order("start_time").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
