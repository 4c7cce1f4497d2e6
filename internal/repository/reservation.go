package repository

import (
	"context"
	"errors"
	"time"

	"foundryhost/internal/model"

	"gorm.io/gorm"
)

type ReservationRepository interface {
	Create(ctx context.Context, res *model.LicenseReservation) error
	GetBySessionID(ctx context.Context, sessionID string) (*model.LicenseReservation, error)
	// ListOverlapping 与 [start, end) 相交的 active 预订
	ListOverlapping(ctx context.Context, licenseID string, start, end time.Time) ([]*model.LicenseReservation, error)
	// UpdateStatusBySession 仅当当前状态为 from 时更新；预订不存在或已流转时返回 ErrStaleWrite
	UpdateStatusBySession(ctx context.Context, sessionID string, from, to model.ReservationStatus) error
}

func NewReservationRepository(r *Repository) ReservationRepository {
	return &reservationRepository{Repository: r}
}

type reservationRepository struct {
	*Repository
}

func (r *reservationRepository) Create(ctx context.Context, res *model.LicenseReservation) error {
	return r.DB(ctx).Create(res).Error
}

func (r *reservationRepository) GetBySessionID(ctx context.Context, sessionID string) (*model.LicenseReservation, error) {
	var res model.LicenseReservation
	if err := r.DB(ctx).Where("session_id = ?", sessionID).First(&res).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepository) ListOverlapping(ctx context.Context, licenseID string, start, end time.Time) ([]*model.LicenseReservation, error) {
	var list []*model.LicenseReservation
	err := r.DB(ctx).
		Where("license_id = ? AND status = ? AND start_time < ? AND end_time > ?", licenseID, model.ReservationStatusActive, end, start).
		Order("start_time").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *reservationRepository) UpdateStatusBySession(ctx context.Context, sessionID string, from, to model.ReservationStatus) error {
	res := r.DB(ctx).Model(&model.LicenseReservation{}).
		Where("session_id = ? AND status = ?", sessionID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}
