package repository

import (
	"context"
	"errors"
	"time"

	"foundryhost/internal/model"

	"gorm.io/gorm"
)

type InstanceRepository interface {
	Create(ctx context.Context, inst *model.Instance) error
	GetByUserID(ctx context.Context, userID string) (*model.Instance, error)
	List(ctx context.Context) ([]*model.Instance, error)
	ListByStatus(ctx context.Context, statuses ...model.InstanceStatus) ([]*model.Instance, error)
	// ListActiveByLicenseOwner 正在启动或运行、由该所有者许可证支撑的实例
	ListActiveByLicenseOwner(ctx context.Context, ownerID string) ([]*model.Instance, error)
	// ListExpired 运行中且 auto_shutdown_at <= now 的实例
	ListExpired(ctx context.Context, now time.Time) ([]*model.Instance, error)
	// Transition 仅当当前状态属于 from 时切换到 to，并写入 fields；未命中返回 ErrStaleWrite
	Transition(ctx context.Context, userID string, from []model.InstanceStatus, to model.InstanceStatus, fields map[string]interface{}) error
	// UpdateIfStatus 仅当当前状态属于 from 时写入 fields，状态不变
	UpdateIfStatus(ctx context.Context, userID string, from []model.InstanceStatus, fields map[string]interface{}) error
	Delete(ctx context.Context, userID string) error
	CountByStatus(ctx context.Context) (map[model.InstanceStatus]int, error)
}

func NewInstanceRepository(r *Repository) InstanceRepository {
	return &instanceRepository{Repository: r}
}

type instanceRepository struct {
	*Repository
}

func (r *instanceRepository) Create(ctx context.Context, inst *model.Instance) error {
	return r.DB(ctx).Create(inst).Error
}

func (r *instanceRepository) GetByUserID(ctx context.Context, userID string) (*model.Instance, error) {
	var inst model.Instance
	if err := r.DB(ctx).Where("user_id = ?", userID).First(&inst).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

func (r *instanceRepository) List(ctx context.Context) ([]*model.Instance, error) {
	var list []*model.Instance
	if err := r.DB(ctx).Order("user_id").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *instanceRepository) ListByStatus(ctx context.Context, statuses ...model.InstanceStatus) ([]*model.Instance, error) {
	var list []*model.Instance
	if err := r.DB(ctx).Where("status IN ?", statuses).Order("user_id").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *instanceRepository) ListActiveByLicenseOwner(ctx context.Context, ownerID string) ([]*model.Instance, error) {
	var list []*model.Instance
	err := r.DB(ctx).
		Where("license_owner_id = ? AND status IN ?", ownerID,
			[]model.InstanceStatus{model.InstanceStatusStarting, model.InstanceStatusRunning}).
		Order("user_id").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *instanceRepository) ListExpired(ctx context.Context, now time.Time) ([]*model.Instance, error) {
	var list []*model.Instance
	err := r.DB(ctx).
		Where("status = ? AND auto_shutdown_at IS NOT NULL AND auto_shutdown_at <= ?", model.InstanceStatusRunning, now).
		Order("auto_shutdown_at").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *instanceRepository) Transition(ctx context.Context, userID string, from []model.InstanceStatus, to model.InstanceStatus, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	return r.UpdateIfStatus(ctx, userID, from, updates)
}

func (r *instanceRepository) UpdateIfStatus(ctx context.Context, userID string, from []model.InstanceStatus, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["revision"] = gorm.Expr("revision + 1")

	res := r.DB(ctx).Model(&model.Instance{}).
		Where("user_id = ? AND status IN ?", userID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

func (r *instanceRepository) Delete(ctx context.Context, userID string) error {
	return r.DB(ctx).Where("user_id = ?", userID).Delete(&model.Instance{}).Error
}

func (r *instanceRepository) CountByStatus(ctx context.Context) (map[model.InstanceStatus]int, error) {
	var rows []struct {
		Status model.InstanceStatus
		Total  int
	}
	if err := r.DB(ctx).Model(&model.Instance{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[model.InstanceStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
