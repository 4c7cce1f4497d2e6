package repository

import (
	"context"
	"errors"

	"foundryhost/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LicensePoolRepository interface {
	GetByID(ctx context.Context, id string) (*model.LicensePool, error)
	// Upsert 不存在时创建，存在时重新激活并更新展示字段，id 保持不变
	Upsert(ctx context.Context, pool *model.LicensePool) error
	// SetActive 返回是否有记录被修改
	SetActive(ctx context.Context, id string, active bool) (bool, error)
	ListActive(ctx context.Context) ([]*model.LicensePool, error)
	List(ctx context.Context) ([]*model.LicensePool, error)
}

func NewLicensePoolRepository(r *Repository) LicensePoolRepository {
	return &licensePoolRepository{Repository: r}
}

type licensePoolRepository struct {
	*Repository
}

func (r *licensePoolRepository) GetByID(ctx context.Context, id string) (*model.LicensePool, error) {
	var pool model.LicensePool
	if err := r.DB(ctx).Where("id = ?", id).First(&pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

func (r *licensePoolRepository) Upsert(ctx context.Context, pool *model.LicensePool) error {
	pool.IsActive = true
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_username", "max_concurrent_users", "is_active", "gmt_modified"}),
	}).Create(pool).Error
}

func (r *licensePoolRepository) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	res := r.DB(ctx).Model(&model.LicensePool{}).
		Where("id = ? AND is_active = ?", id, !active).
		Update("is_active", active)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *licensePoolRepository) ListActive(ctx context.Context) ([]*model.LicensePool, error) {
	var list []*model.LicensePool
	if err := r.DB(ctx).Where("is_active = ?", true).Order("id").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *licensePoolRepository) List(ctx context.Context) ([]*model.LicensePool, error) {
	var list []*model.LicensePool
	if err := r.DB(ctx).Order("id").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
