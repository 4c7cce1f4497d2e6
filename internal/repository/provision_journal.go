package repository

import (
	"context"
	"errors"

	"foundryhost/internal/model"

	"gorm.io/gorm"
)

type ProvisionJournalRepository interface {
	Get(ctx context.Context, userID string) (*model.ProvisionJournal, error)
	Save(ctx context.Context, j *model.ProvisionJournal) error
	Delete(ctx context.Context, userID string) error
}

func NewProvisionJournalRepository(r *Repository) ProvisionJournalRepository {
	return &provisionJournalRepository{Repository: r}
}

type provisionJournalRepository struct {
	*Repository
}

func (r *provisionJournalRepository) Get(ctx context.Context, userID string) (*model.ProvisionJournal, error) {
	var j model.ProvisionJournal
	if err := r.DB(ctx).Where("user_id = ?", userID).First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &j, nil
}

func (r *provisionJournalRepository) Save(ctx context.Context, j *model.ProvisionJournal) error {
	return r.DB(ctx).Save(j).Error
}

func (r *provisionJournalRepository) Delete(ctx context.Context, userID string) error {
	return r.DB(ctx).Where("user_id = ?", userID).Delete(&model.ProvisionJournal{}).Error
}
