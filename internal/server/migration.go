package server

import (
	"context"
	"os"

	"foundryhost/internal/model"
	"foundryhost/internal/repository"
	"foundryhost/pkg/log"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateServer struct {
	db           *gorm.DB
	log          *log.Logger
	instanceRepo repository.InstanceRepository
	poolRepo     repository.LicensePoolRepository
	// exit 迁移完成后退出进程，测试中关闭
	exit bool
}

func NewMigrateServer(
	db *gorm.DB,
	log *log.Logger,
	instanceRepo repository.InstanceRepository,
	poolRepo repository.LicensePoolRepository,
) *MigrateServer {
	return &MigrateServer{
		db:           db,
		log:          log,
		instanceRepo: instanceRepo,
		poolRepo:     poolRepo,
		exit:         true,
	}
}

func (m *MigrateServer) Start(ctx context.Context) error {
	if err := m.db.AutoMigrate(repository.Models()...); err != nil {
		m.log.Error("migrate error", zap.Error(err))
		return err
	}
	m.log.Info("AutoMigrate success")

	if err := m.backfillPools(ctx); err != nil {
		m.log.Error("backfill license pools error", zap.Error(err))
		return err
	}

	if m.exit {
		os.Exit(0)
	}
	return nil
}

// backfillPools 为开启共享但缺少池记录的 BYOL 实例补建许可证池
func (m *MigrateServer) backfillPools(ctx context.Context) error {
	instances, err := m.instanceRepo.List(ctx)
	if err != nil {
		return err
	}
	created := 0
	for _, inst := range instances {
		if inst.LicenseType != model.LicenseTypeByol || !inst.AllowLicenseSharing {
			continue
		}
		poolID := model.PoolID(inst.UserID)
		pool, err := m.poolRepo.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		if pool != nil {
			continue
		}
		if err := m.poolRepo.Upsert(ctx, &model.LicensePool{
			ID:                 poolID,
			OwnerID:            inst.UserID,
			OwnerUsername:      inst.Username,
			MaxConcurrentUsers: max(inst.MaxConcurrentUsers, 1),
		}); err != nil {
			return err
		}
		created++
	}
	if created > 0 {
		m.log.Info("license pools backfilled", zap.Int("created", created))
	}
	return nil
}

func (m *MigrateServer) Stop(ctx context.Context) error {
	m.log.Info("AutoMigrate stop")
	return nil
}
