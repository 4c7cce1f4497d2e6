package server

import (
	"context"
	"testing"

	"foundryhost/internal/model"
	"foundryhost/internal/repository"
	"foundryhost/pkg/log"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMigrateServer_BackfillsSharedPools(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:migrate?mode=memory&cache=shared"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	logger := log.NewNop()
	repo := repository.NewRepository(logger, db)
	instanceRepo := repository.NewInstanceRepository(repo)
	poolRepo := repository.NewLicensePoolRepository(repo)

	m := NewMigrateServer(db, logger, instanceRepo, poolRepo)
	m.exit = false
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))

	for _, inst := range []*model.Instance{
		{UserID: "sharer", Username: "Sharer", LicenseType: model.LicenseTypeByol, AllowLicenseSharing: true, MaxConcurrentUsers: 2, Status: model.InstanceStatusStopped},
		{UserID: "private", LicenseType: model.LicenseTypeByol, Status: model.InstanceStatusStopped},
		{UserID: "borrower", LicenseType: model.LicenseTypePooled, Status: model.InstanceStatusCreated},
	} {
		require.NoError(t, instanceRepo.Create(ctx, inst))
	}

	// 重复执行不会重复创建
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Start(ctx))

	pools, err := poolRepo.List(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "byol-sharer", pools[0].ID)
	assert.Equal(t, "Sharer", pools[0].OwnerUsername)
	assert.Equal(t, 2, pools[0].MaxConcurrentUsers)
	assert.True(t, pools[0].IsActive)
}
