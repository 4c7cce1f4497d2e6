package service

import (
	"context"
	"errors"
	"fmt"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"
	"foundryhost/internal/repository"
	"foundryhost/pkg/cloud"
	"foundryhost/pkg/log"

	"github.com/duke-git/lancet/v2/random"
	"go.uber.org/zap"
)

const adminKeyLength = 24

// vaultGet 读取凭据，不存在返回 nil；处于计划删除时先尝试恢复
func vaultGet(ctx context.Context, vault cloud.SecretVault, name string) (*cloud.Credentials, error) {
	creds, err := vault.Get(ctx, name)
	switch {
	case err == nil:
		return creds, nil
	case errors.Is(err, cloud.ErrNotFound):
		return nil, nil
	case errors.Is(err, cloud.ErrPendingDeletion):
		if rerr := vault.Restore(ctx, name); rerr != nil {
			return nil, fmt.Errorf("%w: %v", v1.ErrSecretPendingDeletion, rerr)
		}
		return vault.Get(ctx, name)
	default:
		return nil, err
	}
}

// vaultPut 写入凭据；遇到计划删除中的同名密钥时先恢复再更新
func vaultPut(ctx context.Context, vault cloud.SecretVault, name string, creds *cloud.Credentials) (string, error) {
	ref, err := vault.Put(ctx, name, creds)
	if !errors.Is(err, cloud.ErrPendingDeletion) {
		return ref, err
	}
	if rerr := vault.Restore(ctx, name); rerr != nil {
		return "", fmt.Errorf("%w: %v", v1.ErrSecretPendingDeletion, rerr)
	}
	ref, err = vault.Put(ctx, name, creds)
	if err != nil {
		return "", fmt.Errorf("%w: %v", v1.ErrSecretPendingDeletion, err)
	}
	return ref, nil
}

// ownerCredentials 读取许可证所有者的凭据。所有者的密钥已消失（所有者销毁了自己的实例）时
// 自动停用该许可证池，避免后续分配反复失败。
func ownerCredentials(
	ctx context.Context,
	vault cloud.SecretVault,
	poolRepo repository.LicensePoolRepository,
	logger *log.Logger,
	licenseID string,
) (*cloud.Credentials, string, error) {
	owner, ok := model.PoolOwner(licenseID)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", v1.ErrLicenseNotFound, licenseID)
	}
	pool, err := poolRepo.GetByID(ctx, licenseID)
	if err != nil {
		return nil, "", err
	}
	if pool == nil {
		return nil, "", fmt.Errorf("%w: %s", v1.ErrLicenseNotFound, licenseID)
	}
	if !pool.IsActive {
		return nil, "", fmt.Errorf("%w: license %s is no longer shared", v1.ErrLicenseUnavailable, licenseID)
	}

	creds, err := vault.Get(ctx, owner)
	missing := errors.Is(err, cloud.ErrNotFound) || errors.Is(err, cloud.ErrPendingDeletion) ||
		(err == nil && (creds.Placeholder || creds.Username == ""))
	if missing {
		if _, derr := poolRepo.SetActive(ctx, licenseID, false); derr != nil {
			logger.WithContext(ctx).Error("deactivate license pool failed", zap.String("license_id", licenseID), zap.Error(derr))
		}
		logger.WithContext(ctx).Warn("license owner credentials are gone, pool deactivated", zap.String("license_id", licenseID))
		return nil, "", fmt.Errorf("%w: owner credentials for %s are gone, license pool deactivated", v1.ErrLicenseUnavailable, licenseID)
	}
	if err != nil {
		return nil, "", err
	}
	return creds, owner, nil
}

// reuseAdminKey 同一用户重建实例时沿用之前的管理员密钥
func reuseAdminKey(prior *cloud.Credentials) string {
	if prior != nil && prior.AdminKey != "" {
		return prior.AdminKey
	}
	return random.RandString(adminKeyLength)
}
