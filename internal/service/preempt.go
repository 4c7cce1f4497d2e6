package service

import (
	"context"
	"fmt"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"
	"foundryhost/internal/repository"
	"foundryhost/pkg/log"
	"foundryhost/pkg/metrics"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Preemptor 紧急抢占：为预订或即将开始的会话腾出许可证
type Preemptor interface {
	// EmergencyShutdownForScheduledSession 强制停止 licenseID 上除 excludeUserID 外所有按需运行的实例，
	// 返回被停止的用户。调用方已持有该许可证租约时直接复用。
	EmergencyShutdownForScheduledSession(ctx context.Context, excludeUserID, licenseID string) ([]string, error)
}

func NewPreemptor(
	service *Service,
	instanceRepo repository.InstanceRepository,
	instanceService InstanceService,
	logger *log.Logger,
) Preemptor {
	return &preemptor{
		Service:         service,
		instanceRepo:    instanceRepo,
		instanceService: instanceService,
		logger:          logger,
	}
}

type preemptor struct {
	*Service
	instanceRepo    repository.InstanceRepository
	instanceService InstanceService
	logger          *log.Logger
}

func (p *preemptor) EmergencyShutdownForScheduledSession(ctx context.Context, excludeUserID, licenseID string) ([]string, error) {
	owner, ok := model.PoolOwner(licenseID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", v1.ErrLicenseNotFound, licenseID)
	}
	var (
		stopped []string
		result  *multierror.Error
	)
	err := p.withLease(ctx, licenseKey(licenseID), func(ctx context.Context) error {
		active, err := p.instanceRepo.ListActiveByLicenseOwner(ctx, owner)
		if err != nil {
			return err
		}
		for _, inst := range active {
			if inst.UserID == excludeUserID || !inst.OnDemand() {
				continue
			}
			if _, err := p.instanceService.ForceStop(ctx, inst.UserID, metrics.StopReasonPreempted); err != nil {
				result = multierror.Append(result, fmt.Errorf("preempt %s: %w", inst.UserID, err))
				continue
			}
			p.logger.WithContext(ctx).Info("on-demand instance preempted",
				zap.String("user_id", inst.UserID), zap.String("license_id", licenseID))
			stopped = append(stopped, inst.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stopped, result.ErrorOrNil()
}
