package service

import (
	"context"
	"fmt"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"
	"foundryhost/internal/repository"
	"foundryhost/pkg/log"
	"foundryhost/pkg/metrics"

	"go.uber.org/zap"
)

type AdminService interface {
	// Authorize 管理员身份来自 JWT 的 admin 声明，或 token 中的用户 id 列在 admin.user_ids；
	// callerID 必须取自已校验的 token，不能用请求体里的 userId
	Authorize(callerID string, tokenAdmin bool) error
	Overview(ctx context.Context) (*v1.AdminOverviewData, error)
	ForceShutdown(ctx context.Context, targetUserID string) (*v1.AdminResultData, error)
	CancelSession(ctx context.Context, sessionID string) (*v1.SessionData, error)
	CancelAllSessions(ctx context.Context, reason string) (*v1.AdminResultData, error)
	SystemMaintenance(ctx context.Context, reason string) (*v1.AdminResultData, error)
}

func NewAdminService(
	service *Service,
	instanceRepo repository.InstanceRepository,
	poolRepo repository.LicensePoolRepository,
	sessionRepo repository.SessionRepository,
	notificationRepo repository.NotificationRepository,
	instanceService InstanceService,
	schedulerService SchedulerService,
	autoShutdownService AutoShutdownService,
	logger *log.Logger,
) AdminService {
	return &adminService{
		Service:             service,
		instanceRepo:        instanceRepo,
		poolRepo:            poolRepo,
		sessionRepo:         sessionRepo,
		notificationRepo:    notificationRepo,
		instanceService:     instanceService,
		schedulerService:    schedulerService,
		autoShutdownService: autoShutdownService,
		logger:              logger,
	}
}

type adminService struct {
	*Service
	instanceRepo        repository.InstanceRepository
	poolRepo            repository.LicensePoolRepository
	sessionRepo         repository.SessionRepository
	notificationRepo    repository.NotificationRepository
	instanceService     InstanceService
	schedulerService    SchedulerService
	autoShutdownService AutoShutdownService
	logger              *log.Logger
}

func (s *adminService) Authorize(callerID string, tokenAdmin bool) error {
	if tokenAdmin || s.opts.IsAdmin(callerID) {
		return nil
	}
	return v1.ErrAdminOnly
}

func (s *adminService) Overview(ctx context.Context) (*v1.AdminOverviewData, error) {
	counts, err := s.instanceRepo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	data := &v1.AdminOverviewData{
		InstancesByStatus: make(map[string]int, len(counts)),
		RunningInstances:  []v1.InstanceData{},
		ActivePools:       []v1.LicensePoolData{},
		UpcomingSessions:  []v1.SessionData{},
		ActiveSessions:    []v1.SessionData{},
	}
	for status, n := range counts {
		data.InstancesByStatus[string(status)] = n
	}

	running, err := s.instanceRepo.ListByStatus(ctx, model.InstanceStatusStarting, model.InstanceStatusRunning)
	if err != nil {
		return nil, err
	}
	for _, inst := range running {
		data.RunningInstances = append(data.RunningInstances, toInstanceData(inst))
	}

	pools, err := s.poolRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pools {
		data.ActivePools = append(data.ActivePools, toPoolData(p))
	}

	sessions, err := s.sessionRepo.ListByStatus(ctx, model.SessionStatusScheduled, model.SessionStatusActive)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if sess.Status == model.SessionStatusActive {
			data.ActiveSessions = append(data.ActiveSessions, toSessionData(sess))
		} else {
			data.UpcomingSessions = append(data.UpcomingSessions, toSessionData(sess))
		}
	}

	stats, err := s.autoShutdownService.GetAutoShutdownStats(ctx)
	if err != nil {
		return nil, err
	}
	data.Stats = *stats

	if data.PendingNotifications, err = s.notificationRepo.CountPending(ctx); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *adminService) ForceShutdown(ctx context.Context, targetUserID string) (*v1.AdminResultData, error) {
	if targetUserID == "" {
		return nil, fmt.Errorf("%w: targetUserId", v1.ErrMissingField)
	}
	inst, err := s.instanceRepo.GetByUserID(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: user %s", v1.ErrInstanceNotFound, targetUserID)
	}
	linked := inst.LinkedSessionID
	if _, err := s.instanceService.ForceStop(ctx, targetUserID, metrics.StopReasonAdmin); err != nil {
		return nil, err
	}
	resp := &v1.AdminResultData{Affected: []string{targetUserID}}
	if linked != "" {
		if err := s.schedulerService.MarkSessionCompleted(ctx, linked); err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("complete session %s: %v", linked, err))
		}
	}
	s.logger.WithContext(ctx).Warn("admin force shutdown", zap.String("target_user_id", targetUserID), zap.String("session_id", linked))
	return resp, nil
}

func (s *adminService) CancelSession(ctx context.Context, sessionID string) (*v1.SessionData, error) {
	return s.schedulerService.CancelSession(ctx, sessionID, "", true)
}

func (s *adminService) CancelAllSessions(ctx context.Context, reason string) (*v1.AdminResultData, error) {
	if reason == "" {
		reason = "cancelled by admin"
	}
	sessions, err := s.sessionRepo.ListByStatus(ctx, model.SessionStatusScheduled, model.SessionStatusActive)
	if err != nil {
		return nil, err
	}
	resp := &v1.AdminResultData{Affected: []string{}}
	for _, sess := range sessions {
		if _, err := s.schedulerService.CancelWithReason(ctx, sess.SessionID, reason); err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", sess.SessionID, err))
			continue
		}
		resp.Affected = append(resp.Affected, sess.SessionID)
	}
	resp.Message = fmt.Sprintf("cancelled %d session(s)", len(resp.Affected))
	s.logger.WithContext(ctx).Warn("admin cancelled all sessions", zap.Int("cancelled", len(resp.Affected)), zap.String("reason", reason))
	return resp, nil
}

// SystemMaintenance 取消全部未结束会话，再停止所有仍在运行的实例
func (s *adminService) SystemMaintenance(ctx context.Context, reason string) (*v1.AdminResultData, error) {
	if reason == "" {
		reason = "system maintenance"
	}
	cancelled, err := s.CancelAllSessions(ctx, reason)
	if err != nil {
		return nil, err
	}

	active, err := s.instanceRepo.ListByStatus(ctx,
		model.InstanceStatusStarting, model.InstanceStatusRunning, model.InstanceStatusStopping)
	if err != nil {
		return nil, err
	}
	resp := &v1.AdminResultData{Affected: cancelled.Affected, Errors: cancelled.Errors}
	stopped := 0
	for _, inst := range active {
		if _, err := s.instanceService.ForceStop(ctx, inst.UserID, metrics.StopReasonMaintenance); err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", inst.UserID, err))
			continue
		}
		resp.Affected = append(resp.Affected, inst.UserID)
		stopped++
	}
	resp.Message = fmt.Sprintf("cancelled %d session(s), stopped %d instance(s)", len(cancelled.Affected), stopped)
	s.logger.WithContext(ctx).Warn("system maintenance", zap.String("reason", reason), zap.String("result", resp.Message))
	return resp, nil
}
