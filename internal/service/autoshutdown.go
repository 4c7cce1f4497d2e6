package service

import (
	"context"
	"errors"
	"fmt"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"
	"foundryhost/internal/repository"
	"foundryhost/pkg/log"
	"foundryhost/pkg/metrics"

	"go.uber.org/zap"
)

type AutoShutdownService interface {
	// CheckAndShutdownExpiredInstances 停止已到期的实例并结束其绑定的会话，可重复执行
	CheckAndShutdownExpiredInstances(ctx context.Context) (*v1.SweepResponseData, error)
	Preemptor
	PrepareForUpcomingSessions(ctx context.Context) (*v1.PrepareSessionsResponseData, error)
	GetAutoShutdownStats(ctx context.Context) (*v1.AutoShutdownStatsData, error)
}

func NewAutoShutdownService(
	service *Service,
	instanceRepo repository.InstanceRepository,
	sessionRepo repository.SessionRepository,
	instanceService InstanceService,
	schedulerService SchedulerService,
	notificationService NotificationService,
	preemptor Preemptor,
	logger *log.Logger,
) AutoShutdownService {
	return &autoShutdownService{
		Service:             service,
		Preemptor:           preemptor,
		instanceRepo:        instanceRepo,
		sessionRepo:         sessionRepo,
		instanceService:     instanceService,
		schedulerService:    schedulerService,
		notificationService: notificationService,
		logger:              logger,
	}
}

type autoShutdownService struct {
	*Service
	Preemptor
	instanceRepo        repository.InstanceRepository
	sessionRepo         repository.SessionRepository
	instanceService     InstanceService
	schedulerService    SchedulerService
	notificationService NotificationService
	logger              *log.Logger
}

func (s *autoShutdownService) CheckAndShutdownExpiredInstances(ctx context.Context) (*v1.SweepResponseData, error) {
	now := timeNow()
	expired, err := s.instanceRepo.ListExpired(ctx, now)
	if err != nil {
		return nil, err
	}

	resp := &v1.SweepResponseData{Checked: len(expired), Stopped: []string{}}
	for _, inst := range expired {
		linked, stopped, err := s.instanceService.StopIfExpired(ctx, inst.UserID, now)
		if err != nil {
			s.logger.WithContext(ctx).Error("auto shutdown failed", zap.String("user_id", inst.UserID), zap.Error(err))
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", inst.UserID, err))
			continue
		}
		if !stopped {
			continue
		}
		resp.Stopped = append(resp.Stopped, inst.UserID)
		if linked != "" {
			if err := s.schedulerService.MarkSessionCompleted(ctx, linked); err != nil {
				resp.Errors = append(resp.Errors, fmt.Sprintf("%s: complete session %s: %v", inst.UserID, linked, err))
			}
		}
	}

	// 实例早已停止（或从未启动）但仍为 active 的会话，过了宽限期后收尾
	active, err := s.sessionRepo.ListByStatus(ctx, model.SessionStatusActive)
	if err != nil {
		return resp, err
	}
	for _, sess := range active {
		if sess.EndTime.Add(s.opts.SessionGrace).After(now) {
			continue
		}
		if err := s.schedulerService.MarkSessionCompleted(ctx, sess.SessionID); err != nil {
			resp.Errors = append(resp.Errors, fmt.Sprintf("complete session %s: %v", sess.SessionID, err))
		}
	}

	if len(resp.Stopped) > 0 {
		s.logger.WithContext(ctx).Info("auto shutdown sweep finished",
			zap.Int("checked", resp.Checked), zap.Strings("stopped", resp.Stopped), zap.Int("errors", len(resp.Errors)))
	}
	return resp, nil
}

func (s *autoShutdownService) PrepareForUpcomingSessions(ctx context.Context) (*v1.PrepareSessionsResponseData, error) {
	now := timeNow()
	due, err := s.sessionRepo.ListDue(ctx, now.Add(s.opts.PrepareLookahead))
	if err != nil {
		return nil, err
	}

	resp := &v1.PrepareSessionsResponseData{Started: []string{}, Cancelled: []string{}}
	for _, sess := range due {
		logger := s.logger.WithContext(ctx).With(zap.String("session_id", sess.SessionID), zap.String("user_id", sess.UserID))
		if !sess.EndTime.After(now) {
			if _, err := s.schedulerService.CancelWithReason(ctx, sess.SessionID, "session window passed before it could start"); err != nil {
				logger.Error("cancel missed session failed", zap.Error(err))
				continue
			}
			resp.Cancelled = append(resp.Cancelled, sess.SessionID)
			continue
		}

		started, err := s.schedulerService.StartSessionEarly(ctx, sess.SessionID, s.opts.PrepareLookahead)
		if err != nil {
			if errors.Is(err, v1.ErrSessionNotStartable) {
				// 已被其他执行者启动或取消
				continue
			}
			logger.Error("start scheduled session failed, cancelling", zap.Error(err))
			if _, cerr := s.schedulerService.CancelWithReason(ctx, sess.SessionID, fmt.Sprintf("failed to start: %v", err)); cerr != nil {
				logger.Error("cancel failed session failed", zap.Error(cerr))
				continue
			}
			resp.Cancelled = append(resp.Cancelled, sess.SessionID)
			continue
		}

		resp.Started = append(resp.Started, sess.SessionID)
		payload := map[string]interface{}{
			"licenseId": started.LicenseID,
			"startTime": started.StartTime,
			"endTime":   started.EndTime,
		}
		if inst, err := s.instanceRepo.GetByUserID(ctx, sess.UserID); err == nil && inst != nil && inst.Hostname != "" {
			payload["url"] = "https://" + inst.Hostname
		}
		if err := s.notificationService.Enqueue(ctx, model.NotificationKindSessionReady, sess.UserID, sess.SessionID, payload); err != nil {
			logger.Warn("notify session ready failed", zap.Error(err))
		}
	}
	return resp, nil
}

func (s *autoShutdownService) GetAutoShutdownStats(ctx context.Context) (*v1.AutoShutdownStatsData, error) {
	running, err := s.instanceRepo.ListByStatus(ctx, model.InstanceStatusRunning)
	if err != nil {
		return nil, err
	}
	now := timeNow()
	stats := &v1.AutoShutdownStatsData{Running: len(running)}
	for _, inst := range running {
		if inst.AutoShutdownAt == nil {
			continue
		}
		stats.WithTimer++
		if !inst.AutoShutdownAt.After(now) {
			stats.Overdue++
			continue
		}
		if stats.NextShutdownAt == nil || inst.AutoShutdownAt.Before(*stats.NextShutdownAt) {
			at := *inst.AutoShutdownAt
			stats.NextShutdownAt = &at
			stats.NextShutdownUser = inst.UserID
		}
	}

	metrics.RunningInstances.Set(float64(stats.Running))
	metrics.InstancesWithTimer.Set(float64(stats.WithTimer))
	metrics.OverdueInstances.Set(float64(stats.Overdue))
	next := 0.0
	if stats.NextShutdownAt != nil {
		next = stats.NextShutdownAt.Sub(now).Seconds()
	}
	metrics.NextShutdownSeconds.Set(next)
	return stats, nil
}
