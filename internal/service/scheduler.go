package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"
	"foundryhost/internal/repository"
	"foundryhost/pkg/cloud"
	"foundryhost/pkg/log"
	"foundryhost/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SchedulerService interface {
	ScheduleSession(ctx context.Context, req *v1.ScheduleSessionRequest) (*v1.ScheduleSessionResponseData, error)
	// StartScheduledSession userID 为空表示系统发起，不校验归属
	StartScheduledSession(ctx context.Context, sessionID, userID string) (*v1.SessionData, error)
	// StartSessionEarly 供定时任务在会话开始前 lead 时间内提前启动
	StartSessionEarly(ctx context.Context, sessionID string, lead time.Duration) (*v1.SessionData, error)
	EndScheduledSession(ctx context.Context, sessionID, userID string) (*v1.SessionData, error)
	CancelSession(ctx context.Context, sessionID, userID string, force bool) (*v1.SessionData, error)
	// CancelWithReason 系统取消：scheduled 与 active 都可取消，active 会停止实例
	CancelWithReason(ctx context.Context, sessionID, reason string) (*v1.SessionData, error)
	// MarkSessionCompleted 实例已由其他路径停止后收尾会话，重复调用无副作用
	MarkSessionCompleted(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, userID string, includeHistory bool) (*v1.ListSessionsResponseData, error)
}

func NewSchedulerService(
	service *Service,
	instanceRepo repository.InstanceRepository,
	poolRepo repository.LicensePoolRepository,
	sessionRepo repository.SessionRepository,
	reservationRepo repository.ReservationRepository,
	instanceService InstanceService,
	licenseService LicenseService,
	notificationService NotificationService,
	preemptor Preemptor,
	provider *cloud.Provider,
	logger *log.Logger,
) SchedulerService {
	return &schedulerService{
		Service:             service,
		instanceRepo:        instanceRepo,
		poolRepo:            poolRepo,
		sessionRepo:         sessionRepo,
		reservationRepo:     reservationRepo,
		instanceService:     instanceService,
		licenseService:      licenseService,
		notificationService: notificationService,
		preemptor:           preemptor,
		cloud:               provider,
		logger:              logger,
	}
}

type schedulerService struct {
	*Service
	instanceRepo        repository.InstanceRepository
	poolRepo            repository.LicensePoolRepository
	sessionRepo         repository.SessionRepository
	reservationRepo     repository.ReservationRepository
	instanceService     InstanceService
	licenseService      LicenseService
	notificationService NotificationService
	preemptor           Preemptor
	cloud               *cloud.Provider
	logger              *log.Logger
}

func (s *schedulerService) ScheduleSession(ctx context.Context, req *v1.ScheduleSessionRequest) (*v1.ScheduleSessionResponseData, error) {
	if req.UserID == "" {
		return nil, v1.ErrMissingUserID
	}
	start, end := req.StartTime.UTC(), req.EndTime.UTC()
	now := timeNow()
	if !start.Before(end) || !end.After(now) {
		return nil, v1.ErrInvalidTimeWindow
	}
	if end.Sub(start) > s.opts.MaxSessionLength {
		return nil, fmt.Errorf("%w: at most %s", v1.ErrSessionTooLong, s.opts.MaxSessionLength)
	}

	inst, err := s.instanceRepo.GetByUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	licenseType := model.LicenseType(req.LicenseType)
	if licenseType == "" {
		licenseType = model.LicenseTypeByol
		if inst != nil {
			licenseType = inst.LicenseType
		}
	}
	if !licenseType.Valid() {
		return nil, v1.ErrInvalidLicenseType
	}

	avail, err := s.licenseService.CheckAvailability(ctx, &v1.CheckAvailabilityRequest{
		UserID:             req.UserID,
		LicenseType:        string(licenseType),
		PreferredLicenseID: req.PreferredLicenseID,
		StartTime:          start,
		EndTime:            end,
	})
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, fmt.Errorf("%w: %s", v1.ErrLicenseUnavailable, avail.Reason)
	}
	licenseID := avail.LicenseID
	if err := checkForeignLicense(inst, req.UserID, licenseID); err != nil {
		return nil, err
	}

	var (
		sess      *model.ScheduledSession
		preempted []string
	)
	err = s.withLease(ctx, licenseKey(licenseID), func(ctx context.Context) error {
		// 租约内重新评估，期间可能有其他预订或启动
		fresh, err := s.licenseService.CheckAvailability(ctx, &v1.CheckAvailabilityRequest{
			UserID:             req.UserID,
			PreferredLicenseID: licenseID,
			StartTime:          start,
			EndTime:            end,
		})
		if err != nil {
			return err
		}
		if !fresh.Available {
			return fmt.Errorf("%w: %s", v1.ErrSlotTaken, fresh.Reason)
		}
		// 可抢占的就是许可证上其他按需实例，租约内一并停止
		preempted, err = s.preemptor.EmergencyShutdownForScheduledSession(ctx, req.UserID, licenseID)
		if err != nil {
			return err
		}

		sessionID, err := s.sid.GenPrefixed("sess")
		if err != nil {
			return err
		}
		sess = &model.ScheduledSession{
			SessionID:   sessionID,
			UserID:      req.UserID,
			Username:    req.Username,
			LicenseType: licenseType,
			LicenseID:   licenseID,
			StartTime:   start,
			EndTime:     end,
			Status:      model.SessionStatusScheduled,
			Title:       req.Title,
			Description: req.Description,
		}
		sess.SetPreemptedUsers(preempted)

		return s.tm.Transaction(ctx, func(ctx context.Context) error {
			taken, err := s.reservationRepo.ListOverlapping(ctx, licenseID, start, end)
			if err != nil {
				return err
			}
			if len(taken) > 0 {
				return v1.ErrSlotTaken
			}
			if err := s.sessionRepo.Create(ctx, sess); err != nil {
				return err
			}
			return s.reservationRepo.Create(ctx, &model.LicenseReservation{
				ReservationID: uuid.NewString(),
				LicenseID:     licenseID,
				SessionID:     sessionID,
				UserID:        req.UserID,
				StartTime:     start,
				EndTime:       end,
				Status:        model.ReservationStatusActive,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifyPreempted(ctx, sess, preempted)
	metrics.SessionsTotal.WithLabelValues("scheduled").Inc()
	s.logger.WithContext(ctx).Info("session scheduled",
		zap.String("session_id", sess.SessionID),
		zap.String("user_id", req.UserID),
		zap.String("license_id", licenseID),
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Strings("preempted", preempted))

	data := toSessionData(sess)
	resp := &v1.ScheduleSessionResponseData{
		Success:           true,
		Session:           &data,
		ConflictsResolved: preempted,
	}
	if resp.ConflictsResolved == nil {
		resp.ConflictsResolved = []string{}
	}
	if len(preempted) > 0 {
		resp.Message = fmt.Sprintf("%d on-demand instance(s) were stopped to free the license", len(preempted))
	}
	return resp, nil
}

func (s *schedulerService) notifyPreempted(ctx context.Context, sess *model.ScheduledSession, users []string) {
	for _, userID := range users {
		if err := s.notificationService.Enqueue(ctx, model.NotificationKindInstancePreempted, userID, sess.SessionID, map[string]interface{}{
			"licenseId":   sess.LicenseID,
			"sessionUser": sess.UserID,
			"startTime":   sess.StartTime,
			"endTime":     sess.EndTime,
		}); err != nil {
			s.logger.WithContext(ctx).Warn("notify preempted user failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (s *schedulerService) StartScheduledSession(ctx context.Context, sessionID, userID string) (*v1.SessionData, error) {
	return s.startSession(ctx, sessionID, userID, 0)
}

func (s *schedulerService) StartSessionEarly(ctx context.Context, sessionID string, lead time.Duration) (*v1.SessionData, error) {
	return s.startSession(ctx, sessionID, "", lead)
}

func (s *schedulerService) getSession(ctx context.Context, sessionID string) (*model.ScheduledSession, error) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: %s", v1.ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

func (s *schedulerService) startSession(ctx context.Context, sessionID, userID string, lead time.Duration) (*v1.SessionData, error) {
	if sessionID == "" {
		return nil, v1.ErrMissingSessionID
	}
	var data *v1.SessionData
	err := s.withLease(ctx, sessionKey(sessionID), func(ctx context.Context) error {
		sess, err := s.getSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if userID != "" && sess.UserID != userID {
			return v1.ErrNotSessionOwner
		}
		if sess.Status != model.SessionStatusScheduled {
			return fmt.Errorf("%w: session is %s", v1.ErrSessionNotStartable, sess.Status)
		}
		now := timeNow()
		if now.Before(sess.StartTime.Add(-lead)) {
			return fmt.Errorf("%w: session starts at %s", v1.ErrSessionNotStartable, sess.StartTime.Format(time.RFC3339))
		}
		if !sess.EndTime.After(now) {
			return fmt.Errorf("%w: session already ended", v1.ErrSessionNotStartable)
		}

		inst, err := s.instanceRepo.GetByUserID(ctx, sess.UserID)
		if err != nil {
			return err
		}
		if inst == nil {
			return fmt.Errorf("%w: user %s", v1.ErrInstanceNotFound, sess.UserID)
		}
		owner, ok := model.PoolOwner(sess.LicenseID)
		if !ok {
			return fmt.Errorf("%w: %s", v1.ErrLicenseNotFound, sess.LicenseID)
		}
		// 预订时可能还没有实例，开始前按当前实例类型再检查一次
		if err := checkForeignLicense(inst, sess.UserID, sess.LicenseID); err != nil {
			return err
		}

		var preempted []string
		err = s.withLease(ctx, licenseKey(sess.LicenseID), func(ctx context.Context) error {
			if inst.Status.Active() || inst.Status == model.InstanceStatusStopping {
				if _, err := s.instanceService.ForceStop(ctx, sess.UserID, metrics.StopReasonSession); err != nil {
					return err
				}
			}
			if inst.LicenseType == model.LicenseTypePooled && owner != sess.UserID {
				if err := s.borrowCredentials(ctx, sess); err != nil {
					return err
				}
			}
			preempted, err = s.preemptor.EmergencyShutdownForScheduledSession(ctx, sess.UserID, sess.LicenseID)
			if err != nil {
				return err
			}
			_, err = s.instanceService.StartForSession(ctx, sess.UserID, SessionBinding{
				SessionID:      sess.SessionID,
				LicenseOwnerID: owner,
				SessionEnd:     sess.EndTime,
			})
			return err
		})
		if err != nil {
			return err
		}

		fields := map[string]interface{}{"instance_id": sess.UserID}
		if len(preempted) > 0 {
			sess.SetPreemptedUsers(append(sess.GetPreemptedUsers(), preempted...))
			fields["preempted_users"] = sess.PreemptedUsers
		}
		if err := s.sessionRepo.Transition(ctx, sess.SessionID,
			[]model.SessionStatus{model.SessionStatusScheduled}, model.SessionStatusActive, fields); err != nil {
			return staleErr(err)
		}
		s.notifyPreempted(ctx, sess, preempted)
		metrics.SessionsTotal.WithLabelValues("started").Inc()
		s.logger.WithContext(ctx).Info("session started",
			zap.String("session_id", sess.SessionID),
			zap.String("user_id", sess.UserID),
			zap.String("license_id", sess.LicenseID))

		updated, err := s.getSession(ctx, sess.SessionID)
		if err != nil {
			return err
		}
		d := toSessionData(updated)
		data = &d
		return nil
	})
	return data, err
}

// checkForeignLicense BYOL 实例的密钥里是用户自己的许可证，不能借用别人的池
func checkForeignLicense(inst *model.Instance, userID, licenseID string) error {
	if inst == nil || inst.LicenseType != model.LicenseTypeByol || licenseID == model.PoolID(userID) {
		return nil
	}
	return fmt.Errorf("%w: byol instances run on their own license, %s cannot be used", v1.ErrLicenseUnavailable, licenseID)
}

// borrowCredentials 把许可证所有者的 Foundry 凭据写入会话用户的密钥，保留用户自己的管理员密钥和访问密钥
func (s *schedulerService) borrowCredentials(ctx context.Context, sess *model.ScheduledSession) error {
	owned, _, err := ownerCredentials(ctx, s.cloud.Vault, s.poolRepo, s.logger, sess.LicenseID)
	if err != nil {
		return err
	}
	mine, err := vaultGet(ctx, s.cloud.Vault, sess.UserID)
	if err != nil {
		return err
	}
	merged := &cloud.Credentials{
		Username: owned.Username,
		Password: owned.Password,
		AdminKey: reuseAdminKey(mine),
	}
	if mine != nil {
		merged.AccessKeyID, merged.SecretAccessKey = mine.AccessKeyID, mine.SecretAccessKey
	}
	_, err = vaultPut(ctx, s.cloud.Vault, sess.UserID, merged)
	return err
}

func (s *schedulerService) EndScheduledSession(ctx context.Context, sessionID, userID string) (*v1.SessionData, error) {
	if sessionID == "" {
		return nil, v1.ErrMissingSessionID
	}
	var data *v1.SessionData
	err := s.withLease(ctx, sessionKey(sessionID), func(ctx context.Context) error {
		sess, err := s.getSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if userID != "" && sess.UserID != userID {
			return v1.ErrNotSessionOwner
		}
		if sess.Status != model.SessionStatusActive {
			return fmt.Errorf("%w: session is %s", v1.ErrSessionNotActive, sess.Status)
		}
		if err := s.stopLinkedInstance(ctx, sess, metrics.StopReasonSession); err != nil {
			return err
		}
		if err := s.finish(ctx, sess, model.SessionStatusCompleted, ""); err != nil {
			return err
		}
		metrics.SessionsTotal.WithLabelValues("completed").Inc()
		s.logger.WithContext(ctx).Info("session ended", zap.String("session_id", sessionID), zap.String("user_id", sess.UserID))
		updated, err := s.getSession(ctx, sessionID)
		if err != nil {
			return err
		}
		d := toSessionData(updated)
		data = &d
		return nil
	})
	return data, err
}

// stopLinkedInstance 只停止仍绑定在该会话上的实例
func (s *schedulerService) stopLinkedInstance(ctx context.Context, sess *model.ScheduledSession, reason string) error {
	inst, err := s.instanceRepo.GetByUserID(ctx, sess.UserID)
	if err != nil || inst == nil {
		return err
	}
	if inst.LinkedSessionID != sess.SessionID {
		return nil
	}
	_, err = s.instanceService.ForceStop(ctx, sess.UserID, reason)
	return err
}

// finish 在同一事务里结束会话与对应的预订
func (s *schedulerService) finish(ctx context.Context, sess *model.ScheduledSession, to model.SessionStatus, reason string) error {
	from := []model.SessionStatus{model.SessionStatusActive}
	resTo := model.ReservationStatusCompleted
	fields := map[string]interface{}{}
	if to == model.SessionStatusCancelled {
		from = []model.SessionStatus{model.SessionStatusScheduled, model.SessionStatusActive}
		resTo = model.ReservationStatusCancelled
		fields["cancel_reason"] = reason
	}
	err := s.tm.Transaction(ctx, func(ctx context.Context) error {
		if err := s.sessionRepo.Transition(ctx, sess.SessionID, from, to, fields); err != nil {
			return err
		}
		err := s.reservationRepo.UpdateStatusBySession(ctx, sess.SessionID, model.ReservationStatusActive, resTo)
		if errors.Is(err, repository.ErrStaleWrite) {
			// 预订已不是 active，会话状态仍以本次为准
			return nil
		}
		return err
	})
	return staleErr(err)
}

func (s *schedulerService) CancelSession(ctx context.Context, sessionID, userID string, force bool) (*v1.SessionData, error) {
	if sessionID == "" {
		return nil, v1.ErrMissingSessionID
	}
	reason := "cancelled by user"
	if force {
		reason = "cancelled by admin"
	}
	return s.cancel(ctx, sessionID, func(sess *model.ScheduledSession) error {
		if !force && sess.UserID != userID {
			return v1.ErrNotSessionOwner
		}
		if sess.Status == model.SessionStatusActive && !force {
			return fmt.Errorf("%w: session is active, end it instead", v1.ErrSessionNotCancellable)
		}
		return nil
	}, reason)
}

func (s *schedulerService) CancelWithReason(ctx context.Context, sessionID, reason string) (*v1.SessionData, error) {
	return s.cancel(ctx, sessionID, func(*model.ScheduledSession) error { return nil }, reason)
}

func (s *schedulerService) cancel(ctx context.Context, sessionID string, check func(*model.ScheduledSession) error, reason string) (*v1.SessionData, error) {
	var data *v1.SessionData
	err := s.withLease(ctx, sessionKey(sessionID), func(ctx context.Context) error {
		sess, err := s.getSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != model.SessionStatusScheduled && sess.Status != model.SessionStatusActive {
			return fmt.Errorf("%w: session is %s", v1.ErrSessionNotCancellable, sess.Status)
		}
		if err := check(sess); err != nil {
			return err
		}
		if sess.Status == model.SessionStatusActive {
			if err := s.stopLinkedInstance(ctx, sess, metrics.StopReasonAdmin); err != nil {
				return err
			}
		}
		if err := s.finish(ctx, sess, model.SessionStatusCancelled, reason); err != nil {
			return err
		}
		if err := s.notificationService.Enqueue(ctx, model.NotificationKindSessionCancelled, sess.UserID, sess.SessionID, map[string]interface{}{
			"reason":    reason,
			"startTime": sess.StartTime,
			"endTime":   sess.EndTime,
		}); err != nil {
			s.logger.WithContext(ctx).Warn("notify session cancelled failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		metrics.SessionsTotal.WithLabelValues("cancelled").Inc()
		s.logger.WithContext(ctx).Info("session cancelled",
			zap.String("session_id", sessionID), zap.String("user_id", sess.UserID), zap.String("reason", reason))

		updated, err := s.getSession(ctx, sessionID)
		if err != nil {
			return err
		}
		d := toSessionData(updated)
		data = &d
		return nil
	})
	return data, err
}

func (s *schedulerService) MarkSessionCompleted(ctx context.Context, sessionID string) error {
	return s.withLease(ctx, sessionKey(sessionID), func(ctx context.Context) error {
		sess, err := s.sessionRepo.GetByID(ctx, sessionID)
		if err != nil || sess == nil {
			return err
		}
		if sess.Status != model.SessionStatusActive {
			return nil
		}
		if err := s.finish(ctx, sess, model.SessionStatusCompleted, ""); err != nil {
			return err
		}
		metrics.SessionsTotal.WithLabelValues("completed").Inc()
		return nil
	})
}

func (s *schedulerService) ListSessions(ctx context.Context, userID string, includeHistory bool) (*v1.ListSessionsResponseData, error) {
	statuses := []model.SessionStatus{model.SessionStatusScheduled, model.SessionStatusActive}
	if includeHistory {
		statuses = nil
	}
	list, err := s.sessionRepo.ListByUser(ctx, userID, statuses...)
	if err != nil {
		return nil, err
	}
	data := &v1.ListSessionsResponseData{Total: len(list), Sessions: make([]v1.SessionData, 0, len(list))}
	for _, sess := range list {
		data.Sessions = append(data.Sessions, toSessionData(sess))
	}
	return data, nil
}
