package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"
	"foundryhost/internal/repository"
	"foundryhost/pkg/log"

	"go.uber.org/zap"
)

var allInstanceStatuses = []model.InstanceStatus{
	model.InstanceStatusCreated,
	model.InstanceStatusStarting,
	model.InstanceStatusRunning,
	model.InstanceStatusStopping,
	model.InstanceStatusStopped,
}

type LicenseService interface {
	SetLicenseSharing(ctx context.Context, req *v1.SetLicenseSharingRequest) (*v1.SetLicenseSharingResponseData, error)
	CheckAvailability(ctx context.Context, req *v1.CheckAvailabilityRequest) (*v1.CheckAvailabilityResponseData, error)
	// CanStartOnDemandInstance 许可证在前瞻窗口内已被会话预订时返回 false 和原因
	CanStartOnDemandInstance(ctx context.Context, userID string) (bool, string, error)
	ListPools(ctx context.Context) ([]v1.LicensePoolData, error)
}

func NewLicenseService(
	service *Service,
	instanceRepo repository.InstanceRepository,
	poolRepo repository.LicensePoolRepository,
	sessionRepo repository.SessionRepository,
	reservationRepo repository.ReservationRepository,
	logger *log.Logger,
) LicenseService {
	return &licenseService{
		Service:         service,
		instanceRepo:    instanceRepo,
		poolRepo:        poolRepo,
		sessionRepo:     sessionRepo,
		reservationRepo: reservationRepo,
		logger:          logger,
	}
}

type licenseService struct {
	*Service
	instanceRepo    repository.InstanceRepository
	poolRepo        repository.LicensePoolRepository
	sessionRepo     repository.SessionRepository
	reservationRepo repository.ReservationRepository
	logger          *log.Logger
}

func (s *licenseService) SetLicenseSharing(ctx context.Context, req *v1.SetLicenseSharingRequest) (*v1.SetLicenseSharingResponseData, error) {
	var resp *v1.SetLicenseSharingResponseData
	err := s.withLease(ctx, instanceKey(req.UserID), func(ctx context.Context) error {
		inst, err := s.instanceRepo.GetByUserID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if inst == nil {
			return fmt.Errorf("%w: user %s", v1.ErrInstanceNotFound, req.UserID)
		}
		if inst.LicenseType != model.LicenseTypeByol {
			return v1.ErrSharingRequiresByol
		}

		maxUsers := req.MaxConcurrentUsers
		if maxUsers < 1 {
			maxUsers = max(inst.MaxConcurrentUsers, 1)
		}
		username := req.Username
		if username == "" {
			username = inst.Username
		}
		poolID := model.PoolID(req.UserID)

		err = s.tm.Transaction(ctx, func(ctx context.Context) error {
			if req.Enabled {
				if err := s.poolRepo.Upsert(ctx, &model.LicensePool{
					ID:                 poolID,
					OwnerID:            req.UserID,
					OwnerUsername:      username,
					MaxConcurrentUsers: maxUsers,
				}); err != nil {
					return err
				}
			} else if _, err := s.poolRepo.SetActive(ctx, poolID, false); err != nil {
				return err
			}
			return s.instanceRepo.UpdateIfStatus(ctx, req.UserID, allInstanceStatuses, map[string]interface{}{
				"allow_license_sharing": req.Enabled,
				"max_concurrent_users":  maxUsers,
			})
		})
		if err != nil {
			return staleErr(err)
		}

		pool, err := s.poolRepo.GetByID(ctx, poolID)
		if err != nil {
			return err
		}
		data := v1.LicensePoolData{ID: poolID, OwnerID: req.UserID, OwnerUsername: username, MaxConcurrentUsers: maxUsers}
		if pool != nil {
			data = toPoolData(pool)
		}
		s.logger.WithContext(ctx).Info("license sharing updated",
			zap.String("user_id", req.UserID),
			zap.Bool("enabled", req.Enabled),
			zap.Int("max_concurrent_users", maxUsers))
		resp = &v1.SetLicenseSharingResponseData{Pool: data}
		return nil
	})
	return resp, err
}

func (s *licenseService) CheckAvailability(ctx context.Context, req *v1.CheckAvailabilityRequest) (*v1.CheckAvailabilityResponseData, error) {
	if !req.StartTime.Before(req.EndTime) {
		return nil, v1.ErrInvalidTimeWindow
	}
	start, end := req.StartTime.UTC(), req.EndTime.UTC()

	candidates, err := s.candidates(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := &v1.CheckAvailabilityResponseData{Candidates: make([]v1.LicenseAvailability, 0, len(candidates))}
	for _, id := range candidates {
		a, err := s.evaluate(ctx, id, req.UserID, start, end)
		if err != nil {
			return nil, err
		}
		resp.Candidates = append(resp.Candidates, *a)
		if a.Available && !resp.Available {
			resp.Available = true
			resp.LicenseID = a.LicenseID
		}
	}
	if !resp.Available {
		resp.Reason = "no license is available for the requested time window"
		if len(resp.Candidates) == 1 {
			resp.Reason = resp.Candidates[0].Reason
		} else if len(resp.Candidates) == 0 {
			resp.Reason = "no shared licenses are active"
		}
	}
	return resp, nil
}

// candidates 按优先级排列待检查的许可证：指定的许可证；BYOL 为自己的许可证；
// pooled 时请求者自己的池排在最前，其余按 id 排序
func (s *licenseService) candidates(ctx context.Context, req *v1.CheckAvailabilityRequest) ([]string, error) {
	if req.PreferredLicenseID != "" {
		if _, ok := model.PoolOwner(req.PreferredLicenseID); !ok {
			return nil, fmt.Errorf("%w: %s", v1.ErrLicenseNotFound, req.PreferredLicenseID)
		}
		if req.PreferredLicenseID != model.PoolID(req.UserID) {
			pool, err := s.poolRepo.GetByID(ctx, req.PreferredLicenseID)
			if err != nil {
				return nil, err
			}
			if pool == nil || !pool.IsActive {
				return nil, fmt.Errorf("%w: %s", v1.ErrLicenseNotFound, req.PreferredLicenseID)
			}
		}
		return []string{req.PreferredLicenseID}, nil
	}

	licenseType := model.LicenseType(req.LicenseType)
	if licenseType == "" {
		licenseType = model.LicenseTypeByol
	}
	switch licenseType {
	case model.LicenseTypeByol:
		inst, err := s.instanceRepo.GetByUserID(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if inst == nil {
			return nil, fmt.Errorf("%w: user %s", v1.ErrInstanceNotFound, req.UserID)
		}
		if inst.LicenseType != model.LicenseTypeByol {
			return nil, fmt.Errorf("%w: instance uses a pooled license", v1.ErrInvalidLicenseType)
		}
		return []string{model.PoolID(req.UserID)}, nil
	case model.LicenseTypePooled:
		pools, err := s.poolRepo.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		own := model.PoolID(req.UserID)
		ids := make([]string, 0, len(pools))
		for _, p := range pools {
			ids = append(ids, p.ID)
		}
		sort.SliceStable(ids, func(i, j int) bool {
			if (ids[i] == own) != (ids[j] == own) {
				return ids[i] == own
			}
			return ids[i] < ids[j]
		})
		return ids, nil
	default:
		return nil, v1.ErrInvalidLicenseType
	}
}

// evaluate 检查单个许可证在 [start, end) 内是否空闲。按需运行的实例一律记为可抢占，
// 绑定会话且运行期与窗口重叠的实例会阻止预订。
func (s *licenseService) evaluate(ctx context.Context, licenseID, requester string, start, end time.Time) (*v1.LicenseAvailability, error) {
	a := &v1.LicenseAvailability{LicenseID: licenseID}

	reservations, err := s.reservationRepo.ListOverlapping(ctx, licenseID, start, end)
	if err != nil {
		return nil, err
	}
	if len(reservations) > 0 {
		a.Reason = fmt.Sprintf("license %s is reserved from %s to %s", licenseID,
			reservations[0].StartTime.Format(time.RFC3339), reservations[0].EndTime.Format(time.RFC3339))
		return a, nil
	}
	sessions, err := s.sessionRepo.ListOverlapping(ctx, licenseID, start, end)
	if err != nil {
		return nil, err
	}
	if len(sessions) > 0 {
		a.Reason = fmt.Sprintf("license %s is booked by session %s", licenseID, sessions[0].SessionID)
		return a, nil
	}

	owner, _ := model.PoolOwner(licenseID)
	running, err := s.instanceRepo.ListActiveByLicenseOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	for _, inst := range running {
		if inst.UserID == requester {
			continue
		}
		if inst.OnDemand() {
			a.Preemptable = append(a.Preemptable, inst.UserID)
			continue
		}
		// 会话实例在窗口开始前就会自动停止时不冲突
		if inst.AutoShutdownAt != nil && !inst.AutoShutdownAt.After(start) {
			continue
		}
		a.Reason = fmt.Sprintf("license %s is in use by a session-bound instance", licenseID)
		return a, nil
	}
	a.Available = true
	return a, nil
}

func (s *licenseService) CanStartOnDemandInstance(ctx context.Context, userID string) (bool, string, error) {
	now := timeNow()
	sessions, err := s.sessionRepo.ListOverlapping(ctx, model.PoolID(userID), now, now.Add(s.opts.OnDemandLookahead))
	if err != nil {
		return false, "", err
	}
	if len(sessions) == 0 {
		return true, "", nil
	}
	sess := sessions[0]
	if sess.Status == model.SessionStatusActive {
		return false, fmt.Sprintf("license is in use by active session %s", sess.SessionID), nil
	}
	return false, fmt.Sprintf("license is reserved for session %s starting at %s",
		sess.SessionID, sess.StartTime.Format(time.RFC3339)), nil
}

func (s *licenseService) ListPools(ctx context.Context) ([]v1.LicensePoolData, error) {
	pools, err := s.poolRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	data := make([]v1.LicensePoolData, 0, len(pools))
	for _, p := range pools {
		data = append(data, toPoolData(p))
	}
	return data, nil
}
