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
	"foundryhost/pkg/poll"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// 日志中记录的外部资源键
const (
	resAccessPoint = "access_point_id"
	resSecret      = "secret_arn"
	resBucket      = "bucket_name"
	resIdentity    = "iam_user_name"
	resAccessKey   = "access_key_id"
	resTargetGroup = "target_group_arn"
	resHostname    = "hostname"
)

const rulePriorityAttempts = 3

// SessionBinding 由调度器发起的启动所绑定的会话
type SessionBinding struct {
	SessionID      string
	LicenseOwnerID string
	SessionEnd     time.Time
}

type InstanceService interface {
	Create(ctx context.Context, req *v1.CreateInstanceRequest) (*v1.CreateInstanceResponseData, error)
	Start(ctx context.Context, userID string) (*v1.InstanceData, error)
	StartForSession(ctx context.Context, userID string, binding SessionBinding) (*v1.InstanceData, error)
	Stop(ctx context.Context, userID string) (*v1.InstanceData, error)
	// ForceStop 不论是否关联会话都停止，reason 用于指标
	ForceStop(ctx context.Context, userID, reason string) (*v1.InstanceData, error)
	// StopIfExpired 在租约内复查期限后停止，返回停止前关联的会话 id
	StopIfExpired(ctx context.Context, userID string, now time.Time) (linkedSessionID string, stopped bool, err error)
	Destroy(ctx context.Context, userID string, keepLicenseSharing bool) (*v1.DestroyInstanceResponseData, error)
	Status(ctx context.Context, userID string) (*v1.InstanceData, error)
	// ReconcileTasks 检查所有 running 实例的计算任务，外部已退出的记为 stopped
	ReconcileTasks(ctx context.Context) ([]string, error)
	ListAll(ctx context.Context) (*v1.ListInstancesResponseData, error)
	UpdateVersion(ctx context.Context, req *v1.UpdateVersionRequest) (*v1.UpdateVersionResponseData, error)
}

func NewInstanceService(
	service *Service,
	instanceRepo repository.InstanceRepository,
	poolRepo repository.LicensePoolRepository,
	sessionRepo repository.SessionRepository,
	journalRepo repository.ProvisionJournalRepository,
	licenseService LicenseService,
	provider *cloud.Provider,
	logger *log.Logger,
) InstanceService {
	return &instanceService{
		Service:        service,
		instanceRepo:   instanceRepo,
		poolRepo:       poolRepo,
		sessionRepo:    sessionRepo,
		journalRepo:    journalRepo,
		licenseService: licenseService,
		cloud:          provider,
		logger:         logger,
	}
}

type instanceService struct {
	*Service
	instanceRepo   repository.InstanceRepository
	poolRepo       repository.LicensePoolRepository
	sessionRepo    repository.SessionRepository
	journalRepo    repository.ProvisionJournalRepository
	licenseService LicenseService
	cloud          *cloud.Provider
	logger         *log.Logger
}

func staleErr(err error) error {
	if errors.Is(err, repository.ErrStaleWrite) {
		return v1.ErrConcurrentUpdate
	}
	return err
}

func (s *instanceService) mustGet(ctx context.Context, userID string) (*model.Instance, error) {
	inst, err := s.instanceRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: user %s", v1.ErrInstanceNotFound, userID)
	}
	return inst, nil
}

func (s *instanceService) Create(ctx context.Context, req *v1.CreateInstanceRequest) (*v1.CreateInstanceResponseData, error) {
	if req.UserID == "" {
		return nil, v1.ErrMissingUserID
	}
	licenseType := model.LicenseType(req.LicenseType)
	if licenseType == "" {
		licenseType = model.LicenseTypeByol
	}
	if !licenseType.Valid() {
		return nil, v1.ErrInvalidLicenseType
	}
	if req.AllowLicenseSharing && licenseType != model.LicenseTypeByol {
		return nil, v1.ErrSharingRequiresByol
	}
	ver := req.FoundryVersion
	if ver == "" {
		ver = s.opts.DefaultVersion
	}
	if !s.opts.ValidVersion(ver) {
		return nil, fmt.Errorf("%w: %s", v1.ErrInvalidVersion, ver)
	}
	uid, err := s.opts.ContainerUID(ver)
	if err != nil {
		return nil, err
	}

	var resp *v1.CreateInstanceResponseData
	err = s.withLease(ctx, instanceKey(req.UserID), func(ctx context.Context) error {
		existing, err := s.instanceRepo.GetByUserID(ctx, req.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			return v1.ErrInstanceExists
		}

		journal, err := s.journalRepo.Get(ctx, req.UserID)
		if err != nil {
			return err
		}
		resumed := journal != nil
		if journal == nil {
			journal = &model.ProvisionJournal{UserID: req.UserID}
		}

		creds, ownerID, err := s.resolveCredentials(ctx, req, licenseType)
		if err != nil {
			return err
		}
		if err := s.provision(ctx, journal, creds, uid); err != nil {
			return err
		}

		inst := &model.Instance{
			UserID:              req.UserID,
			Username:            req.Username,
			Status:              model.InstanceStatusCreated,
			LicenseType:         licenseType,
			LicenseOwnerID:      ownerID,
			AllowLicenseSharing: req.AllowLicenseSharing,
			MaxConcurrentUsers:  max(req.MaxConcurrentUsers, 1),
			FoundryVersion:      ver,
			AccessPointID:       journal.Resource(resAccessPoint),
			SecretArn:           journal.Resource(resSecret),
			BucketName:          journal.Resource(resBucket),
			IAMUserName:         journal.Resource(resIdentity),
			AccessKeyID:         journal.Resource(resAccessKey),
			TargetGroupArn:      journal.Resource(resTargetGroup),
			Hostname:            journal.Resource(resHostname),
		}
		err = s.tm.Transaction(ctx, func(ctx context.Context) error {
			if err := s.instanceRepo.Create(ctx, inst); err != nil {
				return err
			}
			if req.AllowLicenseSharing {
				if err := s.poolRepo.Upsert(ctx, &model.LicensePool{
					ID:                 model.PoolID(req.UserID),
					OwnerID:            req.UserID,
					OwnerUsername:      req.Username,
					MaxConcurrentUsers: inst.MaxConcurrentUsers,
				}); err != nil {
					return err
				}
			}
			return s.journalRepo.Delete(ctx, req.UserID)
		})
		if err != nil {
			return err
		}

		s.logger.WithContext(ctx).Info("instance created",
			zap.String("user_id", req.UserID),
			zap.String("license_type", string(licenseType)),
			zap.Bool("sharing", req.AllowLicenseSharing),
			zap.Bool("resumed", resumed))
		resp = &v1.CreateInstanceResponseData{
			Instance: toInstanceData(inst),
			AdminKey: creds.AdminKey,
			Resumed:  resumed,
		}
		return nil
	})
	return resp, err
}

// resolveCredentials 按许可证类型确定初始凭据，返回凭据和支撑该实例的许可证所有者
func (s *instanceService) resolveCredentials(ctx context.Context, req *v1.CreateInstanceRequest, licenseType model.LicenseType) (*cloud.Credentials, string, error) {
	prior, err := vaultGet(ctx, s.cloud.Vault, req.UserID)
	if err != nil {
		return nil, "", err
	}
	creds := &cloud.Credentials{AdminKey: reuseAdminKey(prior)}

	switch {
	case licenseType == model.LicenseTypeByol && req.FoundryUsername != "" && req.FoundryPassword != "":
		creds.Username, creds.Password = req.FoundryUsername, req.FoundryPassword
		return creds, req.UserID, nil
	case licenseType == model.LicenseTypeByol:
		// 重新注册：沿用之前保存的凭据
		if prior == nil || prior.Placeholder || prior.Username == "" {
			return nil, "", v1.ErrMissingCredentials
		}
		creds.Username, creds.Password = prior.Username, prior.Password
		return creds, req.UserID, nil
	case req.SelectedLicenseID != "":
		owned, ownerID, err := ownerCredentials(ctx, s.cloud.Vault, s.poolRepo, s.logger, req.SelectedLicenseID)
		if err != nil {
			return nil, "", err
		}
		creds.Username, creds.Password = owned.Username, owned.Password
		return creds, ownerID, nil
	default:
		// 动态分配：会话开始时再写入真实凭据
		creds.Placeholder = true
		return creds, "", nil
	}
}

type provisionStep struct {
	step model.ProvisionStep
	run  func(ctx context.Context) error
}

// provision 依次执行创建步骤，每完成一步写一次日志，重试时从上次完成的位置继续
func (s *instanceService) provision(ctx context.Context, j *model.ProvisionJournal, creds *cloud.Credentials, uid int64) error {
	userID := j.UserID
	steps := []provisionStep{
		{model.ProvisionStepAccessPoint, func(ctx context.Context) error {
			id, err := s.cloud.FileSystem.CreateAccessPoint(ctx, userID, uid, uid)
			if err != nil {
				return err
			}
			j.SetResource(resAccessPoint, id)
			return nil
		}},
		{model.ProvisionStepSecret, func(ctx context.Context) error {
			ref, err := vaultPut(ctx, s.cloud.Vault, userID, creds)
			if err != nil {
				return err
			}
			j.SetResource(resSecret, ref)
			return nil
		}},
		{model.ProvisionStepBucket, func(ctx context.Context) error {
			name := s.opts.BucketName(userID)
			if err := s.cloud.ObjectStorage.CreateBucket(ctx, name); err != nil {
				return err
			}
			j.SetResource(resBucket, name)
			return nil
		}},
		{model.ProvisionStepIdentity, func(ctx context.Context) error {
			name := s.opts.ResourceName(userID)
			if err := s.cloud.Identity.CreateScopedUser(ctx, name, j.Resource(resBucket)); err != nil {
				return err
			}
			// 重试时清掉上次遗留的密钥
			if err := cloud.IgnoreNotFound(s.cloud.Identity.DeleteAccessKeys(ctx, name)); err != nil {
				return err
			}
			key, err := s.cloud.Identity.CreateAccessKey(ctx, name)
			if err != nil {
				return err
			}
			stored, err := vaultGet(ctx, s.cloud.Vault, userID)
			if err != nil {
				return err
			}
			if stored == nil {
				stored = creds
			}
			stored.AccessKeyID, stored.SecretAccessKey = key.AccessKeyID, key.SecretAccessKey
			ref, err := vaultPut(ctx, s.cloud.Vault, userID, stored)
			if err != nil {
				return err
			}
			j.SetResource(resIdentity, name)
			j.SetResource(resAccessKey, key.AccessKeyID)
			j.SetResource(resSecret, ref)
			return nil
		}},
		{model.ProvisionStepTargetGroup, func(ctx context.Context) error {
			arn, err := s.cloud.LoadBalancer.CreateTargetGroup(ctx, s.opts.TargetGroupName(userID), s.opts.ContainerPort)
			if err != nil {
				return err
			}
			j.SetResource(resTargetGroup, arn)
			return nil
		}},
		{model.ProvisionStepDNS, func(ctx context.Context) error {
			host := s.opts.Hostname(userID)
			if err := s.cloud.DNS.UpsertRecord(ctx, host, s.opts.EntryPoint); err != nil {
				return err
			}
			j.SetResource(resHostname, host)
			return nil
		}},
	}

	for _, st := range steps {
		if j.CompletedStep.Done(st.step) {
			continue
		}
		if err := st.run(ctx); err != nil {
			j.LastError = fmt.Sprintf("%s: %v", st.step, err)
			if serr := s.journalRepo.Save(ctx, j); serr != nil {
				s.logger.WithContext(ctx).Error("save provision journal failed", zap.String("user_id", userID), zap.Error(serr))
			}
			s.logger.WithContext(ctx).Error("provision step failed",
				zap.String("user_id", userID), zap.String("step", string(st.step)), zap.Error(err))
			if errors.Is(err, v1.ErrSecretPendingDeletion) {
				return err
			}
			return fmt.Errorf("%w: %s step: %v", v1.ErrProvisionFailed, st.step, err)
		}
		j.CompletedStep = st.step
		j.LastError = ""
		if err := s.journalRepo.Save(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

func (s *instanceService) Start(ctx context.Context, userID string) (*v1.InstanceData, error) {
	var data *v1.InstanceData
	err := s.withLease(ctx, instanceKey(userID), func(ctx context.Context) error {
		inst, err := s.mustGet(ctx, userID)
		if err != nil {
			return err
		}
		if inst.Status.Active() {
			return v1.ErrAlreadyRunning
		}
		if inst.LicenseType == model.LicenseTypePooled {
			return v1.ErrPooledOnDemand
		}
		ok, reason, err := s.licenseService.CanStartOnDemandInstance(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", v1.ErrOnDemandBlocked, reason)
		}

		started, err := s.launch(ctx, inst, SessionBinding{LicenseOwnerID: inst.UserID})
		if err != nil {
			return err
		}
		d := toInstanceData(started)
		data = &d
		return nil
	})
	return data, err
}

func (s *instanceService) StartForSession(ctx context.Context, userID string, binding SessionBinding) (*v1.InstanceData, error) {
	var data *v1.InstanceData
	err := s.withLease(ctx, instanceKey(userID), func(ctx context.Context) error {
		inst, err := s.mustGet(ctx, userID)
		if err != nil {
			return err
		}
		if inst.Status.Active() {
			return v1.ErrAlreadyRunning
		}
		started, err := s.launch(ctx, inst, binding)
		if err != nil {
			return err
		}
		d := toInstanceData(started)
		data = &d
		return nil
	})
	return data, err
}

// launched 记录启动过程中已创建的资源，失败时据此回收
type launched struct {
	task       string
	address    string
	registered bool
	rule       string
}

func (s *instanceService) launch(ctx context.Context, inst *model.Instance, b SessionBinding) (*model.Instance, error) {
	prev := inst.Status
	if !prev.CanTransitionTo(model.InstanceStatusStarting) {
		return nil, fmt.Errorf("%w: %s -> %s", v1.ErrInvalidTransition, prev, model.InstanceStatusStarting)
	}
	if err := s.instanceRepo.Transition(ctx, inst.UserID,
		[]model.InstanceStatus{prev}, model.InstanceStatusStarting,
		map[string]interface{}{
			"license_owner_id":  b.LicenseOwnerID,
			"linked_session_id": b.SessionID,
		}); err != nil {
		return nil, staleErr(err)
	}

	var l launched
	fail := func(cause error) (*model.Instance, error) {
		s.rollbackStart(ctx, inst, prev, &l)
		s.logger.WithContext(ctx).Error("instance start failed", zap.String("user_id", inst.UserID), zap.Error(cause))
		if errors.Is(cause, poll.ErrTimeout) {
			return nil, fmt.Errorf("%w: %v", v1.ErrStartTimeout, cause)
		}
		if errors.Is(cause, v1.ErrConcurrentUpdate) {
			return nil, cause
		}
		return nil, fmt.Errorf("%w: %v", v1.ErrProvisionFailed, cause)
	}

	uid, err := s.opts.ContainerUID(inst.FoundryVersion)
	if err != nil {
		return fail(err)
	}
	taskDef, err := s.cloud.Compute.RegisterTask(ctx, cloud.TaskSpec{
		Family:        s.opts.ResourceName(inst.UserID),
		Image:         s.opts.ImageFor(inst.FoundryVersion),
		ContainerPort: s.opts.ContainerPort,
		AccessPointID: inst.AccessPointID,
		SecretRef:     inst.SecretArn,
		UID:           uid,
		GID:           uid,
		Environment: map[string]string{
			"FOUNDRY_HOSTNAME":   inst.Hostname,
			"FOUNDRY_PROXY_SSL":  "true",
			"FOUNDRY_PROXY_PORT": "443",
			"FOUNDRY_VERSION":    inst.FoundryVersion,
			"FOUNDRY_AWS_BUCKET": inst.BucketName,
		},
	})
	if err != nil {
		return fail(fmt.Errorf("register task: %w", err))
	}
	handle, err := s.cloud.Compute.RunTask(ctx, taskDef)
	if err != nil {
		return fail(fmt.Errorf("run task: %w", err))
	}
	l.task = handle

	addr, err := s.waitReady(ctx, handle)
	if err != nil {
		return fail(fmt.Errorf("wait for task %s: %w", handle, err))
	}
	l.address = addr

	if err := s.cloud.LoadBalancer.RegisterTarget(ctx, inst.TargetGroupArn, addr, s.opts.ContainerPort); err != nil {
		return fail(fmt.Errorf("register target: %w", err))
	}
	l.registered = true

	priority, ruleArn, err := s.createRule(ctx, inst)
	if err != nil {
		return fail(fmt.Errorf("create rule: %w", err))
	}
	l.rule = ruleArn

	now := timeNow()
	deadline := now.Add(s.opts.OnDemandDuration)
	if b.SessionID != "" {
		deadline = b.SessionEnd.Add(s.opts.SessionGrace)
	}
	if err := s.instanceRepo.Transition(ctx, inst.UserID,
		[]model.InstanceStatus{model.InstanceStatusStarting}, model.InstanceStatusRunning,
		map[string]interface{}{
			"task_definition_arn": taskDef,
			"task_arn":            handle,
			"private_ip":          addr,
			"rule_arn":            ruleArn,
			"rule_priority":       priority,
			"started_at":          now,
			"auto_shutdown_at":    deadline,
		}); err != nil {
		return fail(staleErr(err))
	}

	s.logger.WithContext(ctx).Info("instance running",
		zap.String("user_id", inst.UserID),
		zap.String("session_id", b.SessionID),
		zap.String("address", addr),
		zap.Time("auto_shutdown_at", deadline))
	return s.instanceRepo.GetByUserID(ctx, inst.UserID)
}

// createRule 并发启动可能拿到同一个优先级，冲突时重新分配
func (s *instanceService) createRule(ctx context.Context, inst *model.Instance) (int32, string, error) {
	var lastErr error
	for i := 0; i < rulePriorityAttempts; i++ {
		priority, err := s.cloud.LoadBalancer.NextRulePriority(ctx)
		if err != nil {
			return 0, "", err
		}
		arn, err := s.cloud.LoadBalancer.CreateRule(ctx, inst.TargetGroupArn, inst.Hostname, priority)
		if err == nil {
			return priority, arn, nil
		}
		lastErr = err
	}
	return 0, "", lastErr
}

func (s *instanceService) waitReady(ctx context.Context, handle string) (string, error) {
	var addr string
	err := poll.Until(ctx, s.opts.ReadyPollInterval, s.opts.ReadyTimeout, func(ctx context.Context) (bool, error) {
		st, err := s.cloud.Compute.DescribeTask(ctx, handle)
		if err != nil {
			if errors.Is(err, cloud.ErrNotFound) {
				return false, err
			}
			s.logger.WithContext(ctx).Warn("describe task failed, retrying", zap.String("task", handle), zap.Error(err))
			return false, nil
		}
		if st.Stopped() {
			return false, fmt.Errorf("%w: %s", cloud.ErrTaskStopped, st.StopReason)
		}
		if st.Running() && st.Address != "" {
			addr = st.Address
			return true, nil
		}
		return false, nil
	})
	return addr, err
}

// rollbackStart 尽力回收本次启动创建的资源，并把状态退回启动前
func (s *instanceService) rollbackStart(ctx context.Context, inst *model.Instance, prev model.InstanceStatus, l *launched) {
	ctx = context.WithoutCancel(ctx)
	logger := s.logger.WithContext(ctx)
	if l.rule != "" {
		if err := cloud.IgnoreNotFound(s.cloud.LoadBalancer.DeleteRule(ctx, l.rule)); err != nil {
			logger.Warn("rollback: delete rule failed", zap.String("user_id", inst.UserID), zap.Error(err))
		}
	}
	if l.registered {
		if err := cloud.IgnoreNotFound(s.cloud.LoadBalancer.DeregisterTarget(ctx, inst.TargetGroupArn, l.address, s.opts.ContainerPort)); err != nil {
			logger.Warn("rollback: deregister target failed", zap.String("user_id", inst.UserID), zap.Error(err))
		}
	}
	if l.task != "" {
		if err := cloud.IgnoreNotFound(s.cloud.Compute.StopTask(ctx, l.task)); err != nil {
			logger.Warn("rollback: stop task failed", zap.String("user_id", inst.UserID), zap.Error(err))
		}
	}
	if err := s.instanceRepo.Transition(ctx, inst.UserID,
		[]model.InstanceStatus{model.InstanceStatusStarting}, prev,
		map[string]interface{}{
			"license_owner_id":  inst.LicenseOwnerID,
			"linked_session_id": inst.LinkedSessionID,
		}); err != nil {
		logger.Error("rollback: restore instance status failed", zap.String("user_id", inst.UserID), zap.Error(err))
	}
}

func (s *instanceService) Stop(ctx context.Context, userID string) (*v1.InstanceData, error) {
	return s.stop(ctx, userID, metrics.StopReasonUser)
}

func (s *instanceService) ForceStop(ctx context.Context, userID, reason string) (*v1.InstanceData, error) {
	return s.stop(ctx, userID, reason)
}

func (s *instanceService) stop(ctx context.Context, userID, reason string) (*v1.InstanceData, error) {
	var data *v1.InstanceData
	err := s.withLease(ctx, instanceKey(userID), func(ctx context.Context) error {
		inst, err := s.mustGet(ctx, userID)
		if err != nil {
			return err
		}
		stopped, err := s.stopLocked(ctx, inst, reason)
		if err != nil {
			return err
		}
		d := toInstanceData(stopped)
		data = &d
		return nil
	})
	return data, err
}

// stopLocked 调用方须持有实例租约。已停止或从未启动的实例直接返回；
// 处于 stopping 的实例（上次停止中断）继续完成清理。
func (s *instanceService) stopLocked(ctx context.Context, inst *model.Instance, reason string) (*model.Instance, error) {
	switch inst.Status {
	case model.InstanceStatusCreated, model.InstanceStatusStopped:
		return inst, nil
	case model.InstanceStatusRunning, model.InstanceStatusStarting:
		if err := s.instanceRepo.Transition(ctx, inst.UserID,
			[]model.InstanceStatus{inst.Status}, model.InstanceStatusStopping, nil); err != nil {
			return nil, staleErr(err)
		}
	}

	var result *multierror.Error
	if inst.PrivateIP != "" && inst.TargetGroupArn != "" {
		if err := cloud.IgnoreNotFound(s.cloud.LoadBalancer.DeregisterTarget(ctx, inst.TargetGroupArn, inst.PrivateIP, s.opts.ContainerPort)); err != nil {
			result = multierror.Append(result, fmt.Errorf("deregister target: %w", err))
		}
	}
	if inst.RuleArn != "" {
		if err := cloud.IgnoreNotFound(s.cloud.LoadBalancer.DeleteRule(ctx, inst.RuleArn)); err != nil {
			result = multierror.Append(result, fmt.Errorf("delete rule: %w", err))
		}
	}
	if inst.TaskArn != "" {
		if err := cloud.IgnoreNotFound(s.cloud.Compute.StopTask(ctx, inst.TaskArn)); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop task: %w", err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		s.logger.WithContext(ctx).Error("stop instance incomplete, left in stopping", zap.String("user_id", inst.UserID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", v1.ErrProvisionFailed, err)
	}

	if err := s.instanceRepo.Transition(ctx, inst.UserID,
		[]model.InstanceStatus{model.InstanceStatusStopping}, model.InstanceStatusStopped,
		map[string]interface{}{
			"task_arn":          "",
			"private_ip":        "",
			"rule_arn":          "",
			"rule_priority":     0,
			"started_at":        nil,
			"auto_shutdown_at":  nil,
			"linked_session_id": "",
		}); err != nil {
		return nil, staleErr(err)
	}
	metrics.InstanceStopsTotal.WithLabelValues(reason).Inc()
	s.logger.WithContext(ctx).Info("instance stopped", zap.String("user_id", inst.UserID), zap.String("reason", reason))
	return s.instanceRepo.GetByUserID(ctx, inst.UserID)
}

func (s *instanceService) StopIfExpired(ctx context.Context, userID string, now time.Time) (string, bool, error) {
	var (
		linked  string
		stopped bool
	)
	err := s.withLease(ctx, instanceKey(userID), func(ctx context.Context) error {
		inst, err := s.instanceRepo.GetByUserID(ctx, userID)
		if err != nil || inst == nil {
			return err
		}
		if inst.Status != model.InstanceStatusRunning || inst.AutoShutdownAt == nil || inst.AutoShutdownAt.After(now) {
			return nil
		}
		linked = inst.LinkedSessionID
		if _, err := s.stopLocked(ctx, inst, metrics.StopReasonAutoExpire); err != nil {
			return err
		}
		stopped = true
		return nil
	})
	return linked, stopped, err
}

// destroyRefs 待删除的外部资源，来自实例行或未完成的创建日志
type destroyRefs struct {
	targetGroup string
	hostname    string
	accessPoint string
	bucket      string
	identity    string
	secret      string
}

func (s *instanceService) Destroy(ctx context.Context, userID string, keepLicenseSharing bool) (*v1.DestroyInstanceResponseData, error) {
	var resp *v1.DestroyInstanceResponseData
	err := s.withLease(ctx, instanceKey(userID), func(ctx context.Context) error {
		inst, err := s.instanceRepo.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		journal, err := s.journalRepo.Get(ctx, userID)
		if err != nil {
			return err
		}
		if inst == nil && journal == nil {
			return fmt.Errorf("%w: user %s", v1.ErrInstanceNotFound, userID)
		}

		var warnings *multierror.Error
		var refs destroyRefs
		if inst != nil {
			if inst.Status.Active() || inst.Status == model.InstanceStatusStopping {
				if _, err := s.stopLocked(ctx, inst, metrics.StopReasonUser); err != nil {
					warnings = multierror.Append(warnings, fmt.Errorf("stop: %w", err))
				}
			}
			refs = destroyRefs{
				targetGroup: inst.TargetGroupArn,
				hostname:    inst.Hostname,
				accessPoint: inst.AccessPointID,
				bucket:      inst.BucketName,
				identity:    inst.IAMUserName,
				secret:      inst.SecretArn,
			}
		} else {
			refs = destroyRefs{
				targetGroup: journal.Resource(resTargetGroup),
				hostname:    journal.Resource(resHostname),
				accessPoint: journal.Resource(resAccessPoint),
				bucket:      journal.Resource(resBucket),
				identity:    journal.Resource(resIdentity),
				secret:      journal.Resource(resSecret),
			}
		}

		steps := []struct {
			name string
			skip bool
			run  func() error
		}{
			{"delete target group", refs.targetGroup == "", func() error {
				return s.cloud.LoadBalancer.DeleteTargetGroup(ctx, refs.targetGroup)
			}},
			{"delete dns record", refs.hostname == "", func() error {
				return s.cloud.DNS.DeleteRecord(ctx, refs.hostname, s.opts.EntryPoint)
			}},
			{"cleanup user files", refs.accessPoint == "", func() error {
				return s.cloud.FileSystem.CleanupUserFiles(ctx, userID)
			}},
			{"delete access point", refs.accessPoint == "", func() error {
				return s.cloud.FileSystem.DeleteAccessPoint(ctx, refs.accessPoint)
			}},
			{"delete bucket", refs.bucket == "", func() error {
				return s.cloud.ObjectStorage.DeleteBucket(ctx, refs.bucket)
			}},
			{"delete access keys", refs.identity == "", func() error {
				return s.cloud.Identity.DeleteAccessKeys(ctx, refs.identity)
			}},
			{"delete identity", refs.identity == "", func() error {
				return s.cloud.Identity.DeleteScopedUser(ctx, refs.identity)
			}},
			{"delete secret", refs.secret == "", func() error {
				return s.cloud.Vault.Delete(ctx, userID)
			}},
		}
		for _, st := range steps {
			if st.skip {
				continue
			}
			if err := cloud.IgnoreNotFound(st.run()); err != nil {
				s.logger.WithContext(ctx).Warn("destroy step failed", zap.String("user_id", userID), zap.String("step", st.name), zap.Error(err))
				warnings = multierror.Append(warnings, fmt.Errorf("%s: %w", st.name, err))
			}
		}

		deactivated := false
		if !keepLicenseSharing {
			deactivated, err = s.poolRepo.SetActive(ctx, model.PoolID(userID), false)
			if err != nil {
				warnings = multierror.Append(warnings, fmt.Errorf("deactivate license pool: %w", err))
			}
		}

		err = s.tm.Transaction(ctx, func(ctx context.Context) error {
			if err := s.instanceRepo.Delete(ctx, userID); err != nil {
				return err
			}
			return s.journalRepo.Delete(ctx, userID)
		})
		if err != nil {
			return err
		}

		resp = &v1.DestroyInstanceResponseData{UserID: userID, LicensePoolDeactivated: deactivated}
		if warnings != nil {
			for _, w := range warnings.Errors {
				resp.Warnings = append(resp.Warnings, w.Error())
			}
		}
		s.logger.WithContext(ctx).Info("instance destroyed",
			zap.String("user_id", userID),
			zap.Bool("keep_license_sharing", keepLicenseSharing),
			zap.Int("warnings", len(resp.Warnings)))
		return nil
	})
	return resp, err
}

func (s *instanceService) Status(ctx context.Context, userID string) (*v1.InstanceData, error) {
	inst, err := s.mustGet(ctx, userID)
	if err != nil {
		return nil, err
	}

	taskStatus := ""
	if inst.Status == model.InstanceStatusRunning && inst.TaskArn != "" {
		st, err := s.cloud.Compute.DescribeTask(ctx, inst.TaskArn)
		switch {
		case errors.Is(err, cloud.ErrNotFound) || (err == nil && st.Stopped()):
			// 任务已在外部退出，回收路由并记为已停止
			inst, err = s.reconcileExited(ctx, userID, inst.TaskArn)
			if err != nil {
				return nil, err
			}
			taskStatus = "STOPPED"
		case err != nil:
			s.logger.WithContext(ctx).Warn("describe task failed", zap.String("user_id", userID), zap.Error(err))
			taskStatus = "UNKNOWN"
		default:
			taskStatus = st.LastStatus
		}
	}

	d := toInstanceData(inst)
	d.TaskStatus = taskStatus
	if inst.BucketName != "" {
		d.AssetsURL = s.cloud.ObjectStorage.PublicURL(inst.BucketName, "")
	}
	next, err := s.sessionRepo.NextForUser(ctx, userID, timeNow())
	if err != nil {
		return nil, err
	}
	if next != nil {
		sd := toSessionData(next)
		d.NextSession = &sd
	}
	return &d, nil
}

func (s *instanceService) reconcileExited(ctx context.Context, userID, taskArn string) (*model.Instance, error) {
	var out *model.Instance
	err := s.withLease(ctx, instanceKey(userID), func(ctx context.Context) error {
		inst, err := s.mustGet(ctx, userID)
		if err != nil {
			return err
		}
		if inst.Status != model.InstanceStatusRunning || inst.TaskArn != taskArn {
			out = inst
			return nil
		}
		out, err = s.stopLocked(ctx, inst, metrics.StopReasonTaskExited)
		return err
	})
	return out, err
}

func (s *instanceService) ReconcileTasks(ctx context.Context) ([]string, error) {
	running, err := s.instanceRepo.ListByStatus(ctx, model.InstanceStatusRunning)
	if err != nil {
		return nil, err
	}
	var (
		exited []string
		result *multierror.Error
	)
	for _, inst := range running {
		if inst.TaskArn == "" {
			continue
		}
		st, err := s.cloud.Compute.DescribeTask(ctx, inst.TaskArn)
		if err != nil && !errors.Is(err, cloud.ErrNotFound) {
			result = multierror.Append(result, fmt.Errorf("describe %s: %w", inst.UserID, err))
			continue
		}
		if err == nil && !st.Stopped() {
			continue
		}
		if _, err := s.reconcileExited(ctx, inst.UserID, inst.TaskArn); err != nil {
			result = multierror.Append(result, fmt.Errorf("reconcile %s: %w", inst.UserID, err))
			continue
		}
		s.logger.WithContext(ctx).Warn("compute task exited outside the engine", zap.String("user_id", inst.UserID), zap.String("task", inst.TaskArn))
		exited = append(exited, inst.UserID)
	}
	return exited, result.ErrorOrNil()
}

func (s *instanceService) ListAll(ctx context.Context) (*v1.ListInstancesResponseData, error) {
	list, err := s.instanceRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	data := &v1.ListInstancesResponseData{Total: len(list), Instances: make([]v1.InstanceData, 0, len(list))}
	for _, inst := range list {
		data.Instances = append(data.Instances, toInstanceData(inst))
	}
	return data, nil
}

func (s *instanceService) UpdateVersion(ctx context.Context, req *v1.UpdateVersionRequest) (*v1.UpdateVersionResponseData, error) {
	if req.FoundryVersion == "" {
		return nil, fmt.Errorf("%w: foundryVersion", v1.ErrMissingField)
	}
	if !s.opts.ValidVersion(req.FoundryVersion) {
		return nil, fmt.Errorf("%w: %s", v1.ErrInvalidVersion, req.FoundryVersion)
	}
	newUID, err := s.opts.ContainerUID(req.FoundryVersion)
	if err != nil {
		return nil, err
	}

	var resp *v1.UpdateVersionResponseData
	err = s.withLease(ctx, instanceKey(req.UserID), func(ctx context.Context) error {
		inst, err := s.mustGet(ctx, req.UserID)
		if err != nil {
			return err
		}
		if inst.Status != model.InstanceStatusCreated && inst.Status != model.InstanceStatusStopped {
			return v1.ErrInstanceRunning
		}

		fields := map[string]interface{}{"foundry_version": req.FoundryVersion}
		reset := false
		if oldUID, err := s.opts.ContainerUID(inst.FoundryVersion); err != nil || oldUID != newUID {
			// 容器用户变化：文件改属主，并按新 uid 重建访问点
			if err := s.cloud.FileSystem.ResetOwnership(ctx, inst.UserID, newUID, newUID); err != nil {
				return fmt.Errorf("%w: reset ownership: %v", v1.ErrProvisionFailed, err)
			}
			apID, err := s.cloud.FileSystem.CreateAccessPoint(ctx, inst.UserID, newUID, newUID)
			if err != nil {
				return fmt.Errorf("%w: recreate access point: %v", v1.ErrProvisionFailed, err)
			}
			if inst.AccessPointID != "" {
				if err := cloud.IgnoreNotFound(s.cloud.FileSystem.DeleteAccessPoint(ctx, inst.AccessPointID)); err != nil {
					s.logger.WithContext(ctx).Warn("delete old access point failed", zap.String("user_id", inst.UserID), zap.Error(err))
				}
			}
			fields["access_point_id"] = apID
			reset = true
		}

		if err := s.instanceRepo.UpdateIfStatus(ctx, inst.UserID,
			[]model.InstanceStatus{model.InstanceStatusCreated, model.InstanceStatusStopped}, fields); err != nil {
			return staleErr(err)
		}
		updated, err := s.mustGet(ctx, inst.UserID)
		if err != nil {
			return err
		}
		s.logger.WithContext(ctx).Info("foundry version updated",
			zap.String("user_id", inst.UserID),
			zap.String("from", inst.FoundryVersion),
			zap.String("to", req.FoundryVersion),
			zap.Bool("ownership_reset", reset))
		resp = &v1.UpdateVersionResponseData{Instance: toInstanceData(updated), OwnershipReset: reset}
		return nil
	})
	return resp, err
}
