package service

import (
	"context"
	"strings"
	"time"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"
	"foundryhost/internal/repository"
	"foundryhost/pkg/jwt"
	"foundryhost/pkg/lease"
	"foundryhost/pkg/log"
	"foundryhost/pkg/sid"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/spf13/viper"
)

// timeNow 所有业务时间统一使用 UTC，测试中可替换
var timeNow = func() time.Time { return time.Now().UTC() }

type Service struct {
	logger *log.Logger
	sid    *sid.Sid
	jwt    *jwt.JWT
	tm     repository.Transaction
	locker lease.Locker
	opts   *Options
}

func NewService(
	tm repository.Transaction,
	logger *log.Logger,
	sid *sid.Sid,
	jwt *jwt.JWT,
	locker lease.Locker,
	opts *Options,
) *Service {
	return &Service{
		logger: logger,
		sid:    sid,
		jwt:    jwt,
		tm:     tm,
		locker: locker,
		opts:   opts,
	}
}

// withLease 串行化同一实体上的操作
func (s *Service) withLease(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return lease.WithLease(ctx, s.locker, s.logger, key, s.opts.LeaseTTL, fn)
}

func instanceKey(userID string) string  { return "instance:" + userID }
func licenseKey(licenseID string) string { return "license:" + licenseID }
func sessionKey(sessionID string) string { return "session:" + sessionID }

// Options 编排相关的可配置参数
type Options struct {
	OnDemandDuration  time.Duration
	SessionGrace      time.Duration
	OnDemandLookahead time.Duration
	PrepareLookahead  time.Duration
	MaxSessionLength  time.Duration
	ReadyPollInterval time.Duration
	ReadyTimeout      time.Duration
	LeaseTTL          time.Duration

	Domain        string
	// EntryPoint 共享 ALB 的 DNS 名，用户域名以 CNAME 指向它
	EntryPoint    string
	Image         string
	ContainerPort int32
	BucketPrefix  string
	NamePrefix    string

	Versions       []string
	DefaultVersion string
	// ModernConstraint 满足该约束的版本使用 ModernUID，其余使用 LegacyUID
	ModernConstraint string
	ModernUID        int64
	LegacyUID        int64

	AdminUserIDs []string

	NotificationWebhook     string
	NotificationMaxAttempts int
	NotificationBatchSize   int
}

func NewOptions(conf *viper.Viper) *Options {
	o := &Options{
		OnDemandDuration:  durationOr(conf, "schedule.on_demand_duration", 6*time.Hour),
		SessionGrace:      durationOr(conf, "schedule.session_grace", time.Hour),
		OnDemandLookahead: durationOr(conf, "schedule.on_demand_lookahead", 30*time.Minute),
		PrepareLookahead:  durationOr(conf, "schedule.prepare_lookahead", 5*time.Minute),
		MaxSessionLength:  durationOr(conf, "schedule.max_session_length", 12*time.Hour),
		ReadyPollInterval: durationOr(conf, "foundry.ready_poll_interval", 5*time.Second),
		ReadyTimeout:      durationOr(conf, "foundry.ready_timeout", 5*time.Minute),
		LeaseTTL:          durationOr(conf, "lease.ttl", 10*time.Minute),

		Domain:        conf.GetString("foundry.domain"),
		EntryPoint:    dnsTarget(conf.GetString("aws.entry_point")),
		Image:         conf.GetString("foundry.image"),
		ContainerPort: int32(conf.GetInt("foundry.container_port")),
		BucketPrefix:  conf.GetString("foundry.bucket_prefix"),
		NamePrefix:    conf.GetString("foundry.name_prefix"),

		Versions:         conf.GetStringSlice("foundry.versions"),
		DefaultVersion:   conf.GetString("foundry.default_version"),
		ModernConstraint: conf.GetString("foundry.modern_constraint"),
		ModernUID:        conf.GetInt64("foundry.modern_uid"),
		LegacyUID:        conf.GetInt64("foundry.legacy_uid"),

		AdminUserIDs: conf.GetStringSlice("admin.user_ids"),

		NotificationWebhook:     conf.GetString("notification.webhook_url"),
		NotificationMaxAttempts: conf.GetInt("notification.max_attempts"),
		NotificationBatchSize:   conf.GetInt("notification.batch_size"),
	}
	if o.ContainerPort == 0 {
		o.ContainerPort = 30000
	}
	if o.Image == "" {
		o.Image = "felddy/foundryvtt"
	}
	if o.NamePrefix == "" {
		o.NamePrefix = "foundry"
	}
	if o.BucketPrefix == "" {
		o.BucketPrefix = "foundry-assets-"
	}
	if len(o.Versions) == 0 {
		o.Versions = []string{"11", "12", "13"}
	}
	if o.DefaultVersion == "" {
		o.DefaultVersion = o.Versions[len(o.Versions)-1]
	}
	if o.ModernConstraint == "" {
		o.ModernConstraint = ">= 13"
	}
	if o.ModernUID == 0 {
		o.ModernUID = 1000
	}
	if o.LegacyUID == 0 {
		o.LegacyUID = 421
	}
	if o.NotificationMaxAttempts == 0 {
		o.NotificationMaxAttempts = 5
	}
	if o.NotificationBatchSize == 0 {
		o.NotificationBatchSize = 50
	}
	return o
}

// dnsTarget 去掉误配的协议头、路径和末尾的点，只保留主机名
func dnsTarget(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.Index(v, "://"); i >= 0 {
		v = v[i+3:]
	}
	if i := strings.IndexAny(v, "/:"); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSuffix(v, "."))
}

func durationOr(conf *viper.Viper, key string, def time.Duration) time.Duration {
	if d := conf.GetDuration(key); d > 0 {
		return d
	}
	return def
}

func (o *Options) Hostname(userID string) string {
	return strings.ToLower(userID) + "." + o.Domain
}

func (o *Options) ResourceName(userID string) string {
	return o.NamePrefix + "-" + strings.ToLower(userID)
}

// TargetGroupName ALB 目标组名最长 32 个字符
func (o *Options) TargetGroupName(userID string) string {
	name := o.ResourceName(userID)
	if len(name) > 32 {
		name = name[:32]
	}
	return strings.TrimRight(name, "-")
}

func (o *Options) BucketName(userID string) string {
	return o.BucketPrefix + strings.ToLower(userID)
}

func (o *Options) IsAdmin(userID string) bool {
	return userID != "" && slice.Contain(o.AdminUserIDs, userID)
}

func toInstanceData(inst *model.Instance) v1.InstanceData {
	d := v1.InstanceData{
		UserID:              inst.UserID,
		Status:              string(inst.Status),
		LicenseType:         string(inst.LicenseType),
		LicenseOwnerID:      inst.LicenseOwnerID,
		AllowLicenseSharing: inst.AllowLicenseSharing,
		MaxConcurrentUsers:  inst.MaxConcurrentUsers,
		LinkedSessionID:     inst.LinkedSessionID,
		FoundryVersion:      inst.FoundryVersion,
		StartedAt:           inst.StartedAt,
		AutoShutdownAt:      inst.AutoShutdownAt,
		CreatedAt:           inst.CreateTime,
		UpdatedAt:           inst.UpdateTime,
	}
	if inst.Hostname != "" {
		d.URL = "https://" + inst.Hostname
	}
	return d
}

func toSessionData(s *model.ScheduledSession) v1.SessionData {
	return v1.SessionData{
		SessionID:      s.SessionID,
		UserID:         s.UserID,
		Username:       s.Username,
		LicenseType:    string(s.LicenseType),
		LicenseID:      s.LicenseID,
		Status:         string(s.Status),
		InstanceID:     s.InstanceID,
		Title:          s.Title,
		Description:    s.Description,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		PreemptedUsers: s.GetPreemptedUsers(),
		CancelReason:   s.CancelReason,
	}
}

func toPoolData(p *model.LicensePool) v1.LicensePoolData {
	return v1.LicensePoolData{
		ID:                 p.ID,
		OwnerID:            p.OwnerID,
		OwnerUsername:      p.OwnerUsername,
		MaxConcurrentUsers: p.MaxConcurrentUsers,
		IsActive:           p.IsActive,
	}
}
