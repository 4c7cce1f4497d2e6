package model

import (
	"time"
)

type InstanceStatus string

const (
	InstanceStatusCreated  InstanceStatus = "created"
	InstanceStatusStarting InstanceStatus = "starting"
	InstanceStatusRunning  InstanceStatus = "running"
	InstanceStatusStopping InstanceStatus = "stopping"
	InstanceStatusStopped  InstanceStatus = "stopped"
)

// 启动失败时 starting 回退到原状态（created 或 stopped）；进程中断留下的 starting 可直接停止
var instanceTransitions = map[InstanceStatus][]InstanceStatus{
	InstanceStatusCreated:  {InstanceStatusStarting},
	InstanceStatusStarting: {InstanceStatusRunning, InstanceStatusStopping, InstanceStatusCreated, InstanceStatusStopped},
	InstanceStatusRunning:  {InstanceStatusStopping},
	InstanceStatusStopping: {InstanceStatusStopped},
	InstanceStatusStopped:  {InstanceStatusStarting},
}

func (s InstanceStatus) CanTransitionTo(next InstanceStatus) bool {
	for _, to := range instanceTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Active 实例正在占用计算资源与许可证
func (s InstanceStatus) Active() bool {
	return s == InstanceStatusStarting || s == InstanceStatusRunning
}

type LicenseType string

const (
	LicenseTypeByol   LicenseType = "byol"
	LicenseTypePooled LicenseType = "pooled"
)

func (t LicenseType) Valid() bool {
	return t == LicenseTypeByol || t == LicenseTypePooled
}

// Instance 每个用户至多一个实例，销毁时物理删除
type Instance struct {
	UserID              string         `json:"user_id" gorm:"column:user_id;primaryKey;size:64"`
	Username            string         `json:"username" gorm:"column:username;size:100"`
	Status              InstanceStatus `json:"status" gorm:"column:status;size:20;not null;index"`
	LicenseType         LicenseType    `json:"license_type" gorm:"column:license_type;size:20;not null"`
	LicenseOwnerID      string         `json:"license_owner_id" gorm:"column:license_owner_id;size:64;index"`
	AllowLicenseSharing bool           `json:"allow_license_sharing" gorm:"column:allow_license_sharing;not null;default:false"`
	MaxConcurrentUsers  int            `json:"max_concurrent_users" gorm:"column:max_concurrent_users;not null;default:1"`
	LinkedSessionID     string         `json:"linked_session_id" gorm:"column:linked_session_id;size:32;index"`
	FoundryVersion      string         `json:"foundry_version" gorm:"column:foundry_version;size:20"`
	StartedAt           *time.Time     `json:"started_at" gorm:"column:started_at"`
	AutoShutdownAt      *time.Time     `json:"auto_shutdown_at" gorm:"column:auto_shutdown_at;index"`

	// 外部资源引用
	TaskDefinitionArn string `json:"task_definition_arn" gorm:"column:task_definition_arn;size:255"`
	TaskArn           string `json:"task_arn" gorm:"column:task_arn;size:255"`
	PrivateIP         string `json:"private_ip" gorm:"column:private_ip;size:64"`
	TargetGroupArn    string `json:"target_group_arn" gorm:"column:target_group_arn;size:255"`
	RuleArn           string `json:"rule_arn" gorm:"column:rule_arn;size:255"`
	RulePriority      int32  `json:"rule_priority" gorm:"column:rule_priority"`
	AccessPointID     string `json:"access_point_id" gorm:"column:access_point_id;size:128"`
	BucketName        string `json:"bucket_name" gorm:"column:bucket_name;size:128"`
	IAMUserName       string `json:"iam_user_name" gorm:"column:iam_user_name;size:128"`
	AccessKeyID       string `json:"access_key_id" gorm:"column:access_key_id;size:128"`
	SecretArn         string `json:"secret_arn" gorm:"column:secret_arn;size:255"`
	Hostname          string `json:"hostname" gorm:"column:hostname;size:255"`

	Revision   int64     `json:"revision" gorm:"column:revision;not null;default:0"`
	CreateTime time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (Instance) TableName() string {
	return "instance"
}

// LicenseID 实例当前绑定的许可证池 id，未绑定时为空
func (i *Instance) LicenseID() string {
	if i.LicenseOwnerID == "" {
		return ""
	}
	return PoolID(i.LicenseOwnerID)
}

// OnDemand 运行中但没有关联会话
func (i *Instance) OnDemand() bool {
	return i.Status.Active() && i.LinkedSessionID == ""
}
