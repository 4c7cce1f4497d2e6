package model

import (
	"time"

	"gorm.io/datatypes"
)

type ProvisionStep string

// 创建流程按此顺序执行，日志记录最后完成的一步
const (
	ProvisionStepNone        ProvisionStep = ""
	ProvisionStepAccessPoint ProvisionStep = "access-point"
	ProvisionStepSecret      ProvisionStep = "secret"
	ProvisionStepBucket      ProvisionStep = "bucket"
	ProvisionStepIdentity    ProvisionStep = "identity"
	ProvisionStepTargetGroup ProvisionStep = "target-group"
	ProvisionStepDNS         ProvisionStep = "dns"
)

var ProvisionSteps = []ProvisionStep{
	ProvisionStepAccessPoint,
	ProvisionStepSecret,
	ProvisionStepBucket,
	ProvisionStepIdentity,
	ProvisionStepTargetGroup,
	ProvisionStepDNS,
}

// Done 判断 step 是否已在 completed 之前（含）完成
func (completed ProvisionStep) Done(step ProvisionStep) bool {
	ci, si := -1, -1
	for i, s := range ProvisionSteps {
		if s == completed {
			ci = i
		}
		if s == step {
			si = i
		}
	}
	return si >= 0 && si <= ci
}

// ProvisionJournal 记录未完成的创建流程，实例行写入后删除
type ProvisionJournal struct {
	UserID        string            `json:"user_id" gorm:"column:user_id;primaryKey;size:64"`
	CompletedStep ProvisionStep     `json:"completed_step" gorm:"column:completed_step;size:40"`
	Resources     datatypes.JSONMap `json:"resources" gorm:"column:resources"`
	LastError     string            `json:"last_error" gorm:"column:last_error;type:text"`
	CreateTime    time.Time         `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime    time.Time         `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (ProvisionJournal) TableName() string {
	return "provision_journal"
}

func (j *ProvisionJournal) Resource(key string) string {
	if j == nil || j.Resources == nil {
		return ""
	}
	v, _ := j.Resources[key].(string)
	return v
}

func (j *ProvisionJournal) SetResource(key, value string) {
	if j.Resources == nil {
		j.Resources = datatypes.JSONMap{}
	}
	j.Resources[key] = value
}
