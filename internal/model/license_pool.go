package model

import (
	"strings"
	"time"
)

const poolIDPrefix = "byol-"

// PoolID 许可证池 id 由所有者确定性派生
func PoolID(ownerID string) string {
	return poolIDPrefix + ownerID
}

// PoolOwner 从池 id 反解所有者，格式不符时返回 false
func PoolOwner(poolID string) (string, bool) {
	if !strings.HasPrefix(poolID, poolIDPrefix) || len(poolID) == len(poolIDPrefix) {
		return "", false
	}
	return strings.TrimPrefix(poolID, poolIDPrefix), true
}

type LicensePool struct {
	ID                 string    `json:"id" gorm:"column:id;primaryKey;size:80"`
	OwnerID            string    `json:"owner_id" gorm:"column:owner_id;size:64;not null;uniqueIndex"`
	OwnerUsername      string    `json:"owner_username" gorm:"column:owner_username;size:100"`
	MaxConcurrentUsers int       `json:"max_concurrent_users" gorm:"column:max_concurrent_users;not null;default:1"`
	IsActive           bool      `json:"is_active" gorm:"column:is_active;not null;default:true;index"`
	CreateTime         time.Time `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime         time.Time `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (LicensePool) TableName() string {
	return "license_pool"
}
