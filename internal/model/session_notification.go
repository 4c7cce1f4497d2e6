package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	NotificationKindSessionReady      = "session-ready"
	NotificationKindInstancePreempted = "instance-preempted"
	NotificationKindSessionCancelled  = "session-cancelled"
)

// SessionNotification 通知发件箱，由任务服务投递到外部机器人
type SessionNotification struct {
	Id          uint64         `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Kind        string         `json:"kind" gorm:"column:kind;size:40;not null"`
	UserID      string         `json:"user_id" gorm:"column:user_id;size:64;not null;index"`
	SessionID   string         `json:"session_id" gorm:"column:session_id;size:32"`
	Payload     datatypes.JSON `json:"payload" gorm:"column:payload"`
	Delivered   bool           `json:"delivered" gorm:"column:delivered;not null;default:false;index"`
	Attempts    int            `json:"attempts" gorm:"column:attempts;not null;default:0"`
	LastError   string         `json:"last_error" gorm:"column:last_error;type:text"`
	DeliveredAt *time.Time     `json:"delivered_at" gorm:"column:delivered_at"`
	CreateTime  time.Time      `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime  time.Time      `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (SessionNotification) TableName() string {
	return "session_notification"
}
