package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

type ScheduledSession struct {
	SessionID      string         `json:"session_id" gorm:"column:session_id;primaryKey;size:32"`
	UserID         string         `json:"user_id" gorm:"column:user_id;size:64;not null;index"`
	Username       string         `json:"username" gorm:"column:username;size:100"`
	LicenseType    LicenseType    `json:"license_type" gorm:"column:license_type;size:20;not null"`
	LicenseID      string         `json:"license_id" gorm:"column:license_id;size:80;not null;index"`
	StartTime      time.Time      `json:"start_time" gorm:"column:start_time;not null;index"`
	EndTime        time.Time      `json:"end_time" gorm:"column:end_time;not null"`
	Status         SessionStatus  `json:"status" gorm:"column:status;size:20;not null;index"`
	InstanceID     string         `json:"instance_id" gorm:"column:instance_id;size:64"`
	Title          string         `json:"title" gorm:"column:title;size:200"`
	Description    string         `json:"description" gorm:"column:description;type:text"`
	PreemptedUsers datatypes.JSON `json:"preempted_users" gorm:"column:preempted_users"`
	CancelReason   string         `json:"cancel_reason" gorm:"column:cancel_reason;size:255"`
	CreateTime     time.Time      `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime     time.Time      `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (ScheduledSession) TableName() string {
	return "scheduled_session"
}

func (s *ScheduledSession) SetPreemptedUsers(users []string) {
	if len(users) == 0 {
		s.PreemptedUsers = nil
		return
	}
	b, _ := json.Marshal(users)
	s.PreemptedUsers = datatypes.JSON(b)
}

func (s *ScheduledSession) GetPreemptedUsers() []string {
	if len(s.PreemptedUsers) == 0 {
		return nil
	}
	var users []string
	_ = json.Unmarshal(s.PreemptedUsers, &users)
	return users
}

// Overlaps 半开区间 [start, end) 相交
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
