package model

import "time"

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// LicenseReservation 会话对许可证的占用记录，状态随会话流转
type LicenseReservation struct {
	ReservationID string            `json:"reservation_id" gorm:"column:reservation_id;primaryKey;size:36"`
	LicenseID     string            `json:"license_id" gorm:"column:license_id;size:80;not null;index"`
	SessionID     string            `json:"session_id" gorm:"column:session_id;size:32;not null;uniqueIndex"`
	UserID        string            `json:"user_id" gorm:"column:user_id;size:64;not null"`
	StartTime     time.Time         `json:"start_time" gorm:"column:start_time;not null"`
	EndTime       time.Time         `json:"end_time" gorm:"column:end_time;not null"`
	Status        ReservationStatus `json:"status" gorm:"column:status;size:20;not null;index"`
	CreateTime    time.Time         `json:"create_time" gorm:"column:gmt_create;autoCreateTime"`
	UpdateTime    time.Time         `json:"update_time" gorm:"column:gmt_modified;autoUpdateTime"`
}

func (LicenseReservation) TableName() string {
	return "license_reservation"
}
