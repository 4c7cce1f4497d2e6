package v1

import "time"

type ScheduleSessionRequest struct {
	UserID             string    `json:"userId"`
	Username           string    `json:"username"`
	LicenseType        string    `json:"licenseType"`
	PreferredLicenseID string    `json:"preferredLicenseId"`
	StartTime          time.Time `json:"startTime"`
	EndTime            time.Time `json:"endTime"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
}

type SessionData struct {
	SessionID      string    `json:"sessionId"`
	UserID         string    `json:"userId"`
	Username       string    `json:"username,omitempty"`
	LicenseType    string    `json:"licenseType"`
	LicenseID      string    `json:"licenseId"`
	Status         string    `json:"status"`
	InstanceID     string    `json:"instanceId,omitempty"`
	Title          string    `json:"title,omitempty"`
	Description    string    `json:"description,omitempty"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	PreemptedUsers []string  `json:"preemptedUsers,omitempty"`
	CancelReason   string    `json:"cancelReason,omitempty"`
}

type ScheduleSessionResponseData struct {
	Success           bool         `json:"success"`
	Session           *SessionData `json:"session,omitempty"`
	ConflictsResolved []string     `json:"conflictsResolved"`
	Message           string       `json:"message,omitempty"`
}

type ListSessionsResponseData struct {
	Total    int           `json:"total"`
	Sessions []SessionData `json:"sessions"`
}
