package v1

import "time"

// ActionRequest 统一动作入口的请求体，不同 action 只读取自己关心的字段
type ActionRequest struct {
	Action string `json:"action" example:"start"`
	UserID string `json:"userId" example:"284719375101231"`
	// 调用方显示名，用于许可证池与会话展示
	Username string `json:"username" example:"alice"`

	LicenseType         string `json:"licenseType" example:"byol"`
	FoundryUsername     string `json:"foundryUsername"`
	FoundryPassword     string `json:"foundryPassword"`
	AllowLicenseSharing bool   `json:"allowLicenseSharing"`
	MaxConcurrentUsers  int    `json:"maxConcurrentUsers" example:"1"`
	SelectedLicenseID   string `json:"selectedLicenseId" example:"byol-284719375101231"`
	KeepLicenseSharing  bool   `json:"keepLicenseSharing"`
	FoundryVersion      string `json:"foundryVersion" example:"13"`

	SessionID          string     `json:"sessionId"`
	StartTime          *time.Time `json:"startTime" example:"2026-10-16T18:00:00Z"`
	EndTime            *time.Time `json:"endTime" example:"2026-10-16T22:00:00Z"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	PreferredLicenseID string     `json:"preferredLicenseId"`
	IncludeHistory     bool       `json:"includeHistory"`
	Enabled            *bool      `json:"enabled"`

	TargetUserID string `json:"targetUserId"`
	Reason       string `json:"reason"`
}

type ActionResponse struct {
	StatusCode int         `json:"statusCode"`
	Body       interface{} `json:"body"`
}

type ErrorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

type MessageBody struct {
	Message string `json:"message"`
}
