package v1

import "time"

type CreateInstanceRequest struct {
	UserID              string `json:"userId"`
	Username            string `json:"username"`
	LicenseType         string `json:"licenseType"`
	FoundryUsername     string `json:"foundryUsername"`
	FoundryPassword     string `json:"foundryPassword"`
	AllowLicenseSharing bool   `json:"allowLicenseSharing"`
	MaxConcurrentUsers  int    `json:"maxConcurrentUsers"`
	SelectedLicenseID   string `json:"selectedLicenseId"`
	FoundryVersion      string `json:"foundryVersion"`
}

type InstanceData struct {
	UserID              string       `json:"userId"`
	Status              string       `json:"status"`
	LicenseType         string       `json:"licenseType"`
	LicenseOwnerID      string       `json:"licenseOwnerId,omitempty"`
	AllowLicenseSharing bool         `json:"allowLicenseSharing"`
	MaxConcurrentUsers  int          `json:"maxConcurrentUsers"`
	LinkedSessionID     string       `json:"linkedSessionId,omitempty"`
	FoundryVersion      string       `json:"foundryVersion"`
	URL                 string       `json:"url"`
	AssetsURL           string       `json:"assetsUrl,omitempty"`
	StartedAt           *time.Time   `json:"startedAt,omitempty"`
	AutoShutdownAt      *time.Time   `json:"autoShutdownAt,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
	TaskStatus          string       `json:"taskStatus,omitempty"`
	NextSession         *SessionData `json:"nextSession,omitempty"`
}

type CreateInstanceResponseData struct {
	Instance InstanceData `json:"instance"`
	AdminKey string       `json:"adminKey"`
	// Resumed 为 true 表示本次请求接续了之前失败的创建流程
	Resumed bool `json:"resumed"`
}

type DestroyInstanceResponseData struct {
	UserID                 string   `json:"userId"`
	LicensePoolDeactivated bool     `json:"licensePoolDeactivated"`
	Warnings               []string `json:"warnings,omitempty"`
}

type ListInstancesResponseData struct {
	Total     int            `json:"total"`
	Instances []InstanceData `json:"instances"`
}

type UpdateVersionRequest struct {
	UserID         string `json:"userId"`
	FoundryVersion string `json:"foundryVersion"`
}

type UpdateVersionResponseData struct {
	Instance       InstanceData `json:"instance"`
	OwnershipReset bool         `json:"ownershipReset"`
}
