package v1

import "time"

type SetLicenseSharingRequest struct {
	UserID             string `json:"userId"`
	Username           string `json:"username"`
	Enabled            bool   `json:"enabled"`
	MaxConcurrentUsers int    `json:"maxConcurrentUsers"`
}

type LicensePoolData struct {
	ID                 string `json:"id"`
	OwnerID            string `json:"ownerId"`
	OwnerUsername      string `json:"ownerUsername"`
	MaxConcurrentUsers int    `json:"maxConcurrentUsers"`
	IsActive           bool   `json:"isActive"`
}

type CheckAvailabilityRequest struct {
	UserID             string    `json:"userId"`
	LicenseType        string    `json:"licenseType"`
	PreferredLicenseID string    `json:"preferredLicenseId"`
	StartTime          time.Time `json:"startTime"`
	EndTime            time.Time `json:"endTime"`
}

type LicenseAvailability struct {
	LicenseID string `json:"licenseId"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	// Preemptable 当前按需运行、预订后会被强制停止的用户
	Preemptable []string `json:"preemptable,omitempty"`
}

type CheckAvailabilityResponseData struct {
	Available  bool                  `json:"available"`
	LicenseID  string                `json:"licenseId,omitempty"`
	Reason     string                `json:"reason,omitempty"`
	Candidates []LicenseAvailability `json:"candidates"`
}

type SetLicenseSharingResponseData struct {
	Pool LicensePoolData `json:"pool"`
}
