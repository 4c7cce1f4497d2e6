package v1

import "time"

type SweepResponseData struct {
	Checked int      `json:"checked"`
	Stopped []string `json:"stopped"`
	Errors  []string `json:"errors,omitempty"`
}

type PrepareSessionsResponseData struct {
	Started   []string `json:"started"`
	Cancelled []string `json:"cancelled"`
}

type AutoShutdownStatsData struct {
	Running          int        `json:"running"`
	WithTimer        int        `json:"withTimer"`
	Overdue          int        `json:"overdue"`
	NextShutdownAt   *time.Time `json:"nextShutdownAt,omitempty"`
	NextShutdownUser string     `json:"nextShutdownUser,omitempty"`
}

type AdminOverviewData struct {
	InstancesByStatus    map[string]int        `json:"instancesByStatus"`
	RunningInstances     []InstanceData        `json:"runningInstances"`
	ActivePools          []LicensePoolData     `json:"activePools"`
	UpcomingSessions     []SessionData         `json:"upcomingSessions"`
	ActiveSessions       []SessionData         `json:"activeSessions"`
	Stats                AutoShutdownStatsData `json:"stats"`
	PendingNotifications int64                 `json:"pendingNotifications"`
}

type AdminResultData struct {
	Affected []string `json:"affected"`
	Errors   []string `json:"errors,omitempty"`
	Message  string   `json:"message,omitempty"`
}

type NotificationData struct {
	ID        uint64                 `json:"id"`
	Kind      string                 `json:"kind"`
	UserID    string                 `json:"userId"`
	SessionID string                 `json:"sessionId,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
	Delivered bool                   `json:"delivered"`
	CreatedAt time.Time              `json:"createdAt"`
}

type ListNotificationsResponseData struct {
	Total         int                `json:"total"`
	Notifications []NotificationData `json:"notifications"`
}
