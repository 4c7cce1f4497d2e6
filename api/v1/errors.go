package v1

var (
	// common errors
	ErrSuccess             = newError(0, "ok")
	ErrBadRequest          = newError(400, "bad request")
	ErrUnauthorized        = newError(401, "unauthorized")
	ErrNotFound            = newError(404, "not found")
	ErrInternalServerError = newError(500, "internal server error")

	// validation errors
	ErrMissingAction       = newError(1001, "action is required")
	ErrMissingUserID       = newError(1002, "userId is required")
	ErrUnknownAction       = newError(1003, "unknown action")
	ErrInvalidLicenseType  = newError(1004, "licenseType must be byol or pooled")
	ErrInvalidVersion      = newError(1005, "unsupported foundry version")
	ErrInvalidTimeWindow   = newError(1006, "startTime must be before endTime and in the future")
	ErrMissingCredentials  = newError(1007, "foundry credentials are required for a new byol instance")
	ErrSharingRequiresByol = newError(1008, "license sharing is only available for byol instances")
	ErrSessionTooLong      = newError(1009, "session exceeds the maximum length")
	ErrMissingSessionID    = newError(1010, "sessionId is required")
	ErrMissingField        = newError(1011, "required field is missing")

	// not found errors
	ErrInstanceNotFound    = newError(2001, "instance not found")
	ErrSessionNotFound     = newError(2002, "session not found")
	ErrLicenseNotFound     = newError(2003, "license not found")
	ErrReservationNotFound = newError(2004, "reservation not found")

	// state conflicts
	ErrInstanceExists        = newError(3001, "an instance already exists for this user")
	ErrInvalidTransition     = newError(3002, "invalid instance state transition")
	ErrAlreadyRunning        = newError(3003, "instance is already running")
	ErrPooledOnDemand        = newError(3004, "pooled instances can only be started through a scheduled session")
	ErrOnDemandBlocked       = newError(3005, "a scheduled session on this license starts soon")
	ErrLicenseUnavailable    = newError(3006, "no license is available for the requested window")
	ErrSessionNotStartable   = newError(3007, "session cannot be started")
	ErrSessionNotActive      = newError(3008, "session is not active")
	ErrSlotTaken             = newError(3009, "license was reserved for an overlapping window")
	ErrConcurrentUpdate      = newError(3010, "record was modified concurrently, retry the request")
	ErrInstanceRunning       = newError(3011, "stop the instance before changing its version")
	ErrSessionNotCancellable = newError(3012, "session can no longer be cancelled")

	// permission errors
	ErrAdminOnly       = newError(4001, "this action requires administrator privileges")
	ErrNotSessionOwner = newError(4002, "session belongs to another user")

	// provisioning errors
	ErrProvisionFailed       = newError(5001, "provisioning failed")
	ErrStartTimeout          = newError(5002, "instance did not become ready in time")
	ErrSecretPendingDeletion = newError(5003, "credentials are scheduled for deletion and could not be restored; wait for the recovery window to pass or contact an administrator")
)
