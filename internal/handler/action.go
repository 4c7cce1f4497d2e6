package handler

import (
	"fmt"
	"net/http"
	"strconv"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/service"
	"foundryhost/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type actionFunc func(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error)

type ActionHandler struct {
	*Handler
	instanceService     service.InstanceService
	licenseService      service.LicenseService
	schedulerService    service.SchedulerService
	autoShutdownService service.AutoShutdownService
	adminService        service.AdminService
	notificationService service.NotificationService
	actions             map[string]actionFunc
}

func NewActionHandler(
	handler *Handler,
	instanceService service.InstanceService,
	licenseService service.LicenseService,
	schedulerService service.SchedulerService,
	autoShutdownService service.AutoShutdownService,
	adminService service.AdminService,
	notificationService service.NotificationService,
) *ActionHandler {
	h := &ActionHandler{
		Handler:             handler,
		instanceService:     instanceService,
		licenseService:      licenseService,
		schedulerService:    schedulerService,
		autoShutdownService: autoShutdownService,
		adminService:        adminService,
		notificationService: notificationService,
	}
	h.actions = map[string]actionFunc{
		"create":                  h.create,
		"start":                   h.start,
		"stop":                    h.stop,
		"destroy":                 h.destroy,
		"delete":                  h.destroy,
		"status":                  h.status,
		"list-all":                h.listAll,
		"update-version":          h.updateVersion,
		"schedule-session":        h.scheduleSession,
		"cancel-session":          h.cancelSession,
		"list-sessions":           h.listSessions,
		"set-license-sharing":     h.setLicenseSharing,
		"check-availability":      h.checkAvailability,
		"list-license-pools":      h.listPools,
		"start-scheduled-session": h.startScheduledSession,
		"end-scheduled-session":   h.endScheduledSession,
		"list-notifications":      h.listNotifications,
		"auto-shutdown-check":     h.autoShutdownCheck,
		"prepare-sessions":        h.prepareSessions,
		"shutdown-stats":          h.shutdownStats,

		"admin-overview":            h.adminOnly(h.adminOverview),
		"admin-force-shutdown":      h.adminOnly(h.adminForceShutdown),
		"admin-cancel-session":      h.adminOnly(h.adminCancelSession),
		"admin-cancel-all-sessions": h.adminOnly(h.adminCancelAllSessions),
		"admin-system-maintenance":  h.adminOnly(h.adminSystemMaintenance),
	}
	return h
}

// Dispatch godoc
// @Summary 执行实例编排动作
// @Schemes
// @Description 统一入口，按 action 分发到实例、会话、许可证与管理操作；HTTP 状态码与返回体中的 statusCode 一致
// @Tags 编排
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body v1.ActionRequest true "params"
// @Success 200 {object} v1.ActionResponse
// @Failure 400 {object} v1.ActionResponse
// @Failure 403 {object} v1.ActionResponse
// @Failure 404 {object} v1.ActionResponse
// @Failure 409 {object} v1.ActionResponse
// @Failure 500 {object} v1.ActionResponse
// @Router /api/v1/actions [post]
func (h *ActionHandler) Dispatch(ctx *gin.Context) {
	req := new(v1.ActionRequest)
	if err := ctx.ShouldBindJSON(req); err != nil {
		h.respond(ctx, "invalid", nil, fmt.Errorf("%w: %v", v1.ErrBadRequest, err))
		return
	}
	if req.Action == "" {
		h.respond(ctx, "invalid", nil, v1.ErrMissingAction)
		return
	}
	if req.UserID == "" {
		h.respond(ctx, req.Action, nil, v1.ErrMissingUserID)
		return
	}
	fn, ok := h.actions[req.Action]
	if !ok {
		h.respond(ctx, "unknown", nil, fmt.Errorf("%w: %s", v1.ErrUnknownAction, req.Action))
		return
	}
	body, err := fn(ctx, req)
	h.respond(ctx, req.Action, body, err)
}

func (h *ActionHandler) respond(ctx *gin.Context, action string, body interface{}, err error) {
	status := v1.HTTPStatus(err)
	metrics.ActionsTotal.WithLabelValues(action, strconv.Itoa(status)).Inc()
	if err == nil {
		if body == nil {
			body = v1.MessageBody{Message: "ok"}
		}
		ctx.JSON(status, v1.ActionResponse{StatusCode: status, Body: body})
		return
	}

	code, known := v1.Code(err)
	msg := err.Error()
	switch {
	case !known:
		// 未声明的错误可能包含内部细节，不返回给调用方
		h.logger.WithContext(ctx).Error("action failed", zap.String("action", action), zap.Error(err))
		code, msg = 500, v1.ErrInternalServerError.Error()
	case status >= http.StatusInternalServerError:
		h.logger.WithContext(ctx).Error("action failed", zap.String("action", action), zap.Error(err))
	default:
		h.logger.WithContext(ctx).Info("action rejected", zap.String("action", action), zap.Error(err))
	}
	ctx.JSON(status, v1.ActionResponse{StatusCode: status, Body: v1.ErrorBody{Error: msg, Code: code}})
}

func (h *ActionHandler) adminOnly(fn actionFunc) actionFunc {
	return func(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
		// 请求体里的 userId 由调用方随意填写，身份只认 token
		callerID, tokenAdmin := "", false
		if claims := GetClaimsFromCtx(ctx); claims != nil {
			callerID, tokenAdmin = claims.UserId, claims.Admin
		}
		if err := h.adminService.Authorize(callerID, tokenAdmin); err != nil {
			h.logger.WithContext(ctx).Warn("admin action denied",
				zap.String("action", req.Action),
				zap.String("user_id", req.UserID),
				zap.String("token_user_id", callerID))
			return nil, err
		}
		return fn(ctx, req)
	}
}

func requireWindow(req *v1.ActionRequest) error {
	if req.StartTime == nil || req.EndTime == nil {
		return fmt.Errorf("%w: startTime and endTime", v1.ErrMissingField)
	}
	return nil
}

func (h *ActionHandler) create(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.instanceService.Create(ctx, &v1.CreateInstanceRequest{
		UserID:              req.UserID,
		Username:            req.Username,
		LicenseType:         req.LicenseType,
		FoundryUsername:     req.FoundryUsername,
		FoundryPassword:     req.FoundryPassword,
		AllowLicenseSharing: req.AllowLicenseSharing,
		MaxConcurrentUsers:  req.MaxConcurrentUsers,
		SelectedLicenseID:   req.SelectedLicenseID,
		FoundryVersion:      req.FoundryVersion,
	})
}

func (h *ActionHandler) start(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.instanceService.Start(ctx, req.UserID)
}

func (h *ActionHandler) stop(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.instanceService.Stop(ctx, req.UserID)
}

func (h *ActionHandler) destroy(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.instanceService.Destroy(ctx, req.UserID, req.KeepLicenseSharing)
}

func (h *ActionHandler) status(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.instanceService.Status(ctx, req.UserID)
}

func (h *ActionHandler) listAll(ctx *gin.Context, _ *v1.ActionRequest) (interface{}, error) {
	return h.instanceService.ListAll(ctx)
}

func (h *ActionHandler) updateVersion(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.instanceService.UpdateVersion(ctx, &v1.UpdateVersionRequest{
		UserID:         req.UserID,
		FoundryVersion: req.FoundryVersion,
	})
}

func (h *ActionHandler) scheduleSession(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	if err := requireWindow(req); err != nil {
		return nil, err
	}
	return h.schedulerService.ScheduleSession(ctx, &v1.ScheduleSessionRequest{
		UserID:             req.UserID,
		Username:           req.Username,
		LicenseType:        req.LicenseType,
		PreferredLicenseID: req.PreferredLicenseID,
		StartTime:          *req.StartTime,
		EndTime:            *req.EndTime,
		Title:              req.Title,
		Description:        req.Description,
	})
}

func (h *ActionHandler) cancelSession(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.schedulerService.CancelSession(ctx, req.SessionID, req.UserID, false)
}

func (h *ActionHandler) listSessions(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.schedulerService.ListSessions(ctx, req.UserID, req.IncludeHistory)
}

func (h *ActionHandler) setLicenseSharing(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	if req.Enabled == nil {
		return nil, fmt.Errorf("%w: enabled", v1.ErrMissingField)
	}
	return h.licenseService.SetLicenseSharing(ctx, &v1.SetLicenseSharingRequest{
		UserID:             req.UserID,
		Username:           req.Username,
		Enabled:            *req.Enabled,
		MaxConcurrentUsers: req.MaxConcurrentUsers,
	})
}

func (h *ActionHandler) checkAvailability(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	if err := requireWindow(req); err != nil {
		return nil, err
	}
	return h.licenseService.CheckAvailability(ctx, &v1.CheckAvailabilityRequest{
		UserID:             req.UserID,
		LicenseType:        req.LicenseType,
		PreferredLicenseID: req.PreferredLicenseID,
		StartTime:          *req.StartTime,
		EndTime:            *req.EndTime,
	})
}

func (h *ActionHandler) listPools(ctx *gin.Context, _ *v1.ActionRequest) (interface{}, error) {
	pools, err := h.licenseService.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	return gin.H{"total": len(pools), "pools": pools}, nil
}

func (h *ActionHandler) startScheduledSession(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.schedulerService.StartScheduledSession(ctx, req.SessionID, req.UserID)
}

func (h *ActionHandler) endScheduledSession(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.schedulerService.EndScheduledSession(ctx, req.SessionID, req.UserID)
}

func (h *ActionHandler) listNotifications(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.notificationService.List(ctx, req.UserID)
}

func (h *ActionHandler) autoShutdownCheck(ctx *gin.Context, _ *v1.ActionRequest) (interface{}, error) {
	return h.autoShutdownService.CheckAndShutdownExpiredInstances(ctx)
}

func (h *ActionHandler) prepareSessions(ctx *gin.Context, _ *v1.ActionRequest) (interface{}, error) {
	return h.autoShutdownService.PrepareForUpcomingSessions(ctx)
}

func (h *ActionHandler) shutdownStats(ctx *gin.Context, _ *v1.ActionRequest) (interface{}, error) {
	return h.autoShutdownService.GetAutoShutdownStats(ctx)
}

func (h *ActionHandler) adminOverview(ctx *gin.Context, _ *v1.ActionRequest) (interface{}, error) {
	return h.adminService.Overview(ctx)
}

func (h *ActionHandler) adminForceShutdown(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.adminService.ForceShutdown(ctx, req.TargetUserID)
}

func (h *ActionHandler) adminCancelSession(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.adminService.CancelSession(ctx, req.SessionID)
}

func (h *ActionHandler) adminCancelAllSessions(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.adminService.CancelAllSessions(ctx, req.Reason)
}

func (h *ActionHandler) adminSystemMaintenance(ctx *gin.Context, req *v1.ActionRequest) (interface{}, error) {
	return h.adminService.SystemMaintenance(ctx, req.Reason)
}
