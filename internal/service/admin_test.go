package service

import (
	"testing"
	"time"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmin_Authorize(t *testing.T) {
	env := newTestEnv(t)

	assert.NoError(t, env.admin.Authorize("root", false))
	assert.NoError(t, env.admin.Authorize("anyone", true))
	assert.ErrorIs(t, env.admin.Authorize("anyone", false), v1.ErrAdminOnly)
	assert.ErrorIs(t, env.admin.Authorize("", false), v1.ErrAdminOnly)
}

func TestAdmin_ForceShutdownCompletesSession(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	sched, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u1", StartTime: env.now, EndTime: env.now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = env.scheduler.StartScheduledSession(env.ctx, sched.Session.SessionID, "u1")
	require.NoError(t, err)

	resp, err := env.admin.ForceShutdown(env.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, resp.Affected)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, model.InstanceStatusStopped, env.instance("u1").Status)

	sess, err := env.sessionRepo.GetByID(env.ctx, sched.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, sess.Status)

	_, err = env.admin.ForceShutdown(env.ctx, "ghost")
	assert.ErrorIs(t, err, v1.ErrInstanceNotFound)
	_, err = env.admin.ForceShutdown(env.ctx, "")
	assert.ErrorIs(t, err, v1.ErrMissingField)
}

func TestAdmin_CancelSessionOverridesOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	sched, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u1", StartTime: env.now, EndTime: env.now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = env.scheduler.StartScheduledSession(env.ctx, sched.Session.SessionID, "u1")
	require.NoError(t, err)

	data, err := env.admin.CancelSession(env.ctx, sched.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", data.Status)
	assert.Equal(t, "cancelled by admin", data.CancelReason)
	assert.Equal(t, model.InstanceStatusStopped, env.instance("u1").Status)
}

func TestAdmin_SystemMaintenance(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	env.createByol("u2", false)
	env.createByol("u3", false)

	_, err := env.instances.Start(env.ctx, "u1")
	require.NoError(t, err)
	active, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u2", StartTime: env.now, EndTime: env.now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = env.scheduler.StartScheduledSession(env.ctx, active.Session.SessionID, "u2")
	require.NoError(t, err)
	upcoming, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u3", StartTime: env.now.Add(2 * time.Hour), EndTime: env.now.Add(3 * time.Hour),
	})
	require.NoError(t, err)

	overview, err := env.admin.Overview(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, overview.InstancesByStatus["running"])
	assert.Equal(t, 1, overview.InstancesByStatus["created"])
	assert.Len(t, overview.RunningInstances, 2)
	assert.Len(t, overview.ActiveSessions, 1)
	assert.Len(t, overview.UpcomingSessions, 1)
	assert.Equal(t, 2, overview.Stats.Running)

	resp, err := env.admin.SystemMaintenance(env.ctx, "")
	require.NoError(t, err)
	assert.Empty(t, resp.Errors)
	assert.ElementsMatch(t, []string{active.Session.SessionID, upcoming.Session.SessionID, "u1"}, resp.Affected)
	assert.Equal(t, "cancelled 2 session(s), stopped 1 instance(s)", resp.Message)

	for _, id := range []string{"u1", "u2"} {
		assert.Equal(t, model.InstanceStatusStopped, env.instance(id).Status, id)
	}
	assert.Zero(t, env.cloud.RunningTasks())

	sess, err := env.sessionRepo.GetByID(env.ctx, upcoming.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, sess.Status)
	assert.Equal(t, "system maintenance", sess.CancelReason)

	overview, err = env.admin.Overview(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, overview.RunningInstances)
	assert.Empty(t, overview.ActiveSessions)
	assert.Empty(t, overview.UpcomingSessions)
	assert.Equal(t, int64(2), overview.PendingNotifications)
}

func TestAdmin_CancelAllSessions(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	_, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u1", StartTime: env.now.Add(time.Hour), EndTime: env.now.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	resp, err := env.admin.CancelAllSessions(env.ctx, "venue closed")
	require.NoError(t, err)
	assert.Len(t, resp.Affected, 1)

	list, err := env.scheduler.ListSessions(env.ctx, "u1", true)
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "venue closed", list.Sessions[0].CancelReason)

	resp, err = env.admin.CancelAllSessions(env.ctx, "venue closed")
	require.NoError(t, err)
	assert.Empty(t, resp.Affected)
}
