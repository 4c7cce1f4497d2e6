package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"
	"foundryhost/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoShutdown_SweepIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	env.createByol("u2", false)
	_, err := env.instances.Start(env.ctx, "u1")
	require.NoError(t, err)
	env.advance(time.Hour)
	_, err = env.instances.Start(env.ctx, "u2")
	require.NoError(t, err)

	counter := metrics.InstanceStopsTotal.WithLabelValues(metrics.StopReasonAutoExpire)
	before := testutil.ToFloat64(counter)

	resp, err := env.autoShutdown.CheckAndShutdownExpiredInstances(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Checked)
	assert.Empty(t, resp.Stopped)

	// u1 已到期，u2 还差一小时
	env.advance(5 * time.Hour)
	resp, err = env.autoShutdown.CheckAndShutdownExpiredInstances(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, resp.Stopped)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, model.InstanceStatusStopped, env.instance("u1").Status)
	assert.Equal(t, model.InstanceStatusRunning, env.instance("u2").Status)

	resp, err = env.autoShutdown.CheckAndShutdownExpiredInstances(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Checked)
	assert.Empty(t, resp.Stopped)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestAutoShutdown_SweepCompletesBoundSession(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	sched, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u1", StartTime: env.now, EndTime: env.now.Add(time.Hour),
	})
	require.NoError(t, err)
	sessionID := sched.Session.SessionID
	_, err = env.scheduler.StartScheduledSession(env.ctx, sessionID, "u1")
	require.NoError(t, err)

	// 会话结束后宽限期内不停止
	env.advance(90 * time.Minute)
	resp, err := env.autoShutdown.CheckAndShutdownExpiredInstances(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, resp.Stopped)

	env.advance(30 * time.Minute)
	resp, err = env.autoShutdown.CheckAndShutdownExpiredInstances(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, resp.Stopped)

	sess, err := env.sessionRepo.GetByID(env.ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, sess.Status)
	res, err := env.reservationRepo.GetBySessionID(env.ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusCompleted, res.Status)
	inst := env.instance("u1")
	assert.Empty(t, inst.LinkedSessionID)
	assert.Nil(t, inst.AutoShutdownAt)
}

func TestAutoShutdown_SweepClosesOrphanedActiveSession(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	sched, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u1", StartTime: env.now, EndTime: env.now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = env.scheduler.StartScheduledSession(env.ctx, sched.Session.SessionID, "u1")
	require.NoError(t, err)

	// 用户手动停止实例，会话仍为 active
	_, err = env.instances.Stop(env.ctx, "u1")
	require.NoError(t, err)

	env.advance(2 * time.Hour)
	resp, err := env.autoShutdown.CheckAndShutdownExpiredInstances(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, resp.Stopped)
	sess, err := env.sessionRepo.GetByID(env.ctx, sched.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, sess.Status)
}

func TestAutoShutdown_PrepareStartsDueSessions(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	env.createByol("u2", false)

	soon, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u1", StartTime: env.now.Add(3 * time.Minute), EndTime: env.now.Add(time.Hour),
	})
	require.NoError(t, err)
	later, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u2", StartTime: env.now.Add(10 * time.Minute), EndTime: env.now.Add(time.Hour),
	})
	require.NoError(t, err)

	resp, err := env.autoShutdown.PrepareForUpcomingSessions(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{soon.Session.SessionID}, resp.Started)
	assert.Empty(t, resp.Cancelled)

	inst := env.instance("u1")
	assert.Equal(t, model.InstanceStatusRunning, inst.Status)
	assert.Equal(t, soon.Session.SessionID, inst.LinkedSessionID)
	assert.Equal(t, model.InstanceStatusCreated, env.instance("u2").Status)

	notes, err := env.notifications.List(env.ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, notes.Total)
	ready := notes.Notifications[0]
	assert.Equal(t, model.NotificationKindSessionReady, ready.Kind)
	assert.Equal(t, soon.Session.SessionID, ready.SessionID)
	assert.Equal(t, "https://u1.games.example.com", ready.Payload["url"])

	// 再次执行不重复启动
	resp, err = env.autoShutdown.PrepareForUpcomingSessions(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, resp.Started)

	env.advance(6 * time.Minute)
	resp, err = env.autoShutdown.PrepareForUpcomingSessions(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{later.Session.SessionID}, resp.Started)
}

func TestAutoShutdown_PrepareCancelsMissedWindow(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	sched, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u1", StartTime: env.now.Add(time.Hour), EndTime: env.now.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	env.advance(3 * time.Hour)
	resp, err := env.autoShutdown.PrepareForUpcomingSessions(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{sched.Session.SessionID}, resp.Cancelled)

	sess, err := env.sessionRepo.GetByID(env.ctx, sched.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, sess.Status)
	assert.Equal(t, "session window passed before it could start", sess.CancelReason)
}

func TestAutoShutdown_PrepareCancelsOnStartFailure(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	sched, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u1", StartTime: env.now.Add(time.Minute), EndTime: env.now.Add(time.Hour),
	})
	require.NoError(t, err)

	env.cloud.FailStep["RunTask"] = errors.New("capacity unavailable")
	resp, err := env.autoShutdown.PrepareForUpcomingSessions(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, resp.Started)
	assert.Equal(t, []string{sched.Session.SessionID}, resp.Cancelled)

	sess, err := env.sessionRepo.GetByID(env.ctx, sched.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, sess.Status)
	assert.True(t, strings.HasPrefix(sess.CancelReason, "failed to start:"), sess.CancelReason)
	assert.NotEqual(t, model.InstanceStatusRunning, env.instance("u1").Status)
	assert.Zero(t, env.cloud.RunningTasks())
}

func TestAutoShutdown_Stats(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	env.createByol("u2", false)
	_, err := env.instances.Start(env.ctx, "u1")
	require.NoError(t, err)
	env.advance(time.Hour)
	_, err = env.instances.Start(env.ctx, "u2")
	require.NoError(t, err)

	stats, err := env.autoShutdown.GetAutoShutdownStats(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Running)
	assert.Equal(t, 2, stats.WithTimer)
	assert.Zero(t, stats.Overdue)
	require.NotNil(t, stats.NextShutdownAt)
	assert.Equal(t, "u1", stats.NextShutdownUser)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.RunningInstances))
	assert.Equal(t, (5 * time.Hour).Seconds(), testutil.ToFloat64(metrics.NextShutdownSeconds))

	env.advance(5*time.Hour + time.Minute)
	stats, err = env.autoShutdown.GetAutoShutdownStats(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Overdue)
	assert.Equal(t, "u2", stats.NextShutdownUser)
}

func TestAutoShutdown_EmergencyShutdown(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("owner", true)
	env.createPooled("p1")
	_, err := env.instances.Start(env.ctx, "owner")
	require.NoError(t, err)

	stopped, err := env.autoShutdown.EmergencyShutdownForScheduledSession(env.ctx, "p1", "byol-owner")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner"}, stopped)
	assert.Equal(t, model.InstanceStatusStopped, env.instance("owner").Status)

	stopped, err = env.autoShutdown.EmergencyShutdownForScheduledSession(env.ctx, "p1", "byol-owner")
	require.NoError(t, err)
	assert.Empty(t, stopped)

	_, err = env.autoShutdown.EmergencyShutdownForScheduledSession(env.ctx, "p1", "bogus")
	assert.ErrorIs(t, err, v1.ErrLicenseNotFound)
}
