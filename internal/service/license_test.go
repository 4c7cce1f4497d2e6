package service

import (
	"testing"
	"time"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLicense_PoolIDIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("owner", true)

	pool, err := env.poolRepo.GetByID(env.ctx, "byol-owner")
	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.True(t, pool.IsActive)

	resp, err := env.licenses.SetLicenseSharing(env.ctx, &v1.SetLicenseSharingRequest{UserID: "owner", Enabled: false})
	require.NoError(t, err)
	assert.False(t, resp.Pool.IsActive)
	assert.False(t, env.instance("owner").AllowLicenseSharing)

	resp, err = env.licenses.SetLicenseSharing(env.ctx, &v1.SetLicenseSharingRequest{UserID: "owner", Enabled: true, MaxConcurrentUsers: 3})
	require.NoError(t, err)
	assert.Equal(t, "byol-owner", resp.Pool.ID)
	assert.True(t, resp.Pool.IsActive)
	assert.Equal(t, 3, resp.Pool.MaxConcurrentUsers)

	all, err := env.poolRepo.List(env.ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	inst := env.instance("owner")
	assert.True(t, inst.AllowLicenseSharing)
	assert.Equal(t, 3, inst.MaxConcurrentUsers)
}

func TestLicense_SharingRequiresByol(t *testing.T) {
	env := newTestEnv(t)
	env.createPooled("p1")

	_, err := env.licenses.SetLicenseSharing(env.ctx, &v1.SetLicenseSharingRequest{UserID: "p1", Enabled: true})
	assert.ErrorIs(t, err, v1.ErrSharingRequiresByol)

	_, err = env.licenses.SetLicenseSharing(env.ctx, &v1.SetLicenseSharingRequest{UserID: "ghost", Enabled: true})
	assert.ErrorIs(t, err, v1.ErrInstanceNotFound)
}

func TestLicense_OwnerPriority(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("alice", true)
	env.createByol("bob", true)
	env.createByol("zed", true)
	env.createPooled("carol")

	window := &v1.CheckAvailabilityRequest{
		LicenseType: "pooled",
		StartTime:   env.now.Add(time.Hour),
		EndTime:     env.now.Add(3 * time.Hour),
	}

	window.UserID = "zed"
	resp, err := env.licenses.CheckAvailability(env.ctx, window)
	require.NoError(t, err)
	assert.True(t, resp.Available)
	assert.Equal(t, "byol-zed", resp.LicenseID)
	require.Len(t, resp.Candidates, 3)
	assert.Equal(t, []string{"byol-zed", "byol-alice", "byol-bob"},
		[]string{resp.Candidates[0].LicenseID, resp.Candidates[1].LicenseID, resp.Candidates[2].LicenseID})

	window.UserID = "carol"
	resp, err = env.licenses.CheckAvailability(env.ctx, window)
	require.NoError(t, err)
	assert.Equal(t, "byol-alice", resp.LicenseID)
}

func TestLicense_AvailabilityReportsPreemptable(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("owner", true)
	env.createPooled("p1")
	_, err := env.instances.Start(env.ctx, "owner")
	require.NoError(t, err)

	resp, err := env.licenses.CheckAvailability(env.ctx, &v1.CheckAvailabilityRequest{
		UserID:             "p1",
		PreferredLicenseID: "byol-owner",
		StartTime:          env.now,
		EndTime:            env.now.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, resp.Available)
	assert.Equal(t, []string{"owner"}, resp.Candidates[0].Preemptable)

	_, err = env.licenses.CheckAvailability(env.ctx, &v1.CheckAvailabilityRequest{
		UserID:             "p1",
		PreferredLicenseID: "byol-nobody",
		StartTime:          env.now,
		EndTime:            env.now.Add(time.Hour),
	})
	assert.ErrorIs(t, err, v1.ErrLicenseNotFound)

	_, err = env.licenses.CheckAvailability(env.ctx, &v1.CheckAvailabilityRequest{
		UserID:    "p1",
		StartTime: env.now.Add(time.Hour),
		EndTime:   env.now,
	})
	assert.ErrorIs(t, err, v1.ErrInvalidTimeWindow)
}

func TestLicense_SessionBoundInstanceBlocks(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("owner", true)
	env.createPooled("p1")
	env.createPooled("p2")

	sched, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "p1", LicenseType: "pooled", StartTime: env.now, EndTime: env.now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = env.scheduler.StartScheduledSession(env.ctx, sched.Session.SessionID, "p1")
	require.NoError(t, err)

	// 会话结束后一小时内实例仍在运行，紧接着的窗口被阻止
	resp, err := env.licenses.CheckAvailability(env.ctx, &v1.CheckAvailabilityRequest{
		UserID:             "p2",
		PreferredLicenseID: "byol-owner",
		StartTime:          env.now.Add(time.Hour),
		EndTime:            env.now.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, resp.Available)
	assert.Contains(t, resp.Reason, "session-bound")

	resp, err = env.licenses.CheckAvailability(env.ctx, &v1.CheckAvailabilityRequest{
		UserID:             "p2",
		PreferredLicenseID: "byol-owner",
		StartTime:          env.now.Add(2 * time.Hour),
		EndTime:            env.now.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, resp.Available)
}

func TestLicense_CanStartOnDemandInstance(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)

	ok, reason, err := env.licenses.CanStartOnDemandInstance(env.ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, reason)

	_, err = env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "u1", StartTime: env.now.Add(20 * time.Minute), EndTime: env.now.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	ok, reason, err = env.licenses.CanStartOnDemandInstance(env.ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "reserved for session")

	_, err = env.instances.Start(env.ctx, "u1")
	assert.ErrorIs(t, err, v1.ErrOnDemandBlocked)
	assert.Equal(t, model.InstanceStatusCreated, env.instance("u1").Status)
}

func TestLicense_ListPools(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("a", true)
	env.createByol("b", false)

	pools, err := env.licenses.ListPools(env.ctx)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "byol-a", pools[0].ID)
	assert.Equal(t, "a-name", pools[0].OwnerUsername)
}

func TestLicense_DestroyKeepsSharedLicense(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("owner", true)
	env.createPooled("p1")

	resp, err := env.instances.Destroy(env.ctx, "owner", true)
	require.NoError(t, err)
	assert.False(t, resp.LicensePoolDeactivated)
	pool, err := env.poolRepo.GetByID(env.ctx, "byol-owner")
	require.NoError(t, err)
	assert.True(t, pool.IsActive)
	// 凭据总是随实例删除
	assert.NotContains(t, env.cloud.Secrets, "owner")

	sched, err := env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "p1", LicenseType: "pooled", StartTime: env.now, EndTime: env.now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "byol-owner", sched.Session.LicenseID)

	// 开始会话时发现所有者凭据已不存在，池被自动停用
	_, err = env.scheduler.StartScheduledSession(env.ctx, sched.Session.SessionID, "p1")
	assert.ErrorIs(t, err, v1.ErrLicenseUnavailable)
	pool, err = env.poolRepo.GetByID(env.ctx, "byol-owner")
	require.NoError(t, err)
	assert.False(t, pool.IsActive)
	assert.True(t, env.cloud.Secrets["p1"].Placeholder)

	_, err = env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "p1", LicenseType: "pooled", StartTime: env.now.Add(2 * time.Hour), EndTime: env.now.Add(3 * time.Hour),
	})
	assert.ErrorIs(t, err, v1.ErrLicenseUnavailable)
}

func TestLicense_DestroyDeactivatesPool(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("owner", true)
	env.createPooled("p1")

	resp, err := env.instances.Destroy(env.ctx, "owner", false)
	require.NoError(t, err)
	assert.True(t, resp.LicensePoolDeactivated)
	assert.NotContains(t, env.cloud.Secrets, "owner")

	_, err = env.scheduler.ScheduleSession(env.ctx, &v1.ScheduleSessionRequest{
		UserID: "p1", LicenseType: "pooled", StartTime: env.now, EndTime: env.now.Add(time.Hour),
	})
	assert.ErrorIs(t, err, v1.ErrLicenseUnavailable)
}
