package service

import (
	"errors"
	"testing"
	"time"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstance_SingleInstancePerUser(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)

	for _, licenseType := range []string{"byol", "pooled"} {
		_, err := env.instances.Create(env.ctx, &v1.CreateInstanceRequest{
			UserID:          "u1",
			LicenseType:     licenseType,
			FoundryUsername: "x",
			FoundryPassword: "y",
		})
		assert.ErrorIs(t, err, v1.ErrInstanceExists, licenseType)
	}
	assert.Len(t, env.cloud.AccessPoints, 1)
}

func TestInstance_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.instances.Create(env.ctx, &v1.CreateInstanceRequest{UserID: "u1", LicenseType: "free"})
	assert.ErrorIs(t, err, v1.ErrInvalidLicenseType)

	_, err = env.instances.Create(env.ctx, &v1.CreateInstanceRequest{UserID: "u1", LicenseType: "pooled", AllowLicenseSharing: true})
	assert.ErrorIs(t, err, v1.ErrSharingRequiresByol)

	_, err = env.instances.Create(env.ctx, &v1.CreateInstanceRequest{UserID: "u1", FoundryUsername: "a", FoundryPassword: "b", FoundryVersion: "9"})
	assert.ErrorIs(t, err, v1.ErrInvalidVersion)

	_, err = env.instances.Create(env.ctx, &v1.CreateInstanceRequest{UserID: "u1", LicenseType: "byol"})
	assert.ErrorIs(t, err, v1.ErrMissingCredentials)
}

func TestInstance_CreateProvisionsResources(t *testing.T) {
	env := newTestEnv(t)
	resp := env.createByol("U1", false)

	assert.False(t, resp.Resumed)
	assert.Len(t, resp.AdminKey, adminKeyLength)
	assert.Equal(t, "created", resp.Instance.Status)
	assert.Equal(t, "https://u1.games.example.com", resp.Instance.URL)
	assert.Equal(t, "13", resp.Instance.FoundryVersion)

	inst := env.instance("U1")
	assert.Equal(t, "U1", inst.LicenseOwnerID)
	assert.Equal(t, "alb.example.com", env.cloud.Records["u1.games.example.com"])
	assert.Contains(t, env.cloud.Buckets, "foundry-assets-u1")
	assert.Equal(t, "foundry-assets-u1", env.cloud.Users["foundry-u1"])
	assert.Contains(t, env.cloud.TargetGroups, inst.TargetGroupArn)
	assert.Equal(t, [2]int64{1000, 1000}, env.cloud.Ownership["U1"])

	secret := env.cloud.Secrets["U1"]
	require.NotNil(t, secret)
	assert.Equal(t, "U1@foundry", secret.Username)
	assert.Equal(t, resp.AdminKey, secret.AdminKey)
	assert.Equal(t, inst.AccessKeyID, secret.AccessKeyID)

	journal, err := env.journalRepo.Get(env.ctx, "U1")
	require.NoError(t, err)
	assert.Nil(t, journal)
}

func TestInstance_CreateResumesFromJournal(t *testing.T) {
	env := newTestEnv(t)
	env.cloud.FailStep["CreateBucket"] = errors.New("bucket quota exceeded")

	_, err := env.instances.Create(env.ctx, &v1.CreateInstanceRequest{
		UserID: "u1", FoundryUsername: "a", FoundryPassword: "b",
	})
	require.ErrorIs(t, err, v1.ErrProvisionFailed)

	journal, err := env.journalRepo.Get(env.ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, journal)
	assert.Equal(t, model.ProvisionStepSecret, journal.CompletedStep)
	assert.Contains(t, journal.LastError, "bucket quota exceeded")
	firstAccessPoint := journal.Resource(resAccessPoint)

	delete(env.cloud.FailStep, "CreateBucket")
	resp, err := env.instances.Create(env.ctx, &v1.CreateInstanceRequest{
		UserID: "u1", FoundryUsername: "a", FoundryPassword: "b",
	})
	require.NoError(t, err)
	assert.True(t, resp.Resumed)
	assert.Len(t, env.cloud.AccessPoints, 1)
	assert.Equal(t, firstAccessPoint, env.instance("u1").AccessPointID)

	journal, err = env.journalRepo.Get(env.ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, journal)
}

func TestInstance_StartAppliesOnDemandDeadline(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)

	data, err := env.instances.Start(env.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "running", data.Status)
	require.NotNil(t, data.AutoShutdownAt)
	assert.True(t, data.AutoShutdownAt.Equal(env.now.Add(6*time.Hour)), "got %s", data.AutoShutdownAt)

	inst := env.instance("u1")
	assert.NotEmpty(t, inst.TaskArn)
	assert.NotEmpty(t, inst.RuleArn)
	assert.Equal(t, int32(1), inst.RulePriority)
	assert.True(t, env.cloud.TargetGroups[inst.TargetGroupArn][inst.PrivateIP])
	assert.Equal(t, 1, env.cloud.RunningTasks())

	spec := env.cloud.TaskDefs[inst.TaskDefinitionArn]
	assert.Equal(t, "felddy/foundryvtt:13", spec.Image)
	assert.Equal(t, inst.AccessPointID, spec.AccessPointID)
	assert.Equal(t, int64(1000), spec.UID)

	_, err = env.instances.Start(env.ctx, "u1")
	assert.ErrorIs(t, err, v1.ErrAlreadyRunning)
}

func TestInstance_StopIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)

	// 从未启动的实例停止为空操作
	data, err := env.instances.Stop(env.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "created", data.Status)

	_, err = env.instances.Start(env.ctx, "u1")
	require.NoError(t, err)
	data, err = env.instances.Stop(env.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "stopped", data.Status)
	assert.Nil(t, data.AutoShutdownAt)
	assert.Equal(t, 0, env.cloud.RunningTasks())
	assert.Empty(t, env.cloud.Rules)

	inst := env.instance("u1")
	assert.Empty(t, inst.TaskArn)
	assert.Empty(t, env.cloud.TargetGroups[inst.TargetGroupArn])

	data, err = env.instances.Stop(env.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "stopped", data.Status)

	// stopped -> starting
	_, err = env.instances.Start(env.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.InstanceStatusRunning, env.instance("u1").Status)
}

func TestInstance_StopToleratesMissingResources(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	_, err := env.instances.Start(env.ctx, "u1")
	require.NoError(t, err)

	inst := env.instance("u1")
	require.NoError(t, env.cloud.DeleteRule(env.ctx, inst.RuleArn))
	delete(env.cloud.Tasks, inst.TaskArn)

	data, err := env.instances.Stop(env.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "stopped", data.Status)
}

func TestInstance_PooledCannotStartOnDemand(t *testing.T) {
	env := newTestEnv(t)
	env.createPooled("p1")

	_, err := env.instances.Start(env.ctx, "p1")
	assert.ErrorIs(t, err, v1.ErrPooledOnDemand)
	assert.True(t, env.cloud.Secrets["p1"].Placeholder)
}

func TestInstance_StartFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	env.cloud.FailStep["CreateRule"] = errors.New("listener busy")

	_, err := env.instances.Start(env.ctx, "u1")
	require.ErrorIs(t, err, v1.ErrProvisionFailed)

	inst := env.instance("u1")
	assert.Equal(t, model.InstanceStatusCreated, inst.Status)
	assert.Nil(t, inst.AutoShutdownAt)
	assert.Equal(t, 0, env.cloud.RunningTasks())
	assert.Empty(t, env.cloud.TargetGroups[inst.TargetGroupArn])
}

func TestInstance_StartTimesOut(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	env.cloud.ReadyAfter = 1 << 30
	env.opts.ReadyTimeout = 20 * time.Millisecond

	_, err := env.instances.Start(env.ctx, "u1")
	require.ErrorIs(t, err, v1.ErrStartTimeout)
	assert.Equal(t, model.InstanceStatusCreated, env.instance("u1").Status)
	assert.Equal(t, 0, env.cloud.RunningTasks())
}

func TestInstance_StatusReconcilesExitedTask(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	_, err := env.instances.Start(env.ctx, "u1")
	require.NoError(t, err)

	data, err := env.instances.Status(env.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", data.TaskStatus)
	assert.Equal(t, "https://foundry-assets-u1.s3.local/", data.AssetsURL)

	require.NoError(t, env.cloud.StopTask(env.ctx, env.instance("u1").TaskArn))
	data, err = env.instances.Status(env.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "stopped", data.Status)
	assert.Equal(t, "STOPPED", data.TaskStatus)
	assert.Empty(t, env.cloud.Rules)

	_, err = env.instances.Status(env.ctx, "nobody")
	assert.ErrorIs(t, err, v1.ErrInstanceNotFound)
}

func TestInstance_DestroyRemovesEverything(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", true)
	_, err := env.instances.Start(env.ctx, "u1")
	require.NoError(t, err)
	env.cloud.PutObjectVersion("foundry-assets-u1", "worlds/a.png")

	resp, err := env.instances.Destroy(env.ctx, "u1", false)
	require.NoError(t, err)
	assert.True(t, resp.LicensePoolDeactivated)
	assert.Empty(t, resp.Warnings)

	assert.Equal(t, 0, env.cloud.RunningTasks())
	assert.Empty(t, env.cloud.AccessPoints)
	assert.Empty(t, env.cloud.Buckets)
	assert.Empty(t, env.cloud.Users)
	assert.Empty(t, env.cloud.Keys)
	assert.Empty(t, env.cloud.Secrets)
	assert.Empty(t, env.cloud.Records)
	assert.Empty(t, env.cloud.TargetGroups)
	assert.NotContains(t, env.cloud.Files, "u1")

	_, err = env.instances.Status(env.ctx, "u1")
	assert.ErrorIs(t, err, v1.ErrInstanceNotFound)
	_, err = env.instances.Destroy(env.ctx, "u1", false)
	assert.ErrorIs(t, err, v1.ErrInstanceNotFound)
}

func TestInstance_DestroyReportsWarnings(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	env.cloud.FailStep["DeleteBucket"] = errors.New("access denied")

	resp, err := env.instances.Destroy(env.ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "delete bucket")
	// 其余步骤仍然执行
	assert.Empty(t, env.cloud.Secrets)
	assert.Empty(t, env.cloud.Users)
}

func TestInstance_DestroyCleansUpFailedCreate(t *testing.T) {
	env := newTestEnv(t)
	env.cloud.FailStep["CreateTargetGroup"] = errors.New("limit reached")
	_, err := env.instances.Create(env.ctx, &v1.CreateInstanceRequest{UserID: "u1", FoundryUsername: "a", FoundryPassword: "b"})
	require.Error(t, err)
	require.Len(t, env.cloud.AccessPoints, 1)

	_, err = env.instances.Destroy(env.ctx, "u1", false)
	require.NoError(t, err)
	assert.Empty(t, env.cloud.AccessPoints)
	assert.Empty(t, env.cloud.Buckets)
	assert.Empty(t, env.cloud.Users)
	assert.Empty(t, env.cloud.Secrets)

	journal, err := env.journalRepo.Get(env.ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, journal)
}

func TestInstance_RecreateReusesVaultedCredentials(t *testing.T) {
	env := newTestEnv(t)
	first := env.createByol("u1", true)

	_, err := env.instances.Destroy(env.ctx, "u1", true)
	require.NoError(t, err)
	require.Contains(t, env.cloud.Secrets, "u1")

	// 密钥处于恢复窗口内也能恢复后继续使用
	env.cloud.SchedulePendingDeletion("u1")
	again, err := env.instances.Create(env.ctx, &v1.CreateInstanceRequest{UserID: "u1", LicenseType: "byol"})
	require.NoError(t, err)
	assert.Equal(t, first.AdminKey, again.AdminKey)
	assert.Equal(t, "u1@foundry", env.cloud.Secrets["u1"].Username)
	assert.Empty(t, env.cloud.PendingDelete)
}

func TestInstance_UpdateVersionOwnership(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.instances.Create(env.ctx, &v1.CreateInstanceRequest{
		UserID: "u1", FoundryUsername: "a", FoundryPassword: "b", FoundryVersion: "13",
	})
	require.NoError(t, err)
	oldAccessPoint := env.instance("u1").AccessPointID

	// v13 -> v12 切换容器用户，需要改属主并重建访问点
	resp, err := env.instances.UpdateVersion(env.ctx, &v1.UpdateVersionRequest{UserID: "u1", FoundryVersion: "12"})
	require.NoError(t, err)
	assert.True(t, resp.OwnershipReset)
	assert.Equal(t, "12", resp.Instance.FoundryVersion)
	assert.Equal(t, []string{"u1:421:421"}, env.cloud.OwnershipLog)
	inst := env.instance("u1")
	assert.NotEqual(t, oldAccessPoint, inst.AccessPointID)
	assert.Contains(t, env.cloud.AccessPoints, inst.AccessPointID)
	assert.NotContains(t, env.cloud.AccessPoints, oldAccessPoint)

	// 同一类版本之间不改属主
	resp, err = env.instances.UpdateVersion(env.ctx, &v1.UpdateVersionRequest{UserID: "u1", FoundryVersion: "11"})
	require.NoError(t, err)
	assert.False(t, resp.OwnershipReset)
	assert.Len(t, env.cloud.OwnershipLog, 1)

	_, err = env.instances.UpdateVersion(env.ctx, &v1.UpdateVersionRequest{UserID: "u1", FoundryVersion: "10"})
	assert.ErrorIs(t, err, v1.ErrInvalidVersion)

	_, err = env.instances.Start(env.ctx, "u1")
	require.NoError(t, err)
	_, err = env.instances.UpdateVersion(env.ctx, &v1.UpdateVersionRequest{UserID: "u1", FoundryVersion: "13"})
	assert.ErrorIs(t, err, v1.ErrInstanceRunning)
}

func TestInstance_ListAll(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	env.createPooled("p1")

	list, err := env.instances.ListAll(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
}

func TestInstance_ReconcileTasks(t *testing.T) {
	env := newTestEnv(t)
	env.createByol("u1", false)
	env.createByol("u2", false)
	_, err := env.instances.Start(env.ctx, "u1")
	require.NoError(t, err)
	_, err = env.instances.Start(env.ctx, "u2")
	require.NoError(t, err)

	require.NoError(t, env.cloud.StopTask(env.ctx, env.instance("u1").TaskArn))

	exited, err := env.instances.ReconcileTasks(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, exited)
	assert.Equal(t, model.InstanceStatusStopped, env.instance("u1").Status)
	assert.Equal(t, model.InstanceStatusRunning, env.instance("u2").Status)

	exited, err = env.instances.ReconcileTasks(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, exited)
}
