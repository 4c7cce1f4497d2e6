package memory

import (
	"context"
	"errors"
	"testing"

	"foundryhost/pkg/cloud"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_BecomesReadyAfterDescribes(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.ReadyAfter = 2

	ref, err := c.RegisterTask(ctx, cloud.TaskSpec{Family: "foundry-u1"})
	require.NoError(t, err)
	handle, err := c.RunTask(ctx, ref)
	require.NoError(t, err)

	st, err := c.DescribeTask(ctx, handle)
	require.NoError(t, err)
	assert.False(t, st.Running())

	st, err = c.DescribeTask(ctx, handle)
	require.NoError(t, err)
	assert.True(t, st.Running())
	assert.NotEmpty(t, st.Address)
	assert.Equal(t, 1, c.RunningTasks())

	require.NoError(t, c.StopTask(ctx, handle))
	assert.Equal(t, 0, c.RunningTasks())
}

func TestLoadBalancer_NextRulePriorityFillsGaps(t *testing.T) {
	ctx := context.Background()
	c := New()
	tg, err := c.CreateTargetGroup(ctx, "tg-a", 30000)
	require.NoError(t, err)

	r1, err := c.CreateRule(ctx, tg, "a.example.com", 1)
	require.NoError(t, err)
	_, err = c.CreateRule(ctx, tg, "b.example.com", 2)
	require.NoError(t, err)
	_, err = c.CreateRule(ctx, tg, "c.example.com", 2)
	assert.Error(t, err)

	require.NoError(t, c.DeleteRule(ctx, r1))
	p, err := c.NextRulePriority(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), p)

	assert.ErrorIs(t, c.DeleteRule(ctx, r1), cloud.ErrNotFound)
}

func TestVault_PendingDeletionRestore(t *testing.T) {
	ctx := context.Background()
	c := New()
	_, err := c.Put(ctx, "u1", &cloud.Credentials{Username: "u", Password: "p", AdminKey: "k"})
	require.NoError(t, err)

	c.SchedulePendingDeletion("u1")
	_, err = c.Put(ctx, "u1", &cloud.Credentials{Username: "u2"})
	assert.ErrorIs(t, err, cloud.ErrPendingDeletion)

	require.NoError(t, c.Restore(ctx, "u1"))
	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "k", got.AdminKey)
}

func TestFailStep(t *testing.T) {
	c := New()
	boom := errors.New("boom")
	c.FailStep["CreateBucket"] = boom

	assert.ErrorIs(t, c.CreateBucket(context.Background(), "b"), boom)
	assert.Empty(t, c.Buckets)
}
