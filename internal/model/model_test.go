package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInstanceStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, InstanceStatusCreated.CanTransitionTo(InstanceStatusStarting))
	assert.True(t, InstanceStatusStarting.CanTransitionTo(InstanceStatusRunning))
	assert.True(t, InstanceStatusRunning.CanTransitionTo(InstanceStatusStopping))
	assert.True(t, InstanceStatusStopping.CanTransitionTo(InstanceStatusStopped))
	assert.True(t, InstanceStatusStopped.CanTransitionTo(InstanceStatusStarting))

	assert.False(t, InstanceStatusRunning.CanTransitionTo(InstanceStatusStarting))
	assert.False(t, InstanceStatusCreated.CanTransitionTo(InstanceStatusRunning))
	assert.False(t, InstanceStatusStopped.CanTransitionTo(InstanceStatusStopping))
}

func TestPoolID(t *testing.T) {
	assert.Equal(t, "byol-u1", PoolID("u1"))

	owner, ok := PoolOwner("byol-u1")
	assert.True(t, ok)
	assert.Equal(t, "u1", owner)

	_, ok = PoolOwner("byol-")
	assert.False(t, ok)
	_, ok = PoolOwner("pool-u1")
	assert.False(t, ok)
}

func TestOverlaps(t *testing.T) {
	base := time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)
	h := time.Hour

	assert.True(t, Overlaps(base, base.Add(2*h), base.Add(h), base.Add(3*h)))
	assert.True(t, Overlaps(base, base.Add(4*h), base.Add(h), base.Add(2*h)))
	// 首尾相接不算重叠
	assert.False(t, Overlaps(base, base.Add(h), base.Add(h), base.Add(2*h)))
	assert.False(t, Overlaps(base.Add(2*h), base.Add(3*h), base, base.Add(h)))
}

func TestProvisionStep_Done(t *testing.T) {
	assert.False(t, ProvisionStepNone.Done(ProvisionStepAccessPoint))
	assert.True(t, ProvisionStepBucket.Done(ProvisionStepAccessPoint))
	assert.True(t, ProvisionStepBucket.Done(ProvisionStepBucket))
	assert.False(t, ProvisionStepBucket.Done(ProvisionStepIdentity))
}

func TestScheduledSession_PreemptedUsers(t *testing.T) {
	s := &ScheduledSession{}
	assert.Nil(t, s.GetPreemptedUsers())
	s.SetPreemptedUsers([]string{"u1", "u2"})
	assert.Equal(t, []string{"u1", "u2"}, s.GetPreemptedUsers())
}
