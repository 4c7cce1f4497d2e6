package server

import (
	"context"
	"errors"
	"testing"
	"time"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/service"
	"foundryhost/pkg/lease"
	"foundryhost/pkg/log"
	mock_service "foundryhost/test/mocks/service"

	"github.com/golang/mock/gomock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	_ service.InstanceService     = (*mock_service.MockInstanceService)(nil)
	_ service.AutoShutdownService = (*mock_service.MockAutoShutdownService)(nil)
	_ service.NotificationService = (*mock_service.MockNotificationService)(nil)
)

// signal 每个任务至少执行一次后关闭对应通道
type signal struct {
	ch   chan struct{}
	done bool
}

func newSignal() *signal { return &signal{ch: make(chan struct{})} }

func (s *signal) fire() {
	if !s.done {
		s.done = true
		close(s.ch)
	}
}

func waitFor(t *testing.T, name string, s *signal) {
	t.Helper()
	select {
	case <-s.ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("task %s did not run", name)
	}
}

func TestTaskServer_RunsEveryJobAndStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctrl := gomock.NewController(t)
	instances := mock_service.NewMockInstanceService(ctrl)
	autoShutdown := mock_service.NewMockAutoShutdownService(ctrl)
	notifications := mock_service.NewMockNotificationService(ctrl)

	sweep, prepare, reconcile, deliver, stats := newSignal(), newSignal(), newSignal(), newSignal(), newSignal()
	autoShutdown.EXPECT().CheckAndShutdownExpiredInstances(gomock.Any()).
		DoAndReturn(func(context.Context) (*v1.SweepResponseData, error) {
			sweep.fire()
			return &v1.SweepResponseData{Stopped: []string{}}, nil
		}).MinTimes(1)
	autoShutdown.EXPECT().PrepareForUpcomingSessions(gomock.Any()).
		DoAndReturn(func(context.Context) (*v1.PrepareSessionsResponseData, error) {
			prepare.fire()
			return &v1.PrepareSessionsResponseData{Started: []string{"sess-1"}, Cancelled: []string{}}, nil
		}).MinTimes(1)
	instances.EXPECT().ReconcileTasks(gomock.Any()).
		DoAndReturn(func(context.Context) ([]string, error) {
			reconcile.fire()
			return nil, errors.New("describe failed")
		}).MinTimes(1)
	notifications.EXPECT().DeliverPending(gomock.Any()).
		DoAndReturn(func(context.Context) (int, int, error) {
			deliver.fire()
			return 1, 1, nil
		}).MinTimes(1)
	autoShutdown.EXPECT().GetAutoShutdownStats(gomock.Any()).
		DoAndReturn(func(context.Context) (*v1.AutoShutdownStatsData, error) {
			stats.fire()
			return &v1.AutoShutdownStatsData{}, nil
		}).MinTimes(1)

	conf := viper.New()
	conf.Set("task.sweep_interval", "1h")
	conf.Set("task.prepare_interval", "1h")
	conf.Set("task.reconcile_interval", "1h")
	conf.Set("task.deliver_interval", "1h")
	conf.Set("task.stats_interval", "1h")

	srv := NewTaskServer(log.NewNop(), conf, lease.NewLocalLocker(), instances, autoShutdown, notifications)
	require.NoError(t, srv.Start(context.Background()))
	assert.Len(t, srv.scheduler.Jobs(), 5)

	waitFor(t, "auto-shutdown", sweep)
	waitFor(t, "prepare-sessions", prepare)
	waitFor(t, "reconcile-tasks", reconcile)
	waitFor(t, "deliver-notifications", deliver)
	waitFor(t, "shutdown-stats", stats)

	require.NoError(t, srv.Stop(context.Background()))
}

func TestJobLocker_SkipsWhenHeld(t *testing.T) {
	locker := lease.NewLocalLocker()
	jl := &jobLocker{locker: locker}

	first, err := jl.Lock(context.Background(), "auto-shutdown")
	require.NoError(t, err)

	_, err = jl.Lock(context.Background(), "auto-shutdown")
	assert.ErrorIs(t, err, lease.ErrNotAcquired)

	other, err := jl.Lock(context.Background(), "prepare-sessions")
	require.NoError(t, err)
	require.NoError(t, other.Unlock(context.Background()))

	require.NoError(t, first.Unlock(context.Background()))
	again, err := jl.Lock(context.Background(), "auto-shutdown")
	require.NoError(t, err)
	require.NoError(t, again.Unlock(context.Background()))
}
