package server

import (
	"context"
	"time"

	"foundryhost/internal/service"
	"foundryhost/pkg/lease"
	"foundryhost/pkg/log"

	"github.com/go-co-op/gocron"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TaskServer 周期执行到期停机、会话准备、任务对账、通知投递与统计刷新
type TaskServer struct {
	log                 *log.Logger
	conf                *viper.Viper
	scheduler           *gocron.Scheduler
	locker              lease.Locker
	instanceService     service.InstanceService
	autoShutdownService service.AutoShutdownService
	notificationService service.NotificationService
}

func NewTaskServer(
	log *log.Logger,
	conf *viper.Viper,
	locker lease.Locker,
	instanceService service.InstanceService,
	autoShutdownService service.AutoShutdownService,
	notificationService service.NotificationService,
) *TaskServer {
	return &TaskServer{
		log:                 log,
		conf:                conf,
		locker:              locker,
		instanceService:     instanceService,
		autoShutdownService: autoShutdownService,
		notificationService: notificationService,
	}
}

type taskJob struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

func (t *TaskServer) jobs() []taskJob {
	return []taskJob{
		{"auto-shutdown", t.interval("task.sweep_interval", time.Minute), func(ctx context.Context) error {
			resp, err := t.autoShutdownService.CheckAndShutdownExpiredInstances(ctx)
			if err == nil && len(resp.Errors) > 0 {
				t.log.Warn("auto shutdown finished with errors", zap.Strings("errors", resp.Errors))
			}
			return err
		}},
		{"prepare-sessions", t.interval("task.prepare_interval", time.Minute), func(ctx context.Context) error {
			resp, err := t.autoShutdownService.PrepareForUpcomingSessions(ctx)
			if err == nil && len(resp.Started)+len(resp.Cancelled) > 0 {
				t.log.Info("sessions prepared", zap.Strings("started", resp.Started), zap.Strings("cancelled", resp.Cancelled))
			}
			return err
		}},
		{"reconcile-tasks", t.interval("task.reconcile_interval", 2*time.Minute), func(ctx context.Context) error {
			_, err := t.instanceService.ReconcileTasks(ctx)
			return err
		}},
		{"deliver-notifications", t.interval("task.deliver_interval", 30*time.Second), func(ctx context.Context) error {
			_, failed, err := t.notificationService.DeliverPending(ctx)
			if err == nil && failed > 0 {
				t.log.Warn("some notifications were not delivered", zap.Int("failed", failed))
			}
			return err
		}},
		{"shutdown-stats", t.interval("task.stats_interval", time.Minute), func(ctx context.Context) error {
			_, err := t.autoShutdownService.GetAutoShutdownStats(ctx)
			return err
		}},
	}
}

func (t *TaskServer) interval(key string, def time.Duration) time.Duration {
	if d := t.conf.GetDuration(key); d > 0 {
		return d
	}
	return def
}

func (t *TaskServer) Start(ctx context.Context) error {
	t.scheduler = gocron.NewScheduler(time.UTC)
	// 同一任务上一轮未结束时跳过本轮
	t.scheduler.SingletonModeAll()
	if t.conf.GetBool("task.distributed_lock") {
		t.scheduler.WithDistributedLocker(&jobLocker{locker: t.locker})
	}

	timeout := t.interval("task.timeout", 10*time.Minute)
	for _, job := range t.jobs() {
		_, err := t.scheduler.Every(job.interval).Name(job.name).Do(func() {
			runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			defer cancel()
			if err := job.run(runCtx); err != nil {
				t.log.Error("task failed", zap.String("task", job.name), zap.Error(err))
			}
		})
		if err != nil {
			t.log.Error("schedule task error", zap.String("task", job.name), zap.Error(err))
			return err
		}
	}
	t.log.Info("task server started", zap.Int("tasks", len(t.scheduler.Jobs())))
	t.scheduler.StartAsync()
	return nil
}

func (t *TaskServer) Stop(ctx context.Context) error {
	if t.scheduler != nil {
		t.scheduler.Stop()
	}
	t.log.Info("task server stopped")
	return nil
}

// jobLocker 让多副本部署时同一任务只在一个副本上执行
type jobLocker struct {
	locker lease.Locker
}

const jobLeaseTTL = 5 * time.Minute

func (l *jobLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	// 拿不到立即放弃，由持有者所在副本执行
	tryCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	held, err := l.locker.Acquire(tryCtx, "task:"+key, jobLeaseTTL)
	if err != nil {
		return nil, err
	}
	return &jobLock{lease: held}, nil
}

type jobLock struct {
	lease lease.Lease
}

func (l *jobLock) Unlock(ctx context.Context) error {
	return l.lease.Release(ctx)
}
