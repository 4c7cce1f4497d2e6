package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	v1 "foundryhost/api/v1"
	"foundryhost/internal/model"
	"foundryhost/internal/repository"
	"foundryhost/pkg/cloud/memory"
	"foundryhost/pkg/jwt"
	"foundryhost/pkg/lease"
	"foundryhost/pkg/log"
	"foundryhost/pkg/sid"

	"github.com/glebarez/sqlite"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	t     *testing.T
	ctx   context.Context
	now   time.Time
	cloud *memory.Cloud
	opts  *Options

	instanceRepo     repository.InstanceRepository
	poolRepo         repository.LicensePoolRepository
	sessionRepo      repository.SessionRepository
	reservationRepo  repository.ReservationRepository
	notificationRepo repository.NotificationRepository
	journalRepo      repository.ProvisionJournalRepository

	instances     InstanceService
	licenses      LicenseService
	scheduler     SchedulerService
	autoShutdown  AutoShutdownService
	admin         AdminService
	notifications NotificationService
	preemptions   *recordingPreemptor
}

// recordingPreemptor 记录每次紧急抢占的调用参数
type recordingPreemptor struct {
	Preemptor
	mu    sync.Mutex
	calls [][2]string
}

func (r *recordingPreemptor) EmergencyShutdownForScheduledSession(ctx context.Context, excludeUserID, licenseID string) ([]string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, [2]string{excludeUserID, licenseID})
	r.mu.Unlock()
	return r.Preemptor.EmergencyShutdownForScheduledSession(ctx, excludeUserID, licenseID)
}

func (r *recordingPreemptor) Calls() [][2]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][2]string(nil), r.calls...)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  gormlogger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(repository.Models()...))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	conf := viper.New()
	conf.Set("foundry.domain", "games.example.com")
	conf.Set("aws.entry_point", "alb.example.com")
	conf.Set("foundry.ready_poll_interval", "1ms")
	conf.Set("foundry.ready_timeout", "2s")
	conf.Set("admin.user_ids", []string{"root"})
	conf.Set("security.jwt.key", "test-key")

	logger := log.NewNop()
	repo := repository.NewRepository(logger, db)
	opts := NewOptions(conf)
	svc := NewService(repository.NewTransaction(repo), logger, sid.NewSid(), jwt.NewJwt(conf), lease.NewLocalLocker(), opts)

	env := &testEnv{
		t:                t,
		ctx:              context.Background(),
		now:              time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		cloud:            memory.New(),
		opts:             opts,
		instanceRepo:     repository.NewInstanceRepository(repo),
		poolRepo:         repository.NewLicensePoolRepository(repo),
		sessionRepo:      repository.NewSessionRepository(repo),
		reservationRepo:  repository.NewReservationRepository(repo),
		notificationRepo: repository.NewNotificationRepository(repo),
		journalRepo:      repository.NewProvisionJournalRepository(repo),
	}
	provider := memory.NewProvider(env.cloud)

	env.licenses = NewLicenseService(svc, env.instanceRepo, env.poolRepo, env.sessionRepo, env.reservationRepo, logger)
	env.instances = NewInstanceService(svc, env.instanceRepo, env.poolRepo, env.sessionRepo, env.journalRepo, env.licenses, provider, logger)
	env.notifications = NewNotificationService(svc, env.notificationRepo, logger)
	env.preemptions = &recordingPreemptor{Preemptor: NewPreemptor(svc, env.instanceRepo, env.instances, logger)}
	env.scheduler = NewSchedulerService(svc, env.instanceRepo, env.poolRepo, env.sessionRepo, env.reservationRepo,
		env.instances, env.licenses, env.notifications, env.preemptions, provider, logger)
	env.autoShutdown = NewAutoShutdownService(svc, env.instanceRepo, env.sessionRepo, env.instances, env.scheduler, env.notifications, env.preemptions, logger)
	env.admin = NewAdminService(svc, env.instanceRepo, env.poolRepo, env.sessionRepo, env.notificationRepo,
		env.instances, env.scheduler, env.autoShutdown, logger)

	prev := timeNow
	timeNow = func() time.Time { return env.now }
	t.Cleanup(func() { timeNow = prev })
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) createByol(userID string, sharing bool) *v1.CreateInstanceResponseData {
	e.t.Helper()
	resp, err := e.instances.Create(e.ctx, &v1.CreateInstanceRequest{
		UserID:              userID,
		Username:            userID + "-name",
		LicenseType:         "byol",
		FoundryUsername:     userID + "@foundry",
		FoundryPassword:     "secret-" + userID,
		AllowLicenseSharing: sharing,
	})
	require.NoError(e.t, err)
	return resp
}

func (e *testEnv) createPooled(userID string) {
	e.t.Helper()
	_, err := e.instances.Create(e.ctx, &v1.CreateInstanceRequest{
		UserID:      userID,
		Username:    userID + "-name",
		LicenseType: "pooled",
	})
	require.NoError(e.t, err)
}

func (e *testEnv) instance(userID string) *model.Instance {
	e.t.Helper()
	inst, err := e.instanceRepo.GetByUserID(e.ctx, userID)
	require.NoError(e.t, err)
	require.NotNil(e.t, inst)
	return inst
}
