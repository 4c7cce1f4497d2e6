package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foundryhost/internal/model"
	"foundryhost/pkg/log"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const ctxTxKey = "TxKey"

// ErrStaleWrite 条件写未命中：记录已被其他请求修改或状态不符
var ErrStaleWrite = errors.New("repository: conditional write matched no rows")

type Repository struct {
	db     *gorm.DB
	logger *log.Logger
}

func NewRepository(logger *log.Logger, db *gorm.DB) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type Transaction interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewTransaction(r *Repository) Transaction {
	return r
}

// DB return tx
// If you need to create a Transaction, you must call DB(ctx) and Transaction(ctx,fn)
func (r *Repository) DB(ctx context.Context) *gorm.DB {
	v := ctx.Value(ctxTxKey)
	if v != nil {
		if tx, ok := v.(*gorm.DB); ok {
			return tx
		}
	}
	return r.db.WithContext(ctx)
}

func (r *Repository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ctx = context.WithValue(ctx, ctxTxKey, tx)
		return fn(ctx)
	})
}

func NewDB(conf *viper.Viper, l *log.Logger) *gorm.DB {
	var (
		db  *gorm.DB
		err error
	)

	driver := conf.GetString("data.db.user.driver")
	dsn := conf.GetString("data.db.user.dsn")
	gormConf := &gorm.Config{
		// 所有时间统一存 UTC，sqlite 下时间以字符串比较
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  gormlogger.Default.LogMode(gormLogLevel(conf.GetString("data.db.log_level"))),
	}

	switch driver {
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), gormConf)
	case "postgres":
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), gormConf)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(dsn), gormConf)
	default:
		panic("unknown db driver: " + driver)
	}
	if err != nil {
		panic(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	l.Info("database connected", zap.String("driver", driver))
	return db
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "info":
		return gormlogger.Info
	case "warn":
		return gormlogger.Warn
	case "error":
		return gormlogger.Error
	default:
		return gormlogger.Silent
	}
}

// NewRedis 未配置 data.redis.addr 时返回 nil，租约退化为进程内锁
func NewRedis(conf *viper.Viper, l *log.Logger) *redis.Client {
	addr := conf.GetString("data.redis.addr")
	if addr == "" {
		l.Warn("redis is not configured, falling back to in-process leases")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     conf.GetString("data.redis.password"),
		DB:           conf.GetInt("data.redis.db"),
		ReadTimeout:  conf.GetDuration("data.redis.read_timeout"),
		WriteTimeout: conf.GetDuration("data.redis.write_timeout"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		panic(fmt.Sprintf("redis error: %s", err.Error()))
	}
	return rdb
}

// Models 参与迁移的全部表
func Models() []interface{} {
	return []interface{}{
		&model.Instance{},
		&model.LicensePool{},
		&model.ScheduledSession{},
		&model.LicenseReservation{},
		&model.SessionNotification{},
		&model.ProvisionJournal{},
	}
}
