// Package cloud 定义实例编排依赖的外部资源能力。每个接口只覆盖一个外部服务的窄操作面，
// 具体实现见 cloud/awscloud（生产）与 cloud/memory（本地开发与测试）。
package cloud

import (
	"context"
	"errors"
)

var (
	// ErrNotFound 资源已不存在；删除类操作应把它视为成功
	ErrNotFound = errors.New("cloud: resource not found")
	// ErrPendingDeletion 密钥处于计划删除状态，需要先恢复
	ErrPendingDeletion = errors.New("cloud: secret is scheduled for deletion")
	// ErrTaskStopped 任务在就绪前已经停止
	ErrTaskStopped = errors.New("cloud: task stopped before becoming ready")
)

// TaskSpec 描述一个用户实例的容器任务
type TaskSpec struct {
	Family        string
	Image         string
	ContainerPort int32
	AccessPointID string
	SecretRef     string
	UID           int64
	GID           int64
	Environment   map[string]string
}

type TaskStatus struct {
	Handle     string
	LastStatus string // PROVISIONING / PENDING / RUNNING / STOPPED ...
	Address    string
	StopReason string
}

func (s *TaskStatus) Running() bool { return s != nil && s.LastStatus == "RUNNING" }
func (s *TaskStatus) Stopped() bool {
	return s != nil && (s.LastStatus == "STOPPED" || s.LastStatus == "DEPROVISIONING")
}

type Compute interface {
	RegisterTask(ctx context.Context, spec TaskSpec) (string, error)
	RunTask(ctx context.Context, taskDefRef string) (string, error)
	StopTask(ctx context.Context, handle string) error
	DescribeTask(ctx context.Context, handle string) (*TaskStatus, error)
}

type LoadBalancer interface {
	CreateTargetGroup(ctx context.Context, name string, port int32) (string, error)
	DeleteTargetGroup(ctx context.Context, arn string) error
	RegisterTarget(ctx context.Context, targetGroupArn, address string, port int32) error
	DeregisterTarget(ctx context.Context, targetGroupArn, address string, port int32) error
	CreateRule(ctx context.Context, targetGroupArn, host string, priority int32) (string, error)
	DeleteRule(ctx context.Context, ruleArn string) error
	NextRulePriority(ctx context.Context) (int32, error)
}

type DNS interface {
	UpsertRecord(ctx context.Context, host, target string) error
	DeleteRecord(ctx context.Context, host, target string) error
}

type FileSystem interface {
	CreateAccessPoint(ctx context.Context, userID string, uid, gid int64) (string, error)
	DeleteAccessPoint(ctx context.Context, accessPointID string) error
	// CleanupUserFiles 运行一个带外清理任务，删除该用户目录下的全部文件
	CleanupUserFiles(ctx context.Context, userID string) error
	// ResetOwnership 把用户目录的属主改为 uid/gid（切换大版本时容器用户不同）
	ResetOwnership(ctx context.Context, userID string, uid, gid int64) error
}

type ObjectStorage interface {
	CreateBucket(ctx context.Context, name string) error
	// DeleteBucket 先清空所有对象版本和删除标记，再删除 bucket
	DeleteBucket(ctx context.Context, name string) error
	PublicURL(bucket, key string) string
}

type AccessKey struct {
	AccessKeyID     string
	SecretAccessKey string
}

type Identity interface {
	CreateScopedUser(ctx context.Context, name, bucket string) error
	DeleteScopedUser(ctx context.Context, name string) error
	CreateAccessKey(ctx context.Context, name string) (*AccessKey, error)
	DeleteAccessKeys(ctx context.Context, name string) error
}

// Credentials 保存在密钥库中的用户凭据包
type Credentials struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	AdminKey        string `json:"admin_key"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	Placeholder     bool   `json:"placeholder,omitempty"`
}

type SecretVault interface {
	// Put 创建或更新密钥，返回引用（ARN）
	Put(ctx context.Context, name string, creds *Credentials) (string, error)
	Get(ctx context.Context, name string) (*Credentials, error)
	Delete(ctx context.Context, name string) error
	// Restore 撤销计划中的删除
	Restore(ctx context.Context, name string) error
}

// Provider 聚合全部外部能力，便于依赖注入
type Provider struct {
	Compute       Compute
	LoadBalancer  LoadBalancer
	DNS           DNS
	FileSystem    FileSystem
	ObjectStorage ObjectStorage
	Identity      Identity
	Vault         SecretVault
}

// IgnoreNotFound 删除类操作使用：资源已不存在视为成功
func IgnoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
