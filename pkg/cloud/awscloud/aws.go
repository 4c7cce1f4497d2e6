// Package awscloud 用 aws-sdk-go-v2 实现 cloud 包定义的资源能力：
// ECS(Fargate) 计算、ALB 目标组与路由规则、Route53、EFS 访问点、S3、IAM 与 Secrets Manager。
package awscloud

import (
	"context"
	"errors"
	"fmt"

	"foundryhost/pkg/cloud"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/spf13/viper"
)

// Config 对应配置文件中的 aws.* 段
type Config struct {
	Region             string
	Cluster            string
	Subnets            []string
	SecurityGroups     []string
	VpcID              string
	ListenerArn        string
	HostedZoneID       string
	FileSystemID       string
	CleanupTaskDef     string
	CleanupContainer   string
	ExecutionRoleArn   string
	TaskRoleArn        string
	TaskCPU            string
	TaskMemory         string
	BucketPrefix       string
	SecretPrefix       string
	AssignPublicIP     bool
	ContainerName      string
	HealthCheckPath    string
	FileSystemRootPath string
}

func LoadConfig(conf *viper.Viper) Config {
	c := Config{
		Region:             conf.GetString("aws.region"),
		Cluster:            conf.GetString("aws.cluster"),
		Subnets:            conf.GetStringSlice("aws.subnets"),
		SecurityGroups:     conf.GetStringSlice("aws.security_groups"),
		VpcID:              conf.GetString("aws.vpc_id"),
		ListenerArn:        conf.GetString("aws.listener_arn"),
		HostedZoneID:       conf.GetString("aws.hosted_zone_id"),
		FileSystemID:       conf.GetString("aws.file_system_id"),
		CleanupTaskDef:     conf.GetString("aws.cleanup_task_definition"),
		CleanupContainer:   conf.GetString("aws.cleanup_container"),
		ExecutionRoleArn:   conf.GetString("aws.execution_role_arn"),
		TaskRoleArn:        conf.GetString("aws.task_role_arn"),
		TaskCPU:            conf.GetString("aws.task_cpu"),
		TaskMemory:         conf.GetString("aws.task_memory"),
		BucketPrefix:       conf.GetString("aws.bucket_prefix"),
		SecretPrefix:       conf.GetString("aws.secret_prefix"),
		AssignPublicIP:     conf.GetBool("aws.assign_public_ip"),
		ContainerName:      conf.GetString("aws.container_name"),
		HealthCheckPath:    conf.GetString("aws.health_check_path"),
		FileSystemRootPath: conf.GetString("aws.file_system_root_path"),
	}
	if c.ContainerName == "" {
		c.ContainerName = "foundry"
	}
	if c.CleanupContainer == "" {
		c.CleanupContainer = "cleanup"
	}
	if c.TaskCPU == "" {
		c.TaskCPU = "1024"
	}
	if c.TaskMemory == "" {
		c.TaskMemory = "2048"
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = "/api/status"
	}
	if c.FileSystemRootPath == "" {
		c.FileSystemRootPath = "/foundry"
	}
	return c
}

// NewProvider 加载默认凭据链并为每个服务创建客户端
func NewProvider(ctx context.Context, c Config) (*cloud.Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(c.Region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	ecsClient := ecs.NewFromConfig(cfg)
	return &cloud.Provider{
		Compute:       &Compute{client: ecsClient, cfg: c},
		LoadBalancer:  &LoadBalancer{client: elbv2.NewFromConfig(cfg), cfg: c},
		DNS:           &DNS{client: route53.NewFromConfig(cfg), cfg: c},
		FileSystem:    &FileSystem{client: efs.NewFromConfig(cfg), ecs: ecsClient, cfg: c},
		ObjectStorage: &ObjectStorage{client: s3.NewFromConfig(cfg), cfg: c},
		Identity:      &Identity{client: iam.NewFromConfig(cfg)},
		Vault:         &Vault{client: secretsmanager.NewFromConfig(cfg), cfg: c},
	}, nil
}

// apiErrorCode 取出 smithy API 错误码
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// translate 把各服务的“不存在”类错误统一成 cloud.ErrNotFound
func translate(err error, notFoundCodes ...string) error {
	if err == nil {
		return nil
	}
	code := apiErrorCode(err)
	for _, c := range notFoundCodes {
		if code == c {
			return fmt.Errorf("%w: %v", cloud.ErrNotFound, err)
		}
	}
	return err
}
