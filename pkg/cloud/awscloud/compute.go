package awscloud

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"foundryhost/pkg/cloud"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
)

// Compute 在 Fargate 上运行每个用户的容器
type Compute struct {
	client *ecs.Client
	cfg    Config
}

const volumeName = "foundry-data"

func (c *Compute) RegisterTask(ctx context.Context, spec cloud.TaskSpec) (string, error) {
	env := make([]ecstypes.KeyValuePair, 0, len(spec.Environment))
	keys := make([]string, 0, len(spec.Environment))
	for k := range spec.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, ecstypes.KeyValuePair{Name: aws.String(k), Value: aws.String(spec.Environment[k])})
	}

	// 凭据通过 Secrets Manager 的 JSON key 注入，不出现在任务定义明文里
	secrets := []ecstypes.Secret{
		{Name: aws.String("FOUNDRY_USERNAME"), ValueFrom: aws.String(spec.SecretRef + ":username::")},
		{Name: aws.String("FOUNDRY_PASSWORD"), ValueFrom: aws.String(spec.SecretRef + ":password::")},
		{Name: aws.String("FOUNDRY_ADMIN_KEY"), ValueFrom: aws.String(spec.SecretRef + ":admin_key::")},
	}

	input := &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(spec.Family),
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		Cpu:                     aws.String(c.cfg.TaskCPU),
		Memory:                  aws.String(c.cfg.TaskMemory),
		ExecutionRoleArn:        aws.String(c.cfg.ExecutionRoleArn),
		TaskRoleArn:             aws.String(c.cfg.TaskRoleArn),
		ContainerDefinitions: []ecstypes.ContainerDefinition{
			{
				Name:        aws.String(c.cfg.ContainerName),
				Image:       aws.String(spec.Image),
				Essential:   aws.Bool(true),
				Environment: env,
				Secrets:     secrets,
				PortMappings: []ecstypes.PortMapping{
					{ContainerPort: aws.Int32(spec.ContainerPort), Protocol: ecstypes.TransportProtocolTcp},
				},
				MountPoints: []ecstypes.MountPoint{
					{SourceVolume: aws.String(volumeName), ContainerPath: aws.String("/data")},
				},
			},
		},
		Volumes: []ecstypes.Volume{
			{
				Name: aws.String(volumeName),
				EfsVolumeConfiguration: &ecstypes.EFSVolumeConfiguration{
					FileSystemId:      aws.String(c.cfg.FileSystemID),
					TransitEncryption: ecstypes.EFSTransitEncryptionEnabled,
					AuthorizationConfig: &ecstypes.EFSAuthorizationConfig{
						AccessPointId: aws.String(spec.AccessPointID),
						Iam:           ecstypes.EFSAuthorizationConfigIAMEnabled,
					},
				},
			},
		},
	}
	out, err := c.client.RegisterTaskDefinition(ctx, input)
	if err != nil {
		return "", fmt.Errorf("register task definition %s: %w", spec.Family, err)
	}
	return aws.ToString(out.TaskDefinition.TaskDefinitionArn), nil
}

func (c *Compute) RunTask(ctx context.Context, taskDefRef string) (string, error) {
	out, err := c.client.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:              aws.String(c.cfg.Cluster),
		TaskDefinition:       aws.String(taskDefRef),
		LaunchType:           ecstypes.LaunchTypeFargate,
		Count:                aws.Int32(1),
		NetworkConfiguration: awsvpc(c.cfg),
		StartedBy:            aws.String("foundryhost"),
	})
	if err != nil {
		return "", fmt.Errorf("run task %s: %w", taskDefRef, err)
	}
	if len(out.Tasks) == 0 {
		reason := "no task started"
		if len(out.Failures) > 0 {
			reason = aws.ToString(out.Failures[0].Reason)
		}
		return "", fmt.Errorf("run task %s: %s", taskDefRef, reason)
	}
	return aws.ToString(out.Tasks[0].TaskArn), nil
}

func (c *Compute) StopTask(ctx context.Context, handle string) error {
	_, err := c.client.StopTask(ctx, &ecs.StopTaskInput{
		Cluster: aws.String(c.cfg.Cluster),
		Task:    aws.String(handle),
		Reason:  aws.String("stopped by foundryhost"),
	})
	return translate(err, "InvalidParameterException")
}

func (c *Compute) DescribeTask(ctx context.Context, handle string) (*cloud.TaskStatus, error) {
	out, err := c.client.DescribeTasks(ctx, &ecs.DescribeTasksInput{
		Cluster: aws.String(c.cfg.Cluster),
		Tasks:   []string{handle},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Tasks) == 0 {
		return nil, cloud.ErrNotFound
	}
	task := out.Tasks[0]
	status := &cloud.TaskStatus{
		Handle:     handle,
		LastStatus: aws.ToString(task.LastStatus),
		StopReason: aws.ToString(task.StoppedReason),
	}
	for _, att := range task.Attachments {
		for _, d := range att.Details {
			if aws.ToString(d.Name) == "privateIPv4Address" {
				status.Address = aws.ToString(d.Value)
			}
		}
	}
	return status, nil
}

func awsvpc(c Config) *ecstypes.NetworkConfiguration {
	assign := ecstypes.AssignPublicIpDisabled
	if c.AssignPublicIP {
		assign = ecstypes.AssignPublicIpEnabled
	}
	return &ecstypes.NetworkConfiguration{
		AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
			Subnets:        c.Subnets,
			SecurityGroups: c.SecurityGroups,
			AssignPublicIp: assign,
		},
	}
}

// runOneOff 运行一次性任务并返回任务 ARN，供文件系统维护作业使用
func runOneOff(ctx context.Context, client *ecs.Client, c Config, command []string, env map[string]string) (string, error) {
	if c.CleanupTaskDef == "" {
		return "", errors.New("aws.cleanup_task_definition is not configured")
	}
	kv := make([]ecstypes.KeyValuePair, 0, len(env))
	for k, v := range env {
		kv = append(kv, ecstypes.KeyValuePair{Name: aws.String(k), Value: aws.String(v)})
	}
	out, err := client.RunTask(ctx, &ecs.RunTaskInput{
		Cluster:              aws.String(c.Cluster),
		TaskDefinition:       aws.String(c.CleanupTaskDef),
		LaunchType:           ecstypes.LaunchTypeFargate,
		Count:                aws.Int32(1),
		NetworkConfiguration: awsvpc(c),
		Overrides: &ecstypes.TaskOverride{
			ContainerOverrides: []ecstypes.ContainerOverride{
				{Name: aws.String(c.CleanupContainer), Command: command, Environment: kv},
			},
		},
	})
	if err != nil {
		return "", err
	}
	if len(out.Tasks) == 0 {
		return "", errors.New("maintenance task was not started")
	}
	return aws.ToString(out.Tasks[0].TaskArn), nil
}
