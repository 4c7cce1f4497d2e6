package awscloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"foundryhost/pkg/cloud"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
)

const bucketPolicyName = "foundry-bucket-access"

// Identity 为每个用户创建只能访问自己 bucket 的 IAM 用户
type Identity struct {
	client *iam.Client
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

func bucketPolicy(bucket string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Effect:   "Allow",
				Action:   []string{"s3:ListBucket", "s3:GetBucketLocation"},
				Resource: []string{"arn:aws:s3:::" + bucket},
			},
			{
				Effect:   "Allow",
				Action:   []string{"s3:GetObject", "s3:PutObject", "s3:DeleteObject", "s3:PutObjectAcl"},
				Resource: []string{"arn:aws:s3:::" + bucket + "/*"},
			},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (i *Identity) CreateScopedUser(ctx context.Context, name, bucket string) error {
	_, err := i.client.CreateUser(ctx, &iam.CreateUserInput{
		UserName: aws.String(name),
		Tags:     []iamtypes.Tag{{Key: aws.String("foundry:bucket"), Value: aws.String(bucket)}},
	})
	if err != nil && apiErrorCode(err) != "EntityAlreadyExists" {
		return fmt.Errorf("create iam user %s: %w", name, err)
	}
	policy, err := bucketPolicy(bucket)
	if err != nil {
		return err
	}
	if _, err := i.client.PutUserPolicy(ctx, &iam.PutUserPolicyInput{
		UserName:       aws.String(name),
		PolicyName:     aws.String(bucketPolicyName),
		PolicyDocument: aws.String(policy),
	}); err != nil {
		return fmt.Errorf("put user policy %s: %w", name, err)
	}
	return nil
}

// DeleteScopedUser IAM 要求先删除访问密钥和内联策略
func (i *Identity) DeleteScopedUser(ctx context.Context, name string) error {
	if err := i.DeleteAccessKeys(ctx, name); err != nil && !errors.Is(err, cloud.ErrNotFound) {
		return err
	}
	_, err := i.client.DeleteUserPolicy(ctx, &iam.DeleteUserPolicyInput{
		UserName:   aws.String(name),
		PolicyName: aws.String(bucketPolicyName),
	})
	if err := cloud.IgnoreNotFound(translate(err, "NoSuchEntity")); err != nil {
		return fmt.Errorf("delete user policy %s: %w", name, err)
	}
	_, err = i.client.DeleteUser(ctx, &iam.DeleteUserInput{UserName: aws.String(name)})
	return translate(err, "NoSuchEntity")
}

func (i *Identity) CreateAccessKey(ctx context.Context, name string) (*cloud.AccessKey, error) {
	out, err := i.client.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{UserName: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("create access key %s: %w", name, translate(err, "NoSuchEntity"))
	}
	return &cloud.AccessKey{
		AccessKeyID:     aws.ToString(out.AccessKey.AccessKeyId),
		SecretAccessKey: aws.ToString(out.AccessKey.SecretAccessKey),
	}, nil
}

func (i *Identity) DeleteAccessKeys(ctx context.Context, name string) error {
	out, err := i.client.ListAccessKeys(ctx, &iam.ListAccessKeysInput{UserName: aws.String(name)})
	if err != nil {
		return translate(err, "NoSuchEntity")
	}
	for _, k := range out.AccessKeyMetadata {
		_, err := i.client.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
			UserName:    aws.String(name),
			AccessKeyId: k.AccessKeyId,
		})
		if err := cloud.IgnoreNotFound(translate(err, "NoSuchEntity")); err != nil {
			return fmt.Errorf("delete access key %s: %w", aws.ToString(k.AccessKeyId), err)
		}
	}
	return nil
}
