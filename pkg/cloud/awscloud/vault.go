package awscloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"foundryhost/pkg/cloud"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const recoveryWindowDays = 7

type Vault struct {
	client *secretsmanager.Client
	cfg    Config
}

func (v *Vault) secretName(name string) string {
	return v.cfg.SecretPrefix + name
}

// pendingDeletion Secrets Manager 对计划删除中的密钥返回 InvalidRequestException
func pendingDeletion(err error) bool {
	return apiErrorCode(err) == "InvalidRequestException" && strings.Contains(err.Error(), "marked for deletion")
}

func (v *Vault) Put(ctx context.Context, name string, creds *cloud.Credentials) (string, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	secret := v.secretName(name)
	out, err := v.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(secret),
		SecretString: aws.String(string(payload)),
	})
	if err == nil {
		return aws.ToString(out.ARN), nil
	}
	switch {
	case pendingDeletion(err):
		return "", cloud.ErrPendingDeletion
	case apiErrorCode(err) != "ResourceExistsException":
		return "", fmt.Errorf("create secret %s: %w", secret, err)
	}

	put, err := v.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(secret),
		SecretString: aws.String(string(payload)),
	})
	if err != nil {
		if pendingDeletion(err) {
			return "", cloud.ErrPendingDeletion
		}
		return "", fmt.Errorf("put secret value %s: %w", secret, err)
	}
	return aws.ToString(put.ARN), nil
}

func (v *Vault) Get(ctx context.Context, name string) (*cloud.Credentials, error) {
	out, err := v.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(v.secretName(name)),
	})
	if err != nil {
		if pendingDeletion(err) {
			return nil, cloud.ErrPendingDeletion
		}
		return nil, translate(err, "ResourceNotFoundException")
	}
	var creds cloud.Credentials
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &creds); err != nil {
		return nil, fmt.Errorf("decode secret %s: %w", name, err)
	}
	return &creds, nil
}

// Delete 计划删除，保留恢复窗口
func (v *Vault) Delete(ctx context.Context, name string) error {
	_, err := v.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:             aws.String(v.secretName(name)),
		RecoveryWindowInDays: aws.Int64(recoveryWindowDays),
	})
	if err != nil && pendingDeletion(err) {
		return nil
	}
	return translate(err, "ResourceNotFoundException")
}

func (v *Vault) Restore(ctx context.Context, name string) error {
	_, err := v.client.RestoreSecret(ctx, &secretsmanager.RestoreSecretInput{
		SecretId: aws.String(v.secretName(name)),
	})
	if err = translate(err, "ResourceNotFoundException"); err != nil && !errors.Is(err, cloud.ErrNotFound) {
		return fmt.Errorf("restore secret %s: %w", name, err)
	}
	return err
}
