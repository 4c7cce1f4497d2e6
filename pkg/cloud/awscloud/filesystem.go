package awscloud

import (
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/efs"
	efstypes "github.com/aws/aws-sdk-go-v2/service/efs/types"
)

// FileSystem EFS 上每个用户一个访问点，根目录为 <root>/<userID>。
// 清理和改属主通过集群里的一次性维护任务完成，维护任务挂载整个文件系统。
type FileSystem struct {
	client *efs.Client
	ecs    *ecs.Client
	cfg    Config
}

func (f *FileSystem) userDir(userID string) string {
	return path.Join(f.cfg.FileSystemRootPath, userID)
}

func (f *FileSystem) CreateAccessPoint(ctx context.Context, userID string, uid, gid int64) (string, error) {
	out, err := f.client.CreateAccessPoint(ctx, &efs.CreateAccessPointInput{
		ClientToken:  aws.String("foundry-" + userID),
		FileSystemId: aws.String(f.cfg.FileSystemID),
		PosixUser:    &efstypes.PosixUser{Uid: aws.Int64(uid), Gid: aws.Int64(gid)},
		RootDirectory: &efstypes.RootDirectory{
			Path: aws.String(f.userDir(userID)),
			CreationInfo: &efstypes.CreationInfo{
				OwnerUid:    aws.Int64(uid),
				OwnerGid:    aws.Int64(gid),
				Permissions: aws.String("0755"),
			},
		},
		Tags: []efstypes.Tag{{Key: aws.String("foundry:user"), Value: aws.String(userID)}},
	})
	if err != nil {
		return "", fmt.Errorf("create access point for %s: %w", userID, err)
	}
	return aws.ToString(out.AccessPointId), nil
}

func (f *FileSystem) DeleteAccessPoint(ctx context.Context, accessPointID string) error {
	_, err := f.client.DeleteAccessPoint(ctx, &efs.DeleteAccessPointInput{AccessPointId: aws.String(accessPointID)})
	return translate(err, "AccessPointNotFound")
}

func (f *FileSystem) CleanupUserFiles(ctx context.Context, userID string) error {
	_, err := runOneOff(ctx, f.ecs, f.cfg,
		[]string{"sh", "-c", `rm -rf "/mnt/efs${TARGET_DIR}"`},
		map[string]string{"TARGET_DIR": f.userDir(userID)})
	if err != nil {
		return fmt.Errorf("start cleanup task for %s: %w", userID, err)
	}
	return nil
}

func (f *FileSystem) ResetOwnership(ctx context.Context, userID string, uid, gid int64) error {
	_, err := runOneOff(ctx, f.ecs, f.cfg,
		[]string{"sh", "-c", `chown -R "${OWNER}" "/mnt/efs${TARGET_DIR}"`},
		map[string]string{
			"TARGET_DIR": f.userDir(userID),
			"OWNER":      strconv.FormatInt(uid, 10) + ":" + strconv.FormatInt(gid, 10),
		})
	if err != nil {
		return fmt.Errorf("start chown task for %s: %w", userID, err)
	}
	return nil
}
