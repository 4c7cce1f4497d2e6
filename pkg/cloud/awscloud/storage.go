package awscloud

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type ObjectStorage struct {
	client *s3.Client
	cfg    Config
}

func (o *ObjectStorage) CreateBucket(ctx context.Context, name string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	// us-east-1 不接受 LocationConstraint
	if o.cfg.Region != "" && o.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(o.cfg.Region),
		}
	}
	_, err := o.client.CreateBucket(ctx, input)
	if err != nil {
		code := apiErrorCode(err)
		if code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", name, err)
	}
	return nil
}

func (o *ObjectStorage) DeleteBucket(ctx context.Context, name string) error {
	if err := o.purge(ctx, name); err != nil {
		return translate(err, "NoSuchBucket")
	}
	_, err := o.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	return translate(err, "NoSuchBucket")
}

// purge 分页删除全部对象版本与删除标记，启用版本控制的 bucket 不清空无法删除
func (o *ObjectStorage) purge(ctx context.Context, name string) error {
	var keyMarker, versionMarker *string
	for {
		out, err := o.client.ListObjectVersions(ctx, &s3.ListObjectVersionsInput{
			Bucket:          aws.String(name),
			KeyMarker:       keyMarker,
			VersionIdMarker: versionMarker,
		})
		if err != nil {
			return err
		}
		ids := make([]s3types.ObjectIdentifier, 0, len(out.Versions)+len(out.DeleteMarkers))
		for _, v := range out.Versions {
			ids = append(ids, s3types.ObjectIdentifier{Key: v.Key, VersionId: v.VersionId})
		}
		for _, m := range out.DeleteMarkers {
			ids = append(ids, s3types.ObjectIdentifier{Key: m.Key, VersionId: m.VersionId})
		}
		if len(ids) > 0 {
			if _, err := o.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(name),
				Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
			}); err != nil {
				return err
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			return nil
		}
		keyMarker, versionMarker = out.NextKeyMarker, out.NextVersionIdMarker
	}
}

func (o *ObjectStorage) PublicURL(bucket, key string) string {
	u := url.URL{
		Scheme: "https",
		Host:   fmt.Sprintf("%s.s3.%s.amazonaws.com", bucket, o.cfg.Region),
		Path:   "/" + key,
	}
	return u.String()
}
