package awscloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
)

type DNS struct {
	client *route53.Client
	cfg    Config
}

const recordTTL = 60

func (d *DNS) UpsertRecord(ctx context.Context, host, target string) error {
	if err := d.change(ctx, r53types.ChangeActionUpsert, host, target); err != nil {
		return fmt.Errorf("upsert record %s: %w", host, err)
	}
	return nil
}

// DeleteRecord 删除时 Route53 要求记录值完全匹配；记录不存在返回 InvalidChangeBatch
func (d *DNS) DeleteRecord(ctx context.Context, host, target string) error {
	return translate(d.change(ctx, r53types.ChangeActionDelete, host, target), "InvalidChangeBatch")
}

func (d *DNS) change(ctx context.Context, action r53types.ChangeAction, host, target string) error {
	_, err := d.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(d.cfg.HostedZoneID),
		ChangeBatch: &r53types.ChangeBatch{
			Changes: []r53types.Change{
				{
					Action: action,
					ResourceRecordSet: &r53types.ResourceRecordSet{
						Name:            aws.String(host),
						Type:            r53types.RRTypeCname,
						TTL:             aws.Int64(recordTTL),
						ResourceRecords: []r53types.ResourceRecord{{Value: aws.String(target)}},
					},
				},
			},
		},
	})
	return err
}
