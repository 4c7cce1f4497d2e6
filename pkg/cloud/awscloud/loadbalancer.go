package awscloud

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
)

// LoadBalancer 每个实例一个 IP 类型目标组，共享监听器上按 host header 转发
type LoadBalancer struct {
	client *elbv2.Client
	cfg    Config
}

func (l *LoadBalancer) CreateTargetGroup(ctx context.Context, name string, port int32) (string, error) {
	out, err := l.client.CreateTargetGroup(ctx, &elbv2.CreateTargetGroupInput{
		Name:            aws.String(name),
		Protocol:        elbtypes.ProtocolEnumHttp,
		Port:            aws.Int32(port),
		VpcId:           aws.String(l.cfg.VpcID),
		TargetType:      elbtypes.TargetTypeEnumIp,
		HealthCheckPath: aws.String(l.cfg.HealthCheckPath),
		Matcher:         &elbtypes.Matcher{HttpCode: aws.String("200-399")},
	})
	if err != nil {
		return "", fmt.Errorf("create target group %s: %w", name, err)
	}
	if len(out.TargetGroups) == 0 {
		return "", fmt.Errorf("create target group %s: empty response", name)
	}
	return aws.ToString(out.TargetGroups[0].TargetGroupArn), nil
}

func (l *LoadBalancer) DeleteTargetGroup(ctx context.Context, arn string) error {
	_, err := l.client.DeleteTargetGroup(ctx, &elbv2.DeleteTargetGroupInput{TargetGroupArn: aws.String(arn)})
	return translate(err, "TargetGroupNotFound")
}

func (l *LoadBalancer) RegisterTarget(ctx context.Context, targetGroupArn, address string, port int32) error {
	_, err := l.client.RegisterTargets(ctx, &elbv2.RegisterTargetsInput{
		TargetGroupArn: aws.String(targetGroupArn),
		Targets:        []elbtypes.TargetDescription{{Id: aws.String(address), Port: aws.Int32(port)}},
	})
	return translate(err, "TargetGroupNotFound")
}

func (l *LoadBalancer) DeregisterTarget(ctx context.Context, targetGroupArn, address string, port int32) error {
	_, err := l.client.DeregisterTargets(ctx, &elbv2.DeregisterTargetsInput{
		TargetGroupArn: aws.String(targetGroupArn),
		Targets:        []elbtypes.TargetDescription{{Id: aws.String(address), Port: aws.Int32(port)}},
	})
	return translate(err, "TargetGroupNotFound", "InvalidTarget")
}

func (l *LoadBalancer) CreateRule(ctx context.Context, targetGroupArn, host string, priority int32) (string, error) {
	out, err := l.client.CreateRule(ctx, &elbv2.CreateRuleInput{
		ListenerArn: aws.String(l.cfg.ListenerArn),
		Priority:    aws.Int32(priority),
		Conditions: []elbtypes.RuleCondition{
			{
				Field:            aws.String("host-header"),
				HostHeaderConfig: &elbtypes.HostHeaderConditionConfig{Values: []string{host}},
			},
		},
		Actions: []elbtypes.Action{
			{Type: elbtypes.ActionTypeEnumForward, TargetGroupArn: aws.String(targetGroupArn)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create listener rule for %s: %w", host, err)
	}
	if len(out.Rules) == 0 {
		return "", fmt.Errorf("create listener rule for %s: empty response", host)
	}
	return aws.ToString(out.Rules[0].RuleArn), nil
}

func (l *LoadBalancer) DeleteRule(ctx context.Context, ruleArn string) error {
	_, err := l.client.DeleteRule(ctx, &elbv2.DeleteRuleInput{RuleArn: aws.String(ruleArn)})
	return translate(err, "RuleNotFound")
}

// NextRulePriority 返回监听器上最小的未占用优先级
func (l *LoadBalancer) NextRulePriority(ctx context.Context) (int32, error) {
	used := make(map[int32]struct{})
	var marker *string
	for {
		out, err := l.client.DescribeRules(ctx, &elbv2.DescribeRulesInput{
			ListenerArn: aws.String(l.cfg.ListenerArn),
			Marker:      marker,
			PageSize:    aws.Int32(400),
		})
		if err != nil {
			return 0, fmt.Errorf("describe listener rules: %w", err)
		}
		for _, r := range out.Rules {
			if aws.ToBool(r.IsDefault) {
				continue
			}
			p, err := strconv.Atoi(aws.ToString(r.Priority))
			if err != nil {
				continue
			}
			used[int32(p)] = struct{}{}
		}
		if out.NextMarker == nil {
			break
		}
		marker = out.NextMarker
	}
	for p := int32(1); p <= 50000; p++ {
		if _, ok := used[p]; !ok {
			return p, nil
		}
	}
	return 0, fmt.Errorf("listener %s has no free rule priority", l.cfg.ListenerArn)
}
