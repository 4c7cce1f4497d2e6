// Package poll 提供可取消、有总时限的轮询组合子，用于等待外部资源就绪。
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/duke-git/lancet/v2/retry"
)

// ErrTimeout 在超过总时限仍未满足条件时返回
var ErrTimeout = errors.New("poll: condition not met before timeout")

var errNotReady = errors.New("poll: not ready")

// ConditionFunc 返回 done=true 表示结束；返回 error 表示不可重试的失败
type ConditionFunc func(ctx context.Context) (done bool, err error)

// Until 以固定间隔调用 cond，直到其返回 done、返回错误、ctx 被取消或超过 timeout。
func Until(ctx context.Context, interval, timeout time.Duration, cond ConditionFunc) error {
	if interval <= 0 {
		return fmt.Errorf("poll: invalid interval %s", interval)
	}
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var permanent error
	attempts := uint(timeout/interval) + 1
	err := retry.Retry(func() error {
		done, err := cond(pollCtx)
		if err != nil {
			permanent = err
			cancel()
			return err
		}
		if !done {
			return errNotReady
		}
		return nil
	},
		retry.RetryTimes(attempts),
		retry.RetryWithLinearBackoff(interval),
		retry.Context(pollCtx),
	)
	switch {
	case permanent != nil:
		return permanent
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return ErrTimeout
	}
}
