// Package driver 按 cloud.driver 配置选择云能力实现
package driver

import (
	"context"
	"fmt"

	"foundryhost/pkg/cloud"
	"foundryhost/pkg/cloud/awscloud"
	"foundryhost/pkg/cloud/memory"
	"foundryhost/pkg/log"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DriverAWS    = "aws"
	DriverMemory = "memory"
)

func NewProvider(conf *viper.Viper, logger *log.Logger) (*cloud.Provider, error) {
	driver := conf.GetString("cloud.driver")
	switch driver {
	case DriverAWS:
		c := awscloud.LoadConfig(conf)
		p, err := awscloud.NewProvider(context.Background(), c)
		if err != nil {
			return nil, err
		}
		logger.Info("cloud driver initialized", zap.String("driver", driver), zap.String("region", c.Region), zap.String("cluster", c.Cluster))
		return p, nil
	case DriverMemory, "":
		logger.Warn("using in-memory cloud driver, nothing will be provisioned")
		return memory.NewProvider(memory.New()), nil
	default:
		return nil, fmt.Errorf("unsupported cloud driver: %s", driver)
	}
}
