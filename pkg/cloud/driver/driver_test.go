package driver

import (
	"testing"

	"foundryhost/pkg/cloud/memory"
	"foundryhost/pkg/log"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Memory(t *testing.T) {
	conf := viper.New()
	conf.Set("cloud.driver", "memory")

	p, err := NewProvider(conf, log.NewNop())
	require.NoError(t, err)
	_, ok := p.Compute.(*memory.Cloud)
	assert.True(t, ok)
	assert.Same(t, p.Compute, p.Vault)
}

func TestNewProvider_Unsupported(t *testing.T) {
	conf := viper.New()
	conf.Set("cloud.driver", "gcp")

	_, err := NewProvider(conf, log.NewNop())
	assert.Error(t, err)
}
