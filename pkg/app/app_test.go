package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"foundryhost/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	startErr error
	stopErr  error
	stopped  atomic.Bool
	block    bool
}

func (f *fakeServer) Start(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
	}
	return f.startErr
}

func (f *fakeServer) Stop(context.Context) error {
	f.stopped.Store(true)
	return f.stopErr
}

func TestRun_StartFailureStopsEveryServer(t *testing.T) {
	healthy := &fakeServer{block: true}
	broken := &fakeServer{startErr: errors.New("bind: address in use")}
	a := NewApp(WithServer(healthy, broken), WithName("test"), WithLogger(log.NewNop()))

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.True(t, healthy.stopped.Load())
	assert.True(t, broken.stopped.Load())
}

func TestRun_ContextCancelReportsStopErrors(t *testing.T) {
	srv := &fakeServer{block: true, stopErr: errors.New("flush failed")}
	a := NewApp(WithServer(srv))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := a.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.True(t, srv.stopped.Load())
}
