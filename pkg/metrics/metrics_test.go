package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"foundryhost/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromhttpExposure(t *testing.T) {
	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInstanceStopsTotal(t *testing.T) {
	before := testutil.ToFloat64(metrics.InstanceStopsTotal.WithLabelValues(metrics.StopReasonPreempted))
	metrics.InstanceStopsTotal.WithLabelValues(metrics.StopReasonPreempted).Inc()
	after := testutil.ToFloat64(metrics.InstanceStopsTotal.WithLabelValues(metrics.StopReasonPreempted))
	assert.Equal(t, before+1, after)
}
