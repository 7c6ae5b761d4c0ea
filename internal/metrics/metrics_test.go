package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(SupervisorDecisions.WithLabelValues("fallback"))
	SupervisorDecisions.WithLabelValues("fallback").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SupervisorDecisions.WithLabelValues("fallback")))
}

func TestHandler_ExposesDataflowMetrics(t *testing.T) {
	Workflows.WithLabelValues("completed").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dataflow_workflows_total")
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "ok", Status(nil))
	assert.Equal(t, "error", Status(errors.New("boom")))
}
