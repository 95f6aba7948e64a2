package pkg

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskMetrics(t *testing.T) {
	r, _ := newTestRun(t)

	_, err := r.Invoke("test.stub", stubInput{Msg: "a", Changed: true})
	require.NoError(t, err)
	_, err = r.Invoke("test.stub", stubInput{Msg: "b"})
	require.NoError(t, err)
	_, err = r.Invoke("test.stub", stubInput{Msg: "c", Fail: true}, IgnoreFailure())
	require.NoError(t, err)

	assert.Equal(t, float64(3), testutil.ToFloat64(r.TaskExecutions().WithLabelValues("test.stub")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.taskChanges.WithLabelValues("test.stub")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.taskFailures.WithLabelValues("test.stub", "true")))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.metrics.taskFailures.WithLabelValues("test.stub", "false")))

	r.Notify(NewHandler("h", nil))
	require.NoError(t, r.Finish(nil))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.handlerRuns.WithLabelValues("h")))
	assert.Equal(t, float64(3), testutil.ToFloat64(r.metrics.recapTotal.WithLabelValues("total")))
}

func TestRunsDoNotShareMetrics(t *testing.T) {
	first, _ := newTestRun(t)
	second, _ := newTestRun(t)

	_, err := first.Invoke("test.stub", stubInput{Msg: "a"})
	require.NoError(t, err)
	assert.Equal(t, float64(0), testutil.ToFloat64(second.TaskExecutions().WithLabelValues("test.stub")))
	n, err := testutil.GatherAndCount(first.MetricsRegistry(), "uplaybook_task_executions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
