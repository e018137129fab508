package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAgentCall(t *testing.T) {
	before := testutil.ToFloat64(AgentCalls.WithLabelValues("debater", "failure"))
	RecordAgentCall("debater", false, 0.5)
	RecordAgentCall("debater", true, 0.2)
	after := testutil.ToFloat64(AgentCalls.WithLabelValues("debater", "failure"))
	assert.Equal(t, before+1, after)
}

func TestRecordSessionMetrics(t *testing.T) {
	before := testutil.ToFloat64(DebatesCompleted.WithLabelValues("complete", "true"))
	RecordSessionMetrics("complete", true, 12)
	assert.Equal(t, before+1, testutil.ToFloat64(DebatesCompleted.WithLabelValues("complete", "true")))
}

func TestRecordToolExecution(t *testing.T) {
	before := testutil.ToFloat64(ToolExecutions.WithLabelValues("read_file", "denied"))
	RecordToolExecution("read_file", "denied", 0)
	assert.Equal(t, before+1, testutil.ToFloat64(ToolExecutions.WithLabelValues("read_file", "denied")))
}
