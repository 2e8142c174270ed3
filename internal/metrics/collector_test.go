package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCollector_RegistersAndRecordsMetrics(t *testing.T) {
	c := NewCollector("llmgate_collector_test")

	c.BudgetSpendUSD.WithLabelValues("openai").Set(12.5)
	assert.Equal(t, 12.5, testutil.ToFloat64(c.BudgetSpendUSD.WithLabelValues("openai")))

	c.BudgetRejectionsTotal.WithLabelValues("openai").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.BudgetRejectionsTotal.WithLabelValues("openai")))

	c.LedgerDroppedTotal.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.LedgerDroppedTotal))

	c.RetryAttemptsTotal.WithLabelValues("openai", "fast", "retryable").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.RetryAttemptsTotal.WithLabelValues("openai", "fast", "retryable")))
}
