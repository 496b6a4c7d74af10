package obs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAttrs_EmptyLabelsIsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, toAttrs(nil))
	assert.Nil(t, toAttrs(map[string]string{}))
}

func TestToAttrs_OneEntryPerLabel(t *testing.T) {
	t.Parallel()
	attrs := toAttrs(map[string]string{"stage": "chunking"})
	assert.Len(t, attrs, 1)
	assert.Equal(t, "stage", string(attrs[0].Key))
	assert.Equal(t, "chunking", attrs[0].Value.AsString())
}

func TestMockMetrics_CountsIncrementsAndRecordsLabels(t *testing.T) {
	t.Parallel()
	m := NewMockMetrics()
	m.IncCounter("ingest_stage_transitions_total", map[string]string{"stage": "indexed"})
	m.IncCounter("ingest_stage_transitions_total", map[string]string{"stage": "failed"})

	assert.Equal(t, 2, m.Counters["ingest_stage_transitions_total"])
	require.Len(t, m.Labels["ingest_stage_transitions_total"], 2)
}

func TestMockMetrics_ObserveHistogramAppendsValues(t *testing.T) {
	t.Parallel()
	m := NewMockMetrics()
	m.ObserveHistogram("retrieve_latency_seconds", 0.2, nil)
	m.ObserveHistogram("retrieve_latency_seconds", 0.5, nil)

	assert.Equal(t, []float64{0.2, 0.5}, m.Hists["retrieve_latency_seconds"])
}
