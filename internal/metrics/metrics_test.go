package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSearch(t *testing.T) {
	before := testutil.ToFloat64(SearchesTotal.WithLabelValues("ok"))
	RecordSearch("ok", 3)
	assert.Equal(t, before+1, testutil.ToFloat64(SearchesTotal.WithLabelValues("ok")))

	invalid := testutil.ToFloat64(SearchesTotal.WithLabelValues("invalid"))
	RecordSearch("invalid", 0)
	assert.Equal(t, invalid+1, testutil.ToFloat64(SearchesTotal.WithLabelValues("invalid")))
}

func TestRecordEnhancement(t *testing.T) {
	before := testutil.ToFloat64(EnhancementsTotal.WithLabelValues("openai", "fallback"))
	RecordEnhancement("openai", "fallback")
	RecordEnhancement("openai", "fallback")
	assert.Equal(t, before+2, testutil.ToFloat64(EnhancementsTotal.WithLabelValues("openai", "fallback")))
}

func TestRecordError(t *testing.T) {
	before := testutil.ToFloat64(ErrorsTotal.WithLabelValues("retrieve", "upstream"))
	RecordError("retrieve", "upstream")
	assert.Equal(t, before+1, testutil.ToFloat64(ErrorsTotal.WithLabelValues("retrieve", "upstream")))
}
