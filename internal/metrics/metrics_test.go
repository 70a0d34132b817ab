package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveProbe(t *testing.T) {
	before := testutil.ToFloat64(iconProbesTotal.WithLabelValues(ProbeValid))
	ObserveProbe(ProbeValid)
	ObserveProbe(ProbeValid)
	if got := testutil.ToFloat64(iconProbesTotal.WithLabelValues(ProbeValid)); got != before+2 {
		t.Errorf("expected icon_probes_total{valid} to grow by 2, got %f -> %f", before, got)
	}
}

func TestObserveCacheLookup(t *testing.T) {
	testCases := []string{CacheHit, CacheHotHit, CacheMiss, CacheCorrupt, CacheError}
	for _, result := range testCases {
		t.Run(result, func(t *testing.T) {
			before := testutil.ToFloat64(iconCacheLookupsTotal.WithLabelValues(result))
			ObserveCacheLookup(result)
			if got := testutil.ToFloat64(iconCacheLookupsTotal.WithLabelValues(result)); got != before+1 {
				t.Errorf("expected lookup counter for %q to grow by 1, got %f -> %f", result, before, got)
			}
		})
	}
}

func TestObserveResolutionAndWriteFailure(t *testing.T) {
	before := testutil.ToFloat64(iconResolutionsTotal.WithLabelValues("best", "found"))
	ObserveResolution("best", "found")
	if got := testutil.ToFloat64(iconResolutionsTotal.WithLabelValues("best", "found")); got != before+1 {
		t.Errorf("expected resolution counter to grow by 1, got %f -> %f", before, got)
	}

	beforeFail := testutil.ToFloat64(iconCacheWriteFailuresTotal)
	ObserveCacheWriteFailure()
	if got := testutil.ToFloat64(iconCacheWriteFailuresTotal); got != beforeFail+1 {
		t.Errorf("expected write failure counter to grow by 1, got %f -> %f", beforeFail, got)
	}
}
