package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"p2pexchange/core/types"
)

func TestExchangeMetricsCounts(t *testing.T) {
	m := Exchange()
	before := testutil.ToFloat64(m.operations.WithLabelValues("offer", "create", "OK"))
	m.ObserveOperation("offer", "create", "OK", time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.operations.WithLabelValues("offer", "create", "OK")))

	settled := testutil.ToFloat64(m.settled.WithLabelValues("release"))
	m.RecordSettlement("release", big.NewInt(250))
	m.RecordSettlement("release", big.NewInt(0))
	require.Equal(t, settled+250, testutil.ToFloat64(m.settled.WithLabelValues("release")))
}

func TestModuleMetricsErrors(t *testing.T) {
	m := ModuleMetrics()
	before := testutil.ToFloat64(m.errors.WithLabelValues("offer", "POST", "409"))
	m.Observe("offer", "POST", 409, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.errors.WithLabelValues("offer", "POST", "409")))
}

func TestEventMetricsEmit(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues("offer.created"))
	m.Emit(&types.Event{Type: "offer.created"})
	require.Equal(t, before+1, testutil.ToFloat64(m.emitted.WithLabelValues("offer.created")))
}
