package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector("fxledger")
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	c.ObserveLedgerOp("fund", "ok", 10*time.Millisecond)
	c.ObserveLedgerOp("fund", "ok", 12*time.Millisecond)
	c.ObserveLedgerOp("convert", "insufficient_balance", time.Millisecond)
	c.RecordRateLookup(SourceStale)
	c.ObserveProviderCall(time.Second, errors.New("boom"))
	c.ObserveProviderCall(time.Second, nil)
	c.SetCircuitState(CircuitOpen)
	c.RecordEventFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ledgerOps.WithLabelValues("fund", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ledgerOps.WithLabelValues("convert", "insufficient_balance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rateLookups.WithLabelValues(SourceStale)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerErrors))
	assert.Equal(t, float64(CircuitOpen), testutil.ToFloat64(c.circuitState))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsFailed))
}

func TestRegisterTwiceFails(t *testing.T) {
	c := NewCollector("fxledger")
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))
	assert.Error(t, c.Register(reg))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveLedgerOp("fund", "ok", time.Millisecond)
	c.RecordRateLookup(SourceFresh)
	c.ObserveProviderCall(time.Millisecond, nil)
	c.SetCircuitState(CircuitClosed)
	c.RecordEventFailure()
}
