package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStratifierMetricsCountersAccumulate(t *testing.T) {
	m := NewStratifierMetrics(nil)

	m.ShareAccepted(5 * time.Millisecond)
	m.ShareAccepted(10 * time.Millisecond)
	m.ShareRejected(3 * time.Millisecond)
	m.ShareInvalid()
	m.AuthFailure()
	m.ClientDisconnect()
	m.RPCError()

	snap := m.Snapshot(time.Unix(0, 0))
	assert.Equal(t, int64(2), snap.SharesAccepted)
	assert.Equal(t, int64(1), snap.SharesRejected)
	assert.Equal(t, int64(1), snap.SharesInvalid)
	assert.Equal(t, int64(1), snap.AuthFailures)
	assert.Equal(t, int64(1), snap.ClientDisconnects)
	assert.Equal(t, int64(1), snap.RPCErrors)
	assert.Equal(t, 3, snap.SubmitLatency.Samples)
}

func TestStratifierMetricsLatencyPercentiles(t *testing.T) {
	m := NewStratifierMetrics(nil)
	for i := 1; i <= 10; i++ {
		m.ShareAccepted(time.Duration(i) * time.Millisecond)
	}

	snap := m.Snapshot(time.Unix(0, 0))
	assert.Equal(t, 1*time.Millisecond, snap.SubmitLatency.Min)
	assert.Equal(t, 10*time.Millisecond, snap.SubmitLatency.Max)
	assert.Equal(t, 10, snap.SubmitLatency.Samples)
	assert.True(t, snap.SubmitLatency.P99 >= snap.SubmitLatency.P50)
}

func TestStratifierMetricsBlockFetch(t *testing.T) {
	m := NewStratifierMetrics(nil)
	m.BlockFetch(250 * time.Millisecond)

	snap := m.Snapshot(time.Unix(0, 0))
	assert.Equal(t, 1, snap.BlockFetchLatency.Samples)
	assert.Equal(t, 250*time.Millisecond, snap.BlockFetchLatency.Min)
}

func TestFormatHashrate(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{500, "500.00 H/s"},
		{1500, "1.50 KH/s"},
		{1_500_000, "1.50 MH/s"},
		{1_500_000_000, "1.50 GH/s"},
		{1_500_000_000_000, "1.50 TH/s"},
		{1_500_000_000_000_000, "1.50 PH/s"},
		{1_500_000_000_000_000_000, "1.50 EH/s"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatHashrate(c.in))
	}
}
