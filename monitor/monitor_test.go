package monitor

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/legamerdc/ftbuf/protocol"
)

func TestLog(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := NewLog(zap.New(core))

	m.ConnectionOpened(7, "127.0.0.1:5000")
	m.PutHeader(7, protocol.Float32, 250, 4)
	m.PutSamples(7, 100, 100)
	m.ClientError(7, VersionConflict, time.Now())
	m.ConnectionClosed(7)

	entries := logs.All()
	require.Len(t, entries, 5)
	assert.Equal(t, "Client opened connection", entries[0].Message)
	assert.Equal(t, "127.0.0.1:5000", entries[1].ContextMap()["remote_addr"])
	assert.Equal(t, "float32", entries[1].ContextMap()["data_type"])
	assert.Equal(t, int64(100), entries[2].ContextMap()["total"])
	assert.Equal(t, "version", entries[3].ContextMap()["kind"])
	assert.Equal(t, int64(0), entries[4].ContextMap()["clients"])
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewPedanticRegistry()
	for _, c := range m.PrometheusCollectors() {
		require.NoError(t, reg.Register(c))
	}

	m.ConnectionOpened(1, "a")
	m.ConnectionOpened(2, "b")
	m.ConnectionClosed(1)
	m.PutSamples(2, 40, 40)
	m.PutSamples(2, 50, 10)
	m.GetSamples(2, 25)
	m.Waits(2, protocol.WaitRequest{Samples: 1, Timeout: 10})
	m.ClientError(2, ConnectionLost, time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Opened))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.Samples))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.SamplesPut))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.SamplesServed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Waiting))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("PUT_DAT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("connection")))

	m.Continues(2)
	m.FlushedData(2)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Waiting))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Samples))
}

type counting struct {
	Nop
	opened, closed int
}

func (c *counting) ConnectionOpened(uint64, string) { c.opened++ }
func (c *counting) ConnectionClosed(uint64) { c.closed++ }

func TestMulti(t *testing.T) {
	a, b := &counting{}, &counting{}
	var m Monitor = Multi{a, b, Nop{}}
	m.ConnectionOpened(1, "x")
	m.ConnectionClosed(1)
	m.Activity(1, time.Now())
	assert.Equal(t, 1, a.opened)
	assert.Equal(t, 1, b.closed)
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "protocol", ProtocolViolation.String())
	assert.Equal(t, "connection", ConnectionLost.String())
	assert.Equal(t, "version", VersionConflict.String())
	assert.Equal(t, "unknown", ErrorKind(9).String())
}
