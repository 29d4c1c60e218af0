package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/legamerdc/ftbuf/protocol"
)

const (
	namespace = "ftbuf"
	subsystem = "buffer"
)

// Metrics 以 prometheus 指标累计通知
type Metrics struct {
	Connections   prometheus.Gauge
	Opened        prometheus.Counter
	Errors        *prometheus.CounterVec
	Requests      *prometheus.CounterVec
	Samples       prometheus.Gauge
	Events        prometheus.Gauge
	SamplesPut    prometheus.Counter
	EventsPut     prometheus.Counter
	SamplesServed prometheus.Counter
	EventsServed  prometheus.Counter
	Waiting       prometheus.Gauge
	LastActivity  prometheus.Gauge
}

var _ Monitor = (*Metrics)(nil)

func NewMetrics() *Metrics {
	return &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of open client connections",
		}),
		Opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections_total",
			Help:      "Count of accepted client connections",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "client_errors_total",
			Help:      "Count of terminated connections by error kind",
		}, []string{"kind"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Count of served requests by message type",
		}, []string{"type"}),
		Samples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "samples",
			Help:      "Total samples written since the last header or flush",
		}),
		Events: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events",
			Help:      "Total events written since the last header or flush",
		}),
		SamplesPut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "samples_put_total",
			Help:      "Count of samples received from producers",
		}),
		EventsPut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_put_total",
			Help:      "Count of events received from producers",
		}),
		SamplesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "samples_served_total",
			Help:      "Count of samples returned to consumers",
		}),
		EventsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_served_total",
			Help:      "Count of events returned to consumers",
		}),
		Waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "waiting_connections",
			Help:      "Number of connections blocked in WAIT_DAT",
		}),
		LastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_activity_timestamp_seconds",
			Help:      "Unix time of the most recent client message",
		}),
	}
}

// PrometheusCollectors 返回需要注册的全部指标
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Connections,
		m.Opened,
		m.Errors,
		m.Requests,
		m.Samples,
		m.Events,
		m.SamplesPut,
		m.EventsPut,
		m.SamplesServed,
		m.EventsServed,
		m.Waiting,
		m.LastActivity,
	}
}

func (m *Metrics) request(t protocol.MessageType) {
	m.Requests.WithLabelValues(t.String()).Inc()
}

func (m *Metrics) ConnectionOpened(uint64, string) {
	m.Connections.Inc()
	m.Opened.Inc()
}

func (m *Metrics) ConnectionClosed(uint64) { m.Connections.Dec() }

func (m *Metrics) Activity(_ uint64, at time.Time) {
	m.LastActivity.Set(float64(at.UnixNano()) / 1e9)
}

func (m *Metrics) ClientError(_ uint64, kind ErrorKind, _ time.Time) {
	m.Errors.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) PutHeader(uint64, protocol.DataType, float32, int) {
	m.request(protocol.PutHdr)
	m.Samples.Set(0)
	m.Events.Set(0)
}

func (m *Metrics) PutSamples(_ uint64, total, added int) {
	m.request(protocol.PutDat)
	m.Samples.Set(float64(total))
	m.SamplesPut.Add(float64(added))
}

func (m *Metrics) PutEvents(_ uint64, total, added int) {
	m.request(protocol.PutEvt)
	m.Events.Set(float64(total))
	m.EventsPut.Add(float64(added))
}

func (m *Metrics) GetHeader(uint64) { m.request(protocol.GetHdr) }

func (m *Metrics) GetSamples(_ uint64, count int) {
	m.request(protocol.GetDat)
	m.SamplesServed.Add(float64(count))
}

func (m *Metrics) GetEvents(_ uint64, count int) {
	m.request(protocol.GetEvt)
	m.EventsServed.Add(float64(count))
}

func (m *Metrics) FlushedData(uint64) {
	m.request(protocol.FlushDat)
	m.Samples.Set(0)
}

func (m *Metrics) FlushedEvents(uint64) {
	m.request(protocol.FlushEvt)
	m.Events.Set(0)
}

func (m *Metrics) FlushedHeader(uint64) {
	m.request(protocol.FlushHdr)
	m.Samples.Set(0)
	m.Events.Set(0)
}

func (m *Metrics) Waits(uint64, protocol.WaitRequest) {
	m.request(protocol.WaitDat)
	m.Waiting.Inc()
}

func (m *Metrics) Continues(uint64) { m.Waiting.Dec() }
