package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/legamerdc/ftbuf/protocol"
)

// Log 将通知写为结构化日志。Activity 只在 debug 级别输出。
type Log struct {
	log *zap.Logger

	mu    sync.Mutex
	addrs map[uint64]string
}

var _ Monitor = (*Log)(nil)

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.With(zap.String("component", "monitor")), addrs: make(map[uint64]string)}
}

func (l *Log) client(id uint64) *zap.Logger {
	l.mu.Lock()
	addr := l.addrs[id]
	l.mu.Unlock()
	return l.log.With(zap.Uint64("conn_id", id), zap.String("remote_addr", addr))
}

func (l *Log) ConnectionOpened(id uint64, addr string) {
	l.mu.Lock()
	l.addrs[id] = addr
	n := len(l.addrs)
	l.mu.Unlock()
	l.client(id).Info("Client opened connection", zap.Int("clients", n))
}

func (l *Log) ConnectionClosed(id uint64) {
	lg := l.client(id)
	l.mu.Lock()
	delete(l.addrs, id)
	n := len(l.addrs)
	l.mu.Unlock()
	lg.Info("Client closed connection", zap.Int("clients", n))
}

func (l *Log) Activity(id uint64, at time.Time) {
	if ce := l.log.Check(zap.DebugLevel, "Client activity"); ce != nil {
		ce.Write(zap.Uint64("conn_id", id), zap.Time("at", at))
	}
}

func (l *Log) ClientError(id uint64, kind ErrorKind, at time.Time) {
	lg := l.client(id).With(zap.Stringer("kind", kind), zap.Time("at", at))
	switch kind {
	case ConnectionLost:
		lg.Warn("Lost client")
	case VersionConflict:
		lg.Warn("Client sent unsupported protocol version")
	default:
		lg.Warn("Client violated protocol")
	}
}

func (l *Log) PutHeader(id uint64, dt protocol.DataType, rate float32, channels int) {
	l.client(id).Info("Header added",
		zap.Stringer("data_type", dt),
		zap.Float32("sample_rate", rate),
		zap.Int("channels", channels))
}

func (l *Log) PutSamples(id uint64, total, added int) {
	l.client(id).Debug("Samples added", zap.Int("added", added), zap.Int("total", total))
}

func (l *Log) PutEvents(id uint64, total, added int) {
	l.client(id).Debug("Events added", zap.Int("added", added), zap.Int("total", total))
}

func (l *Log) GetHeader(id uint64) {
	l.client(id).Debug("Header requested")
}

func (l *Log) GetSamples(id uint64, count int) {
	l.client(id).Debug("Samples requested", zap.Int("count", count))
}

func (l *Log) GetEvents(id uint64, count int) {
	l.client(id).Debug("Events requested", zap.Int("count", count))
}

func (l *Log) FlushedData(id uint64) {
	l.client(id).Info("Data flushed")
}

func (l *Log) FlushedEvents(id uint64) {
	l.client(id).Info("Events flushed")
}

func (l *Log) FlushedHeader(id uint64) {
	l.client(id).Info("Header flushed")
}

func (l *Log) Waits(id uint64, req protocol.WaitRequest) {
	l.client(id).Debug("Client waits",
		zap.Int("samples", req.Samples),
		zap.Int("events", req.Events),
		zap.Duration("timeout", time.Duration(req.Timeout)*time.Millisecond))
}

func (l *Log) Continues(id uint64) {
	l.client(id).Debug("Client continues")
}
