package ftbuf

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/legamerdc/ftbuf/protocol"
)

// Status 为 /status 的应答
type Status struct {
	Header       *HeaderStatus `json:"header"`
	Samples      int           `json:"samples"`
	Events       int           `json:"events"`
	PendingWaits int           `json:"pending_waits"`
	Connections  int           `json:"connections"`
}

type HeaderStatus struct {
	Channels     int      `json:"channels"`
	SampleRate   float32  `json:"sample_rate"`
	DataType     string   `json:"data_type"`
	ChannelNames []string `json:"channel_names,omitempty"`
}

// StatusHandler 提供只读的状态与指标接口
type StatusHandler struct {
	chi.Router

	buf *Buffer
	log *zap.Logger
}

func NewStatusHandler(b *Buffer, reg prometheus.Gatherer, log *zap.Logger) *StatusHandler {
	h := &StatusHandler{buf: b, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/status", h.handleStatus)
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h.Router = r
	return h
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := h.buf.Status()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		h.log.Debug("Failed to write status", zap.Error(err))
	}
}

func headerStatus(hdr *protocol.Header) *HeaderStatus {
	if hdr == nil {
		return nil
	}
	return &HeaderStatus{
		Channels:     hdr.Channels,
		SampleRate:   hdr.SampleRate,
		DataType:     hdr.DataType.String(),
		ChannelNames: hdr.ChannelNames(),
	}
}
