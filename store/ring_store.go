package store

import (
	"sync"

	"github.com/legamerdc/ftbuf/internal/ring"
	"github.com/legamerdc/ftbuf/protocol"
)

// RingStore 为生产用的定容存储：样本与事件各一个环，写满后覆盖最旧条目。
// 状态：空（无头部）-> 活动（头部 + 环）-> 空（清除头部）。
type RingStore struct {
	subscribers

	cfg Config

	mu      sync.RWMutex
	header  *protocol.Header
	samples *ring.Records
	events  *ring.Ring[protocol.Event]
}

var _ DataStore = (*RingStore)(nil)

// NewRingStore 以给定容量创建空存储；非法容量回落到默认值
func NewRingStore(cfg Config) *RingStore {
	def := NewConfig()
	cfg.Kind = KindRing
	if cfg.SampleCapacity <= 0 {
		cfg.SampleCapacity = def.SampleCapacity
	}
	if cfg.EventCapacity <= 0 {
		cfg.EventCapacity = def.EventCapacity
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	return &RingStore{cfg: cfg}
}

// Config 返回生效的容量配置
func (s *RingStore) Config() Config { return s.cfg }

func (s *RingStore) PutHeader(h *protocol.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkHeader(s.header, h); err != nil {
		return err
	}
	if s.samples == nil {
		if err := checkFootprint(h, s.cfg.SampleCapacity, s.cfg.MaxBytes); err != nil {
			return err
		}
		s.samples = ring.NewRecords(s.cfg.SampleCapacity, h.Channels*h.DataType.Width())
		s.events = ring.New[protocol.Event](s.cfg.EventCapacity)
	} else {
		// 形状未变，复用已分配的环
		s.samples.Clear()
		s.events.Clear()
	}
	s.header = adoptHeader(h)
	return nil
}

func (s *RingStore) PutData(d *protocol.Data) (int, error) {
	s.mu.Lock()
	if err := checkData(s.header, d); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.samples.AddBlock(nativePayload(d))
	samples, events := s.samples.Total(), s.events.Total()
	s.mu.Unlock()

	s.notify(samples, events)
	return samples, nil
}

func (s *RingStore) PutEvents(evs []protocol.Event) (int, error) {
	s.mu.Lock()
	if s.header == nil {
		s.mu.Unlock()
		return 0, dataError("put events", ErrNoHeader)
	}
	for _, e := range evs {
		s.events.Add(nativeEvent(e))
	}
	samples, events := s.samples.Total(), s.events.Total()
	s.mu.Unlock()

	if len(evs) > 0 {
		s.notify(samples, events)
	}
	return events, nil
}

func (s *RingStore) GetHeader() (*protocol.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.header == nil {
		return nil, dataError("get header", ErrNoHeader)
	}
	h := s.header.Clone()
	h.Samples = s.samples.Total()
	h.Events = s.events.Total()
	return h, nil
}

func (s *RingStore) GetData(req *protocol.Request) (*protocol.Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.header == nil {
		return nil, dataError("get data", ErrNoHeader)
	}
	begin, end, err := resolveRange("get data", req, s.samples.Oldest(), s.samples.Total())
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, (end-begin+1)*s.samples.Width())
	if payload, err = s.samples.AppendRange(payload, begin, end); err != nil {
		return nil, dataError("get data", err)
	}
	return &protocol.Data{
		Channels: s.header.Channels,
		Samples:  end - begin + 1,
		DataType: s.header.DataType,
		Order:    protocol.NativeOrder,
		Payload:  payload,
	}, nil
}

func (s *RingStore) GetEvents(req *protocol.Request) ([]protocol.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.header == nil {
		return nil, dataError("get events", ErrNoHeader)
	}
	begin, end, err := resolveRange("get events", req, s.events.Oldest(), s.events.Total())
	if err != nil {
		return nil, err
	}
	evs, err := s.events.Range(begin, end)
	if err != nil {
		return nil, dataError("get events", err)
	}
	for i := range evs {
		evs[i] = evs[i].Clone()
	}
	return evs, nil
}

func (s *RingStore) SampleCount() int {
	n, _, _ := s.Counts()
	return n
}

func (s *RingStore) EventCount() int {
	_, n, _ := s.Counts()
	return n
}

func (s *RingStore) Counts() (samples, events int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.header == nil {
		return 0, 0, false
	}
	return s.samples.Total(), s.events.Total(), true
}

func (s *RingStore) HeaderExists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.header != nil
}

func (s *RingStore) FlushData() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header == nil {
		return dataError("flush data", ErrNoHeader)
	}
	s.samples.Clear()
	return nil
}

func (s *RingStore) FlushEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header == nil {
		return dataError("flush events", ErrNoHeader)
	}
	s.events.Clear()
	return nil
}

func (s *RingStore) FlushHeader() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header == nil {
		return dataError("flush header", ErrNoHeader)
	}
	s.header = nil
	s.samples = nil
	s.events = nil
	return nil
}
