package store

import (
	"sync"

	"github.com/legamerdc/ftbuf/protocol"
)

// SimpleStore 为不限容量的存储，从不覆盖，最旧索引恒为 0。
// 只在显式清除时释放内存，适合测试与短时录制。
type SimpleStore struct {
	subscribers

	mu      sync.RWMutex
	header  *protocol.Header
	width   int
	samples []byte
	events  []protocol.Event
}

var _ DataStore = (*SimpleStore)(nil)

func NewSimpleStore() *SimpleStore { return &SimpleStore{} }

func (s *SimpleStore) PutHeader(h *protocol.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := checkHeader(s.header, h); err != nil {
		return err
	}
	// 无界存储只限制单条记录
	if err := checkFootprint(h, 1, DefaultMaxBytes); err != nil {
		return err
	}
	s.header = adoptHeader(h)
	s.width = h.Channels * h.DataType.Width()
	s.samples = nil
	s.events = nil
	return nil
}

func (s *SimpleStore) PutData(d *protocol.Data) (int, error) {
	s.mu.Lock()
	if err := checkData(s.header, d); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.samples = append(s.samples, nativePayload(d)...)
	samples, events := s.counts()
	s.mu.Unlock()

	s.notify(samples, events)
	return samples, nil
}

func (s *SimpleStore) PutEvents(evs []protocol.Event) (int, error) {
	s.mu.Lock()
	if s.header == nil {
		s.mu.Unlock()
		return 0, dataError("put events", ErrNoHeader)
	}
	for _, e := range evs {
		s.events = append(s.events, nativeEvent(e))
	}
	samples, events := s.counts()
	s.mu.Unlock()

	if len(evs) > 0 {
		s.notify(samples, events)
	}
	return events, nil
}

func (s *SimpleStore) counts() (int, int) {
	return len(s.samples) / s.width, len(s.events)
}

func (s *SimpleStore) GetHeader() (*protocol.Header, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.header == nil {
		return nil, dataError("get header", ErrNoHeader)
	}
	h := s.header.Clone()
	h.Samples, h.Events = s.counts()
	return h, nil
}

func (s *SimpleStore) GetData(req *protocol.Request) (*protocol.Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.header == nil {
		return nil, dataError("get data", ErrNoHeader)
	}
	total, _ := s.counts()
	begin, end, err := resolveRange("get data", req, 0, total)
	if err != nil {
		return nil, err
	}
	return &protocol.Data{
		Channels: s.header.Channels,
		Samples:  end - begin + 1,
		DataType: s.header.DataType,
		Order:    protocol.NativeOrder,
		Payload:  append([]byte(nil), s.samples[begin*s.width:(end+1)*s.width]...),
	}, nil
}

func (s *SimpleStore) GetEvents(req *protocol.Request) ([]protocol.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.header == nil {
		return nil, dataError("get events", ErrNoHeader)
	}
	begin, end, err := resolveRange("get events", req, 0, len(s.events))
	if err != nil {
		return nil, err
	}
	out := make([]protocol.Event, 0, end-begin+1)
	for _, e := range s.events[begin : end+1] {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *SimpleStore) SampleCount() int {
	n, _, _ := s.Counts()
	return n
}

func (s *SimpleStore) EventCount() int {
	_, n, _ := s.Counts()
	return n
}

func (s *SimpleStore) Counts() (samples, events int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.header == nil {
		return 0, 0, false
	}
	samples, events = s.counts()
	return samples, events, true
}

func (s *SimpleStore) HeaderExists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.header != nil
}

func (s *SimpleStore) FlushData() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header == nil {
		return dataError("flush data", ErrNoHeader)
	}
	s.samples = nil
	return nil
}

func (s *SimpleStore) FlushEvents() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header == nil {
		return dataError("flush events", ErrNoHeader)
	}
	s.events = nil
	return nil
}

func (s *SimpleStore) FlushHeader() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header == nil {
		return dataError("flush header", ErrNoHeader)
	}
	s.header = nil
	s.width = 0
	s.samples = nil
	s.events = nil
	return nil
}
