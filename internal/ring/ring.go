package ring

import (
	"errors"
)

// ErrOutOfRange 请求的索引已被覆盖或尚未写入
var ErrOutOfRange = errors.New("ring: index out of range")

// Index 为环形缓冲的索引运算，样本环与事件环共用。
// 逻辑索引 i 从 0 开始单调递增，total 为累计写入条数；
// 物理槽位 next 为下一次写入位置，写满后即为最旧条目所在槽位。
// 调用方负责并发控制。
type Index struct {
	capacity int
	total    int
	next     int
}

func newIndex(capacity int) Index {
	if capacity <= 0 {
		capacity = 1
	}
	return Index{capacity: capacity}
}

func (x *Index) Cap() int { return x.capacity }

// Total 返回累计写入条数
func (x *Index) Total() int { return x.total }

// Len 返回当前驻留条数
func (x *Index) Len() int { return x.total - x.Oldest() }

// Oldest 返回仍驻留的最旧条目的逻辑索引：max(0, total-capacity)
func (x *Index) Oldest() int {
	if x.total <= x.capacity {
		return 0
	}
	return x.total - x.capacity
}

// Slot 将逻辑索引映射到物理槽位
func (x *Index) Slot(i int) (int, error) {
	oldest := x.Oldest()
	if i < oldest || i >= x.total {
		return 0, ErrOutOfRange
	}
	if x.total < x.capacity {
		// 尚未回绕
		return i, nil
	}
	// 回绕后最旧条目位于 next
	return (i - oldest + x.next) % x.capacity, nil
}

// advance 返回本次写入的槽位并前进游标；写满后覆盖最旧条目
func (x *Index) advance() int {
	slot := x.next
	x.next++
	if x.next == x.capacity {
		x.next = 0
	}
	x.total++
	return slot
}

func (x *Index) reset() {
	x.total = 0
	x.next = 0
}

// Records 为定长字节记录的环（样本环），所有记录存放于一块连续内存
type Records struct {
	Index
	width int
	buf   []byte
}

// NewRecords 返回容量为 capacity 条、每条 width 字节的环
func NewRecords(capacity, width int) *Records {
	idx := newIndex(capacity)
	return &Records{Index: idx, width: width, buf: make([]byte, idx.capacity*width)}
}

// Width 返回单条记录字节数
func (r *Records) Width() int { return r.width }

// Add 追加一条记录；p 长度必须等于 Width
func (r *Records) Add(p []byte) {
	slot := r.advance()
	copy(r.buf[slot*r.width:(slot+1)*r.width], p)
}

// AddBlock 追加 len(p)/Width 条连续记录
func (r *Records) AddBlock(p []byte) {
	for off := 0; off+r.width <= len(p); off += r.width {
		r.Add(p[off : off+r.width])
	}
}

// Get 返回逻辑索引 i 的记录视图，调用方不得保留
func (r *Records) Get(i int) ([]byte, error) {
	slot, err := r.Slot(i)
	if err != nil {
		return nil, err
	}
	return r.buf[slot*r.width : (slot+1)*r.width], nil
}

// AppendRange 将 [begin, end] 闭区间的记录追加到 dst
func (r *Records) AppendRange(dst []byte, begin, end int) ([]byte, error) {
	if begin > end {
		return dst, ErrOutOfRange
	}
	if _, err := r.Slot(begin); err != nil {
		return dst, err
	}
	if _, err := r.Slot(end); err != nil {
		return dst, err
	}
	for i := begin; i <= end; i++ {
		rec, _ := r.Get(i)
		dst = append(dst, rec...)
	}
	return dst, nil
}

// Clear 清空内容与计数
func (r *Records) Clear() { r.reset() }

// Ring 为任意条目的环（事件环）
type Ring[T any] struct {
	Index
	items []T
}

// New 返回容量为 capacity 的环
func New[T any](capacity int) *Ring[T] {
	idx := newIndex(capacity)
	return &Ring[T]{Index: idx, items: make([]T, idx.capacity)}
}

// Add 追加一个条目，写满后覆盖最旧条目
func (r *Ring[T]) Add(v T) {
	r.items[r.advance()] = v
}

// Get 返回逻辑索引 i 的条目
func (r *Ring[T]) Get(i int) (T, error) {
	slot, err := r.Slot(i)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.items[slot], nil
}

// Range 返回 [begin, end] 闭区间的条目
func (r *Ring[T]) Range(begin, end int) ([]T, error) {
	if begin > end {
		return nil, ErrOutOfRange
	}
	if _, err := r.Slot(begin); err != nil {
		return nil, err
	}
	if _, err := r.Slot(end); err != nil {
		return nil, err
	}
	out := make([]T, 0, end-begin+1)
	for i := begin; i <= end; i++ {
		v, _ := r.Get(i)
		out = append(out, v)
	}
	return out, nil
}

// Clear 清空内容与计数，释放对旧条目的引用
func (r *Ring[T]) Clear() {
	clear(r.items)
	r.reset()
}
