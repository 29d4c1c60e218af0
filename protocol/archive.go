package protocol

import (
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// 归档格式：若干完整帧（帧头 + 消息体）顺序拼接后整体 zstd 压缩。
// 帧沿用线上格式，回放时可原样发送给任意缓冲服务。

// ErrArchiveClosed 归档已关闭
var ErrArchiveClosed = errors.New("protocol: archive closed")

// 归档编解码器池；每个归档单流顺序读写
var (
	archiveEncoders = sync.Pool{New: func() any {
		enc, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1))
		return enc
	}}
	archiveDecoders = sync.Pool{New: func() any {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return dec
	}}
)

// ArchiveWriter 将帧写入压缩流
type ArchiveWriter struct {
	enc   *zstd.Encoder
	order Order
	buf   []byte
}

// NewArchiveWriter 以 order 编码后续写入的帧
func NewArchiveWriter(w io.Writer, order Order) *ArchiveWriter {
	enc := archiveEncoders.Get().(*zstd.Encoder)
	enc.Reset(w)
	return &ArchiveWriter{enc: enc, order: order}
}

// WriteFrame 追加一帧
func (a *ArchiveWriter) WriteFrame(typ MessageType, body []byte) error {
	if a.enc == nil {
		return ErrArchiveClosed
	}
	a.buf = AppendMessage(a.buf[:0], a.order, typ, body)
	_, err := a.enc.Write(a.buf)
	return err
}

// WriteHeader / WriteData / WriteEvents 为常用帧的便捷封装
func (a *ArchiveWriter) WriteHeader(h *Header) error {
	return a.WriteFrame(PutHdr, AppendHeader(nil, h, a.order))
}

func (a *ArchiveWriter) WriteData(d *Data) error {
	return a.WriteFrame(PutDat, AppendData(nil, d, a.order))
}

func (a *ArchiveWriter) WriteEvents(events []Event) error {
	return a.WriteFrame(PutEvt, AppendEvents(nil, events, a.order))
}

// Close 刷新压缩流；不关闭底层 writer
func (a *ArchiveWriter) Close() error {
	if a.enc == nil {
		return ErrArchiveClosed
	}
	err := a.enc.Close()
	archiveEncoders.Put(a.enc)
	a.enc = nil
	return err
}

// ArchiveReader 顺序读取归档中的帧
type ArchiveReader struct {
	dec     *zstd.Decoder
	maxBody int
}

// NewArchiveReader 打开压缩流
func NewArchiveReader(r io.Reader, maxBody int) (*ArchiveReader, error) {
	dec := archiveDecoders.Get().(*zstd.Decoder)
	if err := dec.Reset(r); err != nil {
		archiveDecoders.Put(dec)
		return nil, err
	}
	return &ArchiveReader{dec: dec, maxBody: maxBody}, nil
}

// Next 返回下一帧；归档结束时返回 io.EOF
func (a *ArchiveReader) Next() (*Message, error) {
	if a.dec == nil {
		return nil, ErrArchiveClosed
	}
	m, err := ReadMessage(a.dec, a.maxBody)
	var ce *ConnectionError
	if errors.As(err, &ce) && ce.Err == io.EOF {
		return nil, io.EOF
	}
	return m, err
}

// Close 归还解码器
func (a *ArchiveReader) Close() error {
	if a.dec == nil {
		return ErrArchiveClosed
	}
	archiveDecoders.Put(a.dec)
	a.dec = nil
	return nil
}
