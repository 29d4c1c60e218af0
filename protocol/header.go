package protocol

import (
	"errors"
	"fmt"
	"io"
)

// 帧头编码（8B）：
//   version(2) type(2) bodyLen(4)
// 字节序由发送方决定：version 的两个字节按数值比较，
//   b0 < b1 表示大端，否则为小端；其余字段与消息体均沿用该字节序。

var errHeadTooShort = errors.New("protocol: head too short")

// DetectOrder 从 version 的两个字节推断发送方字节序
func DetectOrder(b0, b1 byte) Order {
	if b0 < b1 {
		return BigEndian
	}
	return LittleEndian
}

// AppendHead 追加 8 字节帧头
func AppendHead(dst []byte, order Order, typ MessageType, bodyLen int) []byte {
	bo := order.Binary()
	dst = bo.AppendUint16(dst, Version)
	dst = bo.AppendUint16(dst, uint16(typ))
	return bo.AppendUint32(dst, uint32(bodyLen))
}

// DecodeHead 解析帧头，返回类型、字节序与消息体长度
func DecodeHead(b []byte) (typ MessageType, order Order, bodyLen int, _ error) {
	if len(b) < HeadSize {
		return 0, 0, 0, errHeadTooShort
	}
	order = DetectOrder(b[0], b[1])
	bo := order.Binary()
	if v := bo.Uint16(b[0:2]); v != Version {
		return 0, order, 0, &ProtocolError{
			Err:    ErrVersion,
			Detail: fmt.Sprintf("client version %d, server version %d", v, Version),
		}
	}
	typ = MessageType(bo.Uint16(b[2:4]))
	bodyLen = int(bo.Uint32(b[4:8]))
	return typ, order, bodyLen, nil
}

// ReadMessage 阻塞读取一整帧；maxBody <= 0 表示不限制消息体长度。
// 连接在帧边界或帧内断开均返回 ConnectionError。
func ReadMessage(r io.Reader, maxBody int) (*Message, error) {
	var head [HeadSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, &ConnectionError{Err: err}
	}
	typ, order, n, err := DecodeHead(head[:])
	if err != nil {
		return nil, err
	}
	if maxBody > 0 && n > maxBody {
		return nil, &ProtocolError{Err: ErrTooLarge, Detail: fmt.Sprintf("%d > %d bytes", n, maxBody)}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &ConnectionError{Err: err}
	}
	return &Message{Version: Version, Type: typ, Order: order, Body: body}, nil
}

// AppendMessage 追加帧头与消息体
func AppendMessage(dst []byte, order Order, typ MessageType, body []byte) []byte {
	dst = AppendHead(dst, order, typ, len(body))
	return append(dst, body...)
}

// WriteMessage 将一帧写入 w
func WriteMessage(w io.Writer, order Order, typ MessageType, body []byte) error {
	out := make([]byte, 0, HeadSize+len(body))
	out = AppendMessage(out, order, typ, body)
	_, err := w.Write(out)
	return err
}

// Ack 返回消息体为空的应答帧（*_OK / *_ERR）
func Ack(order Order, typ MessageType) []byte {
	return AppendHead(make([]byte, 0, HeadSize), order, typ, 0)
}

// ErrorFor 返回请求类型对应的错误应答类型
func ErrorFor(req MessageType) MessageType {
	switch req {
	case PutHdr, PutDat, PutEvt:
		return PutErr
	case GetHdr, GetDat, GetEvt:
		return GetErr
	case FlushHdr, FlushDat, FlushEvt:
		return FlushErr
	case WaitDat:
		return WaitErr
	}
	return 0
}
