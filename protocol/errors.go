package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrVersion 客户端与服务端协议版本不一致
	ErrVersion = errors.New("protocol: version conflict")

	// ErrMalformed 帧或消息体格式非法
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrUnknownType 未定义的消息类型码
	ErrUnknownType = errors.New("protocol: unknown message type")

	// ErrTooLarge 消息体超过配置上限
	ErrTooLarge = errors.New("protocol: message too large")
)

// ProtocolError 表示线上数据非法，连接需终止
type ProtocolError struct {
	Err    error // ErrVersion / ErrMalformed / ErrUnknownType / ErrTooLarge
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func malformed(format string, args ...any) error {
	return &ProtocolError{Err: ErrMalformed, Detail: fmt.Sprintf(format, args...)}
}

// ConnectionError 表示传输层故障（对端关闭、复位、半帧断开）
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return "protocol: connection: " + e.Err.Error() }

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsProtocolError 报告 err 链中是否含 ProtocolError
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsConnectionError 报告 err 链中是否含 ConnectionError
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
