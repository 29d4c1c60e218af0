package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHeader 存储处于空状态
	ErrNoHeader = errors.New("no header")

	// ErrHeaderMismatch 替换头部时通道数或数据类型发生变化
	ErrHeaderMismatch = errors.New("header incompatible with current header")

	// ErrShapeMismatch 样本块的通道数或数据类型与头部不一致
	ErrShapeMismatch = errors.New("data shape does not match header")

	// ErrTooLarge 头部所需的样本存储超过上限
	ErrTooLarge = errors.New("header exceeds storage limit")

	// ErrNoData 环中没有可返回的条目
	ErrNoData = errors.New("nothing stored")

	// ErrInvalidRange 区间本身非法（begin < 0 或 begin > end）
	ErrInvalidRange = errors.New("invalid range")

	// ErrOutOfRange 区间超出当前驻留的条目
	ErrOutOfRange = errors.New("range not resident")
)

// DataError 表示请求在线路层面合法但与存储当前状态冲突，
// 连接以对应的 *_ERR 应答后继续服务
type DataError struct {
	Op  string
	Err error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

func dataError(op string, err error) error {
	return &DataError{Op: op, Err: err}
}

func rangeError(op string, err error, begin, end, oldest, total int) error {
	return &DataError{Op: op, Err: fmt.Errorf("%w: [%d, %d], resident [%d, %d)", err, begin, end, oldest, total)}
}

// IsDataError 报告 err 链中是否含有 *DataError
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
