package ftbuf

import "errors"

// ErrInvalidArgument 配置非法
var ErrInvalidArgument = errors.New("ftbuf: invalid argument")
