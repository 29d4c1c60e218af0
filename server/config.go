package server

const (
	// DefaultAddress 为缓冲区的惯用端口
	DefaultAddress = ":1972"

	// DefaultMaxPayload 单条消息体上限
	DefaultMaxPayload = 64 << 20
)

type Config struct {
	ListenNetwork string // tcp / tcp4 / tcp6
	ListenAddress string // 如 ":1972"
	ReusePort     bool   // 设置 SO_REUSEPORT
	NoDelay       bool   // 关闭 Nagle
	MaxPayload    int    // 单条消息体上限，<= 0 取 DefaultMaxPayload
	ReadBuffer    int    // SO_RCVBUF，0 保持系统默认
	WriteBuffer   int    // SO_SNDBUF，0 保持系统默认
}

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	return Config{
		ListenNetwork: "tcp",
		ListenAddress: DefaultAddress,
		NoDelay:       true,
		MaxPayload:    DefaultMaxPayload,
	}
}
