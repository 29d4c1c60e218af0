// Package ftbuf 组装实时采集缓冲区：协议服务、存储、等待协调器与 HTTP 状态接口。
package ftbuf

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/legamerdc/ftbuf/logger"
	"github.com/legamerdc/ftbuf/server"
	"github.com/legamerdc/ftbuf/store"
)

const (
	// DefaultHTTPAddress 状态与指标接口的默认地址
	DefaultHTTPAddress = ":1973"

	// DefaultShutdownTimeout 停止时等待连接退出的上限
	DefaultShutdownTimeout = 5 * time.Second
)

// Config 为缓冲区的完整配置，对应 TOML 文件的各个段
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   store.Config  `toml:"store"`
	Logging logger.Config `toml:"logging"`
	HTTP    HTTPConfig    `toml:"http"`
}

type ServerConfig struct {
	BindAddress     string        `toml:"bind-address"`
	ReusePort       bool          `toml:"reuse-port"`
	NoDelay         bool          `toml:"no-delay"`
	MaxPayload      int           `toml:"max-payload"` // 0 取默认上限
	ReadBuffer      int           `toml:"read-buffer"`
	WriteBuffer     int           `toml:"write-buffer"`
	ShutdownTimeout time.Duration `toml:"shutdown-timeout"`
}

// HTTPConfig 状态接口配置；BindAddress 为空时不启动
type HTTPConfig struct {
	BindAddress string `toml:"bind-address"`
}

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	sc := server.DefaultConfig()
	return Config{
		Server: ServerConfig{
			BindAddress:     sc.ListenAddress,
			NoDelay:         sc.NoDelay,
			MaxPayload:      sc.MaxPayload,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Store:   store.NewConfig(),
		Logging: logger.NewConfig(),
		HTTP:    HTTPConfig{BindAddress: DefaultHTTPAddress},
	}
}

// LoadConfig 在默认值之上解析 TOML 文件；未出现的键保持默认
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	md, err := toml.Decode(string(b), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("ftbuf: parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidArgument, undecoded[0].String(), path)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Server.BindAddress == "" {
		return fmt.Errorf("%w: server.bind-address is empty", ErrInvalidArgument)
	}
	if c.Server.MaxPayload < 0 {
		return fmt.Errorf("%w: server.max-payload must not be negative", ErrInvalidArgument)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: server.shutdown-timeout must not be negative", ErrInvalidArgument)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	switch c.Logging.Format {
	case "", "auto", "console", "json", "logfmt":
	default:
		return fmt.Errorf("%w: unknown logging.format %q", ErrInvalidArgument, c.Logging.Format)
	}
	return nil
}

// server 转换为协议服务配置
func (c ServerConfig) server() server.Config {
	sc := server.DefaultConfig()
	sc.ListenAddress = c.BindAddress
	sc.ReusePort = c.ReusePort
	sc.NoDelay = c.NoDelay
	sc.MaxPayload = c.MaxPayload
	sc.ReadBuffer = c.ReadBuffer
	sc.WriteBuffer = c.WriteBuffer
	return sc
}
