package redis

import (
	"fmt"
	"time"
)

// RedisClientOptions Redis 客户端配置选项
type RedisClientOptions struct {
	Name         string        `json:"-"`              // 客户端名称
	Addr         string        `json:"addr"`           // Redis 服务器地址 (host:port)
	Password     string        `json:"password"`       // 密码（可选）
	DB           int           `json:"db"`             // 数据库编号
	DialTimeout  time.Duration `json:"dial_timeout"`   // 连接超时时间
	ReadTimeout  time.Duration `json:"read_timeout"`   // 读取超时时间
	WriteTimeout time.Duration `json:"write_timeout"`  // 写入超时时间
	PoolSize     int           `json:"pool_size"`      // 连接池大小
	MinIdleConns int           `json:"min_idle_conns"` // 最小空闲连接数
	MaxRetries   int           `json:"max_retries"`    // 最大重试次数
	// PingOnConnect 首次解析客户端时执行 Ping，失败则解析失败
	PingOnConnect bool `json:"ping_on_connect"`
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *RedisClientOptions {
	return &RedisClientOptions{
		Name:          name,
		Addr:          "localhost:6379",
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		PoolSize:      10,
		MinIdleConns:  5,
		MaxRetries:    3,
		PingOnConnect: true,
	}
}

// Validate 验证配置
func (o *RedisClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("redis client name is required")
	}
	if o.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if o.DB < 0 {
		return fmt.Errorf("redis database number must be non-negative")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("redis dial timeout must be positive")
	}
	return nil
}
