package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/gocrud/inject/config"
	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/hosting"
	"github.com/gocrud/inject/logging"
	"github.com/redis/go-redis/v9"
)

// DefaultName 名为 default 的客户端同时以无名键绑定
const DefaultName = "default"

// Builder Redis 客户端配置构建器
type Builder struct {
	configs []RedisClientOptions
	errors  []error
}

// NewBuilder 创建 Redis 构建器
func NewBuilder() *Builder {
	return &Builder{
		configs: make([]RedisClientOptions, 0),
	}
}

// AddClient 添加一个 Redis 客户端配置
func (b *Builder) AddClient(name string, configure func(*RedisClientOptions)) *Builder {
	opts := NewDefaultOptions(name)
	if configure != nil {
		configure(opts)
	}
	b.configs = append(b.configs, *opts)
	return b
}

// AddFromConfig 从配置节读取客户端，节下每个子节是一个客户端：
//
//	redis:
//	  default:
//	    addr: localhost:6379
//	  cache:
//	    addr: localhost:6380
//	    db: 1
func (b *Builder) AddFromConfig(cfg config.Configuration, section string) *Builder {
	names := make([]string, 0)
	for name := range cfg.GetSection(section).GetAll() {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		opts := NewDefaultOptions(name)
		if err := cfg.Bind(section+":"+name, opts); err != nil {
			b.errors = append(b.errors, fmt.Errorf("redis client '%s': %w", name, err))
			continue
		}
		opts.Name = name
		b.configs = append(b.configs, *opts)
	}
	return b
}

// Build 构建 Redis 客户端工厂
func (b *Builder) Build() (*RedisClientFactory, error) {
	errs := append([]error(nil), b.errors...)
	factory := NewRedisClientFactory()
	for _, opts := range b.configs {
		if err := factory.Register(opts); err != nil {
			errs = append(errs, fmt.Errorf("invalid redis configuration for '%s': %w", opts.Name, err))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("redis configuration errors: %v", errs)
	}
	return factory, nil
}

type module struct {
	options func(*Builder)
}

// Module 返回 Redis 模块。每个客户端绑定为 *redis.Client 的命名单例，
// 首次解析时连接；注入器宿主停止时关闭所有客户端。
func Module(options func(*Builder)) di.Module {
	return &module{options: options}
}

func (m *module) Configure(b *di.Binder) {
	builder := NewBuilder()
	if m.options != nil {
		m.options(builder)
	}

	factory, err := builder.Build()
	if err != nil {
		b.AddError(err)
		return
	}

	di.Bind[*RedisClientFactory](b).ToInstance(factory)
	for _, name := range factory.Names() {
		provider := clientProvider(factory, name)
		di.BindNamed[*redis.Client](b, name).ToProviderFunc(provider).AsSingleton()
		if name == DefaultName {
			di.Bind[*redis.Client](b).ToProviderFunc(provider).AsSingleton()
		}
	}

	hosting.OnStop(b, "redis", func(context.Context) error {
		return factory.Close()
	})
}

func clientProvider(factory *RedisClientFactory, name string) di.ProviderFunc {
	return func(in *di.Injector) (any, error) {
		client, err := factory.Get(name)
		if err != nil {
			return nil, err
		}
		in.Logger().Info("redis client connected", logging.Field{Key: "name", Value: name})
		return client, nil
	}
}
