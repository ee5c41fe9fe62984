package etcd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gocrud/inject/config"
	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/hosting"
	"github.com/gocrud/inject/logging"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultName 名为 default 的客户端同时以无名键绑定
const DefaultName = "default"

// EtcdClientOptions etcd 客户端配置选项
type EtcdClientOptions struct {
	Name               string        `json:"-"`                      // 客户端名称
	Endpoints          []string      `json:"endpoints"`              // etcd 服务器地址列表
	DialTimeout        time.Duration `json:"dial_timeout"`           // 连接超时时间
	Username           string        `json:"username"`               // 用户名（可选）
	Password           string        `json:"password"`               // 密码（可选）
	AutoSyncInterval   time.Duration `json:"auto_sync_interval"`     // 自动同步间隔（可选）
	MaxCallSendMsgSize int           `json:"max_call_send_msg_size"` // 最大发送消息大小（可选）
	MaxCallRecvMsgSize int           `json:"max_call_recv_msg_size"` // 最大接收消息大小（可选）
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *EtcdClientOptions {
	return &EtcdClientOptions{
		Name:        name,
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
	}
}

// Validate 验证配置
func (o *EtcdClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("etcd client name is required")
	}
	if len(o.Endpoints) == 0 {
		return fmt.Errorf("etcd endpoints are required")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("etcd dial timeout must be positive")
	}
	return nil
}

func (o *EtcdClientOptions) clientConfig() clientv3.Config {
	cfg := clientv3.Config{
		Endpoints:   o.Endpoints,
		DialTimeout: o.DialTimeout,
	}
	if o.Username != "" {
		cfg.Username = o.Username
		cfg.Password = o.Password
	}
	if o.AutoSyncInterval > 0 {
		cfg.AutoSyncInterval = o.AutoSyncInterval
	}
	if o.MaxCallSendMsgSize > 0 {
		cfg.MaxCallSendMsgSize = o.MaxCallSendMsgSize
	}
	if o.MaxCallRecvMsgSize > 0 {
		cfg.MaxCallRecvMsgSize = o.MaxCallRecvMsgSize
	}
	return cfg
}

// EtcdClientFactory 按名称管理 etcd 客户端，客户端在第一次 Get 时创建
type EtcdClientFactory struct {
	options map[string]EtcdClientOptions
	clients map[string]*clientv3.Client
	mu      sync.Mutex
}

// NewEtcdClientFactory 创建客户端工厂
func NewEtcdClientFactory() *EtcdClientFactory {
	return &EtcdClientFactory{
		options: make(map[string]EtcdClientOptions),
		clients: make(map[string]*clientv3.Client),
	}
}

// Register 登记客户端配置
func (f *EtcdClientFactory) Register(opts EtcdClientOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.options[opts.Name]; exists {
		return fmt.Errorf("etcd client '%s' already registered", opts.Name)
	}
	f.options[opts.Name] = opts
	return nil
}

// Names 返回已登记的客户端名称
func (f *EtcdClientFactory) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.options))
	for name := range f.options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get 获取指定名称的客户端
func (f *EtcdClientFactory) Get(name string) (*clientv3.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[name]; ok {
		return client, nil
	}
	opts, ok := f.options[name]
	if !ok {
		return nil, fmt.Errorf("etcd client '%s' not found", name)
	}
	client, err := clientv3.New(opts.clientConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client '%s': %w", name, err)
	}
	f.clients[name] = client
	return client, nil
}

// Close 关闭所有已创建的客户端
func (f *EtcdClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, client := range f.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client '%s': %w", name, err))
		}
	}
	f.clients = make(map[string]*clientv3.Client)
	return errors.Join(errs...)
}

// Builder etcd 客户端配置构建器
type Builder struct {
	configs map[string]EtcdClientOptions
	order   []string
	errors  []error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{
		configs: make(map[string]EtcdClientOptions),
		errors:  make([]error, 0),
	}
}

// AddClient 添加客户端配置
func (b *Builder) AddClient(name string, configure func(*EtcdClientOptions)) *Builder {
	if _, exists := b.configs[name]; exists {
		b.errors = append(b.errors, fmt.Errorf("etcd client '%s' already configured", name))
		return b
	}

	opts := NewDefaultOptions(name)
	if configure != nil {
		configure(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid etcd configuration for '%s': %w", name, err))
		return b
	}

	b.configs[name] = *opts
	b.order = append(b.order, name)
	return b
}

// AddFromConfig 从配置节读取客户端，节下每个子节是一个客户端
func (b *Builder) AddFromConfig(cfg config.Configuration, section string) *Builder {
	names := make([]string, 0)
	for name := range cfg.GetSection(section).GetAll() {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var loaded EtcdClientOptions
		if err := cfg.Bind(section+":"+name, &loaded); err != nil {
			b.errors = append(b.errors, fmt.Errorf("etcd client '%s': %w", name, err))
			continue
		}
		b.AddClient(name, func(o *EtcdClientOptions) {
			if len(loaded.Endpoints) > 0 {
				o.Endpoints = loaded.Endpoints
			}
			if loaded.DialTimeout > 0 {
				o.DialTimeout = loaded.DialTimeout
			}
			o.Username = loaded.Username
			o.Password = loaded.Password
			o.AutoSyncInterval = loaded.AutoSyncInterval
			o.MaxCallSendMsgSize = loaded.MaxCallSendMsgSize
			o.MaxCallRecvMsgSize = loaded.MaxCallRecvMsgSize
		})
	}
	return b
}

// Build 构建客户端工厂
func (b *Builder) Build() (*EtcdClientFactory, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("etcd configuration errors: %v", b.errors)
	}
	factory := NewEtcdClientFactory()
	for _, name := range b.order {
		if err := factory.Register(b.configs[name]); err != nil {
			return nil, err
		}
	}
	return factory, nil
}

type module struct {
	options func(*Builder)
}

// Module 返回 etcd 模块，每个客户端绑定为 *clientv3.Client 的命名单例
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

	di.Bind[*EtcdClientFactory](b).ToInstance(factory)
	for _, name := range factory.Names() {
		provider := func(in *di.Injector) (any, error) {
			client, err := factory.Get(name)
			if err != nil {
				return nil, err
			}
			in.Logger().Info("etcd client created",
				logging.Field{Key: "name", Value: name},
				logging.Field{Key: "endpoints", Value: fmt.Sprintf("%v", client.Endpoints())})
			return client, nil
		}
		di.BindNamed[*clientv3.Client](b, name).ToProviderFunc(provider).AsSingleton()
		if name == DefaultName {
			di.Bind[*clientv3.Client](b).ToProviderFunc(provider).AsSingleton()
		}
	}

	hosting.OnStop(b, "etcd", func(context.Context) error {
		return factory.Close()
	})
}

// ConfigSource 用注入器中名为 name 的客户端读取 prefix 下的配置
func ConfigSource(in *di.Injector, name, prefix string) (config.ConfigurationSource, error) {
	client, err := di.GetNamed[*clientv3.Client](in, name)
	if err != nil {
		return nil, err
	}
	return &config.EtcdSource{Options: config.EtcdOptions{Prefix: prefix}, Client: client}, nil
}
