package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/hosting"
	"github.com/gocrud/inject/logging"
	"github.com/gocrud/mgo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultName 名为 default 的客户端同时以无名键绑定
const DefaultName = "default"

// MongoOptions MongoDB 客户端配置
type MongoOptions struct {
	Name        string
	Uri         string
	Username    string
	Password    string
	MaxPoolSize uint64
	MinPoolSize uint64
	Timeout     time.Duration
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string, uri string) *MongoOptions {
	return &MongoOptions{
		Name:        name,
		Uri:         uri,
		MaxPoolSize: 100,
		MinPoolSize: 5,
		Timeout:     10 * time.Second,
	}
}

// Validate 验证配置
func (o *MongoOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("mongo client name is required")
	}
	if o.Uri == "" {
		return fmt.Errorf("mongo uri is required")
	}
	return nil
}

func (o *MongoOptions) clientOptions() *options.ClientOptions {
	clientOpts := options.Client()
	if o.Username != "" || o.Password != "" {
		clientOpts.SetAuth(options.Credential{
			Username: o.Username,
			Password: o.Password,
		})
	}
	if o.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(o.MaxPoolSize)
	}
	if o.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(o.MinPoolSize)
	}
	if o.Timeout > 0 {
		clientOpts.SetConnectTimeout(o.Timeout)
	}
	return clientOpts
}

// MongoFactory 按名称管理 MongoDB 客户端，客户端在第一次 Get 时创建
type MongoFactory struct {
	options map[string]MongoOptions
	clients map[string]*mgo.Client
	mu      sync.Mutex
}

// NewMongoFactory 创建客户端工厂
func NewMongoFactory() *MongoFactory {
	return &MongoFactory{
		options: make(map[string]MongoOptions),
		clients: make(map[string]*mgo.Client),
	}
}

// Register 登记客户端配置
func (f *MongoFactory) Register(opts MongoOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.options[opts.Name]; exists {
		return fmt.Errorf("mongo client '%s' already registered", opts.Name)
	}
	f.options[opts.Name] = opts
	return nil
}

// Names 返回已登记的客户端名称
func (f *MongoFactory) Names() []string {
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
func (f *MongoFactory) Get(name string) (*mgo.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[name]; ok {
		return client, nil
	}
	opts, ok := f.options[name]
	if !ok {
		return nil, fmt.Errorf("mongo client '%s' not found", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()
	client, err := mgo.NewClient(ctx, opts.Uri, opts.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client '%s': %w", name, err)
	}
	f.clients[name] = client
	return client, nil
}

// Close 断开所有已创建的客户端
func (f *MongoFactory) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, client := range f.clients {
		if err := client.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client '%s': %w", name, err))
		}
	}
	f.clients = make(map[string]*mgo.Client)
	return errors.Join(errs...)
}

// Builder MongoDB 配置构建器
type Builder struct {
	configs []MongoOptions
	errors  []error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{
		configs: make([]MongoOptions, 0),
		errors:  make([]error, 0),
	}
}

// Add 添加客户端配置
func (b *Builder) Add(name string, uri string, configure func(*MongoOptions)) *Builder {
	opts := NewDefaultOptions(name, uri)
	if configure != nil {
		configure(opts)
	}
	if err := opts.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid mongo configuration for '%s': %w", name, err))
		return b
	}
	b.configs = append(b.configs, *opts)
	return b
}

// Build 构建客户端工厂
func (b *Builder) Build() (*MongoFactory, error) {
	errs := append([]error(nil), b.errors...)
	factory := NewMongoFactory()
	for _, opts := range b.configs {
		if err := factory.Register(opts); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("mongo configuration errors: %v", errs)
	}
	return factory, nil
}

type module struct {
	options func(*Builder)
}

// Module 返回 MongoDB 模块，每个客户端绑定为 *mgo.Client 的命名单例
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

	di.Bind[*MongoFactory](b).ToInstance(factory)
	for _, name := range factory.Names() {
		provider := func(in *di.Injector) (any, error) {
			client, err := factory.Get(name)
			if err != nil {
				return nil, err
			}
			in.Logger().Info("mongo client created", logging.Field{Key: "name", Value: name})
			return client, nil
		}
		di.BindNamed[*mgo.Client](b, name).ToProviderFunc(provider).AsSingleton()
		if name == DefaultName {
			di.Bind[*mgo.Client](b).ToProviderFunc(provider).AsSingleton()
		}
	}

	hosting.OnStop(b, "mongodb", factory.Close)
}
