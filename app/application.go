package app

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/gocrud/inject/config"
	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/hosting"
	"github.com/gocrud/inject/logging"
)

// ApplicationBuilder 应用程序构建器
type ApplicationBuilder struct {
	environment     string
	configBuilder   *config.ConfigurationBuilder
	loggingBuilder  *logging.LoggingBuilder
	modules         []di.Module
	options         []di.Option
	tasks           []func(ctx context.Context) error
	shutdownTimeout time.Duration
}

// NewApplicationBuilder 创建应用程序构建器
func NewApplicationBuilder() *ApplicationBuilder {
	return &ApplicationBuilder{
		environment:     "development",
		configBuilder:   config.NewConfigurationBuilder(),
		loggingBuilder:  logging.NewLoggingBuilder(),
		shutdownTimeout: 30 * time.Second,
	}
}

// UseEnvironment 设置环境
func (b *ApplicationBuilder) UseEnvironment(env string) *ApplicationBuilder {
	b.environment = env
	return b
}

// ConfigureConfiguration 配置配置系统
func (b *ApplicationBuilder) ConfigureConfiguration(configure func(*config.ConfigurationBuilder)) *ApplicationBuilder {
	if configure != nil {
		configure(b.configBuilder)
	}
	return b
}

// ConfigureLogging 配置日志系统
func (b *ApplicationBuilder) ConfigureLogging(configure func(*logging.LoggingBuilder)) *ApplicationBuilder {
	if configure != nil {
		configure(b.loggingBuilder)
	}
	return b
}

// AddModules 添加注入模块，按添加顺序安装
func (b *ApplicationBuilder) AddModules(modules ...di.Module) *ApplicationBuilder {
	b.modules = append(b.modules, modules...)
	return b
}

// WithOptions 追加注入器选项，优先于配置中的 inject 节
func (b *ApplicationBuilder) WithOptions(opts ...di.Option) *ApplicationBuilder {
	b.options = append(b.options, opts...)
	return b
}

// AddTask 添加一个简单的后台任务
func (b *ApplicationBuilder) AddTask(task func(ctx context.Context) error) *ApplicationBuilder {
	b.tasks = append(b.tasks, task)
	return b
}

// UseShutdownTimeout 设置关闭超时
func (b *ApplicationBuilder) UseShutdownTimeout(timeout time.Duration) *ApplicationBuilder {
	b.shutdownTimeout = timeout
	return b
}

// functionalService 函数式托管服务
type functionalService struct {
	task func(ctx context.Context) error
}

func (f *functionalService) Start(ctx context.Context) error {
	return f.task(ctx)
}

func (f *functionalService) Stop(ctx context.Context) error {
	return nil
}

// Build 构建配置、日志与注入器，并收集托管服务
func (b *ApplicationBuilder) Build() (*Application, error) {
	cfg, err := b.configBuilder.BuildReloadable()
	if err != nil {
		return nil, fmt.Errorf("app: build configuration: %w", err)
	}

	loggerFactory := b.loggingBuilder.Build()
	logger := loggerFactory.CreateLogger("Application")
	logger.Info("Building application", logging.Field{Key: "environment", Value: b.environment})

	// 配置文件中的 inject 节先生效，代码中的选项覆盖它
	fromConfig, err := config.InjectorOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts := append([]di.Option{di.WithLogger(loggerFactory.CreateLogger("di"))}, fromConfig...)
	opts = append(opts, b.options...)

	env := NewEnvironment(b.environment)
	core := di.ModuleFunc(func(binder *di.Binder) {
		di.Bind[config.Reloadable](binder).ToInstance(cfg)
		di.Bind[logging.LoggerFactory](binder).ToInstance(loggerFactory)
		di.Bind[logging.Logger](binder).ToInstance(logger)
		di.Bind[Environment](binder).ToInstance(env)

		lifecycle := hosting.Of(binder)
		for i, task := range b.tasks {
			key := di.NamedKey[hosting.HostedService](fmt.Sprintf("task-%d", i))
			binder.Bind(key).ToInstance(&functionalService{task: task})
			lifecycle.AddHostedService(key)
		}
	})

	modules := append([]di.Module{config.Module(cfg), core}, b.modules...)
	in, err := di.NewInjectorBuilder(opts...).AddModules(modules...).Build()
	if err != nil {
		return nil, err
	}
	logger.Info("Injector built successfully")

	host, err := hosting.NewHost(in, hosting.WithShutdownTimeout(b.shutdownTimeout))
	if err != nil {
		return nil, err
	}

	return &Application{
		injector:      in,
		configuration: cfg,
		logger:        logger,
		environment:   env,
		host:          host,
	}, nil
}

// Application 已构建的应用程序
type Application struct {
	injector      *di.Injector
	configuration config.Reloadable
	logger        logging.Logger
	environment   Environment
	host          *hosting.Host
}

// Run 启动托管服务并阻塞，直到 ctx 取消、收到退出信号或服务出错
func (a *Application) Run(ctx context.Context) error {
	a.logger.Info("Starting application", logging.Field{Key: "environment", Value: a.environment.Name()})
	err := a.host.Run(ctx)
	a.logger.Info("Application stopped")
	return err
}

// Start 异步启动托管服务，返回服务错误通道
func (a *Application) Start(ctx context.Context) <-chan error {
	return a.host.Start(ctx)
}

// Stop 停止托管服务并执行停止钩子
func (a *Application) Stop(ctx context.Context) error {
	return a.host.Stop(ctx)
}

// Injector 获取注入器
func (a *Application) Injector() *di.Injector {
	return a.injector
}

// Configuration 获取配置
func (a *Application) Configuration() config.Configuration {
	return a.configuration
}

// Logger 获取日志记录器
func (a *Application) Logger() logging.Logger {
	return a.logger
}

// Environment 获取环境
func (a *Application) Environment() Environment {
	return a.environment
}

// GetService 获取服务实例（通过指针参数）
//
// 使用示例：
//
//	var myService *MyService
//	err := app.GetService(&myService)
func (a *Application) GetService(ptr any) error {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("app: GetService argument must be a non-nil pointer, got %T", ptr)
	}
	elem := v.Elem()

	instance, err := a.injector.GetInstance(di.Key{Type: elem.Type()}, nil, false)
	if err != nil {
		return err
	}
	if instance != nil {
		elem.Set(reflect.ValueOf(instance))
	}
	return nil
}

// Environment 环境接口
type Environment interface {
	Name() string
	IsDevelopment() bool
	IsProduction() bool
	IsStaging() bool
}

type environment struct {
	name string
}

// NewEnvironment 创建环境
func NewEnvironment(name string) Environment {
	return &environment{name: name}
}

func (e *environment) Name() string {
	return e.name
}

func (e *environment) IsDevelopment() bool {
	return e.name == "development"
}

func (e *environment) IsProduction() bool {
	return e.name == "production"
}

func (e *environment) IsStaging() bool {
	return e.name == "staging"
}
