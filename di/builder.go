package di

import (
	"errors"
	"fmt"

	"github.com/gocrud/inject/logging"
)

type options struct {
	logger   logging.Logger
	registry *Registry
	strict   bool
}

// Option 注入器构建选项
type Option func(*options)

// WithLogger 设置注入器日志，默认不输出
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistry 使用额外的描述登记表，优先于全局登记表
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithStrict 构建时立即校验登记表中所有类型的元数据
func WithStrict() Option {
	return func(o *options) {
		o.strict = true
	}
}

// InjectorBuilder 收集模块并构建注入器
type InjectorBuilder struct {
	modules []Module
	opts    []Option
}

// NewInjectorBuilder 创建注入器构建器
func NewInjectorBuilder(opts ...Option) *InjectorBuilder {
	return &InjectorBuilder{
		modules: make([]Module, 0),
		opts:    opts,
	}
}

// AddModules 添加模块，按添加顺序安装
func (b *InjectorBuilder) AddModules(modules ...Module) *InjectorBuilder {
	b.modules = append(b.modules, modules...)
	return b
}

// WithOptions 追加构建选项
func (b *InjectorBuilder) WithOptions(opts ...Option) *InjectorBuilder {
	b.opts = append(b.opts, opts...)
	return b
}

// Build 安装所有模块并创建注入器
func (b *InjectorBuilder) Build() (*Injector, error) {
	o := options{logger: logging.Nop()}
	for _, opt := range b.opts {
		opt(&o)
	}

	binder := NewBinder(o.logger)
	var errs []error
	for _, m := range b.modules {
		if err := binder.Install(m); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("di: install modules: %w", errors.Join(errs...))
	}

	in := newInjector(binder, o)
	if o.strict {
		if err := in.validateRegistries(); err != nil {
			return nil, err
		}
	}

	o.logger.Info("injector built",
		logging.Field{Key: "modules", Value: len(b.modules)},
		logging.Field{Key: "bindings", Value: len(binder.Keys())})
	return in, nil
}

// New 是 NewInjectorBuilder().AddModules(modules...).Build() 的简写
func New(modules ...Module) (*Injector, error) {
	return NewInjectorBuilder().AddModules(modules...).Build()
}

func (in *Injector) validateRegistries() error {
	var errs []error
	for _, reg := range []*Registry{in.registry, defaultRegistry} {
		if reg == nil {
			continue
		}
		for _, t := range reg.Types() {
			if _, err := in.MetaClassFor(t); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
