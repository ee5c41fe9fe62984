package cron

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/hosting"
	"github.com/robfig/cron/v3"
)

// Job 可由注入器构造的任务，每次触发时重新解析
type Job interface {
	Run(ctx context.Context) error
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Builder Cron 配置构建器
type Builder struct {
	enableSeconds    bool
	enableCronLogger bool
	location         string
	jobs             []jobDefinition
}

// jobDefinition 任务定义，handler 与 key 二选一
type jobDefinition struct {
	spec    string
	name    string
	handler any
	key     di.Key
}

// NewBuilder 创建 Cron 构建器
func NewBuilder() *Builder {
	return &Builder{
		location: "UTC",
		jobs:     make([]jobDefinition, 0),
	}
}

// WithSeconds 启用秒级精度
func (b *Builder) WithSeconds() *Builder {
	b.enableSeconds = true
	return b
}

// WithLocation 设置时区
func (b *Builder) WithLocation(location string) *Builder {
	b.location = location
	return b
}

// EnableCronLogger 启用 cron 库的内部调度日志
func (b *Builder) EnableCronLogger() *Builder {
	b.enableCronLogger = true
	return b
}

// AddJob 添加任务。handler 是任意函数，每次触发时从注入器解析参数，
// context.Context 参数接收服务的上下文；可以返回一个 error。
//
//	b.AddJob("0 */5 * * * *", "sync-data", func(ctx context.Context, svc *DataService) error {
//	    return svc.Sync(ctx)
//	})
func (b *Builder) AddJob(spec, name string, handler any) *Builder {
	b.jobs = append(b.jobs, jobDefinition{spec: spec, name: name, handler: handler})
	return b
}

// AddJobType 添加任务，每次触发时从注入器解析 T 并调用 Run
func AddJobType[T Job](b *Builder, spec, name string) *Builder {
	b.jobs = append(b.jobs, jobDefinition{spec: spec, name: name, key: di.KeyOf[T]()})
	return b
}

func (b *Builder) parser() cron.Parser {
	fields := cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor
	if b.enableSeconds {
		fields |= cron.Second
	}
	return cron.NewParser(fields)
}

// validate 在配置阶段检查表达式与处理函数
func (b *Builder) validate() error {
	var errs []error
	if _, err := time.LoadLocation(b.location); err != nil {
		errs = append(errs, fmt.Errorf("cron location %q: %w", b.location, err))
	}
	parser := b.parser()
	seen := make(map[string]struct{}, len(b.jobs))
	for _, job := range b.jobs {
		if _, dup := seen[job.name]; dup {
			errs = append(errs, fmt.Errorf("cron job '%s' already registered", job.name))
		}
		seen[job.name] = struct{}{}
		if _, err := parser.Parse(job.spec); err != nil {
			errs = append(errs, fmt.Errorf("cron job '%s': invalid spec %q: %w", job.name, job.spec, err))
		}
		if job.handler != nil {
			if err := checkHandler(job.handler); err != nil {
				errs = append(errs, fmt.Errorf("cron job '%s': %w", job.name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func checkHandler(handler any) error {
	ht := reflect.TypeOf(handler)
	if ht.Kind() != reflect.Func {
		return fmt.Errorf("handler must be a function, got %v", ht.Kind())
	}
	if ht.IsVariadic() {
		return fmt.Errorf("handler must not be variadic")
	}
	switch {
	case ht.NumOut() == 0:
	case ht.NumOut() == 1 && ht.Out(0) == errorType:
	default:
		return fmt.Errorf("handler may only return an error")
	}
	return nil
}

// build 创建服务并注册所有任务
func (b *Builder) build(in *di.Injector) (*Service, error) {
	loc, err := time.LoadLocation(b.location)
	if err != nil {
		return nil, err
	}
	logger := in.Logger().WithCategory("cron")

	opts := []cron.Option{cron.WithLocation(loc), cron.WithParser(b.parser())}
	if b.enableCronLogger {
		opts = append(opts, cron.WithLogger(newCronLogger(logger)))
	}
	svc := newService(logger, opts...)

	for _, job := range b.jobs {
		run := resolveJob(in, job.key)
		if job.handler != nil {
			run = wrapHandler(in, job.handler)
		}
		if err := svc.addJob(job.spec, job.name, run); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

func resolveJob(in *di.Injector, key di.Key) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		v, err := in.GetInstance(key, nil, false)
		if err != nil {
			return err
		}
		return v.(Job).Run(ctx)
	}
}

// wrapHandler 包装处理器，每次调用时注入依赖
func wrapHandler(in *di.Injector, handler any) func(ctx context.Context) error {
	hv := reflect.ValueOf(handler)
	ht := hv.Type()

	return func(ctx context.Context) error {
		args := make([]reflect.Value, ht.NumIn())
		for i := range args {
			pt := ht.In(i)
			if pt == contextType {
				args[i] = reflect.ValueOf(ctx)
				continue
			}
			v, err := in.GetInstance(di.Key{Type: pt}, nil, false)
			if err != nil {
				return fmt.Errorf("resolve parameter %d (%v): %w", i, pt, err)
			}
			arg := reflect.New(pt).Elem()
			if v != nil {
				arg.Set(reflect.ValueOf(v))
			}
			args[i] = arg
		}

		out := hv.Call(args)
		if len(out) == 1 && !out[0].IsNil() {
			return out[0].Interface().(error)
		}
		return nil
	}
}

type module struct {
	options func(*Builder)
}

// Module 返回 Cron 模块，*Service 以单例绑定并注册为托管服务
func Module(options func(*Builder)) di.Module {
	return &module{options: options}
}

func (m *module) Configure(b *di.Binder) {
	builder := NewBuilder()
	if m.options != nil {
		m.options(builder)
	}
	if err := builder.validate(); err != nil {
		b.AddError(err)
		return
	}

	di.Bind[*Service](b).ToProviderFunc(func(in *di.Injector) (any, error) {
		svc, err := builder.build(in)
		if err != nil {
			return nil, err
		}
		return svc, nil
	}).AsSingleton()
	hosting.AddHostedService[*Service](b)
}
