package di

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Provider 按需提供一个实例。
//
// 绑定到 Provider 的对象在第一次 Get 之前由所属注入器执行一次成员注入，
// 因此 Provider 可以通过 `di` 标签拿到 *Injector 或其他依赖。
type Provider interface {
	Get() (any, error)
}

// requestProvider 由需要参与本次解析（共享循环检测栈）的内部提供者实现
type requestProvider interface {
	provide(req *Request) (any, error)
}

// ProviderFunc 以注入器为参数的提供函数。
type ProviderFunc func(in *Injector) (any, error)

type strategy int

const (
	strategyDefault strategy = iota
	strategyImplementation
	strategyProvider
	strategyProviderFunc
	strategyInstance
)

func (s strategy) String() string {
	switch s {
	case strategyImplementation:
		return "implementation"
	case strategyProvider:
		return "provider"
	case strategyProviderFunc:
		return "provider func"
	case strategyInstance:
		return "instance"
	default:
		return "default"
	}
}

// Binding 描述一个 Key 如何被满足。
//
// 同一时刻只有一种策略生效：实现类型重定向、Provider、实例或默认构造。
// 重复设置策略会记录 BindingError，由 Binder.Install 统一返回。
type Binding struct {
	key Key

	kind         strategy
	impl         Key
	provider     Provider
	providerFunc ProviderFunc
	instance     any

	scopeKind ScopeKind
	scope     Scope

	// 提供者对象只注入一次，之后的 Get 可以并发读取其字段
	providerMu       sync.Mutex
	providerInjector *Injector

	errs []error
}

func newBinding(key Key) *Binding {
	return &Binding{key: key, scopeKind: ScopeInstance}
}

// Key 返回绑定的键
func (b *Binding) Key() Key { return b.key }

// ScopeKind 返回内置作用域类型；使用 InScope 设置自定义作用域时该值无意义
func (b *Binding) ScopeKind() ScopeKind { return b.scopeKind }

// Err 返回声明绑定过程中记录的错误
func (b *Binding) Err() error {
	return errors.Join(b.errs...)
}

func (b *Binding) fail(format string, args ...any) {
	b.errs = append(b.errs, &BindingError{Key: b.key, Reason: fmt.Sprintf(format, args...)})
}

func (b *Binding) setStrategy(kind strategy) bool {
	if b.kind != strategyDefault {
		b.fail("already bound to %s, cannot also bind to %s", b.kind, kind)
		return false
	}
	b.kind = kind
	return true
}

// To 将绑定重定向到另一个键，解析时以相同的辅助参数请求目标键
func (b *Binding) To(impl Key) *Binding {
	if impl == b.key {
		b.fail("cannot bind a key to itself")
		return b
	}
	if impl.Type == nil {
		b.fail("implementation type is nil")
		return b
	}
	if b.key.Type != nil && !impl.Type.AssignableTo(b.key.Type) {
		b.fail("%s is not assignable to %s", impl.Type, b.key.Type)
		return b
	}
	if b.setStrategy(strategyImplementation) {
		b.impl = impl
	}
	return b
}

// ToInstance 绑定到一个已存在的实例
func (b *Binding) ToInstance(v any) *Binding {
	if v != nil && b.key.Type != nil && !reflect.TypeOf(v).AssignableTo(b.key.Type) {
		b.fail("instance of %T is not assignable to %s", v, b.key.Type)
		return b
	}
	if b.setStrategy(strategyInstance) {
		b.instance = v
	}
	return b
}

// Instance 返回 ToInstance 绑定的实例
func (b *Binding) Instance() (any, bool) {
	if b.kind != strategyInstance {
		return nil, false
	}
	return b.instance, true
}

// ToProvider 绑定到 Provider 对象
func (b *Binding) ToProvider(p Provider) *Binding {
	if p == nil {
		b.fail("provider is nil")
		return b
	}
	if b.setStrategy(strategyProvider) {
		b.provider = p
	}
	return b
}

// ToProviderFunc 绑定到提供函数
func (b *Binding) ToProviderFunc(fn ProviderFunc) *Binding {
	if fn == nil {
		b.fail("provider func is nil")
		return b
	}
	if b.setStrategy(strategyProviderFunc) {
		b.providerFunc = fn
	}
	return b
}

// In 设置内置作用域
func (b *Binding) In(kind ScopeKind) *Binding {
	if _, ok := scopeTable[kind]; !ok {
		b.errs = append(b.errs, &InvalidScopeError{Name: kind.String()})
		return b
	}
	b.scopeKind = kind
	b.scope = nil
	return b
}

// InScope 设置自定义作用域实例
func (b *Binding) InScope(s Scope) *Binding {
	if s == nil {
		b.errs = append(b.errs, &InvalidScopeError{Name: "<nil>"})
		return b
	}
	b.scope = s
	return b
}

// AsSingleton 等价于 In(ScopeSingleton)
func (b *Binding) AsSingleton() *Binding {
	return b.In(ScopeSingleton)
}

// GetDependency 通过作用域获取依赖
func (b *Binding) GetDependency(req *Request) (any, error) {
	scope := b.scope
	if scope == nil {
		var err error
		if scope, err = req.injector.scopeFor(b.scopeKind); err != nil {
			return nil, err
		}
	}
	return scope.Get(b, req)
}

// CreateDependency 按当前策略创建依赖，只应由 Scope 调用
func (b *Binding) CreateDependency(req *Request) (any, error) {
	in := req.injector
	switch b.kind {
	case strategyImplementation:
		return in.resolve(b.impl, req.Params, req.Optional, req.stack)

	case strategyProvider:
		if rp, ok := b.provider.(requestProvider); ok {
			return rp.provide(req)
		}
		if err := b.injectProvider(in, req.stack); err != nil {
			return nil, &ResolutionError{Key: b.key, Reason: "inject provider", Err: err}
		}
		v, err := b.provider.Get()
		if err != nil {
			return nil, &ResolutionError{Key: b.key, Reason: "provider failed", Err: err}
		}
		return v, nil

	case strategyProviderFunc:
		v, err := b.providerFunc(in)
		if err != nil {
			return nil, &ResolutionError{Key: b.key, Reason: "provider func failed", Err: err}
		}
		return v, nil

	case strategyInstance:
		return b.instance, nil

	default:
		return in.instantiate(b.key, req.Params, req.Optional, req.stack)
	}
}

func (b *Binding) injectProvider(in *Injector, stack *resolveStack) error {
	b.providerMu.Lock()
	defer b.providerMu.Unlock()
	if b.providerInjector == in {
		return nil
	}
	if err := in.injectMembers(reflect.ValueOf(b.provider), stack); err != nil {
		return err
	}
	b.providerInjector = in
	return nil
}
