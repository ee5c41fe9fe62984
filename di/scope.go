package di

import (
	"strings"
	"sync"
)

// Scope 决定一个绑定在何时复用已有实例、何时创建新实例。
//
// 自定义作用域通过 Binding.InScope 接入，内部通常委托给 Binding.CreateDependency。
type Scope interface {
	Get(b *Binding, req *Request) (any, error)
}

// ScopeKind 内置作用域的枚举。
type ScopeKind int

const (
	// ScopeInstance 每次请求创建一个新实例（默认）。
	ScopeInstance ScopeKind = iota
	// ScopeSingleton 每个注入器、每组辅助参数只创建一个实例。
	ScopeSingleton
)

// scopeTable 内置作用域到构造函数的静态映射
var scopeTable = map[ScopeKind]func() Scope{
	ScopeInstance:  func() Scope { return InstanceScope{} },
	ScopeSingleton: func() Scope { return NewSingletonScope() },
}

var scopeNames = map[string]ScopeKind{
	"instance":  ScopeInstance,
	"transient": ScopeInstance,
	"singleton": ScopeSingleton,
}

func (k ScopeKind) String() string {
	switch k {
	case ScopeInstance:
		return "instance"
	case ScopeSingleton:
		return "singleton"
	default:
		return "unknown"
	}
}

// ParseScope 将配置中的作用域名称转换为 ScopeKind
func ParseScope(name string) (ScopeKind, error) {
	kind, ok := scopeNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, &InvalidScopeError{Name: name}
	}
	return kind, nil
}

func newScope(kind ScopeKind) (Scope, error) {
	ctor, ok := scopeTable[kind]
	if !ok {
		return nil, &InvalidScopeError{Name: kind.String()}
	}
	return ctor(), nil
}

// InstanceScope 不做任何缓存。
type InstanceScope struct{}

func (InstanceScope) Get(b *Binding, req *Request) (any, error) {
	return b.CreateDependency(req)
}

type singletonKey struct {
	binding *Binding
	params  uint64
}

// SingletonScope 按 (绑定, 辅助参数哈希) 缓存实例，缓存从不淘汰。
type SingletonScope struct {
	mu        sync.Mutex
	instances map[singletonKey]any
}

// NewSingletonScope 创建单例作用域
func NewSingletonScope() *SingletonScope {
	return &SingletonScope{
		instances: make(map[singletonKey]any),
	}
}

func (s *SingletonScope) Get(b *Binding, req *Request) (any, error) {
	key := singletonKey{binding: b, params: HashParams(req.Params)}

	s.mu.Lock()
	if inst, ok := s.instances[key]; ok {
		s.mu.Unlock()
		return inst, nil
	}
	s.mu.Unlock()

	// 创建期间不持锁：单例之间可能相互依赖
	inst, err := b.CreateDependency(req)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		// 可选依赖未满足时不缓存，后续绑定变化仍可生效
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.instances[key]; ok {
		return existing, nil
	}
	s.instances[key] = inst
	return inst, nil
}

// Len 返回已缓存的实例数量
func (s *SingletonScope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}
