package di

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/gocrud/inject/logging"
)

// Request 描述一次对绑定的请求，由 Scope 传回 Binding.CreateDependency。
type Request struct {
	Key      Key
	Params   Params
	Optional bool

	injector *Injector
	stack    *resolveStack
}

// Injector 返回处理该请求的注入器
func (r *Request) Injector() *Injector {
	return r.injector
}

// resolveStack 记录正在构造的键，用于发现循环依赖
type resolveStack struct {
	keys []Key
}

func (s *resolveStack) push(k Key) error {
	for i, existing := range s.keys {
		if existing == k {
			path := make([]Key, 0, len(s.keys)-i+1)
			path = append(path, s.keys[i:]...)
			path = append(path, k)
			return &CycleError{Path: path}
		}
	}
	s.keys = append(s.keys, k)
	return nil
}

func (s *resolveStack) pop() {
	s.keys = s.keys[:len(s.keys)-1]
}

type metaEntry struct {
	meta *MetaClass
	err  error
}

// Injector 根据 Binder 中的绑定构造对象图。
//
// 未绑定的结构体（或结构体指针）会被自动构造；
// 请求 *Injector 时返回注入器自身。
type Injector struct {
	binder   *Binder
	parent   *Injector
	registry *Registry
	logger   logging.Logger
	opts     options

	mu     sync.Mutex
	scopes map[ScopeKind]Scope
	metas  map[reflect.Type]*metaEntry
}

func newInjector(binder *Binder, o options) *Injector {
	return &Injector{
		binder:   binder,
		registry: o.registry,
		logger:   o.logger,
		opts:     o,
		scopes:   make(map[ScopeKind]Scope),
		metas:    make(map[reflect.Type]*metaEntry),
	}
}

// Binder 返回注入器使用的绑定表
func (in *Injector) Binder() *Binder {
	return in.binder
}

// Parent 返回父注入器，根注入器返回 nil
func (in *Injector) Parent() *Injector {
	return in.parent
}

// Logger 返回注入器的日志记录器
func (in *Injector) Logger() logging.Logger {
	return in.logger
}

// GetInstance 获取 key 对应的实例。
//
// 有绑定时交给绑定的作用域处理，否则走自动构造。
// optional 为 true 时，无法找到绑定的依赖返回 (nil, nil)。
func (in *Injector) GetInstance(key Key, params Params, optional bool) (any, error) {
	return in.resolve(key, params, optional, &resolveStack{})
}

// CreateInstance 跳过绑定表直接构造 key 的类型
func (in *Injector) CreateInstance(key Key, params Params, optional bool) (any, error) {
	return in.createInstance(key, params, optional, &resolveStack{})
}

// InjectMembers 对已存在的结构体指针执行字段与 setter 注入
func (in *Injector) InjectMembers(obj any) error {
	v := reflect.ValueOf(obj)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return &ConfigError{Subject: fmt.Sprintf("%T", obj), Reason: "InjectMembers requires a non-nil pointer to struct"}
	}
	return in.injectMembers(v, &resolveStack{})
}

// MetaClassFor 返回结构体类型 t 的注入元数据，元数据错误在此时即返回
func (in *Injector) MetaClassFor(t reflect.Type) (*MetaClass, error) {
	t = structOf(t)
	if t.Kind() != reflect.Struct {
		return nil, &ConfigError{Subject: t.String(), Reason: "not a struct type"}
	}
	return in.metaFor(t)
}

// Child 创建子注入器。
//
// 子注入器可以看到父注入器的绑定；父注入器中绑定的键由父注入器创建，
// 因此其单例在父子之间共享。未绑定的类型由子注入器自行构造。
func (in *Injector) Child(modules ...Module) (*Injector, error) {
	binder := NewBinder(in.logger)
	for _, m := range modules {
		if err := binder.Install(m); err != nil {
			return nil, err
		}
	}
	child := newInjector(binder, in.opts)
	child.parent = in
	return child, nil
}

func (in *Injector) scopeFor(kind ScopeKind) (Scope, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if s, ok := in.scopes[kind]; ok {
		return s, nil
	}
	s, err := newScope(kind)
	if err != nil {
		return nil, err
	}
	in.scopes[kind] = s
	return s, nil
}

func (in *Injector) metaFor(t reflect.Type) (*MetaClass, error) {
	in.mu.Lock()
	entry, ok := in.metas[t]
	in.mu.Unlock()
	if ok {
		return entry.meta, entry.err
	}

	meta, err := extractMeta(t, in.registry)

	in.mu.Lock()
	defer in.mu.Unlock()
	if existing, ok := in.metas[t]; ok {
		return existing.meta, existing.err
	}
	in.metas[t] = &metaEntry{meta: meta, err: err}
	return meta, err
}

func (in *Injector) bound(key Key) (*Injector, *Binding, bool) {
	for cur := in; cur != nil; cur = cur.parent {
		if b, ok := cur.binder.BindingFor(key); ok {
			return cur, b, true
		}
	}
	return nil, nil, false
}

func (in *Injector) resolve(key Key, params Params, optional bool, stack *resolveStack) (any, error) {
	if key.Type == injectorType && key.Name == "" {
		return in, nil
	}

	owner, b, ok := in.bound(key)
	if !ok {
		return in.createInstance(key, params, optional, stack)
	}
	// Build 之后追加的绑定不会经过 Install 的错误汇总
	if err := b.Err(); err != nil {
		return nil, &ResolutionError{Key: key, Reason: "invalid binding", Err: err}
	}

	if err := stack.push(key); err != nil {
		return nil, err
	}
	defer stack.pop()

	in.logger.Trace("resolve binding", logging.Field{Key: "key", Value: key.String()})
	v, err := b.GetDependency(&Request{
		Key:      key,
		Params:   params,
		Optional: optional,
		injector: owner,
		stack:    stack,
	})
	if err != nil {
		return nil, err
	}
	if v != nil && !reflect.TypeOf(v).AssignableTo(key.Type) {
		return nil, &ResolutionError{Key: key, Reason: fmt.Sprintf("binding produced %T", v)}
	}
	return v, nil
}

func (in *Injector) createInstance(key Key, params Params, optional bool, stack *resolveStack) (any, error) {
	if err := stack.push(key); err != nil {
		return nil, err
	}
	defer stack.pop()
	return in.instantiate(key, params, optional, stack)
}

// constructible 只有无别名的结构体或结构体指针可以被自动构造
func constructible(key Key) (reflect.Type, bool) {
	if key.Name != "" || key.Type == nil {
		return nil, false
	}
	t := key.Type
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, false
	}
	return t, true
}

// instantiate 构造 key 的类型并执行成员注入，失败时不返回任何部分构造的对象
func (in *Injector) instantiate(key Key, params Params, optional bool, stack *resolveStack) (any, error) {
	t, ok := constructible(key)
	if !ok {
		if optional {
			return nil, nil
		}
		return nil, &ResolutionError{Key: key, Reason: "no binding found"}
	}

	meta, err := in.metaFor(t)
	if err != nil {
		return nil, err
	}

	var ptr reflect.Value
	if meta.HasConstructor() {
		if ptr, err = in.construct(meta, params, stack); err != nil {
			return nil, err
		}
	} else {
		// 没有构造函数时辅助参数无处可用，直接忽略
		ptr = reflect.New(t)
	}

	if target, isPtr, ok := lazyInfo(t); ok && !isPtr {
		ptr.Interface().(lazyBinder).bindLazy(in, Key{Type: target})
	}

	if err := in.injectPoints(meta, ptr, stack); err != nil {
		return nil, err
	}

	in.logger.Trace("instance created", logging.Field{Key: "type", Value: key.Type.String()})
	if key.Type.Kind() == reflect.Pointer {
		return ptr.Interface(), nil
	}
	return ptr.Elem().Interface(), nil
}

func (in *Injector) construct(meta *MetaClass, params Params, stack *resolveStack) (reflect.Value, error) {
	owner := Key{Type: reflect.PointerTo(meta.Type)}
	args := make([]reflect.Value, len(meta.ctorParams))
	for i, p := range meta.ctorParams {
		if p.Assisted {
			v, ok := params[p.Name]
			if !ok {
				if !p.Optional {
					return reflect.Value{}, &ResolutionError{
						Key:    owner,
						Reason: fmt.Sprintf("missing assisted parameter %q", p.Name),
					}
				}
				args[i] = p.defaultValue()
				continue
			}
			arg, err := assignable(p, v)
			if err != nil {
				return reflect.Value{}, &ResolutionError{Key: owner, Reason: err.Error()}
			}
			args[i] = arg
			continue
		}

		arg, err := in.resolveParam(p, stack)
		if err != nil {
			return reflect.Value{}, &ResolutionError{
				Key:    owner,
				Reason: fmt.Sprintf("constructor parameter %q", p.Name),
				Err:    err,
			}
		}
		if !arg.IsValid() {
			arg = p.defaultValue()
		}
		args[i] = arg
	}

	out := meta.ctor.Call(args)
	if meta.ctorErr && !out[1].IsNil() {
		return reflect.Value{}, &ResolutionError{
			Key:    owner,
			Reason: "constructor failed",
			Err:    out[1].Interface().(error),
		}
	}

	if meta.ctorPtr {
		if out[0].IsNil() {
			return reflect.Value{}, &ResolutionError{Key: owner, Reason: "constructor returned nil"}
		}
		return out[0], nil
	}
	ptr := reflect.New(meta.Type)
	ptr.Elem().Set(out[0])
	return ptr, nil
}

func assignable(p *Parameter, v any) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(p.Type), nil
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(p.Type) {
		return reflect.Value{}, fmt.Errorf("assisted parameter %q: %T is not assignable to %s", p.Name, v, p.Type)
	}
	return rv, nil
}

// resolveParam 解析非辅助参数；返回无效 Value 表示可选依赖未满足
func (in *Injector) resolveParam(p *Parameter, stack *resolveStack) (reflect.Value, error) {
	if p.Provides != nil {
		return newLazy(p.Type, p.lazyPtr, in, p.Key()), nil
	}

	v, err := in.resolve(p.Key(), nil, p.Optional, stack)
	if err != nil {
		return reflect.Value{}, err
	}
	if v == nil {
		if p.HasDefault {
			return p.defaultValue(), nil
		}
		return reflect.Value{}, nil
	}
	rv := reflect.New(p.Type).Elem()
	rv.Set(reflect.ValueOf(v))
	return rv, nil
}

// injectMembers 对任意值执行成员注入，非结构体指针直接忽略
func (in *Injector) injectMembers(v reflect.Value, stack *resolveStack) error {
	for v.IsValid() && v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	meta, err := in.metaFor(v.Elem().Type())
	if err != nil {
		return err
	}
	return in.injectPoints(meta, v, stack)
}

func (in *Injector) injectPoints(meta *MetaClass, ptr reflect.Value, stack *resolveStack) error {
	elem := ptr.Elem()
	for _, f := range meta.fields {
		val, err := in.resolveParam(f.param, stack)
		if err != nil {
			return &ResolutionError{
				Key:    Key{Type: ptr.Type()},
				Reason: fmt.Sprintf("field %s", f.param.Name),
				Err:    err,
			}
		}
		if !val.IsValid() {
			// 可选字段保留当前值
			continue
		}
		settable(elem.Field(f.index)).Set(val)
	}

	for _, s := range meta.setters {
		args := make([]reflect.Value, len(s.params))
		for i, p := range s.params {
			arg, err := in.resolveParam(p, stack)
			if err != nil {
				return &ResolutionError{
					Key:    Key{Type: ptr.Type()},
					Reason: fmt.Sprintf("setter %s parameter %q", s.method, p.Name),
					Err:    err,
				}
			}
			if !arg.IsValid() {
				arg = p.defaultValue()
			}
			args[i] = arg
		}
		out := ptr.MethodByName(s.method).Call(args)
		if len(out) == 1 && !out[0].IsNil() {
			return &ResolutionError{
				Key:    Key{Type: ptr.Type()},
				Reason: fmt.Sprintf("setter %s failed", s.method),
				Err:    out[0].Interface().(error),
			}
		}
	}
	return nil
}

// settable 允许写入未导出字段
func settable(f reflect.Value) reflect.Value {
	if f.CanSet() {
		return f
	}
	return reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem()
}
