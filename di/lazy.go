package di

import (
	"fmt"
	"reflect"
)

// Lazy 是 T 的延迟提供者。
//
// 字段或参数声明为 Lazy[T]（或 *Lazy[T]）时，注入器不会立即解析 T，
// 而是注入一个绑定到 (注入器, 键) 的提供者，每次 Get 时才请求实例。
// 可用于打破构造环或推迟昂贵的构造。
type Lazy[T any] struct {
	injector *Injector
	key      Key
}

type lazyBinder interface {
	bindLazy(in *Injector, key Key)
	lazyTarget() reflect.Type
}

var lazyBinderType = TypeOf[lazyBinder]()

func (l *Lazy[T]) bindLazy(in *Injector, key Key) {
	l.injector = in
	l.key = key
}

func (l *Lazy[T]) lazyTarget() reflect.Type {
	return TypeOf[T]()
}

// Bound 报告提供者是否已由注入器绑定
func (l *Lazy[T]) Bound() bool {
	return l != nil && l.injector != nil
}

// Key 返回提供者请求的键
func (l *Lazy[T]) Key() Key {
	return l.key
}

// Get 从注入器获取 T 的实例
func (l *Lazy[T]) Get() (T, error) {
	var zero T
	if !l.Bound() {
		return zero, fmt.Errorf("di: lazy provider for %s is not bound to an injector", TypeOf[T]())
	}
	v, err := l.injector.GetInstance(l.key, nil, false)
	if err != nil {
		return zero, err
	}
	return cast[T](v, l.key)
}

// MustGet 与 Get 相同，失败时 panic
func (l *Lazy[T]) MustGet() T {
	v, err := l.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// lazyInfo 判断 t 是否为 Lazy[X] 或 *Lazy[X]，返回 X
func lazyInfo(t reflect.Type) (target reflect.Type, ptr bool, ok bool) {
	switch {
	case t.Kind() == reflect.Pointer && t.Implements(lazyBinderType):
		lb := reflect.New(t.Elem()).Interface().(lazyBinder)
		return lb.lazyTarget(), true, true
	case t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(lazyBinderType):
		lb := reflect.New(t).Interface().(lazyBinder)
		return lb.lazyTarget(), false, true
	}
	return nil, false, false
}

// newLazy 创建一个绑定到 key 的 t 类型值
func newLazy(t reflect.Type, ptr bool, in *Injector, key Key) reflect.Value {
	if ptr {
		v := reflect.New(t.Elem())
		v.Interface().(lazyBinder).bindLazy(in, key)
		return v
	}
	v := reflect.New(t)
	v.Interface().(lazyBinder).bindLazy(in, key)
	return v.Elem()
}
