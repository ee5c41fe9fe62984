package di

import (
	"reflect"
	"sync"
)

// Descriptor 以数据形式声明一个类型的构造函数与 setter 注入点。
//
// Constructor 必须是返回 T 或 *T（可附带 error）的函数。
// Params 为空时按参数类型解析全部构造参数；否则必须与参数个数一致。
//
// 示例：
//
//	func (*Car) InjectionPoints() di.Descriptor {
//		return di.Descriptor{
//			Constructor: NewCar,
//			Params: []di.Arg{
//				di.Param("engine"),
//				di.Param("color").Assisted().Default("red"),
//			},
//			Setters: []di.SetterSpec{di.Setter("SetRadio")},
//		}
//	}
type Descriptor struct {
	Constructor any
	Params      []Arg
	Setters     []SetterSpec
}

// Describer 由需要构造函数或 setter 注入的类型实现。
// InjectionPoints 会在该类型的零值上调用，不应依赖字段状态。
type Describer interface {
	InjectionPoints() Descriptor
}

var describerType = TypeOf[Describer]()

// Arg 描述一个构造函数或 setter 参数
type Arg struct {
	name       string
	alias      string
	assisted   bool
	optional   bool
	def        any
	hasDefault bool
}

// Param 创建一个参数描述
func Param(name string) Arg {
	return Arg{name: name}
}

// Named 使用别名解析该参数
func (a Arg) Named(alias string) Arg {
	a.alias = alias
	return a
}

// Assisted 标记该参数由调用方通过辅助参数提供，仅对构造函数有效
func (a Arg) Assisted() Arg {
	a.assisted = true
	return a
}

// Optional 标记该参数可选，无法满足时使用零值
func (a Arg) Optional() Arg {
	a.optional = true
	return a
}

// Default 设置默认值，同时使参数变为可选
func (a Arg) Default(v any) Arg {
	a.def = v
	a.hasDefault = true
	a.optional = true
	return a
}

// SetterSpec 描述一个 setter 注入点
type SetterSpec struct {
	Method string
	Params []Arg
}

// Setter 创建 setter 描述，params 为空时按参数类型解析
func Setter(method string, params ...Arg) SetterSpec {
	return SetterSpec{Method: method, Params: params}
}

// Registry 为无法实现 Describer 的类型（例如第三方类型）登记描述。
type Registry struct {
	mu          sync.RWMutex
	descriptors map[reflect.Type]Descriptor
}

// NewRegistry 创建描述登记表
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[reflect.Type]Descriptor),
	}
}

// Register 登记类型 t 的描述，t 可以是结构体或结构体指针
func (r *Registry) Register(t reflect.Type, d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[structOf(t)] = d
}

// Lookup 查找结构体类型的描述
func (r *Registry) Lookup(t reflect.Type) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[structOf(t)]
	return d, ok
}

// Types 返回所有已登记的结构体类型
func (r *Registry) Types() []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]reflect.Type, 0, len(r.descriptors))
	for t := range r.descriptors {
		types = append(types, t)
	}
	return types
}

var defaultRegistry = NewRegistry()

// Describe 在全局登记表中登记类型 T 的描述
func Describe[T any](d Descriptor) {
	defaultRegistry.Register(TypeOf[T](), d)
}

func structOf(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}
