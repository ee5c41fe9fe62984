package di

import (
	"errors"
	"reflect"
	"sort"
	"sync"

	"github.com/gocrud/inject/logging"
)

// Binder 保存键到绑定的映射，由模块在 Configure 中填充。
type Binder struct {
	mu       sync.RWMutex
	bindings map[Key]*Binding
	created  []*Binding
	modules  map[any]struct{}
	errs     []error
	depth    int
	logger   logging.Logger
}

// NewBinder 创建绑定表，logger 为 nil 时不输出日志
func NewBinder(logger logging.Logger) *Binder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Binder{
		bindings: make(map[Key]*Binding),
		modules:  make(map[any]struct{}),
		logger:   logger,
	}
}

// Bind 为 key 创建新的绑定并替换已有绑定
func (b *Binder) Bind(key Key) *Binding {
	binding := newBinding(key)
	if key.Type == nil {
		binding.fail("binding key has no type")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.bindings[key]; exists {
		b.logger.Debug("binding replaced", logging.Field{Key: "key", Value: key.String()})
	}
	b.bindings[key] = binding
	b.created = append(b.created, binding)
	return binding
}

// BindingFor 精确查找 key 的绑定
func (b *Binder) BindingFor(key Key) (*Binding, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	binding, ok := b.bindings[key]
	return binding, ok
}

// Keys 返回所有已绑定的键，按字符串表示排序
func (b *Binder) Keys() []Key {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]Key, 0, len(b.bindings))
	for k := range b.bindings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// AddError 记录模块配置期间发现的错误，由外层 Install 返回
func (b *Binder) AddError(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, err)
}

// Install 安装模块。
//
// 同一个模块（指针等引用类型按身份，可比较的值按值）只安装一次。
// 安装过程中记录的所有绑定错误与配置错误会合并后返回。
func (b *Binder) Install(m Module) error {
	if m == nil {
		return &ConfigError{Subject: "module", Reason: "nil module"}
	}

	id, tracked := moduleIdentity(m)
	b.mu.Lock()
	if tracked {
		if _, ok := b.modules[id]; ok {
			b.mu.Unlock()
			return nil
		}
		b.modules[id] = struct{}{}
	}
	b.depth++
	b.mu.Unlock()

	b.logger.Debug("installing module", logging.Field{Key: "module", Value: reflect.TypeOf(m).String()})

	m.Configure(b)
	if err := b.bindProviderMethods(m); err != nil {
		b.AddError(err)
	}

	b.mu.Lock()
	b.depth--
	outermost := b.depth == 0
	b.mu.Unlock()

	// 嵌套安装的错误由最外层 Install 统一返回
	if !outermost {
		return nil
	}
	return b.drainErrors()
}

// InstallFactory 将工厂键绑定到 FactoryProvider
func (b *Binder) InstallFactory(fp *FactoryProvider) *Binding {
	return b.Bind(fp.InterfaceKey()).ToProvider(fp)
}

// drainErrors 收集尚未报告的绑定错误
func (b *Binder) drainErrors() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	errs := b.errs
	b.errs = nil
	for _, binding := range b.created {
		if err := binding.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	b.created = b.created[:0]
	return errors.Join(errs...)
}

type moduleID struct {
	typ reflect.Type
	ptr uintptr
}

// moduleIdentity 函数类型的模块不参与去重：同一字面量的多个闭包共享代码地址
func moduleIdentity(m Module) (any, bool) {
	v := reflect.ValueOf(m)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return moduleID{typ: v.Type(), ptr: v.Pointer()}, true
	case reflect.Func:
		return nil, false
	}
	if v.Type().Comparable() {
		return m, true
	}
	return nil, false
}

// Bind 为类型 T 创建绑定
func Bind[T any](b *Binder) *Binding {
	return b.Bind(KeyOf[T]())
}

// BindNamed 为类型 T 的别名创建绑定
func BindNamed[T any](b *Binder, name string) *Binding {
	return b.Bind(NamedKey[T](name))
}
