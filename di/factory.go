package di

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// FactoryProvider 提供辅助注入工厂。
//
// 工厂有两种形式。第一种是由 func 字段组成的结构体，每个字段通过 `factory`
// 标签声明返回键与辅助参数名，运行时用 reflect.MakeFunc 生成实现：
//
//	type CarFactory struct {
//		New func(color string) (*Car, error) `factory:"returns,color"`
//	}
//
// 标签第一项必须是 returns 或 returns=<别名>，其余依次为参数名。
//
// 第二种是接口类型，其实现由 factorygen 在构建期生成并通过 RegisterFactory 登记。
//
// 每次调用工厂方法都只会向注入器发起一次 GetInstance(返回键, 辅助参数)。
// 工厂在第一次 Get 时创建，之后复用。
type FactoryProvider struct {
	injector *Injector `di:""`

	target reflect.Type
	key    Key

	mu      sync.Mutex
	factory any
}

// NewFactoryProvider 为工厂类型 F 创建提供者，F 为结构体、结构体指针或接口
func NewFactoryProvider[F any]() *FactoryProvider {
	return NewFactoryProviderFor(TypeOf[F]())
}

// NewFactoryProviderFor 与 NewFactoryProvider 相同，使用反射类型
func NewFactoryProviderFor(t reflect.Type) *FactoryProvider {
	fp := &FactoryProvider{target: t}
	switch {
	case t.Kind() == reflect.Interface:
		fp.key = Key{Type: t}
	case t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct:
		fp.target = t.Elem()
		fp.key = Key{Type: t}
	default:
		fp.key = Key{Type: reflect.PointerTo(t)}
	}
	return fp
}

// InterfaceKey 返回工厂绑定的键
func (fp *FactoryProvider) InterfaceKey() Key {
	return fp.key
}

// ImplName 返回工厂实现的类型名
func (fp *FactoryProvider) ImplName() string {
	return FactoryImplName(fp.target.Name())
}

// ArtifactName 返回构建期生成的源文件名
func (fp *FactoryProvider) ArtifactName() string {
	return FactoryArtifactName(fp.target.Name())
}

// Get 返回工厂实例，首次调用时创建
func (fp *FactoryProvider) Get() (any, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.factory != nil {
		return fp.factory, nil
	}
	if fp.injector == nil {
		return nil, &ConfigError{Subject: fp.key.String(), Reason: "factory provider is not attached to an injector"}
	}

	var (
		f   any
		err error
	)
	if fp.target.Kind() == reflect.Interface {
		f, err = fp.generated()
	} else {
		f, err = fp.realize()
	}
	if err != nil {
		return nil, err
	}
	fp.injector.logger.Debug(fmt.Sprintf("factory %s realized", fp.ImplName()))
	fp.factory = f
	return f, nil
}

func (fp *FactoryProvider) generated() (any, error) {
	factoryImplsMu.RLock()
	ctor, ok := factoryImpls[fp.target]
	factoryImplsMu.RUnlock()
	if !ok {
		return nil, &ConfigError{
			Subject: fp.target.String(),
			Reason:  fmt.Sprintf("no generated implementation registered, run factorygen to produce %s", fp.ArtifactName()),
		}
	}
	return ctor(fp.injector), nil
}

func (fp *FactoryProvider) realize() (any, error) {
	t := fp.target
	if t.Kind() != reflect.Struct {
		return nil, &ConfigError{Subject: t.String(), Reason: "factory must be a struct of func fields or an interface"}
	}

	ptr := reflect.New(t)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Type.Kind() != reflect.Func {
			continue
		}
		subject := fmt.Sprintf("%s.%s", t, field.Name)
		if !field.IsExported() {
			return nil, &ConfigError{Subject: subject, Reason: "factory methods must be exported"}
		}
		fn, err := fp.method(subject, field)
		if err != nil {
			return nil, err
		}
		ptr.Elem().Field(i).Set(fn)
	}
	return ptr.Interface(), nil
}

type factoryTag struct {
	alias  string
	params []string
}

func parseFactoryTag(subject, tag string) (factoryTag, error) {
	parts := strings.Split(tag, ",")
	head := strings.TrimSpace(parts[0])
	if head != "returns" && !strings.HasPrefix(head, "returns=") {
		return factoryTag{}, &ConfigError{Subject: subject, Reason: "missing return-type declaration in factory interface"}
	}
	ft := factoryTag{alias: strings.TrimPrefix(strings.TrimPrefix(head, "returns"), "=")}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			return factoryTag{}, &ConfigError{Subject: subject, Reason: "empty parameter name in factory tag"}
		}
		ft.params = append(ft.params, p)
	}
	return ft, nil
}

func (fp *FactoryProvider) method(subject string, field reflect.StructField) (reflect.Value, error) {
	tag, err := parseFactoryTag(subject, field.Tag.Get("factory"))
	if err != nil {
		return reflect.Value{}, err
	}

	ft := field.Type
	if ft.IsVariadic() {
		return reflect.Value{}, &ConfigError{Subject: subject, Reason: "variadic factory methods are not supported"}
	}
	if ft.NumIn() != len(tag.params) {
		return reflect.Value{}, &ConfigError{
			Subject: subject,
			Reason:  fmt.Sprintf("declares %d parameter names, method takes %d", len(tag.params), ft.NumIn()),
		}
	}
	hasErr := false
	switch ft.NumOut() {
	case 1:
	case 2:
		if ft.Out(1) != errorType {
			return reflect.Value{}, &ConfigError{Subject: subject, Reason: "second result must be error"}
		}
		hasErr = true
	default:
		return reflect.Value{}, &ConfigError{Subject: subject, Reason: "factory method must return a value and an optional error"}
	}

	retType := ft.Out(0)
	key := Key{Type: retType, Name: tag.alias}
	names := tag.params
	in := fp.injector

	return reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		params := make(Params, len(names))
		for i, name := range names {
			params[name] = args[i].Interface()
		}

		out := reflect.New(retType).Elem()
		v, err := in.GetInstance(key, params, false)
		if err == nil && v != nil {
			out.Set(reflect.ValueOf(v))
		}
		if !hasErr {
			if err != nil {
				panic(err)
			}
			return []reflect.Value{out}
		}
		errOut := reflect.New(errorType).Elem()
		if err != nil {
			errOut.Set(reflect.ValueOf(err))
		}
		return []reflect.Value{out, errOut}
	}), nil
}

var (
	factoryImplsMu sync.RWMutex
	factoryImpls   = make(map[reflect.Type]func(*Injector) any)
)

// RegisterFactory 登记接口工厂 F 的生成实现，通常由生成代码在 init 中调用
func RegisterFactory[F any](ctor func(in *Injector) F) {
	factoryImplsMu.Lock()
	defer factoryImplsMu.Unlock()
	factoryImpls[TypeOf[F]()] = func(in *Injector) any { return ctor(in) }
}

// FactoryImplName 根据工厂接口名得到实现类型名
func FactoryImplName(iface string) string {
	return iface + "Impl"
}

// FactoryArtifactName 根据工厂接口名得到生成文件名
func FactoryArtifactName(iface string) string {
	return strings.ToLower(FactoryImplName(iface)) + "_gen.go"
}
