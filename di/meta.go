package di

import (
	"fmt"
	"reflect"
	"strings"
)

// Parameter 描述一个注入点：构造参数、字段或 setter 参数。
type Parameter struct {
	Name       string
	Type       reflect.Type
	Alias      string
	Assisted   bool
	Optional   bool
	Default    any
	HasDefault bool

	// Provides 非空时表示注入 Lazy 提供者，值为被提供的类型
	Provides reflect.Type
	lazyPtr  bool
}

// Key 返回参数的解析键：别名 > 声明类型 > 参数名
func (p *Parameter) Key() Key {
	t := p.Type
	if p.Provides != nil {
		t = p.Provides
	}
	if p.Alias != "" {
		return Key{Type: t, Name: p.Alias}
	}
	if t == anyType && p.Name != "" {
		return Key{Type: t, Name: p.Name}
	}
	return Key{Type: t}
}

// IsProvider 报告参数是否请求 Lazy 提供者
func (p *Parameter) IsProvider() bool {
	return p.Provides != nil
}

func (p *Parameter) defaultValue() reflect.Value {
	if p.HasDefault && p.Default != nil {
		return reflect.ValueOf(p.Default)
	}
	return reflect.Zero(p.Type)
}

type fieldPoint struct {
	index int
	param *Parameter
}

type setterPoint struct {
	method string
	params []*Parameter
}

// MetaClass 是一个结构体类型的注入元数据，每个注入器每个类型只计算一次。
type MetaClass struct {
	Type reflect.Type

	ctor       reflect.Value
	ctorPtr    bool
	ctorErr    bool
	ctorParams []*Parameter

	fields  []fieldPoint
	setters []setterPoint
}

// HasConstructor 报告是否声明了可注入构造函数
func (m *MetaClass) HasConstructor() bool {
	return m.ctor.IsValid()
}

// ConstructorParams 返回按声明顺序排列的构造参数
func (m *MetaClass) ConstructorParams() []*Parameter {
	return m.ctorParams
}

// Fields 返回字段名到注入描述的映射
func (m *MetaClass) Fields() map[string]*Parameter {
	out := make(map[string]*Parameter, len(m.fields))
	for _, f := range m.fields {
		out[f.param.Name] = f.param
	}
	return out
}

// Setters 返回 setter 名到参数列表的映射
func (m *MetaClass) Setters() map[string][]*Parameter {
	out := make(map[string][]*Parameter, len(m.setters))
	for _, s := range m.setters {
		out[s.method] = s.params
	}
	return out
}

// extractMeta 计算结构体类型 t 的注入元数据
func extractMeta(t reflect.Type, reg *Registry) (*MetaClass, error) {
	meta := &MetaClass{Type: t}

	if err := meta.extractFields(); err != nil {
		return nil, err
	}

	desc, ok := describe(t, reg)
	if !ok {
		return meta, nil
	}
	if desc.Constructor != nil {
		if err := meta.extractConstructor(desc); err != nil {
			return nil, err
		}
	}
	for _, spec := range desc.Setters {
		if err := meta.extractSetter(spec); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func describe(t reflect.Type, reg *Registry) (Descriptor, bool) {
	if reflect.PointerTo(t).Implements(describerType) {
		return reflect.New(t).Interface().(Describer).InjectionPoints(), true
	}
	if reg != nil {
		if d, ok := reg.Lookup(t); ok {
			return d, true
		}
	}
	return defaultRegistry.Lookup(t)
}

// extractFields 解析 `di:"alias,optional"` 标签；`?` 等价于 optional
func (m *MetaClass) extractFields() error {
	t := m.Type
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tagValue, hasTag := field.Tag.Lookup("di")
		if !hasTag {
			continue
		}

		parts := strings.Split(tagValue, ",")
		alias := strings.TrimSpace(parts[0])
		p := &Parameter{Name: field.Name, Type: field.Type}

		switch alias {
		case "?", "optional":
			alias = ""
			p.Optional = true
		case "assisted":
			return &ConfigError{
				Subject: fmt.Sprintf("%s.%s", t, field.Name),
				Reason:  "assisted injection is only possible on constructors",
			}
		case "singleton", "instance":
			return &ConfigError{
				Subject: fmt.Sprintf("%s.%s", t, field.Name),
				Reason:  fmt.Sprintf("%q is a scope name and cannot be used as an alias", alias),
			}
		}
		p.Alias = alias

		for _, part := range parts[1:] {
			switch strings.TrimSpace(part) {
			case "optional", "?":
				p.Optional = true
			case "assisted":
				return &ConfigError{
					Subject: fmt.Sprintf("%s.%s", t, field.Name),
					Reason:  "assisted injection is only possible on constructors",
				}
			case "":
			default:
				return &ConfigError{
					Subject: fmt.Sprintf("%s.%s", t, field.Name),
					Reason:  fmt.Sprintf("unknown di tag option %q", part),
				}
			}
		}

		if target, ptr, ok := lazyInfo(field.Type); ok {
			p.Provides = target
			p.lazyPtr = ptr
		}
		m.fields = append(m.fields, fieldPoint{index: i, param: p})
	}
	return nil
}

func (m *MetaClass) extractConstructor(desc Descriptor) error {
	subject := fmt.Sprintf("%s constructor", m.Type)
	fn := reflect.ValueOf(desc.Constructor)
	ft := fn.Type()
	if ft.Kind() != reflect.Func {
		return &ConfigError{Subject: subject, Reason: fmt.Sprintf("expected a function, got %s", ft)}
	}
	if ft.IsVariadic() {
		return &ConfigError{Subject: subject, Reason: "variadic constructors are not supported"}
	}

	switch ft.NumOut() {
	case 1:
	case 2:
		if ft.Out(1) != errorType {
			return &ConfigError{Subject: subject, Reason: "second result must be error"}
		}
		m.ctorErr = true
	default:
		return &ConfigError{Subject: subject, Reason: "must return the constructed value and an optional error"}
	}
	switch ft.Out(0) {
	case m.Type:
	case reflect.PointerTo(m.Type):
		m.ctorPtr = true
	default:
		return &ConfigError{Subject: subject, Reason: fmt.Sprintf("returns %s, want %s or *%s", ft.Out(0), m.Type, m.Type)}
	}

	params, err := buildParams(subject, ft, 0, desc.Params, true)
	if err != nil {
		return err
	}
	m.ctor = fn
	m.ctorParams = params
	return nil
}

func (m *MetaClass) extractSetter(spec SetterSpec) error {
	subject := fmt.Sprintf("%s.%s", m.Type, spec.Method)
	method, ok := reflect.PointerTo(m.Type).MethodByName(spec.Method)
	if !ok {
		return &ConfigError{Subject: subject, Reason: "setter method not found"}
	}
	mt := method.Type
	if mt.IsVariadic() {
		return &ConfigError{Subject: subject, Reason: "variadic setters are not supported"}
	}
	if mt.NumOut() > 1 || (mt.NumOut() == 1 && mt.Out(0) != errorType) {
		return &ConfigError{Subject: subject, Reason: "setter may only return an error"}
	}

	// 第 0 个参数是接收者
	params, err := buildParams(subject, mt, 1, spec.Params, false)
	if err != nil {
		return err
	}
	m.setters = append(m.setters, setterPoint{method: spec.Method, params: params})
	return nil
}

func buildParams(subject string, ft reflect.Type, offset int, args []Arg, allowAssisted bool) ([]*Parameter, error) {
	n := ft.NumIn() - offset
	if len(args) != 0 && len(args) != n {
		return nil, &ConfigError{
			Subject: subject,
			Reason:  fmt.Sprintf("declares %d parameters, function takes %d", len(args), n),
		}
	}

	params := make([]*Parameter, n)
	for i := 0; i < n; i++ {
		p := &Parameter{Type: ft.In(i + offset)}
		if len(args) > 0 {
			a := args[i]
			p.Name = a.name
			p.Alias = a.alias
			p.Assisted = a.assisted
			p.Optional = a.optional
			p.Default = a.def
			p.HasDefault = a.hasDefault
		}
		if p.Name == "" {
			p.Name = fmt.Sprintf("arg%d", i)
		}

		if p.Assisted && !allowAssisted {
			return nil, &ConfigError{
				Subject: subject,
				Reason:  fmt.Sprintf("assisted injection not possible for setters (parameter %q)", p.Name),
			}
		}
		if p.HasDefault && p.Default != nil && !reflect.TypeOf(p.Default).AssignableTo(p.Type) {
			return nil, &ConfigError{
				Subject: subject,
				Reason:  fmt.Sprintf("default for %q is %T, not assignable to %s", p.Name, p.Default, p.Type),
			}
		}
		if !p.Assisted {
			if target, ptr, ok := lazyInfo(p.Type); ok {
				p.Provides = target
				p.lazyPtr = ptr
			}
		}
		params[i] = p
	}
	return params, nil
}
