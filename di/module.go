package di

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gocrud/inject/logging"
)

// Module 向 Binder 声明一组绑定。
//
// 除 Configure 外，模块上所有以 Provide 开头的导出方法都会被当作提供方法：
// 以第一个返回值类型为键绑定，方法参数由注入器解析，
// 可选的第二个返回值必须是 error。
//
// 模块可以实现 BindingTags 为提供方法附加别名与作用域，语法与 `di` 标签一致：
//
//	func (m *CarModule) BindingTags() map[string]string {
//		return map[string]string{
//			"ProvideEngine": "v8,singleton",
//		}
//	}
type Module interface {
	Configure(b *Binder)
}

// ModuleFunc 将函数适配为 Module
type ModuleFunc func(b *Binder)

func (f ModuleFunc) Configure(b *Binder) { f(b) }

// BindingTagger 为提供方法声明别名与作用域
type BindingTagger interface {
	BindingTags() map[string]string
}

const providerPrefix = "Provide"

func (b *Binder) bindProviderMethods(m Module) error {
	v := reflect.ValueOf(m)
	t := v.Type()

	var tags map[string]string
	if tagger, ok := m.(BindingTagger); ok {
		tags = tagger.BindingTags()
	}

	var errs []error
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		if !strings.HasPrefix(method.Name, providerPrefix) {
			continue
		}
		subject := fmt.Sprintf("%s.%s", t, method.Name)

		pm, err := newProviderMethod(subject, v.Method(i))
		if err != nil {
			errs = append(errs, err)
			continue
		}

		alias, scope, err := parseBindingTag(tags[method.Name])
		if err != nil {
			errs = append(errs, &ConfigError{Subject: subject, Reason: "binding tag", Err: err})
			continue
		}

		binding := b.Bind(Key{Type: pm.returns, Name: alias}).ToProvider(pm)
		if scope != nil {
			binding.In(*scope)
		}
		b.logger.Debug("provider method bound",
			logging.Field{Key: "method", Value: subject},
			logging.Field{Key: "key", Value: binding.Key().String()})
	}

	return errors.Join(errs...)
}

// parseBindingTag 解析 "alias,singleton" 形式的标签
func parseBindingTag(tag string) (string, *ScopeKind, error) {
	var alias string
	var scope *ScopeKind
	for i, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if kind, err := ParseScope(part); err == nil {
			scope = &kind
			continue
		}
		if i != 0 {
			return "", nil, &InvalidScopeError{Name: part}
		}
		alias = part
	}
	return alias, scope, nil
}

// providerMethod 调用模块上的提供方法
type providerMethod struct {
	fn      reflect.Value
	returns reflect.Type
	hasErr  bool
	params  []*Parameter
}

func newProviderMethod(subject string, fn reflect.Value) (*providerMethod, error) {
	ft := fn.Type()
	if ft.IsVariadic() {
		return nil, &ConfigError{Subject: subject, Reason: "variadic provider methods are not supported"}
	}
	pm := &providerMethod{fn: fn}
	switch ft.NumOut() {
	case 1:
	case 2:
		if ft.Out(1) != errorType {
			return nil, &ConfigError{Subject: subject, Reason: "second result must be error"}
		}
		pm.hasErr = true
	default:
		return nil, &ConfigError{Subject: subject, Reason: "provider method must return a value and an optional error"}
	}
	pm.returns = ft.Out(0)

	params, err := buildParams(subject, ft, 0, nil, false)
	if err != nil {
		return nil, err
	}
	pm.params = params
	return pm, nil
}

// Get 在没有注入器上下文时无法解析参数，只支持无参方法
func (pm *providerMethod) Get() (any, error) {
	if len(pm.params) > 0 {
		return nil, fmt.Errorf("di: provider method with parameters requires an injector")
	}
	return pm.call(nil)
}

func (pm *providerMethod) provide(req *Request) (any, error) {
	args := make([]reflect.Value, len(pm.params))
	for i, p := range pm.params {
		arg, err := req.injector.resolveParam(p, req.stack)
		if err != nil {
			return nil, &ResolutionError{Key: req.Key, Reason: fmt.Sprintf("provider parameter %d", i), Err: err}
		}
		if !arg.IsValid() {
			arg = p.defaultValue()
		}
		args[i] = arg
	}
	v, err := pm.call(args)
	if err != nil {
		return nil, &ResolutionError{Key: req.Key, Reason: "provider method failed", Err: err}
	}
	return v, nil
}

func (pm *providerMethod) call(args []reflect.Value) (any, error) {
	out := pm.fn.Call(args)
	if pm.hasErr && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}
