package di

import (
	"fmt"
)

// Get 从注入器获取类型 T 的实例
func Get[T any](in *Injector) (T, error) {
	return GetNamed[T](in, "")
}

// GetNamed 获取类型 T 指定别名的实例
func GetNamed[T any](in *Injector, name string) (T, error) {
	key := NamedKey[T](name)
	v, err := in.GetInstance(key, nil, false)
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v, key)
}

// GetToken 获取 Token 对应的实例
func GetToken[T any](in *Injector, token *Token[T]) (T, error) {
	return GetNamed[T](in, token.Name())
}

// GetOptional 获取类型 T 的实例，无法找到绑定时返回零值与 false
func GetOptional[T any](in *Injector) (T, bool, error) {
	key := KeyOf[T]()
	v, err := in.GetInstance(key, nil, true)
	if err != nil || v == nil {
		var zero T
		return zero, false, err
	}
	t, err := cast[T](v, key)
	return t, err == nil, err
}

// Create 以辅助参数获取类型 T 的实例
func Create[T any](in *Injector, params Params) (T, error) {
	key := KeyOf[T]()
	v, err := in.GetInstance(key, params, false)
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v, key)
}

// MustGet 与 Get 相同，失败时 panic
func MustGet[T any](in *Injector) T {
	v, err := Get[T](in)
	if err != nil {
		panic(err)
	}
	return v
}

func cast[T any](v any, key Key) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, &ResolutionError{Key: key, Reason: fmt.Sprintf("resolved value is %T", v)}
	}
	return t, nil
}
