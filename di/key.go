package di

import (
	"fmt"
	"reflect"
)

// Key 是绑定表中的唯一键：类型加可选的别名。
//
// 别名为空时按类型查找；别名不为空时只匹配以同名注册的绑定。
type Key struct {
	Type reflect.Type
	Name string
}

// String 返回 Key 的可读表示
func (k Key) String() string {
	if k.Type == nil {
		return fmt.Sprintf("<nil>(name=%s)", k.Name)
	}
	if k.Name == "" {
		return k.Type.String()
	}
	return fmt.Sprintf("%s(name=%s)", k.Type, k.Name)
}

// IsZero 报告 Key 是否未设置类型
func (k Key) IsZero() bool {
	return k.Type == nil
}

// TypeOf 获取类型 T 的 reflect.Type（泛型辅助函数）
//
// 示例：
//
//	carType := di.TypeOf[*Car]()
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// KeyOf 返回类型 T 的无别名 Key
func KeyOf[T any]() Key {
	return Key{Type: TypeOf[T]()}
}

// NamedKey 返回类型 T 带别名的 Key
func NamedKey[T any](name string) Key {
	return Key{Type: TypeOf[T](), Name: name}
}

// Token 表示一个带类型的注入令牌，用于区分同类型的不同依赖
//
// 示例：
//
//	var PrimaryDSN = di.NewToken[string]("primary-dsn")
//
//	binder.Bind(PrimaryDSN.Key()).ToInstance("postgres://...")
//	dsn, _ := di.GetToken(injector, PrimaryDSN)
type Token[T any] struct {
	name string
}

// NewToken 创建一个新的 Token
func NewToken[T any](name string) *Token[T] {
	return &Token[T]{name: name}
}

// Name 返回 Token 的名称
func (t *Token[T]) Name() string {
	return t.name
}

// Key 返回 Token 对应的绑定键
func (t *Token[T]) Key() Key {
	return NamedKey[T](t.name)
}

func (t *Token[T]) String() string {
	return fmt.Sprintf("Token[%s](%s)", TypeOf[T](), t.name)
}

var (
	injectorType = TypeOf[*Injector]()
	errorType    = TypeOf[error]()
	anyType      = TypeOf[any]()
)
