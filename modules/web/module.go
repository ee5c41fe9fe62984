package web

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/hosting"
	"github.com/gocrud/inject/logging"
)

const injectorKey = "inject.injector"

type module struct {
	options func(*Builder)
}

// Module 返回 Web 模块，*Host 与 *gin.Engine 以单例绑定，*Host 注册为托管服务
func Module(options func(*Builder)) di.Module {
	return &module{options: options}
}

func (m *module) Configure(b *di.Binder) {
	builder := NewBuilder()
	if m.options != nil {
		m.options(builder)
	}
	if len(builder.errors) > 0 {
		b.AddError(fmt.Errorf("web: %w", errors.Join(builder.errors...)))
		return
	}

	di.Bind[*Host](b).ToProviderFunc(func(in *di.Injector) (any, error) {
		h, err := builder.build(in)
		if err != nil {
			return nil, err
		}
		return h, nil
	}).AsSingleton()
	di.Bind[*gin.Engine](b).ToProviderFunc(func(in *di.Injector) (any, error) {
		h, err := di.Get[*Host](in)
		if err != nil {
			return nil, err
		}
		return h.Engine(), nil
	}).AsSingleton()
	hosting.AddHostedService[*Host](b)
}

// requestScope 为每个请求创建绑定了 *gin.Context 的子注入器
func requestScope(in *di.Injector) gin.HandlerFunc {
	return func(c *gin.Context) {
		child, err := in.Child(di.ModuleFunc(func(b *di.Binder) {
			di.Bind[*gin.Context](b).ToInstance(c)
		}))
		if err != nil {
			in.Logger().Error("request scope failed", logging.Field{Key: "error", Value: err})
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Set(injectorKey, child)
		c.Next()
	}
}

// FromContext 返回请求的注入器，未启用请求作用域时返回 nil
func FromContext(c *gin.Context) *di.Injector {
	v, ok := c.Get(injectorKey)
	if !ok {
		return nil
	}
	in, _ := v.(*di.Injector)
	return in
}

// Resolve 从请求的注入器解析 T
func Resolve[T any](c *gin.Context) (T, error) {
	in := FromContext(c)
	if in == nil {
		var zero T
		return zero, errors.New("web: request scope is not enabled")
	}
	return di.Get[T](in)
}
