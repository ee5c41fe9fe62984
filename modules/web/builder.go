package web

import (
	"fmt"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/inject/di"
)

// Controller 控制器接口，在宿主创建时注册路由
type Controller interface {
	RegisterRoutes(router gin.IRouter)
}

var controllerType = reflect.TypeOf((*Controller)(nil)).Elem()

// Builder Web 宿主构建器
type Builder struct {
	port        int
	engine      *gin.Engine
	controllers []any
	root        *di.Injector
	errors      []error
}

// NewBuilder 创建构建器，默认端口 8080，带 Recovery 中间件
func NewBuilder() *Builder {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Builder{
		port:   8080,
		engine: engine,
	}
}

// UsePort 设置监听端口，0 表示随机端口
func (b *Builder) UsePort(port int) *Builder {
	b.port = port
	return b
}

// UseRequestScope 为每个请求创建子注入器，其中绑定了当前 *gin.Context，
// 处理函数可通过 Resolve 获取依赖
func (b *Builder) UseRequestScope() *Builder {
	b.engine.Use(func(c *gin.Context) {
		if b.root == nil {
			c.Next()
			return
		}
		requestScope(b.root)(c)
	})
	return b
}

func (b *Builder) Get(path string, handlers ...gin.HandlerFunc) *Builder {
	b.engine.GET(path, handlers...)
	return b
}

func (b *Builder) Post(path string, handlers ...gin.HandlerFunc) *Builder {
	b.engine.POST(path, handlers...)
	return b
}

func (b *Builder) Put(path string, handlers ...gin.HandlerFunc) *Builder {
	b.engine.PUT(path, handlers...)
	return b
}

func (b *Builder) Delete(path string, handlers ...gin.HandlerFunc) *Builder {
	b.engine.DELETE(path, handlers...)
	return b
}

// Group 创建路由组
func (b *Builder) Group(relativePath string, handlers ...gin.HandlerFunc) *gin.RouterGroup {
	return b.engine.Group(relativePath, handlers...)
}

// Use 添加全局中间件
func (b *Builder) Use(middleware ...gin.HandlerFunc) *Builder {
	b.engine.Use(middleware...)
	return b
}

func (b *Builder) StaticFS(relativePath string, fs http.FileSystem) *Builder {
	b.engine.StaticFS(relativePath, fs)
	return b
}

func (b *Builder) NoRoute(handlers ...gin.HandlerFunc) *Builder {
	b.engine.NoRoute(handlers...)
	return b
}

// Engine 返回底层 gin 引擎
func (b *Builder) Engine() *gin.Engine {
	return b.engine
}

// AddControllers 添加控制器，支持三种形式：
//   - Controller 实例，标注了 di 标签的字段在创建宿主时注入
//   - 构造函数，参数从注入器解析，返回 Controller（可附带 error）
//   - di.Key，从注入器解析
func (b *Builder) AddControllers(controllers ...any) *Builder {
	for _, c := range controllers {
		if err := checkController(c); err != nil {
			b.errors = append(b.errors, err)
			continue
		}
		b.controllers = append(b.controllers, c)
	}
	return b
}

// AddController 添加由注入器构造的控制器 T
func AddController[T Controller](b *Builder) *Builder {
	return b.AddControllers(di.KeyOf[T]())
}

func checkController(c any) error {
	switch v := c.(type) {
	case nil:
		return fmt.Errorf("controller is nil")
	case Controller:
		return nil
	case di.Key:
		if v.Type == nil || !v.Type.Implements(controllerType) {
			return fmt.Errorf("controller key %s does not implement Controller", v)
		}
		return nil
	}

	ct := reflect.TypeOf(c)
	if ct.Kind() != reflect.Func {
		return fmt.Errorf("unsupported controller %T", c)
	}
	if ct.IsVariadic() {
		return fmt.Errorf("controller constructor %T must not be variadic", c)
	}
	if ct.NumOut() == 0 || ct.NumOut() > 2 || !ct.Out(0).Implements(controllerType) {
		return fmt.Errorf("controller constructor %T must return a Controller", c)
	}
	if ct.NumOut() == 2 && ct.Out(1) != reflect.TypeOf((*error)(nil)).Elem() {
		return fmt.Errorf("controller constructor %T: second result must be error", c)
	}
	return nil
}
