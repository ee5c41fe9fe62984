package hosting

import (
	"context"

	"github.com/gocrud/inject/di"
)

// Lifecycle 记录模块在配置阶段声明的托管服务与停止钩子，
// 每个 Binder 只有一个，由 Host 在启动时读取。
type Lifecycle struct {
	services []di.Key
	onStop   []stopHook
}

type stopHook struct {
	name string
	fn   func(context.Context) error
}

var lifecycleKey = di.NamedKey[*Lifecycle]("hosting")

// Of 返回 b 上的生命周期记录，不存在时创建并绑定
func Of(b *di.Binder) *Lifecycle {
	if binding, ok := b.BindingFor(lifecycleKey); ok {
		if v, ok := binding.Instance(); ok {
			return v.(*Lifecycle)
		}
	}
	l := &Lifecycle{}
	b.Bind(lifecycleKey).ToInstance(l)
	return l
}

// AddHostedService 声明一个托管服务，Host 启动时从注入器解析 key
func (l *Lifecycle) AddHostedService(key di.Key) *Lifecycle {
	l.services = append(l.services, key)
	return l
}

// OnStop 注册停止钩子，所有托管服务停止后倒序执行
func (l *Lifecycle) OnStop(name string, fn func(context.Context) error) *Lifecycle {
	l.onStop = append(l.onStop, stopHook{name: name, fn: fn})
	return l
}

// Services 返回声明的托管服务键
func (l *Lifecycle) Services() []di.Key {
	out := make([]di.Key, len(l.services))
	copy(out, l.services)
	return out
}

// AddHostedService 将 T 声明为托管服务；T 未绑定时由注入器直接构造
func AddHostedService[T HostedService](b *di.Binder) {
	Of(b).AddHostedService(di.KeyOf[T]())
}

// OnStop 是 Of(b).OnStop 的简写
func OnStop(b *di.Binder, name string, fn func(context.Context) error) {
	Of(b).OnStop(name, fn)
}

func lookup(in *di.Injector) *Lifecycle {
	v, err := in.GetInstance(lifecycleKey, nil, true)
	if err != nil || v == nil {
		return &Lifecycle{}
	}
	return v.(*Lifecycle)
}
