package config

import (
	"fmt"
	"sync"

	"github.com/gocrud/inject/di"
)

// Option 静态配置选项（注入器生命周期内不变）
type Option[T any] interface {
	Value() T
}

// OptionMonitor 监听配置选项，总是返回最新的配置值
type OptionMonitor[T any] interface {
	Value() T
}

// OptionsCache 配置缓存，配置支持重载时自动更新
type OptionsCache[T any] struct {
	config  Configuration
	section string
	current T
	mu      sync.RWMutex
}

// NewOptionsCache 创建配置缓存，节不存在时返回错误
func NewOptionsCache[T any](config Configuration, section string) (*OptionsCache[T], error) {
	cache := &OptionsCache[T]{
		config:  config,
		section: section,
	}
	if err := cache.reload(); err != nil {
		return nil, err
	}

	if rc, ok := config.(Reloadable); ok {
		rc.OnReload(func() {
			// 重载失败时保留旧值
			_ = cache.reload()
		})
	}
	return cache, nil
}

func (c *OptionsCache[T]) reload() error {
	var value T
	if err := c.config.Bind(c.section, &value); err != nil {
		return fmt.Errorf("failed to bind config section %s: %w", c.section, err)
	}

	c.mu.Lock()
	c.current = value
	c.mu.Unlock()
	return nil
}

// Get 获取当前配置值
func (c *OptionsCache[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

type option[T any] struct {
	value T
}

func (o *option[T]) Value() T {
	return o.value
}

// NewOption 创建静态配置选项
func NewOption[T any](value T) Option[T] {
	return &option[T]{value: value}
}

type optionMonitor[T any] struct {
	cache *OptionsCache[T]
}

func (o *optionMonitor[T]) Value() T {
	return o.cache.Get()
}

// NewOptionMonitor 创建监听配置选项
func NewOptionMonitor[T any](cache *OptionsCache[T]) OptionMonitor[T] {
	return &optionMonitor[T]{cache: cache}
}

// BindOptions 将 section 绑定为 Option[T] 与 OptionMonitor[T] 单例。
// Configuration 从注入器解析，因此需要同时安装 Module。
func BindOptions[T any](b *di.Binder, section string) {
	cacheKey := di.NamedKey[*OptionsCache[T]](section)
	di.BindNamed[*OptionsCache[T]](b, section).ToProviderFunc(func(in *di.Injector) (any, error) {
		cfg, err := di.Get[Configuration](in)
		if err != nil {
			return nil, err
		}
		cache, err := NewOptionsCache[T](cfg, section)
		if err != nil {
			return nil, err
		}
		return cache, nil
	}).AsSingleton()

	cached := func(in *di.Injector) (*OptionsCache[T], error) {
		v, err := in.GetInstance(cacheKey, nil, false)
		if err != nil {
			return nil, err
		}
		return v.(*OptionsCache[T]), nil
	}

	di.Bind[Option[T]](b).ToProviderFunc(func(in *di.Injector) (any, error) {
		cache, err := cached(in)
		if err != nil {
			return nil, err
		}
		return NewOption(cache.Get()), nil
	}).AsSingleton()

	di.Bind[OptionMonitor[T]](b).ToProviderFunc(func(in *di.Injector) (any, error) {
		cache, err := cached(in)
		if err != nil {
			return nil, err
		}
		return NewOptionMonitor(cache), nil
	}).AsSingleton()
}
