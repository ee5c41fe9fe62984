package config

import (
	"fmt"

	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/logging"
)

// Load 加载并绑定指定节的配置到 T，section 为空时绑定整个配置
func Load[T any](cfg Configuration, section string) (T, error) {
	var t T
	err := cfg.Bind(section, &t)
	return t, err
}

type module struct {
	cfg Configuration
}

// Module 将 cfg 作为 Configuration 实例绑定到注入器
func Module(cfg Configuration) di.Module {
	return &module{cfg: cfg}
}

func (m *module) Configure(b *di.Binder) {
	if m.cfg == nil {
		b.AddError(&di.ConfigError{Subject: "config", Reason: "configuration is nil"})
		return
	}
	di.Bind[Configuration](b).ToInstance(m.cfg)
}

// BindSection 将配置节 section 绑定为 T 的单例，首次解析时读取
func BindSection[T any](b *di.Binder, section string) *di.Binding {
	return di.Bind[T](b).ToProviderFunc(func(in *di.Injector) (any, error) {
		cfg, err := di.Get[Configuration](in)
		if err != nil {
			return nil, err
		}
		v, err := Load[T](cfg, section)
		if err != nil {
			return nil, fmt.Errorf("config: bind section %q: %w", section, err)
		}
		return v, nil
	}).AsSingleton()
}

// InjectorSettings 对应配置中的 inject 节
type InjectorSettings struct {
	LogLevel string `json:"log_level"`
	Strict   bool   `json:"strict"`
	Format   string `json:"format"`
}

// InjectorOptions 从 inject 节生成注入器选项：
//
//	inject:
//	  log_level: debug
//	  format: json
//	  strict: true
//
// 节不存在时返回空选项。
func InjectorOptions(cfg Configuration) ([]di.Option, error) {
	settings, err := Load[InjectorSettings](cfg, "inject")
	if err != nil {
		if cfg.Get("inject") == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read inject section: %w", err)
	}

	var opts []di.Option
	if settings.LogLevel != "" {
		level, err := logging.ParseLevel(settings.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("config: inject.log_level: %w", err)
		}
		var formatter logging.Formatter
		if settings.Format == "json" {
			formatter = logging.NewJsonFormatter()
		}
		factory := logging.NewLoggingBuilder().
			SetMinimumLevel(level).
			AddConsole(formatter).
			Build()
		opts = append(opts, di.WithLogger(factory.CreateLogger("di")))
	}
	if settings.Strict {
		opts = append(opts, di.WithStrict())
	}
	return opts, nil
}
