package di

import (
	"errors"
	"fmt"
	"strings"
)

// 错误类别，可用 errors.Is 判断
var (
	ErrConfiguration = errors.New("di: configuration error")
	ErrResolution    = errors.New("di: resolution error")
	ErrInvalidScope  = errors.New("di: invalid scope")
	ErrCache         = errors.New("di: cache error")
	ErrCycle         = errors.New("di: circular dependency")
)

// ConfigError 表示元数据或模块配置不正确。
type ConfigError struct {
	Subject string
	Reason  string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("di: %s: %s", e.Subject, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

func (e *ConfigError) Unwrap() error { return e.Err }

// BindingError 表示绑定声明非法，例如绑定到自身或重复设置策略。
type BindingError struct {
	Key    Key
	Reason string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("di: binding %s: %s", e.Key, e.Reason)
}

func (e *BindingError) Is(target error) bool { return target == ErrConfiguration }

// ResolutionError 表示请求的依赖无法满足。
type ResolutionError struct {
	Key    Key
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("di: resolve %s: %s", e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

func (e *ResolutionError) Unwrap() error { return e.Err }

// InvalidScopeError 表示请求了未知的作用域名称。
type InvalidScopeError struct {
	Name string
}

func (e *InvalidScopeError) Error() string {
	return fmt.Sprintf("di: invalid scope %q", e.Name)
}

func (e *InvalidScopeError) Is(target error) bool { return target == ErrInvalidScope }

// CacheError 表示工厂产物目录不可用或写入失败。
type CacheError struct {
	Op   string
	Path string
	Err  error
}

func (e *CacheError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("di: factory cache %s %s", e.Op, e.Path)
	}
	return fmt.Sprintf("di: factory cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheError) Is(target error) bool { return target == ErrCache }

func (e *CacheError) Unwrap() error { return e.Err }

// CycleError 表示构造过程中出现了循环依赖，Path 以重复出现的键结尾。
type CycleError struct {
	Path []Key
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = k.String()
	}
	return "di: circular dependency: " + strings.Join(parts, " -> ")
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycle || target == ErrResolution
}
