package logging

import (
	"io"
	"os"
)

// LoggingBuilder 日志构建器
type LoggingBuilder struct {
	providers    []LoggerProvider
	minimumLevel LogLevel
}

// NewLoggingBuilder 创建日志构建器，默认级别 Info
func NewLoggingBuilder() *LoggingBuilder {
	return &LoggingBuilder{
		providers:    make([]LoggerProvider, 0),
		minimumLevel: LogLevelInfo,
	}
}

// SetMinimumLevel 设置最小日志级别
func (b *LoggingBuilder) SetMinimumLevel(level LogLevel) *LoggingBuilder {
	b.minimumLevel = level
	return b
}

// AddProvider 添加日志输出端
func (b *LoggingBuilder) AddProvider(provider LoggerProvider) *LoggingBuilder {
	b.providers = append(b.providers, provider)
	return b
}

// AddConsole 输出到标准输出，formatter 为空时使用带颜色的文本格式
func (b *LoggingBuilder) AddConsole(formatter ...Formatter) *LoggingBuilder {
	var f Formatter
	if len(formatter) > 0 && formatter[0] != nil {
		f = formatter[0]
	} else {
		tf := NewTextFormatter()
		tf.ColorOutput = true
		f = tf
	}
	return b.AddProvider(NewWriterProvider(os.Stdout, f))
}

// AddWriter 输出到任意 io.Writer
func (b *LoggingBuilder) AddWriter(out io.Writer, formatter Formatter) *LoggingBuilder {
	return b.AddProvider(NewWriterProvider(out, formatter))
}

// Build 构建日志工厂
func (b *LoggingBuilder) Build() LoggerFactory {
	providers := make([]LoggerProvider, len(b.providers))
	copy(providers, b.providers)
	return &loggerFactory{
		providers:    providers,
		minimumLevel: b.minimumLevel,
	}
}

// NewLogger 创建一个默认的控制台 Logger
func NewLogger() Logger {
	return NewLoggingBuilder().AddConsole().Build().CreateLogger("default")
}
