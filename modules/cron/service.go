package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/gocrud/inject/logging"
	"github.com/robfig/cron/v3"
)

// Service Cron 定时任务托管服务
type Service struct {
	cron   *cron.Cron
	logger logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	jobs   map[string]cron.EntryID // 任务名称到任务ID的映射
}

func newService(logger logging.Logger, cronOpts ...cron.Option) *Service {
	opts := append([]cron.Option{
		cron.WithChain(cron.Recover(newCronLogger(logger))),
	}, cronOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron:   cron.New(opts...),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// addJob 添加定时任务，job 收到的 ctx 在服务停止时取消
func (s *Service) addJob(spec, name string, job func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron job '%s' already registered", name)
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug(fmt.Sprintf("Cron job '%s' started", name))
		if err := job(s.ctx); err != nil {
			s.logger.Error(fmt.Sprintf("Cron job '%s' failed", name), logging.Field{Key: "error", Value: err})
			return
		}
		s.logger.Debug(fmt.Sprintf("Cron job '%s' completed", name))
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job '%s': %w", name, err)
	}

	s.jobs[name] = entryID
	s.logger.Info(fmt.Sprintf("Cron job '%s' registered with spec '%s'", name, spec))
	return nil
}

// Jobs 返回已注册的任务名称
func (s *Service) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Remove 移除定时任务
func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}
}

// Start 启动调度并阻塞直到上下文取消
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(fmt.Sprintf("CronService starting with %d jobs", len(s.Jobs())))
	s.cron.Start()
	<-ctx.Done()
	return nil
}

// Stop 停止调度并等待正在运行的任务完成
func (s *Service) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	defer s.cancel()

	select {
	case <-stopCtx.Done():
		s.logger.Info("CronService stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("CronService stop timeout, forcing shutdown")
		return ctx.Err()
	}
}

// cronLogger 适配器：将框架日志接口适配到 cron 的日志接口
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, convertToFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := convertToFields(keysAndValues)
	fields = append(fields, logging.Field{Key: "error", Value: err})
	l.logger.Error(msg, fields...)
}

func convertToFields(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.Field{Key: fmt.Sprintf("%v", keysAndValues[i]), Value: keysAndValues[i+1]})
	}
	return fields
}
