package hosting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/logging"
)

// Host 从注入器解析声明的托管服务并管理其生命周期
type Host struct {
	injector        *di.Injector
	manager         *HostedServiceManager
	onStop          []stopHook
	logger          logging.Logger
	shutdownTimeout time.Duration

	cancel context.CancelFunc
	errCh  <-chan error
}

// HostOption Host 选项
type HostOption func(*Host)

// WithShutdownTimeout 设置 Run 的优雅关闭超时，默认 5 秒
func WithShutdownTimeout(d time.Duration) HostOption {
	return func(h *Host) {
		h.shutdownTimeout = d
	}
}

// NewHost 解析所有声明的托管服务
func NewHost(in *di.Injector, opts ...HostOption) (*Host, error) {
	h := &Host{
		injector:        in,
		logger:          in.Logger().WithCategory("hosting"),
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.manager = NewHostedServiceManager(h.logger)

	lc := lookup(in)
	for _, key := range lc.services {
		v, err := in.GetInstance(key, nil, false)
		if err != nil {
			return nil, fmt.Errorf("hosting: resolve %s: %w", key, err)
		}
		svc, ok := v.(HostedService)
		if !ok {
			return nil, fmt.Errorf("hosting: %s resolved to %T, not a HostedService", key, v)
		}
		h.manager.Add(key.String(), svc)
	}
	h.onStop = append(h.onStop, lc.onStop...)
	return h, nil
}

// Injector 返回宿主使用的注入器
func (h *Host) Injector() *di.Injector {
	return h.injector
}

// Start 启动所有托管服务，不阻塞
func (h *Host) Start(ctx context.Context) <-chan error {
	ctx, h.cancel = context.WithCancel(ctx)
	h.errCh = h.manager.StartAll(ctx)
	return h.errCh
}

// Stop 停止托管服务，等待 Start 返回，然后倒序执行停止钩子
func (h *Host) Stop(ctx context.Context) error {
	var errs []error
	if err := h.manager.StopAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if h.cancel != nil {
		h.cancel()
	}

	done := make(chan struct{})
	go func() {
		h.manager.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("hosting: wait for services: %w", ctx.Err()))
	}

	for i := len(h.onStop) - 1; i >= 0; i-- {
		hook := h.onStop[i]
		if err := hook.fn(ctx); err != nil {
			h.logger.Error("stop hook failed",
				logging.Field{Key: "hook", Value: hook.name},
				logging.Field{Key: "error", Value: err})
			errs = append(errs, fmt.Errorf("stop hook %s: %w", hook.name, err))
		}
	}
	return errors.Join(errs...)
}

// Run 启动服务并阻塞，直到收到退出信号、ctx 取消或某个服务失败，然后优雅关闭
func (h *Host) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := h.Start(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		h.logger.Info("shutdown requested")
	case runErr = <-errCh:
		h.logger.Error("hosted service failed, shutting down", logging.Field{Key: "error", Value: runErr})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, h.Stop(shutdownCtx))
}
