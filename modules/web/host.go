package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/logging"
)

// Host Web 宿主，实现 hosting.HostedService
type Host struct {
	port   int
	engine *gin.Engine
	server *http.Server
	logger logging.Logger

	mu   sync.Mutex
	addr net.Addr
}

func (b *Builder) build(in *di.Injector) (*Host, error) {
	h := &Host{
		port:   b.port,
		engine: b.engine,
		logger: in.Logger().WithCategory("web"),
	}
	h.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", b.port),
		Handler: b.engine,
	}

	b.root = in
	for _, c := range b.controllers {
		ctrl, err := resolveController(in, c)
		if err != nil {
			return nil, err
		}
		ctrl.RegisterRoutes(b.engine)
		h.logger.Debug("controller mapped", logging.Field{Key: "controller", Value: fmt.Sprintf("%T", ctrl)})
	}
	return h, nil
}

func resolveController(in *di.Injector, c any) (Controller, error) {
	switch v := c.(type) {
	case di.Key:
		obj, err := in.GetInstance(v, nil, false)
		if err != nil {
			return nil, err
		}
		ctrl, ok := obj.(Controller)
		if !ok || isNilController(ctrl) {
			return nil, fmt.Errorf("controller %s resolved to %T, not a Controller", v, obj)
		}
		return ctrl, nil
	case Controller:
		if reflect.TypeOf(v).Kind() == reflect.Pointer {
			if err := in.InjectMembers(v); err != nil {
				return nil, err
			}
		}
		return v, nil
	}

	fn := reflect.ValueOf(c)
	ft := fn.Type()
	args := make([]reflect.Value, ft.NumIn())
	for i := range args {
		v, err := in.GetInstance(di.Key{Type: ft.In(i)}, nil, false)
		if err != nil {
			return nil, fmt.Errorf("controller constructor %T: %w", c, err)
		}
		arg := reflect.New(ft.In(i)).Elem()
		if v != nil {
			arg.Set(reflect.ValueOf(v))
		}
		args[i] = arg
	}
	out := fn.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	ctrl, ok := out[0].Interface().(Controller)
	if !ok {
		return nil, fmt.Errorf("controller constructor %T returned nil", c)
	}
	return ctrl, nil
}

// Engine 返回 gin 引擎，可直接用于 httptest
func (h *Host) Engine() *gin.Engine {
	return h.engine
}

// Addr 返回实际监听地址，未启动时为 nil
func (h *Host) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

// Start 监听端口并阻塞直到上下文取消或服务出错
func (h *Host) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", h.server.Addr, err)
	}
	h.mu.Lock()
	h.addr = ln.Addr()
	h.mu.Unlock()

	h.logger.Info("Web host started", logging.Field{Key: "address", Value: ln.Addr().String()})

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Stop 优雅关闭
func (h *Host) Stop(ctx context.Context) error {
	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Error("Failed to shutdown web host gracefully", logging.Field{Key: "error", Value: err})
		return err
	}
	h.logger.Info("Web host stopped")
	return nil
}

func isNilController(c Controller) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
