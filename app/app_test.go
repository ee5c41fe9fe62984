package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/inject/config"
	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/hosting"
	"github.com/gocrud/inject/modules/database"
	"github.com/gocrud/inject/modules/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TestService 模拟业务服务
type TestService struct {
	DB     *gorm.DB             `di:""`
	Config config.Configuration `di:""`
}

func (s *TestService) GetAppName() string {
	if s.Config == nil {
		return "no-config"
	}
	return s.Config.Get("app:name")
}

// TestController 模拟控制器
type TestController struct {
	Service *TestService
}

// NewTestController 使用构造函数注入
func NewTestController(svc *TestService) *TestController {
	return &TestController{Service: svc}
}

func (c *TestController) RegisterRoutes(r gin.IRouter) {
	r.GET("/ping", func(ctx *gin.Context) {
		name := c.Service.GetAppName()
		if c.Service.DB == nil {
			name += "-nodb"
		}
		ctx.String(http.StatusOK, "pong: "+name)
	})
}

func TestIntegration(t *testing.T) {
	t.Setenv("TEST_APP_NAME", "IntegrationTest")

	application, err := NewApplicationBuilder().
		UseEnvironment("staging").
		ConfigureConfiguration(func(c *config.ConfigurationBuilder) {
			c.AddInMemory(map[string]any{"app": map[string]any{"name": "InMemory"}})
			c.AddEnvironmentVariables("TEST_")
		}).
		AddModules(
			database.Module(func(b *database.Builder) {
				b.AddSqlite(database.DefaultName, "file::memory:", nil)
			}),
			web.Module(func(b *web.Builder) {
				b.UsePort(0)
				b.AddControllers(NewTestController)
			}),
		).
		Build()
	require.NoError(t, err)
	assert.True(t, application.Environment().IsStaging())

	application.Start(context.Background())

	var host *web.Host
	require.NoError(t, application.GetService(&host))
	require.Eventually(t, func() bool { return host.Addr() != nil }, 2*time.Second, 20*time.Millisecond)

	port := host.Addr().(*net.TCPAddr).Port
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/ping", port))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong: IntegrationTest", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, application.Stop(ctx))
}

// TestWorker 模拟托管服务
type TestWorker struct {
	Started chan struct{}
	Stopped chan struct{}
	StopCh  chan struct{}
}

func (w *TestWorker) Start(ctx context.Context) error {
	close(w.Started)
	<-w.StopCh // 阻塞直到 Stop 被调用
	return nil
}

func (w *TestWorker) Stop(ctx context.Context) error {
	close(w.StopCh)
	time.Sleep(10 * time.Millisecond)
	close(w.Stopped)
	return nil
}

func TestHostedServiceAndTask(t *testing.T) {
	worker := &TestWorker{
		Started: make(chan struct{}),
		Stopped: make(chan struct{}),
		StopCh:  make(chan struct{}),
	}
	taskRan := make(chan struct{})

	application, err := NewApplicationBuilder().
		AddModules(di.ModuleFunc(func(b *di.Binder) {
			di.Bind[*TestWorker](b).ToInstance(worker)
			hosting.AddHostedService[*TestWorker](b)
		})).
		AddTask(func(ctx context.Context) error {
			close(taskRan)
			return nil
		}).
		Build()
	require.NoError(t, err)

	application.Start(context.Background())

	select {
	case <-worker.Started:
	case <-time.After(time.Second):
		t.Fatal("Worker should be started")
	}
	select {
	case <-taskRan:
	case <-time.After(time.Second):
		t.Fatal("Task should run")
	}

	require.NoError(t, application.Stop(context.Background()))
	select {
	case <-worker.Stopped:
	case <-time.After(time.Second):
		t.Fatal("Worker should be stopped")
	}
}

func TestRunReturnsServiceError(t *testing.T) {
	err := Run(context.Background(), func(b *ApplicationBuilder) {
		b.UseShutdownTimeout(time.Second)
		b.AddTask(func(context.Context) error { return errors.New("boom") })
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestBuildErrors(t *testing.T) {
	_, err := NewApplicationBuilder().
		ConfigureConfiguration(func(c *config.ConfigurationBuilder) {
			c.AddJsonFile("does-not-exist.json")
		}).
		Build()
	assert.Error(t, err)

	_, err = NewApplicationBuilder().
		ConfigureConfiguration(func(c *config.ConfigurationBuilder) {
			c.AddInMemory(map[string]any{"inject": map[string]any{"log_level": "loud"}})
		}).
		Build()
	assert.Error(t, err)

	_, err = NewApplicationBuilder().
		AddModules(di.ModuleFunc(func(b *di.Binder) {
			di.Bind[*TestService](b).To(di.KeyOf[*TestService]())
		})).
		Build()
	assert.ErrorIs(t, err, di.ErrConfiguration)
}

func TestGetService(t *testing.T) {
	application, err := NewApplicationBuilder().Build()
	require.NoError(t, err)

	var cfg config.Configuration
	require.NoError(t, application.GetService(&cfg))
	assert.Same(t, application.Configuration(), cfg)

	var env Environment
	require.NoError(t, application.GetService(&env))
	assert.True(t, env.IsDevelopment())

	assert.Error(t, application.GetService(42))
}
