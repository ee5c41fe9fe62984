package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gocrud/inject/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func TestConfigurationMerge(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("server:\n  host: localhost\n  port: 8080\nname: demo\n"), 0o644))

	cfg, err := NewConfigurationBuilder().
		AddYamlFile(yamlPath).
		AddJsonFile(filepath.Join(dir, "missing.json"), true).
		AddInMemory(map[string]any{"server": map[string]any{"port": 9090}}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Get("server:host"))
	assert.Equal(t, "demo", cfg.Get("name"))

	port, err := cfg.GetInt("server.port")
	require.NoError(t, err)
	assert.Equal(t, 9090, port)

	assert.Equal(t, "fallback", cfg.GetWithDefault("server:none", "fallback"))
	assert.Equal(t, "localhost", cfg.GetSection("server").Get("host"))
	assert.Empty(t, cfg.GetSection("nothing").GetAll())
}

func TestConfigurationMissingFile(t *testing.T) {
	_, err := NewConfigurationBuilder().AddJsonFile("does-not-exist.json").Build()
	assert.Error(t, err)
}

func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("INJECTTEST_SERVER_PORT", "7070")
	t.Setenv("INJECTTEST_DEBUG", "true")

	cfg, err := NewConfigurationBuilder().AddEnvironmentVariables("INJECTTEST_").Build()
	require.NoError(t, err)

	port, err := cfg.GetInt("server:port")
	require.NoError(t, err)
	assert.Equal(t, 7070, port)

	debug, err := cfg.GetBool("debug")
	require.NoError(t, err)
	assert.True(t, debug)
}

func TestGetAllReturnsCopy(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"server": map[string]any{"host": "a"}}).
		Build()
	require.NoError(t, err)

	all := cfg.GetAll()
	all["server"].(map[string]any)["host"] = "b"
	assert.Equal(t, "a", cfg.Get("server:host"))
}

func TestReloadUpdatesMonitor(t *testing.T) {
	src := &InMemorySource{Data: map[string]any{"server": map[string]any{"host": "a", "port": 1}}}
	cfg, err := NewConfigurationBuilder().Add(src).BuildReloadable()
	require.NoError(t, err)

	cache, err := NewOptionsCache[serverSettings](cfg, "server")
	require.NoError(t, err)
	monitor := NewOptionMonitor(cache)
	static := NewOption(cache.Get())

	src.Data = map[string]any{"server": map[string]any{"host": "b", "port": 2}}
	require.NoError(t, cfg.Reload())

	assert.Equal(t, "b", monitor.Value().Host)
	assert.Equal(t, "a", static.Value().Host)
}

func TestConcurrentReads(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"server": map[string]any{"host": "localhost"}}).
		BuildReloadable()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg.Get("server:host")
		}()
	}
	require.NoError(t, cfg.Reload())
	wg.Wait()
}

func TestModuleBindings(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"server": map[string]any{"host": "localhost", "port": 8080}}).
		Build()
	require.NoError(t, err)

	in, err := di.New(Module(cfg), di.ModuleFunc(func(b *di.Binder) {
		BindSection[serverSettings](b, "server")
		BindOptions[serverSettings](b, "server")
	}))
	require.NoError(t, err)

	got, err := di.Get[Configuration](in)
	require.NoError(t, err)
	assert.Same(t, cfg, got)

	settings, err := di.Get[serverSettings](in)
	require.NoError(t, err)
	assert.Equal(t, serverSettings{Host: "localhost", Port: 8080}, settings)

	opt, err := di.Get[Option[serverSettings]](in)
	require.NoError(t, err)
	assert.Equal(t, 8080, opt.Value().Port)

	monitor, err := di.Get[OptionMonitor[serverSettings]](in)
	require.NoError(t, err)
	assert.Equal(t, "localhost", monitor.Value().Host)
}

func TestBindSectionMissing(t *testing.T) {
	cfg, err := NewConfigurationBuilder().Build()
	require.NoError(t, err)

	in, err := di.New(Module(cfg), di.ModuleFunc(func(b *di.Binder) {
		BindSection[serverSettings](b, "server")
	}))
	require.NoError(t, err)

	_, err = di.Get[serverSettings](in)
	assert.Error(t, err)
}

func TestInjectorOptions(t *testing.T) {
	empty, err := NewConfigurationBuilder().Build()
	require.NoError(t, err)
	opts, err := InjectorOptions(empty)
	require.NoError(t, err)
	assert.Empty(t, opts)

	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"inject": map[string]any{"log_level": "debug", "strict": true}}).
		Build()
	require.NoError(t, err)
	opts, err = InjectorOptions(cfg)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	bad, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"inject": map[string]any{"log_level": "loud"}}).
		Build()
	require.NoError(t, err)
	_, err = InjectorOptions(bad)
	assert.Error(t, err)
}

func TestDecodeValue(t *testing.T) {
	assert.Equal(t, float64(3), decodeValue([]byte("3")))
	assert.Equal(t, map[string]any{"a": 1}, decodeValue([]byte("a: 1")))
	assert.Equal(t, "plain text", decodeValue([]byte("plain text")))
}
