package di_test

import (
	"testing"

	"github.com/gocrud/inject/di"
)

// 基准测试接口和实现
type BenchLogger interface {
	Log(msg string)
}

type BenchConsoleLogger struct {
	prefix string
}

func (l *BenchConsoleLogger) Log(msg string) {}

type BenchRepository struct {
	Logger BenchLogger `di:""`
}

type BenchService struct {
	Repo   *BenchRepository `di:""`
	Logger BenchLogger      `di:""`
}

type BenchWidget struct {
	Name string
}

func (*BenchWidget) InjectionPoints() di.Descriptor {
	return di.Descriptor{
		Constructor: func(name string) *BenchWidget { return &BenchWidget{Name: name} },
		Params:      []di.Arg{di.Param("name").Assisted()},
	}
}

func benchInjector(b *testing.B, singleton bool) *di.Injector {
	b.Helper()
	in, err := di.New(di.ModuleFunc(func(binder *di.Binder) {
		di.Bind[BenchLogger](binder).To(di.KeyOf[*BenchConsoleLogger]()).AsSingleton()
		service := di.Bind[*BenchService](binder)
		if singleton {
			service.AsSingleton()
		}
		di.Bind[*BenchWidget](binder).AsSingleton()
	}))
	if err != nil {
		b.Fatalf("New failed: %v", err)
	}
	return in
}

func BenchmarkResolveSingleton(b *testing.B) {
	in := benchInjector(b, true)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := di.Get[*BenchService](in); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkResolveTransient(b *testing.B) {
	in := benchInjector(b, false)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := di.Get[*BenchService](in); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssistedSingleton(b *testing.B) {
	in := benchInjector(b, true)
	params := di.Params{"name": "widget"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := di.Create[*BenchWidget](in, params); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHashParams(b *testing.B) {
	params := di.Params{"name": "widget", "size": 3, "tags": []string{"a", "b"}}
	for i := 0; i < b.N; i++ {
		di.HashParams(params)
	}
}
