package etcd_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gocrud/inject/config"
	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/hosting"
	"github.com/gocrud/inject/modules/etcd"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type MockService struct {
	Master *clientv3.Client `di:"master"`
	Slave  *clientv3.Client `di:"slave,?"`
}

func TestEtcdModule(t *testing.T) {
	in, err := di.New(etcd.Module(func(b *etcd.Builder) {
		b.AddClient("master", func(o *etcd.EtcdClientOptions) {
			o.Endpoints = []string{"localhost:2379"}
		})
	}))
	if err != nil {
		t.Fatalf("build injector: %v", err)
	}

	svc, err := di.Get[*MockService](in)
	if err != nil {
		t.Fatalf("resolve service: %v", err)
	}
	if svc.Master == nil {
		t.Error("Master client should not be nil")
	}
	if svc.Slave != nil {
		t.Error("Slave client should be nil")
	}

	master, err := di.GetNamed[*clientv3.Client](in, "master")
	if err != nil {
		t.Fatalf("resolve named client: %v", err)
	}
	if master != svc.Master {
		t.Error("named client should be a singleton")
	}

	host, err := hosting.NewHost(in)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	if err := host.Stop(context.Background()); err != nil {
		t.Errorf("stop host: %v", err)
	}
}

func TestEtcdBuilderErrors(t *testing.T) {
	builder := etcd.NewBuilder()
	builder.AddClient("invalid", func(o *etcd.EtcdClientOptions) {
		o.Endpoints = nil
	})
	builder.AddClient("duplicate", nil)
	builder.AddClient("duplicate", nil)

	if _, err := builder.Build(); err == nil {
		t.Fatal("Expected error from invalid configuration, got nil")
	}
}

func TestEtcdConfigSource(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("set INTEGRATION_TEST=true to run against a local etcd")
	}

	in, err := di.New(etcd.Module(func(b *etcd.Builder) {
		b.AddClient(etcd.DefaultName, nil)
	}))
	if err != nil {
		t.Fatalf("build injector: %v", err)
	}

	client := di.MustGet[*clientv3.Client](in)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Put(ctx, "/inject-test/server/port", "8080"); err != nil {
		t.Fatalf("put: %v", err)
	}

	src, err := etcd.ConfigSource(in, etcd.DefaultName, "/inject-test")
	if err != nil {
		t.Fatalf("config source: %v", err)
	}
	cfg, err := config.NewConfigurationBuilder().Add(src).Build()
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	if port, _ := cfg.GetInt("server:port"); port != 8080 {
		t.Errorf("expected port 8080, got %d", port)
	}
}
