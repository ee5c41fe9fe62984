package database_test

import (
	"context"
	"testing"

	"github.com/gocrud/inject/config"
	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/hosting"
	"github.com/gocrud/inject/modules/database"
	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Name string
}

type MockDBService struct {
	Master *gorm.DB `di:"master"`
	Slave  *gorm.DB `di:"slave,?"`
}

// UserRepository 通过构造函数注入数据库
type UserRepository struct {
	db *gorm.DB
}

func (r *UserRepository) InjectionPoints() di.Descriptor {
	return di.Descriptor{
		Constructor: func(db *gorm.DB) *UserRepository { return &UserRepository{db: db} },
		Params:      []di.Arg{di.Param("db").Named("master")},
	}
}

func TestDatabaseModule(t *testing.T) {
	cfg, err := config.NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"db": map[string]any{
				"master": map[string]any{
					"dsn":            "file::memory:?cache=shared",
					"max_open_conns": 5,
				},
			},
		}).
		Build()
	if err != nil {
		t.Fatalf("build config: %v", err)
	}

	in, err := di.New(database.Module(func(b *database.Builder) {
		b.AddSqliteFromConfig(cfg, "db.master", "master", func(o *database.DatabaseOptions) {
			o.AutoMigrate = []any{&User{}}
		})
	}))
	if err != nil {
		t.Fatalf("build injector: %v", err)
	}

	svc, err := di.Get[*MockDBService](in)
	if err != nil {
		t.Fatalf("resolve service: %v", err)
	}
	if svc.Master == nil {
		t.Fatal("Master DB should not be nil")
	}
	if svc.Slave != nil {
		t.Error("Slave DB should be nil")
	}

	sqlDB, err := svc.Master.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 5 {
		t.Errorf("Expected MaxOpenConns 5, got %d", stats.MaxOpenConnections)
	}

	repo, err := di.Get[*UserRepository](in)
	if err != nil {
		t.Fatalf("resolve repository: %v", err)
	}
	if repo.db != svc.Master {
		t.Error("repository should share the singleton database")
	}
	if err := repo.db.Create(&User{Name: "test"}).Error; err != nil {
		t.Fatalf("Failed to insert record: %v", err)
	}

	host, err := hosting.NewHost(in)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	if err := host.Stop(context.Background()); err != nil {
		t.Errorf("stop host: %v", err)
	}
}

func TestDatabaseBuilderErrors(t *testing.T) {
	builder := database.NewBuilder()
	builder.Add("invalid", nil, nil)
	builder.AddSqlite("dup", "file::memory:", nil)
	builder.AddSqlite("dup", "file::memory:", nil)

	if _, err := builder.Build(); err == nil {
		t.Fatal("Expected error, got nil")
	}
}
