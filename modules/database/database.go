package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gocrud/inject/config"
	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/hosting"
	"github.com/gocrud/inject/logging"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DefaultName 名为 default 的数据库同时以无名键绑定
const DefaultName = "default"

// DatabaseOptions 数据库配置
type DatabaseOptions struct {
	Name         string
	Dialector    gorm.Dialector
	GormConfig   *gorm.Config
	MaxIdleConns int
	MaxOpenConns int
	MaxLifetime  time.Duration
	AutoMigrate  []any // 需要自动迁移的模型
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string, dialector gorm.Dialector) *DatabaseOptions {
	return &DatabaseOptions{
		Name:         name,
		Dialector:    dialector,
		GormConfig:   &gorm.Config{},
		MaxIdleConns: 10,
		MaxOpenConns: 100,
		MaxLifetime:  time.Hour,
		AutoMigrate:  make([]any, 0),
	}
}

// Validate 验证配置
func (o *DatabaseOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if o.Dialector == nil {
		return fmt.Errorf("database dialector is required")
	}
	return nil
}

// DatabaseFactory 按名称管理 *gorm.DB，连接在第一次 Get 时打开
type DatabaseFactory struct {
	options map[string]DatabaseOptions
	dbs     map[string]*gorm.DB
	mu      sync.Mutex
}

// NewDatabaseFactory 创建数据库工厂
func NewDatabaseFactory() *DatabaseFactory {
	return &DatabaseFactory{
		options: make(map[string]DatabaseOptions),
		dbs:     make(map[string]*gorm.DB),
	}
}

// Register 登记数据库配置
func (f *DatabaseFactory) Register(opts DatabaseOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.options[opts.Name]; exists {
		return fmt.Errorf("database '%s' already registered", opts.Name)
	}
	f.options[opts.Name] = opts
	return nil
}

// Names 返回已登记的数据库名称
func (f *DatabaseFactory) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.options))
	for name := range f.options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get 打开并返回指定名称的数据库，首次打开时执行自动迁移
func (f *DatabaseFactory) Get(name string) (*gorm.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if db, ok := f.dbs[name]; ok {
		return db, nil
	}
	opts, ok := f.options[name]
	if !ok {
		return nil, fmt.Errorf("database '%s' not found", name)
	}

	db, err := gorm.Open(opts.Dialector, opts.GormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB for '%s': %w", name, err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.MaxLifetime)

	if len(opts.AutoMigrate) > 0 {
		if err := db.AutoMigrate(opts.AutoMigrate...); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("auto migrate failed for '%s': %w", name, err)
		}
	}

	f.dbs[name] = db
	return db, nil
}

// Close 关闭所有已打开的数据库
func (f *DatabaseFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for name, db := range f.dbs {
		sqlDB, err := db.DB()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to get sql.DB for '%s': %w", name, err))
			continue
		}
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database '%s': %w", name, err))
		}
	}
	f.dbs = make(map[string]*gorm.DB)
	return errors.Join(errs...)
}

// SqliteSettings 配置中的 sqlite 数据库节
type SqliteSettings struct {
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// Builder 数据库配置构建器
type Builder struct {
	configs []DatabaseOptions
	errors  []error
}

// NewBuilder 创建构建器
func NewBuilder() *Builder {
	return &Builder{
		configs: make([]DatabaseOptions, 0),
		errors:  make([]error, 0),
	}
}

// Add 添加数据库配置
func (b *Builder) Add(name string, dialector gorm.Dialector, configure func(*DatabaseOptions)) *Builder {
	opts := NewDefaultOptions(name, dialector)
	if configure != nil {
		configure(opts)
	}
	b.configs = append(b.configs, *opts)
	return b
}

// AddSqlite 添加 sqlite 数据库
func (b *Builder) AddSqlite(name, dsn string, configure func(*DatabaseOptions)) *Builder {
	return b.Add(name, sqlite.Open(dsn), configure)
}

// AddSqliteFromConfig 从配置节读取 sqlite 数据库，节结构见 SqliteSettings
func (b *Builder) AddSqliteFromConfig(cfg config.Configuration, section, name string, configure func(*DatabaseOptions)) *Builder {
	settings, err := config.Load[SqliteSettings](cfg, section)
	if err != nil {
		b.errors = append(b.errors, fmt.Errorf("database '%s': %w", name, err))
		return b
	}
	return b.AddSqlite(name, settings.DSN, func(o *DatabaseOptions) {
		if settings.MaxOpenConns > 0 {
			o.MaxOpenConns = settings.MaxOpenConns
		}
		if settings.MaxIdleConns > 0 {
			o.MaxIdleConns = settings.MaxIdleConns
		}
		if configure != nil {
			configure(o)
		}
	})
}

// Build 构建数据库工厂
func (b *Builder) Build() (*DatabaseFactory, error) {
	errs := append([]error(nil), b.errors...)
	factory := NewDatabaseFactory()
	for _, opts := range b.configs {
		if err := factory.Register(opts); err != nil {
			errs = append(errs, fmt.Errorf("database '%s': %w", opts.Name, err))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("database configuration errors: %v", errs)
	}
	return factory, nil
}

type module struct {
	options func(*Builder)
}

// Module 返回数据库模块，每个数据库绑定为 *gorm.DB 的命名单例
func Module(options func(*Builder)) di.Module {
	return &module{options: options}
}

func (m *module) Configure(b *di.Binder) {
	builder := NewBuilder()
	if m.options != nil {
		m.options(builder)
	}
	factory, err := builder.Build()
	if err != nil {
		b.AddError(err)
		return
	}

	di.Bind[*DatabaseFactory](b).ToInstance(factory)
	for _, name := range factory.Names() {
		provider := func(in *di.Injector) (any, error) {
			db, err := factory.Get(name)
			if err != nil {
				return nil, err
			}
			in.Logger().Info("database opened", logging.Field{Key: "name", Value: name})
			return db, nil
		}
		di.BindNamed[*gorm.DB](b, name).ToProviderFunc(provider).AsSingleton()
		if name == DefaultName {
			di.Bind[*gorm.DB](b).ToProviderFunc(provider).AsSingleton()
		}
	}

	hosting.OnStop(b, "database", func(context.Context) error {
		return factory.Close()
	})
}
