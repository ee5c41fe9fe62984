package factorygen

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gocrud/inject/di"
	"github.com/gocrud/inject/logging"
	"golang.org/x/sync/errgroup"
)

// Result 单个工厂的生成结果
type Result struct {
	Factory *Factory
	Path    string
	Skipped bool
}

// Generator 把工厂接口生成为源文件
type Generator struct {
	// OutDir 为空时写入接口所在目录
	OutDir string
	// Force 为 true 时覆盖已有产物
	Force bool
	// Concurrency 同时生成的工厂数，<=0 时不限制
	Concurrency int
	Logger      logging.Logger
}

// Generate 并发生成所有工厂，结果顺序与 factories 相同
func (g *Generator) Generate(ctx context.Context, factories []*Factory) ([]Result, error) {
	logger := g.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	results := make([]Result, len(factories))
	eg, ctx := errgroup.WithContext(ctx)
	if g.Concurrency > 0 {
		eg.SetLimit(g.Concurrency)
	}

	plans, err := g.plan(factories, true)
	if err != nil {
		return nil, err
	}

	for i, f := range factories {
		p := plans[i]
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			written, err := g.write(p, f)
			if err != nil {
				return err
			}
			results[i] = Result{Factory: f, Path: p.path, Skipped: !written}
			if written {
				logger.Info("factory generated", logging.Field{Key: "factory", Value: f.Name}, logging.Field{Key: "path", Value: p.path})
			} else {
				logger.Debug("factory artifact exists, skipped", logging.Field{Key: "factory", Value: f.Name}, logging.Field{Key: "path", Value: p.path})
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Preview 渲染产物但不写入，返回将要写入的路径
func (g *Generator) Preview(f *Factory) (string, []byte, error) {
	plans, err := g.plan([]*Factory{f}, false)
	if err != nil {
		return "", nil, err
	}
	src, err := RenderInto(f, plans[0].pkg)
	if err != nil {
		return "", nil, err
	}
	return plans[0].path, src, nil
}

// artifactPlan 单个产物的目标位置；pkg 为空表示写入接口所在的包
type artifactPlan struct {
	path string
	pkg  string
}

// plan 依次确定每个产物的路径和包名，两个工厂落到同一路径时返回 CacheError
func (g *Generator) plan(factories []*Factory, mkdir bool) ([]artifactPlan, error) {
	plans := make([]artifactPlan, len(factories))
	owners := make(map[string]*Factory)
	ready := make(map[string]bool)
	pkgs := make(map[string]string)
	for i, f := range factories {
		dir := g.dirFor(f)
		if mkdir && !ready[dir] {
			if err := ensureDir(dir); err != nil {
				return nil, err
			}
			ready[dir] = true
		}

		p := artifactPlan{path: filepath.Join(dir, f.ArtifactName())}
		if !sameDir(dir, f.Dir) {
			name, ok := pkgs[dir]
			if !ok {
				var err error
				if name, err = packageName(dir); err != nil {
					return nil, err
				}
				pkgs[dir] = name
			}
			p.pkg = name
		}
		if prev, ok := owners[p.path]; ok {
			return nil, &di.CacheError{
				Op:   "plan",
				Path: p.path,
				Err:  fmt.Errorf("factories %s (%s) and %s (%s) generate the same file", prev.Name, prev.Position, f.Name, f.Position),
			}
		}
		owners[p.path] = f
		plans[i] = p
	}
	return plans, nil
}

func (g *Generator) dirFor(f *Factory) string {
	if g.OutDir != "" {
		return g.OutDir
	}
	return f.Dir
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// packageName 读取目录中已有 Go 文件的包名，没有时由目录名推出
func packageName(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", &di.CacheError{Op: "readdir", Path: dir, Err: err}
	}
	fset := token.NewFileSet()
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") || strings.HasPrefix(name, ".") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.PackageClauseOnly)
		if err != nil {
			continue
		}
		return file.Name.Name, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	var b strings.Builder
	for _, r := range strings.ToLower(filepath.Base(abs)) {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "factories" + name
	}
	return name, nil
}

// write 产物已存在且未强制时跳过；写入先落临时文件再重命名
func (g *Generator) write(p artifactPlan, f *Factory) (bool, error) {
	path := p.path
	if !g.Force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, &di.CacheError{Op: "stat", Path: path, Err: err}
		}
	}

	src, err := RenderInto(f, p.pkg)
	if err != nil {
		return false, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return false, &di.CacheError{Op: "create", Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(src); err != nil {
		tmp.Close()
		return false, &di.CacheError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return false, &di.CacheError{Op: "write", Path: path, Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return false, &di.CacheError{Op: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, &di.CacheError{Op: "rename", Path: path, Err: err}
	}
	return true, nil
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return &di.CacheError{Op: "mkdir", Path: dir, Err: errors.New("not a directory")}
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return &di.CacheError{Op: "stat", Path: dir, Err: err}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &di.CacheError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}
