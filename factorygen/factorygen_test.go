package factorygen

import (
	"context"
	"errors"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/gocrud/inject/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/go/packages"
)

const carSource = `package cars

import (
	"strings"
	"time"
)

type Car struct {
	Color string
	Built time.Time
}

func shout(s string) string { return strings.ToUpper(s) }

// CarFactory 造车
//
//di:factory
type CarFactory interface {
	//di:returns
	New(color string, doors int) (*Car, error)

	//di:returns red
	Red(built time.Time) *Car

	Plain() *Car //di:returns plain
}

// 没有指令，不生成
type Other interface {
	Do()
}
`

func parseSource(t *testing.T, src string) ([]*Factory, error) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "cars.go", src, parser.ParseComments)
	require.NoError(t, err)
	return ParseFile(fset, file)
}

func TestParseFile(t *testing.T) {
	factories, err := parseSource(t, carSource)
	require.NoError(t, err)
	require.Len(t, factories, 1)

	f := factories[0]
	assert.Equal(t, "CarFactory", f.Name)
	assert.Equal(t, "cars", f.Package)
	assert.Equal(t, "CarFactoryImpl", f.ImplName())
	assert.Equal(t, "carfactoryimpl_gen.go", f.ArtifactName())
	require.Len(t, f.Methods, 3)

	assert.Equal(t, Method{
		Name:     "New",
		Params:   []Param{{Name: "color", Type: "string"}, {Name: "doors", Type: "int"}},
		Result:   "*Car",
		HasError: true,
	}, f.Methods[0])
	assert.Equal(t, "red", f.Methods[1].Alias)
	assert.Equal(t, []Param{{Name: "built", Type: "time.Time"}}, f.Methods[1].Params)
	assert.False(t, f.Methods[1].HasError)
	assert.Equal(t, "plain", f.Methods[2].Alias)
}

func TestParseFileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing returns",
			src:  "package p\n//di:factory\ntype F interface {\n\tNew(a int) *int\n}\n",
			want: "missing return-type declaration in factory interface",
		},
		{
			name: "not an interface",
			src:  "package p\n//di:factory\ntype F struct{}\n",
			want: "only valid on interfaces",
		},
		{
			name: "embedded",
			src:  "package p\n//di:factory\ntype F interface {\n\tfmt.Stringer\n}\n",
			want: "embedded interfaces are not supported",
		},
		{
			name: "variadic",
			src:  "package p\n//di:factory\ntype F interface {\n\t//di:returns\n\tNew(a ...int) *int\n}\n",
			want: "variadic",
		},
		{
			name: "unnamed parameter",
			src:  "package p\n//di:factory\ntype F interface {\n\t//di:returns\n\tNew(int) *int\n}\n",
			want: "must be named",
		},
		{
			name: "reserved parameter",
			src:  "package p\n//di:factory\ntype F interface {\n\t//di:returns\n\tNew(instance int) *int\n}\n",
			want: "reserved",
		},
		{
			name: "parameter named like a generated local",
			src:  "package p\n//di:factory\ntype F interface {\n\t//di:returns\n\tNew(result string) (*Car, error)\n}\n",
			want: "reserved",
		},
		{
			name: "parameter shadows result type",
			src:  "package p\n//di:factory\ntype F interface {\n\t//di:returns\n\tNew(Car string) *Car\n}\n",
			want: "shadows",
		},
		{
			name: "parameter shadows result package",
			src:  "package p\nimport \"time\"\n//di:factory\ntype F interface {\n\t//di:returns\n\tNew(time string) *time.Timer\n}\n",
			want: "shadows",
		},
		{
			name: "bad results",
			src:  "package p\n//di:factory\ntype F interface {\n\t//di:returns\n\tNew() (int, int)\n}\n",
			want: "optional error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSource(t, tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.Is(err, di.ErrConfiguration))
		})
	}
}

func TestDirectiveNeedsExactName(t *testing.T) {
	factories, err := parseSource(t, "package p\n//di:factoryish\ntype F interface{}\n")
	require.NoError(t, err)
	assert.Empty(t, factories)
}

func TestRender(t *testing.T) {
	factories, err := parseSource(t, carSource)
	require.NoError(t, err)

	src, err := Render(factories[0])
	require.NoError(t, err)
	out := string(src)

	_, err = parser.ParseFile(token.NewFileSet(), "out.go", src, parser.AllErrors)
	require.NoError(t, err, out)

	for _, want := range []string{
		"// Code generated by factorygen. DO NOT EDIT.",
		"package cars",
		`"github.com/gocrud/inject/di"`,
		`"time"`,
		"type CarFactoryImpl struct",
		"func NewCarFactoryImpl(in *di.Injector) *CarFactoryImpl",
		"di.RegisterFactory[CarFactory]",
		"func (impl *CarFactoryImpl) New(color string, doors int) (*Car, error)",
		`di.Params{"color": color, "doors": doors}`,
		`Name: "red"`,
		"di.Params{}",
		"panic(resolveErr)",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, `"strings"`)
}

func TestRenderRejectsDIPackage(t *testing.T) {
	_, err := Render(&Factory{Name: "F", Package: "di"})
	assert.Error(t, err)
}

func TestGenerator(t *testing.T) {
	factories, err := parseSource(t, carSource)
	require.NoError(t, err)

	dir := t.TempDir()
	factories[0].Dir = filepath.Join(dir, "cars")

	gen := &Generator{}
	results, err := gen.Generate(context.Background(), factories)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Skipped)
	path := filepath.Join(dir, "cars", "carfactoryimpl_gen.go")
	assert.Equal(t, path, results[0].Path)

	// 已存在的产物原样保留
	require.NoError(t, os.WriteFile(path, []byte("package cars\n"), 0o644))
	results, err = gen.Generate(context.Background(), factories)
	require.NoError(t, err)
	assert.True(t, results[0].Skipped)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "package cars\n", string(data))

	gen.Force = true
	results, err = gen.Generate(context.Background(), factories)
	require.NoError(t, err)
	assert.False(t, results[0].Skipped)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CarFactoryImpl")

	entries, err := os.ReadDir(filepath.Join(dir, "cars"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestGeneratorCacheError(t *testing.T) {
	factories, err := parseSource(t, carSource)
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "blocked")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	gen := &Generator{OutDir: file}
	_, err = gen.Generate(context.Background(), factories)
	require.Error(t, err)

	var cacheErr *di.CacheError
	require.True(t, errors.As(err, &cacheErr))
	assert.Equal(t, file, cacheErr.Path)
	assert.True(t, errors.Is(err, di.ErrCache))
}

func TestRenderInto(t *testing.T) {
	factories, err := parseSource(t, carSource)
	require.NoError(t, err)
	f := factories[0]
	f.PkgPath = "example.com/fleet/cars"

	src, err := RenderInto(f, "gen")
	require.NoError(t, err)
	out := string(src)

	for _, want := range []string{
		"package gen",
		`cars "example.com/fleet/cars"`,
		"di.RegisterFactory[cars.CarFactory]",
		"var _ cars.CarFactory = (*CarFactoryImpl)(nil)",
		"func (impl *CarFactoryImpl) New(color string, doors int) (*cars.Car, error)",
		"func (impl *CarFactoryImpl) Red(built time.Time) *cars.Car",
		"di.TypeOf[*cars.Car]()",
	} {
		assert.Contains(t, out, want)
	}

	same, err := RenderInto(f, "")
	require.NoError(t, err)
	plain, err := Render(f)
	require.NoError(t, err)
	assert.Equal(t, string(plain), string(same))
}

func TestRenderIntoErrors(t *testing.T) {
	hidden := "package cars\n//di:factory\ntype F interface {\n\t//di:returns\n\tNew() *car\n}\ntype car struct{}\n"
	factories, err := parseSource(t, hidden)
	require.NoError(t, err)
	factories[0].PkgPath = "example.com/cars"
	_, err = RenderInto(factories[0], "gen")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexported identifier car")
	assert.True(t, errors.Is(err, di.ErrConfiguration))

	factories, err = parseSource(t, carSource)
	require.NoError(t, err)
	_, err = RenderInto(factories[0], "gen")
	require.Error(t, err, "import path is required outside the interface package")

	factories[0].PkgPath = "example.com/cars"
	_, err = RenderInto(factories[0], "di")
	require.Error(t, err)
}

func TestGeneratorSamePathCollision(t *testing.T) {
	a, err := parseSource(t, carSource)
	require.NoError(t, err)
	b, err := parseSource(t, carSource)
	require.NoError(t, err)

	root := t.TempDir()
	a[0].Dir = filepath.Join(root, "cars")
	b[0].Dir = filepath.Join(root, "trucks")

	gen := &Generator{OutDir: filepath.Join(root, "gen")}
	_, err = gen.Generate(context.Background(), []*Factory{a[0], b[0]})
	require.Error(t, err)

	var cacheErr *di.CacheError
	require.True(t, errors.As(err, &cacheErr))
	assert.Equal(t, "plan", cacheErr.Op)
	assert.Equal(t, filepath.Join(root, "gen", "carfactoryimpl_gen.go"), cacheErr.Path)

	entries, err := os.ReadDir(filepath.Join(root, "gen"))
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is written when two factories collide")
}

const truckSource = `package trucks

import (
	"io"
	"time"
)

type Truck struct {
	Color string
	Built time.Time
	Cargo []io.Reader
}

//di:factory
type TruckFactory interface {
	//di:returns
	New(color string, built time.Time) (*Truck, error)

	//di:returns heavy
	Heavy(cargo []io.Reader) map[string]*Truck
}
`

// moduleDir 在模块内创建临时目录，go list 才能解析生成代码对 di 的导入
func moduleDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp(".", "gencheck")
	require.NoError(t, err)
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(abs) })
	return abs
}

func typeCheck(t *testing.T, dir, pattern string) {
	t.Helper()
	pkgs, err := packages.Load(&packages.Config{
		Mode: packages.NeedName | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
		Dir:  dir,
	}, pattern)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)

	var msgs []string
	for _, e := range pkgs[0].Errors {
		msgs = append(msgs, e.Error())
	}
	assert.Empty(t, msgs, "generated code in %s must type-check", pattern)
}

func TestGeneratedCodeTypeChecks(t *testing.T) {
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go command not available")
	}

	root := moduleDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "trucks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "trucks", "trucks.go"), []byte(truckSource), 0o644))

	factories, err := Load(root)
	require.NoError(t, err)
	require.Len(t, factories, 1)
	assert.NotEmpty(t, factories[0].PkgPath)

	// 写在接口旁边
	_, err = (&Generator{}).Generate(context.Background(), factories)
	require.NoError(t, err)
	typeCheck(t, root, "./trucks")

	// 写到另一个包
	results, err := (&Generator{OutDir: filepath.Join(root, "gen")}).Generate(context.Background(), factories)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "gen", "truckfactoryimpl_gen.go"), results[0].Path)
	typeCheck(t, root, "./gen")
}
