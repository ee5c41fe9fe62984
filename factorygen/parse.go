package factorygen

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gocrud/inject/di"
	"golang.org/x/tools/go/packages"
)

// 源码指令
const (
	DirectiveFactory = "di:factory" // //di:factory 标记接口为工厂
	DirectiveReturns = "di:returns" // //di:returns [alias] 标记方法的返回键
)

// 生成代码中使用的标识符，参数不可同名
var reserved = map[string]bool{
	"impl":       true,
	"instance":   true,
	"resolveErr": true,
	"result":     true,
	"zero":       true,
	"di":         true,
}

// Param 工厂方法的辅助参数
type Param struct {
	Name string
	Type string
}

// Method 工厂接口中的一个方法
type Method struct {
	Name     string
	Params   []Param
	Result   string // 返回类型表达式
	Alias    string // //di:returns 给出的别名
	HasError bool
}

// Factory 一个带 //di:factory 指令的接口
type Factory struct {
	Name     string
	Package  string
	PkgPath  string // 导入路径，Load 填充；写入其他目录时需要
	Dir      string
	Imports  []Import
	Methods  []Method
	Position token.Position
}

// Import 生成文件沿用的源文件导入
type Import struct {
	Name string
	Path string
}

// ImplName 生成的实现类型名
func (f *Factory) ImplName() string {
	return di.FactoryImplName(f.Name)
}

// ArtifactName 生成的源文件名
func (f *Factory) ArtifactName() string {
	return di.FactoryArtifactName(f.Name)
}

// Load 加载 dir 下匹配 patterns 的包并提取其中的工厂接口
func Load(dir string, patterns ...string) ([]*Factory, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax,
		Dir:  dir,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	var loadErrs []string
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			loadErrs = append(loadErrs, e.Error())
		}
	}
	if len(loadErrs) > 0 {
		return nil, fmt.Errorf("package errors:\n  %s", strings.Join(loadErrs, "\n  "))
	}

	var factories []*Factory
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			found, err := ParseFile(pkg.Fset, file)
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				f.Dir = filepath.Dir(f.Position.Filename)
				f.PkgPath = pkg.PkgPath
			}
			factories = append(factories, found...)
		}
	}
	sort.Slice(factories, func(i, j int) bool {
		if factories[i].Dir != factories[j].Dir {
			return factories[i].Dir < factories[j].Dir
		}
		return factories[i].Name < factories[j].Name
	})
	return factories, nil
}

// ParseFile 提取单个文件中的工厂接口
func ParseFile(fset *token.FileSet, file *ast.File) ([]*Factory, error) {
	var imports []Import
	for _, spec := range file.Imports {
		path, _ := strconv.Unquote(spec.Path.Value)
		imp := Import{Path: path}
		if spec.Name != nil {
			imp.Name = spec.Name.Name
		}
		imports = append(imports, imp)
	}

	var factories []*Factory
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			doc := ts.Doc
			if doc == nil && len(gen.Specs) == 1 {
				doc = gen.Doc
			}
			if _, ok := directive(doc, DirectiveFactory); !ok {
				continue
			}
			f, err := parseFactory(fset, file.Name.Name, ts)
			if err != nil {
				return nil, err
			}
			f.Imports = imports
			factories = append(factories, f)
		}
	}
	return factories, nil
}

func parseFactory(fset *token.FileSet, pkg string, ts *ast.TypeSpec) (*Factory, error) {
	pos := fset.Position(ts.Pos())
	iface, ok := ts.Type.(*ast.InterfaceType)
	if !ok {
		return nil, &di.ConfigError{Subject: ts.Name.Name, Reason: fmt.Sprintf("%s: //%s is only valid on interfaces", pos, DirectiveFactory)}
	}
	if ts.TypeParams != nil {
		return nil, &di.ConfigError{Subject: ts.Name.Name, Reason: fmt.Sprintf("%s: generic factory interfaces are not supported", pos)}
	}

	f := &Factory{Name: ts.Name.Name, Package: pkg, Position: pos}
	for _, field := range iface.Methods.List {
		ft, ok := field.Type.(*ast.FuncType)
		if !ok || len(field.Names) == 0 {
			return nil, &di.ConfigError{Subject: f.Name, Reason: fmt.Sprintf("%s: embedded interfaces are not supported", fset.Position(field.Pos()))}
		}
		m, err := parseMethod(f.Name+"."+field.Names[0].Name, field, ft)
		if err != nil {
			return nil, err
		}
		f.Methods = append(f.Methods, m)
	}
	return f, nil
}

func parseMethod(subject string, field *ast.Field, ft *ast.FuncType) (Method, error) {
	alias, ok := directive(field.Doc, DirectiveReturns)
	if !ok {
		alias, ok = directive(field.Comment, DirectiveReturns)
	}
	if !ok {
		return Method{}, &di.ConfigError{Subject: subject, Reason: "missing return-type declaration in factory interface"}
	}

	m := Method{Name: field.Names[0].Name, Alias: alias}
	for _, p := range ft.Params.List {
		if _, ok := p.Type.(*ast.Ellipsis); ok {
			return Method{}, &di.ConfigError{Subject: subject, Reason: "variadic factory methods are not supported"}
		}
		if len(p.Names) == 0 {
			return Method{}, &di.ConfigError{Subject: subject, Reason: "factory method parameters must be named"}
		}
		typ := types.ExprString(p.Type)
		for _, name := range p.Names {
			if name.Name == "_" {
				return Method{}, &di.ConfigError{Subject: subject, Reason: "factory method parameters must be named"}
			}
			if reserved[name.Name] {
				return Method{}, &di.ConfigError{Subject: subject, Reason: fmt.Sprintf("parameter name %q is reserved by the generated code", name.Name)}
			}
			m.Params = append(m.Params, Param{Name: name.Name, Type: typ})
		}
	}

	var results []string
	if ft.Results != nil {
		for _, r := range ft.Results.List {
			n := len(r.Names)
			if n == 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				results = append(results, types.ExprString(r.Type))
			}
		}
	}
	switch {
	case len(results) == 1:
	case len(results) == 2 && results[1] == "error":
		m.HasError = true
	default:
		return Method{}, &di.ConfigError{Subject: subject, Reason: "factory method must return a value and an optional error"}
	}
	m.Result = results[0]

	// 返回类型在方法体中被引用，参数不能遮蔽其中的标识符
	used := identifiers(ft.Results.List[0].Type)
	for _, p := range m.Params {
		if used[p.Name] {
			return Method{}, &di.ConfigError{Subject: subject, Reason: fmt.Sprintf("parameter name %q shadows an identifier of the result type %s", p.Name, m.Result)}
		}
	}
	return m, nil
}

func identifiers(expr ast.Expr) map[string]bool {
	used := make(map[string]bool)
	ast.Inspect(expr, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok {
			used[id.Name] = true
		}
		return true
	})
	return used
}

// directive 查找 //name [value] 形式的注释指令
func directive(doc *ast.CommentGroup, name string) (string, bool) {
	if doc == nil {
		return "", false
	}
	for _, c := range doc.List {
		text := strings.TrimPrefix(c.Text, "//")
		if !strings.HasPrefix(text, name) {
			continue
		}
		rest := text[len(name):]
		if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
			continue
		}
		return strings.TrimSpace(rest), true
	}
	return "", false
}
