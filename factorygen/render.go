package factorygen

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/types"
	"path"
	"strconv"
	"text/template"

	"github.com/gocrud/inject/di"
	"golang.org/x/tools/imports"
)

// DIPackage 生成代码引用的注入包
const DIPackage = "github.com/gocrud/inject/di"

var artifactTemplate = template.Must(template.New("factory").Funcs(template.FuncMap{
	"quote": strconv.Quote,
}).Parse(`// Code generated by factorygen. DO NOT EDIT.

package {{.OutPackage}}

import (
	"{{.DIPackage}}"
{{- range .Imports}}
	{{if .Name}}{{.Name}} {{end}}{{quote .Path}}
{{- end}}
)

// {{.Impl}} 是 {{.Name}} 的生成实现，每个方法把参数作为辅助参数交给注入器
type {{.Impl}} struct {
	injector *di.Injector
}

// New{{.Impl}} 创建绑定到 in 的 {{.Name}}
func New{{.Impl}}(in *di.Injector) *{{.Impl}} {
	return &{{.Impl}}{injector: in}
}

func init() {
	di.RegisterFactory[{{.Iface}}](func(in *di.Injector) {{.Iface}} {
		return New{{.Impl}}(in)
	})
}

var _ {{.Iface}} = (*{{.Impl}})(nil)
{{range .Methods}}
func (impl *{{$.Impl}}) {{.Name}}({{range $i, $p := .Params}}{{if $i}}, {{end}}{{$p.Name}} {{$p.Type}}{{end}}) {{if .HasError}}({{.Result}}, error){{else}}{{.Result}}{{end}} {
	instance, resolveErr := impl.injector.GetInstance(
		di.Key{Type: di.TypeOf[{{.Result}}](), Name: {{quote .Alias}}},
		di.Params{ {{- range $i, $p := .Params}}{{if $i}}, {{end}}{{quote $p.Name}}: {{$p.Name}}{{end -}} },
		false,
	)
	if resolveErr != nil {
{{- if .HasError}}
		var zero {{.Result}}
		return zero, resolveErr
{{- else}}
		panic(resolveErr)
{{- end}}
	}
	result, _ := instance.({{.Result}})
	return result{{if .HasError}}, nil{{end}}
}
{{end}}`))

type artifactData struct {
	*Factory
	Imports    []Import
	DIPackage  string
	Impl       string
	Iface      string
	OutPackage string
}

// artifactImports 去掉空白导入和与生成代码重复的 di 导入
func artifactImports(src []Import) []Import {
	var out []Import
	for _, imp := range src {
		if imp.Name == "_" {
			continue
		}
		if imp.Path == DIPackage && (imp.Name == "" || imp.Name == "di") {
			continue
		}
		out = append(out, imp)
	}
	return out
}

// Render 在接口所在的包中生成工厂实现源码，并用 imports.Process 格式化、清理未使用的导入
func Render(f *Factory) ([]byte, error) {
	return render(f, "")
}

// RenderInto 在另一个名为 pkg 的包中生成实现，接口与其包内类型通过导入路径引用；
// pkg 为空时等同于 Render
func RenderInto(f *Factory, pkg string) ([]byte, error) {
	return render(f, pkg)
}

func render(f *Factory, pkg string) ([]byte, error) {
	if f.Package == "di" {
		return nil, fmt.Errorf("factorygen: %s: factories cannot be declared in package di", f.Name)
	}
	data := artifactData{
		Factory:    f,
		Imports:    artifactImports(f.Imports),
		DIPackage:  DIPackage,
		Impl:       f.ImplName(),
		Iface:      f.Name,
		OutPackage: f.Package,
	}
	if pkg != "" {
		q, err := qualified(f, pkg)
		if err != nil {
			return nil, err
		}
		data.Factory = q
		data.Imports = append(data.Imports, Import{Name: f.Package, Path: f.PkgPath})
		data.Iface = f.Package + "." + f.Name
		data.OutPackage = pkg
	}

	var buf bytes.Buffer
	if err := artifactTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("factorygen: render %s: %w", f.Name, err)
	}

	src, err := imports.Process(f.ArtifactName(), buf.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: false,
	})
	if err != nil {
		return nil, fmt.Errorf("factorygen: format %s: %w\n%s", f.Name, err, buf.String())
	}
	return src, nil
}

// qualified 返回方法签名中的包内类型都带上包名前缀的副本
func qualified(f *Factory, pkg string) (*Factory, error) {
	fail := func(reason string) error {
		return &di.ConfigError{Subject: f.Name, Reason: fmt.Sprintf("%s: cannot generate into package %s: %s", f.Position, pkg, reason)}
	}
	switch {
	case pkg == "di":
		return nil, fail("the output package cannot be named di")
	case f.PkgPath == "":
		return nil, fail("import path of the interface package is unknown")
	case !ast.IsExported(f.Name):
		return nil, fail("the interface is not exported")
	}
	for _, imp := range f.Imports {
		name := imp.Name
		if name == "" {
			name = path.Base(imp.Path)
		}
		switch {
		case name == ".":
			return nil, fail(fmt.Sprintf("dot import of %q is not supported", imp.Path))
		case name == f.Package && imp.Path != f.PkgPath:
			return nil, fail(fmt.Sprintf("import %q collides with package name %s", imp.Path, f.Package))
		}
	}

	q := *f
	q.Methods = make([]Method, len(f.Methods))
	for i, m := range f.Methods {
		qm := m
		result, err := qualify(m.Result, f.Package)
		if err != nil {
			return nil, fail(fmt.Sprintf("%s: %v", m.Name, err))
		}
		qm.Result = result
		qm.Params = make([]Param, len(m.Params))
		for j, p := range m.Params {
			if p.Name == f.Package {
				return nil, fail(fmt.Sprintf("%s: parameter name %q shadows the package name", m.Name, p.Name))
			}
			typ, err := qualify(p.Type, f.Package)
			if err != nil {
				return nil, fail(fmt.Sprintf("%s: %v", m.Name, err))
			}
			qm.Params[j] = Param{Name: p.Name, Type: typ}
		}
		q.Methods[i] = qm
	}
	return &q, nil
}

// qualify 给类型表达式中未限定的包内标识符加上 pkg 前缀
func qualify(typ, pkg string) (string, error) {
	expr, err := parser.ParseExpr(typ)
	if err != nil {
		return "", err
	}
	var unexported string
	var walk func(e ast.Expr)
	walkFields := func(fl *ast.FieldList) {
		if fl == nil {
			return
		}
		for _, field := range fl.List {
			walk(field.Type)
		}
	}
	walk = func(e ast.Expr) {
		switch e := e.(type) {
		case *ast.Ident:
			if types.Universe.Lookup(e.Name) != nil {
				return
			}
			if !ast.IsExported(e.Name) {
				unexported = e.Name
				return
			}
			e.Name = pkg + "." + e.Name
		case *ast.SelectorExpr:
			// 已经带有包名
		case *ast.StarExpr:
			walk(e.X)
		case *ast.ParenExpr:
			walk(e.X)
		case *ast.Ellipsis:
			walk(e.Elt)
		case *ast.ArrayType:
			if e.Len != nil {
				walk(e.Len)
			}
			walk(e.Elt)
		case *ast.MapType:
			walk(e.Key)
			walk(e.Value)
		case *ast.ChanType:
			walk(e.Value)
		case *ast.FuncType:
			walkFields(e.Params)
			walkFields(e.Results)
		case *ast.StructType:
			walkFields(e.Fields)
		case *ast.InterfaceType:
			walkFields(e.Methods)
		case *ast.IndexExpr:
			walk(e.X)
			walk(e.Index)
		case *ast.IndexListExpr:
			walk(e.X)
			for _, idx := range e.Indices {
				walk(idx)
			}
		case *ast.BinaryExpr:
			walk(e.X)
			walk(e.Y)
		case *ast.UnaryExpr:
			walk(e.X)
		case *ast.CallExpr:
			walk(e.Fun)
			for _, arg := range e.Args {
				walk(arg)
			}
		}
	}
	walk(expr)
	if unexported != "" {
		return "", fmt.Errorf("unexported identifier %s is not visible outside its package", unexported)
	}
	return types.ExprString(expr), nil
}
