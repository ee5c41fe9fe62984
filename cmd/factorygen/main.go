// Command factorygen 为带 //di:factory 指令的接口生成辅助注入工厂实现。
//
// 用法：
//
//	//go:generate go run github.com/gocrud/inject/cmd/factorygen
//
// 接口示例：
//
//	//di:factory
//	type CarFactory interface {
//		//di:returns
//		New(color string) (*Car, error)
//	}
//
// 每个接口生成一个 <接口名小写>impl_gen.go，已存在时跳过，-force 覆盖。
// 指定 -out 时产物属于该目录的包，接口及其包内类型通过导入路径引用，
// 因此接口和签名中的包内类型必须导出。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gocrud/inject/factorygen"
	"github.com/gocrud/inject/logging"
)

func main() {
	dir := flag.String("dir", ".", "directory the package patterns are resolved from")
	out := flag.String("out", "", "write artifacts here instead of next to each interface")
	force := flag.Bool("force", false, "regenerate artifacts that already exist")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	dryRun := flag.Bool("dry-run", false, "print generated code without writing")
	flag.Parse()

	level := logging.LogLevelInfo
	if *verbose {
		level = logging.LogLevelDebug
	}
	logger := logging.NewLoggingBuilder().
		SetMinimumLevel(level).
		AddWriter(os.Stderr, logging.NewTextFormatter()).
		Build().
		CreateLogger("factorygen")

	if err := run(logger, *dir, *out, *force, *dryRun, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "factorygen: %v\n", err)
		os.Exit(1)
	}
}

func run(logger logging.Logger, dir, out string, force, dryRun bool, patterns []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factories, err := factorygen.Load(dir, patterns...)
	if err != nil {
		return err
	}
	logger.Debug("factories discovered", logging.Field{Key: "count", Value: len(factories)})

	gen := &factorygen.Generator{OutDir: out, Force: force, Logger: logger}
	if dryRun {
		for _, f := range factories {
			path, src, err := gen.Preview(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "// === %s ===\n%s\n", path, src)
		}
		return nil
	}

	results, err := gen.Generate(ctx, factories)
	if err != nil {
		return err
	}
	written := 0
	for _, r := range results {
		if !r.Skipped {
			written++
		}
	}
	logger.Info("done", logging.Field{Key: "generated", Value: written}, logging.Field{Key: "skipped", Value: len(results) - written})
	return nil
}
