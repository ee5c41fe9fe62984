package app

import (
	"context"
)

// Run 构建并运行应用程序，是 NewApplicationBuilder().Build().Run 的简写
//
// 示例：
//
//	err := app.Run(context.Background(), func(b *app.ApplicationBuilder) {
//		b.ConfigureConfiguration(func(c *config.ConfigurationBuilder) {
//			c.AddYamlFile("appsettings.yaml", true)
//		})
//		b.AddModules(web.Module(func(w *web.Builder) {
//			w.AddControllers(NewUserController)
//		}))
//	})
func Run(ctx context.Context, configure func(*ApplicationBuilder)) error {
	builder := NewApplicationBuilder()
	if configure != nil {
		configure(builder)
	}
	application, err := builder.Build()
	if err != nil {
		return err
	}
	return application.Run(ctx)
}
