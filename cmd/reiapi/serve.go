package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sabriotcore-code/rei-api/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		port    int
		devMode bool
		dataDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务、后台聚合刷新与定时同步",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// 命令行参数覆盖配置
			if port > 0 {
				cfg.Server.Port = port
			}
			if devMode {
				cfg.Server.DevMode = true
			}
			if dataDir != "" {
				cfg.Data.DataDir = dataDir
			}

			fmt.Println("==========================================")
			fmt.Println("  REI API")
			fmt.Println("==========================================")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := server.NewApp(ctx, cfg, nil, newLogger())
			if err != nil {
				return err
			}
			fmt.Printf("数据目录: %s\n", cfg.ResolvePath(cfg.Data.DataDir))
			fmt.Printf("表格后端: %s\n", cfg.Sheets.Backend)
			if app.Sync != nil {
				fmt.Printf("定时同步: 每 %s\n", cfg.Sync.Interval.Duration)
			} else {
				fmt.Println("定时同步: 未启用")
			}

			srv := server.NewServer(app)
			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			fmt.Printf("服务启动中，监听端口 %d ...\n", cfg.Server.Port)
			fmt.Println("\n按 Ctrl+C 停止服务...")

			if err := srv.Run(ctx, addr); err != nil {
				return fmt.Errorf("服务运行失败: %w", err)
			}
			log.Println("服务已关闭")
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "服务端口 (覆盖配置文件与 PORT)")
	cmd.Flags().BoolVar(&devMode, "dev", false, "开发模式")
	cmd.Flags().StringVar(&dataDir, "dataDir", "", "数据目录 (覆盖配置文件)")
	return cmd
}
