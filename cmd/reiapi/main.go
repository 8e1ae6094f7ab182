package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sabriotcore-code/rei-api/internal/config"
	"github.com/sabriotcore-code/rei-api/internal/server"
)

var Version = "dev"

var (
	configPath string
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "reiapi",
		Short:         "REI API - property workflow backend over spreadsheets",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径 (默认为可执行文件同目录下的 config.toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "输出调试日志")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(headersCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	return cfg, nil
}

// newApp 一次性命令使用的组件（不启动后台任务）
func newApp(ctx context.Context) (*server.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return server.NewApp(ctx, cfg, nil, newLogger())
}
