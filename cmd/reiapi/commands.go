package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sabriotcore-code/rei-api/internal/config"
	"github.com/sabriotcore-code/rei-api/internal/store"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func syncCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "执行一次生产同步",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Sync == nil {
				return errors.New("同步未启用 (sync.enabled = false)")
			}
			out := app.Sync.RunSync(cmd.Context(), force)
			if err := printJSON(out); err != nil {
				return err
			}
			if !out.Success {
				return fmt.Errorf("同步失败: %s", out.Reason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "忽略控制单元格变化检查")
	return cmd
}

func refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "读取主数据并输出汇总",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Cache.ForceRefresh(cmd.Context()); err != nil {
				return fmt.Errorf("刷新失败: %w", err)
			}
			return printJSON(app.Cache.Peek())
		},
	}
}

func headersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "headers",
		Short: "列出主数据标签页的表头",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			snap, err := app.Cache.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			for _, col := range snap.Header.Columns() {
				fmt.Printf("%4d  %-30s %s\n", col.Column, col.Name, col.Original)
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看同步台账",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ledger, err := store.New(cfg.DBPath())
			if err != nil {
				return err
			}
			defer ledger.Close()

			runs, err := ledger.ListSyncRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(runs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultHistoryLimit, "最多显示条数")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "配置文件管理",
	}

	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "写出默认配置文件",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !overwrite {
				return fmt.Errorf("配置文件已存在: %s (使用 --overwrite 覆盖)", path)
			}
			if err := config.Save(config.ExampleConfig(), path); err != nil {
				return err
			}
			fmt.Printf("已写入配置: %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "覆盖已有文件")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "校验配置",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("配置有效")
			return nil
		},
	}

	cmd.AddCommand(initCmd, checkCmd)
	return cmd
}
