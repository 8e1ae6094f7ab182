package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sabriotcore-code/rei-api/internal/actions"
	"github.com/sabriotcore-code/rei-api/internal/aggregate"
	"github.com/sabriotcore-code/rei-api/internal/config"
	"github.com/sabriotcore-code/rei-api/internal/prodsync"
	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
	"github.com/sabriotcore-code/rei-api/internal/store"
)

// App 按配置组装好的各组件，serve 与一次性命令共用
type App struct {
	Config  *config.AppConfig
	Sheets  sheetstore.RangeStore
	Ledger  *store.Store
	Cache   *aggregate.Cache
	Actions *actions.Service
	Sync    *prodsync.Job // 同步未启用时为 nil
	Logger  *slog.Logger
}

// NewSheetStore 按 sheets.backend 创建区域存储，并加上单次调用超时
func NewSheetStore(ctx context.Context, cfg *config.AppConfig) (sheetstore.RangeStore, error) {
	var rs sheetstore.RangeStore
	switch cfg.Sheets.Backend {
	case config.BackendGoogle:
		gs, err := sheetstore.NewGoogleStore(ctx, sheetstore.GoogleOptions{
			CredentialsFile: cfg.ResolvePath(cfg.Sheets.CredentialsFile),
			CredentialsJSON: []byte(cfg.Sheets.CredentialsJSON),
		})
		if err != nil {
			return nil, err
		}
		rs = gs
	case config.BackendWorkbook:
		ws, err := sheetstore.NewWorkbookStore(cfg.WorkbookDir())
		if err != nil {
			return nil, err
		}
		rs = ws
	case config.BackendMemory:
		rs = sheetstore.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown sheets backend: %s", cfg.Sheets.Backend)
	}
	return sheetstore.WithTimeout(rs, cfg.Sheets.CallTimeout.Duration), nil
}

// NewApp 校验配置并组装组件。sheets 为 nil 时按配置创建。
func NewApp(ctx context.Context, cfg *config.AppConfig, sheets sheetstore.RangeStore, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	if sheets == nil {
		sheets, err = NewSheetStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create sheet store: %w", err)
		}
	}

	if _, err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	ledger, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, err
	}

	cache := aggregate.NewCache(aggregate.Options{
		Store:  sheets,
		Ref:    cfg.MainRange(),
		TTL:    cfg.Cache.TTL.Duration,
		Logger: logger.With("component", "aggregate"),
	})

	svc := actions.NewService(actions.Options{
		Store:                 sheets,
		Cache:                 cache,
		PMESpreadsheetID:      cfg.Sheets.PMESpreadsheetID,
		WorkflowSpreadsheetID: cfg.Sheets.WorkflowSpreadsheetID,
		Tabs: actions.Tabs{
			Main:       cfg.Tabs.Main,
			TodoMaster: cfg.Tabs.TodoMaster,
			Var:        cfg.Tabs.Var,
			Queue:      cfg.Tabs.Queue,
		},
		Logger: logger.With("component", "actions"),
	})

	app := &App{
		Config:  cfg,
		Sheets:  sheets,
		Ledger:  ledger,
		Cache:   cache,
		Actions: svc,
		Logger:  logger,
	}

	if cfg.Sync.Enabled {
		pairs, err := cfg.SyncPairs()
		if err != nil {
			ledger.Close()
			return nil, err
		}
		app.Sync = prodsync.NewJob(prodsync.Options{
			Store:        sheets,
			ControlCell:  cfg.ControlCell(),
			Pairs:        pairs,
			ExternalSpan: cfg.Sync.ExternalSpan,
			Interval:     cfg.Sync.Interval.Duration,
			Location:     loc,
			Logger:       logger.With("component", "prodsync"),
			Recorder:     ledger,
		})
	}
	return app, nil
}

// Start 启动后台任务：聚合刷新（可选）与定时同步
func (a *App) Start(ctx context.Context) {
	if a.Config.Cache.Background {
		a.Cache.Start(ctx)
	}
	if a.Sync != nil {
		a.Sync.Start(ctx)
	}
}

// Close 停止后台任务并关闭台账
func (a *App) Close() error {
	a.Cache.Shutdown()
	if a.Sync != nil {
		a.Sync.Shutdown()
	}
	return a.Ledger.Close()
}
