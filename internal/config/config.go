package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/sabriotcore-code/rei-api/internal/prodsync"
	"github.com/sabriotcore-code/rei-api/internal/sheetstore"
)

// 表格后端
const (
	BackendGoogle   = "google"
	BackendWorkbook = "workbook"
	BackendMemory   = "memory"
)

// ConfigFileName 默认配置文件名
const ConfigFileName = "config.toml"

// AppConfig 应用配置
type AppConfig struct {
	Server ServerConfig `toml:"server"`
	Data   DataConfig   `toml:"data"`
	Sheets SheetsConfig `toml:"sheets"`
	Tabs   TabsConfig   `toml:"tabs"`
	Cache  CacheConfig  `toml:"cache"`
	Sync   SyncConfig   `toml:"sync"`

	// baseDir 相对路径的基准目录（配置文件所在目录）
	baseDir string
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    int  `toml:"port"`
	DevMode bool `toml:"dev_mode"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// SheetsConfig 表格访问配置
type SheetsConfig struct {
	Backend               string   `toml:"backend"`
	CredentialsFile       string   `toml:"credentials_file"`
	CredentialsJSON       string   `toml:"-"` // 仅来自 GOOGLE_SERVICE_ACCOUNT_KEY
	WorkbookDir           string   `toml:"workbook_dir"`
	CallTimeout           Duration `toml:"call_timeout"`
	PMESpreadsheetID      string   `toml:"pme_spreadsheet_id"`
	WorkflowSpreadsheetID string   `toml:"workflow_spreadsheet_id"`
	TimeZone              string   `toml:"time_zone"`
}

// TabsConfig 标签页名称
type TabsConfig struct {
	Main       string `toml:"main"`
	TodoMaster string `toml:"todo_master"`
	Var        string `toml:"var"`
	Queue      string `toml:"queue"`
}

// CacheConfig 聚合缓存配置
type CacheConfig struct {
	TTL        Duration `toml:"ttl"`
	Background bool     `toml:"background"`
}

// SyncConfig 生产同步配置
type SyncConfig struct {
	Enabled              bool         `toml:"enabled"`
	Interval             Duration     `toml:"interval"`
	ControlSpreadsheetID string       `toml:"control_spreadsheet_id"` // 为空时使用 PME 表格
	ControlTab           string       `toml:"control_tab"`
	ControlCell          string       `toml:"control_cell"`
	ExternalSpan         string       `toml:"external_span"`
	Pairs                []PairConfig `toml:"pairs"`
}

// PairConfig 同步配对，列以字母表示
type PairConfig struct {
	Name                 string `toml:"name"`
	SourceSpreadsheetID  string `toml:"source_spreadsheet_id"` // 为空时使用控制表格
	SourceTab            string `toml:"source_tab"`
	SourceSpan           string `toml:"source_span"`
	TimestampColumn      string `toml:"timestamp_column"`
	ReferenceColumn      string `toml:"reference_column"`
	TargetSpreadsheetID  string `toml:"target_spreadsheet_id"` // 为空时使用控制表格
	TargetTab            string `toml:"target_tab"`
	TargetSpan           string `toml:"target_span"`
}

// Duration 支持 "5m"、"30s" 形式的时长
type Duration struct {
	time.Duration
}

// UnmarshalText 解析时长字符串
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	d.Duration = v
	return nil
}

// MarshalText 输出时长字符串
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:    8080,
			DevMode: false,
		},
		Data: DataConfig{
			DataDir: "data",
		},
		Sheets: SheetsConfig{
			Backend:     BackendGoogle,
			WorkbookDir: "workbooks",
			CallTimeout: Duration{sheetstore.DefaultCallTimeout},
			TimeZone:    "UTC",
		},
		Tabs: TabsConfig{
			Main:       "MAIN",
			TodoMaster: "TO_DO_MASTER",
			Var:        "VAR",
			Queue:      "QUEUE",
		},
		Cache: CacheConfig{
			TTL:        Duration{5 * time.Minute},
			Background: true,
		},
		Sync: SyncConfig{
			Enabled:      true,
			Interval:     Duration{prodsync.DefaultInterval},
			ExternalSpan: prodsync.DefaultExternalSpan,
		},
		baseDir: ".",
	}
}

// ExampleConfig 默认配置加上占位的表格 ID 与两组同步配对，供 config init 写出
func ExampleConfig() *AppConfig {
	cfg := DefaultConfig()
	cfg.Sheets.PMESpreadsheetID = "your-pme-spreadsheet-id"
	cfg.Sheets.WorkflowSpreadsheetID = "your-workflow-spreadsheet-id"
	cfg.Sheets.CredentialsFile = "service-account.json"
	cfg.Sync.ControlTab = "CONTROL"
	cfg.Sync.ControlCell = "B1"
	cfg.Sync.Pairs = []PairConfig{
		{
			Name:            "production",
			SourceTab:       "PRODUCTION_LOG",
			TimestampColumn: "A",
			ReferenceColumn: "C",
			TargetTab:       "PRODUCTION",
		},
		{
			Name:            "collections",
			SourceTab:       "COLLECTIONS_LOG",
			TimestampColumn: "A",
			ReferenceColumn: "C",
			TargetTab:       "COLLECTIONS",
		},
	}
	return cfg
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// DefaultPath 默认配置文件路径：可执行文件同目录下的 config.toml
func DefaultPath() string {
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}
	return filepath.Join(exeDir, ConfigFileName)
}

// Load 加载配置。path 为空时使用 DefaultPath；文件不存在时使用默认配置。
// 环境变量在文件之后覆盖。
func Load(path string) (*AppConfig, error) {
	if path == "" {
		path = DefaultPath()
	}
	config := DefaultConfig()
	config.baseDir = filepath.Dir(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// 配置文件不存在，使用默认配置
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv 环境变量覆盖（用于容器部署）
func (c *AppConfig) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("GOOGLE_SERVICE_ACCOUNT_KEY"); v != "" {
		c.Sheets.CredentialsJSON = v
	}

	strs := map[string]*string{
		"REI_DATA_DIR":                &c.Data.DataDir,
		"REI_SHEETS_BACKEND":          &c.Sheets.Backend,
		"REI_CREDENTIALS_FILE":        &c.Sheets.CredentialsFile,
		"REI_WORKBOOK_DIR":            &c.Sheets.WorkbookDir,
		"REI_PME_SPREADSHEET_ID":      &c.Sheets.PMESpreadsheetID,
		"REI_WORKFLOW_SPREADSHEET_ID": &c.Sheets.WorkflowSpreadsheetID,
		"REI_TIME_ZONE":               &c.Sheets.TimeZone,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"REI_CACHE_TTL":     &c.Cache.TTL,
		"REI_SYNC_INTERVAL": &c.Sync.Interval,
		"REI_CALL_TIMEOUT":  &c.Sheets.CallTimeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}

	if v := os.Getenv("REI_SYNC_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid REI_SYNC_ENABLED %q: %w", v, err)
		}
		c.Sync.Enabled = enabled
	}
	return nil
}

// Validate 启动前校验，缺失的必填项直接报错
func (c *AppConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Sheets.Backend {
	case BackendGoogle, BackendWorkbook, BackendMemory:
	default:
		add("sheets.backend must be one of google, workbook, memory (got %q)", c.Sheets.Backend)
	}
	if c.Sheets.PMESpreadsheetID == "" {
		add("sheets.pme_spreadsheet_id is required")
	}
	if c.Sheets.WorkflowSpreadsheetID == "" {
		add("sheets.workflow_spreadsheet_id is required")
	}
	if _, err := c.Location(); err != nil {
		add("sheets.time_zone: %v", err)
	}
	if c.Tabs.Main == "" || c.Tabs.TodoMaster == "" || c.Tabs.Var == "" || c.Tabs.Queue == "" {
		add("tabs.main, tabs.todo_master, tabs.var and tabs.queue are required")
	}
	if c.Cache.TTL.Duration <= 0 {
		add("cache.ttl must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port out of range: %d", c.Server.Port)
	}

	if c.Sync.Enabled {
		if c.Sync.Interval.Duration <= 0 {
			add("sync.interval must be positive")
		}
		if c.Sync.ControlTab == "" || c.Sync.ControlCell == "" {
			add("sync.control_tab and sync.control_cell are required when sync is enabled")
		}
		if len(c.Sync.Pairs) == 0 {
			add("sync.pairs: at least one pair is required when sync is enabled")
		}
		if _, err := c.SyncPairs(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ResolvePath 相对路径按配置文件目录解析
func (c *AppConfig) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// EnsureDataDir 确保数据目录存在并返回其路径
func (c *AppConfig) EnsureDataDir() (string, error) {
	dataDir := c.ResolvePath(c.Data.DataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}

// DBPath 同步台账数据库路径
func (c *AppConfig) DBPath() string {
	return filepath.Join(c.ResolvePath(c.Data.DataDir), "reiapi.db")
}

// WorkbookDir workbook 后端目录（相对路径位于数据目录下）
func (c *AppConfig) WorkbookDir() string {
	dir := c.Sheets.WorkbookDir
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.ResolvePath(c.Data.DataDir), dir)
}

// Location 日期解析使用的时区
func (c *AppConfig) Location() (*time.Location, error) {
	if c.Sheets.TimeZone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Sheets.TimeZone)
}

// MainRange 主数据标签页范围
func (c *AppConfig) MainRange() sheetstore.RangeRef {
	return sheetstore.Ref(c.Sheets.PMESpreadsheetID, c.Tabs.Main, "A:ZZ")
}

func (c *AppConfig) controlSpreadsheet() string {
	if c.Sync.ControlSpreadsheetID != "" {
		return c.Sync.ControlSpreadsheetID
	}
	return c.Sheets.PMESpreadsheetID
}

// ControlCell 控制单元格
func (c *AppConfig) ControlCell() sheetstore.RangeRef {
	return sheetstore.Ref(c.controlSpreadsheet(), c.Sync.ControlTab, c.Sync.ControlCell)
}

// SyncPairs 转换为同步任务使用的配对
func (c *AppConfig) SyncPairs() ([]prodsync.PairConfig, error) {
	pairs := make([]prodsync.PairConfig, 0, len(c.Sync.Pairs))
	for i, p := range c.Sync.Pairs {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("pair%d", i+1)
		}
		if p.SourceTab == "" || p.TargetTab == "" {
			return nil, fmt.Errorf("sync.pairs[%s]: source_tab and target_tab are required", name)
		}
		tsCol, err := sheetstore.ColumnIndex(p.TimestampColumn)
		if err != nil {
			return nil, fmt.Errorf("sync.pairs[%s]: invalid timestamp_column %q: %w", name, p.TimestampColumn, err)
		}
		refCol, err := sheetstore.ColumnIndex(p.ReferenceColumn)
		if err != nil {
			return nil, fmt.Errorf("sync.pairs[%s]: invalid reference_column %q: %w", name, p.ReferenceColumn, err)
		}

		source := sheetstore.Ref(orDefault(p.SourceSpreadsheetID, c.controlSpreadsheet()), p.SourceTab, orDefault(p.SourceSpan, "A:ZZ"))
		target := sheetstore.Ref(orDefault(p.TargetSpreadsheetID, c.controlSpreadsheet()), p.TargetTab, orDefault(p.TargetSpan, "A:ZZ"))
		if _, err := target.Start(); err != nil {
			return nil, fmt.Errorf("sync.pairs[%s]: invalid target_span: %w", name, err)
		}
		// 列下标相对于来源范围的起始列
		offset := 0
		if start, err := source.Start(); err == nil {
			col := strings.TrimRight(start, "0123456789")
			if idx, err := sheetstore.ColumnIndex(col); err == nil {
				offset = idx
			}
		} else {
			return nil, fmt.Errorf("sync.pairs[%s]: invalid source_span: %w", name, err)
		}
		if tsCol < offset || refCol < offset {
			return nil, fmt.Errorf("sync.pairs[%s]: columns must lie inside source_span %s", name, source.Span)
		}

		pairs = append(pairs, prodsync.PairConfig{
			Name:            name,
			Source:          source,
			TimestampColumn: tsCol - offset,
			ReferenceColumn: refCol - offset,
			Target:          target,
		})
	}
	return pairs, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Save 保存配置到 path
func Save(config *AppConfig, path string) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
