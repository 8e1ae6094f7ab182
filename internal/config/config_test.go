package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleConfig = `
[server]
port = 9090

[sheets]
backend = "workbook"
pme_spreadsheet_id = "pme"
workflow_spreadsheet_id = "wf"
time_zone = "America/Chicago"
call_timeout = "10s"

[cache]
ttl = "2m"

[sync]
interval = "15m"
control_tab = "CONTROL"
control_cell = "B2"

[[sync.pairs]]
name = "residential"
source_tab = "FORMS_A"
source_span = "B:F"
timestamp_column = "B"
reference_column = "F"
target_tab = "PROD_A"

[[sync.pairs]]
source_spreadsheet_id = "forms"
source_tab = "FORMS_B"
timestamp_column = "A"
reference_column = "AA"
target_spreadsheet_id = "prod"
target_tab = "PROD_B"
target_span = "A2:Z"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Sheets.Backend != BackendWorkbook {
		t.Fatalf("server/sheets not parsed: %+v %+v", cfg.Server, cfg.Sheets)
	}
	if cfg.Cache.TTL.Duration != 2*time.Minute || cfg.Sync.Interval.Duration != 15*time.Minute {
		t.Fatalf("durations: ttl=%v interval=%v", cfg.Cache.TTL, cfg.Sync.Interval)
	}
	if cfg.Sheets.CallTimeout.Duration != 10*time.Second {
		t.Fatalf("call timeout: %v", cfg.Sheets.CallTimeout)
	}
	// 未出现在文件中的项保留默认值
	if cfg.Tabs.Main != "MAIN" || !cfg.Cache.Background || cfg.Sync.ExternalSpan != "A:ZZ" {
		t.Fatalf("defaults lost: %+v %+v", cfg.Tabs, cfg.Sync)
	}
	if got := cfg.DBPath(); got != filepath.Join(filepath.Dir(path), "data", "reiapi.db") {
		t.Fatalf("DBPath=%s", got)
	}

	control := cfg.ControlCell()
	if control.SpreadsheetID != "pme" || control.A1() != "CONTROL!B2" {
		t.Fatalf("control cell: %+v", control)
	}
}

func TestSyncPairsResolveColumnsAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pairs, err := cfg.SyncPairs()
	if err != nil {
		t.Fatalf("SyncPairs: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("len(pairs)=%d", len(pairs))
	}

	a := pairs[0]
	if a.Name != "residential" || a.TimestampColumn != 0 || a.ReferenceColumn != 4 {
		t.Fatalf("pair a columns should be relative to B:F: %+v", a)
	}
	if a.Source.SpreadsheetID != "pme" || a.Target.Span != "A:ZZ" {
		t.Fatalf("pair a defaults: %+v", a)
	}

	b := pairs[1]
	if b.Name != "pair2" || b.ReferenceColumn != 26 {
		t.Fatalf("pair b: %+v", b)
	}
	if b.Source.SpreadsheetID != "forms" || b.Target.SpreadsheetID != "prod" || b.Target.Span != "A2:Z" {
		t.Fatalf("pair b refs: %+v", b)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Cache.TTL.Duration != 5*time.Minute {
		t.Fatalf("defaults: %+v", cfg)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatalf("defaults without spreadsheet ids must not validate")
	}
	for _, want := range []string{"pme_spreadsheet_id", "control_tab", "at least one pair"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("validation error %q missing %q", err, want)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("PORT", "7000")
	t.Setenv("REI_PME_SPREADSHEET_ID", "pme-from-env")
	t.Setenv("REI_CACHE_TTL", "90s")
	t.Setenv("REI_SYNC_ENABLED", "false")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_KEY", `{"type":"service_account"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7000 || cfg.Sheets.PMESpreadsheetID != "pme-from-env" {
		t.Fatalf("env not applied: %+v %+v", cfg.Server, cfg.Sheets)
	}
	if cfg.Cache.TTL.Duration != 90*time.Second || cfg.Sync.Enabled {
		t.Fatalf("env durations/bools not applied: %+v %+v", cfg.Cache, cfg.Sync)
	}
	if cfg.Sheets.CredentialsJSON == "" {
		t.Fatalf("service account key should be taken from env")
	}

	t.Setenv("REI_SYNC_INTERVAL", "soon")
	if _, err := Load(path); err == nil {
		t.Fatalf("invalid duration in env should fail")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Sheets.Backend = "excel"
	cfg.Sheets.TimeZone = "Mars/Olympus"
	cfg.Sync.Pairs[0].TimestampColumn = "A" // 在 B:F 之外

	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	for _, want := range []string{"sheets.backend", "time_zone", "inside source_span"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("validation error %q missing %q", err, want)
		}
	}
}

func TestInvalidDurationInFile(t *testing.T) {
	path := writeConfig(t, "[cache]\nttl = \"five minutes\"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	out := filepath.Join(t.TempDir(), "copy", ConfigFileName)
	if err := Save(cfg, out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, err := Load(out)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Cache.TTL != cfg.Cache.TTL || len(again.Sync.Pairs) != 2 || again.Sync.Pairs[1].ReferenceColumn != "AA" {
		t.Fatalf("round trip mismatch: %+v", again)
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg := ExampleConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	pairs, err := cfg.SyncPairs()
	if err != nil {
		t.Fatalf("SyncPairs: %v", err)
	}
	if len(pairs) != 2 || pairs[0].ReferenceColumn != 2 {
		t.Fatalf("unexpected pairs: %+v", pairs)
	}
	if pairs[0].Target.SpreadsheetID != "your-pme-spreadsheet-id" {
		t.Fatalf("target spreadsheet should default to PME: %q", pairs[0].Target.SpreadsheetID)
	}
}
