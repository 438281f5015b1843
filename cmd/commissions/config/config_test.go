package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taarcom-commissions/internal/reconciler"
	"taarcom-commissions/internal/reporter"
	"taarcom-commissions/pkg/errors"
	"taarcom-commissions/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestCommissionConfigDefaults(t *testing.T) {
	config, err := CommissionConfig(newViper())
	if err != nil {
		t.Fatalf("failed to build commission config: %v", err)
	}
	if !config.SalesRate.Equal(decimal.RequireFromString("0.45")) {
		t.Errorf("expected sales rate 0.45, got %s", config.SalesRate)
	}
	if !config.DefaultCMSplit.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected default CM split 20, got %s", config.DefaultCMSplit)
	}
	if config.InvoiceYearWindow != 1 || config.MaxLookupAgeDays != 720 || config.RevenueQuarters != 5 {
		t.Errorf("unexpected defaults %+v", config)
	}
	if !config.RefreshLastUsed || !config.RootCustomerHint {
		t.Error("expected lookup refresh and root-customer hint on by default")
	}
}

func TestCommissionConfigOverrides(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   interface{}
		wantErr bool
	}{
		{"sales rate", KeySalesRate, "0.5", false},
		{"sales rate as number", KeySalesRate, 0.4, false},
		{"sales rate not numeric", KeySalesRate, "forty", true},
		{"sales rate above one", KeySalesRate, "1.5", true},
		{"split above 100", KeyDefaultCMSplit, "120", true},
		{"negative year window", KeyInvoiceYearWindow, -1, true},
		{"zero lookup age", KeyMaxLookupAgeDays, 0, true},
		{"zero revenue quarters", KeyRevenueQuarters, 0, true},
		{"wider year window", KeyInvoiceYearWindow, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.value)
			_, err := CommissionConfig(v)
			if tt.wantErr {
				if !errors.HasCode(err, errors.CodeInvalidConfig) {
					t.Errorf("expected invalid config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBindEnv(t *testing.T) {
	t.Setenv("COMMISSIONS_COMMISSION_SALES_RATE", "0.40")
	t.Setenv("COMMISSIONS_DIRS_WORKING", "/srv/working")

	v := newViper()
	BindEnv(v)

	if got := v.GetString(KeySalesRate); got != "0.40" {
		t.Errorf("expected sales rate from env, got %q", got)
	}
	if got := v.GetString(KeyWorkingDir); got != "/srv/working" {
		t.Errorf("expected working dir from env, got %q", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	if err := LoadDotEnv(filepath.Join(dir, ".env")); err != nil {
		t.Errorf("a missing .env must be ignored, got %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("COMMISSIONS_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("COMMISSIONS_TEST_DOTENV") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("failed to load .env: %v", err)
	}
	if got := os.Getenv("COMMISSIONS_TEST_DOTENV"); got != "loaded" {
		t.Errorf("expected variable from .env, got %q", got)
	}
}

func TestReadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "commissions.yaml")
	content := "commission:\n  sales_rate: \"0.5\"\nclose:\n  revenue_quarters: 8\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	v := newViper()
	if err := ReadConfigFile(v, path); err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	config, err := CommissionConfig(v)
	if err != nil {
		t.Fatalf("failed to build commission config: %v", err)
	}
	if !config.SalesRate.Equal(decimal.RequireFromString("0.5")) || config.RevenueQuarters != 8 {
		t.Errorf("config file values not applied: %+v", config)
	}

	if err := ReadConfigFile(newViper(), filepath.Join(dir, "missing.yaml")); !errors.HasCode(err, errors.CodeInvalidConfig) {
		t.Errorf("expected configuration error for a missing file, got %v", err)
	}
	if err := ReadConfigFile(newViper(), ""); err != nil {
		t.Errorf("no config file is not an error, got %v", err)
	}
}

func TestResolveDirs(t *testing.T) {
	cwd := t.TempDir()
	for _, name := range []string{"Lookups", "Working"} {
		if err := os.Mkdir(filepath.Join(cwd, name), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
	absolute := t.TempDir()

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, logger.WarnLevel)

	v := newViper()
	v.Set(KeyReportsDir, absolute)
	v.Set(KeyInsightsDir, "Missing")
	dirs := ResolveDirs(v, cwd, log)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"relative lookups", dirs.Lookups, filepath.Join(cwd, "Lookups")},
		{"relative working", dirs.Working, filepath.Join(cwd, "Working")},
		{"absolute reports", dirs.Reports, absolute},
		{"missing insights", dirs.Insights, cwd},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if !strings.Contains(buf.String(), KeyInsightsDir) {
		t.Errorf("expected a warning naming %s, got %q", KeyInsightsDir, buf.String())
	}
}

func TestResolveDirRejectsFiles(t *testing.T) {
	cwd := t.TempDir()
	file := filepath.Join(cwd, "Working")
	if err := os.WriteFile(file, []byte("not a dir"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := ResolveDir(KeyWorkingDir, "Working", cwd, nil); got != cwd {
		t.Errorf("expected fallback to cwd, got %q", got)
	}
	if got := ResolveDir(KeyWorkingDir, "  ", cwd, nil); got != cwd {
		t.Errorf("expected cwd for an empty setting, got %q", got)
	}
}

func TestLoggerConfig(t *testing.T) {
	v := newViper()
	config := LoggerConfig(v)
	if err := config.Validate(); err != nil {
		t.Errorf("default logger config should be valid: %v", err)
	}
	if config.Level != logger.InfoLevel {
		t.Errorf("expected info level, got %s", config.Level)
	}

	v.Set(KeyLogFormat, "JSON")
	v.Set(KeyVerbose, true)
	config = LoggerConfig(v)
	if config.Format != logger.JSONFormat || config.Level != logger.DebugLevel {
		t.Errorf("unexpected logger config %+v", config)
	}
}

func TestReportConfig(t *testing.T) {
	tests := []struct {
		format  string
		want    reporter.OutputFormat
		wantErr bool
	}{
		{"console", reporter.FormatConsole, false},
		{"JSON", reporter.FormatJSON, false},
		{" csv ", reporter.FormatCSV, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			config, err := ReportConfig(tt.format)
			if tt.wantErr {
				if !errors.HasCode(err, errors.CodeInvalidConfig) {
					t.Errorf("expected invalid config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Format != tt.want {
				t.Errorf("format = %s, want %s", config.Format, tt.want)
			}
			if err := config.Validate(); err != nil {
				t.Errorf("report config should be valid: %v", err)
			}
		})
	}
}

func TestOutputPath(t *testing.T) {
	dirs := reconciler.Dirs{Insights: "/data/insights"}
	tests := []struct {
		name string
		want string
	}{
		{"", ""},
		{"summary.json", filepath.Join("/data/insights", "summary.json")},
		{"out/summary.json", "out/summary.json"},
		{"/tmp/summary.json", "/tmp/summary.json"},
	}
	for _, tt := range tests {
		if got := OutputPath(tt.name, dirs); got != tt.want {
			t.Errorf("OutputPath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
