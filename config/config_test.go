package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every bound variable; viper treats empty values as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadFiles_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFiles()
	if err != nil {
		t.Fatalf("LoadFiles() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"AuthType", cfg.Jira.AuthType, "basic"},
		{"TeamField", cfg.Jira.TeamField, "customfield_14600"},
		{"IssueTypes", cfg.Jira.IssueTypes, []string{"Bug", "Transient Bug"}},
		{"LookbackDays", cfg.Export.LookbackDays, 60},
		{"BatchSize", cfg.Export.BatchSize, 50},
		{"MaxWorkers", cfg.Export.MaxWorkers, 5},
		{"Output", cfg.Export.Output, "data/issues.csv"},
		{"DedupeKeys", cfg.Export.DedupeKeys, true},
		{"ModelTimeout", cfg.Model.Timeout, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
	if cfg.Export.TeamWhitelist != nil {
		t.Errorf("expected empty whitelist, got %v", cfg.Export.TeamWhitelist)
	}
}

func TestLoadFiles_LocalOverridesGlobal(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	global := writeFile(t, dir, "global.yaml", `
jira:
  server: https://global.example.com/
  email: global@example.com
export:
  lookback_days: 30
  max_workers: 3
`)
	local := writeFile(t, dir, "local.yaml", `
export:
  lookback_days: 7
  team_whitelist:
    - Payments
    - checkout;Search
`)

	cfg, err := LoadFiles(global, local)
	if err != nil {
		t.Fatalf("LoadFiles() error: %v", err)
	}

	if cfg.Jira.Server != "https://global.example.com" {
		t.Errorf("Server = %q, want trailing slash trimmed", cfg.Jira.Server)
	}
	if cfg.Jira.Email != "global@example.com" {
		t.Errorf("Email = %q, want global value preserved", cfg.Jira.Email)
	}
	if cfg.Export.LookbackDays != 7 {
		t.Errorf("LookbackDays = %d, want local value 7", cfg.Export.LookbackDays)
	}
	if cfg.Export.MaxWorkers != 3 {
		t.Errorf("MaxWorkers = %d, want global value 3", cfg.Export.MaxWorkers)
	}
	want := []string{"payments", "checkout", "search"}
	if !reflect.DeepEqual(cfg.Export.TeamWhitelist, want) {
		t.Errorf("TeamWhitelist = %v, want %v", cfg.Export.TeamWhitelist, want)
	}
}

func TestLoadFiles_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
jira:
  server: https://file.example.com
export:
  lookback_days: 30
`)

	t.Setenv("JIRA_SERVER", "https://env.example.com")
	t.Setenv("JIRA_API_TOKEN", "secret")
	t.Setenv("DAYS_BACK", "14")
	t.Setenv("TEAM_WHITELIST", "Core | Growth\nInfra")
	t.Setenv("JIRA_ISSUE_TYPES", "Bug,Incident")
	t.Setenv("DEDUPE_KEYS", "false")
	t.Setenv("MODEL_TIMEOUT", "5s")

	cfg, err := LoadFiles(path)
	if err != nil {
		t.Fatalf("LoadFiles() error: %v", err)
	}

	if cfg.Jira.Server != "https://env.example.com" {
		t.Errorf("Server = %q, want env value", cfg.Jira.Server)
	}
	if cfg.Jira.Token != "secret" {
		t.Errorf("Token = %q, want env value", cfg.Jira.Token)
	}
	if cfg.Export.LookbackDays != 14 {
		t.Errorf("LookbackDays = %d, want 14", cfg.Export.LookbackDays)
	}
	if want := []string{"core", "growth", "infra"}; !reflect.DeepEqual(cfg.Export.TeamWhitelist, want) {
		t.Errorf("TeamWhitelist = %v, want %v", cfg.Export.TeamWhitelist, want)
	}
	if want := []string{"Bug", "Incident"}; !reflect.DeepEqual(cfg.Jira.IssueTypes, want) {
		t.Errorf("IssueTypes = %v, want %v", cfg.Jira.IssueTypes, want)
	}
	if cfg.Export.DedupeKeys {
		t.Error("DedupeKeys = true, want false from env")
	}
	if cfg.Model.Timeout != 5*time.Second {
		t.Errorf("Model.Timeout = %v, want 5s", cfg.Model.Timeout)
	}
}

func TestLoadFiles_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	if _, err := LoadFiles(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want []string
	}{
		{"nil", nil, nil},
		{"empty", "", nil},
		{"commas", "a, b ,c", []string{"a", "b", "c"}},
		{"mixed separators", "a;b|c\nd", []string{"a", "b", "c", "d"}},
		{"drops blanks", "a,, ;b", []string{"a", "b"}},
		{"yaml list", []any{"a", "b;c"}, []string{"a", "b", "c"}},
		{"string slice", []string{" x ", "y"}, []string{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitList(tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitList(%#v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeWhitelist(t *testing.T) {
	got := NormalizeWhitelist([]string{"Payments", " payments ", "", "CHECKOUT"})
	want := []string{"payments", "checkout"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeWhitelist() = %v, want %v", got, want)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Jira.Server = "https://jira.example.com"
		cfg.Jira.Email = "me@example.com"
		cfg.Jira.Token = "token"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing server", mutate: func(c *Config) { c.Jira.Server = "" }, wantErr: "JIRA_SERVER"},
		{name: "missing token", mutate: func(c *Config) { c.Jira.Token = "" }, wantErr: "JIRA_API_TOKEN"},
		{name: "basic needs email", mutate: func(c *Config) { c.Jira.Email = "" }, wantErr: "jira.email is required"},
		{name: "bearer without email", mutate: func(c *Config) {
			c.Jira.AuthType = "bearer"
			c.Jira.Email = ""
		}},
		{name: "unknown auth type", mutate: func(c *Config) { c.Jira.AuthType = "digest" }, wantErr: "jira.auth_type is invalid"},
		{name: "zero lookback", mutate: func(c *Config) { c.Export.LookbackDays = 0 }, wantErr: "DAYS_BACK"},
		{name: "zero workers", mutate: func(c *Config) { c.Export.MaxWorkers = 0 }, wantErr: "MAX_WORKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateModel(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.ValidateModel(); err == nil || !strings.Contains(err.Error(), "MODEL_URL") {
		t.Errorf("ValidateModel() error = %v, want MODEL_URL hint", err)
	}
	cfg.Model.URL = "http://localhost:8000"
	if err := cfg.ValidateModel(); err != nil {
		t.Errorf("ValidateModel() unexpected error: %v", err)
	}
}

func TestCutoff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Export.LookbackDays = 60
	now := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))

	got := cfg.Cutoff(now).Format("2006-01-02")
	if got != "2024-01-01" {
		t.Errorf("Cutoff() = %s, want 2024-01-01", got)
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Jira.Token = "secret"

	out, err := cfg.Redacted().ToYAML()
	if err != nil {
		t.Fatalf("ToYAML() error: %v", err)
	}
	if strings.Contains(out, "secret") {
		t.Errorf("redacted YAML leaks the token:\n%s", out)
	}
	if cfg.Jira.Token != "secret" {
		t.Error("Redacted() modified the original config")
	}
}

func TestMinimalConfig(t *testing.T) {
	tmpl := MinimalConfig()
	if !strings.Contains(tmpl, `# "jira-router config defaults" for the full list of settings.`) {
		t.Errorf("template does not point at config defaults:\n%s", tmpl)
	}
	if !strings.Contains(tmpl, "team_field: customfield_14600") {
		t.Errorf("template lost the jira section:\n%s", tmpl)
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveTo(path, MinimalConfig()); err != nil {
		t.Fatalf("SaveTo() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	clearEnv(t)
	cfg, err := LoadFiles(path)
	if err != nil {
		t.Fatalf("minimal config does not load: %v", err)
	}
	if cfg.Export.LookbackDays != 60 {
		t.Errorf("LookbackDays = %d, want 60", cfg.Export.LookbackDays)
	}
}
