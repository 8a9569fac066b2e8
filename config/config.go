package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Sourjya261-BB/Jira-Router/internal/constants"
)

// Config represents the application configuration
type Config struct {
	Jira   JiraConfig   `yaml:"jira" mapstructure:"jira"`
	Export ExportConfig `yaml:"export" mapstructure:"export"`
	Model  ModelConfig  `yaml:"model" mapstructure:"model"`
}

// JiraConfig holds the Jira connection settings.
type JiraConfig struct {
	Server   string `yaml:"server" mapstructure:"server" validate:"required,url"`
	Email    string `yaml:"email,omitempty" mapstructure:"email" validate:"required_if=AuthType basic"`
	Token    string `yaml:"token,omitempty" mapstructure:"token" validate:"required"`
	AuthType string `yaml:"auth_type" mapstructure:"auth_type" validate:"oneof=basic bearer"`

	// TeamField is the custom field id holding the resolving team.
	TeamField  string   `yaml:"team_field" mapstructure:"team_field" validate:"required"`
	IssueTypes []string `yaml:"issue_types" mapstructure:"-" validate:"min=1,dive,required"`

	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" mapstructure:"requests_per_second" validate:"gte=0"`
}

// ExportConfig controls the bulk export.
type ExportConfig struct {
	LookbackDays  int      `yaml:"lookback_days" mapstructure:"lookback_days" validate:"gte=1"`
	TeamWhitelist []string `yaml:"team_whitelist,omitempty" mapstructure:"-"`
	BatchSize     int      `yaml:"batch_size" mapstructure:"batch_size" validate:"gte=1"`
	MaxWorkers    int      `yaml:"max_workers" mapstructure:"max_workers" validate:"gte=1"`
	Output        string   `yaml:"output" mapstructure:"output" validate:"required"`
	DedupeKeys    bool     `yaml:"dedupe_keys" mapstructure:"dedupe_keys"`
}

// ModelConfig points at the classification service.
type ModelConfig struct {
	URL     string        `yaml:"url,omitempty" mapstructure:"url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`

	// Labels maps label ids to team names for services that only return ids.
	Labels map[string]string `yaml:"labels,omitempty" mapstructure:"labels"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"jira.server":              "JIRA_SERVER",
	"jira.email":               "JIRA_EMAIL",
	"jira.token":               "JIRA_API_TOKEN",
	"jira.auth_type":           "JIRA_AUTH_TYPE",
	"jira.team_field":          "JIRA_TEAM_FIELD",
	"jira.issue_types":         "JIRA_ISSUE_TYPES",
	"jira.requests_per_second": "JIRA_REQUESTS_PER_SECOND",
	"export.lookback_days":     "DAYS_BACK",
	"export.team_whitelist":    "TEAM_WHITELIST",
	"export.batch_size":        "BATCH_SIZE",
	"export.max_workers":       "MAX_WORKERS",
	"export.output":            "EXPORT_OUTPUT",
	"export.dedupe_keys":       "DEDUPE_KEYS",
	"model.url":                "MODEL_URL",
	"model.timeout":            "MODEL_TIMEOUT",
}

var validate = validator.New()

// DefaultConfigDir returns the default config directory
func DefaultConfigDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ".jira-router"
	}
	return filepath.Join(configDir, "jira-router")
}

// ConfigPath returns the path to the global config file
func ConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// LocalConfigPath returns the path to the local config file in the current directory
func LocalConfigPath() string {
	return ".jira-router.yaml"
}

// Load resolves the configuration from defaults, config files, a .env file
// in the working directory and the environment, in increasing precedence.
//
// When path is empty the global config is read first and a local
// .jira-router.yaml is merged on top; either may be missing. An explicit path
// must exist.
func Load(path string) (*Config, error) {
	// A missing .env is fine; variables already set in the environment win.
	_ = godotenv.Load()

	if path != "" {
		return LoadFiles(path)
	}

	var files []string
	for _, p := range []string{ConfigPath(), LocalConfigPath()} {
		if _, err := os.Stat(p); err == nil {
			files = append(files, p)
		}
	}
	return LoadFiles(files...)
}

// LoadFiles reads the given YAML files in order, later files overriding
// earlier ones, then applies environment overrides.
func LoadFiles(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	for k, env := range envBindings {
		if err := v.BindEnv(k, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	for i, p := range paths {
		v.SetConfigFile(p)
		var err error
		if i == 0 {
			err = v.ReadInConfig()
		} else {
			err = v.MergeInConfig()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", p, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Jira.IssueTypes = SplitList(v.Get("jira.issue_types"))
	if len(cfg.Jira.IssueTypes) == 0 {
		cfg.Jira.IssueTypes = append([]string(nil), constants.DefaultIssueTypes...)
	}
	cfg.Export.TeamWhitelist = NormalizeWhitelist(SplitList(v.Get("export.team_whitelist")))
	cfg.Jira.AuthType = strings.ToLower(strings.TrimSpace(cfg.Jira.AuthType))
	cfg.Jira.Server = strings.TrimRight(cfg.Jira.Server, "/")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("jira.auth_type", d.Jira.AuthType)
	v.SetDefault("jira.team_field", d.Jira.TeamField)
	v.SetDefault("jira.requests_per_second", d.Jira.RequestsPerSecond)
	v.SetDefault("export.lookback_days", d.Export.LookbackDays)
	v.SetDefault("export.batch_size", d.Export.BatchSize)
	v.SetDefault("export.max_workers", d.Export.MaxWorkers)
	v.SetDefault("export.output", d.Export.Output)
	v.SetDefault("export.dedupe_keys", d.Export.DedupeKeys)
	v.SetDefault("model.timeout", d.Model.Timeout)
}

// DefaultConfig returns a config populated with every default value.
func DefaultConfig() *Config {
	return &Config{
		Jira: JiraConfig{
			AuthType:   "basic",
			TeamField:  constants.DefaultTeamField,
			IssueTypes: append([]string(nil), constants.DefaultIssueTypes...),
		},
		Export: ExportConfig{
			LookbackDays: constants.DefaultLookbackDays,
			BatchSize:    constants.DefaultBatchSize,
			MaxWorkers:   constants.DefaultMaxWorkers,
			Output:       constants.DefaultOutputPath,
			DedupeKeys:   true,
		},
		Model: ModelConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// SplitList turns a config value into a list. Strings are split on commas,
// semicolons, pipes and newlines; lists are flattened the same way. Entries
// are trimmed and empty entries dropped.
func SplitList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.FieldsFunc(val, func(r rune) bool {
			return r == ',' || r == ';' || r == '|' || r == '\n'
		})
	case []string:
		for _, s := range val {
			parts = append(parts, SplitList(s)...)
		}
	case []any:
		for _, s := range val {
			parts = append(parts, SplitList(fmt.Sprint(s))...)
		}
	default:
		parts = SplitList(fmt.Sprint(val))
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeWhitelist lowercases team names and drops duplicates.
func NormalizeWhitelist(teams []string) []string {
	var out []string
	seen := make(map[string]bool, len(teams))
	for _, t := range teams {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Validate checks the settings needed to run an export.
func (c *Config) Validate() error {
	if err := validate.Struct(c.Jira); err != nil {
		return describe(err, "jira")
	}
	if err := validate.Struct(c.Export); err != nil {
		return describe(err, "export")
	}
	return nil
}

// ValidateModel checks the settings needed to call the classification service.
func (c *Config) ValidateModel() error {
	if err := validate.Struct(c.Model); err != nil {
		return describe(err, "model")
	}
	return nil
}

// describe rewrites validator errors into messages that name the config key
// and the environment variable that sets it.
func describe(err error, section string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := section + "." + yamlKey(fe.StructField())
		msg := fmt.Sprintf("%s is invalid (%s)", key, fe.Tag())
		if strings.HasPrefix(fe.Tag(), "required") {
			msg = key + " is required"
		}
		if env, ok := envBindings[key]; ok {
			msg += fmt.Sprintf(" (set in config file or %s env var)", env)
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// yamlKey converts a Go field name to its snake_case config key.
func yamlKey(field string) string {
	switch field {
	case "URL":
		return "url"
	case "TeamWhitelist":
		return "team_whitelist"
	}
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Cutoff returns the earliest creation date included in an export.
func (c *Config) Cutoff(now time.Time) time.Time {
	return now.UTC().AddDate(0, 0, -c.Export.LookbackDays)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Jira.Token != "" {
		out.Jira.Token = "********"
	}
	return &out
}

// ToYAML returns the config as a YAML string
func (c *Config) ToYAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}

// ConfigPathInfo contains information about config file paths
type ConfigPathInfo struct {
	GlobalPath   string
	GlobalExists bool
	LocalPath    string
	LocalExists  bool
}

// GetConfigPaths returns path info for both global and local configs
func GetConfigPaths() ConfigPathInfo {
	globalPath := ConfigPath()
	localPath := LocalConfigPath()

	absLocalPath, err := filepath.Abs(localPath)
	if err != nil {
		absLocalPath = localPath
	}

	_, globalErr := os.Stat(globalPath)
	_, localErr := os.Stat(localPath)

	return ConfigPathInfo{
		GlobalPath:   globalPath,
		GlobalExists: globalErr == nil,
		LocalPath:    absLocalPath,
		LocalExists:  localErr == nil,
	}
}

// MinimalConfig returns a minimal config template with comments
func MinimalConfig() string {
	return `# jira-router configuration file
# Every key can be overridden from the environment; run
# "jira-router config defaults" for the full list of settings.

jira:
  server: https://your-company.atlassian.net   # JIRA_SERVER
  email: you@your-company.com                  # JIRA_EMAIL
  # token is best kept in JIRA_API_TOKEN or a .env file
  auth_type: basic                             # basic or bearer
  team_field: customfield_14600
  issue_types:
    - Bug
    - Transient Bug

export:
  lookback_days: 60                            # DAYS_BACK
  batch_size: 50
  max_workers: 5
  output: data/issues.csv
  # team_whitelist:
  #   - payments
  #   - checkout

# model:
#   url: http://localhost:8000                 # MODEL_URL
#   timeout: 30s
`
}

// SaveTo writes content to a specific path, creating directories as needed
func SaveTo(path string, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}

	return nil
}
