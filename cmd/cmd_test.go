package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sourjya261-BB/Jira-Router/internal/classify"
	"github.com/Sourjya261-BB/Jira-Router/internal/evaluate"
	"github.com/Sourjya261-BB/Jira-Router/internal/output"
	"github.com/Sourjya261-BB/Jira-Router/internal/tui"
)

var configEnv = []string{
	"JIRA_SERVER", "JIRA_EMAIL", "JIRA_API_TOKEN", "JIRA_AUTH_TYPE", "JIRA_TEAM_FIELD",
	"JIRA_ISSUE_TYPES", "JIRA_REQUESTS_PER_SECOND", "DAYS_BACK", "TEAM_WHITELIST",
	"BATCH_SIZE", "MAX_WORKERS", "EXPORT_OUTPUT", "DEDUPE_KEYS", "MODEL_URL", "MODEL_TIMEOUT",
}

// isolate clears configuration from the environment and points the run
// history at a temporary directory.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, "cache"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := New()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func modelServer(t *testing.T, label string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"label":"` + label + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew(t *testing.T) {
	cmd := New()
	if cmd == nil {
		t.Fatal("New() returned nil")
	}
	if cmd.Use != "jira-router" {
		t.Errorf("expected Use to be 'jira-router', got %q", cmd.Use)
	}

	want := map[string]bool{"export": false, "predict": false, "evaluate": false, "stats": false, "config": false, "version": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}

	for _, flag := range []string{"config", "verbose", "tui"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("global flag --%s missing", flag)
		}
	}
}

func TestNewCmdConfig(t *testing.T) {
	cmd := NewCmdConfig(NewOptions())
	if cmd.Use != "config" {
		t.Errorf("expected Use to be 'config', got %q", cmd.Use)
	}
	subs := map[string]bool{}
	for _, sub := range cmd.Commands() {
		subs[sub.Name()] = true
	}
	for _, name := range []string{"init", "path", "defaults", "show"} {
		if !subs[name] {
			t.Errorf("config subcommand %q missing", name)
		}
	}
}

func TestNewOptions(t *testing.T) {
	on := true
	o := NewOptions(WithConfigPath("c.yaml"), WithVerbosity(2), WithTUI(&on))
	if o.ConfigPath != "c.yaml" || o.Verbosity != 2 || o.TUI == nil || !*o.TUI {
		t.Errorf("unexpected options %+v", o)
	}
}

func TestTUIFlag(t *testing.T) {
	tests := []struct {
		value   string
		want    string
		wantErr bool
	}{
		{"true", "true", false},
		{"yes", "true", false},
		{"0", "false", false},
		{"auto", "auto", false},
		{"maybe", "auto", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			opts := NewOptions()
			f := newTUIFlag(opts)
			err := f.Set(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set(%q) error = %v", tt.value, err)
			}
			if f.String() != tt.want {
				t.Errorf("String() = %q, want %q", f.String(), tt.want)
			}
		})
	}
}

func TestShouldUseTUI(t *testing.T) {
	on, off := true, false
	if shouldUseTUI(NewOptions(WithTUI(&on), WithVerbosity(1))) {
		t.Error("verbose logging should disable the TUI")
	}
	if !shouldUseTUI(NewOptions(WithTUI(&on))) {
		t.Error("--tui should force the TUI")
	}
	if shouldUseTUI(NewOptions(WithTUI(&off))) {
		t.Error("--tui=false should disable the TUI")
	}
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc", "")
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "jira-router 1.2.3") || !strings.Contains(out, "commit: abc") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestConfigShow_RedactsToken(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "jira:\n  server: https://jira.example.com\n  token: s3cret\n")

	out, err := execute(t, "config", "show", "--config", path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "s3cret") {
		t.Errorf("token leaked:\n%s", out)
	}
	if !strings.Contains(out, "server: https://jira.example.com") {
		t.Errorf("unexpected config output:\n%s", out)
	}
}

func TestConfigInit_Local(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	var out bytes.Buffer
	if err := runConfigInit(strings.NewReader("2\n"), &out, false, false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".jira-router.yaml")); err != nil {
		t.Errorf("local config not created: %v", err)
	}
	if err := runConfigInit(strings.NewReader(""), &out, false, true); err == nil {
		t.Error("expected an error for an existing config file")
	}
	if err := runConfigInit(strings.NewReader(""), &out, true, true); err == nil {
		t.Error("expected an error for --global with --local")
	}
}

func TestPredict(t *testing.T) {
	isolate(t)
	srv := modelServer(t, "payments")
	path := writeConfig(t, "model:\n  url: "+srv.URL+"\n")

	out, err := execute(t, "predict", "--config", path, "-s", "Pay fails", "-d", "Clicking pay does nothing")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "Predicted team: payments" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestPredict_MissingInput(t *testing.T) {
	isolate(t)
	_, err := execute(t, "predict", "-s", "only a summary")
	if !errors.Is(err, classify.ErrMissingInput) {
		t.Errorf("expected ErrMissingInput, got %v", err)
	}
}

func TestPredict_MissingModelURL(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "jira:\n  server: https://jira.example.com\n")
	_, err := execute(t, "predict", "--config", path, "-s", "a", "-d", "b")
	if err == nil || !strings.Contains(err.Error(), "MODEL_URL") {
		t.Errorf("expected a missing model url error, got %v", err)
	}
}

const labelledCSV = `Issue Key,Summary,Reporter,Assignee,Status,Created,Updated,Fixed By,Description,Issue Type
BUG-1,Pay fails,Ann,Bob,Open,c,u,payments,Clicking pay does nothing,Bug
BUG-2,Search slow,Ann,Bob,Open,c,u,search,Queries take 10s,Bug
BUG-3,Refund stuck,Ann,Bob,Open,c,u,payments,Refund never lands,Transient Bug
`

func TestEvaluate(t *testing.T) {
	isolate(t)
	srv := modelServer(t, "payments")
	csvPath := filepath.Join(t.TempDir(), "issues.csv")
	if err := os.WriteFile(csvPath, []byte(labelledCSV), 0644); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, "model:\n  url: "+srv.URL+"\n")

	out, err := execute(t, "evaluate", "--config", path, "-f", csvPath, "-n", "10", "--seed", "7", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var report output.JSONReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if report.Total != 3 || report.Correct != 2 || report.Failed != 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestEvaluate_InvalidFlags(t *testing.T) {
	isolate(t)
	if _, err := execute(t, "evaluate", "-n", "11"); !errors.Is(err, evaluate.ErrSampleSize) {
		t.Errorf("expected ErrSampleSize, got %v", err)
	}
	if _, err := execute(t, "evaluate", "-o", "csv"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestExport(t *testing.T) {
	isolate(t)

	var auth string
	jiraSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"startAt":0,"maxResults":50,"total":2,"issues":[
			{"key":"BUG-1","fields":{"summary":"Pay fails","description":"Clicking pay","issuetype":{"name":"Bug"},"customfield_14600":{"value":"payments"}}},
			{"key":"BUG-2","fields":{"summary":"Nobody owns this","issuetype":{"name":"Bug"}}}
		]}`))
	}))
	defer jiraSrv.Close()

	outPath := filepath.Join(t.TempDir(), "data", "issues.csv")
	path := writeConfig(t, `jira:
  server: `+jiraSrv.URL+`
  email: bot@example.com
  token: secret
export:
  output: `+outPath+`
`)

	out, err := execute(t, "export", "--config", path, "--tui=false")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(auth, "Basic ") {
		t.Errorf("expected basic auth, got %q", auth)
	}
	if !strings.Contains(out, "Successfully wrote 1 issues to "+outPath) {
		t.Errorf("unexpected summary:\n%s", out)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "BUG-1") || strings.Contains(string(data), "BUG-2") {
		t.Errorf("unexpected CSV:\n%s", data)
	}

	runs, err := execute(t, "stats", "--tui=false", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(runs, `"written": 1`) {
		t.Errorf("run not recorded:\n%s", runs)
	}
}

func TestExport_InvalidConfig(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "jira:\n  server: https://jira.example.com\n")
	_, err := execute(t, "export", "--config", path, "--tui=false")
	if err == nil || !strings.Contains(err.Error(), "JIRA_API_TOKEN") {
		t.Errorf("expected a missing token error, got %v", err)
	}
}

func TestRuntimeClose_SendsDone(t *testing.T) {
	events := make(chan tui.Event, 1)
	rt := &cmdRuntime{useTUI: true, events: events, tuiDone: make(chan error, 1)}
	rt.tuiDone <- nil

	rt.close()

	if _, ok := (<-events).(tui.DoneEvent); !ok {
		t.Error("expected a DoneEvent before the channel closes")
	}
	if _, open := <-events; open {
		t.Error("event channel should be closed")
	}
	if rt.events != nil {
		t.Error("close should reset the event channel")
	}
	rt.close()
}
