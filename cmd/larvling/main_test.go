package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/larvling/internal/memory"
)

const testSession = "5c0ffee0-aaaa-bbbb-cccc-000000000001"

// newProject creates a project dir with a seeded store.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	store, err := memory.Open(memory.DefaultConfig(dir))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, err := store.EnsureSchema(); err != nil {
		t.Fatalf("schema: %v", err)
	}

	tx, err := store.Begin()
	if err != nil {
		t.Fatal(err)
	}
	id, err := tx.InsertTopic("Go", memory.DomainTechnical, "go")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.InsertStatement(id, "Uses modules"); err != nil {
		t.Fatal(err)
	}
	if err := tx.EnsureSession(testSession); err != nil {
		t.Fatal(err)
	}
	if err := tx.RecordMessage(testSession, memory.RoleUser, "How do I vendor?", nil); err != nil {
		t.Fatal(err)
	}
	if err := tx.RecordMessage(testSession, memory.RoleAssistant, "Run go mod vendor.", map[string]any{"tool_calls": map[string]int{"Bash": 2}}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return dir
}

// run executes the CLI with args against dir and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--project", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestQuery_Table(t *testing.T) {
	dir := newProject(t)
	out, err := run(t, dir, "query", "SELECT id, title FROM topics")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(out, "title") || !strings.Contains(out, "Go") {
		t.Errorf("table missing rows: %s", out)
	}
	if !strings.Contains(out, "(1 rows)") {
		t.Errorf("row count missing: %s", out)
	}
}

func TestQuery_JSONAndEmpty(t *testing.T) {
	dir := newProject(t)
	out, err := run(t, dir, "query", "SELECT claim FROM statements", "--json")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("not JSON: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0]["claim"] != "Uses modules" {
		t.Errorf("rows = %v", rows)
	}

	out, err = run(t, dir, "query", "SELECT * FROM tasks")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if strings.TrimSpace(out) != "No rows returned." {
		t.Errorf("empty result = %q", out)
	}
}

func TestQuery_WritesAndReadOnly(t *testing.T) {
	dir := newProject(t)

	if _, err := run(t, dir, "query", "DELETE FROM statements", "--read-only"); err == nil {
		t.Error("--read-only should reject a write")
	}

	out, err := run(t, dir, "query", "UPDATE topics SET tags = 'golang'")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if strings.TrimSpace(out) != "1 row(s) affected." {
		t.Errorf("write result = %q", out)
	}

	if _, err := run(t, dir, "query", "SELEC nonsense"); err == nil || !strings.Contains(err.Error(), "SQL error") {
		t.Errorf("bad SQL error = %v", err)
	}
}

func TestQuery_RequiresDatabase(t *testing.T) {
	dir := t.TempDir()
	if _, err := run(t, dir, "query", "SELECT 1"); err == nil {
		t.Fatal("expected an error without a database")
	}
	if _, err := os.Stat(filepath.Join(dir, ".claude", "larvling.db")); err == nil {
		t.Error("query must not create the database")
	}
}

func TestSummarize(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "summarize", "5c0ffee0", "--get")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "No session summary found for session matching '5c0ffee0'" {
		t.Errorf("get before store = %q", out)
	}

	out, err = run(t, dir, "summarize", "5c0ffee0", "--store", "Vendoring walkthrough.")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "Session summary stored for session 5c0ffee0 (2 messages)" {
		t.Errorf("store = %q", out)
	}

	out, err = run(t, dir, "summarize", testSession, "--get")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "Vendoring walkthrough." {
		t.Errorf("get after store = %q", out)
	}

	out, err = run(t, dir, "summarize", "--list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "5c0ffee0") || !strings.Contains(out, "[summarized 2/2 msgs]") {
		t.Errorf("list = %q", out)
	}
}

func TestSummarize_Errors(t *testing.T) {
	dir := newProject(t)
	if _, err := run(t, dir, "summarize", "5c0ffee0"); err == nil {
		t.Error("an id without --get or --store should fail")
	}
	if _, err := run(t, dir, "summarize", "deadbeef", "--store", "x"); err == nil {
		t.Error("storing for an unknown session should fail")
	}
}

func TestExport_Session(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "export", "5c0ffee0")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "# Session 5c0ffee0") || !strings.Contains(out, "Bash (2x)") {
		t.Errorf("markdown = %s", out)
	}

	file := filepath.Join(t.TempDir(), "nested", "s.md")
	if _, err := run(t, dir, "export", "5c0ffee0", file); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("export file: %v", err)
	}
	if !strings.Contains(string(data), "Run go mod vendor.") {
		t.Errorf("file content = %s", data)
	}

	if _, err := run(t, dir, "export", "deadbeef"); err == nil {
		t.Error("unknown session should fail")
	}
}

func TestExport_All(t *testing.T) {
	dir := newProject(t)
	outDir := filepath.Join(t.TempDir(), "exports")

	out, err := run(t, dir, "export", "--all", outDir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Exported 1 sessions") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(filepath.Join(outDir, "5c0ffee0.md")); err != nil {
		t.Errorf("exported file missing: %v", err)
	}
}

func TestExport_Knowledge(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "export", "--knowledge")
	if err != nil {
		t.Fatal(err)
	}
	var exp memory.KnowledgeExport
	if err := json.Unmarshal([]byte(out), &exp); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if len(exp.Topics) != 1 || exp.SchemaVersion != memory.SchemaVersion {
		t.Errorf("export = %+v", exp)
	}

	out, err = run(t, dir, "export", "--knowledge", "--format", "yaml")
	if err != nil {
		t.Fatal(err)
	}
	var fromYAML memory.KnowledgeExport
	if err := yaml.Unmarshal([]byte(out), &fromYAML); err != nil {
		t.Fatalf("not YAML: %v", err)
	}
	if len(fromYAML.Topics) != 1 {
		t.Errorf("yaml topics = %d, want 1", len(fromYAML.Topics))
	}

	if _, err := run(t, dir, "export", "--knowledge", "--format", "toml"); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, t.TempDir(), "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "larvling vdev" {
		t.Errorf("version = %q", out)
	}
}

func TestAnalyzeArgs(t *testing.T) {
	got := strings.Join(analyzeArgs("/work/proj", false), " ")
	if got != "--project /work/proj hook analyze" {
		t.Errorf("args = %q", got)
	}
	got = strings.Join(analyzeArgs("/work/proj", true), " ")
	if got != "--project /work/proj --debug hook analyze" {
		t.Errorf("debug args = %q", got)
	}
}

func TestOpen_ResolvesRelativeProject(t *testing.T) {
	dir := newProject(t)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	rel, err := filepath.Rel(wd, dir)
	if err != nil {
		t.Skip("temp dir not reachable relatively")
	}

	a, err := (&rootOptions{projectDir: rel}).open(true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.close()
	if !filepath.IsAbs(a.cfg.ProjectDir) {
		t.Errorf("ProjectDir = %q, want absolute", a.cfg.ProjectDir)
	}
}
