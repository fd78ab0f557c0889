package resources

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/mark3labs/mcp-go/mcp"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.Open(memory.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.EnsureSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return store
}

func readReq(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func contentText(t *testing.T, contents []mcp.ResourceContents) mcp.TextResourceContents {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content is %T, want TextResourceContents", contents[0])
	}
	return tc
}

func TestResourceDefinitions(t *testing.T) {
	h := NewHandler(newTestStore(t))
	if r := h.StatsResource(); r.URI != StatsURI || r.MIMEType != "application/json" {
		t.Errorf("stats resource = %+v", r)
	}
	if r := h.TasksResource(); r.URI != TasksURI || r.MIMEType != "application/json" {
		t.Errorf("tasks resource = %+v", r)
	}
}

func TestHandleStats(t *testing.T) {
	store := newTestStore(t)
	tx, err := store.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.InsertTopic("Go", memory.DomainTechnical, "go"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	contents, err := NewHandler(store).HandleStats(context.Background(), readReq(StatsURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := contentText(t, contents)
	if tc.URI != StatsURI {
		t.Errorf("uri = %q", tc.URI)
	}
	var st memory.KnowledgeStats
	if err := json.Unmarshal([]byte(tc.Text), &st); err != nil {
		t.Fatalf("stats is not JSON: %v\n%s", err, tc.Text)
	}
	if st.Topics != 1 || st.Statements != 0 {
		t.Errorf("stats = %+v, want 1 topic, 0 statements", st)
	}
}

func TestHandleTasks(t *testing.T) {
	store := newTestStore(t)
	h := NewHandler(store)

	contents, err := h.HandleTasks(context.Background(), readReq(TasksURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := contentText(t, contents).Text; got != "[]" {
		t.Errorf("empty tasks = %q, want []", got)
	}

	tx, err := store.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.InsertTask("Ship v1", memory.DomainProfessional, memory.PriorityHigh, memory.HorizonNow); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	contents, err = h.HandleTasks(context.Background(), readReq(TasksURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var tasks []memory.Task
	if err := json.Unmarshal([]byte(contentText(t, contents).Text), &tasks); err != nil {
		t.Fatalf("tasks is not JSON: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "Ship v1" || tasks[0].Status != memory.StatusOpen {
		t.Errorf("tasks = %+v", tasks)
	}
}
