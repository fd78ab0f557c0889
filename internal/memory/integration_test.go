package memory_test

import (
	"strings"
	"testing"

	"github.com/HendryAvila/larvling/internal/memory"
)

// ─── Full Session Lifecycle Integration ─────────────────────────────────────

func TestIntegration_FullSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	const sid = "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0"

	// 1. First prompt creates the session and sets the title.
	if err := s.EnsureSession(sid); err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if err := s.RecordMessage(sid, memory.RoleUser, "How do lifetimes work?", map[string]any{"cwd": "/repo"}); err != nil {
		t.Fatalf("RecordMessage user: %v", err)
	}
	title := "How do lifetimes work?"
	if err := s.RecordSummary(sid, memory.SummaryFields{Title: &title}); err != nil {
		t.Fatalf("RecordSummary title: %v", err)
	}

	// 2. The agent answers.
	if err := s.RecordMessage(sid, memory.RoleAssistant, "Lifetimes describe how long references are valid.",
		map[string]any{"tool_calls": map[string]any{"Read": 1}}); err != nil {
		t.Fatalf("RecordMessage assistant: %v", err)
	}

	// 3. Extraction writes knowledge, a task and tags in one unit.
	tx, err := s.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.EnsureSession(sid); err != nil {
		t.Fatal(err)
	}
	topicID, err := tx.InsertTopic("Rust lifetimes", memory.DomainTechnical, "rust")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.InsertStatement(topicID, "Lifetimes bound reference validity"); err != nil {
		t.Fatal(err)
	}
	if _, err := tx.InsertTask("read the nomicon", memory.DomainKnowledge, memory.PriorityLow, memory.HorizonLater); err != nil {
		t.Fatal(err)
	}
	if err := tx.SetSessionTags(sid, "rust, lifetimes"); err != nil {
		t.Fatal(err)
	}
	if err := tx.RecordMessage(sid, memory.RoleSystem, "Extraction: knowledge=1 topics, 1 statements, 1 tasks", nil); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	// 4. Session end.
	if err := s.FinalizeSession(sid); err != nil {
		t.Fatalf("FinalizeSession: %v", err)
	}
	users, _ := s.CountMessages(sid, memory.RoleUser)
	if err := s.RecordSummary(sid, memory.SummaryFields{ExchangeCount: &users}); err != nil {
		t.Fatal(err)
	}

	sess, err := s.GetSession(sid)
	if err != nil {
		t.Fatal(err)
	}
	if sess.EndedAt == nil || sess.DurationMin == nil {
		t.Error("session not finalized")
	}
	if sess.ExchangeCount == nil || *sess.ExchangeCount != 1 {
		t.Errorf("exchange_count = %v, want 1", sess.ExchangeCount)
	}
	if sess.Tags != "rust, lifetimes" {
		t.Errorf("tags = %q", sess.Tags)
	}

	// 5. A later session sees the summary in context.
	if _, err := s.StoreSummary(memory.ShortID(sid), "Explained Rust lifetimes."); err != nil {
		t.Fatal(err)
	}
	sums, err := s.RecentSummaries(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 || sums[0].Summary != "Explained Rust lifetimes." {
		t.Errorf("recent summaries = %+v", sums)
	}

	// 6. The export round-trips the conversation.
	exp, err := s.ExportSession(memory.ShortID(sid))
	if err != nil {
		t.Fatal(err)
	}
	md := exp.Markdown()
	if !strings.Contains(md, "Lifetimes describe") || !strings.Contains(md, "Read (1x)") {
		t.Errorf("export markdown incomplete:\n%s", md)
	}

	list, err := s.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].MessageCount != 2 {
		t.Errorf("listing = %+v", list)
	}
}

func TestIntegration_RollbackLeavesStoreUnchanged(t *testing.T) {
	s := newTestStore(t)

	tx, err := s.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.InsertTopic("temp", memory.DomainTechnical, "x"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	// A second rollback after the first is a no-op.
	if err := tx.Rollback(); err != nil {
		t.Errorf("second Rollback() = %v", err)
	}

	st, err := s.KnowledgeStats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Topics != 0 {
		t.Errorf("topics = %d after rollback", st.Topics)
	}
}
