package reconcile_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/HendryAvila/larvling/internal/reconcile"
)

const testSession = "abcdef01-2345-6789-abcd-ef0123456789"

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.Open(memory.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	_, err = s.EnsureSchema()
	require.NoError(t, err)
	return s
}

// items builds raw proposal items from JSON object literals.
func items(objs ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(objs))
	for i, o := range objs {
		out[i] = json.RawMessage(o)
	}
	return out
}

// knowledge applies items in their own committed transaction.
func knowledge(t *testing.T, s *memory.Store, e *reconcile.Engine, raw ...string) reconcile.KnowledgeResult {
	t.Helper()
	tx, err := s.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	res, err := e.Knowledge(tx, items(raw...), testSession)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return res
}

func tasks(t *testing.T, s *memory.Store, e *reconcile.Engine, raw ...string) reconcile.TaskResult {
	t.Helper()
	tx, err := s.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	res, err := e.Tasks(tx, items(raw...), testSession)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return res
}

func stats(t *testing.T, s *memory.Store) *memory.KnowledgeStats {
	t.Helper()
	st, err := s.KnowledgeStats()
	require.NoError(t, err)
	return st
}

// ─── add_topic ──────────────────────────────────────────────────────────────

func TestAddTopic_CreatesTopicAndStatementOnce(t *testing.T) {
	s := newStore(t)
	e := reconcile.New(nil)
	item := `{"action":"add_topic","topic_title":"Rust ownership","domain":"technical","tags":"rust","claim":"User prefers explicit lifetimes"}`

	res := knowledge(t, s, e, item)
	assert.Equal(t, 1, res.TopicsInserted)
	assert.Equal(t, 1, res.StatementsInserted)
	assert.Empty(t, res.Rejections)

	res = knowledge(t, s, e, item)
	assert.False(t, res.Changed())
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, res.Rejections, "dedup is not a rejection")

	st := stats(t, s)
	assert.Equal(t, 1, st.Topics)
	assert.Equal(t, 1, st.Statements)
}

func TestAddTopic_GlobalClaimDedup(t *testing.T) {
	s := newStore(t)
	e := reconcile.New(nil)
	knowledge(t, s, e, `{"action":"add_topic","topic_title":"A","domain":"technical","tags":"a","claim":"same claim"}`)

	res := knowledge(t, s, e, `{"action":"add_topic","topic_title":"B","domain":"personal","tags":"b","claim":"same claim"}`)
	assert.Equal(t, 0, res.TopicsInserted)
	assert.Equal(t, 1, stats(t, s).Topics)

	// Case differs: a near-duplicate is accepted.
	res = knowledge(t, s, e, `{"action":"add_topic","topic_title":"B","domain":"personal","tags":"b","claim":"Same claim"}`)
	assert.Equal(t, 1, res.TopicsInserted)
}

func TestAddTopic_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		item   string
		reason string
	}{
		{"missing claim", `{"action":"add_topic","topic_title":"T","domain":"technical","tags":"x"}`, "missing claim"},
		{"blank claim", `{"action":"add_topic","topic_title":"T","domain":"technical","tags":"x","claim":"   "}`, "missing claim"},
		{"missing title", `{"action":"add_topic","domain":"technical","tags":"x","claim":"c"}`, "missing topic_title"},
		{"invalid domain", `{"action":"add_topic","topic_title":"T","domain":"cooking","tags":"x","claim":"c"}`, "invalid domain"},
		{"empty domain", `{"action":"add_topic","topic_title":"T","domain":"","tags":"x","claim":"c"}`, "invalid domain"},
		{"missing tags", `{"action":"add_topic","topic_title":"T","domain":"technical","claim":"c"}`, "missing tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			res := knowledge(t, s, reconcile.New(nil), tt.item)
			require.Len(t, res.Rejections, 1)
			assert.Equal(t, tt.reason, res.Rejections[0].Reason)
			assert.Equal(t, "add_topic", res.Rejections[0].Action)
			assert.Equal(t, "knowledge", res.Rejections[0].Category)
			assert.Equal(t, 0, stats(t, s).Topics)
		})
	}
}

func TestAddTopic_NormalizesDomain(t *testing.T) {
	s := newStore(t)
	res := knowledge(t, s, reconcile.New(nil),
		`{"action":" ADD_TOPIC ","topic_title":"T","domain":" Technical ","tags":"x","claim":"c"}`)
	require.Equal(t, 1, res.TopicsInserted)

	topics, err := s.ListTopics("")
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, memory.DomainTechnical, topics[0].Domain)
}

// ─── add_statement ──────────────────────────────────────────────────────────

func TestAddStatement_Idempotent(t *testing.T) {
	s := newStore(t)
	e := reconcile.New(nil)
	knowledge(t, s, e, `{"action":"add_topic","topic_title":"Go","domain":"technical","tags":"go","claim":"first"}`)

	item := `{"action":"add_statement","topic_id":1,"claim":"second"}`
	res := knowledge(t, s, e, item)
	assert.Equal(t, 1, res.StatementsInserted)

	res = knowledge(t, s, e, item)
	assert.Equal(t, 0, res.StatementsInserted)
	assert.Equal(t, 1, res.Skipped)

	stmts, err := s.TopicStatements(1)
	require.NoError(t, err)
	assert.Len(t, stmts, 2)
}

func TestAddStatement_IDForms(t *testing.T) {
	s := newStore(t)
	e := reconcile.New(nil)
	knowledge(t, s, e, `{"action":"add_topic","topic_title":"Go","domain":"technical","tags":"go","claim":"first"}`)

	res := knowledge(t, s, e,
		`{"action":"add_statement","topic_id":"1","claim":"string id"}`,
		`{"action":"add_statement","topic_id":1.0,"claim":"float id"}`,
		`{"action":"add_statement","topic_id":" 1 ","claim":"padded id"}`,
	)
	assert.Equal(t, 3, res.StatementsInserted)
	assert.Empty(t, res.Rejections)
}

func TestAddStatement_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		item   string
		reason string
	}{
		{"missing topic_id", `{"action":"add_statement","claim":"c"}`, "missing topic_id"},
		{"null topic_id", `{"action":"add_statement","topic_id":null,"claim":"c"}`, "missing topic_id"},
		{"word topic_id", `{"action":"add_statement","topic_id":"abc","claim":"c"}`, "invalid topic_id"},
		{"fractional topic_id", `{"action":"add_statement","topic_id":1.5,"claim":"c"}`, "invalid topic_id"},
		{"object topic_id", `{"action":"add_statement","topic_id":{},"claim":"c"}`, "invalid topic_id"},
		{"missing claim", `{"action":"add_statement","topic_id":1}`, "missing claim"},
		{"topic not found", `{"action":"add_statement","topic_id":99,"claim":"c"}`, "topic not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			e := reconcile.New(nil)
			knowledge(t, s, e, `{"action":"add_topic","topic_title":"Go","domain":"technical","tags":"go","claim":"first"}`)

			res := knowledge(t, s, e, tt.item)
			require.Len(t, res.Rejections, 1)
			assert.Equal(t, tt.reason, res.Rejections[0].Reason)
			assert.Equal(t, 1, stats(t, s).Statements)
		})
	}
}

// ─── update_statement / update_topic ────────────────────────────────────────

func TestUpdateStatement(t *testing.T) {
	s := newStore(t)
	e := reconcile.New(nil)
	knowledge(t, s, e, `{"action":"add_topic","topic_title":"Go","domain":"technical","tags":"go","claim":"old"}`)

	res := knowledge(t, s, e,
		`{"action":"update_statement","statement_id":1,"claim":"new"}`,
		`{"action":"update_statement","statement_id":2,"claim":"x"}`,
		`{"action":"update_statement","statement_id":1}`,
		`{"action":"update_statement","claim":"x"}`,
	)
	assert.Equal(t, 1, res.StatementsUpdated)
	require.Len(t, res.Rejections, 3)
	assert.Equal(t, "statement not found", res.Rejections[0].Reason)
	assert.Equal(t, int64(2), res.Rejections[0].Fields["statement_id"])
	assert.Equal(t, "missing claim", res.Rejections[1].Reason)
	assert.Equal(t, "missing statement_id", res.Rejections[2].Reason)

	st, err := s.GetStatement(1)
	require.NoError(t, err)
	assert.Equal(t, "new", st.Claim)
	assert.NotNil(t, st.Updated)
}

func TestUpdateTopic(t *testing.T) {
	s := newStore(t)
	e := reconcile.New(nil)
	knowledge(t, s, e, `{"action":"add_topic","topic_title":"Go","domain":"technical","tags":"go","claim":"c"}`)

	t.Run("title only preserves domain and tags", func(t *testing.T) {
		res := knowledge(t, s, e, `{"action":"update_topic","topic_id":1,"topic_title":"Golang"}`)
		assert.Equal(t, 1, res.TopicsUpdated)
		tp, err := s.GetTopic(1)
		require.NoError(t, err)
		assert.Equal(t, "Golang", tp.Title)
		assert.Equal(t, memory.DomainTechnical, tp.Domain)
		assert.Equal(t, "go", tp.Tags)
		assert.NotNil(t, tp.Updated)
	})

	t.Run("domain and tags when supplied", func(t *testing.T) {
		res := knowledge(t, s, e, `{"action":"update_topic","topic_id":1,"topic_title":"Golang","domain":"workflow","tags":"go, tooling"}`)
		assert.Equal(t, 1, res.TopicsUpdated)
		tp, _ := s.GetTopic(1)
		assert.Equal(t, memory.DomainWorkflow, tp.Domain)
		assert.Equal(t, "go, tooling", tp.Tags)
	})

	t.Run("rejections", func(t *testing.T) {
		res := knowledge(t, s, e,
			`{"action":"update_topic","topic_id":1,"topic_title":"X","domain":"nope"}`,
			`{"action":"update_topic","topic_id":1}`,
			`{"action":"update_topic","topic_id":42,"topic_title":"X"}`,
			`{"action":"update_topic","topic_id":"one","topic_title":"X"}`,
		)
		assert.Equal(t, 0, res.TopicsUpdated)
		var reasons []string
		for _, r := range res.Rejections {
			reasons = append(reasons, r.Reason)
		}
		assert.Equal(t, []string{"invalid domain", "missing topic_title", "topic not found", "invalid topic_id"}, reasons)

		tp, _ := s.GetTopic(1)
		assert.Equal(t, "Golang", tp.Title)
	})
}

func TestKnowledge_UnknownActionsIgnored(t *testing.T) {
	s := newStore(t)
	res := knowledge(t, s, reconcile.New(nil),
		`{"action":"skip","claim":"x"}`,
		`{"action":"delete_topic","topic_id":1}`,
		`{"claim":"no action"}`,
		`"not an object"`,
		`{"action":"add_topic","topic_title":"T","domain":"technical","tags":"t","claim":"kept"}`,
	)
	assert.Equal(t, 1, res.TopicsInserted)
	assert.Empty(t, res.Rejections)
}

func TestKnowledge_BadItemDoesNotBlockBatch(t *testing.T) {
	s := newStore(t)
	res := knowledge(t, s, reconcile.New(nil),
		`{"action":"add_topic","topic_title":"A","domain":"bogus","tags":"a","claim":"a"}`,
		`{"action":"add_topic","topic_title":"B","domain":"technical","tags":"b","claim":"b"}`,
		`{"action":"add_statement","topic_id":1,"claim":"b2"}`,
	)
	assert.Equal(t, 1, res.TopicsInserted)
	assert.Equal(t, 2, res.StatementsInserted)
	assert.Len(t, res.Rejections, 1)
}

// ─── add_task ───────────────────────────────────────────────────────────────

func TestAddTask_DedupWhileOpen(t *testing.T) {
	s := newStore(t)
	e := reconcile.New(nil)
	item := `{"action":"add_task","title":"write docs","domain":"technical","priority":"medium","horizon":"soon"}`

	res := tasks(t, s, e, item)
	assert.Equal(t, 1, res.TasksInserted)

	res = tasks(t, s, e, item)
	assert.Equal(t, 0, res.TasksInserted)
	assert.Equal(t, 1, res.Skipped)

	res = tasks(t, s, e, `{"action":"update_task","task_id":1,"status":"done"}`)
	assert.Equal(t, 1, res.TasksUpdated)

	res = tasks(t, s, e, item)
	assert.Equal(t, 1, res.TasksInserted, "same title allowed once the old task is done")

	all, err := s.ListTasks("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAddTask_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		item   string
		reason string
	}{
		{"missing title", `{"action":"add_task","domain":"technical","priority":"low","horizon":"now"}`, "missing title"},
		{"missing domain", `{"action":"add_task","title":"t","priority":"low","horizon":"now"}`, "invalid domain"},
		{"invalid priority", `{"action":"add_task","title":"t","domain":"technical","priority":"urgent","horizon":"now"}`, "invalid priority"},
		{"missing priority", `{"action":"add_task","title":"t","domain":"technical","horizon":"now"}`, "invalid priority"},
		{"invalid horizon", `{"action":"add_task","title":"t","domain":"technical","priority":"low","horizon":"never"}`, "invalid horizon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			res := tasks(t, s, reconcile.New(nil), tt.item)
			require.Len(t, res.Rejections, 1)
			assert.Equal(t, tt.reason, res.Rejections[0].Reason)
			assert.Equal(t, "tasks", res.Rejections[0].Category)
			assert.Equal(t, 0, res.TasksInserted)
		})
	}
}

// ─── add_update ─────────────────────────────────────────────────────────────

func TestAddUpdate(t *testing.T) {
	s := newStore(t)
	e := reconcile.New(nil)
	tasks(t, s, e, `{"action":"add_task","title":"t","domain":"technical","priority":"low","horizon":"later"}`)

	res := tasks(t, s, e,
		`{"action":"add_update","task_id":1,"content":"progress"}`,
		`{"action":"add_update","task_id":1,"content":"progress"}`,
		`{"action":"add_update","task_id":1}`,
		`{"action":"add_update","task_id":7,"content":"x"}`,
		`{"action":"add_update","task_id":"x","content":"x"}`,
	)
	assert.Equal(t, 1, res.UpdatesInserted)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Rejections, 3)
	assert.Equal(t, "missing content", res.Rejections[0].Reason)
	assert.Equal(t, "task not found", res.Rejections[1].Reason)
	assert.Equal(t, "invalid task_id", res.Rejections[2].Reason)
	assert.Equal(t, "x", res.Rejections[2].Fields["value"])

	ups, err := s.TaskUpdates(1)
	require.NoError(t, err)
	assert.Len(t, ups, 1)
}

// ─── update_task ────────────────────────────────────────────────────────────

func TestUpdateTask_InvalidEnumIsAllOrNothing(t *testing.T) {
	s := newStore(t)
	e := reconcile.New(nil)
	tasks(t, s, e, `{"action":"add_task","title":"t","domain":"technical","priority":"low","horizon":"later"}`)

	for _, item := range []string{
		`{"action":"update_task","task_id":1,"status":"done","priority":"critical","title":"renamed","content":"why"}`,
		`{"action":"update_task","task_id":1,"status":"finished","priority":"high"}`,
		`{"action":"update_task","task_id":1,"priority":"high","horizon":"someday"}`,
	} {
		res := tasks(t, s, e, item)
		assert.Equal(t, 0, res.TasksUpdated)
		assert.Equal(t, 0, res.UpdatesInserted)
		require.Len(t, res.Rejections, 1)
		assert.Equal(t, int64(1), res.Rejections[0].Fields["task_id"])
	}

	tk, err := s.GetTask(1)
	require.NoError(t, err)
	assert.Equal(t, memory.StatusOpen, tk.Status)
	assert.Equal(t, memory.PriorityLow, tk.Priority)
	assert.Equal(t, memory.HorizonLater, tk.Horizon)
	assert.Equal(t, "t", tk.Title)

	ups, _ := s.TaskUpdates(1)
	assert.Empty(t, ups)
}

func TestUpdateTask_AppliesSuppliedFieldsAndContent(t *testing.T) {
	s := newStore(t)
	e := reconcile.New(nil)
	tasks(t, s, e, `{"action":"add_task","title":"t","domain":"technical","priority":"low","horizon":"later"}`)

	res := tasks(t, s, e, `{"action":"update_task","task_id":1,"priority":"HIGH","horizon":"now","content":"became urgent"}`)
	assert.Equal(t, 1, res.TasksUpdated)
	assert.Equal(t, 1, res.UpdatesInserted)

	tk, _ := s.GetTask(1)
	assert.Equal(t, memory.PriorityHigh, tk.Priority)
	assert.Equal(t, memory.HorizonNow, tk.Horizon)
	assert.Equal(t, memory.StatusOpen, tk.Status)

	// Content only, already recorded: nothing changes.
	res = tasks(t, s, e, `{"action":"update_task","task_id":1,"content":"became urgent"}`)
	assert.False(t, res.Changed())
	assert.Equal(t, 1, res.Skipped)

	// Content only, new: an update without field changes.
	res = tasks(t, s, e, `{"action":"update_task","task_id":1,"content":"still urgent"}`)
	assert.Equal(t, 0, res.TasksUpdated)
	assert.Equal(t, 1, res.UpdatesInserted)
}

func TestUpdateTask_NotFound(t *testing.T) {
	s := newStore(t)
	res := tasks(t, s, reconcile.New(nil), `{"action":"update_task","task_id":3,"status":"done"}`)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, "task not found", res.Rejections[0].Reason)
}

// ─── Logging ────────────────────────────────────────────────────────────────

func TestRejectionsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s := newStore(t)

	knowledge(t, s, reconcile.New(logger), `{"action":"add_topic","topic_title":"T","domain":"cooking","tags":"x","claim":"c"}`)

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "extraction_skipped", entry["msg"])
	assert.Equal(t, "abcdef01", entry["sid"])
	assert.Equal(t, "add_topic", entry["action"])
	assert.Equal(t, "invalid domain", entry["reason"])
	assert.Equal(t, "cooking", entry["domain"])
}

// ─── Store failures ─────────────────────────────────────────────────────────

// failingStore fails every write.
type failingStore struct {
	reconcile.KnowledgeStore
	reconcile.TaskStore
}

var errDisk = errors.New("disk I/O error")

func (failingStore) ClaimExists(string) (bool, error) {
	return false, nil
}

func (failingStore) InsertTopic(string, memory.Domain, string) (int64, error) {
	return 0, errDisk
}

func (failingStore) OpenTaskWithTitle(string) (bool, error) {
	return false, nil
}

func (failingStore) InsertTask(string, memory.Domain, memory.Priority, memory.Horizon) (int64, error) {
	return 0, errDisk
}

func TestStoreErrorsAreReturned(t *testing.T) {
	e := reconcile.New(nil)
	fs := failingStore{}

	_, err := e.Knowledge(fs, items(`{"action":"add_topic","topic_title":"T","domain":"technical","tags":"x","claim":"c"}`), testSession)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDisk)
	assert.Contains(t, err.Error(), "add_topic")

	_, err = e.Tasks(fs, items(`{"action":"add_task","title":"t","domain":"technical","priority":"low","horizon":"now"}`), testSession)
	assert.ErrorIs(t, err, errDisk)
}

func TestStoreErrorRollsBackUnit(t *testing.T) {
	s := newStore(t)
	e := reconcile.New(nil)

	tx, err := s.Begin()
	require.NoError(t, err)
	res, err := e.Knowledge(tx, items(
		`{"action":"add_topic","topic_title":"T","domain":"technical","tags":"x","claim":"c"}`,
	), testSession)
	require.NoError(t, err)
	require.Equal(t, 1, res.TopicsInserted)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, 0, stats(t, s).Topics)
}
