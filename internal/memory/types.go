package memory

import "strings"

// ─── Enums ───────────────────────────────────────────────────────────────────

// Domain classifies topics and tasks.
type Domain string

const (
	DomainPersonal     Domain = "personal"
	DomainProfessional Domain = "professional"
	DomainPreferences  Domain = "preferences"
	DomainInterests    Domain = "interests"
	DomainKnowledge    Domain = "knowledge"
	DomainTechnical    Domain = "technical"
	DomainWorkflow     Domain = "workflow"
)

// Domains lists every valid domain in schema order.
var Domains = []Domain{
	DomainPersonal, DomainProfessional, DomainPreferences, DomainInterests,
	DomainKnowledge, DomainTechnical, DomainWorkflow,
}

// Valid reports whether d is one of the known domains.
func (d Domain) Valid() bool {
	for _, v := range Domains {
		if d == v {
			return true
		}
	}
	return false
}

// ParseDomain normalizes s (trim, lower-case) and reports whether it is valid.
func ParseDomain(s string) (Domain, bool) {
	d := Domain(normalizeEnum(s))
	return d, d.Valid()
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusOpen    Status = "open"
	StatusDone    Status = "done"
	StatusDropped Status = "dropped"
)

// Valid reports whether s is a known task status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusDone, StatusDropped:
		return true
	}
	return false
}

// ParseStatus normalizes s and reports whether it is valid.
func ParseStatus(s string) (Status, bool) {
	v := Status(normalizeEnum(s))
	return v, v.Valid()
}

// Priority is how important a task is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority normalizes s and reports whether it is valid.
func ParsePriority(s string) (Priority, bool) {
	v := Priority(normalizeEnum(s))
	return v, v.Valid()
}

// Horizon is the urgency bucket of a task.
type Horizon string

const (
	HorizonNow   Horizon = "now"
	HorizonSoon  Horizon = "soon"
	HorizonLater Horizon = "later"
)

// Valid reports whether h is a known horizon.
func (h Horizon) Valid() bool {
	switch h {
	case HorizonNow, HorizonSoon, HorizonLater:
		return true
	}
	return false
}

// ParseHorizon normalizes s and reports whether it is valid.
func ParseHorizon(s string) (Horizon, bool) {
	v := Horizon(normalizeEnum(s))
	return v, v.Valid()
}

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func normalizeEnum(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ─── Entities ────────────────────────────────────────────────────────────────

// Session is one conversation with the agent.
type Session struct {
	ID              string   `json:"id"`
	StartedAt       string   `json:"started_at"`
	EndedAt         *string  `json:"ended_at,omitempty"`
	DurationMin     *float64 `json:"duration_min,omitempty"`
	Title           *string  `json:"title,omitempty"`
	AgentSummary    *string  `json:"agent_summary,omitempty"`
	ExchangeCount   *int     `json:"exchange_count,omitempty"`
	SummaryAt       *string  `json:"summary_at,omitempty"`
	SummaryMsgCount *int     `json:"summary_msg_count,omitempty"`
	Tags            string   `json:"tags,omitempty"`
	SummaryOffered  bool     `json:"summary_offered"`
}

// Message is an append-only conversation turn.
type Message struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Timestamp string         `json:"timestamp"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Topic is a durable subject of knowledge.
type Topic struct {
	ID      int64   `json:"id" yaml:"id"`
	Title   string  `json:"title" yaml:"title"`
	Domain  Domain  `json:"domain" yaml:"domain"`
	Tags    string  `json:"tags" yaml:"tags"`
	Created string  `json:"created" yaml:"created"`
	Updated *string `json:"updated,omitempty" yaml:"updated,omitempty"`
}

// Statement is a single claim under a topic.
type Statement struct {
	ID      int64   `json:"id" yaml:"id"`
	TopicID int64   `json:"topic_id" yaml:"topic_id"`
	Claim   string  `json:"claim" yaml:"claim"`
	Created string  `json:"created" yaml:"created"`
	Updated *string `json:"updated,omitempty" yaml:"updated,omitempty"`
}

// Task is a tracked commitment.
type Task struct {
	ID       int64    `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Domain   Domain   `json:"domain" yaml:"domain"`
	Status   Status   `json:"status" yaml:"status"`
	Priority Priority `json:"priority" yaml:"priority"`
	Horizon  Horizon  `json:"horizon" yaml:"horizon"`
	Metadata *string  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Created  string   `json:"created" yaml:"created"`
}

// Update is an append-only progress note on a task.
type Update struct {
	ID        int64  `json:"id" yaml:"id"`
	TaskID    int64  `json:"task_id" yaml:"task_id"`
	Content   string `json:"content" yaml:"content"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
}
