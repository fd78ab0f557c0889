// Package sessionctx assembles the markdown the agent sees at session start
// and the short hints appended to each prompt.
package sessionctx

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/HendryAvila/larvling/internal/config"
	"github.com/HendryAvila/larvling/internal/logging"
	"github.com/HendryAvila/larvling/internal/memory"
	"github.com/HendryAvila/larvling/internal/updater"
)

// MatcherCompact is the session-start matcher sent after a context
// compaction. No context is injected for it.
const MatcherCompact = "compact"

// Maintenance thresholds.
const (
	maintainTopics     = 50
	maintainStatements = 100
	recentActivity     = 5
)

// DefaultQueryCommand is shown in the knowledge hint.
const DefaultQueryCommand = `larvling query "<SQL>"`

// UpdateChecker reports whether a newer release exists.
type UpdateChecker interface {
	Check(ctx context.Context, currentVersion string) *updater.UpdateResult
}

// Builder renders session context from the store.
type Builder struct {
	store   *memory.Store
	cfg     *config.Config
	logger  *slog.Logger
	git     GitLister
	locator Locator
	updates UpdateChecker
	version string
	query   string
	clock   func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithGit sets the source of recently touched files.
func WithGit(g GitLister) Option { return func(b *Builder) { b.git = g } }

// WithLocator sets the geolocation source.
func WithLocator(l Locator) Option { return func(b *Builder) { b.locator = l } }

// WithUpdates enables the release notice for the running version.
func WithUpdates(c UpdateChecker, version string) Option {
	return func(b *Builder) {
		b.updates = c
		b.version = version
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option { return func(b *Builder) { b.clock = clock } }

// WithQueryCommand sets the command advertised in the knowledge hint.
func WithQueryCommand(cmd string) Option { return func(b *Builder) { b.query = cmd } }

// New returns a Builder. A nil logger discards.
func New(store *memory.Store, cfg *config.Config, logger *slog.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = logging.Discard()
	}
	b := &Builder{
		store:  store,
		cfg:    cfg,
		logger: logger,
		query:  DefaultQueryCommand,
		clock:  time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SessionStart renders the full session-start context followed by the
// update notice, if any. It returns "" when the store schema is not current
// or the matcher is compact.
func (b *Builder) SessionStart(ctx context.Context, matcher string) string {
	if matcher == MatcherCompact {
		return ""
	}
	if v, err := b.store.SchemaVersion(); err != nil || v != memory.SchemaVersion {
		return ""
	}

	out := b.Context(ctx)
	if notice := b.updateNotice(ctx); notice != "" {
		out += "\n\n" + notice
	}
	return out
}

// Context renders the session context markdown. Sections whose query fails
// are left out and the failure is logged.
func (b *Builder) Context(ctx context.Context) string {
	lines := []string{"# Larvling Session Context", ""}
	lines = append(lines, "**Now:** "+b.now(ctx), "")

	recent, err := b.store.RecentSummaries(b.cfg.Context.RecentSessions)
	if err != nil {
		b.logger.Warn("context_error", "section", "recent sessions", "error", err)
	}
	recentIDs := map[string]bool{}
	if len(recent) > 0 {
		lines = append(lines, "## Recent Sessions")
		for _, s := range recent {
			recentIDs[s.ID] = true
			lines = append(lines, sessionLine(s))
		}
		lines = append(lines, "")
	}

	lines = append(lines, b.relevant(ctx, recentIDs)...)
	lines = append(lines, b.knowledge()...)
	lines = append(lines, b.tasks()...)
	if len(recent) == 0 {
		lines = append(lines, b.activity()...)
	}
	return strings.Join(lines, "\n")
}

// now renders local time with its UTC offset and, when enabled, the
// approximate location.
func (b *Builder) now(ctx context.Context) string {
	t := b.clock()
	_, off := t.Zone()
	hours := float64(off) / 3600
	sign := "+"
	if hours < 0 {
		sign = "-"
	}
	parts := []string{fmt.Sprintf("%s (UTC%s%s)",
		t.Format("Monday, January 02, 2006 at 03:04 PM"),
		sign, strconv.FormatFloat(math.Abs(hours), 'g', -1, 64))}

	if b.cfg.Geolocation && b.locator != nil {
		if loc := b.locator.Locate(ctx); loc != "" {
			parts = append(parts, loc)
		}
	}
	return strings.Join(parts, " — ")
}

func (b *Builder) relevant(ctx context.Context, recent map[string]bool) []string {
	if b.git == nil {
		return nil
	}
	files := b.git.ChangedFiles(ctx)
	if len(files) == 0 {
		return nil
	}
	sessions, err := b.store.SessionsMentioning(basenames(files), recent, b.cfg.Context.RelevantSessions)
	if err != nil {
		b.logger.Warn("context_error", "section", "relevant sessions", "error", err)
		return nil
	}
	if len(sessions) == 0 {
		return nil
	}
	lines := []string{"## Relevant Sessions"}
	for _, s := range sessions {
		lines = append(lines, sessionLine(s))
	}
	return append(lines, "")
}

func (b *Builder) knowledge() []string {
	st, err := b.store.KnowledgeStats()
	if err != nil {
		b.logger.Warn("context_error", "section", "knowledge", "error", err)
		return nil
	}

	var lines []string
	if st.Topics > 0 {
		domains := make([]string, 0, len(st.Domains))
		for _, d := range st.Domains {
			domains = append(domains, fmt.Sprintf("%s (%d)", d.Domain, d.Count))
		}
		lines = append(lines,
			fmt.Sprintf("## Stored Knowledge (%d topics, %d statements)", st.Topics, st.Statements),
			"Domains: "+strings.Join(domains, ", "),
		)
		stmts, err := b.store.RecentStatements(b.cfg.Context.RecentStatements)
		if err != nil {
			b.logger.Warn("context_error", "section", "recent statements", "error", err)
		}
		for _, s := range stmts {
			lines = append(lines, fmt.Sprintf("- %d: %s", s.StatementID, s.Claim))
		}
		lines = append(lines, "")
	}

	if st.Topics >= maintainTopics || st.Statements >= maintainStatements {
		lines = append(lines,
			"## Maintenance",
			fmt.Sprintf("Knowledge base has grown (%d topics, %d statements). Consider offering /maintain.",
				st.Topics, st.Statements),
			"",
		)
	}
	return lines
}

func (b *Builder) tasks() []string {
	open, err := b.store.OpenTasks()
	if err != nil {
		b.logger.Warn("context_error", "section", "open tasks", "error", err)
		return nil
	}
	if len(open) == 0 {
		return nil
	}
	lines := []string{fmt.Sprintf("## Open Tasks (%d)", len(open))}
	for _, t := range open {
		lines = append(lines, fmt.Sprintf("- [%s/%s] %s", t.Priority, t.Horizon, t.Title))
	}
	return append(lines, "")
}

func (b *Builder) activity() []string {
	msgs, err := b.store.RecentMessages(recentActivity)
	if err != nil || len(msgs) == 0 {
		return nil
	}
	total, err := b.store.TotalMessages()
	if err != nil {
		return nil
	}
	lines := []string{fmt.Sprintf("## Recent Activity (%d messages)", total)}
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("- **%s:** %s", m.Role, m.Content))
	}
	return append(lines, "")
}

func (b *Builder) updateNotice(ctx context.Context) string {
	if b.updates == nil || !b.cfg.UpdateCheck {
		return ""
	}
	return b.updates.Check(ctx, b.version).Notice()
}

// sessionLine renders "- **YYYY-MM-DD** (Nm): summary".
func sessionLine(s memory.SessionSummary) string {
	date := s.StartedAt
	if date == "" {
		date = "?"
	}
	if len(date) > 10 {
		date = date[:10]
	}
	dur := ""
	if s.DurationMin != nil && *s.DurationMin != 0 {
		dur = fmt.Sprintf(" (%sm)", strconv.FormatFloat(*s.DurationMin, 'f', -1, 64))
	}
	return fmt.Sprintf("- **%s**%s: %s", date, dur, s.Summary)
}
