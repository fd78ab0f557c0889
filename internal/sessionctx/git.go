package sessionctx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// GitLister reports files touched by recent work in the project.
type GitLister interface {
	ChangedFiles(ctx context.Context) []string
}

// gitTimeout bounds each git invocation.
const gitTimeout = 3 * time.Second

// GitCLI lists unstaged, staged and recently committed files by running git.
type GitCLI struct {
	Dir     string
	Timeout time.Duration

	ignore []glob.Glob
	run    func(ctx context.Context, dir string, args ...string) (string, error)
}

// NewGitCLI returns a lister rooted at dir. Files whose path or base name
// matches one of the ignore patterns are dropped. Invalid patterns are
// reported in the error; the returned lister still uses the valid ones.
func NewGitCLI(dir string, ignore []string) (*GitCLI, error) {
	g := &GitCLI{Dir: dir, Timeout: gitTimeout, run: runGit}
	var errs []error
	for _, p := range ignore {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		m, err := glob.Compile(p, '/')
		if err != nil {
			errs = append(errs, fmt.Errorf("ignore pattern %q: %w", p, err))
			continue
		}
		g.ignore = append(g.ignore, m)
	}
	return g, errors.Join(errs...)
}

// ChangedFiles returns paths from `git diff --name-only`, the staged diff
// and the last five commits, deduplicated in first-seen order. A missing
// git binary yields nil; other failures skip that source.
func (g *GitCLI) ChangedFiles(ctx context.Context) []string {
	sources := [][]string{
		{"diff", "--name-only"},
		{"diff", "--name-only", "--cached"},
		{"log", "--pretty=format:", "-5", "--name-only"},
	}

	seen := map[string]bool{}
	var files []string
	for _, args := range sources {
		out, err := g.exec(ctx, args...)
		if errors.Is(err, exec.ErrNotFound) {
			return nil
		}
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(strings.NewReader(out))
		for sc.Scan() {
			f := strings.TrimSpace(sc.Text())
			if f == "" || seen[f] || g.ignored(f) {
				continue
			}
			seen[f] = true
			files = append(files, f)
		}
	}
	return files
}

func (g *GitCLI) exec(ctx context.Context, args ...string) (string, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = gitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	run := g.run
	if run == nil {
		run = runGit
	}
	return run(ctx, g.Dir, args...)
}

func (g *GitCLI) ignored(file string) bool {
	base := path.Base(file)
	for _, m := range g.ignore {
		if m.Match(file) || m.Match(base) {
			return true
		}
	}
	return false
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// basenames maps repository paths to their file names, keeping duplicates
// so a name touched in several places weighs more.
func basenames(files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if b := path.Base(f); b != "" && b != "." && b != "/" {
			out = append(out, b)
		}
	}
	return out
}
