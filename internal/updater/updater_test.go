package updater

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/HendryAvila/larvling/internal/cache"
)

// --- normalizeVersion ---

func TestNormalizeVersion_StripsV(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v1.2.3", "1.2.3"},
		{"1.2.3", "1.2.3"},
		{"v0.1.0", "0.1.0"},
		{"", ""},
		{"v", ""},
		{"vv1.0.0", "v1.0.0"}, // only strips one leading v
	}

	for _, tt := range tests {
		got := normalizeVersion(tt.input)
		if got != tt.want {
			t.Errorf("normalizeVersion(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// --- isNewer ---

func TestIsNewer(t *testing.T) {
	tests := []struct {
		name    string
		current string
		latest  string
		want    bool
	}{
		{"newer patch", "1.4.0", "1.4.1", true},
		{"newer minor", "1.4.0", "1.5.0", true},
		{"newer major", "1.4.0", "2.0.0", true},
		{"same version", "1.4.0", "1.4.0", false},
		{"older version", "1.5.0", "1.4.0", false},
		{"empty current", "", "1.4.0", false},
		{"empty latest", "1.4.0", "", false},
		{"dev current", "dev", "1.4.0", false},
		{"two part latest", "1.4.0", "1.5", true},
		{"minor jump", "0.9.0", "0.10.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isNewer(tt.current, tt.latest)
			if got != tt.want {
				t.Errorf("isNewer(%q, %q) = %v, want %v", tt.current, tt.latest, got, tt.want)
			}
		})
	}
}

// --- parseIntSafe ---

func TestParseIntSafe(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"0", 0},
		{"42", 42},
		{"", 0},
		{"abc", 0},
		{"3rc1", 3}, // stops at non-digit
	}

	for _, tt := range tests {
		got := parseIntSafe(tt.input)
		if got != tt.want {
			t.Errorf("parseIntSafe(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

// --- Check ---

// newTestChecker points a Checker at an httptest server that serves release
// and counts requests.
func newTestChecker(t *testing.T, release ReleaseInfo, statusCode int, c Cache) (*Checker, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "larvling/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.WriteHeader(statusCode)
		if statusCode == http.StatusOK {
			_ = json.NewEncoder(w).Encode(release)
		}
	}))
	t.Cleanup(ts.Close)

	ch := NewChecker(c)
	ch.endpoint = ts.URL
	ch.client = ts.Client()
	return ch, &hits
}

func TestCheck_UpdateAvailable(t *testing.T) {
	ch, _ := newTestChecker(t, ReleaseInfo{TagName: "v1.5.0"}, http.StatusOK, nil)

	result := ch.Check(context.Background(), "v1.4.2")

	if !result.UpdateAvailable {
		t.Error("expected UpdateAvailable to be true")
	}
	if result.LatestVersion != "1.5.0" || result.CurrentVersion != "1.4.2" {
		t.Errorf("versions = %q -> %q", result.CurrentVersion, result.LatestVersion)
	}
	notice := result.Notice()
	if !strings.Contains(notice, "v1.4.2 -> v1.5.0") || !strings.Contains(notice, GitHubRepo) {
		t.Errorf("Notice() = %q", notice)
	}
}

func TestCheck_AlreadyLatest(t *testing.T) {
	ch, _ := newTestChecker(t, ReleaseInfo{TagName: "v1.4.2"}, http.StatusOK, nil)

	result := ch.Check(context.Background(), "1.4.2")
	if result.UpdateAvailable {
		t.Error("expected UpdateAvailable to be false when already at latest")
	}
	if result.Notice() != "" {
		t.Errorf("Notice() = %q, want empty", result.Notice())
	}
}

func TestCheck_NetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close()
	ch := NewChecker(nil)
	ch.endpoint = ts.URL

	result := ch.Check(context.Background(), "v1.4.0")

	if result.UpdateAvailable || result.LatestVersion != "" {
		t.Errorf("result = %+v, want no update", result)
	}
}

func TestCheck_APIErrorStatus(t *testing.T) {
	ch, _ := newTestChecker(t, ReleaseInfo{}, http.StatusForbidden, nil)
	if ch.Check(context.Background(), "v1.4.0").UpdateAvailable {
		t.Error("expected UpdateAvailable to be false on API error")
	}
}

func TestCheck_UsesCache(t *testing.T) {
	c := cache.New(filepath.Join(t.TempDir(), "larvling-cache.json"), 0)
	ch, hits := newTestChecker(t, ReleaseInfo{TagName: "v2.0.0"}, http.StatusOK, c)

	first := ch.Check(context.Background(), "1.0.0")
	second := ch.Check(context.Background(), "1.0.0")

	if hits.Load() != 1 {
		t.Errorf("requests = %d, want 1", hits.Load())
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v, %v", first.Cached, second.Cached)
	}
	if !second.UpdateAvailable || second.LatestVersion != "2.0.0" {
		t.Errorf("second = %+v", second)
	}
}

func TestCheck_FailureNotCached(t *testing.T) {
	c := cache.New(filepath.Join(t.TempDir(), "larvling-cache.json"), 0)
	ch, hits := newTestChecker(t, ReleaseInfo{}, http.StatusInternalServerError, c)

	ch.Check(context.Background(), "1.0.0")
	ch.Check(context.Background(), "1.0.0")

	if hits.Load() != 2 {
		t.Errorf("requests = %d, want 2 (failures must not be cached)", hits.Load())
	}
}
