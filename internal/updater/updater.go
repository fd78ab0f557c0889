// Package updater checks GitHub for a newer Larvling release. The check is
// best effort: any failure reads as "no update". Results are cached so at
// most one request is made per day.
package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// GitHubRepo is the repository releases are published from.
	GitHubRepo = "athrael-soju/Larvling"

	// releaseURL is the GitHub API endpoint for the latest release.
	releaseURL = "https://api.github.com/repos/" + GitHubRepo + "/releases/latest"

	// CacheKey is the cache entry holding the latest known version.
	CacheKey = "update_check"

	checkTimeout = 3 * time.Second
)

// Cache stores the latest version between runs.
type Cache interface {
	Get(key string, v any) bool
	Put(key string, v any) error
}

// ReleaseInfo holds the relevant fields from a GitHub release.
type ReleaseInfo struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// UpdateResult is returned by Check to communicate the outcome.
type UpdateResult struct {
	// CurrentVersion is the running version (e.g. "0.2.0").
	CurrentVersion string
	// LatestVersion is the newest release (e.g. "0.3.0").
	LatestVersion string
	// UpdateAvailable is true when latest > current.
	UpdateAvailable bool
	// Cached is set when LatestVersion came from the cache.
	Cached bool
}

// Notice renders the markdown shown at session start, or "" when there is
// nothing to report.
func (r *UpdateResult) Notice() string {
	if r == nil || !r.UpdateAvailable {
		return ""
	}
	return fmt.Sprintf("**Larvling update available:** v%s -> v%s  \nUpdate via the plugin manager or reinstall from `%s`.",
		r.CurrentVersion, r.LatestVersion, GitHubRepo)
}

// Checker queries the releases endpoint.
type Checker struct {
	endpoint string
	client   *http.Client
	cache    Cache
}

// NewChecker returns a Checker for the Larvling repository. cache may be nil.
func NewChecker(cache Cache) *Checker {
	return &Checker{
		endpoint: releaseURL,
		client:   &http.Client{Timeout: checkTimeout},
		cache:    cache,
	}
}

// Check compares currentVersion against the latest release. It never
// returns an error; network failures leave LatestVersion empty.
func (c *Checker) Check(ctx context.Context, currentVersion string) *UpdateResult {
	result := &UpdateResult{CurrentVersion: normalizeVersion(currentVersion)}

	var latest string
	if c.cache != nil && c.cache.Get(CacheKey, &latest) && latest != "" {
		result.Cached = true
	} else {
		latest = c.fetch(ctx, currentVersion)
		if latest != "" && c.cache != nil {
			_ = c.cache.Put(CacheKey, latest)
		}
	}

	result.LatestVersion = latest
	result.UpdateAvailable = isNewer(result.CurrentVersion, latest)
	return result
}

func (c *Checker) fetch(ctx context.Context, currentVersion string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "larvling/"+normalizeVersion(currentVersion))

	resp, err := c.client.Do(req)
	if err != nil {
		return ""
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var release ReleaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return ""
	}
	return normalizeVersion(release.TagName)
}

// normalizeVersion strips the leading "v" from version strings.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// isNewer returns true if latest is a higher version than current.
// Uses simple numeric comparison of semver parts.
func isNewer(current, latest string) bool {
	if current == "" || latest == "" || current == "dev" {
		return false
	}

	currentParts := strings.Split(current, ".")
	latestParts := strings.Split(latest, ".")

	// Pad to 3 parts
	for len(currentParts) < 3 {
		currentParts = append(currentParts, "0")
	}
	for len(latestParts) < 3 {
		latestParts = append(latestParts, "0")
	}

	for i := 0; i < 3; i++ {
		c := parseIntSafe(currentParts[i])
		l := parseIntSafe(latestParts[i])
		if l > c {
			return true
		}
		if l < c {
			return false
		}
	}

	return false
}

// parseIntSafe converts a string to int, returning 0 on error.
func parseIntSafe(s string) int {
	n := 0
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			n = n*10 + int(ch-'0')
		} else {
			break
		}
	}
	return n
}
