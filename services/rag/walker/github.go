// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package walker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	githubAPIBase = "https://api.github.com"

	// maxScanDepth bounds recursive directory traversal.
	maxScanDepth = 5

	// maxFileSize skips files over 1 MiB; GitHub inlines content below
	// that and large blobs are rarely prose anyway.
	maxFileSize = 1024 * 1024
)

// MDExtensions are the GitHub file extensions treated as documentation.
var MDExtensions = []string{".md", ".markdown", ".rst", ".txt"}

// quotaTracker follows GitHub's rate limit headers and blocks when the
// remaining quota drops below a safety floor.
type quotaTracker struct {
	mu        sync.Mutex
	remaining int
	resetTime int64
	seen      bool
}

func (q *quotaTracker) update(h http.Header) {
	raw := h.Get("X-RateLimit-Remaining")
	if raw == "" {
		return
	}
	remaining, err := strconv.Atoi(raw)
	if err != nil {
		return
	}
	reset, _ := strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)

	q.mu.Lock()
	q.remaining = remaining
	q.resetTime = reset
	q.seen = true
	q.mu.Unlock()
}

// waitIfNeeded sleeps until the quota window resets when fewer than ten
// requests remain. The extra five seconds absorbs clock skew against the
// GitHub API servers.
func (q *quotaTracker) waitIfNeeded(ctx context.Context) error {
	q.mu.Lock()
	wait := time.Duration(0)
	if q.seen && q.remaining < 10 {
		now := time.Now().Unix()
		if q.resetTime > now {
			wait = time.Duration(q.resetTime-now+5) * time.Second
		}
	}
	q.mu.Unlock()

	if wait == 0 {
		return nil
	}
	slog.Info("GitHub rate limit approaching, waiting", "wait", wait)
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// githubItem is the subset of the contents API response we consume.
type githubItem struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	SHA         string `json:"sha"`
	Content     string `json:"content"`
	DownloadURL string `json:"download_url"`
}

// githubRepo is the subset of the repos API response we consume.
type githubRepo struct {
	FullName string `json:"full_name"`
	Archived bool   `json:"archived"`
}

// GitHubSource walks documentation files of one repository or of every
// repository in an organization via the GitHub contents API.
type GitHubSource struct {
	Token string
	// Org lists every repository of an organization. Ignored when Repo
	// is set.
	Org string
	// Repo is a single "owner/repo" target.
	Repo string

	httpClient *http.Client
	limiter    *rate.Limiter
	quota      *quotaTracker
	retryBase  time.Duration
}

// NewGitHubSource creates a source. Either repo ("owner/repo") or org must
// be non-empty.
func NewGitHubSource(token, org, repo string) (*GitHubSource, error) {
	if org == "" && repo == "" {
		return nil, fmt.Errorf("github source needs an org or a repo")
	}
	return &GitHubSource{
		Token:      token,
		Org:        org,
		Repo:       repo,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// Authenticated GitHub quota is 5000/hour; pacing well under
		// that keeps bursts from tripping secondary limits.
		limiter:   rate.NewLimiter(rate.Limit(1), 5),
		quota:     &quotaTracker{},
		retryBase: time.Second,
	}, nil
}

// Walk scans the configured repositories and emits one Document per
// documentation file. Filepaths use the "github:{owner/repo}:{path}" form
// so remote documents never collide with local ones.
func (s *GitHubSource) Walk(ctx context.Context, emit func(Document) error) error {
	repos := []string{s.Repo}
	if s.Repo == "" {
		orgRepos, err := s.fetchOrgRepos(ctx)
		if err != nil {
			return err
		}
		repos = orgRepos
	}

	for _, repo := range repos {
		if err := s.walkRepo(ctx, repo, emit); err != nil {
			return err
		}
	}
	return nil
}

func (s *GitHubSource) walkRepo(ctx context.Context, repo string, emit func(Document) error) error {
	slog.Info("scanning repository for documentation", "repo", repo)

	var files []githubItem
	for _, root := range []string{"", "docs", "documentation"} {
		if err := s.scanPath(ctx, repo, root, 0, &files); err != nil {
			return err
		}
	}

	for _, file := range files {
		content, err := s.fetchContent(ctx, file)
		if err != nil {
			slog.Warn("failed to fetch file content", "repo", repo, "path", file.Path, "error", err)
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}

		fullPath := fmt.Sprintf("github:%s:%s", repo, file.Path)
		title := file.Name
		for _, line := range firstLines(content, 20) {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "# ") {
				title = strings.TrimSpace(line[2:])
				break
			}
		}

		doc := Document{
			Filepath: fullPath,
			Title:    title,
			Content:  content,
			Category: "github",
		}
		if err := emit(doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *GitHubSource) scanPath(ctx context.Context, repo, path string, depth int, files *[]githubItem) error {
	if depth > maxScanDepth || ShouldExclude(path) {
		return nil
	}

	var items []githubItem
	url := fmt.Sprintf("%s/repos/%s/contents/%s", githubAPIBase, repo, path)
	found, err := s.getJSON(ctx, url, &items)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	for _, item := range items {
		if ShouldExclude(item.Path) {
			continue
		}
		switch item.Type {
		case "file":
			if hasDocExtension(item.Name) {
				*files = append(*files, item)
			}
		case "dir":
			if err := s.scanPath(ctx, repo, item.Path, depth+1, files); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *GitHubSource) fetchOrgRepos(ctx context.Context) ([]string, error) {
	var names []string
	for page := 1; ; page++ {
		var repos []githubRepo
		url := fmt.Sprintf("%s/orgs/%s/repos?per_page=100&type=all&page=%d", githubAPIBase, s.Org, page)
		found, err := s.getJSON(ctx, url, &repos)
		if err != nil {
			return nil, err
		}
		if !found || len(repos) == 0 {
			break
		}
		for _, repo := range repos {
			if !repo.Archived {
				names = append(names, repo.FullName)
			}
		}
		if len(repos) < 100 {
			break
		}
	}
	slog.Info("discovered repositories", "org", s.Org, "count", len(names))
	return names, nil
}

// fetchContent returns the decoded file text, preferring the inlined
// base64 payload over a second download request.
func (s *GitHubSource) fetchContent(ctx context.Context, file githubItem) (string, error) {
	if file.Type != "file" {
		return "", nil
	}
	if file.Size > maxFileSize {
		slog.Warn("skipping large file", "path", file.Path, "size", file.Size)
		return "", nil
	}

	if file.Content == "" {
		// Directory listings omit the payload; fall back to the raw URL.
		if file.DownloadURL != "" {
			return s.download(ctx, file.DownloadURL)
		}
		return "", nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decoding content for %s: %w", file.Path, err)
	}
	return string(decoded), nil
}

func (s *GitHubSource) download(ctx context.Context, url string) (string, error) {
	body, _, err := s.do(ctx, url)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// getJSON fetches and decodes an API response. The bool result is false
// for 404s, which are expected for optional scan roots.
func (s *GitHubSource) getJSON(ctx context.Context, url string, out interface{}) (bool, error) {
	body, status, err := s.do(ctx, url)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		// Single-file responses decode as an object, not a list.
		if items, ok := out.(*[]githubItem); ok {
			var single githubItem
			if err2 := json.Unmarshal(body, &single); err2 == nil {
				*items = append(*items, single)
				return true, nil
			}
		}
		return false, fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return true, nil
}

// do executes a paced request with quota tracking and a bounded retry for
// transient statuses.
func (s *GitHubSource) do(ctx context.Context, url string) ([]byte, int, error) {
	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
		if err := s.quota.waitIfNeeded(ctx); err != nil {
			return nil, 0, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if s.Token != "" {
			req.Header.Set("Authorization", "Bearer "+s.Token)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if attempt < 2 {
				time.Sleep(time.Duration(attempt+1) * s.retryBase)
				continue
			}
			return nil, 0, fmt.Errorf("github request failed: %w", err)
		}

		s.quota.update(resp.Header)
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, 0, readErr
		}

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound:
			return body, resp.StatusCode, nil
		case resp.StatusCode == http.StatusForbidden && attempt == 0:
			// Likely a secondary rate limit. Wait out the quota window
			// once, then give up if it persists.
			if err := s.quota.waitIfNeeded(ctx); err != nil {
				return nil, 0, err
			}
			continue
		case (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < 2:
			time.Sleep(time.Duration(attempt+1) * 2 * s.retryBase)
			continue
		default:
			return nil, resp.StatusCode, fmt.Errorf("github API returned %d for %s", resp.StatusCode, url)
		}
	}
}

func hasDocExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range MDExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func firstLines(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return lines
}
