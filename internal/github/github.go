package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// Sentinel errors classifying GitHub API failures.
var (
	// ErrNotFound indicates the repository does not exist or is not visible
	// to the configured credentials.
	ErrNotFound = errors.New("repository not found")
	// ErrRateLimited indicates the API rate limit is exhausted.
	ErrRateLimited = errors.New("rate limited by GitHub API")
	// ErrUpstream indicates an unexpected GitHub API or transport failure.
	ErrUpstream = errors.New("GitHub API request failed")
)

// Client handles GitHub REST API operations
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client

	// statsRetryDelay is the wait before retrying the commit activity
	// endpoint after a 202.
	statsRetryDelay time.Duration
}

// NewClient creates a new GitHub API client
func NewClient(tokens TokenSource, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		statsRetryDelay: 2 * time.Second,
	}
}

// repoDetails is the subset of the repository endpoint payload the profiler uses
type repoDetails struct {
	FullName        string     `json:"full_name"`
	HTMLURL         string     `json:"html_url"`
	Description     string     `json:"description"`
	Language        string     `json:"language"`
	StargazersCount int        `json:"stargazers_count"`
	ForksCount      int        `json:"forks_count"`
	OpenIssuesCount int        `json:"open_issues_count"`
	PushedAt        *time.Time `json:"pushed_at"`
	License         *struct {
		Name string `json:"name"`
	} `json:"license"`
}

// Contributor is one entry from the contributors endpoint, ordered by commit count
type Contributor struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
}

// Label is an issue label
type Label struct {
	Name string `json:"name"`
}

// Issue is one entry from the issues endpoint. The endpoint reports pull
// requests alongside issues and both are counted.
type Issue struct {
	State     string     `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at"`
	Labels    []Label    `json:"labels"`
}

// WeeklyActivity is one week of the commit activity summary
type WeeklyActivity struct {
	Week  int64 `json:"week"`
	Total int   `json:"total"`
}

// rootEntry is one entry of the root contents listing
type rootEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// do issues an authenticated request against the API
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving credentials: %v", ErrUpstream, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return resp, nil
}

// checkStatus maps error statuses onto the error taxonomy
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return ErrRateLimited
	default:
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, string(bodyBytes))
	}
}

// get issues an authenticated GET and decodes the JSON response into out
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, "GET", path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrUpstream, path, err)
	}
	return nil
}

// fetchDetails fetches the main repository record (stars, forks, description, etc.)
func (c *Client) fetchDetails(ctx context.Context, ref Ref) (*repoDetails, error) {
	var details repoDetails
	if err := c.get(ctx, "/repos/"+ref.FullName(), &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// fetchContributors fetches the contributor list, sorted by commit count
func (c *Client) fetchContributors(ctx context.Context, ref Ref) ([]Contributor, error) {
	var contributors []Contributor
	if err := c.get(ctx, "/repos/"+ref.FullName()+"/contributors", &contributors); err != nil {
		return nil, err
	}
	return contributors, nil
}

// fetchIssues fetches open and closed issues for the repository
func (c *Client) fetchIssues(ctx context.Context, ref Ref) ([]Issue, error) {
	var issues []Issue
	if err := c.get(ctx, "/repos/"+ref.FullName()+"/issues?state=all&per_page=100", &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// fetchCommitActivity fetches the 52 week commit summary. GitHub answers 202
// while it computes the stats in the background, so one retry is attempted
// after a short delay; a second 202 yields no data.
func (c *Client) fetchCommitActivity(ctx context.Context, ref Ref) ([]WeeklyActivity, error) {
	path := "/repos/" + ref.FullName() + "/stats/commit_activity"

	resp, err := c.do(ctx, "GET", path)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusAccepted {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUpstream, ctx.Err())
		case <-time.After(c.statsRetryDelay):
		}

		resp, err = c.do(ctx, "GET", path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusAccepted {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, nil
		}
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var weeks []WeeklyActivity
	if err := json.NewDecoder(resp.Body).Decode(&weeks); err != nil {
		return nil, fmt.Errorf("%w: decoding commit activity: %v", ErrUpstream, err)
	}
	return weeks, nil
}

// fetchRootEntries fetches the file listing of the repository root
func (c *Client) fetchRootEntries(ctx context.Context, ref Ref) ([]rootEntry, error) {
	var entries []rootEntry
	if err := c.get(ctx, "/repos/"+ref.FullName()+"/contents/", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// fetchFileContent downloads one file via the contents endpoint and decodes
// its base64 payload. The API wraps the encoded content across lines.
func (c *Client) fetchFileContent(ctx context.Context, ref Ref, path string) (string, error) {
	var payload struct {
		Encoding string `json:"encoding"`
		Content  string `json:"content"`
	}
	if err := c.get(ctx, "/repos/"+ref.FullName()+"/contents/"+path, &payload); err != nil {
		return "", err
	}

	if payload.Encoding != "base64" {
		return "", fmt.Errorf("%w: unexpected content encoding %q for %s", ErrUpstream, payload.Encoding, path)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("%w: decoding %s content: %v", ErrUpstream, path, err)
	}
	return string(decoded), nil
}
