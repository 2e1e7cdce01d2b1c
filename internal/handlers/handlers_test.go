package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pep299/repo-profiler/internal/github"
	"github.com/pep299/repo-profiler/internal/profiler"
	"github.com/pep299/repo-profiler/internal/summary"
)

func TestAnalyzeHandler(t *testing.T) {
	rec := postAnalyze(happyServer(), `{"repo_url": "https://github.com/octocat/hello-world"}`, "Bearer test-token")

	if rec.Code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}

	if report.Repository.FullName != "octocat/hello-world" {
		t.Errorf("Expected full name 'octocat/hello-world', got '%s'", report.Repository.FullName)
	}
	if report.Repository.Owner != "octocat" || report.Repository.Name != "hello-world" {
		t.Errorf("Unexpected repository identity: %+v", report.Repository)
	}
	if report.Repository.Stars != 500 {
		t.Errorf("Expected 500 stars, got %d", report.Repository.Stars)
	}
	if report.Repository.License != "MIT License" {
		t.Errorf("Expected license 'MIT License', got '%s'", report.Repository.License)
	}
	if report.Repository.LastPushed == nil {
		t.Error("Expected last_pushed to be set")
	}

	// Five commits a week, a fresh backlog, stars, license and description
	// leave nothing to deduct.
	if report.Health.Score != 100 {
		t.Errorf("Expected health score 100, got %.2f", report.Health.Score)
	}
	if len(report.TopContributors) != 1 || report.TopContributors[0].Username != "alice" {
		t.Errorf("Unexpected contributors: %+v", report.TopContributors)
	}
	if len(report.Dependencies) != 1 || report.Dependencies[0].File != "requirements.txt" {
		t.Fatalf("Unexpected dependencies: %+v", report.Dependencies)
	}
	if report.Dependencies[0].Dependencies[0].Name != "flask" {
		t.Errorf("Unexpected dependency: %+v", report.Dependencies[0].Dependencies[0])
	}
	if report.Summary.Text != "A healthy project." {
		t.Errorf("Unexpected summary text: %q", report.Summary.Text)
	}
}

func TestAnalyzeHandlerByOwnerName(t *testing.T) {
	var receivedRef github.Ref
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, ref github.Ref) (*github.Snapshot, error) {
			receivedRef = ref
			return testSnapshot(), nil
		},
	}
	summarizer := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, snap *github.Snapshot, profile *profiler.Profile) (*summary.Result, error) {
			return testResult(), nil
		},
	}
	server := NewServerWithDeps(testConfig(), fetcher, summarizer)

	rec := postAnalyze(server, `{"owner": "octocat", "name": "hello-world"}`, "Bearer test-token")
	if rec.Code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	want := github.Ref{Owner: "octocat", Name: "hello-world"}
	if receivedRef != want {
		t.Errorf("Expected ref %+v, got %+v", want, receivedRef)
	}
}

func TestAnalyzeHandlerBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `not json`},
		{"missing reference", `{}`},
		{"owner without name", `{"owner": "octocat"}`},
		{"unparseable URL", `{"repo_url": "https://example.com/not/github"}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := postAnalyze(happyServer(), test.body, "Bearer test-token")

			if rec.Code != 400 {
				t.Fatalf("Expected status 400, got %d", rec.Code)
			}

			var response errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Code != codeInvalidRequest {
				t.Errorf("Expected code '%s', got '%s'", codeInvalidRequest, response.Code)
			}
		})
	}
}

func TestAnalyzeHandlerErrorMapping(t *testing.T) {
	failingFetcher := func(err error) *mockFetcher {
		return &mockFetcher{
			fetchFunc: func(ctx context.Context, ref github.Ref) (*github.Snapshot, error) {
				return nil, err
			},
		}
	}
	failingSummarizer := func(err error) *mockSummarizer {
		return &mockSummarizer{
			summarizeFunc: func(ctx context.Context, snap *github.Snapshot, profile *profiler.Profile) (*summary.Result, error) {
				return nil, err
			},
		}
	}
	okFetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, ref github.Ref) (*github.Snapshot, error) {
			return testSnapshot(), nil
		},
	}
	okSummarizer := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, snap *github.Snapshot, profile *profiler.Profile) (*summary.Result, error) {
			return testResult(), nil
		},
	}

	tests := []struct {
		name       string
		fetcher    Fetcher
		summarizer Summarizer
		wantStatus int
		wantCode   string
		wantStage  string
	}{
		{
			name:       "repository not found",
			fetcher:    failingFetcher(github.ErrNotFound),
			summarizer: okSummarizer,
			wantStatus: 404,
			wantCode:   codeNotFound,
			wantStage:  StageFetch,
		},
		{
			name:       "GitHub rate limited",
			fetcher:    failingFetcher(github.ErrRateLimited),
			summarizer: okSummarizer,
			wantStatus: 429,
			wantCode:   codeRateLimited,
			wantStage:  StageFetch,
		},
		{
			name:       "GitHub upstream failure",
			fetcher:    failingFetcher(github.ErrUpstream),
			summarizer: okSummarizer,
			wantStatus: 502,
			wantCode:   codeUpstream,
			wantStage:  StageFetch,
		},
		{
			name: "unanalyzable snapshot",
			fetcher: &mockFetcher{
				fetchFunc: func(ctx context.Context, ref github.Ref) (*github.Snapshot, error) {
					return &github.Snapshot{FetchedAt: testFetchedAt}, nil
				},
			},
			summarizer: okSummarizer,
			wantStatus: 500,
			wantCode:   codeAnalysis,
			wantStage:  StageAnalyze,
		},
		{
			name:       "provider rate limited",
			fetcher:    okFetcher,
			summarizer: failingSummarizer(summary.ErrRateLimited),
			wantStatus: 429,
			wantCode:   codeRateLimited,
			wantStage:  StageSummarize,
		},
		{
			name:       "provider content policy",
			fetcher:    okFetcher,
			summarizer: failingSummarizer(summary.ErrContentPolicy),
			wantStatus: 502,
			wantCode:   codeContentPolicy,
			wantStage:  StageSummarize,
		},
		{
			name:       "provider upstream failure",
			fetcher:    okFetcher,
			summarizer: failingSummarizer(summary.ErrUpstream),
			wantStatus: 502,
			wantCode:   codeUpstream,
			wantStage:  StageSummarize,
		},
		{
			name:       "deadline exceeded",
			fetcher:    failingFetcher(context.DeadlineExceeded),
			summarizer: okSummarizer,
			wantStatus: 502,
			wantCode:   codeUpstream,
			wantStage:  StageFetch,
		},
		{
			name:       "unclassified failure",
			fetcher:    okFetcher,
			summarizer: failingSummarizer(errors.New("boom")),
			wantStatus: 500,
			wantCode:   codeInternal,
			wantStage:  StageSummarize,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := NewServerWithDeps(testConfig(), test.fetcher, test.summarizer)
			rec := postAnalyze(server, `{"repo_url": "https://github.com/octocat/hello-world"}`, "Bearer test-token")

			if rec.Code != test.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", test.wantStatus, rec.Code, rec.Body.String())
			}

			var response errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if response.Code != test.wantCode {
				t.Errorf("Expected code '%s', got '%s'", test.wantCode, response.Code)
			}
			if response.Stage != test.wantStage {
				t.Errorf("Expected stage '%s', got '%s'", test.wantStage, response.Stage)
			}
			if response.Error == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestAnalyzeHandlerDiscardsAnalysisOnSummarizeFailure(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, ref github.Ref) (*github.Snapshot, error) {
			return testSnapshot(), nil
		},
	}
	summarizer := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, snap *github.Snapshot, profile *profiler.Profile) (*summary.Result, error) {
			return nil, summary.ErrUpstream
		},
	}
	server := NewServerWithDeps(testConfig(), fetcher, summarizer)

	rec := postAnalyze(server, `{"repo_url": "https://github.com/octocat/hello-world"}`, "Bearer test-token")
	if rec.Code != 502 {
		t.Fatalf("Expected status 502, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	for _, key := range []string{"health", "dependencies", "top_contributors"} {
		if _, ok := body[key]; ok {
			t.Errorf("Expected no partial %s in the error response", key)
		}
	}
}

func TestProfileRepository(t *testing.T) {
	var receivedProfile *profiler.Profile
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, ref github.Ref) (*github.Snapshot, error) {
			return testSnapshot(), nil
		},
	}
	summarizer := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, snap *github.Snapshot, profile *profiler.Profile) (*summary.Result, error) {
			receivedProfile = profile
			return testResult(), nil
		},
	}
	server := NewServerWithDeps(testConfig(), fetcher, summarizer)

	report, err := server.ProfileRepository(context.Background(), github.Ref{Owner: "octocat", Name: "hello-world"})
	if err != nil {
		t.Fatalf("ProfileRepository failed: %v", err)
	}

	if receivedProfile == nil {
		t.Fatal("Expected the summarizer to receive the analyzed profile")
	}
	if len(receivedProfile.Dependencies) != 1 {
		t.Errorf("Expected analyzed dependencies, got %+v", receivedProfile.Dependencies)
	}
	if report.Summary.Provider != "gemini" {
		t.Errorf("Expected provider 'gemini', got '%s'", report.Summary.Provider)
	}
}

func TestProfileRepositoryStageError(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context, ref github.Ref) (*github.Snapshot, error) {
			return nil, github.ErrNotFound
		},
	}
	summarizer := &mockSummarizer{
		summarizeFunc: func(ctx context.Context, snap *github.Snapshot, profile *profiler.Profile) (*summary.Result, error) {
			t.Error("Summarize must not run after a fetch failure")
			return nil, nil
		},
	}
	server := NewServerWithDeps(testConfig(), fetcher, summarizer)

	_, err := server.ProfileRepository(context.Background(), github.Ref{Owner: "octocat", Name: "missing"})
	if err == nil {
		t.Fatal("Expected an error")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Expected StageError, got %T: %v", err, err)
	}
	if stageErr.Stage != StageFetch {
		t.Errorf("Expected stage '%s', got '%s'", StageFetch, stageErr.Stage)
	}
	if !errors.Is(err, github.ErrNotFound) {
		t.Errorf("Expected ErrNotFound through the stage wrapper, got %v", err)
	}
	if !strings.Contains(err.Error(), StageFetch) {
		t.Errorf("Expected the stage in the message, got %q", err.Error())
	}
}

func TestBuildReportNoPushDate(t *testing.T) {
	snap := testSnapshot()
	snap.PushedAt = time.Time{}

	profile, err := profiler.Analyze(snap)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	report := buildReport(snap, profile, testResult())
	if report.Repository.LastPushed != nil {
		t.Errorf("Expected nil last_pushed, got %v", report.Repository.LastPushed)
	}
}
