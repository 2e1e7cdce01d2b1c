package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/pep299/repo-profiler/internal/github"
	"github.com/pep299/repo-profiler/internal/profiler"
	"github.com/pep299/repo-profiler/internal/summary"
)

// Pipeline stages reported in error responses.
const (
	StageFetch     = "fetch"
	StageAnalyze   = "analyze"
	StageSummarize = "summarize"
)

// Error codes reported in error responses.
const (
	codeInvalidRequest = "invalid_request"
	codeAuth           = "auth"
	codeNotFound       = "not_found"
	codeRateLimited    = "rate_limited"
	codeAnalysis       = "analysis"
	codeContentPolicy  = "content_policy"
	codeUpstream       = "upstream"
	codeInternal       = "internal"
)

// AnalyzeRequest is the analyze endpoint payload. Either repo_url or the
// owner/name pair identifies the repository.
type AnalyzeRequest struct {
	RepoURL string `json:"repo_url"`
	Owner   string `json:"owner"`
	Name    string `json:"name"`
}

// RepositoryInfo describes the profiled repository.
type RepositoryInfo struct {
	Owner       string     `json:"owner"`
	Name        string     `json:"name"`
	FullName    string     `json:"full_name"`
	URL         string     `json:"url"`
	Description string     `json:"description"`
	Language    string     `json:"language"`
	Stars       int        `json:"stars"`
	Forks       int        `json:"forks"`
	OpenIssues  int        `json:"open_issues"`
	License     string     `json:"license"`
	LastPushed  *time.Time `json:"last_pushed"`
}

// Report is the full profile returned to the caller.
type Report struct {
	Repository      RepositoryInfo              `json:"repository"`
	Health          profiler.HealthReport       `json:"health"`
	TopContributors []profiler.Contributor      `json:"top_contributors"`
	Dependencies    []profiler.DependencyReport `json:"dependencies"`
	Summary         summary.Result              `json:"summary"`
}

// StageError records which pipeline stage a failure happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ProfileRepository runs the fetch, analyze and summarize pipeline for one
// repository. A stage failure short-circuits the pipeline; no partial report
// is produced.
func (s *Server) ProfileRepository(ctx context.Context, ref github.Ref) (*Report, error) {
	log.Printf("Starting analysis for %s", ref.FullName())

	snap, err := s.fetcher.FetchSnapshot(ctx, ref)
	if err != nil {
		return nil, &StageError{Stage: StageFetch, Err: err}
	}

	profile, err := profiler.Analyze(snap)
	if err != nil {
		return nil, &StageError{Stage: StageAnalyze, Err: err}
	}

	result, err := s.summarizer.Summarize(ctx, snap, profile)
	if err != nil {
		return nil, &StageError{Stage: StageSummarize, Err: err}
	}

	log.Printf("Analysis for %s complete", snap.FullName)
	return buildReport(snap, profile, result), nil
}

// buildReport assembles the response payload
func buildReport(snap *github.Snapshot, profile *profiler.Profile, result *summary.Result) *Report {
	info := RepositoryInfo{
		Owner:       snap.Ref.Owner,
		Name:        snap.Ref.Name,
		FullName:    snap.FullName,
		URL:         snap.URL,
		Description: snap.Description,
		Language:    snap.Language,
		Stars:       snap.Stars,
		Forks:       snap.Forks,
		OpenIssues:  snap.OpenIssueCount,
		License:     snap.License,
	}
	if !snap.PushedAt.IsZero() {
		pushed := snap.PushedAt
		info.LastPushed = &pushed
	}

	return &Report{
		Repository:      info,
		Health:          profile.Health,
		TopContributors: profile.TopContributors,
		Dependencies:    profile.Dependencies,
		Summary:         *result,
	}
}

// analyzeHandler profiles one repository per request
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "Invalid request body", "")
		return
	}

	ref, err := resolveRef(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error(), "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.config.RequestTimeout)*time.Second)
	defer cancel()

	report, err := s.ProfileRepository(ctx, ref)
	if err != nil {
		writeStageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// resolveRef resolves the request payload to a repository reference
func resolveRef(req AnalyzeRequest) (github.Ref, error) {
	if req.RepoURL != "" {
		return github.ParseRef(req.RepoURL)
	}
	if req.Owner != "" && req.Name != "" {
		return github.Ref{Owner: req.Owner, Name: req.Name}, nil
	}
	return github.Ref{}, fmt.Errorf("missing repository reference: provide repo_url or owner and name")
}

// writeStageError maps pipeline failures onto HTTP statuses
func writeStageError(w http.ResponseWriter, err error) {
	stage := ""
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		stage = stageErr.Stage
	}

	status := http.StatusInternalServerError
	code := codeInternal
	switch {
	case errors.Is(err, github.ErrNotFound):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, github.ErrRateLimited) || errors.Is(err, summary.ErrRateLimited):
		status, code = http.StatusTooManyRequests, codeRateLimited
	case errors.Is(err, profiler.ErrInvalidSnapshot):
		status, code = http.StatusInternalServerError, codeAnalysis
	case errors.Is(err, summary.ErrContentPolicy):
		status, code = http.StatusBadGateway, codeContentPolicy
	case errors.Is(err, github.ErrUpstream) || errors.Is(err, summary.ErrUpstream):
		status, code = http.StatusBadGateway, codeUpstream
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusBadGateway, codeUpstream
	}

	log.Printf("Analysis failed (%s): %v", code, err)
	writeError(w, status, code, err.Error(), stage)
}

// errorResponse is the error payload shape
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Stage string `json:"stage,omitempty"`
}

// writeJSON writes a JSON response body
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes a structured JSON error
func writeError(w http.ResponseWriter, status int, code, message, stage string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code, Stage: stage})
}
