package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pep299/repo-profiler/internal/config"
	"github.com/pep299/repo-profiler/internal/github"
	"github.com/pep299/repo-profiler/internal/profiler"
)

// Sentinel errors classifying summary generation failures.
var (
	// ErrRateLimited indicates the provider rejected the request for quota reasons.
	ErrRateLimited = errors.New("rate limited by summary provider")
	// ErrContentPolicy indicates the provider refused the prompt or withheld
	// the completion on content policy grounds.
	ErrContentPolicy = errors.New("summary blocked by provider content policy")
	// ErrUpstream indicates an unexpected provider or transport failure.
	ErrUpstream = errors.New("summary provider request failed")
)

// Prompt size caps. Descriptions and dependency lists are unbounded inputs;
// the prompt is not.
const (
	maxDescriptionChars    = 600
	maxDependenciesPerFile = 25
	maxPromptChars         = 8000
)

// Provider generates text from a prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Result is a generated summary plus the provider that produced it.
type Result struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Composer renders repository profiles into prompts and runs them through
// the configured provider.
type Composer struct {
	provider     Provider
	providerName string
	model        string
}

// New selects a provider from configuration.
func New(cfg *config.Config) (*Composer, error) {
	switch cfg.SummaryProvider {
	case "gemini":
		return NewWithProvider(NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiModel), "gemini", cfg.GeminiModel), nil
	case "openai":
		return NewWithProvider(NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), "openai", cfg.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unknown summary provider %q", cfg.SummaryProvider)
	}
}

// NewWithProvider wires an explicit provider.
func NewWithProvider(p Provider, name, model string) *Composer {
	return &Composer{provider: p, providerName: name, model: model}
}

// Summarize renders the profile into a prompt and generates the summary text.
func (c *Composer) Summarize(ctx context.Context, snap *github.Snapshot, profile *profiler.Profile) (*Result, error) {
	text, err := c.provider.Generate(ctx, BuildPrompt(snap, profile))
	if err != nil {
		return nil, err
	}

	return &Result{
		Text:     strings.TrimSpace(text),
		Provider: c.providerName,
		Model:    c.model,
	}, nil
}

// BuildPrompt renders the analysis prompt for a profiled repository.
func BuildPrompt(snap *github.Snapshot, profile *profiler.Profile) string {
	health := profile.Health

	license := snap.License
	if license == "" {
		license = "None"
	}
	lastUpdated := "unknown"
	if !snap.PushedAt.IsZero() {
		lastUpdated = snap.PushedAt.UTC().Format(time.RFC3339)
	}

	var content strings.Builder
	content.WriteString("Your objective is to provide a high-level summary of a GitHub repository.\n")
	content.WriteString("Analyze the following data\n\n")
	content.WriteString(fmt.Sprintf("Repo Name: %s\n", snap.FullName))
	content.WriteString(fmt.Sprintf("Health Score: %.2f\n", health.Score))
	content.WriteString(fmt.Sprintf("Description: %s\n", truncate(snap.Description, maxDescriptionChars)))
	content.WriteString(fmt.Sprintf("Stars: %d\n", snap.Stars))
	content.WriteString(fmt.Sprintf("Last Updated: %s\n", lastUpdated))
	content.WriteString(fmt.Sprintf("License: %s\n", license))
	content.WriteString(fmt.Sprintf("Commits per week (avg): %.2f\n", health.Activity.CommitsPerWeekAvg))
	content.WriteString(fmt.Sprintf("New issues (last 30d): %d\n", health.Activity.NewIssues))
	content.WriteString(fmt.Sprintf("Closed issues (last 30d): %d\n", health.Activity.ClosedIssues))
	content.WriteString(fmt.Sprintf("Total Open Issues: %d\n", health.Issues.OpenIssues))
	content.WriteString(fmt.Sprintf("Stale Issues (>90d): %d\n", health.Issues.StaleIssues))
	content.WriteString(fmt.Sprintf("Bug-labeled Issues: %d\n", health.Issues.BugIssues))
	content.WriteString(fmt.Sprintf("Contributors Count: %d\n", len(profile.TopContributors)))

	for _, report := range profile.Dependencies {
		content.WriteString(fmt.Sprintf("\nDependencies (%s):\n", report.File))
		for i, dep := range report.Dependencies {
			if i == maxDependenciesPerFile {
				content.WriteString(fmt.Sprintf("  ... and %d more\n", len(report.Dependencies)-maxDependenciesPerFile))
				break
			}
			content.WriteString(fmt.Sprintf("  %s %s\n", dep.Name, dep.Version))
		}
	}

	content.WriteString("\nProvide a summary that contains the following:\n")
	content.WriteString("  1. Overall summary, description of the project\n")
	content.WriteString("  2. Overall health and activity levels\n")
	content.WriteString("  3. Any major issues/flags?\n")
	content.WriteString("  4. Is it good overall? or bad? Rating on a scale from 1-10 and reasoning/justification\n\n")
	content.WriteString("Start the summary directly, without any preamble.\n")

	return truncate(content.String(), maxPromptChars)
}

// truncate caps s at max bytes, marking the cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
