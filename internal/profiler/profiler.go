package profiler

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pep299/repo-profiler/internal/github"
)

// ErrInvalidSnapshot indicates the snapshot is too incomplete to analyze.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

const (
	topContributorCount = 5
	newIssueWindow      = 30 * 24 * time.Hour
	staleIssueWindow    = 90 * 24 * time.Hour
	recentPushWindow    = 90 * 24 * time.Hour
)

// ActivityTrends summarizes recent commit and issue activity.
type ActivityTrends struct {
	CommitsPerWeekAvg float64 `json:"commits_per_week_avg"`
	NewIssues         int     `json:"new_issues"`
	ClosedIssues      int     `json:"closed_issues"`
}

// IssueHealth summarizes the state of the open issue backlog.
type IssueHealth struct {
	OpenIssues  int `json:"open_issues"`
	StaleIssues int `json:"stale_issues"`
	BugIssues   int `json:"bug_issues"`
}

// Contributor is a top contributor by commit count.
type Contributor struct {
	Username string `json:"username"`
	Commits  int    `json:"commits"`
}

// HealthReport is the health score plus the signals that produced it.
type HealthReport struct {
	Score          float64        `json:"score"`
	Activity       ActivityTrends `json:"activity"`
	Issues         IssueHealth    `json:"issues"`
	HasLicense     bool           `json:"has_license"`
	HasDescription bool           `json:"has_description"`
	DaysSincePush  int            `json:"days_since_push"` // -1 when the push date is unknown
}

// Profile is the full analysis of one snapshot.
type Profile struct {
	Health          HealthReport
	TopContributors []Contributor
	Dependencies    []DependencyReport
}

// Analyze derives a Profile from a snapshot. It is a pure function of its
// input: recency is measured against the snapshot's FetchedAt, so analyzing
// the same snapshot twice yields the same profile.
func Analyze(snap *github.Snapshot) (*Profile, error) {
	if snap == nil || snap.FullName == "" {
		return nil, fmt.Errorf("%w: missing repository details", ErrInvalidSnapshot)
	}

	activity := CalculateActivityTrends(snap.CommitActivity, snap.Issues, snap.FetchedAt)
	issues := AnalyzeIssueHealth(snap.Issues, snap.FetchedAt)

	return &Profile{
		Health: HealthReport{
			Score:          CalculateHealthScore(snap, activity, issues),
			Activity:       activity,
			Issues:         issues,
			HasLicense:     snap.License != "",
			HasDescription: snap.Description != "",
			DaysSincePush:  daysSincePush(snap),
		},
		TopContributors: TopContributors(snap.Contributors),
		Dependencies:    AnalyzeDependencies(snap.Manifests),
	}, nil
}

// CalculateActivityTrends computes the average weekly commit count over the
// 52 week window and the issues opened and closed in the 30 days before now.
func CalculateActivityTrends(weeks []github.WeeklyActivity, issues []github.Issue, now time.Time) ActivityTrends {
	var totalCommits int
	for _, week := range weeks {
		totalCommits += week.Total
	}
	var avg float64
	if len(weeks) > 0 {
		avg = float64(totalCommits) / 52
	}

	trends := ActivityTrends{CommitsPerWeekAvg: round2(avg)}

	cutoff := now.Add(-newIssueWindow)
	for _, issue := range issues {
		if issue.CreatedAt.After(cutoff) {
			trends.NewIssues++
		}
		if issue.ClosedAt != nil && issue.ClosedAt.After(cutoff) {
			trends.ClosedIssues++
		}
	}

	return trends
}

// AnalyzeIssueHealth counts open issues, the stale ones (no update in 90
// days) and the ones carrying a bug label.
func AnalyzeIssueHealth(issues []github.Issue, now time.Time) IssueHealth {
	cutoff := now.Add(-staleIssueWindow)

	var health IssueHealth
	for _, issue := range issues {
		if issue.State != "open" {
			continue
		}
		health.OpenIssues++

		if issue.UpdatedAt.Before(cutoff) {
			health.StaleIssues++
		}

		for _, label := range issue.Labels {
			if strings.Contains(strings.ToLower(label.Name), "bug") {
				health.BugIssues++
				break
			}
		}
	}

	return health
}

// TopContributors maps the first five contributor entries; the API returns
// them ordered by commit count.
func TopContributors(contributors []github.Contributor) []Contributor {
	top := make([]Contributor, 0, topContributorCount)
	for _, c := range contributors {
		if len(top) == topContributorCount {
			break
		}
		top = append(top, Contributor{Username: c.Login, Commits: c.Contributions})
	}
	return top
}

// CalculateHealthScore reduces the snapshot and derived signals to a single
// 0-100 score. Deductions: 10 when the last push is older than 90 days or
// unknown, 20 for under one commit per week (10 under five), up to 20 each
// for the stale and bug-labeled shares of the open backlog, and 10 each for
// fewer than 100 stars, a missing license and a missing description.
func CalculateHealthScore(snap *github.Snapshot, activity ActivityTrends, issues IssueHealth) float64 {
	score := 100.0

	if snap.PushedAt.IsZero() || snap.PushedAt.Before(snap.FetchedAt.Add(-recentPushWindow)) {
		score -= 10
	}

	if activity.CommitsPerWeekAvg < 1 {
		score -= 20
	} else if activity.CommitsPerWeekAvg < 5 {
		score -= 10
	}

	if issues.OpenIssues > 0 {
		staleRatio := float64(issues.StaleIssues) / float64(issues.OpenIssues)
		score -= staleRatio * 20

		bugRatio := float64(issues.BugIssues) / float64(issues.OpenIssues)
		score -= bugRatio * 20
	}

	if snap.Stars < 100 {
		score -= 10
	}
	if snap.License == "" {
		score -= 10
	}
	if snap.Description == "" {
		score -= 10
	}

	return math.Max(0, round2(score))
}

func daysSincePush(snap *github.Snapshot) int {
	if snap.PushedAt.IsZero() {
		return -1
	}
	return int(snap.FetchedAt.Sub(snap.PushedAt).Hours() / 24)
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
