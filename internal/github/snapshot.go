package github

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// manifestFiles are the dependency manifests recognized in the repository root.
var manifestFiles = []string{"requirements.txt", "package.json"}

// maxConcurrentDownloads bounds parallel manifest downloads.
const maxConcurrentDownloads = 4

// Snapshot is everything fetched about a repository in one pass. FetchedAt is
// the reference time for all downstream recency calculations.
type Snapshot struct {
	Ref            Ref
	FullName       string
	URL            string
	Description    string
	Language       string
	Stars          int
	Forks          int
	OpenIssueCount int
	License        string
	PushedAt       time.Time

	Contributors   []Contributor
	Issues         []Issue
	CommitActivity []WeeklyActivity
	Manifests      map[string]string

	FetchedAt time.Time
}

// FetchSnapshot fetches repository details, contributors, issues, commit
// activity and the root listing concurrently, then downloads any recognized
// dependency manifests. Only the details call is fatal: secondary data
// degrades to empty when its fetch fails.
func (c *Client) FetchSnapshot(ctx context.Context, ref Ref) (*Snapshot, error) {
	log.Printf("Fetching snapshot for %s", ref.FullName())

	var (
		details      *repoDetails
		contributors []Contributor
		issues       []Issue
		activity     []WeeklyActivity
		entries      []rootEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		details, err = c.fetchDetails(gctx, ref)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", ref.FullName(), err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if contributors, err = c.fetchContributors(gctx, ref); err != nil {
			logSecondary("contributors", ref, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if issues, err = c.fetchIssues(gctx, ref); err != nil {
			logSecondary("issues", ref, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if activity, err = c.fetchCommitActivity(gctx, ref); err != nil {
			logSecondary("commit activity", ref, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if entries, err = c.fetchRootEntries(gctx, ref); err != nil {
			logSecondary("root listing", ref, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Ref:            ref,
		FullName:       details.FullName,
		URL:            details.HTMLURL,
		Description:    details.Description,
		Language:       details.Language,
		Stars:          details.StargazersCount,
		Forks:          details.ForksCount,
		OpenIssueCount: details.OpenIssuesCount,
		Contributors:   contributors,
		Issues:         issues,
		CommitActivity: activity,
		FetchedAt:      time.Now().UTC(),
	}
	if details.License != nil {
		snap.License = details.License.Name
	}
	if details.PushedAt != nil {
		snap.PushedAt = *details.PushedAt
	}

	snap.Manifests = c.fetchManifests(ctx, ref, entries)
	log.Printf("Found dependency files for %s: %v", ref.FullName(), manifestNames(snap.Manifests))

	return snap, nil
}

// fetchManifests downloads recognized dependency manifests from the root
// listing. A failed download skips that file.
func (c *Client) fetchManifests(ctx context.Context, ref Ref, entries []rootEntry) map[string]string {
	manifests := make(map[string]string)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDownloads)

	for _, entry := range entries {
		if entry.Type != "file" || !isManifest(entry.Name) {
			continue
		}
		entry := entry
		g.Go(func() error {
			content, err := c.fetchFileContent(gctx, ref, entry.Path)
			if err != nil {
				logSecondary(entry.Path, ref, err)
				return nil
			}
			mu.Lock()
			manifests[entry.Name] = content
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	return manifests
}

func isManifest(name string) bool {
	for _, m := range manifestFiles {
		if name == m {
			return true
		}
	}
	return false
}

func manifestNames(manifests map[string]string) []string {
	names := make([]string, 0, len(manifests))
	for _, m := range manifestFiles {
		if _, ok := manifests[m]; ok {
			names = append(names, m)
		}
	}
	return names
}

// logSecondary reports a non-fatal fetch failure, skipping cancellations
// caused by a failure elsewhere in the group.
func logSecondary(what string, ref Ref, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	log.Printf("Fetching %s for %s: %v", what, ref.FullName(), err)
}
