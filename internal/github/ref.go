package github

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// repoURLPattern pulls "owner/name" out of a GitHub repository URL.
	repoURLPattern = regexp.MustCompile(`github\.com/([\w\-]+)/([\w.\-]+)`)
	// repoPathPattern matches a bare "owner/name" reference.
	repoPathPattern = regexp.MustCompile(`^([\w\-]+)/([\w.\-]+)$`)
)

// Ref identifies a repository by owner and name.
type Ref struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// FullName returns the "owner/name" form used in API paths.
func (r Ref) FullName() string {
	return r.Owner + "/" + r.Name
}

// ParseRef resolves a repository reference from a GitHub URL or a bare
// "owner/name" string.
func ParseRef(input string) (Ref, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Ref{}, fmt.Errorf("empty repository reference")
	}

	match := repoURLPattern.FindStringSubmatch(input)
	if match == nil {
		match = repoPathPattern.FindStringSubmatch(input)
	}
	if match == nil {
		return Ref{}, fmt.Errorf("invalid repository reference %q: expected https://github.com/owner/name or owner/name", input)
	}

	return Ref{Owner: match[1], Name: strings.TrimSuffix(match[2], ".git")}, nil
}
