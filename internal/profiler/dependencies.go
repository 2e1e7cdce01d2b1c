package profiler

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Ecosystems reported for dependency manifests.
const (
	EcosystemPython = "python"
	EcosystemNode   = "node"
)

// requirementPattern matches "package", "package==1.2" and the other pip
// constraint operators.
var requirementPattern = regexp.MustCompile(`^([\w.\-]+)\s*(?:[=~><!]{1,2}\s*([\w.*]+))?`)

// Dependency is a single declared dependency.
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DependencyReport groups the dependencies declared by one manifest file.
type DependencyReport struct {
	File         string       `json:"file"`
	Ecosystem    string       `json:"ecosystem"`
	Dependencies []Dependency `json:"dependencies"`
}

// ParseRequirementsTxt parses a pip requirements file. Blank lines, comments
// and unparseable lines are skipped; a requirement without a version
// constraint is reported as "latest". Re-declaring a package keeps its first
// position and the last constraint.
func ParseRequirementsTxt(content string) []Dependency {
	var deps []Dependency
	seen := make(map[string]int)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		match := requirementPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		name := match[1]
		version := match[2]
		if version == "" {
			version = "latest"
		}

		if idx, ok := seen[name]; ok {
			deps[idx].Version = version
			continue
		}
		seen[name] = len(deps)
		deps = append(deps, Dependency{Name: name, Version: version})
	}

	return deps
}

// ParsePackageJSON parses a package.json manifest, merging dependencies and
// devDependencies (the dev entry wins on collision). Malformed JSON yields no
// dependencies rather than an error, so one broken manifest never blocks a
// profile. Entries are sorted by name.
func ParsePackageJSON(content string) []Dependency {
	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal([]byte(content), &manifest); err != nil {
		return nil
	}

	merged := make(map[string]string, len(manifest.Dependencies)+len(manifest.DevDependencies))
	for name, version := range manifest.Dependencies {
		merged[name] = version
	}
	for name, version := range manifest.DevDependencies {
		merged[name] = version
	}
	if len(merged) == 0 {
		return nil
	}

	deps := make([]Dependency, 0, len(merged))
	for name, version := range merged {
		deps = append(deps, Dependency{Name: name, Version: version})
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps
}

// AnalyzeDependencies builds one report per recognized manifest that declares
// at least one dependency.
func AnalyzeDependencies(manifests map[string]string) []DependencyReport {
	var reports []DependencyReport

	if content, ok := manifests["requirements.txt"]; ok {
		if deps := ParseRequirementsTxt(content); len(deps) > 0 {
			reports = append(reports, DependencyReport{
				File:         "requirements.txt",
				Ecosystem:    EcosystemPython,
				Dependencies: deps,
			})
		}
	}

	if content, ok := manifests["package.json"]; ok {
		if deps := ParsePackageJSON(content); len(deps) > 0 {
			reports = append(reports, DependencyReport{
				File:         "package.json",
				Ecosystem:    EcosystemNode,
				Dependencies: deps,
			})
		}
	}

	return reports
}
