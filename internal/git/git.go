// Package git derives owner/name repository identifiers from remotes.
package git

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

var remotePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^git@[^:]+:([^/]+)/([^/]+)$`),
	regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+)$`),
	regexp.MustCompile(`^ssh://git@[^/]+/([^/]+)/([^/]+)$`),
}

// DetectRepoName reads the origin remote of the repository in dir.
func DetectRepoName(dir string) (string, error) {
	cmd := exec.Command("git", "remote", "get-url", "origin")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("read origin remote: %w", err)
	}

	remote := strings.TrimSpace(string(output))
	if remote == "" {
		return "", fmt.Errorf("origin remote is empty")
	}
	return ParseRepoName(remote)
}

// ParseRepoName returns owner/name for a remote URL or an owner/name pair.
func ParseRepoName(remote string) (string, error) {
	remote = strings.TrimSuffix(strings.TrimSpace(remote), "/")
	remote = strings.TrimSuffix(remote, ".git")

	// Handles formats:
	// - git@github.com:org/repo
	// - https://github.com/org/repo
	// - ssh://git@github.com/org/repo
	for _, re := range remotePatterns {
		if m := re.FindStringSubmatch(remote); len(m) == 3 {
			return m[1] + "/" + m[2], nil
		}
	}

	// Fallback for other structures, e.g. path/to/repo
	parts := strings.Split(remote, "/")
	if len(parts) >= 2 && parts[len(parts)-2] != "" && parts[len(parts)-1] != "" {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
	}

	return "", fmt.Errorf("unable to parse repo from remote: %q", remote)
}
