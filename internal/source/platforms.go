package source

import (
	"context"
	"fmt"
	"slices"
	"time"

	"prsheet/internal/git"
	"prsheet/internal/github"
	"prsheet/internal/gitlab"
	"prsheet/internal/structures"
)

// GitHubSource is one GitHub repository.
type GitHubSource struct {
	Client *github.Client
	Owner  string
	Repo   string
	Shaper *Shaper
}

func (s GitHubSource) Name() string { return "github:" + s.Owner + "/" + s.Repo }

func (s GitHubSource) Fetch(ctx context.Context, since time.Time) ([]Record, error) {
	pulls, err := s.Client.ListMergedPulls(ctx, s.Owner, s.Repo, since)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(pulls))
	for _, p := range pulls {
		out = append(out, s.Shaper.Shape(Change{
			Repository: p.Repository,
			Title:      p.Title,
			Branch:     p.Branch,
			Login:      p.Author,
			URL:        p.HTMLURL,
			MergedAt:   p.MergedAt,
		}))
	}
	return byMergeTime(out), nil
}

// GitLabSource is one GitLab project.
type GitLabSource struct {
	Client  *gitlab.Client
	Project string
	Shaper  *Shaper
}

func (s GitLabSource) Name() string { return "gitlab:" + s.Project }

func (s GitLabSource) Fetch(ctx context.Context, since time.Time) ([]Record, error) {
	mrs, err := s.Client.ListMerged(ctx, s.Project, since)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(mrs))
	for _, mr := range mrs {
		out = append(out, s.Shaper.Shape(Change{
			Repository: mr.Project,
			Title:      mr.Title,
			Branch:     mr.Branch,
			Login:      mr.Author,
			URL:        mr.WebURL,
			MergedAt:   mr.MergedAt,
		}))
	}
	return byMergeTime(out), nil
}

// byMergeTime orders oldest merge first, so when several changes share a
// work item the latest merge time is the one that sticks.
func byMergeTime(records []Record) []Record {
	slices.SortStableFunc(records, func(a, b Record) int { return a.MergedAt.Compare(b.MergedAt) })
	return records
}

// FromConfig builds one source per configured repository and project.
// Repositories may be given as owner/name or as a clone URL.
func FromConfig(cfg structures.Config) ([]Source, error) {
	shaper, err := NewShaper(cfg.WorkItems, cfg.Users)
	if err != nil {
		return nil, err
	}

	var out []Source
	if len(cfg.GitHub.Repos) > 0 {
		client := github.NewClient(cfg.GitHub.APIURL, cfg.GitHub.Token)
		for _, r := range cfg.GitHub.Repos {
			full, err := git.ParseRepoName(r)
			if err != nil {
				return nil, err
			}
			owner, repo, err := github.SplitRepo(full)
			if err != nil {
				return nil, fmt.Errorf("github: %w", err)
			}
			out = append(out, GitHubSource{Client: client, Owner: owner, Repo: repo, Shaper: shaper})
		}
	}
	if len(cfg.GitLab.Projects) > 0 {
		client := gitlab.NewClient(cfg.GitLab.BaseURL, cfg.GitLab.Token)
		for _, p := range cfg.GitLab.Projects {
			out = append(out, GitLabSource{Client: client, Project: p, Shaper: shaper})
		}
	}
	return out, nil
}
