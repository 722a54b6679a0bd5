// Package source fetches merged pull requests from the configured platforms
// and shapes them into records the planner can reconcile.
package source

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"prsheet/internal/row"
	"prsheet/internal/structures"
)

// Record is one merged change ready for reconciliation.
type Record struct {
	Repository string
	Feature    string
	FeatureURL string
	Team       string
	Author     string
	PRURL      string
	MergedAt   time.Time
	Key        string
}

// Row converts r into a sheet record. Rows written by the tool are marked
// auto-synced.
func (r Record) Row() row.Record {
	return row.Record{
		Key:        r.Key,
		Repository: r.Repository,
		Feature:    r.Feature,
		FeatureURL: r.FeatureURL,
		Team:       r.Team,
		Authors:    row.NewSet(r.Author),
		PRs:        row.NewSet(r.PRURL),
		MergedAt:   r.MergedAt,
		AutoSync:   true,
	}
}

// Rows converts a batch.
func Rows(records []Record) []row.Record {
	out := make([]row.Record, len(records))
	for i, r := range records {
		out[i] = r.Row()
	}
	return out
}

// Change is a merged PR or MR as the platforms report it.
type Change struct {
	Repository string
	Title      string
	Branch     string
	Login      string
	URL        string
	MergedAt   time.Time
}

// Shaper turns platform changes into records: it finds the work item a
// change belongs to and resolves its author against the users table.
type Shaper struct {
	pattern     *regexp.Regexp
	urlTemplate string
	users       map[string]structures.User
}

func NewShaper(wi structures.WorkItemConfig, users map[string]structures.User) (*Shaper, error) {
	re, err := regexp.Compile(wi.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid work item pattern: %w", err)
	}
	folded := make(map[string]structures.User, len(users))
	for login, u := range users {
		folded[row.Fold(login)] = u
	}
	return &Shaper{pattern: re, urlTemplate: wi.URLTemplate, users: folded}, nil
}

// WorkItem returns the first work item id in the title, else in the branch.
func (s *Shaper) WorkItem(title, branch string) string {
	if id := s.pattern.FindString(title); id != "" {
		return id
	}
	return s.pattern.FindString(branch)
}

func (s *Shaper) Shape(c Change) Record {
	rec := Record{
		Repository: c.Repository,
		Feature:    strings.TrimSpace(c.Title),
		Author:     c.Login,
		PRURL:      c.URL,
		MergedAt:   c.MergedAt,
		Key:        c.URL,
	}
	if u, ok := s.users[row.Fold(c.Login)]; ok {
		if u.Name != "" {
			rec.Author = u.Name
		}
		rec.Team = u.Team
	}
	if id := s.WorkItem(c.Title, c.Branch); id != "" {
		rec.Feature = id
		rec.Key = c.Repository + ":" + id
		if s.urlTemplate != "" {
			rec.FeatureURL = strings.ReplaceAll(s.urlTemplate, "{id}", id)
		}
	}
	return rec
}

// GroupByRepository reorders records so each repository's records are
// adjacent. Repositories keep first-seen order and records keep their
// order within a repository.
func GroupByRepository(records []Record) []Record {
	var order []string
	groups := make(map[string][]Record)
	for _, r := range records {
		k := row.Fold(r.Repository)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}
	out := make([]Record, 0, len(records))
	for _, k := range order {
		out = append(out, groups[k]...)
	}
	return out
}
