package domain

import (
	"fmt"
	"time"
)

// Commit is one entry of repository history, read fresh on every query.
type Commit struct {
	Hash       string    `json:"hash"`
	ShortHash  string    `json:"short_hash"`
	Author     string    `json:"author"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Day        string    `json:"day"` // YYYY-MM-DD in the author's recorded offset
	Category   Category  `json:"category"`
	Files      []string  `json:"files_changed"`
	Insertions int       `json:"insertions"`
	Deletions  int       `json:"deletions"`
}

// Stats returns the +insertions/-deletions label used in tool output.
func (c Commit) Stats() string {
	return fmt.Sprintf("+%d/-%d", c.Insertions, c.Deletions)
}

// Category is an advisory classification derived from the commit subject.
type Category string

// Category constants.
const (
	CategoryFeature  Category = "feature"
	CategoryFix      Category = "fix"
	CategoryDocs     Category = "docs"
	CategoryRefactor Category = "refactor"
	CategoryOther    Category = "other"
)

// DayBucket groups the commits authored on one calendar day, newest first.
type DayBucket struct {
	Date    string   `json:"date"`
	Commits []Commit `json:"commits"`
}

// ActivityRange records what window or revision set a summary covers.
type ActivityRange struct {
	Since    *time.Time `json:"since,omitempty"`
	Until    *time.Time `json:"until,omitempty"`
	Revision string     `json:"revision,omitempty"`
}

// ActivitySummary is the grouped view of recent commits handed to the drafting step.
type ActivitySummary struct {
	RepoPath        string           `json:"repo_path"`
	Range           ActivityRange    `json:"range"`
	Days            []DayBucket      `json:"days"`
	TotalCount      int              `json:"total_commits"`
	TotalInsertions int              `json:"total_insertions"`
	TotalDeletions  int              `json:"total_deletions"`
	FilesChanged    []string         `json:"files_changed"`
	Categories      map[Category]int `json:"categories"`
	Oldest          *time.Time       `json:"oldest,omitempty"`
	Newest          *time.Time       `json:"newest,omitempty"`
}

// Commits flattens the day buckets back into newest-first order.
func (s ActivitySummary) Commits() []Commit {
	out := make([]Commit, 0, s.TotalCount)
	for _, d := range s.Days {
		out = append(out, d.Commits...)
	}
	return out
}
