package models

import (
	"time"
)

// Project configuration models

// Project describes one GitLab project being tracked for review coverage.
// Projects are defined by the configuration layer and consumed read-only
// by the sync engine; a sync cycle never mutates a Project.
type Project struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	GitLabURL     string            `json:"gitlab_url"`
	AccessToken   string            `json:"-"` // Never expose the token in JSON
	Branch        string            `json:"branch,omitempty"`
	Reviewers     []string          `json:"reviewers"`
	UserMappings  map[string]string `json:"user_mappings,omitempty"` // username -> nickname
	FilterRules   string            `json:"filter_rules,omitempty"`  // one regex per line
	ReviewDays    int               `json:"review_days"`
	MaxCommits    int               `json:"max_commits"`
	WebhookSecret string            `json:"-"`
	Active        bool              `json:"active"`
}

// Comment is a single commit comment as reported by GitLab. Comments are
// immutable once stored; a later sync may append more comments to the same
// commit but never rewrites existing ones.
type Comment struct {
	Author    string    `json:"author"` // username or display name, whichever GitLab reported
	CreatedAt time.Time `json:"created_at"`
	Text      string    `json:"text"`
}

// CachedCommit is one commit in a project's local cache.
type CachedCommit struct {
	ID           string    `json:"id"`
	ShortID      string    `json:"short_id"`
	Message      string    `json:"message"`
	AuthorName   string    `json:"author_name"`
	AuthorEmail  string    `json:"author_email"`
	CommittedAt  time.Time `json:"committed_at"`
	WebURL       string    `json:"web_url"`
	HasComments  bool      `json:"has_comments"`
	CommentCount int       `json:"comment_count"`
	SkipReview   bool      `json:"skip_review"`
	NeedsReview  bool      `json:"needs_review"`
	Comments     []Comment `json:"comments,omitempty"`
}

// ProjectCommitCache is the durable per-project commit cache. It is read and
// rewritten wholesale on each sync pass; commits are ordered newest-first and
// never removed.
type ProjectCommitCache struct {
	ProjectID           string         `json:"project_id"`
	LastCommitPullTime  time.Time      `json:"last_commit_pull_time"`
	LastCommentPullTime time.Time      `json:"last_comment_pull_time"`
	Commits             []CachedCommit `json:"commits"`
}

// Branch is one branch descriptor with its head commit summary.
type Branch struct {
	Name            string    `json:"name"`
	Default         bool      `json:"default"`
	Protected       bool      `json:"protected"`
	HeadCommitID    string    `json:"head_commit_id"`
	HeadCommitTitle string    `json:"head_commit_title"`
	HeadCommittedAt time.Time `json:"head_committed_at"`
}

// ProjectBranchCache is the durable per-project branch cache.
type ProjectBranchCache struct {
	ProjectID          string    `json:"project_id"`
	LastBranchPullTime time.Time `json:"last_branch_pull_time"`
	Branches           []Branch  `json:"branches"`
	DefaultBranch      string    `json:"default_branch"`
}

// Member is a project member as reported by GitLab, used to surface
// reviewer usernames for configuration.
type Member struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	State    string `json:"state"`
}

// Derived statistics (computed fresh on each request, never persisted)

// ReviewerStat is one reviewer's coverage over a project's needs-review commits.
type ReviewerStat struct {
	Username   string `json:"username"`
	Nickname   string `json:"nickname,omitempty"`
	Assigned   int    `json:"assigned"`
	Reviewed   int    `json:"reviewed"`
	Pending    int    `json:"pending"`
	ReviewRate string `json:"review_rate"` // percentage, one decimal
}

// ReviewStats is the full coverage report for one project. This structure is
// the sole payload handed to report consumers.
type ReviewStats struct {
	ProjectID       string         `json:"project_id"`
	ProjectName     string         `json:"project_name"`
	TotalCommits    int            `json:"total_commits"` // needs-review commits only
	CommentedCount  int            `json:"commented_count"`
	ReviewedCount   int            `json:"reviewed_count"`
	PendingCount    int            `json:"pending_count"`
	ReviewRate      string         `json:"review_rate"` // percentage, one decimal
	Reviewers       []ReviewerStat `json:"reviewers"`
	LastCommitPull  time.Time      `json:"last_commit_pull"`
	LastCommentPull time.Time      `json:"last_comment_pull"`
	GeneratedAt     time.Time      `json:"generated_at"`
}
