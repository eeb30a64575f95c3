// Package gitclient fetches commits, commit comments, branches and members
// from a remote GitLab instance. Every operation is independently retryable
// and rate-limited; failures resolve to the taxonomy in errors.go rather
// than aborting a caller's sync pass.
package gitclient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"

	"github.com/reviewradar/internal/retry"
	"github.com/reviewradar/pkg/models"
)

const commitPageSize = 100

// Client talks to one GitLab instance on behalf of one project.
type Client struct {
	gl      *gitlab.Client
	limiter *rate.Limiter
	timeout time.Duration
	retry   retry.Config
}

// Pool hands out Clients keyed by instance URL and token, so the two poll
// cadences share one rate limiter per upstream instead of doubling load.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*Client
	timeout time.Duration
}

// NewPool creates a client pool. timeout bounds every remote call.
func NewPool(timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pool{
		clients: make(map[string]*Client),
		timeout: timeout,
	}
}

// For returns the client for the project's GitLab instance, creating it on
// first use.
func (p *Pool) For(project models.Project) (*Client, error) {
	key := project.GitLabURL + "\x00" + project.AccessToken

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[key]; ok {
		return c, nil
	}

	c, err := New(project.GitLabURL, project.AccessToken, p.timeout)
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	return c, nil
}

// New creates a Client for one GitLab instance.
func New(baseURL, token string, timeout time.Duration) (*Client, error) {
	gl, err := gitlab.NewClient(token,
		gitlab.WithBaseURL(fmt.Sprintf("%s/api/v4", strings.TrimRight(baseURL, "/"))),
	)
	if err != nil {
		return nil, fmt.Errorf("create gitlab client: %w", err)
	}

	return &Client{
		gl: gl,
		// 5 req/s sustained, burst of 5
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		timeout: timeout,
		retry:   retry.DefaultConfig(),
	}, nil
}

// call runs op under the rate limiter with a bounded timeout and a short
// retry for transient failures. Unauthorized is never retried.
func (c *Client) call(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error
	result := retry.WithBackoff(ctx, c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			lastErr = classify(name, 0, err)
			return lastErr
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		lastErr = op(callCtx)
		return lastErr
	}, IsRemoteUnavailable)

	if result.Success {
		return nil
	}
	return lastErr
}

func statusOf(resp *gitlab.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

// FetchCommits lists commits on the project's ref committed after since,
// newest first, capped at the project's max-commits setting.
func (c *Client) FetchCommits(ctx context.Context, project models.Project, ref string, since time.Time) ([]models.CachedCommit, error) {
	maxCommits := project.MaxCommits
	if maxCommits <= 0 {
		maxCommits = 100
	}

	opts := &gitlab.ListCommitsOptions{
		Since: gitlab.Ptr(since),
		ListOptions: gitlab.ListOptions{
			PerPage: commitPageSize,
			Page:    1,
		},
	}
	if ref != "" {
		opts.RefName = gitlab.Ptr(ref)
	}

	var out []models.CachedCommit
	for {
		var (
			page []*gitlab.Commit
			resp *gitlab.Response
		)
		err := c.call(ctx, "list commits", func(ctx context.Context) error {
			var err error
			page, resp, err = c.gl.Commits.ListCommits(project.ID, opts, gitlab.WithContext(ctx))
			return classify("list commits", statusOf(resp), err)
		})
		if err != nil {
			return nil, err
		}

		for _, gc := range page {
			out = append(out, convertCommit(gc))
			if len(out) >= maxCommits {
				log.Debug().Str("project_id", project.ID).Int("max_commits", maxCommits).
					Msg("Commit fetch reached the configured cap, not paginating further")
				return out, nil
			}
		}

		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// FetchComments lists all human comments on one commit, oldest first.
// System notes (pipeline chatter, references) are not review activity and
// are dropped.
func (c *Client) FetchComments(ctx context.Context, project models.Project, commitID string) ([]models.Comment, error) {
	opts := &gitlab.ListCommitDiscussionsOptions{
		ListOptions: gitlab.ListOptions{
			PerPage: commitPageSize,
			Page:    1,
		},
	}

	var out []models.Comment
	for {
		var (
			page []*gitlab.Discussion
			resp *gitlab.Response
		)
		err := c.call(ctx, "list commit comments", func(ctx context.Context) error {
			var err error
			page, resp, err = c.gl.Discussions.ListCommitDiscussions(project.ID, commitID, opts, gitlab.WithContext(ctx))
			return classify("list commit comments", statusOf(resp), err)
		})
		if err != nil {
			return nil, err
		}

		for _, d := range page {
			for _, note := range d.Notes {
				if note == nil || note.System {
					continue
				}
				comment := models.Comment{
					Text: note.Body,
				}
				// GitLab may report either the username or only the
				// display name depending on note origin.
				if note.Author.Username != "" {
					comment.Author = note.Author.Username
				} else {
					comment.Author = note.Author.Name
				}
				if note.CreatedAt != nil {
					comment.CreatedAt = *note.CreatedAt
				}
				out = append(out, comment)
			}
		}

		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// FetchBranches lists all branches with their head-commit summaries.
func (c *Client) FetchBranches(ctx context.Context, project models.Project) ([]models.Branch, error) {
	opts := &gitlab.ListBranchesOptions{
		ListOptions: gitlab.ListOptions{
			PerPage: commitPageSize,
			Page:    1,
		},
	}

	var out []models.Branch
	for {
		var (
			page []*gitlab.Branch
			resp *gitlab.Response
		)
		err := c.call(ctx, "list branches", func(ctx context.Context) error {
			var err error
			page, resp, err = c.gl.Branches.ListBranches(project.ID, opts, gitlab.WithContext(ctx))
			return classify("list branches", statusOf(resp), err)
		})
		if err != nil {
			return nil, err
		}

		for _, gb := range page {
			b := models.Branch{
				Name:      gb.Name,
				Default:   gb.Default,
				Protected: gb.Protected,
			}
			if gb.Commit != nil {
				b.HeadCommitID = gb.Commit.ID
				b.HeadCommitTitle = gb.Commit.Title
				if gb.Commit.CommittedDate != nil {
					b.HeadCommittedAt = *gb.Commit.CommittedDate
				}
			}
			out = append(out, b)
		}

		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// FetchMembers lists all project members, including inherited ones.
func (c *Client) FetchMembers(ctx context.Context, project models.Project) ([]models.Member, error) {
	opts := &gitlab.ListProjectMembersOptions{
		ListOptions: gitlab.ListOptions{
			PerPage: commitPageSize,
			Page:    1,
		},
	}

	var out []models.Member
	for {
		var (
			page []*gitlab.ProjectMember
			resp *gitlab.Response
		)
		err := c.call(ctx, "list members", func(ctx context.Context) error {
			var err error
			page, resp, err = c.gl.ProjectMembers.ListAllProjectMembers(project.ID, opts, gitlab.WithContext(ctx))
			return classify("list members", statusOf(resp), err)
		})
		if err != nil {
			return nil, err
		}

		for _, m := range page {
			out = append(out, models.Member{
				Username: m.Username,
				Name:     m.Name,
				State:    m.State,
			})
		}

		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func convertCommit(gc *gitlab.Commit) models.CachedCommit {
	c := models.CachedCommit{
		ID:          gc.ID,
		ShortID:     gc.ShortID,
		Message:     gc.Message,
		AuthorName:  gc.AuthorName,
		AuthorEmail: gc.AuthorEmail,
		WebURL:      gc.WebURL,
	}
	if gc.CommittedDate != nil {
		c.CommittedAt = *gc.CommittedDate
	}
	return c
}
