// Package poller orchestrates periodic and event-driven synchronization of
// all configured projects. Scheduled ticks, webhook events and manual
// refreshes all funnel into the same per-project merge/recompute paths, so
// cache invariants hold regardless of trigger source.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/reviewradar/internal/filter"
	"github.com/reviewradar/internal/gitclient"
	"github.com/reviewradar/internal/projects"
	"github.com/reviewradar/internal/stats"
	"github.com/reviewradar/internal/store"
	"github.com/reviewradar/pkg/models"
)

// Options configures the poller cadences.
type Options struct {
	CommitInterval time.Duration // full commit pull cadence (default 5m)
	NoteInterval   time.Duration // comment refresh cadence (default 10s)
	BranchEvery    int           // refresh branches every Nth commit tick
}

// Status is a point-in-time view of the poller for the read API.
type Status struct {
	Running        bool      `json:"running"`
	LastCommitPass time.Time `json:"last_commit_pass,omitempty"`
	LastNotePass   time.Time `json:"last_note_pass,omitempty"`
}

// Poller drives the two sync cadences and the incremental-update entry
// points. Construct once per process with injected dependencies.
type Poller struct {
	registry *projects.Registry
	store    *store.Store
	clients  *gitclient.Pool
	opts     Options

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	statusMu       sync.Mutex
	lastCommitPass time.Time
	lastNotePass   time.Time

	// Per-project locks serialize the cache read-modify-write cycle across
	// cadences, webhooks and manual triggers. A busy project's scheduled
	// tick is skipped, not queued.
	lockMu    sync.Mutex
	projLocks map[string]*sync.Mutex

	branchTicks int
}

// New creates a Poller.
func New(registry *projects.Registry, st *store.Store, clients *gitclient.Pool, opts Options) *Poller {
	if opts.CommitInterval <= 0 {
		opts.CommitInterval = 5 * time.Minute
	}
	if opts.NoteInterval <= 0 {
		opts.NoteInterval = 10 * time.Second
	}
	if opts.BranchEvery <= 0 {
		opts.BranchEvery = 6
	}
	return &Poller{
		registry:  registry,
		store:     st,
		clients:   clients,
		opts:      opts,
		projLocks: make(map[string]*sync.Mutex),
	}
}

// Start launches both cadences. Each runs immediately, then on its interval.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); p.loop(p.opts.CommitInterval, p.commitPass) }()
	go func() { defer wg.Done(); p.loop(p.opts.NoteInterval, p.notePass) }()
	go func() { wg.Wait(); close(p.doneCh) }()

	log.Info().
		Dur("commit_interval", p.opts.CommitInterval).
		Dur("note_interval", p.opts.NoteInterval).
		Msg("Poller started")
}

// Stop halts both cadences and waits for in-flight passes to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	close(p.stopCh)
	<-p.doneCh
	p.started = false
	log.Info().Msg("Poller stopped")
}

// Status reports whether the poller runs and when each cadence last passed.
func (p *Poller) Status() Status {
	p.mu.Lock()
	running := p.started
	p.mu.Unlock()

	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return Status{
		Running:        running,
		LastCommitPass: p.lastCommitPass,
		LastNotePass:   p.lastNotePass,
	}
}

func (p *Poller) loop(interval time.Duration, pass func(ctx context.Context)) {
	// Immediate run on startup, then the ticker cadence.
	initial := time.NewTimer(0)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-initial.C:
			pass(context.Background())
		case <-ticker.C:
			pass(context.Background())
		}
	}
}

// lockFor returns the mutex serializing one project's cache writes.
func (p *Poller) lockFor(projectID string) *sync.Mutex {
	p.lockMu.Lock()
	defer p.lockMu.Unlock()
	m, ok := p.projLocks[projectID]
	if !ok {
		m = &sync.Mutex{}
		p.projLocks[projectID] = m
	}
	return m
}

// commitPass pulls new commits for every active project sequentially. A
// single project's failure is isolated and logged; the pass continues.
func (p *Poller) commitPass(ctx context.Context) {
	runID := uuid.NewString()
	withBranches := p.branchTickDue()

	for _, project := range p.registry.Active() {
		mu := p.lockFor(project.ID)
		if !mu.TryLock() {
			log.Debug().Str("project_id", project.ID).Str("run_id", runID).
				Msg("Previous sync still running, skipping commit tick")
			continue
		}
		if withBranches {
			if err := p.syncBranchesLocked(ctx, project); err != nil {
				log.Warn().Str("project_id", project.ID).Str("run_id", runID).Err(err).
					Msg("Branch sync failed")
			}
		}
		if err := p.syncCommitsLocked(ctx, project); err != nil {
			log.Warn().Str("project_id", project.ID).Str("run_id", runID).Err(err).
				Msg("Commit sync failed")
		}
		mu.Unlock()
	}

	p.statusMu.Lock()
	p.lastCommitPass = time.Now()
	p.statusMu.Unlock()
}

// branchTickDue counts commit ticks and fires every Nth one. Only the
// commit-pass goroutine touches the counter.
func (p *Poller) branchTickDue() bool {
	p.branchTicks++
	return (p.branchTicks-1)%p.opts.BranchEvery == 0
}

// notePass refreshes comments on the needs-review subset of every active
// project. The subset is bounded and cheap, which is why this cadence can
// run an order of magnitude faster than the commit pull.
func (p *Poller) notePass(ctx context.Context) {
	for _, project := range p.registry.Active() {
		mu := p.lockFor(project.ID)
		if !mu.TryLock() {
			continue
		}
		if err := p.syncCommentsLocked(ctx, project); err != nil {
			log.Warn().Str("project_id", project.ID).Err(err).Msg("Comment sync failed")
		}
		mu.Unlock()
	}

	p.statusMu.Lock()
	p.lastNotePass = time.Now()
	p.statusMu.Unlock()
}

// syncCommitsLocked pulls commits since the project's watermark, derives the
// review flags for new commits, merges and writes. The watermark advances to
// the pass start time only after a successful merge+write, so a failed write
// replays the same window on the next tick (merge is idempotent).
func (p *Poller) syncCommitsLocked(ctx context.Context, project models.Project) error {
	client, err := p.clients.For(project)
	if err != nil {
		return err
	}

	cache, err := p.store.ReadCommitCache(project.ID, reviewWindow(project))
	if err != nil {
		return err
	}

	ref, err := p.resolveRef(project)
	if err != nil {
		// Branch data is advisory; fall back to the configured ref.
		ref = project.Branch
	}

	pullStart := time.Now()
	commits, err := client.FetchCommits(ctx, project, ref, cache.LastCommitPullTime)
	if err != nil {
		return err
	}

	resolver := stats.NewIdentityResolver(project.Reviewers, project.UserMappings)
	for i := range commits {
		commits[i].SkipReview = filter.ShouldSkipReview(commits[i].Message, project.FilterRules)
		commits[i].NeedsReview = !commits[i].SkipReview
		stats.RecomputeNeedsReview(&commits[i], resolver)
	}

	added := store.MergeCommits(cache, commits)
	cache.LastCommitPullTime = pullStart
	if err := p.store.WriteCommitCache(cache); err != nil {
		// A failed write is operationally loud: durable state is at risk.
		log.Error().Str("project_id", project.ID).Err(err).Msg("Commit cache write failed, aborting pass for project")
		return err
	}

	if added > 0 {
		log.Info().Str("project_id", project.ID).Int("new_commits", added).Msg("Merged new commits")
	}
	return nil
}

// syncCommentsLocked re-fetches comments for every commit still flagged
// needs-review and recomputes the flag. A single commit's fetch failure is
// logged and skipped.
func (p *Poller) syncCommentsLocked(ctx context.Context, project models.Project) error {
	cache, err := p.store.ReadCommitCache(project.ID, reviewWindow(project))
	if err != nil {
		return err
	}

	pending := 0
	for i := range cache.Commits {
		if cache.Commits[i].NeedsReview {
			pending++
		}
	}
	if pending == 0 {
		return nil
	}

	client, err := p.clients.For(project)
	if err != nil {
		return err
	}

	resolver := stats.NewIdentityResolver(project.Reviewers, project.UserMappings)
	changed := false
	for i := range cache.Commits {
		commit := &cache.Commits[i]
		if !commit.NeedsReview {
			continue
		}

		comments, err := client.FetchComments(ctx, project, commit.ID)
		if err != nil {
			if gitclient.IsUnauthorized(err) {
				// Credential is dead for the whole project, not one commit.
				return err
			}
			log.Warn().Str("project_id", project.ID).Str("commit", commit.ShortID).Err(err).
				Msg("Comment fetch failed, continuing with remaining commits")
			continue
		}

		if applyComments(commit, comments, resolver) {
			changed = true
		}
	}

	cache.LastCommentPullTime = time.Now()
	if err := p.store.WriteCommitCache(cache); err != nil {
		log.Error().Str("project_id", project.ID).Err(err).Msg("Commit cache write failed after comment sync")
		return err
	}
	if changed {
		log.Debug().Str("project_id", project.ID).Msg("Comment sync updated review state")
	}
	return nil
}

// applyComments replaces a commit's comment state and re-derives its flags.
// Returns whether anything changed.
func applyComments(commit *models.CachedCommit, comments []models.Comment, resolver *stats.IdentityResolver) bool {
	before := commit.NeedsReview
	beforeCount := commit.CommentCount

	commit.Comments = comments
	commit.CommentCount = len(comments)
	commit.HasComments = len(comments) > 0
	stats.RecomputeNeedsReview(commit, resolver)

	return commit.NeedsReview != before || commit.CommentCount != beforeCount
}

// syncBranchesLocked refreshes the branch cache and the resolved default
// branch.
func (p *Poller) syncBranchesLocked(ctx context.Context, project models.Project) error {
	client, err := p.clients.For(project)
	if err != nil {
		return err
	}

	branches, err := client.FetchBranches(ctx, project)
	if err != nil {
		return err
	}

	cache, err := p.store.ReadBranchCache(project.ID)
	if err != nil {
		return err
	}

	cache.Branches = branches
	cache.LastBranchPullTime = time.Now()
	cache.DefaultBranch = ""
	for _, b := range branches {
		if b.Default {
			cache.DefaultBranch = b.Name
			break
		}
	}

	return p.store.WriteBranchCache(cache)
}

// resolveRef picks the ref for commit pulls: explicit project config wins,
// then the cached default branch, else empty for the instance default.
func (p *Poller) resolveRef(project models.Project) (string, error) {
	if project.Branch != "" {
		return project.Branch, nil
	}
	cache, err := p.store.ReadBranchCache(project.ID)
	if err != nil {
		return "", err
	}
	return cache.DefaultBranch, nil
}

// ApplyCommits merges webhook-delivered commit stubs directly, bypassing the
// commit-pull interval. The commit watermark is left alone; the next
// scheduled pull re-covers the window and the merge stays idempotent.
func (p *Poller) ApplyCommits(projectID string, commits []models.CachedCommit) error {
	project, ok := p.registry.Get(projectID)
	if !ok {
		return errUnknownProject(projectID)
	}

	mu := p.lockFor(project.ID)
	mu.Lock()
	defer mu.Unlock()

	cache, err := p.store.ReadCommitCache(project.ID, reviewWindow(project))
	if err != nil {
		return err
	}

	resolver := stats.NewIdentityResolver(project.Reviewers, project.UserMappings)
	for i := range commits {
		commits[i].SkipReview = filter.ShouldSkipReview(commits[i].Message, project.FilterRules)
		commits[i].NeedsReview = !commits[i].SkipReview
		stats.RecomputeNeedsReview(&commits[i], resolver)
	}

	added := store.MergeCommits(cache, commits)
	if added == 0 {
		return nil
	}
	if err := p.store.WriteCommitCache(cache); err != nil {
		log.Error().Str("project_id", project.ID).Err(err).Msg("Commit cache write failed after webhook merge")
		return err
	}

	log.Info().Str("project_id", project.ID).Int("new_commits", added).Msg("Merged webhook commits")
	return nil
}

// RefreshCommitComments re-fetches comments for a single commit, as driven
// by a Note webhook event.
func (p *Poller) RefreshCommitComments(ctx context.Context, projectID, commitID string) error {
	project, ok := p.registry.Get(projectID)
	if !ok {
		return errUnknownProject(projectID)
	}

	mu := p.lockFor(project.ID)
	mu.Lock()
	defer mu.Unlock()

	cache, err := p.store.ReadCommitCache(project.ID, reviewWindow(project))
	if err != nil {
		return err
	}

	var target *models.CachedCommit
	for i := range cache.Commits {
		if cache.Commits[i].ID == commitID {
			target = &cache.Commits[i]
			break
		}
	}
	if target == nil {
		log.Debug().Str("project_id", projectID).Str("commit", commitID).
			Msg("Note event for uncached commit, ignoring")
		return nil
	}

	client, err := p.clients.For(project)
	if err != nil {
		return err
	}
	comments, err := client.FetchComments(ctx, project, commitID)
	if err != nil {
		return err
	}

	resolver := stats.NewIdentityResolver(project.Reviewers, project.UserMappings)
	if !applyComments(target, comments, resolver) {
		return nil
	}
	return p.store.WriteCommitCache(cache)
}

// RefreshProject performs an explicit full resync of one project: branches,
// commits and the comments of everything still needing review. Not
// schedule-gated; intended for recovery after downtime or misconfiguration.
func (p *Poller) RefreshProject(ctx context.Context, projectID string) error {
	project, ok := p.registry.Get(projectID)
	if !ok {
		return errUnknownProject(projectID)
	}

	mu := p.lockFor(project.ID)
	mu.Lock()
	defer mu.Unlock()

	if err := p.syncBranchesLocked(ctx, project); err != nil {
		log.Warn().Str("project_id", project.ID).Err(err).Msg("Branch sync failed during manual refresh")
	}
	if err := p.syncCommitsLocked(ctx, project); err != nil {
		return err
	}
	return p.syncCommentsLocked(ctx, project)
}

// RefreshAll resyncs every active project; per-project failures are logged
// and do not stop the sweep.
func (p *Poller) RefreshAll(ctx context.Context) {
	for _, project := range p.registry.Active() {
		if err := p.RefreshProject(ctx, project.ID); err != nil {
			log.Warn().Str("project_id", project.ID).Err(err).Msg("Manual refresh failed")
		}
	}
}

func reviewWindow(project models.Project) time.Duration {
	days := project.ReviewDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

type unknownProjectError string

func (e unknownProjectError) Error() string { return "unknown project " + string(e) }

func errUnknownProject(id string) error { return unknownProjectError(id) }
