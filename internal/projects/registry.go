// Package projects exposes the configured project set to the sync engine.
// The registry is the read-only boundary to the project-management side:
// the engine never mutates a Project.
package projects

import (
	"strings"
	"sync"

	"github.com/reviewradar/pkg/models"
)

// Registry holds the configured projects.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]models.Project
	all  []models.Project
}

// NewRegistry creates a registry over the given project set.
func NewRegistry(projects []models.Project) *Registry {
	r := &Registry{}
	r.Replace(projects)
	return r
}

// Replace swaps in a new project set, e.g. after a config reload.
func (r *Registry) Replace(projects []models.Project) {
	byID := make(map[string]models.Project, len(projects))
	all := make([]models.Project, len(projects))
	copy(all, projects)
	for _, p := range projects {
		byID[p.ID] = p
	}

	r.mu.Lock()
	r.byID = byID
	r.all = all
	r.mu.Unlock()
}

// Get returns the project with the given id.
func (r *Registry) Get(projectID string) (models.Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[projectID]
	return p, ok
}

// Active returns the projects with the active flag set.
func (r *Registry) Active() []models.Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Project
	for _, p := range r.all {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// MatchWebhook resolves a webhook sender to a configured project by
// repository path and instance URL prefix. Both must agree: the same
// group/repo path can exist on two GitLab instances.
func (r *Registry) MatchWebhook(repoPath, repoURL string) (models.Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	repoPath = strings.Trim(repoPath, "/")
	for _, p := range r.all {
		if !p.Active {
			continue
		}
		if repoURL != "" && p.GitLabURL != "" && !strings.HasPrefix(repoURL, p.GitLabURL) {
			continue
		}
		if repoPath != "" && strings.EqualFold(strings.Trim(pathOf(p), "/"), repoPath) {
			return p, true
		}
	}
	return models.Project{}, false
}

// pathOf derives the repo path a webhook would report for the project.
// Projects configured by numeric id fall back to name matching.
func pathOf(p models.Project) string {
	if strings.Contains(p.ID, "/") {
		return p.ID
	}
	return p.Name
}
