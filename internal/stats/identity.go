package stats

import "strings"

// ReviewerIdentity is one reviewer's resolved identity: the canonical
// username plus the optional configured nickname GitLab may report instead.
type ReviewerIdentity struct {
	Username string
	Nickname string
}

// IdentityResolver canonicalizes author strings to reviewer usernames. It is
// built once per project config load; every identity comparison in the
// engine goes through it, so "assigned to" and "authored by" can never use
// divergent matching rules.
type IdentityResolver struct {
	reviewers []ReviewerIdentity
	canonical map[string]string // lowercased username or nickname -> username
}

// NewIdentityResolver builds a resolver from the project's reviewer list and
// username->nickname mappings.
func NewIdentityResolver(reviewers []string, userMappings map[string]string) *IdentityResolver {
	r := &IdentityResolver{
		canonical: make(map[string]string, len(reviewers)*2),
	}
	for _, username := range reviewers {
		id := ReviewerIdentity{Username: username}
		r.canonical[strings.ToLower(username)] = username
		if nick, ok := userMappings[username]; ok && nick != "" {
			id.Nickname = nick
			r.canonical[strings.ToLower(nick)] = username
		}
		r.reviewers = append(r.reviewers, id)
	}
	return r
}

// Reviewers returns the resolved reviewer identities in config order.
func (r *IdentityResolver) Reviewers() []ReviewerIdentity {
	return r.reviewers
}

// Resolve maps an author string (username or nickname, as GitLab reported
// it) to the canonical reviewer username. ok is false for non-reviewers.
func (r *IdentityResolver) Resolve(author string) (string, bool) {
	username, ok := r.canonical[strings.ToLower(strings.TrimSpace(author))]
	return username, ok
}

// Matches reports whether the author string resolves to the given reviewer
// username.
func (r *IdentityResolver) Matches(author, username string) bool {
	resolved, ok := r.Resolve(author)
	return ok && resolved == username
}
