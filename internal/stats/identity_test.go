package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityResolver(t *testing.T) {
	r := NewIdentityResolver(
		[]string{"bob", "carol"},
		map[string]string{"bob": "Bob Smith"},
	)

	tests := []struct {
		author string
		want   string
		ok     bool
	}{
		{"bob", "bob", true},
		{"BOB", "bob", true},
		{"Bob Smith", "bob", true},
		{"bob smith", "bob", true},
		{"carol", "carol", true},
		{"Carol Jones", "", false}, // no mapping configured
		{"dave", "", false},
		{" bob ", "bob", true},
	}

	for _, tt := range tests {
		got, ok := r.Resolve(tt.author)
		assert.Equal(t, tt.ok, ok, "Resolve(%q) ok", tt.author)
		assert.Equal(t, tt.want, got, "Resolve(%q)", tt.author)
	}

	assert.True(t, r.Matches("Bob Smith", "bob"))
	assert.False(t, r.Matches("Bob Smith", "carol"))

	reviewers := r.Reviewers()
	assert.Len(t, reviewers, 2)
	assert.Equal(t, "bob", reviewers[0].Username)
	assert.Equal(t, "Bob Smith", reviewers[0].Nickname)
	assert.Empty(t, reviewers[1].Nickname)
}
