package webhookutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHeaderCaseInsensitive(t *testing.T) {
	headers := map[string]string{
		"X-Gitlab-Event": "Push Hook",
	}

	v, ok := GetHeaderCaseInsensitive(headers, "x-gitlab-event")
	assert.True(t, ok)
	assert.Equal(t, "Push Hook", v)

	_, ok = GetHeaderCaseInsensitive(headers, "x-gitlab-token")
	assert.False(t, ok)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object_kind":"push"}`)
	secret := "s3cret"

	good := Sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		signature string
		want      bool
	}{
		{"no secret accepts anything", "", "", true},
		{"no secret accepts junk signature", "", "deadbeef", true},
		{"valid signature", secret, good, true},
		{"valid with sha256 prefix", secret, "sha256=" + good, true},
		{"wrong signature", secret, "0000000000000000", false},
		{"missing signature with secret", secret, "", false},
		{"signature for other body", secret, Sign(secret, []byte("other")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifySignature(tt.secret, body, tt.signature))
		})
	}
}
