package vcs

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/revuhq/revu/review"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature_GitHub(t *testing.T) {
	body := []byte(`{"action": "opened"}`)
	secret := "webhook-secret"

	valid := "sha256=" + sign(secret, body)
	assert.NoError(t, VerifySignature(review.ProviderGitHub, secret, body, valid))

	assert.Error(t, VerifySignature(review.ProviderGitHub, secret, body, "sha256=deadbeef"))
	assert.Error(t, VerifySignature(review.ProviderGitHub, secret, body, sign(secret, body)),
		"missing sha256= prefix is rejected")
	assert.Error(t, VerifySignature(review.ProviderGitHub, secret, []byte("tampered"), valid))
}

func TestVerifySignature_GitLab(t *testing.T) {
	body := []byte(`{"object_kind": "merge_request"}`)
	secret := "gl-secret"

	assert.NoError(t, VerifySignature(review.ProviderGitLab, secret, body, sign(secret, body)))
	assert.Error(t, VerifySignature(review.ProviderGitLab, secret, body, "bad"))
}

func TestVerifySignature_Bitbucket(t *testing.T) {
	body := []byte(`{}`)

	assert.NoError(t, VerifySignature(review.ProviderBitbucket, "shared", body, "shared"))
	assert.Error(t, VerifySignature(review.ProviderBitbucket, "shared", body, "wrong"))
}

func TestVerifySignature_EmptySecretBypasses(t *testing.T) {
	for _, p := range []review.Provider{review.ProviderGitHub, review.ProviderGitLab, review.ProviderBitbucket} {
		assert.NoError(t, VerifySignature(p, "", []byte("anything"), "whatever"),
			"empty secret is an explicit opt-out for %s", p)
	}
}

func TestVerifySignature_UnknownProvider(t *testing.T) {
	assert.Error(t, VerifySignature(review.Provider("svn"), "secret", []byte("x"), "y"))
}

func TestSignatureHeader(t *testing.T) {
	assert.Equal(t, "X-Hub-Signature-256", SignatureHeader(review.ProviderGitHub))
	assert.Equal(t, "X-Gitlab-Token", SignatureHeader(review.ProviderGitLab))
	assert.Equal(t, "X-Hook-Signature", SignatureHeader(review.ProviderBitbucket))
	assert.Equal(t, "", SignatureHeader(review.Provider("svn")))
}
