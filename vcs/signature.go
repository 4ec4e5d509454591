package vcs

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/revuhq/revu/review"
)

// VerifySignature checks a webhook payload signature using the
// provider's scheme. An empty secret bypasses verification: the operator
// has explicitly opted out for that provider.
//
// Schemes: GitHub sends "sha256=<hex HMAC-SHA256>", GitLab a bare hex
// HMAC-SHA256 digest, Bitbucket a shared secret compared verbatim.
func VerifySignature(provider review.Provider, secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}

	switch provider {
	case review.ProviderGitHub:
		expected := hmacHex(secret, body)
		given := strings.TrimPrefix(signature, "sha256=")
		if given == signature {
			return fmt.Errorf("github signature missing sha256= prefix")
		}
		if !hmac.Equal([]byte(expected), []byte(given)) {
			return fmt.Errorf("github signature mismatch")
		}
		return nil

	case review.ProviderGitLab:
		expected := hmacHex(secret, body)
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return fmt.Errorf("gitlab signature mismatch")
		}
		return nil

	case review.ProviderBitbucket:
		if subtle.ConstantTimeCompare([]byte(secret), []byte(signature)) != 1 {
			return fmt.Errorf("bitbucket secret mismatch")
		}
		return nil

	default:
		return fmt.Errorf("unknown provider: %s", provider)
	}
}

func hmacHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader returns the HTTP header carrying each provider's
// webhook signature.
func SignatureHeader(provider review.Provider) string {
	switch provider {
	case review.ProviderGitHub:
		return "X-Hub-Signature-256"
	case review.ProviderGitLab:
		return "X-Gitlab-Token"
	case review.ProviderBitbucket:
		return "X-Hook-Signature"
	default:
		return ""
	}
}
