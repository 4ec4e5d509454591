package analyzer

import (
	"context"
	"regexp"

	"github.com/revuhq/revu/review"
)

// securityPattern pairs a compiled regex with its finding message.
type securityPattern struct {
	re      *regexp.Regexp
	message string
}

// securityPatterns maps a language tag to its vulnerability patterns.
// The "*" entry applies to every language.
var securityPatterns = map[string][]securityPattern{
	"python": {
		{regexp.MustCompile(`\b(eval|exec)\s*\(`), "Use of eval/exec on dynamic input allows arbitrary code execution"},
		{regexp.MustCompile(`execute\s*\(\s*(f["']|["'][^"']*["']\s*[%+])`), "SQL built by string interpolation is injectable; use parameterized queries"},
		{regexp.MustCompile(`pickle\.loads?\s*\(`), "Unpickling untrusted data allows arbitrary code execution"},
		{regexp.MustCompile(`yaml\.load\s*\([^)]*\)`), "yaml.load without SafeLoader can construct arbitrary objects; use yaml.safe_load"},
		{regexp.MustCompile(`os\.system\s*\(`), "os.system invites shell injection; use subprocess with an argument list"},
		{regexp.MustCompile(`subprocess\.\w+\([^)]*shell\s*=\s*True`), "shell=True passes input through the shell; prefer an argument list"},
		{regexp.MustCompile(`hashlib\.(md5|sha1)\s*\(`), "MD5/SHA-1 are broken for security purposes; use SHA-256 or better"},
		{regexp.MustCompile(`verify\s*=\s*False`), "Disabling TLS verification exposes the connection to interception"},
	},
	"javascript": {
		{regexp.MustCompile(`\beval\s*\(`), "Use of eval on dynamic input allows arbitrary code execution"},
		{regexp.MustCompile(`\.innerHTML\s*=`), "Assigning to innerHTML with untrusted data enables XSS; use textContent"},
		{regexp.MustCompile(`document\.write\s*\(`), "document.write with dynamic content enables XSS"},
		{regexp.MustCompile("(query|execute)\\s*\\(\\s*[\"'`][^\"'`]*[\"'`]\\s*\\+"), "SQL built by string concatenation is injectable; use parameterized queries"},
		{regexp.MustCompile(`child_process\.\w*exec\w*\s*\(`), "Shelling out with exec invites command injection; use execFile"},
	},
	"go": {
		{regexp.MustCompile(`InsecureSkipVerify:\s*true`), "Disabling TLS verification exposes the connection to interception"},
		{regexp.MustCompile(`\b(md5|sha1)\.New\s*\(`), "MD5/SHA-1 are broken for security purposes; use SHA-256 or better"},
		{regexp.MustCompile(`\.(Query|Exec)\s*\([^,)]*\+`), "SQL built by string concatenation is injectable; use placeholder arguments"},
	},
	"java": {
		{regexp.MustCompile(`Runtime\.getRuntime\(\)\.exec`), "Runtime.exec with dynamic input invites command injection"},
		{regexp.MustCompile(`MessageDigest\.getInstance\(\s*"(MD5|SHA-1)"`), "MD5/SHA-1 are broken for security purposes; use SHA-256 or better"},
		{regexp.MustCompile(`(createStatement|executeQuery)\s*\([^)]*\+`), "SQL built by string concatenation is injectable; use PreparedStatement"},
		{regexp.MustCompile(`new\s+ObjectInputStream\s*\(`), "Deserializing untrusted data allows arbitrary code execution"},
	},
	"*": {
		{regexp.MustCompile(`(?i)\b(password|passwd|secret|api_key|apikey|auth_token)\s*[:=]\s*["'][^"']{4,}["']`), "Hardcoded credential; move it to configuration or a secret store"},
		{regexp.MustCompile(`-----BEGIN (RSA |EC )?PRIVATE KEY-----`), "Private key material committed to the repository"},
	},
}

func init() {
	// TypeScript shares the JavaScript sink patterns.
	securityPatterns["typescript"] = securityPatterns["javascript"]
}

// SecurityAnalyzer flags known-dangerous constructs: injection sinks,
// hardcoded credentials, weak crypto, disabled TLS verification.
type SecurityAnalyzer struct {
	aug *Augmenter
}

// NewSecurityAnalyzer creates the security analyzer. A nil augmenter
// disables the LLM pass.
func NewSecurityAnalyzer(aug *Augmenter) *SecurityAnalyzer {
	return &SecurityAnalyzer{aug: aug}
}

func (a *SecurityAnalyzer) Name() string { return "security" }

func (a *SecurityAnalyzer) Priority() int { return 1 }

func (a *SecurityAnalyzer) ShouldAnalyze(chunk review.ChunkInfo) bool {
	return chunk.Language != "unknown"
}

// Analyze matches the pattern table against added lines, then optionally
// augments with an LLM pass. LLM failures never fail the analyzer.
func (a *SecurityAnalyzer) Analyze(ctx context.Context, chunk review.ChunkInfo, actx Context) ([]review.Suggestion, error) {
	patterns := append([]securityPattern{}, securityPatterns[chunk.Language]...)
	patterns = append(patterns, securityPatterns["*"]...)

	var suggestions []review.Suggestion
	for _, line := range addedLines(chunk) {
		for _, p := range patterns {
			if !p.re.MatchString(line.Text) {
				continue
			}
			s := review.Suggestion{
				FilePath:   chunk.FilePath,
				LineNumber: line.Number,
				Message:    p.message,
				Severity:   review.SeverityWarning,
				Analyzer:   a.Name(),
				Confidence: 0.9,
				Category:   review.CategorySecurity,
			}
			suggestions = append(suggestions, s.Normalize())
		}
	}

	if a.aug != nil {
		suggestions = append(suggestions, a.aug.Augment(ctx, a.Name(), chunk, actx)...)
	}

	return suggestions, nil
}
