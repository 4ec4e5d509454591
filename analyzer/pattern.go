package analyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/revuhq/revu/review"
)

// antiPattern is a language-specific discouraged construct.
type antiPattern struct {
	re         *regexp.Regexp
	message    string
	confidence float64
}

var antiPatterns = map[string][]antiPattern{
	"python": {
		{regexp.MustCompile(`^\s*print\s*\(`), "Debug print left in code; use the logging module", 0.6},
		{regexp.MustCompile(`from\s+\w[\w.]*\s+import\s+\*`), "Wildcard import obscures the namespace; import names explicitly", 0.8},
		{regexp.MustCompile(`^\s*global\s+\w`), "Global mutation makes the function hard to test; pass state explicitly", 0.6},
		{regexp.MustCompile(`type\s*\(\s*\w+\s*\)\s*==`), "type() comparison breaks with subclasses; use isinstance", 0.7},
	},
	"javascript": {
		{regexp.MustCompile(`console\.(log|debug)\s*\(`), "Console output left in code; remove or route through a logger", 0.6},
		{regexp.MustCompile(`^\s*debugger\b`), "debugger statement left in code", 0.9},
		{regexp.MustCompile(`\balert\s*\(`), "alert blocks the UI thread; use a non-blocking notification", 0.7},
	},
	"go": {
		{regexp.MustCompile(`fmt\.Print(ln|f)?\s*\(`), "Direct stdout print; route diagnostics through the logger", 0.5},
		{regexp.MustCompile(`\bpanic\s*\(`), "panic in library code; return an error instead", 0.6},
	},
	"java": {
		{regexp.MustCompile(`System\.out\.print`), "Direct stdout print; use the logging framework", 0.6},
		{regexp.MustCompile(`\.printStackTrace\s*\(\s*\)`), "printStackTrace loses the error; log it with context", 0.7},
	},
}

func init() {
	antiPatterns["typescript"] = antiPatterns["javascript"]
}

// PatternAnalyzer flags discouraged constructs from a built-in table and
// from user rules declared in AGENTS.md.
type PatternAnalyzer struct{}

// NewPatternAnalyzer creates the pattern analyzer.
func NewPatternAnalyzer() *PatternAnalyzer {
	return &PatternAnalyzer{}
}

func (a *PatternAnalyzer) Name() string { return "pattern" }

func (a *PatternAnalyzer) Priority() int { return 3 }

func (a *PatternAnalyzer) ShouldAnalyze(chunk review.ChunkInfo) bool {
	return chunk.Language != "unknown"
}

func (a *PatternAnalyzer) Analyze(_ context.Context, chunk review.ChunkInfo, actx Context) ([]review.Suggestion, error) {
	var suggestions []review.Suggestion

	add := func(line codeLine, message string, severity review.Severity, confidence float64) {
		s := review.Suggestion{
			FilePath:   chunk.FilePath,
			LineNumber: line.Number,
			Message:    message,
			Severity:   severity,
			Analyzer:   a.Name(),
			Confidence: confidence,
			Category:   review.CategoryPattern,
		}
		suggestions = append(suggestions, s.Normalize())
	}

	rules := ParseUserRules(actx.AgentsMD)

	for _, line := range addedLines(chunk) {
		for _, p := range antiPatterns[chunk.Language] {
			if p.re.MatchString(line.Text) {
				add(line, p.message, review.SeveritySuggestion, p.confidence)
			}
		}
		for _, rule := range rules {
			if rule.Pattern.MatchString(line.Text) {
				add(line, rule.Message, rule.Severity, 0.8)
			}
		}
	}

	return suggestions, nil
}

// UserRule is a custom pattern rule declared in AGENTS.md.
type UserRule struct {
	Name     string
	Pattern  *regexp.Regexp
	Message  string
	Severity review.Severity
}

var (
	ruleHeaderRe   = regexp.MustCompile(`^##\s+Rule:\s*(.+)$`)
	rulePatternRe  = regexp.MustCompile("^Pattern:\\s*`(.+)`\\s*$")
	ruleMessageRe  = regexp.MustCompile(`^Message:\s*(.+)$`)
	ruleSeverityRe = regexp.MustCompile(`^Severity:\s*(\S+)`)
)

// ParseUserRules extracts pattern rules from AGENTS.md. The grammar is a
// "## Rule: <name>" heading followed by "Pattern: `<regex>`",
// "Message: <m>", and "Severity: <s>" lines in any interleaving. Rules
// with an invalid regex or no pattern are skipped silently.
func ParseUserRules(agentsMD string) []UserRule {
	if agentsMD == "" {
		return nil
	}

	var rules []UserRule
	var current *UserRule
	var rawPattern string

	flush := func() {
		if current == nil {
			return
		}
		if rawPattern != "" && current.Message != "" {
			if re, err := regexp.Compile(rawPattern); err == nil {
				current.Pattern = re
				if !current.Severity.IsValid() {
					current.Severity = review.SeveritySuggestion
				}
				rules = append(rules, *current)
			}
		}
		current = nil
		rawPattern = ""
	}

	for _, line := range strings.Split(agentsMD, "\n") {
		line = strings.TrimRight(line, " \t")
		if m := ruleHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &UserRule{Name: strings.TrimSpace(m[1])}
			continue
		}
		if current == nil {
			continue
		}
		switch {
		case rulePatternRe.MatchString(line):
			rawPattern = rulePatternRe.FindStringSubmatch(line)[1]
		case ruleMessageRe.MatchString(line):
			current.Message = strings.TrimSpace(ruleMessageRe.FindStringSubmatch(line)[1])
		case ruleSeverityRe.MatchString(line):
			current.Severity = review.ParseSeverity(ruleSeverityRe.FindStringSubmatch(line)[1])
		}
	}
	flush()

	return rules
}
