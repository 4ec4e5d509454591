package optimizer

// tokensPerLine is the base token cost per changed line before language
// adjustment.
const tokensPerLine = 20

// promptOverheadTokens is the fixed per-file prompt overhead.
const promptOverheadTokens = 500

// languageMultipliers adjusts the per-line token estimate by language
// verbosity.
var languageMultipliers = map[string]float64{
	"python":     1.0,
	"javascript": 0.8,
	"typescript": 0.8,
	"java":       1.2,
	"go":         0.9,
	"rust":       1.0,
	"c":          1.0,
	"cpp":        1.1,
	"csharp":     1.1,
	"ruby":       0.9,
	"php":        1.0,
	"swift":      1.0,
	"kotlin":     1.0,
	"scala":      1.2,
}

// EstimateTokens approximates the prompt cost of reviewing a file from its
// changed line counts. The floor is the fixed per-file overhead.
func EstimateTokens(additions, deletions int, language string) int {
	multiplier, ok := languageMultipliers[language]
	if !ok {
		multiplier = 1.0
	}
	lines := additions + deletions
	return int(float64(lines)*tokensPerLine*multiplier) + promptOverheadTokens
}
