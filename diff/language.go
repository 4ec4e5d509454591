package diff

import (
	"path"
	"strings"

	"github.com/src-d/enry/v2"
)

// languageAliases maps enry's display names to the lowercase tags used by
// the analyzers and the optimizer's token multiplier table.
var languageAliases = map[string]string{
	"c++": "cpp",
	"c#":  "csharp",
}

// DetectLanguage infers the language tag for a diff file. Detection is by
// filename first, falling back to content classification; unrecognized
// files report "unknown" so analyzers can skip them.
func DetectLanguage(filePath, content string) string {
	lang := enry.GetLanguage(path.Base(filePath), nil)
	if lang == "" && content != "" {
		lang = enry.GetLanguage(path.Base(filePath), []byte(content))
	}
	if lang == "" {
		return "unknown"
	}

	tag := strings.ToLower(lang)
	if alias, ok := languageAliases[tag]; ok {
		return alias
	}
	return tag
}
