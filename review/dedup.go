package review

import (
	"fmt"
	"sort"
	"strings"
)

// Deduplicator collapses near-duplicate suggestions within a file.
// Two suggestions are duplicates when their categories match, their line
// numbers fall into the same tolerance bucket, and their normalized
// messages are sufficiently similar.
type Deduplicator struct {
	// LineTolerance is the bucket width for line grouping.
	LineTolerance int

	// MessageSimilarityThreshold is the minimum Jaccard similarity of the
	// truncated message word sets for two signatures to collide.
	MessageSimilarityThreshold float64
}

// NewDeduplicator returns a Deduplicator with the default tolerances.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		LineTolerance:              3,
		MessageSimilarityThreshold: 0.8,
	}
}

// signature identifies a suggestion for duplicate matching.
type signature struct {
	category Category
	bucket   int
	message  string
}

func (d *Deduplicator) signatureFor(s Suggestion) signature {
	msg := normalizeMessage(s.Message)
	if len(msg) > 100 {
		msg = msg[:100]
	}
	return signature{
		category: s.Category,
		bucket:   s.LineNumber / d.LineTolerance,
		message:  msg,
	}
}

// String renders the signature in its canonical form.
func (sig signature) String() string {
	return fmt.Sprintf("%s:%d:%s", sig.category, sig.bucket, sig.message)
}

// Deduplicate removes near-duplicates per file, keeping the first of each
// colliding run. Suggestions within a file are processed in line order.
func (d *Deduplicator) Deduplicate(suggestions []Suggestion) []Suggestion {
	if len(suggestions) == 0 {
		return suggestions
	}

	tolerance := d.LineTolerance
	if tolerance <= 0 {
		tolerance = 3
	}
	dd := &Deduplicator{LineTolerance: tolerance, MessageSimilarityThreshold: d.MessageSimilarityThreshold}

	byFile := make(map[string][]Suggestion)
	var fileOrder []string
	for _, s := range suggestions {
		if _, seen := byFile[s.FilePath]; !seen {
			fileOrder = append(fileOrder, s.FilePath)
		}
		byFile[s.FilePath] = append(byFile[s.FilePath], s)
	}

	var result []Suggestion
	for _, file := range fileOrder {
		group := byFile[file]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].LineNumber < group[j].LineNumber
		})

		var kept []signature
		for _, s := range group {
			sig := dd.signatureFor(s)
			if dd.collides(sig, kept) {
				continue
			}
			kept = append(kept, sig)
			result = append(result, s)
		}
	}
	return result
}

func (d *Deduplicator) collides(sig signature, kept []signature) bool {
	for _, k := range kept {
		if k.category != sig.category || k.bucket != sig.bucket {
			continue
		}
		if jaccard(wordSet(sig.message), wordSet(k.message)) >= d.MessageSimilarityThreshold {
			return true
		}
	}
	return false
}

// categoryPriority orders categories for priority dedup; lower wins.
var categoryPriority = map[Category]int{
	CategorySecurity: 0,
	CategoryLogic:    1,
	CategoryPattern:  2,
	CategoryStyle:    3,
}

func categoryRank(c Category) int {
	if p, ok := categoryPriority[c]; ok {
		return p
	}
	return 5
}

// DeduplicateByPriority groups suggestions by exact (file, line) and keeps
// the highest-priority suggestion of each group: most severe first, then
// category rank, then highest confidence.
func DeduplicateByPriority(suggestions []Suggestion) []Suggestion {
	type key struct {
		file string
		line int
	}

	best := make(map[key]Suggestion)
	var order []key
	for _, s := range suggestions {
		k := key{s.FilePath, s.LineNumber}
		current, seen := best[k]
		if !seen {
			order = append(order, k)
			best[k] = s
			continue
		}
		if priorityLess(s, current) {
			best[k] = s
		}
	}

	result := make([]Suggestion, 0, len(order))
	for _, k := range order {
		result = append(result, best[k])
	}
	return result
}

// priorityLess reports whether a should replace b within a (file, line)
// group: minimum (severity priority, category priority, -confidence) wins.
func priorityLess(a, b Suggestion) bool {
	if pa, pb := a.Severity.Priority(), b.Severity.Priority(); pa != pb {
		return pa < pb
	}
	if ca, cb := categoryRank(a.Category), categoryRank(b.Category); ca != cb {
		return ca < cb
	}
	return a.Confidence > b.Confidence
}

// normalizeMessage lower-cases a message and collapses runs of whitespace.
func normalizeMessage(msg string) string {
	return strings.Join(strings.Fields(strings.ToLower(msg)), " ")
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

// jaccard computes the Jaccard similarity of two word sets. Two empty sets
// are identical.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
