package service

import (
	"strings"
	"unicode"

	"github.com/arturoeanton/milestoner/internal/domain"
)

// categoryRules are checked in order; the first keyword hit wins. A keyword
// matches a whole word of the subject, optionally followed by one of
// inflections. Multi-word keywords match consecutive words.
var categoryRules = []struct {
	category domain.Category
	keywords []string
}{
	{domain.CategoryFix, []string{"fix", "bug", "hotfix", "patch", "revert"}},
	{domain.CategoryFeature, []string{"add", "implement", "feature", "feat", "introduce", "introducing", "support"}},
	{domain.CategoryDocs, []string{"doc", "docs", "document", "documentation", "readme"}},
	{domain.CategoryRefactor, []string{
		"refactor", "cleanup", "clean up", "rename", "renaming",
		"restructure", "restructuring", "simplify", "simplified", "simplifies",
	}},
}

var inflections = []string{"", "s", "es", "d", "ed", "ing"}

// Classify derives an advisory category from a commit subject.
func Classify(message string) domain.Category {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if containsKeyword(words, strings.Fields(kw)) {
				return rule.category
			}
		}
	}
	return domain.CategoryOther
}

// containsKeyword reports whether kw occurs as consecutive words. Only the
// last word of kw may carry an inflection.
func containsKeyword(words, kw []string) bool {
	last := len(kw) - 1
	for i := 0; i+last < len(words); i++ {
		ok := true
		for j := 0; j < last; j++ {
			if words[i+j] != kw[j] {
				ok = false
				break
			}
		}
		if ok && inflected(words[i+last], kw[last]) {
			return true
		}
	}
	return false
}

func inflected(word, stem string) bool {
	if !strings.HasPrefix(word, stem) {
		return false
	}
	rest := word[len(stem):]
	for _, suffix := range inflections {
		if rest == suffix {
			return true
		}
	}
	return false
}
