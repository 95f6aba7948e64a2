package pkg

import (
	"github.com/pmezard/go-difflib/difflib"
)

// GenerateUnifiedDiff creates a unified diff between the current and the
// desired contents of a file. Empty when they are equal.
func GenerateUnifiedDiff(filePath, originalContent, newContent string) (string, error) {
	if originalContent == newContent {
		return "", nil
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(originalContent),
		B:        difflib.SplitLines(newContent),
		FromFile: filePath + " (original)",
		ToFile:   filePath + " (new)",
		Context:  3,
		Eol:      "\n",
	}
	return difflib.GetUnifiedDiffString(diff)
}
