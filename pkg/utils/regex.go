package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// CompilePathPatterns compiles the disallowed_path_patterns of a config. Blank and
// repeated patterns are skipped; an invalid one fails the whole list with
// ErrConfigValidation.
func CompilePathPatterns(patterns []string) ([]*regexp.Regexp, error) {
	seen := make(map[string]bool, len(patterns))
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, raw := range patterns {
		pattern := strings.TrimSpace(raw)
		if pattern == "" || seen[pattern] {
			continue
		}
		seen[pattern] = true
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: disallowed_path_patterns[%d] %q: %v", ErrConfigValidation, i, pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
