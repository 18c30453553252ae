package fim

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ExcludeType selects how an ExcludeRule pattern is interpreted.
type ExcludeType int

const (
	// ExcludePath matches when the canonicalized file path equals the
	// pattern or lies underneath it.
	ExcludePath ExcludeType = iota

	// ExcludeGlob matches the pattern against the file's basename only.
	ExcludeGlob
)

// ExcludeRule removes matching entries from a scan. Rules are ordered in
// config but evaluation is "any rule matches". An excluded directory prunes
// its whole subtree.
type ExcludeRule struct {
	Type    ExcludeType
	Pattern string
}

// ParseExcludeRule parses the config wire form "path:<pattern>" or
// "glob:<pattern>".
func ParseExcludeRule(raw string) (ExcludeRule, error) {
	switch {
	case strings.HasPrefix(raw, "path:"):
		return ExcludeRule{Type: ExcludePath, Pattern: strings.TrimPrefix(raw, "path:")}, nil
	case strings.HasPrefix(raw, "glob:"):
		return ExcludeRule{Type: ExcludeGlob, Pattern: strings.TrimPrefix(raw, "glob:")}, nil
	default:
		return ExcludeRule{}, fmt.Errorf("exclude rule %q: expected path: or glob: prefix", raw)
	}
}

// String returns the config wire form of the rule.
func (r ExcludeRule) String() string {
	if r.Type == ExcludeGlob {
		return "glob:" + r.Pattern
	}
	return "path:" + r.Pattern
}

// Matches reports whether the given absolute path is excluded by the rule.
// Path rules are canonicalized on both sides before comparison; glob rules
// see the basename only. Empty patterns never match.
func (r ExcludeRule) Matches(absPath string) bool {
	if r.Pattern == "" {
		return false
	}

	switch r.Type {
	case ExcludePath:
		normalized := filepath.Clean(absPath)
		rule := filepath.Clean(r.Pattern)
		return normalized == rule || strings.HasPrefix(normalized, rule+string(filepath.Separator))
	case ExcludeGlob:
		matched, err := filepath.Match(r.Pattern, filepath.Base(absPath))
		if err != nil {
			// Malformed pattern: skip rather than abort the scan.
			return false
		}
		return matched
	}
	return false
}

// Excluded reports whether any rule in the list matches the path.
func Excluded(rules []ExcludeRule, absPath string) bool {
	for _, r := range rules {
		if r.Matches(absPath) {
			return true
		}
	}
	return false
}
