package jobstorage

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is returned when an include or exclude glob cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// keyFilter applies include/exclude globs to keys relative to a job's base key.
//
// With no includes every key is included. Excludes always win.
type keyFilter struct {
	includes []string
	excludes []string
}

func newKeyFilter(includes, excludes []string) (*keyFilter, error) {
	f := &keyFilter{}
	for _, raw := range includes {
		p, err := compilePattern(raw)
		if err != nil {
			return nil, err
		}
		f.includes = append(f.includes, p)
	}
	for _, raw := range excludes {
		p, err := compilePattern(raw)
		if err != nil {
			return nil, err
		}
		f.excludes = append(f.excludes, p)
	}
	return f, nil
}

func compilePattern(raw string) (string, error) {
	p := strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/"), "/")
	if p == "" || !doublestar.ValidatePattern(p) {
		return "", &PatternError{Pattern: raw, Err: ErrInvalidPattern}
	}
	return p, nil
}

func (f *keyFilter) match(rel string) bool {
	if len(f.includes) > 0 {
		matched := false
		for _, p := range f.includes {
			if ok, _ := doublestar.Match(p, rel); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, p := range f.excludes {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	return true
}
