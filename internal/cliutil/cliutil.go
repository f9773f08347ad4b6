// Package cliutil holds the bits shared by cmd/crawler and cmd/bupindex:
// building an exclude.Matcher from the repeatable `--exclude*` flag
// family, and a terse fatal-error-to-stderr convention.
//
// (c) 2024- the bupindex authors
package cliutil

import (
	"fmt"
	"os"
	"regexp"

	"github.com/opencoff/bupindex/exclude"
)

// ExcludeFlags mirrors the repeatable exclude-family flags common to both
// front-ends.
type ExcludeFlags struct {
	Literal     []string
	LiteralFrom []string
	Regex       []string
	RegexFrom   []string
}

// BuildMatcher loads and compiles every source named by f into a single
// exclude.Matcher. A nil *exclude.Matcher is returned (not an error) when
// every list is empty, since exclude.Matcher is nil-receiver-safe.
func BuildMatcher(f ExcludeFlags) (*exclude.Matcher, error) {
	literals := append([]string{}, f.Literal...)
	for _, file := range f.LiteralFrom {
		more, err := exclude.LoadLiteralFile(file)
		if err != nil {
			return nil, err
		}
		literals = append(literals, more...)
	}

	var regexes []*regexp.Regexp
	for _, pat := range f.Regex {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("--exclude-rx %q: %w", pat, err)
		}
		regexes = append(regexes, re)
	}
	for _, file := range f.RegexFrom {
		more, err := exclude.LoadRegexFile(file)
		if err != nil {
			return nil, err
		}
		regexes = append(regexes, more...)
	}

	if len(literals) == 0 && len(regexes) == 0 {
		return nil, nil
	}
	return exclude.New(literals, regexes), nil
}

// Die prints a formatted message to stderr prefixed with the program
// name and exits with status 1.
func Die(prog, format string, args ...any) {
	fmt.Fprintf(os.Stderr, prog+": "+format+"\n", args...)
	os.Exit(1)
}

// Warn prints a formatted message to stderr prefixed with the program
// name, without exiting.
func Warn(prog, format string, args ...any) {
	fmt.Fprintf(os.Stderr, prog+": "+format+"\n", args...)
}
