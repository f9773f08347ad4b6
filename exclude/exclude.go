// Package exclude decides whether a path is excluded from a walk, by
// literal path membership or by an unanchored regular-expression search.
//
// (c) 2024- the bupindex authors
package exclude

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Matcher holds a compiled set of literal paths and regular expressions
// used to decide whether a path should be skipped by the Walker.
type Matcher struct {
	literal map[string]struct{}
	regexes []*regexp.Regexp
}

// New builds a Matcher from a set of normalized literal paths and a list
// of already-compiled, unanchored regular expressions.
func New(literals []string, rx []*regexp.Regexp) *Matcher {
	m := &Matcher{
		literal: make(map[string]struct{}, len(literals)),
		regexes: rx,
	}
	for _, l := range literals {
		m.literal[filepath.Clean(l)] = struct{}{}
	}
	return m
}

// Excludes returns true iff 'p' (as presented by the Walker, after
// normalization) is a member of the literal set, or is matched by any
// regex as an unanchored search.
func (m *Matcher) Excludes(p string) bool {
	if m == nil {
		return false
	}

	np := filepath.Clean(p)
	if _, ok := m.literal[np]; ok {
		return true
	}
	for _, re := range m.regexes {
		if re.MatchString(np) {
			return true
		}
	}
	return false
}

// LoadLiteralFile reads one normalized literal path per line from 'file'.
// Blank lines and lines starting with '#' are ignored.
func LoadLiteralFile(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, &Error{"open", file, err}
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		out = append(out, filepath.Clean(line))
	}
	if err := sc.Err(); err != nil {
		return nil, &Error{"scan", file, err}
	}
	return out, nil
}

// LoadRegexFile compiles one unanchored regular expression per line from
// 'file'. Blank lines and lines starting with '#' are ignored.
func LoadRegexFile(file string) ([]*regexp.Regexp, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, &Error{"open", file, err}
	}
	defer f.Close()

	var out []*regexp.Regexp
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		re, err := regexp.Compile(line)
		if err != nil {
			return nil, &Error{"compile", file, fmt.Errorf("%q: %w", line, err)}
		}
		out = append(out, re)
	}
	if err := sc.Err(); err != nil {
		return nil, &Error{"scan", file, err}
	}
	return out, nil
}
