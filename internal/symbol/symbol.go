// Package symbol validates and normalizes ticker symbols.
package symbol

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxLength is the longest raw input considered for matching.
const MaxLength = 16

// Kind is the category of instrument implied by a symbol's shape.
type Kind string

const (
	KindEquity        Kind = "equity"
	KindFuture        Kind = "future"
	KindInternational Kind = "international"
	KindIndex         Kind = "index"
	KindPair          Kind = "pair"
)

// ErrInvalid is returned for any input that does not match an accepted shape.
var ErrInvalid = errors.New("invalid symbol")

var shapes = []struct {
	kind    Kind
	pattern *regexp.Regexp
}{
	{KindEquity, regexp.MustCompile(`^[A-Z]{1,5}$`)},
	{KindFuture, regexp.MustCompile(`^[A-Z]{1,5}=F$`)},
	{KindInternational, regexp.MustCompile(`^[A-Z]{1,5}\.[A-Z]{1,2}$`)},
	{KindIndex, regexp.MustCompile(`^\^[A-Z]{1,10}$`)},
	{KindPair, regexp.MustCompile(`^[A-Z]{1,5}-[A-Z]{1,5}$`)},
}

// Normalize returns the canonical uppercase form of raw, or an error
// wrapping ErrInvalid.
func Normalize(raw string) (string, error) {
	_, s, err := Classify(raw)
	return s, err
}

// Classify normalizes raw and reports which shape it matched.
func Classify(raw string) (Kind, string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", "", fmt.Errorf("%w: empty", ErrInvalid)
	}
	if len(s) > MaxLength {
		return "", "", fmt.Errorf("%w: %q is too long", ErrInvalid, raw)
	}
	for _, shape := range shapes {
		if shape.pattern.MatchString(s) {
			return shape.kind, s, nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalid, raw)
}

// Valid reports whether raw normalizes to an accepted symbol.
func Valid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}
