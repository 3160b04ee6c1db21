// Package pubdate converts free-text publication dates into closed date intervals.
package pubdate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layout is the canonical rendering of interval endpoints.
const Layout = "2006-01-02"

// ErrUnparseable is returned when no matcher recognizes the input.
var ErrUnparseable = errors.New("unparseable publication date")

// ParseError describes a date string that could not be normalized.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unparseable publication date %q: %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("unparseable publication date %q", e.Input)
}

func (e *ParseError) Unwrap() error {
	return ErrUnparseable
}

// Range is a closed interval of calendar days.
type Range struct {
	Start time.Time
	End   time.Time
}

// StartString returns Start as YYYY-MM-DD.
func (r Range) StartString() string { return r.Start.Format(Layout) }

// EndString returns End as YYYY-MM-DD.
func (r Range) EndString() string { return r.End.Format(Layout) }

// String renders the range as "start..end".
func (r Range) String() string {
	return r.StartString() + ".." + r.EndString()
}

// endpoint is an unvalidated (year, month, day) triple produced by a matcher.
type endpoint struct {
	year, month, day int
}

// matcher recognizes one date shape. ok is false when the shape does not apply.
type matcher struct {
	name string
	re   *regexp.Regexp
	fn   func(m []string) (start, end endpoint, ok bool)
}

// Normalize converts text into a date interval using a prioritized cascade of
// shape matchers. The first matcher that recognizes the input wins.
// Year-only and month-only inputs span the whole year or month.
func Normalize(text string) (Range, error) {
	s := preprocess(text)
	if s == "" {
		return Range{}, &ParseError{Input: text, Reason: "empty"}
	}

	for _, group := range [][]matcher{numericMatchers, textMatchers} {
		for _, m := range group {
			groups := m.re.FindStringSubmatch(s)
			if groups == nil {
				continue
			}
			start, end, ok := m.fn(groups)
			if !ok {
				continue
			}
			return build(text, start, end)
		}
	}

	if exc, ok := exceptions[s]; ok {
		return build(text, exc[0], exc[1])
	}

	return Range{}, &ParseError{Input: text}
}

// MustNormalize is like Normalize but panics on error. Intended for tests and
// constant inputs.
func MustNormalize(text string) Range {
	r, err := Normalize(text)
	if err != nil {
		panic(err)
	}
	return r
}

func preprocess(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " - ", "-")
	s = strings.TrimRight(s, "-")
	s = strings.TrimRight(s, ".")
	s = strings.TrimRight(s, ",")
	s = strings.ReplaceAll(s, ".-", "-")
	return s
}

// build validates both endpoints as real calendar days and start <= end.
func build(input string, start, end endpoint) (Range, error) {
	st, err := start.date()
	if err != nil {
		return Range{}, &ParseError{Input: input, Reason: err.Error()}
	}
	en, err := end.date()
	if err != nil {
		return Range{}, &ParseError{Input: input, Reason: err.Error()}
	}
	if en.Before(st) {
		return Range{}, &ParseError{Input: input, Reason: "end before start"}
	}
	return Range{Start: st, End: en}, nil
}

func (e endpoint) date() (time.Time, error) {
	if e.month < 1 || e.month > 12 {
		return time.Time{}, fmt.Errorf("month %d out of range", e.month)
	}
	if e.day < 1 || e.day > daysIn(e.year, e.month) {
		return time.Time{}, fmt.Errorf("day %d out of range for %04d-%02d", e.day, e.year, e.month)
	}
	return time.Date(e.year, time.Month(e.month), e.day, 0, 0, 0, 0, time.UTC), nil
}

// daysIn returns the number of days in the month, accounting for leap years.
func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// monthNumber maps a month name to its number using the first three letters.
// "nar" is a known provider typo for March.
func monthNumber(name string) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(name))
	if len(s) < 3 {
		return 0, false
	}
	n, ok := monthAbbrev[s[:3]]
	return n, ok
}

var monthAbbrev = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "nar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// exceptions holds known irregular strings, keyed by their preprocessed form.
var exceptions = map[string][2]endpoint{
	"1986-1987 Jan":     {{1986, 1, 1}, {1986, 12, 31}},
	"2020 March-April":  {{2020, 3, 1}, {2020, 4, 30}},
	"1992 Aug 15-Sep":   {{1992, 8, 15}, {1992, 9, 30}},
	"2016 Supplement 1": {{2016, 1, 1}, {2016, 12, 31}},
	"2022 May-June":     {{2022, 5, 1}, {2022, 6, 30}},
}
