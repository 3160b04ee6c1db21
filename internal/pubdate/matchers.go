package pubdate

import "regexp"

// Ordered by observed frequency in provider and index feeds; reordering changes
// which shape wins for ambiguous strings.
var numericMatchers = []matcher{
	{
		name: "date", // 1998-11-01
		re:   regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			d := endpoint{atoi(m[1]), atoi(m[2]), atoi(m[3])}
			return d, d, true
		},
	},
	{
		name: "year", // 2016
		re:   regexp.MustCompile(`^(\d{4})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			y := atoi(m[1])
			return endpoint{y, 1, 1}, endpoint{y, 12, 31}, true
		},
	},
	{
		name: "dot date", // 2000.11.30
		re:   regexp.MustCompile(`^(\d{4})\.(\d{1,2})\.(\d{1,2})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			d := endpoint{atoi(m[1]), atoi(m[2]), atoi(m[3])}
			return d, d, true
		},
	},
	{
		name: "year-year", // 1932-1933
		re:   regexp.MustCompile(`^(\d{4})-(\d{4})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			return endpoint{atoi(m[1]), 1, 1}, endpoint{atoi(m[2]), 12, 31}, true
		},
	},
	{
		name: "year month", // 2003.12, 2003-10
		re:   regexp.MustCompile(`^(\d{4})[-.](\d{1,2})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			y, mo := atoi(m[1]), atoi(m[2])
			if mo < 1 || mo > 12 {
				return endpoint{}, endpoint{}, false
			}
			return endpoint{y, mo, 1}, endpoint{y, mo, daysIn(y, mo)}, true
		},
	},
	{
		name: "year month-day", // 2016 09-10
		re:   regexp.MustCompile(`^(\d{4}) (\d{1,2})-(\d{1,2})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			d := endpoint{atoi(m[1]), atoi(m[2]), atoi(m[3])}
			return d, d, true
		},
	},
	{
		name: "timestamp", // 2006-02-01T00:00:00.000-06:00
		re:   regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})T00`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			d := endpoint{atoi(m[1]), atoi(m[2]), atoi(m[3])}
			return d, d, true
		},
	},
}

var textMatchers = []matcher{
	{
		name: "year mon-mon", // 2021 Jan-Dec
		re:   regexp.MustCompile(`^(\d{4}) ([A-Za-z]{3})-([A-Za-z]{3})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			y := atoi(m[1])
			m1, ok1 := monthNumber(m[2])
			m2, ok2 := monthNumber(m[3])
			if !ok1 || !ok2 {
				return endpoint{}, endpoint{}, false
			}
			return endpoint{y, m1, 1}, endpoint{y, m2, daysIn(y, m2)}, true
		},
	},
	{
		name: "year mon day-day", // 1999 Dec 16-30
		re:   regexp.MustCompile(`^(\d{4}) ([A-Za-z]{3}) (\d{1,2})-(\d{1,2})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			y := atoi(m[1])
			mo, ok := monthNumber(m[2])
			if !ok {
				return endpoint{}, endpoint{}, false
			}
			return endpoint{y, mo, atoi(m[3])}, endpoint{y, mo, atoi(m[4])}, true
		},
	},
	{
		name: "year mon day-mon day", // 1999 Jan 15-Feb 1
		re:   regexp.MustCompile(`^(\d{4}) ([A-Za-z]{3}) (\d{1,2})-([A-Za-z]{3}) (\d{1,2})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			y := atoi(m[1])
			m1, ok1 := monthNumber(m[2])
			m2, ok2 := monthNumber(m[4])
			if !ok1 || !ok2 {
				return endpoint{}, endpoint{}, false
			}
			return endpoint{y, m1, atoi(m[3])}, endpoint{y, m2, atoi(m[5])}, true
		},
	},
	{
		name: "year mon", // 1965 Jun
		re:   regexp.MustCompile(`^(\d{4}) ([A-Za-z]{3})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			y := atoi(m[1])
			mo, ok := monthNumber(m[2])
			if !ok {
				return endpoint{}, endpoint{}, false
			}
			return endpoint{y, mo, 1}, endpoint{y, mo, daysIn(y, mo)}, true
		},
	},
	{
		name: "year mon day", // 1991 Feb 22
		re:   regexp.MustCompile(`^(\d{4}) ([A-Za-z]{3}) (\d{1,2})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			mo, ok := monthNumber(m[2])
			if !ok {
				return endpoint{}, endpoint{}, false
			}
			d := endpoint{atoi(m[1]), mo, atoi(m[3])}
			return d, d, true
		},
	},
	{
		name: "year mon-mon day", // 2002 Feb-Mar 1
		re:   regexp.MustCompile(`^(\d{4}) ([A-Za-z]{3})-([A-Za-z]{3}) (\d{1,2})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			y, d := atoi(m[1]), atoi(m[4])
			m1, ok1 := monthNumber(m[2])
			m2, ok2 := monthNumber(m[3])
			if !ok1 || !ok2 {
				return endpoint{}, endpoint{}, false
			}
			return endpoint{y, m1, d}, endpoint{y, m2, d}, true
		},
	},
	{
		name: "year mon day-year mon day", // 1985 Dec 19-1986 Jan 1
		re:   regexp.MustCompile(`^(\d{4}) ([A-Za-z]{3}) (\d{1,2})-(\d{4}) ([A-Za-z]{3}) (\d{1,2})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			m1, ok1 := monthNumber(m[2])
			m2, ok2 := monthNumber(m[5])
			if !ok1 || !ok2 {
				return endpoint{}, endpoint{}, false
			}
			return endpoint{atoi(m[1]), m1, atoi(m[3])}, endpoint{atoi(m[4]), m2, atoi(m[6])}, true
		},
	},
	{
		name: "year mon-year mon", // 1988 Dec-1989 Feb
		re:   regexp.MustCompile(`^(\d{4}) ([A-Za-z]{3})-(\d{4}) ([A-Za-z]{3})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			y1, y2 := atoi(m[1]), atoi(m[3])
			m1, ok1 := monthNumber(m[2])
			m2, ok2 := monthNumber(m[4])
			if !ok1 || !ok2 {
				return endpoint{}, endpoint{}, false
			}
			return endpoint{y1, m1, 1}, endpoint{y2, m2, daysIn(y2, m2)}, true
		},
	},
	{
		name: "year season-season", // 1996 Autumn-Winter
		re:   regexp.MustCompile(`^(\d{4}) ([A-Za-z-]*)$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			s, ok := seasons[m[2]]
			if !ok {
				return endpoint{}, endpoint{}, false
			}
			y := atoi(m[1])
			return endpoint{y, s[0], s[1]}, endpoint{y, s[2], s[3]}, true
		},
	},
	{
		name: "year mon mon", // 1999 Nov Dec
		re:   regexp.MustCompile(`^(\d{4}) ([A-Za-z]{3}) ([A-Za-z]{3})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			y := atoi(m[1])
			m1, ok1 := monthNumber(m[2])
			m2, ok2 := monthNumber(m[3])
			if !ok1 || !ok2 {
				return endpoint{}, endpoint{}, false
			}
			return endpoint{y, m1, 1}, endpoint{y, m2, daysIn(y, m2)}, true
		},
	},
	{
		name: "year mon-mon year", // 2017 Jan-Feb 2017
		re:   regexp.MustCompile(`^(\d{4}) ([A-Za-z]{3})-([A-Za-z]{3}) (\d{4})$`),
		fn: func(m []string) (endpoint, endpoint, bool) {
			y1, y2 := atoi(m[1]), atoi(m[4])
			m1, ok1 := monthNumber(m[2])
			m2, ok2 := monthNumber(m[3])
			if !ok1 || !ok2 {
				return endpoint{}, endpoint{}, false
			}
			return endpoint{y1, m1, 1}, endpoint{y2, m2, daysIn(y2, m2)}, true
		},
	},
}

// seasons maps a season range to start month/day and end month/day.
var seasons = map[string][4]int{
	"Summer-Autumn": {6, 1, 10, 31},
	"Autumn-Winter": {9, 1, 12, 31},
	"Fall-Winter":   {9, 1, 12, 31},
	"Spring-Summer": {3, 1, 8, 31},
}
