// Package dates implements the FFIEC date grammar: the webservice speaks
// mm/dd/yyyy, callers may speak quarters, compact dates, or time.Time, and
// every reporting period must land on a quarter boundary.
package dates

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/regdata/ffiec-connect/internal/ffiecerr"
)

// OutputFormat selects how reporting periods and timestamps are rendered.
type OutputFormat string

const (
	// FormatOriginal renders m/d/yyyy without zero padding, matching the
	// webservice's own rendering.
	FormatOriginal OutputFormat = "string_original"

	// FormatCompact renders yyyymmdd.
	FormatCompact OutputFormat = "string_yyyymmdd"

	// FormatStructured yields time.Time values.
	FormatStructured OutputFormat = "structured"
)

var (
	reMDY     = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	reISO     = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	reCompact = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	reQuarter = regexp.MustCompile(`^([1-4])Q(\d{4})$`)
)

// quarterEnds maps a quarter number to its ending month and day.
var quarterEnds = map[int]struct{ month, day int }{
	1: {3, 31},
	2: {6, 30},
	3: {9, 30},
	4: {12, 31},
}

// Parse accepts any of the supported input shapes and returns the date in
// UTC. Quarter inputs resolve to the quarter's last day.
func Parse(input any) (time.Time, error) {
	switch v := input.(type) {
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		return parseString(v)
	default:
		return time.Time{}, ffiecerr.Validation("date", input, "mm/dd/yyyy, yyyy-mm-dd, yyyymmdd, #Qyyyy, or time.Time")
	}
}

func parseString(s string) (time.Time, error) {
	if m := reMDY.FindStringSubmatch(s); m != nil {
		return makeDate(s, m[3], m[1], m[2])
	}
	if m := reISO.FindStringSubmatch(s); m != nil {
		return makeDate(s, m[1], m[2], m[3])
	}
	if m := reCompact.FindStringSubmatch(s); m != nil {
		return makeDate(s, m[1], m[2], m[3])
	}
	if m := reQuarter.FindStringSubmatch(s); m != nil {
		q, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		end := quarterEnds[q]
		return time.Date(year, time.Month(end.month), end.day, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, ffiecerr.Validation("date", s, "mm/dd/yyyy, yyyy-mm-dd, yyyymmdd, or #Qyyyy")
}

func makeDate(orig, ys, ms, ds string) (time.Time, error) {
	year, _ := strconv.Atoi(ys)
	month, _ := strconv.Atoi(ms)
	day, _ := strconv.Atoi(ds)
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (13/45 becomes a later date); reject that.
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, ffiecerr.Validation("date", orig, "a real calendar date")
	}
	return t, nil
}

// ParseQuarterEnd parses a reporting period and enforces that it falls on a
// quarter boundary: Mar 31, Jun 30, Sep 30, or Dec 31.
func ParseQuarterEnd(input any) (time.Time, error) {
	t, err := Parse(input)
	if err != nil {
		return time.Time{}, err
	}
	if !IsQuarterEnd(t) {
		return time.Time{}, ffiecerr.Validation("reporting period", input, "a quarter-end date (Mar 31, Jun 30, Sep 30, Dec 31)")
	}
	return t, nil
}

// IsQuarterEnd reports whether t is the last day of a calendar quarter.
func IsQuarterEnd(t time.Time) bool {
	end, ok := quarterEnds[(int(t.Month())+2)/3]
	return ok && int(t.Month()) == end.month && t.Day() == end.day
}

// Quarter renders t's quarter as #Qyyyy, e.g. "4Q2023".
func Quarter(t time.Time) string {
	return fmt.Sprintf("%dQ%d", (int(t.Month())+2)/3, t.Year())
}

// Wire renders t in the webservice's canonical request format, mm/dd/yyyy
// with zero padding.
func Wire(t time.Time) string {
	return t.Format("01/02/2006")
}

// Render formats t per the requested output shape. FormatStructured callers
// should use the time.Time directly; Render returns it unchanged.
func Render(t time.Time, f OutputFormat) (any, error) {
	switch f {
	case FormatOriginal:
		// Always the webservice's own unpadded m/d/yyyy, whatever form the
		// period was supplied in; an ISO input still renders as 12/31/2023,
		// matching how the retrieval service has always echoed periods.
		return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year()), nil
	case FormatCompact:
		return t.Format("20060102"), nil
	case FormatStructured:
		return t, nil
	default:
		return nil, ffiecerr.Validation("date format", string(f), "string_original, string_yyyymmdd, or structured")
	}
}

// SortAscending orders parsed reporting periods oldest first, the order the
// period-enumeration operations guarantee.
func SortAscending(periods []time.Time) {
	sort.Slice(periods, func(i, j int) bool { return periods[i].Before(periods[j]) })
}

// eastern is the zone every submission timestamp is qualified to. The
// webservice reports wall-clock times in the Washington, DC business day.
var eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// tzdata is compiled in or present on every supported platform.
		panic(fmt.Sprintf("load America/New_York: %v", err))
	}
	return loc
}

// Eastern returns the America/New_York location.
func Eastern() *time.Location { return eastern }

// ParseSubmissionTime parses the webservice's submission timestamp format,
// e.g. "3/4/2021 9:14:32 AM", qualifying it to America/New_York.
func ParseSubmissionTime(s string) (time.Time, error) {
	for _, layout := range []string{"1/2/2006 3:04:05 PM", "1/2/2006 15:04:05 PM", "1/2/2006 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, eastern); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ffiecerr.Validation("submission timestamp", s, "m/d/yyyy h:mm:ss AM/PM")
}
