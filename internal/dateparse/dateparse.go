// Package dateparse turns the date cells found in spreadsheet exports into
// canonical YYYY-MM-DD strings.
//
// Sources mix export locales, so strings are tried in a fixed order: ISO
// prefix, then slash dates (month-first, falling back to day-first when the
// month-first reading does not round-trip), then a generic layout list
// guarded to plausible years.
package dateparse

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Layout is the canonical date layout.
const Layout = "2006-01-02"

const (
	minYear = 1901
	maxYear = 2099

	minTextSerial = 20000
	maxTextSerial = 80000
)

var (
	isoPrefix   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)
	slashPrefix = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})`)
)

// genericLayouts are tried last, in order.
var genericLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"2-Jan-06",
	"2006/01/02",
	"2006/1/2",
	"2006.01.02",
	"02.01.2006",
	"1-2-2006",
	"01-02-2006",
	"Mon Jan 2 2006",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"Mon, 02 Jan 2006 15:04:05 MST",
	"Monday, January 2, 2006",
	time.RFC1123Z,
	time.ANSIC,
	"01-02-06", // spreadsheet built-in short date format
	"1-2-06",
}

// Normalize converts a raw cell into YYYY-MM-DD. The second return value is
// false when the cell cannot be read as a date; callers skip the row.
func Normalize(v any) (string, bool) {
	t, ok := Parse(v)
	if !ok {
		return "", false
	}
	return t.Format(Layout), true
}

// Parse is Normalize returning the date as local midnight.
func Parse(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return midnight(x.Year(), int(x.Month()), x.Day())
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return Parse(*x)
	case float64:
		return fromSerial(x)
	case float32:
		return fromSerial(float64(x))
	case int:
		return fromSerial(float64(x))
	case int64:
		return fromSerial(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return parseString(x.String())
		}
		return fromSerial(f)
	case string:
		return parseString(x)
	case fmt.Stringer:
		return parseString(x.String())
	}
	return time.Time{}, false
}

// MustDate parses a strict YYYY-MM-DD boundary value (query parameters).
func MustDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD: %w", err)
	}
	return t, nil
}

// InRange reports whether canonical date d lies within [start, end]. All three
// must be canonical; lexical order equals calendar order for YYYY-MM-DD.
func InRange(d, start, end string) bool {
	return d >= start && d <= end
}

func parseString(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	// 1. ISO prefix.
	if m := isoPrefix.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return midnight(y, mo, d)
	}

	// 2. Slash dates: month-first, then day-first.
	if m := slashPrefix.FindStringSubmatch(s); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if t, ok := midnight(y, a, b); ok {
			return t, true
		}
		if t, ok := midnight(y, b, a); ok {
			return t, true
		}
	}

	// 3. Generic fallback. Numeric text only counts as a serial inside the
	// range real exports produce, so a bare year is not read as a day count.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < minTextSerial || f > maxTextSerial {
			return time.Time{}, false
		}
		return fromSerial(f)
	}
	if i := strings.Index(s, " ("); i > 0 {
		s = s[:i] // JS Date strings end with "(Zone Name)"
	}
	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() < minYear || t.Year() > maxYear {
				return time.Time{}, false
			}
			return midnight(t.Year(), int(t.Month()), t.Day())
		}
	}
	return time.Time{}, false
}

// midnight builds a local date and rejects values time.Date would roll over
// (month 13, February 30, ...).
func midnight(y, m, d int) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.Local)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func fromSerial(serial float64) (time.Time, bool) {
	if math.IsNaN(serial) || math.IsInf(serial, 0) || serial <= 0 {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	if t.Year() < minYear || t.Year() > maxYear {
		return time.Time{}, false
	}
	return midnight(t.Year(), int(t.Month()), t.Day())
}
