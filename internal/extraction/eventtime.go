package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var eventTimePattern = regexp.MustCompile(
	`(?is)(?:Alarma\s+Fecha|Alarm\s+Date|Fecha)\s*:\s*([0-9]{2})-([a-z]{3})-([0-9]{4}).*?Hora\s*:\s*([0-9]{2}):([0-9]{2})`,
)

var spanishMonths = map[string]time.Month{
	"ene": time.January,
	"feb": time.February,
	"mar": time.March,
	"abr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"ago": time.August,
	"sep": time.September,
	"oct": time.October,
	"nov": time.November,
	"dic": time.December,
}

// parseEventTime reads "Fecha: 05-Dic-2025 ... Hora: 09:42" as wall time in loc and returns it in UTC.
func parseEventTime(text string, loc *time.Location) (time.Time, bool) {
	m := eventTimePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}

	month, ok := spanishMonths[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])

	if hour > 23 || minute > 59 || day < 1 {
		return time.Time{}, false
	}

	t := time.Date(year, month, day, hour, minute, 0, 0, loc)
	// time.Date normalizes 31-Feb into March; reject instead.
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}

	return t.UTC(), true
}
