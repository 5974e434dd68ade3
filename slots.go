package mailscheduler

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type ScheduleType string

const (
	ScheduleSingleDate    ScheduleType = "single_date"
	ScheduleDateRange     ScheduleType = "date_range"
	ScheduleMultipleDates ScheduleType = "multiple_dates"
)

// ScheduleSpec describes when a submitted schedule should fire. Dates are
// YYYY-MM-DD strings, times HH:MM or HH:MM:SS, both interpreted in
// TimeZoneOffset when one is given and in UTC otherwise.
type ScheduleSpec struct {
	Type ScheduleType `json:"type"`

	Date     string   `json:"date,omitempty"`
	FromDate string   `json:"fromDate,omitempty"`
	ToDate   string   `json:"toDate,omitempty"`
	Dates    []string `json:"dates,omitempty"`

	Times          []string `json:"times"`
	TimeZoneOffset string   `json:"timeZoneOffset,omitempty"`
}

// Slot is one concrete date and time pair produced by expanding a spec.
type Slot struct {
	Date string
	Time string
}

const dateLayout = "2006-01-02"

// ExpandSpec crosses the spec's dates with its times. A range whose from
// date lies after its to date expands to an empty list, which is not an
// error here. Duplicate entries in Dates or Times produce duplicate slots,
// callers are expected to pre-deduplicate.
func ExpandSpec(spec ScheduleSpec) ([]Slot, error) {
	times := make([]string, 0, len(spec.Times))
	for _, t := range spec.Times {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			times = append(times, trimmed)
		}
	}

	slots := []Slot{}
	if len(times) == 0 {
		return slots, nil
	}

	switch spec.Type {
	case ScheduleSingleDate:
		if spec.Date == "" {
			return slots, nil
		}

		if _, err := time.Parse(dateLayout, spec.Date); err != nil {
			return nil, errors.Wrapf(InvalidScheduleErr, "bad date %q", spec.Date)
		}

		for _, t := range times {
			slots = append(slots, Slot{Date: spec.Date, Time: t})
		}

	case ScheduleDateRange:
		if spec.FromDate == "" || spec.ToDate == "" {
			return slots, nil
		}

		from, err := time.Parse(dateLayout, spec.FromDate)
		if err != nil {
			return nil, errors.Wrapf(InvalidScheduleErr, "bad from date %q", spec.FromDate)
		}

		to, err := time.Parse(dateLayout, spec.ToDate)
		if err != nil {
			return nil, errors.Wrapf(InvalidScheduleErr, "bad to date %q", spec.ToDate)
		}

		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			date := day.Format(dateLayout)

			for _, t := range times {
				slots = append(slots, Slot{Date: date, Time: t})
			}
		}

	case ScheduleMultipleDates:
		for _, date := range spec.Dates {
			date = strings.TrimSpace(date)
			if date == "" {
				continue
			}

			if _, err := time.Parse(dateLayout, date); err != nil {
				return nil, errors.Wrapf(InvalidScheduleErr, "bad date %q", date)
			}

			for _, t := range times {
				slots = append(slots, Slot{Date: date, Time: t})
			}
		}
	}

	return slots, nil
}

var offsetPattern = regexp.MustCompile(`^[+-][0-9]{2}:?[0-9]{2}$`)

// SlotTime converts a slot to the UTC instant it should fire at. When
// offset matches ±HH:MM (colon optional) the date and clock are read as
// wall clock time in that zone, otherwise they are read as UTC.
func SlotTime(date, clock, offset string) (time.Time, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, errors.Wrapf(InvalidScheduleErr, "bad date %q", date)
	}

	hour, minute, second := parseClock(clock)

	loc := time.UTC
	if offset = strings.TrimSpace(offset); offsetPattern.MatchString(offset) {
		loc = fixedZone(offset)
	}

	local := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, second, 0, loc)

	return local.UTC(), nil
}

// parseClock reads HH:MM or HH:MM:SS. Out of range or unparseable
// components are clamped into valid ranges rather than rejected.
func parseClock(clock string) (hour, minute, second int) {
	parts := strings.Split(strings.TrimSpace(clock), ":")

	hour = clamp(atoi(parts[0]), 0, 23)
	if len(parts) > 1 {
		minute = clamp(atoi(parts[1]), 0, 59)
	}
	if len(parts) > 2 {
		second = clamp(atoi(parts[2]), 0, 59)
	}

	return hour, minute, second
}

func fixedZone(offset string) *time.Location {
	normalized := strings.Replace(offset, ":", "", 1)

	seconds := (atoi(normalized[1:3])*60 + atoi(normalized[3:5])) * 60
	if normalized[0] == '-' {
		seconds = -seconds
	}

	return time.FixedZone("UTC"+offset, seconds)
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}

	return n
}

func clamp(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}

	return n
}
