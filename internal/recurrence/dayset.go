package recurrence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DaySet is a set of weekdays represented as a bitmask over time.Weekday.
// The zero value is the empty set, which callers treat as "every day".
type DaySet uint8

// dayNames are the canonical names used on the wire and in storage.
var dayNames = map[time.Weekday]string{
	time.Monday:    "MONDAY",
	time.Tuesday:   "TUESDAY",
	time.Wednesday: "WEDNESDAY",
	time.Thursday:  "THURSDAY",
	time.Friday:    "FRIDAY",
	time.Saturday:  "SATURDAY",
	time.Sunday:    "SUNDAY",
}

var daysByName = func() map[string]time.Weekday {
	m := make(map[string]time.Weekday, len(dayNames))
	for d, name := range dayNames {
		m[name] = d
	}
	return m
}()

// weekOrder lists days Monday-first for deterministic String output.
var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Days builds a DaySet from the given weekdays.
func Days(days ...time.Weekday) DaySet {
	var s DaySet
	for _, d := range days {
		s = s.Add(d)
	}
	return s
}

// Add returns the set with d included.
func (s DaySet) Add(d time.Weekday) DaySet {
	return s | 1<<uint(d)
}

// Contains reports whether d is a member of the set.
func (s DaySet) Contains(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// IsEmpty reports whether no day is set.
func (s DaySet) IsEmpty() bool {
	return s == 0
}

// Len returns the number of days in the set.
func (s DaySet) Len() int {
	n := 0
	for _, d := range weekOrder {
		if s.Contains(d) {
			n++
		}
	}
	return n
}

// String renders the set as comma-joined canonical names, Monday first.
// The empty set renders as "".
func (s DaySet) String() string {
	var names []string
	for _, d := range weekOrder {
		if s.Contains(d) {
			names = append(names, dayNames[d])
		}
	}
	return strings.Join(names, ",")
}

// MarshalJSON renders the set as a JSON array of canonical day names.
func (s DaySet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, 7)
	for _, d := range weekOrder {
		if s.Contains(d) {
			names = append(names, dayNames[d])
		}
	}
	return json.Marshal(names)
}

// UnmarshalJSON accepts a JSON array of day names.
func (s *DaySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	set, err := ParseDaySet(strings.Join(names, ","))
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// ParseDaySet parses a comma-joined list of canonical day names as produced
// by String. An empty string yields the empty set.
func ParseDaySet(raw string) (DaySet, error) {
	var s DaySet
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s, nil
	}
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToUpper(strings.TrimSpace(part))
		d, ok := daysByName[name]
		if !ok {
			return 0, fmt.Errorf("recurrence: unknown weekday %q", part)
		}
		s = s.Add(d)
	}
	return s, nil
}
